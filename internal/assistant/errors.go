package assistant

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/executor"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
	"github.com/ahmetk3436/ppmchat/internal/suggest"
)

var errEmptyMessage = errors.New("empty message")

// failure converts any error into a non-empty reply with a hint and a few
// alternative actions.
func (a *Assistant) failure(err error, objectType string) Response {
	reply, alts := explain(err, objectType)
	if len(alts) == 0 {
		alts = defaultAlternatives()
	}
	slog.Debug("Replying with failure", "object_type", objectType, "error", err)
	return Response{
		Success:     false,
		Reply:       reply,
		ObjectType:  objectType,
		Suggestions: alts,
	}
}

func explain(err error, objectType string) (string, []suggest.Suggestion) {
	var (
		fieldErr  *executor.FieldNotFoundError
		recordErr *executor.RecordNotFoundError
		drillErr  *executor.DrillDownAmbiguousError
		parseErr  *planner.ParseError
		remoteErr *ppm.RemoteCallError
		schemaErr *schema.FetchError
	)

	switch {
	case errors.Is(err, errEmptyMessage):
		return "Please type a question, for example \"show project distribution by status\".", nil

	case errors.As(err, &fieldErr):
		if len(fieldErr.Alternatives) == 0 {
			return fmt.Sprintf("I couldn't find a field called %q on %s, and it has no fields I can group by.", fieldErr.Field, fieldErr.ObjectType), nil
		}
		var alts []suggest.Suggestion
		for i, f := range fieldErr.Alternatives {
			if i == 3 {
				break
			}
			alts = append(alts, suggest.Suggestion{
				Text:     fmt.Sprintf("Group %s by %s", fieldErr.ObjectType, f),
				Emoji:    "📊",
				Action:   "analyze",
				Priority: 80 - i,
			})
		}
		return fmt.Sprintf("I couldn't find a field called %q on %s. You can group by: %s.",
			fieldErr.Field, fieldErr.ObjectType, strings.Join(fieldErr.Alternatives, ", ")), alts

	case errors.As(err, &recordErr):
		if recordErr.Name == "" {
			return fmt.Sprintf("Which %s do you mean? Give me its code or name.", recordErr.ObjectType), nil
		}
		return fmt.Sprintf("I couldn't find any %s matching %q. Please check the spelling, or use the record code.", recordErr.ObjectType, recordErr.Name),
			[]suggest.Suggestion{{Text: fmt.Sprintf("Show all %s", recordErr.ObjectType), Emoji: "📋", Action: "query", Priority: 70}}

	case errors.As(err, &drillErr):
		if len(drillErr.Labels) == 0 {
			return "There is no chart to drill into yet. Ask for a distribution first, for example \"show project distribution by status\".", nil
		}
		var alts []suggest.Suggestion
		for i, l := range drillErr.Labels {
			if i == 3 {
				break
			}
			alts = append(alts, suggest.Suggestion{
				Text:     fmt.Sprintf("Show me the %s ones", l),
				Emoji:    "🔍",
				Action:   "drilldown",
				Priority: 90 - i,
			})
		}
		return fmt.Sprintf("I'm not sure which value you mean. The available values are: %s.", strings.Join(drillErr.Labels, ", ")), alts

	case errors.As(err, &parseErr):
		return "I couldn't turn that into a query. Could you rephrase it, naming the object and what you want to see?", nil

	case errors.Is(err, executor.ErrReadOnly):
		return "Changes are disabled on this assistant, so I can only read data.", nil

	case errors.As(err, &schemaErr):
		return fmt.Sprintf("I couldn't load the fields of %s from the PPM server right now. Please try again in a moment.", schemaErr.Resource), nil

	case errors.As(err, &remoteErr):
		return explainRemote(remoteErr, objectType)
	}

	return fmt.Sprintf("Something went wrong while handling that request (%v). Please try again or rephrase it.", err), nil
}

func explainRemote(err *ppm.RemoteCallError, objectType string) (string, []suggest.Suggestion) {
	switch err.Kind {
	case ppm.KindNotFound:
		if objectType == "" {
			return "The PPM server couldn't find what I asked for.", nil
		}
		return fmt.Sprintf("The PPM server couldn't find %s. The object may not exist on this instance.", objectType),
			[]suggest.Suggestion{{Text: "Link to custom objects", Emoji: "🔗", Action: "link", Priority: 60}}
	case ppm.KindAuth:
		return "The PPM server rejected my credentials, or you lack permission for this. Please check the API token configured for the assistant.", nil
	case ppm.KindTimeout:
		return "The PPM server took too long to answer. Try a narrower question, for example with a filter.", nil
	}
	if err.Message != "" {
		return fmt.Sprintf("The PPM server returned an error: %s", err.Message), nil
	}
	return fmt.Sprintf("The PPM server returned an error (status %d).", err.StatusCode), nil
}

func defaultAlternatives() []suggest.Suggestion {
	return []suggest.Suggestion{
		{Text: "Show project distribution by status", Emoji: "📊", Action: "analyze", Priority: 80},
		{Text: "How many projects are there?", Emoji: "🔢", Action: "query", Priority: 70},
		{Text: "What can you do?", Emoji: "❓", Action: "help", Priority: 50},
	}
}
