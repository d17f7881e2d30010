// Package suggest proposes the next questions a user is likely to ask, based
// on what the conversation just did.
package suggest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

// MaxSuggestions is the most suggestions returned per reply.
const MaxSuggestions = 4

type Suggestion struct {
	Text     string `json:"text"`
	Emoji    string `json:"emoji"`
	Action   string `json:"action"`
	Priority int    `json:"priority"`
}

// Generate ranks suggestions for the session's latest state. groupable is
// the groupable field list of the last queried object type, best first.
func Generate(st conversation.State, groupable []schema.Attribute) []Suggestion {
	q := st.LastQuery
	var out []Suggestion
	if q == nil {
		out = starters()
	} else {
		noun := strings.ToLower(q.ObjectLabel)
		if noun == "" {
			noun = q.ObjectType
		}
		noun = plural(noun)
		switch q.Action {
		case "analyze":
			out = afterAnalyze(q, noun, groupable)
		case "drilldown":
			out = afterDrillDown(q, noun, groupable)
		default:
			out = afterQuery(q, noun, groupable)
		}
	}
	return rank(out)
}

func rank(in []Suggestion) []Suggestion {
	seen := make(map[string]bool, len(in))
	out := make([]Suggestion, 0, len(in))
	for _, s := range in {
		if s.Text == "" || seen[s.Text] {
			continue
		}
		seen[s.Text] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

func starters() []Suggestion {
	return []Suggestion{
		{Text: "Show project distribution by status", Emoji: "📊", Action: "analyze", Priority: 80},
		{Text: "How many projects are there?", Emoji: "🔢", Action: "query", Priority: 70},
		{Text: "Describe projects", Emoji: "📋", Action: "describe", Priority: 60},
		{Text: "What can you do?", Emoji: "❓", Action: "help", Priority: 50},
	}
}

// nextField returns the best groupable field other than current.
func nextField(groupable []schema.Attribute, current string) (schema.Attribute, bool) {
	for _, a := range groupable {
		if a.APIName == ppm.IdentityField || strings.EqualFold(a.APIName, current) {
			continue
		}
		return a, true
	}
	return schema.Attribute{}, false
}

func afterAnalyze(q *conversation.QueryMemory, noun string, groupable []schema.Attribute) []Suggestion {
	var out []Suggestion
	points := q.Distribution()
	for i, p := range points {
		if i == 2 {
			break
		}
		if p.Label == ppm.NoValueLabel {
			continue
		}
		out = append(out, Suggestion{
			Text:     fmt.Sprintf("Show me the %s ones", p.Label),
			Emoji:    "🔍",
			Action:   "drilldown",
			Priority: 100 - i,
		})
	}
	if a, ok := nextField(groupable, q.GroupByField); ok {
		out = append(out, Suggestion{
			Text:     fmt.Sprintf("Show %s distribution by %s", singular(noun), strings.ToLower(a.DisplayName)),
			Emoji:    "📊",
			Action:   "analyze",
			Priority: 80,
		})
	}
	out = append(out,
		Suggestion{Text: "Export this as CSV", Emoji: "📥", Action: "export", Priority: 60},
		Suggestion{Text: "Give me a link", Emoji: "🔗", Action: "link", Priority: 50},
	)
	return out
}

func afterDrillDown(q *conversation.QueryMemory, noun string, groupable []schema.Attribute) []Suggestion {
	current := q.Filters[q.GroupByField]
	out := []Suggestion{
		{Text: "Give me a link to these", Emoji: "🔗", Action: "link", Priority: 85},
		{Text: "Export this as CSV", Emoji: "📥", Action: "export", Priority: 60},
	}
	for _, p := range q.Distribution() {
		if p.Label == current || p.Label == ppm.NoValueLabel {
			continue
		}
		out = append(out, Suggestion{
			Text:     fmt.Sprintf("Show me the %s ones", p.Label),
			Emoji:    "🔍",
			Action:   "drilldown",
			Priority: 90,
		})
		break
	}
	if a, ok := nextField(groupable, q.GroupByField); ok {
		out = append(out, Suggestion{
			Text:     fmt.Sprintf("Show %s distribution by %s", singular(noun), strings.ToLower(a.DisplayName)),
			Emoji:    "📊",
			Action:   "analyze",
			Priority: 55,
		})
	}
	return out
}

func afterQuery(q *conversation.QueryMemory, noun string, groupable []schema.Attribute) []Suggestion {
	var out []Suggestion
	if q.TotalCount != nil && *q.TotalCount == 0 {
		return []Suggestion{
			{Text: fmt.Sprintf("Show all %s", noun), Emoji: "📋", Action: "query", Priority: 80},
			{Text: fmt.Sprintf("Describe %s", noun), Emoji: "📋", Action: "describe", Priority: 60},
		}
	}
	if a, ok := nextField(groupable, ""); ok {
		out = append(out, Suggestion{
			Text:     fmt.Sprintf("Show %s distribution by %s", singular(noun), strings.ToLower(a.DisplayName)),
			Emoji:    "📊",
			Action:   "analyze",
			Priority: 80,
		})
	}
	out = append(out,
		Suggestion{Text: "Give me a link", Emoji: "🔗", Action: "link", Priority: 60},
		Suggestion{Text: "Export this as CSV", Emoji: "📥", Action: "export", Priority: 50},
	)
	if q.TotalCount == nil {
		out = append(out, Suggestion{Text: fmt.Sprintf("How many %s are there?", noun), Emoji: "🔢", Action: "query", Priority: 40})
	}
	if len(q.Filters) > 0 {
		out = append(out, Suggestion{Text: fmt.Sprintf("Show all %s", noun), Emoji: "📋", Action: "query", Priority: 45})
	}
	return out
}

func plural(noun string) string {
	switch {
	case strings.HasSuffix(noun, "s"):
		return noun
	case strings.HasSuffix(noun, "y"):
		return strings.TrimSuffix(noun, "y") + "ies"
	}
	return noun + "s"
}

func singular(noun string) string {
	if strings.HasSuffix(noun, "ies") {
		return strings.TrimSuffix(noun, "ies") + "y"
	}
	return strings.TrimSuffix(noun, "s")
}
