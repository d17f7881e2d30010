package assistant

import (
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/intent"
	"github.com/ahmetk3436/ppmchat/internal/planner"
)

// referents are count values that point back at the last result.
var referents = map[string]bool{
	"": true, "them": true, "those": true, "these": true, "it": true,
	"in total": true, "total": true, "ellos": true, "ellas": true, "en total": true,
}

// followUp answers messages that refer to the previous result. It reports
// false when the message should be planned from scratch instead.
func (a *Assistant) followUp(ctx context.Context, sessionID, message string, in intent.Result, st conversation.State) (Response, bool) {
	if !in.Matched() {
		return Response{}, false
	}

	switch {
	case in.IsDrillDown() && a.store.CanDrillDown(sessionID):
		res, err := a.exec.DrillDown(ctx, sessionID, in.Value, message)
		if err != nil {
			r := a.failure(err, st.LastQuery.ObjectType)
			r.Action = string(planner.ActionDrillDown)
			return r, true
		}
		return a.success(ctx, sessionID, res), true

	case in.Type == intent.Export && st.LastQuery != nil:
		return a.export(ctx, sessionID, st.LastQuery), true

	case in.Type == intent.Count && st.LastQuery != nil:
		return a.count(ctx, sessionID, message, in.Value, st.LastQuery)
	}
	return Response{}, false
}

// countFiller are words a count follow-up may carry next to a chart label
// and still refer to the last distribution.
var countFiller = map[string]bool{
	"the": true, "a": true, "are": true, "is": true, "were": true, "was": true,
	"there": true, "have": true, "has": true, "with": true, "in": true, "of": true,
	"ones": true, "one": true, "them": true, "those": true, "these": true, "they": true,
	"that": true, "which": true, "currently": true, "now": true, "still": true,
	"records": true, "items": true, "total": true, "status": true,
	"hay": true, "son": true, "estan": true, "están": true, "los": true, "las": true,
	"de": true, "en": true, "con": true, "que": true, "ellos": true, "ellas": true,
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// count answers from the remembered distribution or total without calling
// the backend. Messages naming another object type, or asking about more
// than a chart bucket, are left to the planner.
func (a *Assistant) count(ctx context.Context, sessionID, message, value string, q *conversation.QueryMemory) (Response, bool) {
	if name, ok := a.planner.MentionedType(message); ok && name != q.ObjectType {
		return Response{}, false
	}
	noun := a.noun(q)

	if points := q.Distribution(); len(points) > 0 && !referents[value] {
		labels := make([]string, len(points))
		for i, p := range points {
			labels[i] = p.Label
		}
		label, ok := conversation.MatchLabel(labels, strings.TrimSuffix(value, " ones"))
		if !ok || !onlyBucket(value, label, q) {
			return Response{}, false
		}
		for _, p := range points {
			if p.Label == label {
				field := q.GroupByDisplayName
				if field == "" {
					field = q.GroupByField
				}
				return Response{
					Success:     true,
					Reply:       fmt.Sprintf("There are %d %s with %s = %s.", p.Value, noun, field, label),
					Action:      "count",
					ObjectType:  q.ObjectType,
					DeepLink:    a.links.Filtered(q.ObjectType, map[string]string{q.GroupByField: label}),
					Suggestions: a.suggestions(ctx, sessionID),
				}, true
			}
		}
	}

	if !referents[value] || q.TotalCount == nil {
		return Response{}, false
	}
	reply := fmt.Sprintf("There are %d %s in the last result.", *q.TotalCount, noun)
	if len(q.Filters) > 0 {
		reply = fmt.Sprintf("There are %d %s matching %s.", *q.TotalCount, noun, filterText(q.Filters))
	}
	return Response{
		Success:     true,
		Reply:       reply,
		Action:      "count",
		ObjectType:  q.ObjectType,
		DeepLink:    a.links.ForResult(q.ObjectType, "", q.Filters),
		Suggestions: a.suggestions(ctx, sessionID),
	}, true
}

// onlyBucket reports whether every word of value belongs to the label, the
// grouped field, the object type or the filler list.
func onlyBucket(value, label string, q *conversation.QueryMemory) bool {
	allowed := make(map[string]bool)
	for _, text := range []string{q.GroupByField, q.GroupByDisplayName, q.ObjectType, q.ObjectLabel} {
		for _, w := range words(text) {
			allowed[w] = true
			allowed[strings.TrimSuffix(w, "s")] = true
		}
	}
	labelWords := words(label)

	for _, w := range words(conversation.NormalizeValue(value)) {
		if countFiller[w] || allowed[w] || allowed[strings.TrimSuffix(w, "s")] {
			continue
		}
		if !partOfLabel(w, labelWords) {
			return false
		}
	}
	return true
}

// partOfLabel accepts a word that shares a stem with a label word, so
// "complete" and "actives" still name "Completed" and "Active".
func partOfLabel(word string, labelWords []string) bool {
	for _, l := range labelWords {
		if word == l {
			return true
		}
		if len(word) >= 3 && (strings.HasPrefix(l, word) || strings.HasPrefix(word, l)) {
			return true
		}
	}
	return false
}

func words(text string) []string {
	return strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), " "))
}

// export renders the last distribution, or a summary of the last query, as
// CSV text.
func (a *Assistant) export(ctx context.Context, sessionID string, q *conversation.QueryMemory) Response {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	var title string
	if points := q.Distribution(); len(points) > 0 {
		field := q.GroupByDisplayName
		if field == "" {
			field = q.GroupByField
		}
		title = fmt.Sprintf("%s by %s", a.noun(q), field)
		_ = w.Write([]string{field, "count"})
		for _, p := range points {
			_ = w.Write([]string{p.Label, strconv.Itoa(p.Value)})
		}
	} else {
		title = a.noun(q)
		_ = w.Write([]string{"objectType", "filter", "value", "totalCount"})
		total := ""
		if q.TotalCount != nil {
			total = strconv.Itoa(*q.TotalCount)
		}
		keys := sortedKeys(q.Filters)
		if len(keys) == 0 {
			_ = w.Write([]string{q.ObjectType, "", "", total})
		}
		for _, k := range keys {
			_ = w.Write([]string{q.ObjectType, k, q.Filters[k], total})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return a.failure(err, q.ObjectType)
	}

	return Response{
		Success:     true,
		Reply:       fmt.Sprintf("Here is %s as CSV:\n```csv\n%s```", title, sb.String()),
		Action:      "export",
		ObjectType:  q.ObjectType,
		DeepLink:    a.links.ForResult(q.ObjectType, "", q.Filters),
		Suggestions: a.suggestions(ctx, sessionID),
	}
}

// noun is the plural word used for the object type of q.
func (a *Assistant) noun(q *conversation.QueryMemory) string {
	if a.schemas.IsCustom(q.ObjectType) && q.ObjectLabel != "" {
		return q.ObjectLabel
	}
	return q.ObjectType
}

func filterText(filters map[string]string) string {
	keys := sortedKeys(filters)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s = %s", k, filters[k]))
	}
	return strings.Join(parts, " and ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
