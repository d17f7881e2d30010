package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/reasoning"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

// DefaultObjectType is used when nothing in the message or session points
// at an object type.
const DefaultObjectType = "projects"

var helpPhrase = regexp.MustCompile(`^(?:help|ayuda|\?|what can you do\??|qu[eé] puedes hacer\??)$`)

// Generator builds plans. Safe for concurrent use.
type Generator struct {
	schemas  *schema.Cache
	reasoner reasoning.Reasoner
}

func NewGenerator(schemas *schema.Cache, reasoner reasoning.Reasoner) *Generator {
	return &Generator{schemas: schemas, reasoner: reasoner}
}

// Generate resolves the target object type and a field hint, asks the
// reasoning service for a plan, and validates the reply. A field named in the
// message overrides the service's grouping choice for analyze plans.
func (g *Generator) Generate(ctx context.Context, message string, state conversation.State) (*Plan, error) {
	lower := strings.ToLower(strings.TrimSpace(message))
	if helpPhrase.MatchString(lower) {
		return &Plan{Action: ActionHelp, Method: "GET", Explanation: "Show what the assistant can do"}, nil
	}

	objectType := g.ResolveObjectType(ctx, message, state)

	entry, err := g.schemas.GetSchema(ctx, objectType)
	if err != nil {
		slog.Warn("Planning without schema", "object", objectType, "error", err)
		entry = &schema.Entry{ResourceName: objectType, Label: g.schemas.Label(objectType)}
	}
	hint, hasHint := FieldHint(message, entry)

	system := g.buildSystemPrompt(objectType, entry, conversation.Summarize(&state))
	reply, err := g.reasoner.Complete(ctx, system, message)

	var plan *Plan
	switch {
	case errors.Is(err, reasoning.ErrNotConfigured):
		plan = fallbackPlan(lower, objectType, hint, hasHint)
	case err != nil:
		return nil, fmt.Errorf("reasoning service: %w", err)
	default:
		obj, perr := reasoning.ExtractJSONObject(reply)
		if perr != nil {
			return nil, &ParseError{Reply: reply, Err: perr}
		}
		plan, perr = planFromObject(obj, objectType)
		if perr != nil {
			return nil, &ParseError{Reply: reply, Err: perr}
		}
	}

	if hasHint && plan.Action == ActionAnalyze && plan.GroupByField != hint.APIName {
		if plan.GroupByField != "" {
			slog.Debug("Field hint overrides reasoning output",
				"object", objectType, "proposed", plan.GroupByField, "hint", hint.APIName)
		}
		plan.GroupByField = hint.APIName
	}

	slog.Info("Plan generated",
		"action", plan.Action,
		"object", plan.ObjectType,
		"method", plan.Method,
		"endpoint", plan.Endpoint,
	)
	return plan, nil
}

// ResolveObjectType picks the object type a message is about: a named custom
// object, then a named standard object, then the session's context, then the
// default.
func (g *Generator) ResolveObjectType(ctx context.Context, message string, state conversation.State) string {
	g.schemas.DiscoverObjectTypes(ctx, false)
	lower := strings.ToLower(message)

	if name, ok := g.MentionedType(lower); ok {
		return name
	}

	var last, page string
	if state.LastQuery != nil {
		last = state.LastQuery.ObjectType
	}
	if state.CurrentPage != nil {
		page = state.CurrentPage.ObjectType
	}

	// The message names no type: the last queried one, then the page.
	for _, name := range []string{last, page} {
		if name != "" {
			return name
		}
	}
	return DefaultObjectType
}

// MentionedType reports the object type the message names, if any. Custom
// labels are checked before standard names. Only already known types are
// considered; no discovery call is made.
func (g *Generator) MentionedType(message string) (string, bool) {
	lower := strings.ToLower(message)
	types := g.schemas.ObjectTypes()
	custom := make([]schema.ObjectType, 0)
	standard := make([]schema.ObjectType, 0, len(types))
	for _, t := range types {
		if t.IsCustom {
			custom = append(custom, t)
		} else {
			standard = append(standard, t)
		}
	}

	if name, ok := mentionedType(lower, custom); ok {
		return name, true
	}
	return mentionedType(lower, standard)
}

// mentionedType finds the type whose name or label appears as a whole word in
// text. The longest key wins.
func mentionedType(text string, types []schema.ObjectType) (string, bool) {
	best, bestLen := "", 0
	for _, t := range types {
		for _, key := range typeKeys(t) {
			if len(key) > bestLen && containsWord(text, key) {
				best, bestLen = t.Name, len(key)
			}
		}
	}
	return best, best != ""
}

func typeKeys(t schema.ObjectType) []string {
	keys := []string{strings.ToLower(t.Name)}
	if s := strings.TrimSuffix(keys[0], "s"); s != keys[0] && len(s) >= 3 {
		keys = append(keys, s)
	}
	for _, l := range []string{t.Label, t.PluralLabel} {
		if l != "" {
			keys = append(keys, strings.ToLower(l))
		}
	}
	return keys
}

// FieldHint returns the attribute whose display or API name appears in the
// message as a whole word, preferring the longest match.
func FieldHint(message string, entry *schema.Entry) (schema.Attribute, bool) {
	if entry == nil {
		return schema.Attribute{}, false
	}
	lower := strings.ToLower(message)

	var best schema.Attribute
	bestLen := 0
	for _, a := range entry.Attributes {
		if a.APIName == ppm.IdentityField {
			continue
		}
		for _, key := range []string{a.DisplayName, a.APIName} {
			k := strings.ToLower(key)
			if len(k) < 3 || len(k) <= bestLen {
				continue
			}
			if containsWord(lower, k) {
				best, bestLen = a, len(k)
			}
		}
	}
	return best, bestLen > 0
}

func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func (g *Generator) buildSystemPrompt(objectType string, entry *schema.Entry, contextSummary string) string {
	var sb strings.Builder

	sb.WriteString(`You translate requests about a project portfolio management system into a single JSON plan.

## Reply Format
Reply with exactly one JSON object and nothing else:
{"action": "query|create|update|delete|analyze|describe|help",
 "objectType": "<api object name>",
 "method": "GET|POST|PATCH|DELETE",
 "endpoint": "/<objectType>[/{id}]",
 "queryParams": {"filter": "...", "limit": "...", "fields": "...", "sort": "..."},
 "body": {},
 "groupByField": "<apiName, analyze only>",
 "targetName": "<code or name of the record to update or delete>",
 "parentName": "<name of the parent record for nested endpoints such as /projects/{projectId}/tasks>",
 "explanation": "<one sentence>"}

## Query Rules
- Filters use the syntax filter=((field = 'value')); combine clauses with "and" / "or"
- Supported operators: =, !=, >, <, >=, <=, in, notIn. There is no "like" or substring operator
- The backend returns at most 500 records per call; never request a larger limit
- To count records use limit=1 and read the returned total
- Use apiName values from the field mapping below, never display names
- Use "analyze" with groupByField for distributions, breakdowns and "by <field>" requests
- Use "describe" for questions about available fields
`)

	sb.WriteString(fmt.Sprintf("\n## Conversation Context\n%s\n", contextSummary))

	sb.WriteString(fmt.Sprintf("\n## Target Object\n- **Name**: %s\n", objectType))
	if entry.Label != "" {
		sb.WriteString(fmt.Sprintf("- **Label**: %s\n", entry.Label))
	}
	if entry.IsCustom {
		sb.WriteString("- **Custom object**: yes\n")
	}

	if len(entry.Attributes) > 0 {
		sb.WriteString("\n## Field Mapping (displayName -> apiName)\n")
		attrs := append([]schema.Attribute(nil), entry.Attributes...)
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].DisplayName < attrs[j].DisplayName })
		for _, a := range attrs {
			marker := ""
			if a.IsLookup {
				marker = " (lookup)"
			}
			sb.WriteString(fmt.Sprintf("- %s -> %s [%s]%s\n", a.DisplayName, a.APIName, a.DataType, marker))
		}
	}

	if groupable := schema.GroupableFields(entry); len(groupable) > 0 {
		names := make([]string, 0, len(groupable))
		for _, a := range groupable {
			names = append(names, a.APIName)
		}
		sb.WriteString(fmt.Sprintf("\n## Groupable Fields\n%s\n", strings.Join(names, ", ")))
	}

	return sb.String()
}

var (
	analyzePhrase  = regexp.MustCompile(`\b(?:by|per|distribution|breakdown|group(?:ed)?|por|distribuci[oó]n)\b`)
	countPhrase    = regexp.MustCompile(`^(?:how many|count|cu[aá]nt[oa]s)\b`)
	describePhrase = regexp.MustCompile(`\b(?:describe|fields|attributes|schema|campos)\b`)
)

// fallbackPlan covers the common read requests when no reasoning service is
// configured.
func fallbackPlan(lower, objectType string, hint schema.Attribute, hasHint bool) *Plan {
	p := &Plan{ObjectType: objectType}
	switch {
	case describePhrase.MatchString(lower):
		p.Action = ActionDescribe
		p.Explanation = "Describe the fields of " + objectType
	case hasHint && analyzePhrase.MatchString(lower):
		p.Action = ActionAnalyze
		p.GroupByField = hint.APIName
		p.Explanation = fmt.Sprintf("Distribution of %s by %s", objectType, hint.DisplayName)
	case countPhrase.MatchString(lower):
		p.Action = ActionQuery
		p.QueryParams = map[string]string{"limit": "1"}
		p.Explanation = "Count " + objectType
	default:
		p.Action = ActionQuery
		p.QueryParams = map[string]string{"limit": "20"}
		p.Explanation = "List " + objectType
	}
	p.applyDefaults()
	return p
}
