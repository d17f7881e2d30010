// Package executor runs plans against the PPM backend, shapes the results
// for the chat reply and records the outcome in the conversation store.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ahmetk3436/ppmchat/internal/audit"
	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

const (
	// DefaultLimit is the page size used when a plan asks for none.
	DefaultLimit = 100
	// maxListed caps the records rendered into a reply.
	maxListed = 15
)

var tracer = otel.Tracer("ppmchat.executor")

// HelpSource renders the help reply for a session.
type HelpSource interface {
	HelpText(sessionID string) string
}

// Result is the outcome of one executed plan.
type Result struct {
	Action     planner.Action
	ObjectType string
	Reply      string
	Records    []map[string]any
	TotalCount int
	// RecordID is set when the plan touched a single record.
	RecordID string
	Filters  map[string]string
	Chart    *ChartData
}

type Executor struct {
	api      ppm.API
	schemas  *schema.Cache
	store    *conversation.Store
	help     HelpSource
	audit    audit.Recorder
	readOnly bool
}

func New(api ppm.API, schemas *schema.Cache, store *conversation.Store, help HelpSource, recorder audit.Recorder, readOnly bool) *Executor {
	return &Executor{
		api:      api,
		schemas:  schemas,
		store:    store,
		help:     help,
		audit:    recorder,
		readOnly: readOnly,
	}
}

// Execute dispatches a plan on its action. Session state changes only after
// every remote call of the plan has succeeded.
func (e *Executor) Execute(ctx context.Context, sessionID string, plan *planner.Plan) (*Result, error) {
	ctx, span := tracer.Start(ctx, "executor.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("plan.action", string(plan.Action)),
		attribute.String("plan.object_type", plan.ObjectType),
	)

	var (
		res *Result
		err error
	)
	switch plan.Action {
	case planner.ActionQuery, planner.ActionDrillDown:
		res, err = e.query(ctx, sessionID, plan)
	case planner.ActionAnalyze:
		res, err = e.analyze(ctx, sessionID, plan)
	case planner.ActionCreate, planner.ActionUpdate, planner.ActionDelete:
		res, err = e.mutate(ctx, sessionID, plan)
	case planner.ActionDescribe:
		res, err = e.describe(ctx, plan)
	case planner.ActionHelp:
		res = e.helpResult(sessionID)
	default:
		err = fmt.Errorf("unsupported action %q", plan.Action)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("Plan failed",
			"session_id", sessionID,
			"action", plan.Action,
			"object_type", plan.ObjectType,
			"error", err,
		)
		return nil, err
	}
	slog.Info("Plan executed",
		"session_id", sessionID,
		"action", plan.Action,
		"object_type", plan.ObjectType,
		"total", res.TotalCount,
	)
	return res, nil
}

// ─── Query ──────────────────────────────────────────────────────────────────

func (e *Executor) query(ctx context.Context, sessionID string, plan *planner.Plan) (*Result, error) {
	path, err := e.resolvePlaceholders(ctx, plan)
	if err != nil {
		return nil, err
	}

	path, params := planParams(path, plan)
	limit := ppm.ClampLimit(params["limit"], DefaultLimit)
	params["limit"] = strconv.Itoa(limit)

	resp, err := e.api.Get(ctx, ppm.Endpoint(path, params))
	if err != nil {
		return nil, err
	}

	total := resp.TotalCount
	if total < len(resp.Results) {
		total = len(resp.Results)
	}
	filters := parseFilters(params["filter"])

	e.store.UpdateLastQuery(sessionID, conversation.QueryMemory{
		ObjectType:  plan.ObjectType,
		ObjectLabel: e.schemas.Label(plan.ObjectType),
		Action:      string(planner.ActionQuery),
		Filters:     filters,
		TotalCount:  &total,
	})

	res := &Result{
		Action:     planner.ActionQuery,
		ObjectType: plan.ObjectType,
		Records:    resp.Results,
		TotalCount: total,
		Filters:    filters,
	}
	noun := e.plural(plan.ObjectType)
	if limit == 1 {
		res.Reply = fmt.Sprintf("There are %d %s.", total, noun)
		if len(filters) > 0 {
			res.Reply = fmt.Sprintf("There are %d %s matching %s.", total, noun, describeFilters(filters))
		}
		return res, nil
	}
	res.Reply = renderRecords(fmt.Sprintf("Found %d %s", total, noun), resp.Results, total)
	return res, nil
}

// planParams merges the query string embedded in a planned endpoint with the
// plan's explicit parameters, which win on conflict. A structured filter
// field and value apply when neither carries a filter.
func planParams(endpoint string, plan *planner.Plan) (string, map[string]string) {
	path, params := ppm.SplitEndpoint(endpoint)
	if params == nil {
		params = make(map[string]string, len(plan.QueryParams)+1)
	}
	maps.Copy(params, plan.QueryParams)
	if params["filter"] == "" && plan.FilterField != "" && plan.FilterValue != "" {
		params["filter"] = ppm.EqualsFilter(plan.FilterField, plan.FilterValue)
	}
	return path, params
}

// DrillDown narrows the last distribution in the session to the bucket the
// follow-up names. The value is matched against the chart labels first, then
// the raw message is scanned for a label. No remote call is made when
// neither matches.
func (e *Executor) DrillDown(ctx context.Context, sessionID, value, rawMessage string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "executor.DrillDown")
	defer span.End()

	st, ok := e.store.Get(sessionID)
	if !ok || st.LastQuery == nil || st.LastQuery.GroupByField == "" {
		return nil, &DrillDownAmbiguousError{Value: value}
	}

	labels := make([]string, 0, len(st.LastQuery.Distribution()))
	for _, p := range st.LastQuery.Distribution() {
		labels = append(labels, p.Label)
	}

	label, ok := conversation.MatchLabel(labels, value)
	if !ok {
		label, ok = scanLabels(labels, rawMessage)
	}
	if !ok {
		err := &DrillDownAmbiguousError{Value: value, Labels: labels}
		span.RecordError(err)
		return nil, err
	}

	req := e.store.BuildDrillDownRequest(sessionID, label)
	if req == nil {
		return nil, &DrillDownAmbiguousError{Value: value, Labels: labels}
	}
	span.SetAttributes(
		attribute.String("drilldown.field", req.Field),
		attribute.String("drilldown.value", req.Value),
	)

	endpoint := ppm.Endpoint("/"+req.ObjectType, map[string]string{
		"filter": ppm.EqualsFilter(req.Field, req.Value),
		"limit":  strconv.Itoa(DefaultLimit),
	})
	resp, err := e.api.Get(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	total := resp.TotalCount
	if total < len(resp.Results) {
		total = len(resp.Results)
	}

	mem := *st.LastQuery
	mem.Action = string(planner.ActionDrillDown)
	mem.Filters = map[string]string{req.Field: req.Value}
	mem.TotalCount = &total
	mem.Timestamp = st.LastQuery.Timestamp
	e.store.UpdateLastQuery(sessionID, mem)

	fieldName := st.LastQuery.GroupByDisplayName
	if fieldName == "" {
		fieldName = req.Field
	}
	header := fmt.Sprintf("Found %d %s with %s = %s", total, e.plural(req.ObjectType), fieldName, req.Value)

	slog.Info("Drill-down executed",
		"session_id", sessionID,
		"object_type", req.ObjectType,
		"field", req.Field,
		"value", req.Value,
		"total", total,
	)
	return &Result{
		Action:     planner.ActionDrillDown,
		ObjectType: req.ObjectType,
		Reply:      renderRecords(header, resp.Results, total),
		Records:    resp.Results,
		TotalCount: total,
		Filters:    maps.Clone(mem.Filters),
	}, nil
}

// scanLabels finds a chart label written verbatim in the message. The
// longest label wins so "Not Started" beats "Started".
func scanLabels(labels []string, message string) (string, bool) {
	lower := strings.ToLower(message)
	best := ""
	for _, l := range labels {
		if l == "" || !strings.Contains(lower, strings.ToLower(l)) {
			continue
		}
		if len(l) > len(best) || (len(l) == len(best) && l < best) {
			best = l
		}
	}
	return best, best != ""
}

// ─── Describe / help ────────────────────────────────────────────────────────

func (e *Executor) describe(ctx context.Context, plan *planner.Plan) (*Result, error) {
	entry, err := e.schemas.GetSchema(ctx, plan.ObjectType)
	if err != nil {
		return nil, err
	}

	required, lookups := 0, 0
	var key, rest []schema.Attribute
	for _, a := range entry.Attributes {
		if a.IsRequired {
			required++
		}
		if a.IsLookup {
			lookups++
		}
		if strings.HasPrefix(a.APIName, "_") {
			continue
		}
		if a.IsRequired {
			key = append(key, a)
		} else {
			rest = append(rest, a)
		}
	}
	key = append(key, rest...)

	label := entry.Label
	if label == "" {
		label = e.schemas.Label(plan.ObjectType)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s has %d fields (%d required, %d lookups).\n", label, len(entry.Attributes), required, lookups))
	sb.WriteString("Key fields:\n")
	for i, a := range key {
		if i == maxListed {
			sb.WriteString(fmt.Sprintf("+%d more fields\n", len(key)-maxListed))
			break
		}
		line := fmt.Sprintf("• %s (%s): %s", a.DisplayName, a.APIName, a.DataType)
		if a.IsLookup {
			line += " [lookup]"
		}
		if a.IsRequired {
			line += " *required"
		}
		sb.WriteString(line + "\n")
	}

	return &Result{
		Action:     planner.ActionDescribe,
		ObjectType: plan.ObjectType,
		Reply:      strings.TrimRight(sb.String(), "\n"),
		TotalCount: len(entry.Attributes),
	}, nil
}

func (e *Executor) helpResult(sessionID string) *Result {
	text := "I can list, count and chart PPM records, describe objects and give you links."
	if e.help != nil {
		text = e.help.HelpText(sessionID)
	}
	return &Result{Action: planner.ActionHelp, Reply: text}
}

// plural is the noun used for an object type in replies.
func (e *Executor) plural(objectType string) string {
	for _, t := range e.schemas.ObjectTypes() {
		if t.Name != objectType || !t.IsCustom {
			continue
		}
		if t.PluralLabel != "" {
			return t.PluralLabel
		}
		return t.Label
	}
	return objectType
}

// ─── Filters ────────────────────────────────────────────────────────────────

var equalityClause = regexp.MustCompile(`\(\s*([A-Za-z_][\w.]*)\s*=\s*(?:'((?:[^'\\]|\\.)*)'|(null))\s*\)`)

// parseFilters extracts the field = value clauses of a filter expression.
// Other operators are not remembered.
func parseFilters(filter string) map[string]string {
	if filter == "" {
		return nil
	}
	out := make(map[string]string)
	for _, m := range equalityClause.FindAllStringSubmatch(filter, -1) {
		if m[3] != "" {
			out[m[1]] = ppm.NoValueLabel
			continue
		}
		out[m[1]] = strings.ReplaceAll(m[2], `\'`, "'")
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func describeFilters(filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s = %s", k, filters[k]))
	}
	return strings.Join(parts, " and ")
}
