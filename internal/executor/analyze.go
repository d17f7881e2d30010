package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

const (
	// maxSummaryBuckets caps the buckets written into the analyze reply.
	maxSummaryBuckets = 10
	maxAlternatives   = 15
)

// FieldOption is a groupable field offered next to a chart.
type FieldOption struct {
	APIName     string `json:"apiName"`
	DisplayName string `json:"displayName"`
	IsLookup    bool   `json:"isLookup"`
}

// ChartData is the chart payload returned with a distribution.
type ChartData struct {
	Type               string                    `json:"type"`
	Title              string                    `json:"title"`
	ObjectType         string                    `json:"objectType"`
	GroupByField       string                    `json:"groupByField"`
	GroupByDisplayName string                    `json:"groupByDisplayName"`
	Data               []conversation.ChartPoint `json:"data"`
	TotalCount         int                       `json:"totalCount"`
	GroupableFields    []FieldOption             `json:"groupableFields"`
	FieldMetadata      schema.Attribute          `json:"fieldMetadata"`
	DrillDownEnabled   bool                      `json:"drillDownEnabled"`
}

func (e *Executor) analyze(ctx context.Context, sessionID string, plan *planner.Plan) (*Result, error) {
	entry, err := e.schemas.GetSchema(ctx, plan.ObjectType)
	if err != nil {
		return nil, err
	}
	groupable := schema.GroupableFields(entry)

	attr, ok := entry.Attribute(plan.GroupByField)
	if plan.GroupByField == "" || !ok {
		return nil, &FieldNotFoundError{
			ObjectType:   plan.ObjectType,
			Field:        plan.GroupByField,
			Alternatives: alternatives(groupable),
		}
	}

	_, planned := planParams(plan.Endpoint, plan)
	params := map[string]string{
		"fields": ppm.IdentityField + "," + attr.APIName,
		"limit":  fmt.Sprint(ppm.MaxResults),
	}
	if f := planned["filter"]; f != "" {
		params["filter"] = f
	}
	resp, err := e.api.Get(ctx, ppm.Endpoint("/"+plan.ObjectType, params))
	if err != nil {
		return nil, err
	}

	points := Tally(resp.Results, attr.APIName)
	total := len(resp.Results)
	filters := parseFilters(params["filter"])

	e.store.UpdateLastQuery(sessionID, conversation.QueryMemory{
		ObjectType:         plan.ObjectType,
		ObjectLabel:        e.schemas.Label(plan.ObjectType),
		Action:             string(planner.ActionAnalyze),
		Filters:            filters,
		TotalCount:         &total,
		GroupByField:       attr.APIName,
		GroupByDisplayName: attr.DisplayName,
		ChartData:          map[string][]conversation.ChartPoint{attr.APIName: points},
	})

	noun := e.plural(plan.ObjectType)
	res := &Result{
		Action:     planner.ActionAnalyze,
		ObjectType: plan.ObjectType,
		TotalCount: total,
		Filters:    filters,
	}
	if total == 0 {
		res.Reply = fmt.Sprintf("No %s found to group by %s.", noun, attr.DisplayName)
		return res, nil
	}

	options := make([]FieldOption, 0, len(groupable))
	for _, a := range groupable {
		options = append(options, FieldOption{APIName: a.APIName, DisplayName: a.DisplayName, IsLookup: a.IsLookup})
	}
	title := fmt.Sprintf("%s by %s", capitalize(noun), attr.DisplayName)
	res.Chart = &ChartData{
		Type:               "bar",
		Title:              title,
		ObjectType:         plan.ObjectType,
		GroupByField:       attr.APIName,
		GroupByDisplayName: attr.DisplayName,
		Data:               points,
		TotalCount:         total,
		GroupableFields:    options,
		FieldMetadata:      attr,
		DrillDownEnabled:   true,
	}
	res.Reply = summarize(title, points, total)
	return res, nil
}

// Tally counts records per display value of field. Records without a value
// land in the "(No value)" bucket. Buckets are ordered by count, then label.
func Tally(records []map[string]any, field string) []conversation.ChartPoint {
	counts := make(map[string]int)
	for _, r := range records {
		label := strings.TrimSpace(ppm.FormatValue(r[field]))
		if label == "" {
			label = ppm.NoValueLabel
		}
		counts[label]++
	}

	points := make([]conversation.ChartPoint, 0, len(counts))
	for label, n := range counts {
		points = append(points, conversation.ChartPoint{Label: label, Value: n})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Value != points[j].Value {
			return points[i].Value > points[j].Value
		}
		return points[i].Label < points[j].Label
	})
	return points
}

func summarize(title string, points []conversation.ChartPoint, total int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d records):\n", title, total))
	for i, p := range points {
		if i == maxSummaryBuckets {
			sb.WriteString(fmt.Sprintf("+%d more values\n", len(points)-maxSummaryBuckets))
			break
		}
		pct := float64(p.Value) * 100 / float64(total)
		sb.WriteString(fmt.Sprintf("• %s: %d (%.1f%%)\n", p.Label, p.Value, pct))
	}
	sb.WriteString("Ask for any value to see its records.")
	return sb.String()
}

func alternatives(groupable []schema.Attribute) []string {
	out := make([]string, 0, maxAlternatives)
	for _, a := range groupable {
		if a.APIName == ppm.IdentityField {
			continue
		}
		if len(out) == maxAlternatives {
			break
		}
		out = append(out, a.APIName)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
