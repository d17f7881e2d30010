// Package planner turns a user message into a structured Plan for the
// executor, using schema knowledge, conversation context and the reasoning
// service.
package planner

import (
	"fmt"
	"net/http"
	"strings"
)

type Action string

const (
	ActionQuery     Action = "query"
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionAnalyze   Action = "analyze"
	ActionDescribe  Action = "describe"
	ActionHelp      Action = "help"
	ActionDrillDown Action = "drilldown"
)

var validActions = map[Action]bool{
	ActionQuery: true, ActionCreate: true, ActionUpdate: true, ActionDelete: true,
	ActionAnalyze: true, ActionDescribe: true, ActionHelp: true, ActionDrillDown: true,
}

// IsMutation reports whether the action writes to the backend.
func (a Action) IsMutation() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Plan is one validated remote operation.
type Plan struct {
	Action       Action            `json:"action"`
	ObjectType   string            `json:"objectType"`
	Method       string            `json:"method"`
	Endpoint     string            `json:"endpoint"`
	QueryParams  map[string]string `json:"queryParams,omitempty"`
	Body         map[string]any    `json:"body,omitempty"`
	GroupByField string            `json:"groupByField,omitempty"`
	FilterField  string            `json:"filterField,omitempty"`
	FilterValue  string            `json:"filterValue,omitempty"`
	// TargetName identifies the record to update or delete by code or name.
	TargetName string `json:"targetName,omitempty"`
	// ParentName resolves a {parentId} placeholder in Endpoint.
	ParentName  string `json:"parentName,omitempty"`
	Explanation string `json:"explanation"`
}

// ParseError means the reasoning reply held no usable plan.
type ParseError struct {
	Reply string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse plan: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// planFromObject validates a decoded reply and fills defaults.
func planFromObject(obj map[string]any, objectType string) (*Plan, error) {
	action := Action(strings.ToLower(stringField(obj, "action")))
	if !validActions[action] {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if action == ActionDrillDown {
		// Drill-downs only come from the follow-up path.
		action = ActionQuery
	}

	p := &Plan{
		Action:       action,
		ObjectType:   stringField(obj, "objectType", "object", "resource"),
		Method:       strings.ToUpper(stringField(obj, "method")),
		Endpoint:     stringField(obj, "endpoint", "path"),
		GroupByField: stringField(obj, "groupByField", "groupBy"),
		FilterField:  stringField(obj, "filterField"),
		FilterValue:  stringField(obj, "filterValue"),
		TargetName:   stringField(obj, "targetName", "target", "recordName"),
		ParentName:   stringField(obj, "parentName", "parent"),
		Explanation:  stringField(obj, "explanation"),
	}
	if p.ObjectType == "" {
		p.ObjectType = objectType
	}

	if qp, ok := obj["queryParams"].(map[string]any); ok {
		p.QueryParams = make(map[string]string, len(qp))
		for k, v := range qp {
			p.QueryParams[k] = scalarString(v)
		}
	}
	if body, ok := obj["body"].(map[string]any); ok {
		p.Body = body
	}

	p.applyDefaults()
	return p, nil
}

func (p *Plan) applyDefaults() {
	if p.Method == "" {
		switch p.Action {
		case ActionCreate:
			p.Method = http.MethodPost
		case ActionUpdate:
			p.Method = http.MethodPatch
		case ActionDelete:
			p.Method = http.MethodDelete
		default:
			p.Method = http.MethodGet
		}
	}
	if p.Endpoint == "" {
		switch p.Action {
		case ActionDescribe:
			p.Endpoint = "/describe/" + p.ObjectType
		case ActionUpdate, ActionDelete:
			p.Endpoint = "/" + p.ObjectType + "/{id}"
		case ActionHelp:
		default:
			p.Endpoint = "/" + p.ObjectType
		}
	}
	if p.Endpoint != "" && !strings.HasPrefix(p.Endpoint, "/") {
		p.Endpoint = "/" + p.Endpoint
	}
	if p.QueryParams == nil {
		p.QueryParams = map[string]string{}
	}
}

func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
