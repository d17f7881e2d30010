package executor

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmetk3436/ppmchat/internal/audit"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
)

// GeneratedCode returns a record code for creates that name none.
func GeneratedCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "AUTO-" + strings.ToUpper(id[:8])
}

// mutate runs create, update and delete plans. The session's last query is
// left alone so a chart stays drillable after an edit.
func (e *Executor) mutate(ctx context.Context, sessionID string, plan *planner.Plan) (*Result, error) {
	entry := audit.Entry{
		SessionID:  sessionID,
		Action:     string(plan.Action),
		ObjectType: plan.ObjectType,
		Target:     plan.TargetName,
		Method:     plan.Method,
		Endpoint:   plan.Endpoint,
	}

	res, err := e.runMutation(ctx, plan, &entry)
	entry.Success = err == nil
	if err != nil {
		entry.Error = err.Error()
	}
	audit.Safe(ctx, e.audit, entry)
	return res, err
}

func (e *Executor) runMutation(ctx context.Context, plan *planner.Plan, entry *audit.Entry) (*Result, error) {
	if e.readOnly {
		return nil, ErrReadOnly
	}

	body := maps.Clone(plan.Body)
	if body == nil {
		body = map[string]any{}
	}
	entry.Details = body
	noun := e.schemas.Label(plan.ObjectType)

	switch plan.Action {
	case planner.ActionCreate:
		if code, _ := body["code"].(string); strings.TrimSpace(code) == "" {
			body["code"] = GeneratedCode()
		}
		path, err := e.resolvePlaceholders(ctx, plan)
		if err != nil {
			return nil, err
		}
		entry.Endpoint = path
		resp, err := e.api.Post(ctx, path, body)
		if err != nil {
			return nil, err
		}
		id := createdID(resp)
		entry.RecordID = id
		entry.Target = fmt.Sprint(body["code"])

		title := fmt.Sprint(body["code"])
		if name := ppm.FormatValue(body["name"]); name != "" {
			title = fmt.Sprintf("%s (%s)", name, body["code"])
		}
		return &Result{
			Action:     planner.ActionCreate,
			ObjectType: plan.ObjectType,
			Reply:      fmt.Sprintf("Created %s %s.", noun, title),
			RecordID:   id,
			TotalCount: 1,
		}, nil

	case planner.ActionUpdate, planner.ActionDelete:
		rec, err := e.findRecord(ctx, plan.ObjectType, plan.TargetName)
		if err != nil {
			return nil, err
		}
		id := recordID(rec)
		entry.RecordID = id
		entry.Target = recordTitle(rec)

		path := plan.Endpoint
		if path == "" || !strings.Contains(path, "{") {
			path = "/" + plan.ObjectType + "/{id}"
		}
		path = strings.ReplaceAll(path, "{id}", id)
		if strings.Contains(path, "{") {
			resolved, err := e.resolvePlaceholders(ctx, &planner.Plan{
				ObjectType: plan.ObjectType,
				Endpoint:   path,
				ParentName: plan.ParentName,
			})
			if err != nil {
				return nil, err
			}
			path = resolved
		}
		entry.Endpoint = path

		if plan.Action == planner.ActionDelete {
			entry.Method = http.MethodDelete
			if _, err := e.api.Delete(ctx, path); err != nil {
				return nil, err
			}
			return &Result{
				Action:     planner.ActionDelete,
				ObjectType: plan.ObjectType,
				Reply:      fmt.Sprintf("Deleted %s %s.", noun, recordTitle(rec)),
				TotalCount: 1,
			}, nil
		}

		entry.Method = http.MethodPatch
		if len(body) == 0 {
			return nil, fmt.Errorf("nothing to change on %s", recordTitle(rec))
		}
		if _, err := e.api.Patch(ctx, path, body); err != nil {
			return nil, err
		}
		return &Result{
			Action:     planner.ActionUpdate,
			ObjectType: plan.ObjectType,
			Reply:      fmt.Sprintf("Updated %s %s: %s.", noun, recordTitle(rec), describeBody(body)),
			RecordID:   id,
			TotalCount: 1,
		}, nil
	}
	return nil, fmt.Errorf("unsupported mutation %q", plan.Action)
}

func createdID(resp *ppm.Response) string {
	if resp == nil {
		return ""
	}
	if id := ppm.FormatValue(resp.Raw[ppm.IdentityField]); id != "" {
		return id
	}
	if len(resp.Results) > 0 {
		return recordID(resp.Results[0])
	}
	return ""
}

func describeBody(body map[string]any) string {
	flat := make(map[string]string, len(body))
	for k, v := range body {
		flat[k] = ppm.FormatValue(v)
	}
	return describeFilters(flat)
}
