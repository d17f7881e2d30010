package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetk3436/ppmchat/internal/audit"
	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/ppm/ppmtest"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

type fixture struct {
	api   *ppmtest.API
	store *conversation.Store
	audit *audit.MemoryRecorder
	exec  *Executor
}

type staticHelp string

func (h staticHelp) HelpText(string) string { return string(h) }

func newFixture(t *testing.T, readOnly bool) *fixture {
	t.Helper()
	api := ppmtest.New()
	api.Object("/describe/projects", map[string]any{
		"resourceName": "projects",
		"label":        "Project",
		"attributes": []any{
			map[string]any{"apiAttributeName": "_internalId", "displayName": "ID", "dataType": "integer", "isReadOnly": true},
			map[string]any{"apiAttributeName": "status", "displayName": "Status", "dataType": "lookup", "isRequired": true},
			map[string]any{"apiAttributeName": "priority", "displayName": "Priority", "dataType": "lookup"},
			map[string]any{"apiAttributeName": "description", "displayName": "Description", "dataType": "clob"},
		},
	})

	store := conversation.NewStore(time.Hour)
	rec := audit.NewMemoryRecorder(10)
	exec := New(api, schema.NewCache(api, time.Hour), store, staticHelp("help text"), rec, readOnly)
	return &fixture{api: api, store: store, audit: rec, exec: exec}
}

func filterOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Query().Get("filter")
}

func project(id int, status string) map[string]any {
	return map[string]any{
		"_internalId": float64(id),
		"code":        fmt.Sprintf("PRJ-%03d", id),
		"name":        fmt.Sprintf("Project %d", id),
		"status":      status,
	}
}

// serveProjects answers /projects, honouring status equality filters.
func serveProjects(f *fixture, records ...map[string]any) {
	f.api.Handle("GET", "/projects", func(endpoint string, _ any) (*ppm.Response, error) {
		filter := filterOf(endpoint)
		var out []map[string]any
		for _, r := range records {
			if filter == "" || filter == ppm.EqualsFilter("status", fmt.Sprint(r["status"])) {
				out = append(out, r)
			}
		}
		return &ppm.Response{StatusCode: 200, Results: out, TotalCount: len(out)}, nil
	})
}

func analyzePlan(field string) *planner.Plan {
	return &planner.Plan{
		Action:       planner.ActionAnalyze,
		ObjectType:   "projects",
		Method:       "GET",
		Endpoint:     "/projects",
		GroupByField: field,
		QueryParams:  map[string]string{},
	}
}

func TestAnalyze_StatusDistribution(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Active"), project(2, "Active"), project(3, "Completed"))

	res, err := f.exec.Execute(context.Background(), "s1", analyzePlan("status"))
	require.NoError(t, err)

	assert.Equal(t, []conversation.ChartPoint{
		{Label: "Active", Value: 2},
		{Label: "Completed", Value: 1},
	}, res.Chart.Data)
	assert.Contains(t, res.Reply, "Active: 2 (66.7%)")
	assert.Contains(t, res.Reply, "Completed: 1 (33.3%)")
	assert.Equal(t, "status", res.Chart.GroupByField)
	assert.True(t, res.Chart.DrillDownEnabled)
	assert.Equal(t, "lookup", res.Chart.FieldMetadata.DataType)

	calls := f.api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/describe/projects", calls[0].Endpoint)
	u, err := url.Parse(calls[1].Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "_internalId,status", u.Query().Get("fields"))
	assert.Equal(t, "500", u.Query().Get("limit"))

	st, ok := f.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "status", st.LastQuery.GroupByField)
	assert.Equal(t, 3, *st.LastQuery.TotalCount)
	assert.True(t, f.store.CanDrillDown("s1"))
}

func TestAnalyze_HonoursPlannedFilter(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Active"), project(2, "Active"), project(3, "Completed"))

	plan := analyzePlan("status")
	plan.FilterField, plan.FilterValue = "status", "Active"
	res, err := f.exec.Execute(context.Background(), "s1", plan)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, map[string]string{"status": "Active"}, res.Filters)

	plan = analyzePlan("status")
	plan.Endpoint = "/projects?filter=((status = 'Completed'))"
	res, err = f.exec.Execute(context.Background(), "s2", plan)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)

	st, _ := f.store.Get("s2")
	assert.Equal(t, map[string]string{"status": "Completed"}, st.LastQuery.Filters)
}

func TestAnalyze_DisplayNameAndNoValueBucket(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f,
		map[string]any{"_internalId": 1.0, "priority": map[string]any{"displayValue": "High"}},
		map[string]any{"_internalId": 2.0, "priority": nil},
		map[string]any{"_internalId": 3.0, "priority": ""},
	)

	res, err := f.exec.Execute(context.Background(), "s1", analyzePlan("PRIORITY"))
	require.NoError(t, err)
	assert.Equal(t, []conversation.ChartPoint{
		{Label: ppm.NoValueLabel, Value: 2},
		{Label: "High", Value: 1},
	}, res.Chart.Data)
}

func TestAnalyze_UnknownFieldListsAlternatives(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.exec.Execute(context.Background(), "s1", analyzePlan("nonexistent_field"))

	var fnf *FieldNotFoundError
	require.ErrorAs(t, err, &fnf)
	assert.Equal(t, []string{"status", "priority"}, fnf.Alternatives)
	assert.Equal(t, 1, f.api.CallCount(""), "only the schema is fetched")
	_, ok := f.store.Get("s1")
	assert.False(t, ok)
}

func TestDrillDown_ReplacesFiltersAndKeepsChart(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Active"), project(2, "Active"), project(3, "Completed"))
	ctx := context.Background()

	_, err := f.exec.Execute(ctx, "s1", analyzePlan("status"))
	require.NoError(t, err)

	res, err := f.exec.DrillDown(ctx, "s1", "active", "show me the active ones")
	require.NoError(t, err)

	assert.Equal(t, planner.ActionDrillDown, res.Action)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, map[string]string{"status": "Active"}, res.Filters)
	assert.Contains(t, res.Reply, "Found 2 projects with Status = Active")

	calls := f.api.Calls()
	assert.Equal(t, "((status = 'Active'))", filterOf(calls[len(calls)-1].Endpoint))

	st, _ := f.store.Get("s1")
	assert.Equal(t, map[string]string{"status": "Active"}, st.LastQuery.Filters)
	assert.Equal(t, "drilldown", st.LastQuery.Action)
	assert.True(t, f.store.CanDrillDown("s1"))

	_, err = f.exec.DrillDown(ctx, "s1", "completed", "and the completed?")
	require.NoError(t, err)
	st, _ = f.store.Get("s1")
	assert.Equal(t, map[string]string{"status": "Completed"}, st.LastQuery.Filters)
}

func TestDrillDown_ScansRawMessage(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Not Started"), project(2, "Started"))
	ctx := context.Background()

	_, err := f.exec.Execute(ctx, "s1", analyzePlan("status"))
	require.NoError(t, err)

	res, err := f.exec.DrillDown(ctx, "s1", "those", "list those that are not started")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "Not Started"}, res.Filters)
}

func TestDrillDown_NoMatchMakesNoCall(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Active"), project(2, "Completed"))
	ctx := context.Background()

	_, err := f.exec.Execute(ctx, "s1", analyzePlan("status"))
	require.NoError(t, err)
	before := f.api.CallCount("")

	_, err = f.exec.DrillDown(ctx, "s1", "cancelled", "show me the cancelled ones")

	var amb *DrillDownAmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.ElementsMatch(t, []string{"Active", "Completed"}, amb.Labels)
	assert.Equal(t, before, f.api.CallCount(""))
}

func TestGroupingRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	statuses := []string{"Active", "Active", "On Hold", "Completed", "", "Active", "On Hold"}
	var records []map[string]any
	for i, s := range statuses {
		records = append(records, project(i+1, s))
	}
	serveProjects(f, records...)
	ctx := context.Background()

	res, err := f.exec.Execute(ctx, "s1", analyzePlan("status"))
	require.NoError(t, err)

	sum := 0
	for _, p := range res.Chart.Data {
		sum += p.Value
	}
	assert.Equal(t, res.TotalCount, sum)
	assert.Equal(t, len(statuses), sum)

	for _, p := range res.Chart.Data {
		_, err := f.exec.DrillDown(ctx, "s1", p.Label, "")
		require.NoError(t, err, p.Label)

		calls := f.api.Calls()
		assert.Equal(t, ppm.EqualsFilter("status", p.Label), filterOf(calls[len(calls)-1].Endpoint))
	}
}

func TestQuery_RendersAndRemembers(t *testing.T) {
	f := newFixture(t, false)
	var records []map[string]any
	for i := 1; i <= 20; i++ {
		records = append(records, project(i, "Active"))
	}
	f.api.Handle("GET", "/projects", func(string, any) (*ppm.Response, error) {
		return &ppm.Response{StatusCode: 200, Results: records, TotalCount: 20}, nil
	})

	plan := &planner.Plan{
		Action:      planner.ActionQuery,
		ObjectType:  "projects",
		Endpoint:    "/projects",
		QueryParams: map[string]string{"limit": "9000", "filter": "((status = 'Active'))"},
	}
	res, err := f.exec.Execute(context.Background(), "s1", plan)
	require.NoError(t, err)

	assert.Equal(t, 16, strings.Count(res.Reply, "\n"))
	assert.Contains(t, res.Reply, "• Project 1 (PRJ-001) · Active")
	assert.True(t, strings.HasSuffix(res.Reply, "+5 more"))

	u, _ := url.Parse(f.api.Calls()[0].Endpoint)
	assert.Equal(t, "500", u.Query().Get("limit"))

	st, _ := f.store.Get("s1")
	assert.Equal(t, map[string]string{"status": "Active"}, st.LastQuery.Filters)
	assert.Equal(t, 20, *st.LastQuery.TotalCount)
	assert.Equal(t, "query", st.LastQuery.Action)
}

func TestQuery_EmbeddedQueryString(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Active"), project(2, "Completed"))

	res, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:     planner.ActionQuery,
		ObjectType: "projects",
		Endpoint:   "/projects?filter=((status = 'Active'))&limit=1000",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
	assert.Equal(t, map[string]string{"status": "Active"}, res.Filters)

	calls := f.api.Calls()
	require.Len(t, calls, 1)
	u, err := url.Parse(calls[0].Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "/projects", u.Path)
	assert.Equal(t, []string{"500"}, u.Query()["limit"])
	assert.Equal(t, "((status = 'Active'))", u.Query().Get("filter"))

	st, _ := f.store.Get("s1")
	assert.Equal(t, map[string]string{"status": "Active"}, st.LastQuery.Filters)
}

func TestQuery_CountRendersBareNumber(t *testing.T) {
	f := newFixture(t, false)
	f.api.Handle("GET", "/projects", func(string, any) (*ppm.Response, error) {
		return &ppm.Response{StatusCode: 200, Results: []map[string]any{project(1, "Active")}, TotalCount: 42}, nil
	})

	res, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:      planner.ActionQuery,
		ObjectType:  "projects",
		Endpoint:    "/projects",
		QueryParams: map[string]string{"limit": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "There are 42 projects.", res.Reply)
}

func TestQuery_ResolvesParentPlaceholder(t *testing.T) {
	f := newFixture(t, false)
	f.api.Handle("GET", "/projects", func(endpoint string, _ any) (*ppm.Response, error) {
		if filterOf(endpoint) != "" {
			return &ppm.Response{StatusCode: 200}, nil
		}
		return &ppm.Response{StatusCode: 200, Results: []map[string]any{
			{"_internalId": 6.0, "code": "PRJ-6", "name": "Apollo Moonshot"},
			{"_internalId": 7.0, "code": "PRJ-7", "name": "Apollo"},
		}}, nil
	})
	f.api.Results("/projects/7/tasks", map[string]any{"_internalId": 70.0, "name": "Design"})

	res, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:     planner.ActionQuery,
		ObjectType: "tasks",
		Endpoint:   "/projects/{projectId}/tasks",
		ParentName: "apollo",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "• Design")
}

func TestQuery_FailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, false)
	serveProjects(f, project(1, "Active"))
	ctx := context.Background()
	_, err := f.exec.Execute(ctx, "s1", analyzePlan("status"))
	require.NoError(t, err)
	before, _ := f.store.Get("s1")

	f.api.Fail("GET", "/tasks", &ppm.RemoteCallError{StatusCode: 500, Kind: ppm.KindOther})
	_, err = f.exec.Execute(ctx, "s1", &planner.Plan{Action: planner.ActionQuery, ObjectType: "tasks", Endpoint: "/tasks"})
	require.Error(t, err)

	after, _ := f.store.Get("s1")
	assert.Equal(t, before.LastQuery, after.LastQuery)

	_, err = f.exec.Execute(ctx, "s1", &planner.Plan{Action: planner.ActionQuery, ObjectType: "tasks", Endpoint: "/tasks/{taskId}/notes", ParentName: "nope"})
	require.Error(t, err)
	after, _ = f.store.Get("s1")
	assert.Equal(t, before.LastQuery, after.LastQuery)
}

func TestCreate_GeneratesCodeAndAudits(t *testing.T) {
	f := newFixture(t, false)
	var posted map[string]any
	f.api.Handle("POST", "/projects", func(_ string, body any) (*ppm.Response, error) {
		posted = body.(map[string]any)
		return &ppm.Response{StatusCode: 201, Raw: map[string]any{"_internalId": 5001.0}}, nil
	})

	res, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:     planner.ActionCreate,
		ObjectType: "projects",
		Method:     "POST",
		Endpoint:   "/projects",
		Body:       map[string]any{"name": "Apollo"},
	})
	require.NoError(t, err)

	code, _ := posted["code"].(string)
	assert.Regexp(t, `^AUTO-[0-9A-F]{8}$`, code)
	assert.Equal(t, "5001", res.RecordID)
	assert.Contains(t, res.Reply, "Created Project Apollo")

	logs, total, err := f.audit.List(context.Background(), audit.Query{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "5001", logs[0].RecordID)

	_, ok := f.store.Get("s1")
	assert.False(t, ok, "mutations do not touch the last query")
}

func TestUpdate_ResolvesTargetByCode(t *testing.T) {
	f := newFixture(t, false)
	f.api.Handle("GET", "/projects", func(endpoint string, _ any) (*ppm.Response, error) {
		if filterOf(endpoint) == "((code = 'PRJ-007'))" {
			return &ppm.Response{StatusCode: 200, Results: []map[string]any{project(7, "Active")}}, nil
		}
		return &ppm.Response{StatusCode: 200}, nil
	})
	var patched string
	f.api.Handle("PATCH", "/projects/7", func(endpoint string, _ any) (*ppm.Response, error) {
		patched = endpoint
		return &ppm.Response{StatusCode: 200}, nil
	})

	res, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:     planner.ActionUpdate,
		ObjectType: "projects",
		Endpoint:   "/projects/{id}",
		TargetName: "PRJ-007",
		Body:       map[string]any{"status": "Completed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/projects/7", patched)
	assert.Equal(t, "7", res.RecordID)
}

func TestDelete_UnknownRecord(t *testing.T) {
	f := newFixture(t, false)
	f.api.Handle("GET", "/projects", func(endpoint string, _ any) (*ppm.Response, error) {
		if filterOf(endpoint) != "" {
			return &ppm.Response{StatusCode: 200}, nil
		}
		return &ppm.Response{StatusCode: 200, Results: []map[string]any{project(1, "Active")}}, nil
	})

	_, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:     planner.ActionDelete,
		ObjectType: "projects",
		TargetName: "Zeppelin",
	})

	var rnf *RecordNotFoundError
	require.ErrorAs(t, err, &rnf)
	assert.Equal(t, "Zeppelin", rnf.Name)
	assert.Zero(t, f.api.CallCount("DELETE"))

	logs, _, _ := f.audit.List(context.Background(), audit.Query{})
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

func TestMutation_ReadOnly(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.exec.Execute(context.Background(), "s1", &planner.Plan{
		Action:     planner.ActionCreate,
		ObjectType: "projects",
		Body:       map[string]any{"name": "Apollo"},
	})
	assert.True(t, errors.Is(err, ErrReadOnly))
	assert.Zero(t, f.api.CallCount(""))
}

func TestDescribe_AndHelp(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.exec.Execute(ctx, "s1", &planner.Plan{Action: planner.ActionDescribe, ObjectType: "projects"})
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Project has 3 fields (1 required, 2 lookups).")
	assert.Contains(t, res.Reply, "• Status (status): lookup [lookup] *required")
	assert.NotContains(t, res.Reply, "_internalId")

	res, err = f.exec.Execute(ctx, "s1", &planner.Plan{Action: planner.ActionHelp})
	require.NoError(t, err)
	assert.Equal(t, "help text", res.Reply)

	_, ok := f.store.Get("s1")
	assert.False(t, ok)
}

func TestParseFilters(t *testing.T) {
	assert.Nil(t, parseFilters(""))
	assert.Equal(t,
		map[string]string{"status": "Active", "owner": "O'Neil", "manager": ppm.NoValueLabel},
		parseFilters(`((status = 'Active') and (owner = 'O\'Neil') and (manager = null) and (budget > 5))`),
	)
}
