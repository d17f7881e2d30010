package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/ppm/ppmtest"
	"github.com/ahmetk3436/ppmchat/internal/reasoning"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

type stubReasoner struct {
	reply  string
	err    error
	system string
	user   string
	calls  int
}

func (s *stubReasoner) Complete(_ context.Context, system, user string) (string, error) {
	s.calls++
	s.system, s.user = system, user
	return s.reply, s.err
}

func newTestGenerator(r reasoning.Reasoner) *Generator {
	api := ppmtest.New()
	api.Results("/describe",
		map[string]any{"resourceName": "projects", "label": "Project", "pluralLabel": "Projects"},
		map[string]any{"resourceName": "tasks", "label": "Task"},
		map[string]any{"resourceName": "custRisk", "label": "Risk", "isCustom": true},
	)
	api.Results("/describe?isCustom=true",
		map[string]any{"resourceName": "custRisk", "label": "Risk"},
	)
	api.Object("/describe/projects", map[string]any{
		"resourceName": "projects",
		"label":        "Project",
		"attributes": []any{
			map[string]any{"apiAttributeName": "name", "displayName": "Name", "dataType": "string"},
			map[string]any{"apiAttributeName": "status", "displayName": "Status", "dataType": "lookup"},
			map[string]any{"apiAttributeName": "priority", "displayName": "Priority", "dataType": "lookup"},
			map[string]any{"apiAttributeName": "businessUnit", "displayName": "Business Unit", "dataType": "lookup"},
			map[string]any{"apiAttributeName": "unit", "displayName": "Unit", "dataType": "string"},
		},
	})
	return NewGenerator(schema.NewCache(api, time.Hour), r)
}

func TestGenerate_FieldHintOverridesReasoning(t *testing.T) {
	r := &stubReasoner{reply: `Here you go: {"action":"analyze","objectType":"projects","groupByField":"priority","explanation":"x"}`}
	g := newTestGenerator(r)

	plan, err := g.Generate(context.Background(), "show project distribution by status", conversation.State{})
	require.NoError(t, err)

	assert.Equal(t, ActionAnalyze, plan.Action)
	assert.Equal(t, "status", plan.GroupByField)
	assert.Equal(t, "GET", plan.Method)
	assert.Equal(t, "/projects", plan.Endpoint)
	assert.Equal(t, 1, r.calls)
	assert.Contains(t, r.system, "Status -> status [lookup]")
	assert.Contains(t, r.system, "limit=1")
	assert.Contains(t, r.system, "500")
}

func TestGenerate_HintIgnoredForQueries(t *testing.T) {
	r := &stubReasoner{reply: `{"action":"query","queryParams":{"filter":"((status = 'Active'))","limit":10}}`}
	g := newTestGenerator(r)

	plan, err := g.Generate(context.Background(), "list projects with status active", conversation.State{})
	require.NoError(t, err)
	assert.Equal(t, ActionQuery, plan.Action)
	assert.Empty(t, plan.GroupByField)
	assert.Equal(t, "10", plan.QueryParams["limit"])
	assert.Equal(t, "((status = 'Active'))", plan.QueryParams["filter"])
}

func TestGenerate_ParseError(t *testing.T) {
	g := newTestGenerator(&stubReasoner{reply: "Sorry, I cannot help with that."})
	_, err := g.Generate(context.Background(), "list projects", conversation.State{})

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reply, "Sorry")

	g = newTestGenerator(&stubReasoner{reply: `{"action":"teleport"}`})
	_, err = g.Generate(context.Background(), "list projects", conversation.State{})
	require.True(t, errors.As(err, &pe))
}

func TestGenerate_ReasonerFailure(t *testing.T) {
	g := newTestGenerator(&stubReasoner{err: errors.New("rate limited")})
	_, err := g.Generate(context.Background(), "list projects", conversation.State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerate_FallbackWithoutReasoner(t *testing.T) {
	g := newTestGenerator(&stubReasoner{err: reasoning.ErrNotConfigured})

	plan, err := g.Generate(context.Background(), "projects by status", conversation.State{})
	require.NoError(t, err)
	assert.Equal(t, ActionAnalyze, plan.Action)
	assert.Equal(t, "status", plan.GroupByField)

	plan, err = g.Generate(context.Background(), "how many projects are there", conversation.State{})
	require.NoError(t, err)
	assert.Equal(t, ActionQuery, plan.Action)
	assert.Equal(t, "1", plan.QueryParams["limit"])

	plan, err = g.Generate(context.Background(), "describe projects", conversation.State{})
	require.NoError(t, err)
	assert.Equal(t, ActionDescribe, plan.Action)
	assert.Equal(t, "/describe/projects", plan.Endpoint)
}

func TestGenerate_HelpSkipsReasoner(t *testing.T) {
	r := &stubReasoner{}
	g := newTestGenerator(r)
	plan, err := g.Generate(context.Background(), "Help", conversation.State{})
	require.NoError(t, err)
	assert.Equal(t, ActionHelp, plan.Action)
	assert.Equal(t, 0, r.calls)
}

func TestResolveObjectType(t *testing.T) {
	g := newTestGenerator(&stubReasoner{})
	withLast := conversation.State{LastQuery: &conversation.QueryMemory{ObjectType: "tasks"}}
	withPage := conversation.State{
		LastQuery:   &conversation.QueryMemory{ObjectType: "tasks"},
		CurrentPage: &conversation.PageRef{ObjectType: "custRisk"},
	}
	withPageOnly := conversation.State{CurrentPage: &conversation.PageRef{ObjectType: "custRisk"}}

	tests := []struct {
		name  string
		msg   string
		state conversation.State
		want  string
	}{
		{"custom object named", "list every risk", conversation.State{}, "custRisk"},
		{"standard singular", "show project Apollo", withLast, "projects"},
		{"standard plural", "list all tasks", conversation.State{}, "tasks"},
		{"context phrase uses last", "describe it", withPage, "tasks"},
		{"no object prefers last over page", "how many are overdue", withPage, "tasks"},
		{"page without last", "how many are overdue", withPageOnly, "custRisk"},
		{"no object uses last", "how many are overdue", withLast, "tasks"},
		{"default", "hello there", conversation.State{}, DefaultObjectType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.ResolveObjectType(context.Background(), tt.msg, tt.state))
		})
	}
}

func TestFieldHint_LongestWholeWord(t *testing.T) {
	entry := &schema.Entry{Attributes: []schema.Attribute{
		{APIName: "unit", DisplayName: "Unit"},
		{APIName: "businessUnit", DisplayName: "Business Unit"},
		{APIName: "stat", DisplayName: "Stat"},
	}}

	hint, ok := FieldHint("projects by business unit", entry)
	require.True(t, ok)
	assert.Equal(t, "businessUnit", hint.APIName)

	_, ok = FieldHint("projects by status", entry)
	assert.False(t, ok)
}
