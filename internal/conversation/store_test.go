package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := NewStore(30 * time.Minute)
	s.now = clock.Now
	return s, clock
}

func analyzed() QueryMemory {
	total := 3
	return QueryMemory{
		ObjectType:         "projects",
		ObjectLabel:        "Project",
		Action:             "analyze",
		TotalCount:         &total,
		GroupByField:       "status",
		GroupByDisplayName: "Status",
		ChartData: map[string][]ChartPoint{
			"status": {{Label: "Active", Value: 2}, {Label: "Completed", Value: 1}},
		},
	}
}

func TestAppendTurn_KeepsNewest20(t *testing.T) {
	s, _ := newTestStore()
	for i := 0; i < 27; i++ {
		s.AppendTurn("s1", Turn{Role: RoleUser, Message: fmt.Sprintf("msg %d", i)})
	}

	st, ok := s.Get("s1")
	require.True(t, ok)
	require.Len(t, st.History, MaxHistory)
	assert.Equal(t, "msg 7", st.History[0].Message)
	assert.Equal(t, "msg 26", st.History[19].Message)
}

func TestSweepExpired(t *testing.T) {
	s, clock := newTestStore()
	s.AppendTurn("stale", Turn{Role: RoleUser, Message: "hello"})
	s.AppendTurn("fresh", Turn{Role: RoleUser, Message: "hello"})

	clock.Advance(29 * time.Minute)
	s.AppendTurn("fresh", Turn{Role: RoleUser, Message: "still here"})

	clock.Advance(time.Minute + time.Second)
	removed := s.SweepExpired()

	assert.Equal(t, 1, removed)
	_, ok := s.Get("stale")
	assert.False(t, ok)
	_, ok = s.Get("fresh")
	assert.True(t, ok)
}

func TestSweepExpired_SessionWithoutTurnsUsesCreation(t *testing.T) {
	s, clock := newTestStore()
	s.GetOrCreate("idle")

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 0, s.SweepExpired())

	clock.Advance(time.Second)
	assert.Equal(t, 1, s.SweepExpired())
	assert.Equal(t, 0, s.Len())
}

func TestUpdateLastQuery_TimestampMonotonic(t *testing.T) {
	s, clock := newTestStore()
	q := analyzed()
	q.Timestamp = clock.Now().Add(time.Hour)
	s.UpdateLastQuery("s1", q)

	later := analyzed()
	later.Timestamp = clock.Now()
	s.UpdateLastQuery("s1", later)

	st, _ := s.Get("s1")
	assert.Equal(t, clock.Now().Add(time.Hour), st.LastQuery.Timestamp)
}

func TestUpdateLastQuery_GroupingSetTogether(t *testing.T) {
	s, _ := newTestStore()
	q := analyzed()
	q.ChartData = nil
	s.UpdateLastQuery("s1", q)

	st, _ := s.Get("s1")
	assert.Empty(t, st.LastQuery.GroupByField)
	assert.Empty(t, st.LastQuery.GroupByDisplayName)
	assert.False(t, s.CanDrillDown("s1"))
}

func TestGet_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore()
	s.UpdateLastQuery("s1", analyzed())

	st, _ := s.Get("s1")
	st.LastQuery.ChartData["status"][0].Label = "Mutated"
	st.LastQuery.GroupByField = "priority"

	again, _ := s.Get("s1")
	assert.Equal(t, "status", again.LastQuery.GroupByField)
	assert.Equal(t, "Active", again.LastQuery.ChartData["status"][0].Label)
}

func TestDrillDownHelpers(t *testing.T) {
	s, _ := newTestStore()
	assert.False(t, s.CanDrillDown("s1"))

	s.UpdateLastQuery("s1", analyzed())
	assert.True(t, s.CanDrillDown("s1"))
	assert.Equal(t, []string{"Active", "Completed"}, s.DrillDownOptions("s1"))

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"active", "Active", true},
		{"the completed ones", "Completed", true},
		{"act", "Active", true},
		{"cancelled", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := s.FindDrillDownMatch("s1", tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	req := s.BuildDrillDownRequest("s1", "Active")
	require.NotNil(t, req)
	assert.Equal(t, DrillDownRequest{Field: "status", Value: "Active", ObjectType: "projects"}, *req)
	assert.Nil(t, s.BuildDrillDownRequest("other", "Active"))
}

func TestMatchLabel_LongestWins(t *testing.T) {
	got, ok := MatchLabel([]string{"Active", "Inactive", "Active - On Hold"}, "show the active - on hold projects")
	require.True(t, ok)
	assert.Equal(t, "Active - On Hold", got)
}

func TestMatchLabel_Spanish(t *testing.T) {
	labels := []string{"Active", "Inactive", "Completed", "Not Started", "High"}
	tests := []struct {
		value string
		want  string
	}{
		{"activos", "Active"},
		{"las inactivas", "Inactive"},
		{"completados", "Completed"},
		{"no iniciados", "Not Started"},
		{"alta", "High"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := MatchLabel(labels, tt.value)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := MatchLabel(labels, "cancelados")
	assert.False(t, ok)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "los active", NormalizeValue("Los Activos"))
	assert.Equal(t, "in progress", NormalizeValue("en curso"))
	assert.Equal(t, "active ones", NormalizeValue("active ones"))
}

func TestMergePreferences(t *testing.T) {
	s, _ := newTestStore()
	s.MergePreferences("s1", map[string]string{"language": "es", "limit": "10"})
	prefs := s.MergePreferences("s1", map[string]string{"limit": ""})
	assert.Equal(t, map[string]string{"language": "es"}, prefs)
}

func TestContextSummary(t *testing.T) {
	s, _ := newTestStore()
	assert.Equal(t, "No previous queries in this conversation.", s.ContextSummary("nobody"))

	s.UpdateLastQuery("s1", analyzed())
	for _, m := range []string{"one", "two", "three", "four"} {
		s.AppendTurn("s1", Turn{Role: RoleUser, Message: m})
		s.AppendTurn("s1", Turn{Role: RoleAssistant, Message: "ok"})
	}

	summary := s.ContextSummary("s1")
	assert.Contains(t, summary, "Last query: Project (projects), action analyze")
	assert.Contains(t, summary, "Grouped by: Status (status)")
	assert.Contains(t, summary, "Drill-down values: Active, Completed")
	assert.Contains(t, summary, "Total records: 3")
	assert.Contains(t, summary, "- two\n- three\n- four")
	assert.NotContains(t, summary, "- one")
}

func TestSweeper_StartStop(t *testing.T) {
	s, clock := newTestStore()
	s.GetOrCreate("old")
	clock.Advance(time.Hour)

	sw := NewSweeper(s, 5*time.Millisecond)
	sw.Start()
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	sw.Stop()
}

func TestStore_ConcurrentSessions(t *testing.T) {
	s, _ := newTestStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%4)
			s.AppendTurn(id, Turn{Role: RoleUser, Message: "hi"})
			s.UpdateLastQuery(id, analyzed())
			s.SweepExpired()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, s.Len())
}
