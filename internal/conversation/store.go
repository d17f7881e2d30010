package conversation

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetk3436/ppmchat/internal/metrics"
)

// maxSummaryValues caps the drill-down values listed in ContextSummary.
const maxSummaryValues = 10

// Store owns every session's State. All reads return copies; all writes go
// through the methods below under one mutex.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*State),
		ttl:      ttl,
		now:      time.Now,
	}
}

// session returns the live state for id, creating it. Callers hold s.mu.
func (s *Store) session(id string) *State {
	st, ok := s.sessions[id]
	if !ok {
		st = &State{SessionID: id, CreatedAt: s.now()}
		s.sessions[id] = st
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		slog.Debug("Session created", "session_id", id)
	}
	return st
}

func (s *Store) GetOrCreate(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session(id).clone()
}

// Get returns a copy of the session without creating it.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return State{}, false
	}
	return st.clone(), true
}

// UpdateLastQuery replaces the session's last query. The stored timestamp
// never moves backwards, and grouping metadata is dropped unless both the
// field and its chart data are present.
func (s *Store) UpdateLastQuery(id string, q QueryMemory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session(id)
	mem := q.clone()

	now := s.now()
	if mem.Timestamp.IsZero() || mem.Timestamp.Before(now) {
		mem.Timestamp = now
	}
	if st.LastQuery != nil && mem.Timestamp.Before(st.LastQuery.Timestamp) {
		mem.Timestamp = st.LastQuery.Timestamp
	}

	if mem.GroupByField == "" || len(mem.ChartData[mem.GroupByField]) == 0 {
		mem.GroupByField = ""
		mem.GroupByDisplayName = ""
		mem.ChartData = nil
	}

	st.LastQuery = mem
}

// AppendTurn records a turn and keeps only the newest MaxHistory entries.
func (s *Store) AppendTurn(id string, t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session(id)
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}
	st.History = append(st.History, t)
	if over := len(st.History) - MaxHistory; over > 0 {
		st.History = append([]Turn(nil), st.History[over:]...)
	}
}

func (s *Store) SetCurrentPage(id string, page PageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(id).CurrentPage = &page
}

// MergePreferences overlays prefs onto the session's preferences. Empty values
// delete the key.
func (s *Store) MergePreferences(id string, prefs map[string]string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.session(id)
	if st.Preferences == nil {
		st.Preferences = make(map[string]string, len(prefs))
	}
	for k, v := range prefs {
		if v == "" {
			delete(st.Preferences, k)
			continue
		}
		st.Preferences[k] = v
	}
	return maps.Clone(st.Preferences)
}

// Clear destroys a session. It reports whether the session existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return ok
}

// SweepExpired removes sessions idle for longer than the TTL and returns how
// many were removed.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, st := range s.sessions {
		if now.Sub(st.LastActivity()) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.SessionsExpiredTotal.Add(float64(removed))
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		slog.Info("Expired sessions swept", "removed", removed, "remaining", len(s.sessions))
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ─── Drill-down helpers ─────────────────────────────────────────────────────

// DrillDownRequest narrows a previous distribution to one bucket.
type DrillDownRequest struct {
	Field      string
	Value      string
	ObjectType string
}

// CanDrillDown reports whether the last query produced a distribution.
func (s *Store) CanDrillDown(id string) bool {
	st, ok := s.Get(id)
	return ok && st.LastQuery != nil && st.LastQuery.GroupByField != "" && len(st.LastQuery.ChartData) > 0
}

// DrillDownOptions lists the bucket labels of the last distribution.
func (s *Store) DrillDownOptions(id string) []string {
	st, ok := s.Get(id)
	if !ok {
		return nil
	}
	points := st.LastQuery.Distribution()
	labels := make([]string, 0, len(points))
	for _, p := range points {
		labels = append(labels, p.Label)
	}
	return labels
}

// FindDrillDownMatch maps text onto a bucket label: a case-insensitive exact
// match first, then containment in either direction. Among several
// containment matches the longest label wins, then the alphabetically first.
func (s *Store) FindDrillDownMatch(id, text string) (string, bool) {
	return MatchLabel(s.DrillDownOptions(id), text)
}

// MatchLabel is the label matching used by FindDrillDownMatch. Spanish
// values are retried in their English form.
func MatchLabel(labels []string, text string) (string, bool) {
	if label, ok := matchLabel(labels, text); ok {
		return label, true
	}
	if en := NormalizeValue(text); en != strings.ToLower(strings.TrimSpace(text)) {
		return matchLabel(labels, en)
	}
	return "", false
}

func matchLabel(labels []string, text string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return "", false
	}

	for _, l := range labels {
		if strings.ToLower(l) == needle {
			return l, true
		}
	}

	var candidates []string
	for _, l := range labels {
		hay := strings.ToLower(l)
		if hay == "" {
			continue
		}
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}

// BuildDrillDownRequest returns the filter for one bucket of the last
// distribution, or nil when there is nothing to drill into.
func (s *Store) BuildDrillDownRequest(id, value string) *DrillDownRequest {
	st, ok := s.Get(id)
	if !ok || st.LastQuery == nil || st.LastQuery.GroupByField == "" || value == "" {
		return nil
	}
	return &DrillDownRequest{
		Field:      st.LastQuery.GroupByField,
		Value:      value,
		ObjectType: st.LastQuery.ObjectType,
	}
}

// ContextSummary renders the session for the reasoning prompt.
func (s *Store) ContextSummary(id string) string {
	st, ok := s.Get(id)
	if !ok {
		return "No previous queries in this conversation."
	}
	return Summarize(&st)
}

// Summarize renders a state snapshot as plain text.
func Summarize(st *State) string {
	var sb strings.Builder

	if q := st.LastQuery; q != nil {
		label := q.ObjectLabel
		if label == "" {
			label = q.ObjectType
		}
		fmt.Fprintf(&sb, "Last query: %s (%s), action %s\n", label, q.ObjectType, q.Action)

		if q.GroupByField != "" {
			name := q.GroupByDisplayName
			if name == "" {
				name = q.GroupByField
			}
			fmt.Fprintf(&sb, "Grouped by: %s (%s)\n", name, q.GroupByField)

			labels := make([]string, 0, maxSummaryValues)
			for i, p := range q.Distribution() {
				if i == maxSummaryValues {
					break
				}
				labels = append(labels, p.Label)
			}
			if len(labels) > 0 {
				fmt.Fprintf(&sb, "Drill-down values: %s\n", strings.Join(labels, ", "))
			}
		}

		if len(q.Filters) > 0 {
			keys := make([]string, 0, len(q.Filters))
			for k := range q.Filters {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s = %s", k, q.Filters[k]))
			}
			fmt.Fprintf(&sb, "Active filters: %s\n", strings.Join(parts, ", "))
		}

		if q.TotalCount != nil {
			fmt.Fprintf(&sb, "Total records: %d\n", *q.TotalCount)
		}
	}

	if st.CurrentPage != nil && st.CurrentPage.ObjectType != "" {
		fmt.Fprintf(&sb, "Current page: %s\n", st.CurrentPage.ObjectType)
	}

	if recent := st.RecentUserMessages(3); len(recent) > 0 {
		sb.WriteString("Recent user messages:\n")
		for _, m := range recent {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}

	if sb.Len() == 0 {
		return "No previous queries in this conversation."
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ─── Sweeper ────────────────────────────────────────────────────────────────

// Sweeper runs SweepExpired on a fixed interval.
type Sweeper struct {
	store    *Store
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (sw *Sweeper) Start() {
	go sw.loop()
	slog.Info("Session sweeper started", "interval", sw.interval.String())
}

func (sw *Sweeper) Stop() {
	close(sw.stop)
	<-sw.done
	slog.Info("Session sweeper stopped")
}

func (sw *Sweeper) loop() {
	defer close(sw.done)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.store.SweepExpired()
		case <-sw.stop:
			return
		}
	}
}
