// Package conversation keeps per-session chat state: the last query and its
// distribution, recent turns, the page the user is on, and preferences.
package conversation

import (
	"maps"
	"time"
)

// MaxHistory is the number of turns kept per session.
const MaxHistory = 20

// DefaultTTL is how long a session may sit idle before it is swept.
const DefaultTTL = 30 * time.Minute

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChartPoint is one bucket of a value distribution.
type ChartPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// QueryMemory describes the most recent successful read in a session.
// GroupByField and ChartData are either both set or both empty.
type QueryMemory struct {
	ObjectType         string                  `json:"objectType"`
	ObjectLabel        string                  `json:"objectLabel"`
	Action             string                  `json:"action"`
	Filters            map[string]string       `json:"filters,omitempty"`
	TotalCount         *int                    `json:"totalCount,omitempty"`
	GroupByField       string                  `json:"groupByField,omitempty"`
	GroupByDisplayName string                  `json:"groupByDisplayName,omitempty"`
	ChartData          map[string][]ChartPoint `json:"chartData,omitempty"`
	Timestamp          time.Time               `json:"timestamp"`
}

// Distribution returns the chart buckets for the grouped field.
func (q *QueryMemory) Distribution() []ChartPoint {
	if q == nil || q.GroupByField == "" {
		return nil
	}
	return q.ChartData[q.GroupByField]
}

// PageRef is the backend UI page the user reported being on.
type PageRef struct {
	ObjectType string `json:"objectType,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	URL        string `json:"url,omitempty"`
}

type Turn struct {
	Timestamp  time.Time `json:"timestamp"`
	Role       Role      `json:"role"`
	Message    string    `json:"message"`
	Action     string    `json:"action,omitempty"`
	ObjectType string    `json:"objectType,omitempty"`
	Success    *bool     `json:"success,omitempty"`
}

type State struct {
	SessionID   string            `json:"sessionId"`
	LastQuery   *QueryMemory      `json:"lastQuery,omitempty"`
	CurrentPage *PageRef          `json:"currentPage,omitempty"`
	History     []Turn            `json:"history"`
	Preferences map[string]string `json:"preferences,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// LastActivity is the timestamp of the newest turn, or the creation time of
// a session without turns.
func (s *State) LastActivity() time.Time {
	if n := len(s.History); n > 0 {
		return s.History[n-1].Timestamp
	}
	return s.CreatedAt
}

// RecentUserMessages returns up to n of the newest user messages, oldest first.
func (s *State) RecentUserMessages(n int) []string {
	var out []string
	for i := len(s.History) - 1; i >= 0 && len(out) < n; i-- {
		if s.History[i].Role == RoleUser {
			out = append(out, s.History[i].Message)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *State) clone() State {
	out := *s
	out.LastQuery = s.LastQuery.clone()
	if s.CurrentPage != nil {
		page := *s.CurrentPage
		out.CurrentPage = &page
	}
	out.History = make([]Turn, len(s.History))
	for i, t := range s.History {
		out.History[i] = t
		if t.Success != nil {
			ok := *t.Success
			out.History[i].Success = &ok
		}
	}
	out.Preferences = maps.Clone(s.Preferences)
	return out
}

func (q *QueryMemory) clone() *QueryMemory {
	if q == nil {
		return nil
	}
	out := *q
	out.Filters = maps.Clone(q.Filters)
	if q.TotalCount != nil {
		n := *q.TotalCount
		out.TotalCount = &n
	}
	if q.ChartData != nil {
		out.ChartData = make(map[string][]ChartPoint, len(q.ChartData))
		for k, v := range q.ChartData {
			out.ChartData[k] = append([]ChartPoint(nil), v...)
		}
	}
	return &out
}
