package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder_RecordAndList(t *testing.T) {
	r := NewMemoryRecorder(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(ctx, Entry{
			SessionID:  "s1",
			Action:     "update",
			ObjectType: "projects",
			Target:     fmt.Sprintf("PRJ-%d", i),
			Success:    true,
			Details:    map[string]any{"i": i},
		}))
	}
	require.NoError(t, r.Record(ctx, Entry{SessionID: "s2", Action: "delete", ObjectType: "tasks"}))

	logs, total, err := r.List(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, "delete", logs[0].Action)
	assert.Equal(t, "PRJ-4", logs[1].Target)
	assert.JSONEq(t, `{"i":4}`, string(logs[1].Details))

	logs, total, err = r.List(ctx, Query{SessionID: "s1", PerPage: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, logs, 1)
	assert.Equal(t, "PRJ-3", logs[0].Target)

	logs, _, err = r.List(ctx, Query{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

type failingRecorder struct{ MemoryRecorder }

func (*failingRecorder) Record(context.Context, Entry) error { return fmt.Errorf("disk full") }

func TestSafe_SwallowsErrors(t *testing.T) {
	assert.NotPanics(t, func() {
		Safe(context.Background(), &failingRecorder{}, Entry{Action: "create"})
		Safe(context.Background(), nil, Entry{Action: "create"})
	})
}
