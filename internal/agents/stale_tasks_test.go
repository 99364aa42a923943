package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliveapp/olive-agents/internal/state"
)

func TestStaleTaskStrategistSelection(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -30)

	for i := 0; i < 17; i++ {
		mustTask(t, store, state.Task{UserID: "u1", Summary: fmt.Sprintf("Old task %02d", i), CreatedAt: old.Add(time.Duration(i) * time.Hour)})
	}
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Has due date", CreatedAt: old, DueDate: ptrTime(now.AddDate(0, 0, 3))})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Already done", CreatedAt: old, Completed: true})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Fresh task", CreatedAt: now.AddDate(0, 0, -2)})

	llm := &scriptedLLM{replies: []string{`{"items":[
		{"ref":"T1","action":"archive","reason":"No longer relevant"},
		{"ref":"T2","action":"BREAK_DOWN","reason":"Too big"},
		{"ref":"T3","action":"PROCRASTINATE","reason":"bad action"},
		{"ref":"T99","action":"DELEGATE","reason":"unknown ref"},
		{"ref":"T1","action":"DELEGATE","reason":"duplicate"}
	]}`}}

	out, err := StaleTaskStrategist{}.Run(context.Background(), newRunContext(store, llm, "u1", now, map[string]any{"staleness_days": 14}, nil))
	require.NoError(t, err)
	require.Equal(t, KindCompleted, out.Kind)
	assert.True(t, out.Notifies())

	require.Equal(t, 1, llm.callCount())
	req := llm.calls[0]
	assert.True(t, req.JSON)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)
	assert.Contains(t, req.Prompt, `T15: "Old task 14"`)
	assert.NotContains(t, req.Prompt, "T16")
	assert.NotContains(t, req.Prompt, "Old task 15")
	assert.NotContains(t, req.Prompt, "Has due date")
	assert.NotContains(t, req.Prompt, "Already done")
	assert.NotContains(t, req.Prompt, "Fresh task")

	assert.Equal(t, 15, out.Data["stale_count"])
	recs := out.Data["recommendations"].([]map[string]any)
	require.Len(t, recs, 2)
	assert.Equal(t, "ARCHIVE", recs[0]["action"])
	assert.Equal(t, "Old task 00", recs[0]["summary"])

	assert.Equal(t, "15 tasks have been waiting more than 14 days. Here's a plan:\n\n"+
		"Break it down:\n• Old task 01 — Too big\n\n"+
		"Archive:\n• Old task 00 — No longer relevant", out.Message)
}

func TestSelectStaleTasksCapAndOrder(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	var tasks []state.Task
	for i := 20; i > 0; i-- {
		tasks = append(tasks, state.Task{ID: fmt.Sprint(i), CreatedAt: now.AddDate(0, 0, -20-i)})
	}
	got := selectStaleTasks(tasks, now.AddDate(0, 0, -14))
	require.Len(t, got, staleMaxTasks)
	assert.Equal(t, "20", got[0].ID)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].CreatedAt.Before(got[i].CreatedAt))
	}
}

func TestStaleTaskStrategistSkipsWithoutStaleTasks(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Recent", CreatedAt: now.AddDate(0, 0, -1)})
	llm := &scriptedLLM{}

	out, err := StaleTaskStrategist{}.Run(context.Background(), newRunContext(store, llm, "u1", now, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, KindSkipped, out.Kind)
	assert.Equal(t, "no stale tasks", out.Message)
	assert.Zero(t, llm.callCount())
}

func TestStaleTaskStrategistLLMFailure(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Old", CreatedAt: now.AddDate(0, 0, -40)})
	llm := &scriptedLLM{err: errors.New("quota exceeded")}

	_, err := StaleTaskStrategist{}.Run(context.Background(), newRunContext(store, llm, "u1", now, nil, nil))
	require.Error(t, err)
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "llm", upErr.Op)
	assert.Contains(t, err.Error(), "quota exceeded")
}
