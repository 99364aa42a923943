package agents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/state"
	"github.com/oliveapp/olive-agents/internal/testutil"
)

// scriptedLLM replays canned replies in order and records every request.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []ai.Request
}

func (s *scriptedLLM) Generate(ctx context.Context, req ai.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", ai.ErrEmptyResponse
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newStore(t *testing.T) *state.Store {
	t.Helper()
	db, closeFn := testutil.OpenTestDB(t)
	t.Cleanup(closeFn)
	return state.NewStore(db)
}

func newRunContext(store *state.Store, llm ai.Generator, userID string, now time.Time, cfg map[string]any, prev any) *RunContext {
	rc := &RunContext{
		UserID: userID,
		Config: cfg,
		Now:    now,
		Data:   store,
		LLM:    llm,
		Logger: zerolog.Nop(),
	}
	if prev != nil {
		data, err := json.Marshal(prev)
		if err != nil {
			panic(err)
		}
		rc.PreviousState = data
	}
	return rc
}

func mustTask(t *testing.T, store *state.Store, task state.Task) state.Task {
	t.Helper()
	created, err := store.CreateTask(context.Background(), task)
	require.NoError(t, err)
	return created
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrFloat(v float64) *float64 { return &v }
