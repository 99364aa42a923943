package agentcontext

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	agentIDKey contextKey = "agent_id"
	userIDKey  contextKey = "user_id"
)

// RunScope identifies the dispatch a context belongs to.
type RunScope struct {
	RunID   string
	AgentID string
	UserID  string
}

func WithRun(ctx context.Context, scope RunScope) context.Context {
	if scope.RunID != "" {
		ctx = context.WithValue(ctx, runIDKey, scope.RunID)
	}
	if scope.AgentID != "" {
		ctx = context.WithValue(ctx, agentIDKey, scope.AgentID)
	}
	if scope.UserID != "" {
		ctx = context.WithValue(ctx, userIDKey, scope.UserID)
	}
	return ctx
}

func RunFromContext(ctx context.Context) RunScope {
	if ctx == nil {
		return RunScope{}
	}
	var scope RunScope
	scope.RunID, _ = ctx.Value(runIDKey).(string)
	scope.AgentID, _ = ctx.Value(agentIDKey).(string)
	scope.UserID, _ = ctx.Value(userIDKey).(string)
	return scope
}

func RunIDFromContext(ctx context.Context) string {
	return RunFromContext(ctx).RunID
}

// Logger returns base with the run fields of ctx attached.
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	scope := RunFromContext(ctx)
	lc := base.With()
	if scope.RunID != "" {
		lc = lc.Str("run_id", scope.RunID)
	}
	if scope.AgentID != "" {
		lc = lc.Str("agent_id", scope.AgentID)
	}
	if scope.UserID != "" {
		lc = lc.Str("user_id", scope.UserID)
	}
	return lc.Logger()
}
