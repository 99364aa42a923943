package agentcontext

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestRunScopeRoundTrip(t *testing.T) {
	ctx := WithRun(context.Background(), RunScope{RunID: "r1", AgentID: "smart-bill-reminder", UserID: "u1"})
	scope := RunFromContext(ctx)
	if scope.RunID != "r1" || scope.AgentID != "smart-bill-reminder" || scope.UserID != "u1" {
		t.Fatalf("unexpected scope: %+v", scope)
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty run id")
	}
}

func TestLoggerAddsRunFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithRun(context.Background(), RunScope{RunID: "r1", UserID: "u1"})
	logger := Logger(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte(`"run_id":"r1"`)) || !bytes.Contains([]byte(out), []byte(`"user_id":"u1"`)) {
		t.Fatalf("missing run fields: %s", out)
	}
	if bytes.Contains([]byte(out), []byte(`agent_id`)) {
		t.Fatalf("unexpected agent_id field: %s", out)
	}
}
