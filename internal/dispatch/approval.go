package dispatch

import (
	"context"

	"github.com/oliveapp/olive-agents/internal/agents"
	"github.com/oliveapp/olive-agents/internal/ledger"
	"github.com/oliveapp/olive-agents/internal/schema"
)

// Approve completes a run held in awaiting_approval and delivers the
// notification it was holding back.
func (d *Dispatcher) Approve(ctx context.Context, runID string) (Result, error) {
	run, err := d.deps.Ledger.Get(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if run.Status != ledger.StatusAwaitingApproval {
		return Result{}, &ledger.StatusTransitionError{RunID: runID, From: run.Status, To: ledger.StatusCompleted}
	}
	if err := d.deps.Ledger.Complete(ctx, runID, nil, nil); err != nil {
		return Result{}, err
	}

	outcome := heldOutcome(run.Result)
	p := &pending{
		req: Request{AgentID: run.AgentID, UserID: run.UserID, CoupleID: run.CoupleID},
		run: run,
	}
	logger := d.logger.With().Str("run_id", run.ID).Str("agent_id", run.AgentID).Str("user_id", run.UserID).Logger()
	result := Result{
		RunID:   run.ID,
		AgentID: run.AgentID,
		Status:  ledger.StatusCompleted,
		Success: true,
		Outcome: outcome.Kind,
		Message: outcome.Message,
		Data:    outcome.Data,
	}
	if outcome.Notifies() {
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deliveryTimeout)
		result.Notified = d.deliver(deliverCtx, p, outcome, logger)
		cancel()
	}
	logger.Info().Int("notified", result.Notified).Msg("held run approved")
	return result, nil
}

// Cancel moves a running or held run to cancelled. A running agent still
// finishes, but its result is discarded and nothing is delivered.
func (d *Dispatcher) Cancel(ctx context.Context, runID, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	if err := d.deps.Ledger.Cancel(ctx, runID, reason); err != nil {
		return err
	}
	d.logger.Info().Str("run_id", runID).Str("reason", reason).Msg("run cancelled")
	return nil
}

// heldOutcome rebuilds the outcome a held run recorded.
func heldOutcome(record map[string]any) agents.Outcome {
	outcome := agents.Completed(schema.GetString(record, "message"), nil)
	if data, ok := record["data"].(map[string]any); ok {
		outcome.Data = data
	}
	if n, ok := record["notify"].(map[string]any); ok {
		outcome = outcome.WithNotify(agents.Notification{
			Title:       schema.GetString(n, "title"),
			MessageType: schema.GetString(n, "message_type"),
			Priority:    schema.Priority(schema.GetString(n, "priority")),
			Audience:    agents.Audience(schema.GetString(n, "audience")),
		})
	}
	return outcome
}
