package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oliveapp/olive-agents/internal/ledger"
)

type ScheduleReport struct {
	Schedule   string `json:"schedule"`
	Dispatched int    `json:"dispatched"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// RunScheduled dispatches, one at a time, every enabled activation whose
// agent carries the schedule label. Activations with a run already in
// flight are counted as skipped.
func (d *Dispatcher) RunScheduled(ctx context.Context, schedule string) (ScheduleReport, error) {
	schedule = strings.TrimSpace(schedule)
	report := ScheduleReport{Schedule: schedule}
	if schedule == "" {
		return report, fmt.Errorf("%w: schedule is required", ErrInvalidRequest)
	}
	if d.deps.Activations == nil {
		return report, nil
	}
	if _, err := d.deps.Ledger.ReconcileStale(ctx); err != nil {
		return report, err
	}
	due, err := d.deps.Activations.EnabledForSchedule(ctx, schedule)
	if err != nil {
		return report, err
	}

	for _, act := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := d.Run(ctx, Request{AgentID: act.SkillID, UserID: act.UserID})
		switch {
		case errors.Is(err, ledger.ErrRunInProgress):
			report.Skipped++
		case err != nil:
			report.Failed++
			d.logger.Warn().Err(err).Str("agent_id", act.SkillID).Str("user_id", act.UserID).Msg("scheduled dispatch failed")
		case result.Status == ledger.StatusFailed:
			report.Failed++
		default:
			report.Dispatched++
		}
	}
	d.logger.Info().
		Str("schedule", schedule).
		Int("dispatched", report.Dispatched).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("scheduled tick finished")
	return report, nil
}
