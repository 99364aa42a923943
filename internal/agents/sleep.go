package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/prompt"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

const (
	sleepCoachID          = "sleep-optimization-coach"
	sleepAllGood          = "ALL_GOOD"
	sleepMinDays          = 3
	sleepKeptTips         = 5
	sleepCooldownDays     = 2
	defaultSleepLookback  = 7
	sensitivityAll        = "all"
	sensitivityActionable = "actionable_only"
)

type SleepCoach struct{}

func (SleepCoach) Descriptor() Descriptor {
	return Descriptor{SkillID: sleepCoachID, StateVersion: 1}
}

type sleepState struct {
	SentTips    []string `json:"sent_tips,omitempty"`
	LastTipDate string   `json:"last_tip_date,omitempty"`
}

func (SleepCoach) Run(ctx context.Context, rc *RunContext) (Outcome, error) {
	connected, err := rc.Data.HasConnection(ctx, rc.UserID, connectionOura)
	if err != nil {
		return Outcome{}, upstream("load connection", err)
	}
	if !connected {
		return Skipped("oura not connected"), nil
	}

	var prev sleepState
	if err := rc.DecodeState(&prev); err != nil {
		rc.Logger.Warn().Err(err).Msg("ignoring unreadable sleep state")
		prev = sleepState{}
	}

	lookback := rc.Int("lookback_days", defaultSleepLookback)
	if lookback < sleepMinDays {
		lookback = defaultSleepLookback
	}
	today := rc.Today(ctx)
	readings, err := rc.Data.HealthReadings(ctx, rc.UserID, today.AddDate(0, 0, -lookback))
	if err != nil {
		return Outcome{}, upstream("load health readings", err)
	}
	var sleepDays []state.HealthReading
	for _, r := range readings {
		if r.SleepScore != nil || r.SleepHours != nil {
			sleepDays = append(sleepDays, r)
		}
	}
	if len(sleepDays) < sleepMinDays {
		return Skipped("not enough sleep data"), nil
	}

	if rc.String("sensitivity", sensitivityAll) == sensitivityActionable && prev.LastTipDate != "" {
		if last, err := time.Parse(state.DayLayout, prev.LastTipDate); err == nil && daysBetween(last, today) < sleepCooldownDays {
			return Skipped("tip cooldown active"), nil
		}
	}

	lines := make([]string, 0, len(sleepDays))
	for _, r := range sleepDays {
		lines = append(lines, fmt.Sprintf("%s: sleep score %s, %s hours, HRV %s",
			r.Day.Format(state.DayLayout), formatScore(r.SleepScore), formatHours(r.SleepHours), formatScore(r.HRV)))
	}

	b := prompt.NewBuilder()
	b.Addf("instructions", prompt.PriorityInstructions,
		"Give one specific, actionable sleep tip in at most two sentences based on the last %d nights. If sleep looks healthy and there is nothing worth changing, reply with exactly %s.", len(sleepDays), sleepAllGood)
	b.Section("nights", prompt.PriorityData, "Recent nights", lines)
	b.Section("sent", prompt.PriorityHistory, "Tips already sent (do not repeat these)", prev.SentTips)

	tip, err := rc.generate(ctx, ai.Request{
		System:      "You are a warm, evidence-based sleep coach.",
		Prompt:      b.Build(),
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return Outcome{}, err
	}
	tip = strings.TrimSpace(tip)
	if strings.HasPrefix(strings.ToUpper(strings.TrimLeft(tip, "*_`\"' ")), sleepAllGood) {
		return Skipped("sleep looks good"), nil
	}
	for _, sent := range prev.SentTips {
		if normalizeTip(sent) == normalizeTip(tip) {
			return Skipped("no new tip"), nil
		}
	}

	next := sleepState{
		SentTips:    append(append([]string(nil), prev.SentTips...), tip),
		LastTipDate: today.Format(state.DayLayout),
	}
	if len(next.SentTips) > sleepKeptTips {
		next.SentTips = next.SentTips[len(next.SentTips)-sleepKeptTips:]
	}

	return Completed(tip, map[string]any{
		"nights": len(sleepDays),
	}).WithNotify(Notification{
		Title:       "Sleep tip",
		MessageType: schema.MessageSleepTip,
		Priority:    schema.PriorityNormal,
	}).WithState(next), nil
}

func normalizeTip(tip string) string {
	return strings.Join(strings.Fields(strings.ToLower(tip)), " ")
}

func formatHours(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f", *v)
}
