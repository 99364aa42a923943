package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/prompt"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

const coupleSyncID = "weekly-couple-sync"

type CoupleSync struct{}

func (CoupleSync) Descriptor() Descriptor {
	return Descriptor{SkillID: coupleSyncID, StateVersion: 1}
}

type partnerWeek struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Completed int    `json:"completed"`
	Pending   int    `json:"pending"`
}

func (CoupleSync) Run(ctx context.Context, rc *RunContext) (Outcome, error) {
	couple, ok, err := rc.Couple(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !ok || couple.PartnerA == "" || couple.PartnerB == "" {
		return Skipped("no couple linked"), nil
	}

	since := rc.Now.Add(-7 * 24 * time.Hour)
	partners := []string{couple.PartnerA, couple.PartnerB}
	weeks := make([]partnerWeek, 0, len(partners))
	for i, userID := range partners {
		tasks, err := rc.Data.ListTasks(ctx, userID)
		if err != nil {
			return Outcome{}, upstream("load tasks", err)
		}
		name, err := rc.displayName(ctx, userID, fmt.Sprintf("Partner %d", i+1))
		if err != nil {
			return Outcome{}, err
		}
		weeks = append(weeks, summarizeWeek(userID, name, tasks, since))
	}

	lines := make([]string, 0, len(weeks))
	for _, w := range weeks {
		lines = append(lines, fmt.Sprintf("%s: %d completed this week, %d still open", w.Name, w.Completed, w.Pending))
	}
	b := prompt.NewBuilder()
	b.Addf("instructions", prompt.PriorityInstructions,
		"Write one short, warm weekly recap addressed to both %s and %s. Celebrate wins, mention what is still open without blame, and suggest one thing to do together. Under 100 words.",
		weeks[0].Name, weeks[1].Name)
	b.Section("week", prompt.PriorityData, "This week", lines)

	summary, err := rc.generate(ctx, ai.Request{
		System:      "You are Olive, a friendly assistant for couples sharing a household.",
		Prompt:      b.Build(),
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Completed(summary, map[string]any{
		"couple_id":  couple.ID,
		"partners":   weeks,
		"week_start": civilDay(since, rc.Location(ctx)).Format(state.DayLayout),
	}).WithNotify(Notification{
		Title:       "Your week together",
		MessageType: schema.MessageCoupleSummary,
		Priority:    schema.PriorityNormal,
		Audience:    AudienceCouple,
	}), nil
}

func summarizeWeek(userID, name string, tasks []state.Task, since time.Time) partnerWeek {
	w := partnerWeek{UserID: userID, Name: name}
	for _, task := range tasks {
		if !task.Completed {
			w.Pending++
			continue
		}
		if task.CompletedAt != nil && !task.CompletedAt.Before(since) {
			w.Completed++
		}
	}
	return w
}
