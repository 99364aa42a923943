package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/prompt"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

const (
	energyTaskSuggesterID = "energy-task-suggester"
	connectionOura        = "oura"
)

// EnergyTaskSuggester orders today's tasks by the user's readiness. Its
// output is folded into the morning briefing, so it never notifies.
type EnergyTaskSuggester struct{}

func (EnergyTaskSuggester) Descriptor() Descriptor {
	return Descriptor{SkillID: energyTaskSuggesterID, StateVersion: 1}
}

func (EnergyTaskSuggester) Run(ctx context.Context, rc *RunContext) (Outcome, error) {
	connected, err := rc.Data.HasConnection(ctx, rc.UserID, connectionOura)
	if err != nil {
		return Outcome{}, upstream("load connection", err)
	}
	if !connected {
		return Skipped("oura not connected"), nil
	}

	today := rc.Today(ctx)
	readings, err := rc.Data.HealthReadings(ctx, rc.UserID, today)
	if err != nil {
		return Outcome{}, upstream("load health readings", err)
	}
	var reading *state.HealthReading
	for i := range readings {
		if readings[i].Day.Equal(today) {
			reading = &readings[i]
			break
		}
	}
	if reading == nil {
		return Skipped("no health data for today"), nil
	}

	tasks, err := rc.Data.ListTasks(ctx, rc.UserID)
	if err != nil {
		return Outcome{}, upstream("load tasks", err)
	}
	due := tasksDueOn(tasks, today, rc.Location(ctx))
	if len(due) == 0 {
		return Skipped("no tasks due today"), nil
	}

	lines := make([]string, 0, len(due))
	for _, task := range due {
		line := task.Summary
		if task.Priority != "" {
			line += " (priority " + task.Priority + ")"
		}
		lines = append(lines, line)
	}

	b := prompt.NewBuilder()
	b.Add(prompt.Block{ID: "instructions", Priority: prompt.PriorityInstructions, Content: "Suggest the order to tackle today's tasks given this energy profile. Put demanding work where energy is highest and keep it under 80 words."})
	b.Section("scores", prompt.PriorityContext, "Today's scores", []string{
		"Readiness: " + formatScore(reading.ReadinessScore),
		"Sleep: " + formatScore(reading.SleepScore),
		"Stress: " + formatScore(reading.StressScore),
	})
	b.Section("tasks", prompt.PriorityData, "Tasks due today", lines)

	suggestion, err := rc.generate(ctx, ai.Request{
		System:      "You are a supportive productivity coach.",
		Prompt:      b.Build(),
		Temperature: 0.5,
		MaxTokens:   400,
	})
	if err != nil {
		return Outcome{}, err
	}
	suggestion = strings.TrimSpace(suggestion)

	return Completed(suggestion, map[string]any{
		"readiness":   reading.ReadinessScore,
		"sleep_score": reading.SleepScore,
		"stress":      reading.StressScore,
		"suggestion":  suggestion,
		"task_count":  len(due),
		"channel":     schema.MessageBriefing,
	}), nil
}

func formatScore(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f", *v)
}
