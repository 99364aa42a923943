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
	staleMaxTasks         = 15
	defaultStalenessDays  = 14
	staleTaskStrategistID = "stale-task-strategist"
)

// Stale task actions, in digest order.
var staleActions = []string{"BREAK_DOWN", "DELEGATE", "RESCHEDULE", "ARCHIVE"}

var staleActionHeadings = map[string]string{
	"BREAK_DOWN": "Break it down",
	"DELEGATE":   "Delegate",
	"RESCHEDULE": "Reschedule",
	"ARCHIVE":    "Archive",
}

type StaleTaskStrategist struct{}

func (StaleTaskStrategist) Descriptor() Descriptor {
	return Descriptor{SkillID: staleTaskStrategistID, StateVersion: 1}
}

type staleRecommendation struct {
	Ref    string `json:"ref"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (StaleTaskStrategist) Run(ctx context.Context, rc *RunContext) (Outcome, error) {
	days := rc.Int("staleness_days", defaultStalenessDays)
	if days <= 0 {
		days = defaultStalenessDays
	}
	tasks, err := rc.Data.ListTasks(ctx, rc.UserID)
	if err != nil {
		return Outcome{}, upstream("load tasks", err)
	}
	stale := selectStaleTasks(tasks, rc.Now.Add(-time.Duration(days)*24*time.Hour))
	if len(stale) == 0 {
		return Skipped("no stale tasks"), nil
	}

	refs := make(map[string]state.Task, len(stale))
	lines := make([]string, 0, len(stale))
	for i, task := range stale {
		ref := fmt.Sprintf("T%d", i+1)
		refs[ref] = task
		age := int(rc.Now.Sub(task.CreatedAt).Hours() / 24)
		line := fmt.Sprintf("%s: %q (%d days old", ref, task.Summary, age)
		if task.Category != "" {
			line += ", category " + task.Category
		}
		lines = append(lines, line+")")
	}

	b := prompt.NewBuilder()
	b.Addf("instructions", prompt.PriorityInstructions,
		"These tasks have had no due date and no progress for over %d days. For each one choose exactly one action: BREAK_DOWN, DELEGATE, RESCHEDULE or ARCHIVE, with a short reason (max 15 words).", days)
	b.Section("tasks", prompt.PriorityData, "Tasks", lines)
	b.Addf("format", prompt.PriorityContext, `Respond with JSON: {"items":[{"ref":"T1","action":"ARCHIVE","reason":"..."}]}`)

	var reply struct {
		Items []staleRecommendation `json:"items"`
	}
	err = rc.generateJSON(ctx, ai.Request{
		System:      "You help a couple keep their shared task list healthy. Be practical and kind.",
		Prompt:      b.Build(),
		Temperature: 0.3,
		MaxTokens:   1024,
	}, &reply)
	if err != nil {
		return Outcome{}, err
	}

	grouped := map[string][]string{}
	var recs []map[string]any
	seen := map[string]struct{}{}
	for _, item := range reply.Items {
		action := strings.ToUpper(strings.TrimSpace(item.Action))
		ref := strings.ToUpper(strings.TrimSpace(item.Ref))
		task, ok := refs[ref]
		if !ok {
			continue
		}
		if _, ok := staleActionHeadings[action]; !ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		line := "• " + task.Summary
		if reason := strings.TrimSpace(item.Reason); reason != "" {
			line += " — " + reason
		}
		grouped[action] = append(grouped[action], line)
		recs = append(recs, map[string]any{
			"task_id": task.ID,
			"summary": task.Summary,
			"action":  action,
			"reason":  strings.TrimSpace(item.Reason),
		})
	}
	if len(recs) == 0 {
		return Skipped("no actionable suggestions"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d tasks have been waiting more than %d days. Here's a plan:", len(stale), days)
	for _, action := range staleActions {
		items := grouped[action]
		if len(items) == 0 {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(staleActionHeadings[action])
		sb.WriteString(":")
		for _, line := range items {
			sb.WriteString("\n")
			sb.WriteString(line)
		}
	}

	return Completed(sb.String(), map[string]any{
		"stale_count":     len(stale),
		"recommendations": recs,
	}).WithNotify(Notification{
		Title:       "Stale task review",
		MessageType: schema.MessageAgentDigest,
		Priority:    schema.PriorityNormal,
	}), nil
}

// selectStaleTasks keeps incomplete tasks without a due date created before
// cutoff, oldest first, capped at staleMaxTasks.
func selectStaleTasks(tasks []state.Task, cutoff time.Time) []state.Task {
	var out []state.Task
	for _, task := range tasks {
		if task.Completed || task.DueDate != nil {
			continue
		}
		if !task.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, task)
	}
	sortTasksByCreated(out)
	if len(out) > staleMaxTasks {
		out = out[:staleMaxTasks]
	}
	return out
}
