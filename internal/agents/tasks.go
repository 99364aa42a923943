package agents

import (
	"sort"
	"time"

	"github.com/oliveapp/olive-agents/internal/state"
)

func sortTasksByCreated(tasks []state.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// tasksDueOn returns incomplete tasks whose due date falls on day in loc.
func tasksDueOn(tasks []state.Task, day time.Time, loc *time.Location) []state.Task {
	var out []state.Task
	for _, task := range tasks {
		if task.Completed || task.DueDate == nil {
			continue
		}
		if civilDay(*task.DueDate, loc).Equal(day) {
			out = append(out, task)
		}
	}
	return out
}
