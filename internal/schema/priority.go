package schema

import "strings"

// Priority is the urgency of a notification.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority validates a raw string. Defaults to PriorityNormal.
func ParsePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "urgent":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "normal", "medium":
		return PriorityNormal
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Rank returns numeric priority (lower = more urgent).
// urgent=0, high=1, normal=2, low=3.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Pushes reports whether the notification is also sent through the
// external gateway. Low priority items stay in the in-app inbox.
func (p Priority) Pushes() bool {
	return p.Rank() <= PriorityNormal.Rank()
}
