package notifications

import (
	"time"

	"github.com/oliveapp/olive-agents/internal/schema"
)

type Notification struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	AgentID     string          `json:"agent_id,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	MessageType string          `json:"message_type"`
	Title       string          `json:"title,omitempty"`
	Content     string          `json:"content"`
	Priority    schema.Priority `json:"priority"`
	Read        bool            `json:"is_read"`
	Dismissed   bool            `json:"is_dismissed"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Input struct {
	UserID      string
	AgentID     string
	RunID       string
	MessageType string
	Title       string
	Content     string
	Priority    schema.Priority
}

type ListOptions struct {
	UnreadOnly       bool
	IncludeDismissed bool
	Limit            int
}

// Event is published to live subscribers whenever a user's inbox changes.
type Event struct {
	Kind         string       `json:"kind"`
	Notification Notification `json:"notification"`
}
