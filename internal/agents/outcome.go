package agents

import (
	"errors"
	"fmt"

	"github.com/oliveapp/olive-agents/internal/schema"
)

type Kind string

const (
	KindCompleted Kind = "completed"
	KindSkipped   Kind = "skipped"
	KindFailed    Kind = "failed"
)

type Audience string

const (
	AudienceUser   Audience = "user"
	AudienceCouple Audience = "couple"
)

// Notification asks the dispatcher to deliver the outcome message.
type Notification struct {
	Title       string
	MessageType string
	Priority    schema.Priority
	Audience    Audience
}

// Outcome is the result of one agent invocation. Skipped outcomes are a
// success that never notifies. State, when non-nil, replaces the agent's
// carry-forward state.
type Outcome struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Notify  *Notification
	State   any
	Err     error
}

func Completed(message string, data map[string]any) Outcome {
	return Outcome{Kind: KindCompleted, Message: message, Data: data}
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: KindSkipped, Message: reason}
}

func Failed(err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: KindFailed, Message: msg, Err: err}
}

func (o Outcome) WithNotify(n Notification) Outcome {
	if n.Audience == "" {
		n.Audience = AudienceUser
	}
	if n.Priority == "" {
		n.Priority = schema.PriorityNormal
	}
	o.Notify = &n
	return o
}

func (o Outcome) WithState(s any) Outcome {
	o.State = s
	return o
}

func (o Outcome) Success() bool {
	return o.Kind != KindFailed
}

func (o Outcome) Notifies() bool {
	return o.Kind == KindCompleted && o.Notify != nil && o.Message != ""
}

// UpstreamError wraps a database or LLM failure. It is the only error that
// fails a run.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	var existing *UpstreamError
	if errors.As(err, &existing) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
