package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/oliveapp/olive-agents/internal/notifications"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

// ErrNoAddress is returned by gateways that cannot reach a user, e.g. no
// phone number on the profile. It is not counted as a failure.
var ErrNoAddress = errors.New("recipient has no address for this gateway")

type Message struct {
	UserID      string          `json:"user_id"`
	Phone       string          `json:"phone,omitempty"`
	MessageType string          `json:"message_type"`
	Title       string          `json:"title,omitempty"`
	Content     string          `json:"content"`
	Priority    schema.Priority `json:"priority"`
}

type Gateway interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type Profiles interface {
	Profile(ctx context.Context, userID string) (state.Profile, bool, error)
}

// Delivery is one notification fanned out to every recipient.
type Delivery struct {
	AgentID     string
	RunID       string
	Recipients  []string
	Title       string
	Content     string
	MessageType string
	Priority    schema.Priority
}

type Report struct {
	InApp  int `json:"in_app"`
	Pushed int `json:"pushed"`
}

// Notifier writes the in-app record and then pushes through the external
// gateway. Delivery is best effort: every recipient is attempted and the
// failures are returned joined.
type Notifier struct {
	inbox    *notifications.Inbox
	profiles Profiles
	gateway  Gateway
	logger   zerolog.Logger
}

type Option func(*Notifier)

func WithGateway(g Gateway) Option {
	return func(n *Notifier) {
		n.gateway = g
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func New(inbox *notifications.Inbox, profiles Profiles, opts ...Option) *Notifier {
	n := &Notifier{inbox: inbox, profiles: profiles, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func (n *Notifier) Deliver(ctx context.Context, d Delivery) (Report, error) {
	var report Report
	if strings.TrimSpace(d.Content) == "" {
		return report, fmt.Errorf("notification content is required")
	}
	priority := schema.ParsePriority(string(d.Priority))

	var errs []error
	seen := map[string]struct{}{}
	for _, userID := range d.Recipients {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		if n.inbox != nil {
			_, err := n.inbox.Push(ctx, notifications.Input{
				UserID:      userID,
				AgentID:     d.AgentID,
				RunID:       d.RunID,
				MessageType: d.MessageType,
				Title:       d.Title,
				Content:     d.Content,
				Priority:    priority,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("in-app notification for %s: %w", userID, err))
			} else {
				report.InApp++
			}
		}

		if n.gateway == nil || !priority.Pushes() {
			continue
		}
		msg := Message{
			UserID:      userID,
			MessageType: d.MessageType,
			Title:       d.Title,
			Content:     d.Content,
			Priority:    priority,
		}
		if n.profiles != nil {
			profile, _, err := n.profiles.Profile(ctx, userID)
			if err != nil {
				errs = append(errs, fmt.Errorf("load profile for %s: %w", userID, err))
				continue
			}
			msg.Phone = profile.PhoneNumber
		}
		err := n.gateway.Send(ctx, msg)
		switch {
		case err == nil:
			report.Pushed++
		case errors.Is(err, ErrNoAddress):
			n.logger.Debug().Str("user_id", userID).Str("gateway", n.gateway.Name()).Msg("no address, push skipped")
		default:
			errs = append(errs, fmt.Errorf("%s push for %s: %w", n.gateway.Name(), userID, err))
		}
	}
	return report, errors.Join(errs...)
}

// LogGateway only logs. It is used when no external gateway is configured.
type LogGateway struct {
	Logger zerolog.Logger
}

func (LogGateway) Name() string { return "log" }

func (g LogGateway) Send(ctx context.Context, msg Message) error {
	g.Logger.Info().
		Str("user_id", msg.UserID).
		Str("message_type", msg.MessageType).
		Str("priority", string(msg.Priority)).
		Int("length", len(msg.Content)).
		Msg("notification push (log only)")
	return nil
}
