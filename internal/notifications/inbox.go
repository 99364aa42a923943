package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/oliveapp/olive-agents/internal/idgen"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

var ErrNotFound = errors.New("notification not found")

// Inbox stores in-app notifications and fans changes out to in-process
// subscribers.
type Inbox struct {
	db    *state.DB
	nowFn func() time.Time

	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	userID string
	ch     chan Event
}

func NewInbox(db *state.DB) *Inbox {
	return &Inbox{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
		subs:  map[string]*subscriber{},
	}
}

func (b *Inbox) WithClock(nowFn func() time.Time) *Inbox {
	if nowFn != nil {
		b.nowFn = nowFn
	}
	return b
}

func (b *Inbox) Push(ctx context.Context, input Input) (Notification, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return Notification{}, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		return Notification{}, fmt.Errorf("content is required")
	}
	messageType := input.MessageType
	if messageType == "" {
		messageType = schema.MessageAgentDigest
	}
	priority := schema.ParsePriority(string(input.Priority))

	n := Notification{
		ID:          idgen.Sortable(),
		UserID:      input.UserID,
		AgentID:     input.AgentID,
		RunID:       input.RunID,
		MessageType: messageType,
		Title:       input.Title,
		Content:     input.Content,
		Priority:    priority,
		CreatedAt:   b.nowFn().UTC(),
	}
	_, err := state.ExecWithRetry(ctx, b.db, `
		INSERT INTO notifications (id, user_id, agent_id, run_id, message_type, title, content, priority, is_read, is_dismissed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
	`, n.ID, n.UserID, state.NullString(n.AgentID), state.NullString(n.RunID), n.MessageType,
		state.NullString(n.Title), n.Content, string(n.Priority), state.FormatTime(n.CreatedAt))
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	b.broadcast(Event{Kind: schema.EventNotificationCreated, Notification: n})
	return n, nil
}

const columns = `id, user_id, agent_id, run_id, message_type, title, content, priority, is_read, is_dismissed, created_at`

// List returns a user's notifications newest first. Dismissed items are
// hidden unless asked for.
func (b *Inbox) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	where := []string{"user_id = ?"}
	args := []any{userID}
	if opts.UnreadOnly {
		where = append(where, "is_read = 0")
	}
	if !opts.IncludeDismissed {
		where = append(where, "is_dismissed = 0")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d`,
		columns, strings.Join(where, " AND "), limit)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (b *Inbox) Get(ctx context.Context, id string) (Notification, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+columns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, fmt.Errorf("load notification: %w", err)
	}
	return n, nil
}

func (b *Inbox) MarkRead(ctx context.Context, id string) (Notification, error) {
	return b.flag(ctx, id, "is_read", schema.EventNotificationRead)
}

func (b *Inbox) Dismiss(ctx context.Context, id string) (Notification, error) {
	return b.flag(ctx, id, "is_dismissed", schema.EventNotificationDismissed)
}

func (b *Inbox) flag(ctx context.Context, id, column, kind string) (Notification, error) {
	res, err := state.ExecWithRetry(ctx, b.db, `UPDATE notifications SET `+column+` = 1 WHERE id = ?`, id)
	if err != nil {
		return Notification{}, fmt.Errorf("update notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Notification{}, fmt.Errorf("update notification rows affected: %w", err)
	}
	if affected == 0 {
		return Notification{}, ErrNotFound
	}
	n, err := b.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	b.broadcast(Event{Kind: kind, Notification: n})
	return n, nil
}

func (b *Inbox) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0 AND is_dismissed = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// Subscribe delivers inbox events for userID (all users when empty) until
// ctx is done. Slow subscribers miss events.
func (b *Inbox) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 64)
	id := ulid.Make().String()

	b.mu.Lock()
	b.subs[id] = &subscriber{userID: userID, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Inbox) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Inbox) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.userID != "" && sub.userID != event.Notification.UserID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop if subscriber is slow.
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (Notification, error) {
	var n Notification
	var agentID, runID, title sql.NullString
	var priority, createdAt string
	var read, dismissed int
	if err := row.Scan(&n.ID, &n.UserID, &agentID, &runID, &n.MessageType, &title, &n.Content, &priority, &read, &dismissed, &createdAt); err != nil {
		return Notification{}, err
	}
	n.AgentID = agentID.String
	n.RunID = runID.String
	n.Title = title.String
	n.Priority = schema.ParsePriority(priority)
	n.Read = read != 0
	n.Dismissed = dismissed != 0
	n.CreatedAt = state.ParseTime(createdAt)
	return n, nil
}
