package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oliveapp/olive-agents/internal/idgen"
	"github.com/oliveapp/olive-agents/internal/state"
)

type Status string

const (
	StatusRunning          Status = "running"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCancelled        Status = "cancelled"
)

// AbandonedMessage is recorded on running rows that outlived the in-flight
// window.
const AbandonedMessage = "abandoned: exceeded in-flight window"

const DefaultInflightWindow = 10 * time.Minute

type Run struct {
	ID           string          `json:"id"`
	AgentID      string          `json:"agent_id"`
	UserID       string          `json:"user_id"`
	CoupleID     string          `json:"couple_id,omitempty"`
	Status       Status          `json:"status"`
	Result       map[string]any  `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

type StartSpec struct {
	AgentID  string
	UserID   string
	CoupleID string
}

type Filter struct {
	UserID  string
	AgentID string
	Status  Status
	Limit   int
}

var (
	ErrRunNotFound             = errors.New("run not found")
	ErrRunInProgress           = errors.New("run already in progress")
	ErrInvalidStatusTransition = errors.New("invalid run status transition")
)

type StatusTransitionError struct {
	RunID string
	From  Status
	To    Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invalid run status transition for %s: %s -> %s", e.RunID, e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error {
	return ErrInvalidStatusTransition
}

type options struct {
	nowFn    func() time.Time
	newIDFn  func() string
	logger   zerolog.Logger
	inflight time.Duration
}

type Option func(*options)

func WithClock(nowFn func() time.Time) Option {
	return func(o *options) {
		if nowFn != nil {
			o.nowFn = nowFn
		}
	}
}

func WithIDGenerator(newIDFn func() string) Option {
	return func(o *options) {
		if newIDFn != nil {
			o.newIDFn = newIDFn
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithInflightWindow bounds how long a running row blocks a new dispatch of
// the same agent for the same user.
func WithInflightWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.inflight = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		nowFn:    func() time.Time { return time.Now().UTC() },
		newIDFn:  idgen.New,
		logger:   zerolog.Nop(),
		inflight: DefaultInflightWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) now() time.Time {
	return o.nowFn().UTC()
}

// Ledger is the append-only record of agent runs.
type Ledger struct {
	db *state.DB
	options
}

func New(db *state.DB, opts ...Option) *Ledger {
	return &Ledger{db: db, options: buildOptions(opts)}
}

// Start inserts a running row. It refuses with ErrRunInProgress while a
// running row for the same user and agent is younger than the in-flight
// window; older ones are first marked failed.
func (l *Ledger) Start(ctx context.Context, spec StartSpec) (Run, error) {
	if strings.TrimSpace(spec.AgentID) == "" || strings.TrimSpace(spec.UserID) == "" {
		return Run{}, fmt.Errorf("agent_id and user_id are required")
	}
	now := l.now()
	if _, err := l.reconcile(ctx, spec.UserID, spec.AgentID, now); err != nil {
		return Run{}, err
	}

	run := Run{
		ID:        l.newIDFn(),
		AgentID:   spec.AgentID,
		UserID:    spec.UserID,
		CoupleID:  spec.CoupleID,
		Status:    StatusRunning,
		StartedAt: now,
	}
	cutoff := now.Add(-l.inflight)
	res, err := state.ExecWithRetry(ctx, l.db, `
		INSERT INTO agent_runs (id, agent_id, user_id, couple_id, status, started_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM agent_runs
			WHERE user_id = ? AND agent_id = ? AND status = ? AND started_at >= ?
		)
	`, run.ID, run.AgentID, run.UserID, state.NullString(run.CoupleID), string(StatusRunning), state.FormatTime(now),
		run.UserID, run.AgentID, string(StatusRunning), state.FormatTime(cutoff))
	if err != nil {
		if state.IsUniqueViolation(err) {
			return Run{}, ErrRunInProgress
		}
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Run{}, fmt.Errorf("insert run rows affected: %w", err)
	}
	if affected == 0 {
		return Run{}, ErrRunInProgress
	}
	return run, nil
}

// ReconcileStale fails every running row older than the in-flight window.
func (l *Ledger) ReconcileStale(ctx context.Context) (int64, error) {
	return l.reconcile(ctx, "", "", l.now())
}

func (l *Ledger) reconcile(ctx context.Context, userID, agentID string, now time.Time) (int64, error) {
	query := `UPDATE agent_runs SET status = ?, error_message = ?, completed_at = ? WHERE status = ? AND started_at < ?`
	args := []any{string(StatusFailed), AbandonedMessage, state.FormatTime(now), string(StatusRunning), state.FormatTime(now.Add(-l.inflight))}
	if userID != "" {
		query += " AND user_id = ? AND agent_id = ?"
		args = append(args, userID, agentID)
	}
	res, err := state.ExecWithRetry(ctx, l.db, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reconcile stale runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reconcile rows affected: %w", err)
	}
	if n > 0 {
		l.logger.Warn().Int64("count", n).Str("user_id", userID).Str("agent_id", agentID).Msg("abandoned runs marked failed")
	}
	return n, nil
}

func (l *Ledger) Complete(ctx context.Context, runID string, result map[string]any, carried json.RawMessage) error {
	return l.finish(ctx, runID, StatusCompleted, result, "", carried)
}

func (l *Ledger) Fail(ctx context.Context, runID string, reason string, carried json.RawMessage) error {
	return l.finish(ctx, runID, StatusFailed, nil, reason, carried)
}

func (l *Ledger) Cancel(ctx context.Context, runID string, reason string) error {
	return l.finish(ctx, runID, StatusCancelled, nil, reason, nil)
}

// Hold parks a running run in awaiting_approval with its result and state.
func (l *Ledger) Hold(ctx context.Context, runID string, result map[string]any, carried json.RawMessage) error {
	return l.finish(ctx, runID, StatusAwaitingApproval, result, "", carried)
}

func (l *Ledger) finish(ctx context.Context, runID string, status Status, result map[string]any, reason string, carried json.RawMessage) error {
	current, err := l.currentStatus(ctx, runID)
	if err != nil {
		return err
	}
	if !canTransition(current, status) {
		return &StatusTransitionError{RunID: runID, From: current, To: status}
	}

	var resultJSON string
	if len(result) > 0 {
		if resultJSON, err = state.EncodeJSON(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	var completedAt any
	if IsTerminal(status) {
		completedAt = state.FormatTime(l.now())
	}
	var stateArg any
	if len(carried) > 0 {
		stateArg = string(carried)
	}

	res, err := state.ExecWithRetry(ctx, l.db, `
		UPDATE agent_runs
		SET status = ?, result = COALESCE(?, result), error_message = ?, state = COALESCE(?, state), completed_at = ?
		WHERE id = ? AND status = ?
	`, string(status), state.NullString(resultJSON), state.NullString(reason), stateArg, completedAt, runID, string(current))
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows affected: %w", err)
	}
	if affected == 0 {
		latest, err := l.currentStatus(ctx, runID)
		if err != nil {
			return err
		}
		return &StatusTransitionError{RunID: runID, From: latest, To: status}
	}
	return nil
}

func (l *Ledger) currentStatus(ctx context.Context, runID string) (Status, error) {
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	var status Status
	err := l.db.QueryRowContext(ctx, `SELECT status FROM agent_runs WHERE id = ?`, runID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRunNotFound
		}
		return "", fmt.Errorf("load run status: %w", err)
	}
	return status, nil
}

const runColumns = `id, agent_id, user_id, couple_id, status, result, error_message, state, started_at, completed_at`

func (l *Ledger) Get(ctx context.Context, runID string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}

// Recent lists runs newest first. Limit defaults to 20 and is capped at 100.
func (l *Ledger) Recent(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs`
	var clauses []string
	var args []any
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT %d", limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Last returns the most recently started run of any status.
func (l *Ledger) Last(ctx context.Context, userID, agentID string) (Run, bool, error) {
	return l.first(ctx, Filter{UserID: userID, AgentID: agentID, Limit: 1})
}

func (l *Ledger) LatestCompleted(ctx context.Context, userID, agentID string) (Run, bool, error) {
	return l.first(ctx, Filter{UserID: userID, AgentID: agentID, Status: StatusCompleted, Limit: 1})
}

func (l *Ledger) CountRunning(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_runs WHERE status = ?`, string(StatusRunning)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count running runs: %w", err)
	}
	return n, nil
}

func (l *Ledger) first(ctx context.Context, filter Filter) (Run, bool, error) {
	runs, err := l.Recent(ctx, filter)
	if err != nil {
		return Run{}, false, err
	}
	if len(runs) == 0 {
		return Run{}, false, nil
	}
	return runs[0], true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var coupleID, resultStr, errStr, stateStr, startedAt, completedAt sql.NullString
	if err := row.Scan(&run.ID, &run.AgentID, &run.UserID, &coupleID, &run.Status, &resultStr, &errStr, &stateStr, &startedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.CoupleID = coupleID.String
	run.Result = state.DecodeJSONMap(resultStr.String)
	run.ErrorMessage = errStr.String
	if stateStr.Valid && stateStr.String != "" {
		run.State = json.RawMessage(stateStr.String)
	}
	run.StartedAt = state.ParseTime(startedAt.String)
	if completedAt.Valid && completedAt.String != "" {
		t := state.ParseTime(completedAt.String)
		run.CompletedAt = &t
	}
	return run, nil
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled || to == StatusAwaitingApproval
	case StatusAwaitingApproval:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

func IsTerminal(status Status) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
