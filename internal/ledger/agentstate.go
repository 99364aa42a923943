package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oliveapp/olive-agents/internal/state"
)

var ErrStateConflict = errors.New("agent state was modified concurrently")

// Snapshot is the carry-forward state of one agent for one user. Version is
// zero when no row exists yet.
type Snapshot struct {
	UserID        string          `json:"user_id"`
	AgentID       string          `json:"agent_id"`
	SchemaVersion int             `json:"schema_version"`
	Version       int64           `json:"version"`
	State         json.RawMessage `json:"state,omitempty"`
	RunID         string          `json:"run_id,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type StateStore struct {
	db *state.DB
	options
}

func NewStateStore(db *state.DB, opts ...Option) *StateStore {
	return &StateStore{db: db, options: buildOptions(opts)}
}

func (s *StateStore) Load(ctx context.Context, userID, agentID string) (Snapshot, bool, error) {
	snap := Snapshot{UserID: userID, AgentID: agentID}
	var stateStr, runID sql.NullString
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version, version, state, run_id, updated_at
		FROM agent_state WHERE user_id = ? AND agent_id = ?
	`, userID, agentID).Scan(&snap.SchemaVersion, &snap.Version, &stateStr, &runID, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("load agent state: %w", err)
	}
	if stateStr.Valid && stateStr.String != "" {
		snap.State = json.RawMessage(stateStr.String)
	}
	snap.RunID = runID.String
	snap.UpdatedAt = state.ParseTime(updatedAt)
	return snap, true, nil
}

// CompareAndSwap writes next only if the stored version still equals
// expected (zero meaning "no row yet"). It returns the new version or
// ErrStateConflict.
func (s *StateStore) CompareAndSwap(ctx context.Context, expected int64, next Snapshot) (int64, error) {
	if next.UserID == "" || next.AgentID == "" {
		return 0, fmt.Errorf("user_id and agent_id are required")
	}
	var stateArg any
	if len(next.State) > 0 {
		stateArg = string(next.State)
	}
	now := state.FormatTime(s.now())
	version := expected + 1

	if expected == 0 {
		_, err := state.ExecWithRetry(ctx, s.db, `
			INSERT INTO agent_state (user_id, agent_id, schema_version, version, state, run_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, next.UserID, next.AgentID, next.SchemaVersion, version, stateArg, state.NullString(next.RunID), now)
		if err != nil {
			if state.IsUniqueViolation(err) {
				return 0, ErrStateConflict
			}
			return 0, fmt.Errorf("insert agent state: %w", err)
		}
		return version, nil
	}

	res, err := state.ExecWithRetry(ctx, s.db, `
		UPDATE agent_state
		SET schema_version = ?, version = ?, state = ?, run_id = ?, updated_at = ?
		WHERE user_id = ? AND agent_id = ? AND version = ?
	`, next.SchemaVersion, version, stateArg, state.NullString(next.RunID), now, next.UserID, next.AgentID, expected)
	if err != nil {
		return 0, fmt.Errorf("update agent state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update agent state rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrStateConflict
	}
	return version, nil
}
