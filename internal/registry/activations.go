package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oliveapp/olive-agents/internal/state"
)

// Activation is a user's opt-in for one catalog agent. Rows are created on
// the first toggle and only ever disabled afterwards.
type Activation struct {
	UserID     string         `json:"user_id"`
	SkillID    string         `json:"skill_id"`
	Enabled    bool           `json:"enabled"`
	Config     map[string]any `json:"config,omitempty"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type Activations struct {
	db *state.DB
	options
}

func NewActivations(db *state.DB, opts ...Option) *Activations {
	return &Activations{db: db, options: buildOptions(opts)}
}

// Set toggles an activation. A nil config keeps the stored overrides.
func (a *Activations) Set(ctx context.Context, userID, skillID string, enabled bool, config map[string]any) (Activation, error) {
	if userID == "" || skillID == "" {
		return Activation{}, fmt.Errorf("user_id and skill_id are required")
	}
	var cfgArg any
	if config != nil {
		encoded, err := state.EncodeJSON(config)
		if err != nil {
			return Activation{}, fmt.Errorf("encode activation config: %w", err)
		}
		cfgArg = encoded
	}
	now := state.FormatTime(a.nowFn())
	_, err := state.ExecWithRetry(ctx, a.db, `
		INSERT INTO agent_activations (user_id, skill_id, enabled, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, skill_id) DO UPDATE SET
			enabled = excluded.enabled,
			config = COALESCE(excluded.config, agent_activations.config),
			updated_at = excluded.updated_at
	`, userID, skillID, state.BoolInt(enabled), cfgArg, now, now)
	if err != nil {
		return Activation{}, fmt.Errorf("save activation: %w", err)
	}
	act, _, err := a.Get(ctx, userID, skillID)
	if err != nil {
		return Activation{}, err
	}
	a.logger.Info().Str("user_id", userID).Str("agent_id", skillID).Bool("enabled", enabled).Msg("activation updated")
	return act, nil
}

const activationColumns = `user_id, skill_id, enabled, config, last_used_at, created_at, updated_at`

func (a *Activations) Get(ctx context.Context, userID, skillID string) (Activation, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+activationColumns+` FROM agent_activations WHERE user_id = ? AND skill_id = ?`, userID, skillID)
	act, err := scanActivation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Activation{}, false, nil
		}
		return Activation{}, false, fmt.Errorf("load activation: %w", err)
	}
	return act, true, nil
}

func (a *Activations) ListForUser(ctx context.Context, userID string) ([]Activation, error) {
	return a.query(ctx, `SELECT `+activationColumns+` FROM agent_activations WHERE user_id = ? ORDER BY skill_id`, userID)
}

// EnabledForSchedule lists enabled activations whose catalog agent carries
// the schedule label, oldest activation first.
func (a *Activations) EnabledForSchedule(ctx context.Context, schedule string) ([]Activation, error) {
	return a.query(ctx, `
		SELECT a.user_id, a.skill_id, a.enabled, a.config, a.last_used_at, a.created_at, a.updated_at
		FROM agent_activations a
		JOIN agents g ON g.skill_id = a.skill_id
		WHERE a.enabled = 1 AND g.schedule = ?
		ORDER BY a.created_at, a.user_id, a.skill_id
	`, schedule)
}

// Touch records a dispatch. Users who never toggled the agent have no row
// and nothing is written.
func (a *Activations) Touch(ctx context.Context, userID, skillID string) error {
	now := state.FormatTime(a.nowFn())
	_, err := state.ExecWithRetry(ctx, a.db, `
		UPDATE agent_activations SET last_used_at = ?, updated_at = ? WHERE user_id = ? AND skill_id = ?
	`, now, now, userID, skillID)
	if err != nil {
		return fmt.Errorf("touch activation: %w", err)
	}
	return nil
}

func (a *Activations) query(ctx context.Context, query string, args ...any) ([]Activation, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	defer rows.Close()

	var out []Activation
	for rows.Next() {
		act, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		out = append(out, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activations: %w", err)
	}
	return out, nil
}

func scanActivation(row scanner) (Activation, error) {
	var act Activation
	var enabled int
	var cfg, lastUsed sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&act.UserID, &act.SkillID, &enabled, &cfg, &lastUsed, &createdAt, &updatedAt); err != nil {
		return Activation{}, err
	}
	act.Enabled = enabled != 0
	act.Config = state.DecodeJSONMap(cfg.String)
	if lastUsed.Valid && lastUsed.String != "" {
		t := state.ParseTime(lastUsed.String)
		act.LastUsedAt = &t
	}
	act.CreatedAt = state.ParseTime(createdAt)
	act.UpdatedAt = state.ParseTime(updatedAt)
	return act, nil
}
