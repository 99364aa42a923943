package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/oliveapp/olive-agents/internal/idgen"
	"github.com/oliveapp/olive-agents/internal/state"
)

// TypeBackground marks catalog rows the dispatcher is allowed to run.
const TypeBackground = "background_agent"

var ErrAgentNotFound = errors.New("agent not found")

//go:embed catalog.yaml
var catalogYAML []byte

type Agent struct {
	SkillID            string         `yaml:"skill_id" json:"skill_id"`
	Name               string         `yaml:"name" json:"name"`
	Description        string         `yaml:"description" json:"description,omitempty"`
	AgentType          string         `yaml:"agent_type" json:"agent_type"`
	Schedule           string         `yaml:"schedule" json:"schedule,omitempty"`
	RequiresConnection string         `yaml:"requires_connection" json:"requires_connection,omitempty"`
	Config             map[string]any `yaml:"agent_config" json:"agent_config,omitempty"`
}

type catalogFile struct {
	Agents []Agent `yaml:"agents"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() ([]Agent, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(data []byte) ([]Agent, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Agents))
	for i, agent := range file.Agents {
		if err := idgen.ValidateSkillID(agent.SkillID); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if _, dup := seen[agent.SkillID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate skill_id %q", i, agent.SkillID)
		}
		seen[agent.SkillID] = struct{}{}
		if strings.TrimSpace(agent.Name) == "" {
			return nil, fmt.Errorf("catalog entry %s: name is required", agent.SkillID)
		}
		if agent.AgentType == "" {
			file.Agents[i].AgentType = TypeBackground
		}
	}
	return file.Agents, nil
}

type Option func(*options)

type options struct {
	nowFn  func() time.Time
	logger zerolog.Logger
}

func WithClock(nowFn func() time.Time) Option {
	return func(o *options) {
		if nowFn != nil {
			o.nowFn = nowFn
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		nowFn:  func() time.Time { return time.Now().UTC() },
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Registry reads the agent catalog table.
type Registry struct {
	db *state.DB
	options
}

func New(db *state.DB, opts ...Option) *Registry {
	return &Registry{db: db, options: buildOptions(opts)}
}

// Seed upserts catalog rows keyed by skill_id.
func (r *Registry) Seed(ctx context.Context, agents []Agent) error {
	now := state.FormatTime(r.nowFn())
	for _, agent := range agents {
		cfg, err := state.EncodeJSON(agent.Config)
		if err != nil {
			return fmt.Errorf("encode config for %s: %w", agent.SkillID, err)
		}
		_, err = state.ExecWithRetry(ctx, r.db, `
			INSERT INTO agents (skill_id, name, description, agent_type, schedule, requires_connection, agent_config, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (skill_id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				agent_type = excluded.agent_type,
				schedule = excluded.schedule,
				requires_connection = excluded.requires_connection,
				agent_config = excluded.agent_config,
				updated_at = excluded.updated_at
		`, agent.SkillID, agent.Name, state.NullString(agent.Description), agent.AgentType,
			state.NullString(agent.Schedule), state.NullString(agent.RequiresConnection), state.NullString(cfg), now, now)
		if err != nil {
			return fmt.Errorf("seed agent %s: %w", agent.SkillID, err)
		}
	}
	r.logger.Debug().Int("count", len(agents)).Msg("agent catalog seeded")
	return nil
}

func (r *Registry) SeedDefaults(ctx context.Context) error {
	agents, err := DefaultCatalog()
	if err != nil {
		return err
	}
	return r.Seed(ctx, agents)
}

const agentColumns = `skill_id, name, description, agent_type, schedule, requires_connection, agent_config`

func (r *Registry) Lookup(ctx context.Context, skillID string) (Agent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE skill_id = ?`, skillID)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, skillID)
		}
		return Agent{}, fmt.Errorf("load agent: %w", err)
	}
	return agent, nil
}

// List returns the catalog ordered by skill id. An empty schedule matches
// every agent.
func (r *Registry) List(ctx context.Context, schedule string) ([]Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if schedule != "" {
		query += ` WHERE schedule = ?`
		args = append(args, schedule)
	}
	query += ` ORDER BY skill_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (Agent, error) {
	var agent Agent
	var description, schedule, requires, cfg sql.NullString
	if err := row.Scan(&agent.SkillID, &agent.Name, &description, &agent.AgentType, &schedule, &requires, &cfg); err != nil {
		return Agent{}, err
	}
	agent.Description = description.String
	agent.Schedule = schedule.String
	agent.RequiresConnection = requires.String
	agent.Config = state.DecodeJSONMap(cfg.String)
	return agent, nil
}

// MergeConfig layers maps left to right; later keys win. Nested maps are
// replaced, not merged.
func MergeConfig(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
