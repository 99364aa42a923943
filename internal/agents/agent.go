package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

// Descriptor identifies an implementation. StateVersion is bumped whenever
// the shape of the agent's carry-forward state changes; stored state with a
// different version is ignored.
type Descriptor struct {
	SkillID      string
	StateVersion int
}

type Agent interface {
	Descriptor() Descriptor
	Run(ctx context.Context, rc *RunContext) (Outcome, error)
}

// Data is the read access agents have to user data. *state.Store
// implements it.
type Data interface {
	ListTasks(ctx context.Context, userID string) ([]state.Task, error)
	CoupleForUser(ctx context.Context, userID, coupleID string) (state.Couple, bool, error)
	Profile(ctx context.Context, userID string) (state.Profile, bool, error)
	HasConnection(ctx context.Context, userID, provider string) (bool, error)
	HealthReadings(ctx context.Context, userID string, since time.Time) ([]state.HealthReading, error)
	ImportantDates(ctx context.Context, userID, coupleID string) ([]state.ImportantDate, error)
	Memories(ctx context.Context, userID string, limit int) ([]state.Memory, error)
}

// RunContext is everything one invocation may read.
type RunContext struct {
	UserID   string
	CoupleID string
	// Config is the merged catalog, activation and request configuration.
	Config        map[string]any
	PreviousState json.RawMessage
	Now           time.Time

	Data   Data
	LLM    ai.Generator
	Logger zerolog.Logger

	loc *time.Location
}

// DecodeState unmarshals the previous state into v. Missing state leaves
// v untouched.
func (rc *RunContext) DecodeState(v any) error {
	if len(rc.PreviousState) == 0 || string(rc.PreviousState) == "null" {
		return nil
	}
	if err := json.Unmarshal(rc.PreviousState, v); err != nil {
		return fmt.Errorf("decode previous state: %w", err)
	}
	return nil
}

func (rc *RunContext) Int(key string, def int) int {
	return schema.GetInt(rc.Config, key, def)
}

func (rc *RunContext) String(key, def string) string {
	if v := schema.GetString(rc.Config, key); v != "" {
		return v
	}
	return def
}

func (rc *RunContext) Ints(key string, def []int) []int {
	return schema.GetIntSlice(rc.Config, key, def)
}

// Location is the user's profile timezone, UTC when unset or unknown.
func (rc *RunContext) Location(ctx context.Context) *time.Location {
	if rc.loc != nil {
		return rc.loc
	}
	rc.loc = time.UTC
	if rc.Data == nil {
		return rc.loc
	}
	profile, ok, err := rc.Data.Profile(ctx, rc.UserID)
	if err != nil || !ok || profile.Timezone == "" {
		return rc.loc
	}
	if loc, err := time.LoadLocation(profile.Timezone); err == nil {
		rc.loc = loc
	} else {
		rc.Logger.Warn().Str("timezone", profile.Timezone).Msg("unknown profile timezone, using UTC")
	}
	return rc.loc
}

// Today is the user's current calendar day.
func (rc *RunContext) Today(ctx context.Context) time.Time {
	return civilDay(rc.Now, rc.Location(ctx))
}

// Couple resolves the user's linked couple, preferring the requested id.
func (rc *RunContext) Couple(ctx context.Context) (state.Couple, bool, error) {
	couple, ok, err := rc.Data.CoupleForUser(ctx, rc.UserID, rc.CoupleID)
	if err != nil {
		return state.Couple{}, false, upstream("load couple", err)
	}
	return couple, ok, nil
}

func (rc *RunContext) displayName(ctx context.Context, userID, fallback string) (string, error) {
	profile, ok, err := rc.Data.Profile(ctx, userID)
	if err != nil {
		return "", upstream("load profile", err)
	}
	if !ok || profile.DisplayName == "" {
		return fallback, nil
	}
	return profile.DisplayName, nil
}

func (rc *RunContext) generate(ctx context.Context, req ai.Request) (string, error) {
	if rc.LLM == nil {
		return "", upstream("llm", fmt.Errorf("no llm configured"))
	}
	text, err := rc.LLM.Generate(ctx, req)
	if err != nil {
		return "", upstream("llm", err)
	}
	return text, nil
}

func (rc *RunContext) generateJSON(ctx context.Context, req ai.Request, out any) error {
	if rc.LLM == nil {
		return upstream("llm", fmt.Errorf("no llm configured"))
	}
	if err := ai.GenerateJSON(ctx, rc.LLM, req, out); err != nil {
		return upstream("llm", err)
	}
	return nil
}
