package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oliveapp/olive-agents/internal/agentcontext"
	"github.com/oliveapp/olive-agents/internal/agents"
	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/ledger"
	"github.com/oliveapp/olive-agents/internal/notify"
	"github.com/oliveapp/olive-agents/internal/registry"
	"github.com/oliveapp/olive-agents/internal/schema"
)

const (
	DefaultTimeout         = 2 * time.Minute
	DefaultDeliveryTimeout = 30 * time.Second

	// configRequireApproval holds notifying runs in awaiting_approval until
	// Approve or Cancel is called.
	configRequireApproval = "require_approval"
)

var ErrInvalidRequest = errors.New("invalid dispatch request")

type Request struct {
	AgentID        string         `json:"agent_id"`
	UserID         string         `json:"user_id"`
	CoupleID       string         `json:"couple_id,omitempty"`
	ConfigOverride map[string]any `json:"config_override,omitempty"`
}

type Result struct {
	RunID   string         `json:"run_id"`
	AgentID string         `json:"agent_id"`
	Status  ledger.Status  `json:"status"`
	Success bool           `json:"success"`
	Outcome agents.Kind    `json:"outcome,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	// Notified counts in-app notifications written for this run.
	Notified int `json:"notified"`
}

type Notifier interface {
	Deliver(ctx context.Context, d notify.Delivery) (notify.Report, error)
}

// Deps are the collaborators a Dispatcher needs. Notifier and LLM may be
// nil: agents that need an LLM then fail, and nothing is delivered.
type Deps struct {
	Registry    *registry.Registry
	Activations *registry.Activations
	Ledger      *ledger.Ledger
	States      *ledger.StateStore
	Agents      *agents.Set
	Data        agents.Data
	LLM         ai.Generator
	Notifier    Notifier
}

type Option func(*Dispatcher)

func WithClock(nowFn func() time.Time) Option {
	return func(d *Dispatcher) {
		if nowFn != nil {
			d.nowFn = nowFn
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTimeout bounds one agent invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDeliveryTimeout bounds notification delivery after a run completes.
// It runs on its own clock so a slow agent does not starve delivery.
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.deliveryTimeout = timeout
		}
	}
}

// Dispatcher runs one background agent for one user and records the run.
type Dispatcher struct {
	deps            Deps
	nowFn           func() time.Time
	logger          zerolog.Logger
	timeout         time.Duration
	deliveryTimeout time.Duration

	wg sync.WaitGroup
}

func New(deps Deps, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		deps:            deps,
		nowFn:           func() time.Time { return time.Now().UTC() },
		logger:          zerolog.Nop(),
		timeout:         DefaultTimeout,
		deliveryTimeout: DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// pending is a dispatch whose running row is already in the ledger.
type pending struct {
	req      Request
	run      ledger.Run
	impl     agents.Agent
	config   map[string]any
	previous json.RawMessage
	expected int64
}

// Run dispatches synchronously. Registry, ledger and state errors are
// returned; an agent failure is a Result with Status failed and a nil error.
func (d *Dispatcher) Run(ctx context.Context, req Request) (Result, error) {
	p, err := d.prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return d.execute(ctx, p), nil
}

// RunAsync records the running row, then invokes the agent in the
// background on a context detached from ctx. The returned run id can be
// polled through the ledger.
func (d *Dispatcher) RunAsync(ctx context.Context, req Request) (string, error) {
	p, err := d.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(context.WithoutCancel(ctx), p)
	}()
	return p.run.ID, nil
}

// Wait blocks until every RunAsync invocation has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Agents lists the catalog entries that have an implementation.
func (d *Dispatcher) Agents(ctx context.Context) ([]registry.Agent, error) {
	all, err := d.deps.Registry.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, agent := range all {
		if _, ok := d.deps.Agents.Lookup(agent.SkillID); ok && agent.AgentType == registry.TypeBackground {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (d *Dispatcher) prepare(ctx context.Context, req Request) (*pending, error) {
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.AgentID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: agent_id and user_id are required", ErrInvalidRequest)
	}

	catalog, err := d.deps.Registry.Lookup(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	if catalog.AgentType != registry.TypeBackground {
		return nil, fmt.Errorf("%w: %s is not a background agent", registry.ErrAgentNotFound, req.AgentID)
	}
	impl, ok := d.deps.Agents.Lookup(req.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: no implementation for %s", registry.ErrAgentNotFound, req.AgentID)
	}

	var activationConfig map[string]any
	if d.deps.Activations != nil {
		act, found, err := d.deps.Activations.Get(ctx, req.UserID, req.AgentID)
		if err != nil {
			return nil, err
		}
		if found {
			activationConfig = act.Config
		}
	}

	p := &pending{
		req:    req,
		impl:   impl,
		config: registry.MergeConfig(catalog.Config, activationConfig, req.ConfigOverride),
	}
	if err := d.loadState(ctx, p); err != nil {
		return nil, err
	}

	run, err := d.deps.Ledger.Start(ctx, ledger.StartSpec{AgentID: req.AgentID, UserID: req.UserID, CoupleID: req.CoupleID})
	if err != nil {
		return nil, err
	}
	p.run = run
	return p, nil
}

// loadState reads the keyed state, falling back to the state carried on the
// latest completed run. Stored state written under another schema version
// is ignored and the agent sees a first run.
func (d *Dispatcher) loadState(ctx context.Context, p *pending) error {
	want := p.impl.Descriptor().StateVersion
	snap, found, err := d.deps.States.Load(ctx, p.req.UserID, p.req.AgentID)
	if err != nil {
		return err
	}
	if found {
		p.expected = snap.Version
		if snap.SchemaVersion == want {
			p.previous = snap.State
		} else {
			d.logger.Info().Str("agent_id", p.req.AgentID).Int("stored", snap.SchemaVersion).Int("want", want).Msg("agent state schema changed, starting fresh")
		}
		return nil
	}
	last, ok, err := d.deps.Ledger.LatestCompleted(ctx, p.req.UserID, p.req.AgentID)
	if err != nil {
		return err
	}
	if ok {
		p.previous = last.State
	}
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, p *pending) Result {
	ctx = agentcontext.WithRun(ctx, agentcontext.RunScope{RunID: p.run.ID, AgentID: p.req.AgentID, UserID: p.req.UserID})
	logger := agentcontext.Logger(ctx, d.logger)
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	// Ledger writes must land even when the invocation timed out.
	writeCtx := context.WithoutCancel(ctx)

	started := d.nowFn()
	rc := &agents.RunContext{
		UserID:        p.req.UserID,
		CoupleID:      p.req.CoupleID,
		Config:        p.config,
		PreviousState: p.previous,
		Now:           started,
		Data:          d.deps.Data,
		LLM:           d.deps.LLM,
		Logger:        logger,
	}
	outcome := d.invoke(runCtx, p.impl, rc)

	result := Result{
		RunID:   p.run.ID,
		AgentID: p.req.AgentID,
		Success: outcome.Success(),
		Outcome: outcome.Kind,
		Message: outcome.Message,
		Data:    outcome.Data,
	}

	if outcome.Kind == agents.KindFailed {
		result.Status = ledger.StatusFailed
		result.Error = outcome.Message
		if err := d.deps.Ledger.Fail(writeCtx, p.run.ID, outcome.Message, p.previous); err != nil {
			logger.Error().Err(err).Msg("record failed run")
		}
		logger.Warn().Str("error", outcome.Message).Dur("duration", d.nowFn().Sub(started)).Msg("agent run failed")
		d.touch(writeCtx, p, logger)
		return result
	}

	carried := p.previous
	if outcome.State != nil {
		next, conflict, err := d.saveState(writeCtx, p, outcome.State)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("save agent state")
			result.Data = withFlag(result.Data, "state_error", err.Error())
		case conflict:
			logger.Warn().Msg("agent state advanced by a concurrent run, state write dropped")
			result.Data = withFlag(result.Data, "state_conflict", true)
			carried = next
		default:
			carried = next
		}
	}

	record := map[string]any{"outcome": string(outcome.Kind), "message": outcome.Message}
	if len(result.Data) > 0 {
		record["data"] = result.Data
	}
	if outcome.Notifies() && schema.GetBool(p.config, configRequireApproval, false) {
		record["notify"] = map[string]any{
			"title":        outcome.Notify.Title,
			"message_type": outcome.Notify.MessageType,
			"priority":     string(outcome.Notify.Priority),
			"audience":     string(outcome.Notify.Audience),
		}
		result.Status = ledger.StatusAwaitingApproval
		if err := d.deps.Ledger.Hold(writeCtx, p.run.ID, record, carried); err != nil {
			logger.Error().Err(err).Msg("hold run for approval")
		}
		d.touch(writeCtx, p, logger)
		logger.Info().Msg("agent run awaiting approval")
		return result
	}

	result.Status = ledger.StatusCompleted
	if err := d.deps.Ledger.Complete(writeCtx, p.run.ID, record, carried); err != nil {
		var transition *ledger.StatusTransitionError
		if errors.As(err, &transition) {
			// Cancelled while the agent ran: keep the cancellation, send nothing.
			logger.Info().Str("status", string(transition.From)).Msg("run finished elsewhere, result discarded")
			result.Status = transition.From
			result.Success = false
			d.touch(writeCtx, p, logger)
			return result
		}
		logger.Error().Err(err).Msg("record completed run")
	}

	if outcome.Notifies() {
		deliverCtx, cancelDeliver := context.WithTimeout(writeCtx, d.deliveryTimeout)
		result.Notified = d.deliver(deliverCtx, p, outcome, logger)
		cancelDeliver()
	}
	d.touch(writeCtx, p, logger)

	logger.Info().
		Str("outcome", string(outcome.Kind)).
		Int("notified", result.Notified).
		Dur("duration", d.nowFn().Sub(started)).
		Msg("agent run completed")
	return result
}

// invoke runs the agent and folds returned errors and panics into a
// Failed outcome.
func (d *Dispatcher) invoke(ctx context.Context, impl agents.Agent, rc *agents.RunContext) (outcome agents.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = agents.Failed(fmt.Errorf("agent panicked: %v", r))
		}
	}()
	outcome, err := impl.Run(ctx, rc)
	if err != nil {
		return agents.Failed(err)
	}
	if outcome.Kind == "" {
		outcome.Kind = agents.KindCompleted
	}
	return outcome
}

func (d *Dispatcher) saveState(ctx context.Context, p *pending, value any) (json.RawMessage, bool, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, false, fmt.Errorf("encode agent state: %w", err)
	}
	_, err = d.deps.States.CompareAndSwap(ctx, p.expected, ledger.Snapshot{
		UserID:        p.req.UserID,
		AgentID:       p.req.AgentID,
		SchemaVersion: p.impl.Descriptor().StateVersion,
		State:         encoded,
		RunID:         p.run.ID,
	})
	if errors.Is(err, ledger.ErrStateConflict) {
		return encoded, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return encoded, false, nil
}

func (d *Dispatcher) deliver(ctx context.Context, p *pending, outcome agents.Outcome, logger zerolog.Logger) int {
	if d.deps.Notifier == nil {
		return 0
	}
	recipients := []string{p.req.UserID}
	if outcome.Notify.Audience == agents.AudienceCouple && d.deps.Data != nil {
		couple, ok, err := d.deps.Data.CoupleForUser(ctx, p.req.UserID, p.req.CoupleID)
		if err != nil {
			logger.Warn().Err(err).Msg("resolve couple for notification")
		} else if ok {
			recipients = append(recipients, couple.Partner(p.req.UserID))
		}
	}
	report, err := d.deps.Notifier.Deliver(ctx, notify.Delivery{
		AgentID:     p.req.AgentID,
		RunID:       p.run.ID,
		Recipients:  recipients,
		Title:       outcome.Notify.Title,
		Content:     outcome.Message,
		MessageType: outcome.Notify.MessageType,
		Priority:    outcome.Notify.Priority,
	})
	if err != nil {
		logger.Warn().Err(err).Int("in_app", report.InApp).Msg("notification delivery incomplete")
	}
	return report.InApp
}

func (d *Dispatcher) touch(ctx context.Context, p *pending, logger zerolog.Logger) {
	if d.deps.Activations == nil {
		return
	}
	if err := d.deps.Activations.Touch(ctx, p.req.UserID, p.req.AgentID); err != nil {
		logger.Warn().Err(err).Msg("touch activation")
	}
}

func withFlag(data map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[key] = value
	return out
}
