package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/oliveapp/olive-agents/internal/agents"
	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/api"
	"github.com/oliveapp/olive-agents/internal/config"
	"github.com/oliveapp/olive-agents/internal/dispatch"
	"github.com/oliveapp/olive-agents/internal/ledger"
	"github.com/oliveapp/olive-agents/internal/notifications"
	"github.com/oliveapp/olive-agents/internal/notify"
	"github.com/oliveapp/olive-agents/internal/registry"
	"github.com/oliveapp/olive-agents/internal/state"
)

// app is the fully wired runner used by serve and by --local commands.
type app struct {
	cfg         config.Config
	logger      zerolog.Logger
	db          *state.DB
	registry    *registry.Registry
	activations *registry.Activations
	ledger      *ledger.Ledger
	inbox       *notifications.Inbox
	dispatcher  *dispatch.Dispatcher
	llmModel    string
}

func openApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	db, err := state.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		registry:    registry.New(db, registry.WithLogger(logger)),
		activations: registry.NewActivations(db, registry.WithLogger(logger)),
		ledger:      ledger.New(db, ledger.WithLogger(logger), ledger.WithInflightWindow(cfg.Dispatch.InflightWindow)),
		inbox:       notifications.NewInbox(db),
	}
	if err := a.registry.SeedDefaults(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if n, err := a.ledger.ReconcileStale(ctx); err != nil {
		_ = db.Close()
		return nil, err
	} else if n > 0 {
		logger.Info().Int64("count", n).Msg("reconciled abandoned runs at startup")
	}

	var llm ai.Generator
	if cfg.LLM.APIKey != "" {
		client, err := ai.NewClient(ctx, ai.Config{Model: cfg.LLM.Model, APIKey: cfg.LLM.APIKey})
		if err != nil {
			logger.Warn().Err(err).Msg("LLM disabled")
		} else {
			llm = client
			a.llmModel = client.Model()
		}
	} else {
		logger.Warn().Msg("llm.api_key not set, agents that need the LLM will fail")
	}

	gateway, err := buildGateway(cfg.Notify, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store := state.NewStore(db)
	notifier := notify.New(a.inbox, store, notify.WithGateway(gateway), notify.WithLogger(logger))

	a.dispatcher = dispatch.New(dispatch.Deps{
		Registry:    a.registry,
		Activations: a.activations,
		Ledger:      a.ledger,
		States:      ledger.NewStateStore(db, ledger.WithLogger(logger)),
		Agents:      agents.Builtin(),
		Data:        store,
		LLM:         llm,
		Notifier:    notifier,
	}, dispatch.WithLogger(logger), dispatch.WithTimeout(cfg.Dispatch.Timeout))
	return a, nil
}

func (a *app) Close() error {
	a.dispatcher.Wait()
	return a.db.Close()
}

func (a *app) apiServer(startedAt time.Time) *api.Server {
	return &api.Server{
		Dispatcher:  a.dispatcher,
		Ledger:      a.ledger,
		Registry:    a.registry,
		Activations: a.activations,
		Inbox:       a.inbox,
		Logger:      a.logger,
		StartedAt:   startedAt,
		Info: api.DiagnosticsInfo{
			HTTPAddr:       a.cfg.HTTP.Addr,
			StorageDriver:  a.cfg.Storage.Driver,
			LLMModel:       a.llmModel,
			LLMConfigured:  a.llmModel != "",
			NotifyGateway:  a.cfg.Notify.Gateway,
			InflightWindow: a.cfg.Dispatch.InflightWindow.String(),
		},
	}
}

func buildGateway(cfg config.NotifyConfig, logger zerolog.Logger) (notify.Gateway, error) {
	switch cfg.Gateway {
	case "", "none":
		return notify.LogGateway{Logger: logger}, nil
	case "twilio":
		return notify.NewTwilioGateway(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	case "http":
		return notify.NewHTTPGateway(cfg.HTTP.URL, cfg.HTTP.Token, &http.Client{Timeout: 15 * time.Second}), nil
	default:
		return nil, fmt.Errorf("unknown notify gateway %q", cfg.Gateway)
	}
}
