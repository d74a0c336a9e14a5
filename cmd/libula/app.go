package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/libula/internal/assistant"
	"github.com/nugget/libula/internal/audio"
	"github.com/nugget/libula/internal/buildinfo"
	"github.com/nugget/libula/internal/config"
	"github.com/nugget/libula/internal/events"
	"github.com/nugget/libula/internal/ledger"
	"github.com/nugget/libula/internal/mqtt"
	"github.com/nugget/libula/internal/observability"
	"github.com/nugget/libula/internal/store"
	"github.com/nugget/libula/internal/story"
	"github.com/nugget/libula/internal/supabase"
	"github.com/nugget/libula/internal/workflow"
)

// app is the wired workflow stack for one CLI invocation.
type app struct {
	coord  *workflow.Coordinator
	logger *slog.Logger

	tracing *observability.Provider
	ledger  *ledger.Store
	bus     *events.Bus
	mqtt    *mqtt.Publisher
	sub     <-chan events.Event
	fwdDone chan struct{}
}

// newStore opens the Supabase repository with the service identity.
func newStore(cfg *config.Config, logger *slog.Logger) *store.Store {
	db := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.ServiceToken, cfg.Supabase.Timeout, logger)
	return store.New(db)
}

// newApp wires tracing, the ledger, the optional MQTT forwarder, and
// the workflow coordinator. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, bus: events.New()}

	tp, err := observability.Init(ctx, cfg.Tracing, buildinfo.Version)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracing = tp

	a.ledger, err = ledger.NewStore(cfg.Ledger.Path)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if cfg.MQTT.Configured() {
		pub := mqtt.New(cfg.MQTT, logger)
		if err := pub.Start(ctx); err != nil {
			logger.Warn("mqtt publisher unavailable", "error", err)
		} else {
			a.mqtt = pub
			a.sub = a.bus.Subscribe(256)
			a.fwdDone = make(chan struct{})
			go func() {
				defer close(a.fwdDone)
				if err := pub.Forward(context.WithoutCancel(ctx), a.sub); err != nil {
					logger.Warn("mqtt forwarder stopped", "error", err)
				}
			}()
		}
	}

	svc := assistant.NewOpenAIService(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.AssistantID, logger)
	poller := assistant.NewPoller(svc, assistant.PollerConfig{
		Interval: cfg.Assistant.PollInterval,
		Timeout:  cfg.Assistant.PollTimeout,
		MaxPolls: cfg.Assistant.MaxPolls,
	}, logger)
	narrator := audio.NewAssembler(svc, audio.Config{
		Model:     cfg.Audio.Model,
		Voice:     cfg.Audio.DefaultVoice,
		SplitSize: cfg.Audio.SplitSize,
	}, logger)

	a.coord = workflow.New(
		newStore(cfg, logger),
		story.NewOrchestrator(poller, cfg.OpenAI.ModelTag, logger),
		narrator,
		workflow.Config{
			StoryCost:      cfg.Credits.StoryCost,
			AudioCost:      cfg.Credits.AudioCost,
			CreditAttempts: cfg.Credits.MaxAttempts,
			Bucket:         cfg.Storage.Bucket,
			SignedURLTTL:   cfg.Storage.SignedURLTTL,
			StripMarkdown:  cfg.Audio.StripMarkdown,
		},
		logger,
		workflow.WithLedger(a.ledger),
		workflow.WithBus(a.bus),
	)
	return a, nil
}

// close flushes buffered events to the broker, then shuts down the
// publisher, the ledger, and the tracer provider.
func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if a.mqtt != nil {
		a.bus.Unsubscribe(a.sub)
		select {
		case <-a.fwdDone:
		case <-ctx.Done():
			a.logger.Warn("mqtt forwarder did not drain")
		}
		if err := a.mqtt.Stop(ctx); err != nil {
			a.logger.Debug("mqtt disconnect", "error", err)
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("ledger close", "error", err)
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown", "error", err)
		}
	}
}
