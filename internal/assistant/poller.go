package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nugget/libula/internal/reqctx"
)

// Default poll settings.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
	DefaultMaxPolls     = 200
)

// PollerConfig bounds how long a run may stay pending.
type PollerConfig struct {
	// Interval is the wait between status queries.
	Interval time.Duration
	// Timeout is the overall deadline for one AwaitCompletion call.
	// Zero disables the deadline.
	Timeout time.Duration
	// MaxPolls is the most status queries one AwaitCompletion call may
	// issue. Zero disables the limit.
	MaxPolls int
}

// Poller submits runs and waits for them to finish.
type Poller struct {
	svc    Service
	cfg    PollerConfig
	logger *slog.Logger
	tracer trace.Tracer

	// sleep suspends between status queries. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller over svc. A zero Interval uses
// [DefaultPollInterval].
func NewPoller(svc Service, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("github.com/nugget/libula/internal/assistant"),
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewThread creates a conversation thread.
func (p *Poller) NewThread(ctx context.Context) (string, error) {
	id, err := p.svc.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	reqctx.Logger(ctx, p.logger).Debug("thread created", "thread_id", id)
	return id, nil
}

// Submit appends message to the thread and starts a run with the given
// instructions. The run is not started if the append fails.
func (p *Poller) Submit(ctx context.Context, threadID, message, instructions string) (string, error) {
	if err := p.svc.AppendMessage(ctx, threadID, message); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	run, err := p.svc.CreateRun(ctx, threadID, instructions)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	reqctx.Logger(ctx, p.logger).Debug("run submitted",
		"thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return run.ID, nil
}

// AwaitCompletion polls the run until it reaches a terminal status.
// It returns nil for any non-failure terminal status, [ErrRunFailed]
// for failed, cancelled, or expired, and [ErrRunTimeout] when the
// deadline or poll budget is exhausted first. A failed status query is
// returned as-is without retry.
func (p *Poller) AwaitCompletion(ctx context.Context, threadID, runID string) error {
	log := reqctx.Logger(ctx, p.logger).With("thread_id", threadID, "run_id", runID)

	parent := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	for polls := 1; ; polls++ {
		status, err := p.svc.RunStatus(ctx, threadID, runID)
		if err != nil {
			if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: deadline %s reached after %d polls", ErrRunTimeout, p.cfg.Timeout, polls)
			}
			return fmt.Errorf("poll run %s: %w", runID, err)
		}

		switch {
		case status.Pending():
		case status.Failed():
			log.Error("run ended unsuccessfully", "status", status, "polls", polls)
			return fmt.Errorf("%w: run %s %s", ErrRunFailed, runID, status)
		default:
			if status != StatusCompleted {
				log.Warn("run ended in non-failure status, treating as complete", "status", status)
			}
			log.Debug("run complete",
				"status", status,
				"polls", polls,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return nil
		}

		if p.cfg.MaxPolls > 0 && polls >= p.cfg.MaxPolls {
			log.Error("run still pending after poll budget", "status", status, "polls", polls)
			return fmt.Errorf("%w: still %s after %d polls", ErrRunTimeout, status, polls)
		}

		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			if parent.Err() != nil {
				return fmt.Errorf("await run %s: %w", runID, parent.Err())
			}
			log.Error("run still pending at deadline", "status", status, "polls", polls)
			return fmt.Errorf("%w: deadline %s reached after %d polls", ErrRunTimeout, p.cfg.Timeout, polls)
		}
	}
}

// Ask submits message on the thread, waits for the run, and returns the
// newest message text.
func (p *Poller) Ask(ctx context.Context, threadID, message, instructions string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "assistant.ask",
		trace.WithAttributes(
			attribute.String("assistant.thread_id", threadID),
			attribute.Int("assistant.prompt_chars", len(message)),
		))
	defer span.End()

	reply, err := p.ask(ctx, threadID, message, instructions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("assistant.reply_chars", len(reply)))
	return reply, nil
}

func (p *Poller) ask(ctx context.Context, threadID, message, instructions string) (string, error) {
	runID, err := p.Submit(ctx, threadID, message, instructions)
	if err != nil {
		return "", err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("assistant.run_id", runID))

	if err := p.AwaitCompletion(ctx, threadID, runID); err != nil {
		return "", err
	}

	reply, err := p.svc.LatestMessage(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("fetch reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("run %s: %w", runID, ErrEmptyResponse)
	}
	return reply, nil
}
