// Package workflow runs the three story pipelines: a new story, the
// continuation of a story from one of its suggestions, and narration
// audio for a story. Each pipeline is a strict sequence of stages;
// the first failing stage ends the run, is logged and recorded in the
// ledger with its cause, and the caller sees only [ErrWorkflowFailed].
// Insufficient credit is the one failure reported as itself.
//
// Persistence across stages is not transactional. A run that fails
// after its first write leaves the earlier rows in place.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nugget/libula/internal/credit"
	"github.com/nugget/libula/internal/events"
	"github.com/nugget/libula/internal/ledger"
	"github.com/nugget/libula/internal/reqctx"
	"github.com/nugget/libula/internal/store"
	"github.com/nugget/libula/internal/story"
)

var (
	// ErrWorkflowFailed is the only failure callers see, apart from
	// [credit.ErrInsufficientCredit].
	ErrWorkflowFailed = errors.New("workflow failed")
	// ErrContext means the rows a prompt is built from could not be
	// read or were incomplete.
	ErrContext = errors.New("story context unavailable")
	// ErrPersistence means a generated artifact could not be stored.
	ErrPersistence = errors.New("persistence failed")
)

// Workflow names, as logged and recorded.
const (
	NameNewStory      = "new_story"
	NameContinueStory = "continue_story"
	NameAudioStory    = "audio_story"
)

// Generator produces story drafts. [story.Orchestrator] implements it.
type Generator interface {
	NewStory(ctx context.Context, p story.Prompt, threadID string) (*story.Draft, error)
	ContinueStory(ctx context.Context, p story.Prompt, threadID string) (*story.Draft, error)
}

// Narrator produces narration audio. [audio.Assembler] implements it.
type Narrator interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Recorder stores run outcomes. [ledger.Store] implements it.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Config holds prices and storage settings.
type Config struct {
	StoryCost int64
	AudioCost int64
	// CreditAttempts bounds debit retries under contention.
	CreditAttempts int
	Bucket         string
	SignedURLTTL   time.Duration
	// StripMarkdown narrates story text with Markdown removed.
	StripMarkdown bool
}

// Coordinator runs workflows. It is safe for concurrent use; every run
// is independent.
type Coordinator struct {
	store    *store.Store
	stories  Generator
	narrator Narrator
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer

	ledger Recorder
	bus    *events.Bus

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLedger records every run in r.
func WithLedger(r Recorder) Option {
	return func(c *Coordinator) { c.ledger = r }
}

// WithBus publishes lifecycle events on b.
func WithBus(b *events.Bus) Option {
	return func(c *Coordinator) { c.bus = b }
}

// WithRand sets the source used to pick authors.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) { c.rand = r }
}

// New creates a Coordinator.
func New(st *store.Store, stories Generator, narrator Narrator, cfg Config, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:    st,
		stories:  stories,
		narrator: narrator,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/nugget/libula/internal/workflow"),
		rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) intn(n int) int {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return c.rand.IntN(n)
}

// run tracks one workflow invocation.
type run struct {
	c     *Coordinator
	log   *slog.Logger
	span  trace.Span
	start time.Time
	entry ledger.Entry
}

// begin assigns a request id and binds the request logger and span to
// ctx.
func (c *Coordinator) begin(ctx context.Context, name, userID string) (context.Context, *run) {
	id := newRequestID()
	log := c.logger.With("request_id", id, "user_id", userID, "workflow", name)

	ctx = reqctx.WithRequestID(ctx, id)
	ctx = reqctx.WithLogger(ctx, log)
	ctx, span := c.tracer.Start(ctx, "workflow."+name, trace.WithAttributes(
		attribute.String("libula.workflow", name),
		attribute.String("libula.user_id", userID),
	))

	log.Info("workflow started")
	c.bus.Emit(events.SourceWorkflow, events.KindWorkflowStart, map[string]any{
		"request_id": id, "user_id": userID, "workflow": name,
	})

	return ctx, &run{
		c:     c,
		log:   log,
		span:  span,
		start: time.Now(),
		entry: ledger.Entry{RequestID: id, UserID: userID, Workflow: name},
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// stage runs fn as the named stage. A failure is tagged with the stage
// name for the ledger.
func (r *run) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := r.c.tracer.Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.entry.Stage = name
		return err
	}
	elapsed := time.Since(start)
	r.log.Debug("stage done", "stage", name, "elapsed", elapsed.Round(time.Millisecond))
	r.c.bus.Emit(events.SourceWorkflow, events.KindStageDone, map[string]any{
		"request_id": r.entry.RequestID, "stage": name, "duration_ms": elapsed.Milliseconds(),
	})
	return nil
}

// fail ends the run with err and returns what the caller may see.
func (r *run) fail(ctx context.Context, err error) error {
	defer r.span.End()
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, r.entry.Stage)

	r.entry.Error = err.Error()
	r.entry.Duration = time.Since(r.start)
	if errors.Is(err, credit.ErrInsufficientCredit) {
		r.entry.Outcome = ledger.OutcomeRejected
		r.log.Warn("workflow rejected", "reason", err)
	} else {
		r.entry.Outcome = ledger.OutcomeFailed
		r.log.Error("workflow failed", "stage", r.entry.Stage, "error", err,
			"elapsed", r.entry.Duration.Round(time.Millisecond))
	}
	r.record(ctx)
	r.c.bus.Emit(events.SourceWorkflow, events.KindWorkflowFailed, map[string]any{
		"request_id": r.entry.RequestID,
		"user_id":    r.entry.UserID,
		"workflow":   r.entry.Workflow,
		"stage":      r.entry.Stage,
	})

	if r.entry.Outcome == ledger.OutcomeRejected {
		return credit.ErrInsufficientCredit
	}
	return fmt.Errorf("%w (request %s)", ErrWorkflowFailed, r.entry.RequestID)
}

// finish ends a successful run.
func (r *run) finish(ctx context.Context) {
	defer r.span.End()
	r.entry.Outcome = ledger.OutcomeOK
	r.entry.Duration = time.Since(r.start)
	r.span.SetAttributes(attribute.Int64("libula.story_id", r.entry.StoryID))

	r.log.Info("workflow complete",
		"story_id", r.entry.StoryID,
		"charged", r.entry.Charged,
		"elapsed", r.entry.Duration.Round(time.Millisecond),
	)
	r.record(ctx)
	r.c.bus.Emit(events.SourceWorkflow, events.KindWorkflowComplete, map[string]any{
		"request_id": r.entry.RequestID,
		"user_id":    r.entry.UserID,
		"workflow":   r.entry.Workflow,
		"story_id":   r.entry.StoryID,
		"elapsed_ms": r.entry.Duration.Milliseconds(),
	})
}

func (r *run) record(ctx context.Context) {
	if r.c.ledger == nil {
		return
	}
	if err := r.c.ledger.Record(context.WithoutCancel(ctx), r.entry); err != nil {
		r.log.Warn("ledger record failed", "error", err)
	}
}

// checkCredit gates a run on a positive balance.
func (r *run) checkCredit(ctx context.Context, acct *credit.Account) error {
	return r.stage(ctx, "credit_check", func(ctx context.Context) error {
		return acct.Check(ctx, r.entry.UserID)
	})
}

// debit charges for completed work. Failure is logged and never undoes
// the run.
func (r *run) debit(ctx context.Context, acct *credit.Account, amount int64) {
	if amount <= 0 {
		return
	}
	_ = r.stage(ctx, "debit", func(ctx context.Context) error {
		bal, err := acct.Debit(ctx, r.entry.UserID, amount)
		r.c.bus.Emit(events.SourceCredit, events.KindDebit, map[string]any{
			"request_id": r.entry.RequestID,
			"user_id":    r.entry.UserID,
			"amount":     amount,
			"balance":    bal,
			"ok":         err == nil,
		})
		if err != nil {
			r.log.Error("credit debit failed", "amount", amount, "error", err)
			return err
		}
		r.entry.Charged = amount
		return nil
	})
	r.entry.Stage = ""
}

// account returns a credit account acting with the store's identity.
func (c *Coordinator) account(st *store.Store) *credit.Account {
	return credit.NewAccount(st, c.cfg.CreditAttempts, c.logger)
}
