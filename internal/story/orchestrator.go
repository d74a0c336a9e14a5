// Package story turns assistant replies into story drafts. An
// [Orchestrator] runs two prompts on one conversation thread, the story
// and then its follow-up suggestions, and parses both replies. Nothing
// is persisted here; a draft is either complete or not returned.
package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nugget/libula/internal/reqctx"
)

// DefaultModelTag is recorded on drafts when no tag is configured.
const DefaultModelTag = "openAI"

// Asker runs one prompt on a conversation thread and returns the reply.
// [assistant.Poller] implements it.
type Asker interface {
	NewThread(ctx context.Context) (string, error)
	Ask(ctx context.Context, threadID, message, instructions string) (string, error)
}

// Prompt is the pair of prompts for one draft.
type Prompt struct {
	User             string
	System           string
	SuggestionUser   string
	SuggestionSystem string
}

// Suggestion is a proposed continuation.
type Suggestion struct {
	Title   string
	Message string
	Used    bool
}

// Draft is a generated, parsed, not yet persisted story.
type Draft struct {
	// RawText is the unparsed story reply.
	RawText        string
	Title          string
	Body           string
	WordCount      int
	CharacterCount int
	Suggestions    []Suggestion
	ThreadID       string
	Model          string
}

// Orchestrator produces drafts.
type Orchestrator struct {
	asker    Asker
	modelTag string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewOrchestrator creates an Orchestrator. An empty modelTag uses
// [DefaultModelTag].
func NewOrchestrator(asker Asker, modelTag string, logger *slog.Logger) *Orchestrator {
	if modelTag == "" {
		modelTag = DefaultModelTag
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		asker:    asker,
		modelTag: modelTag,
		logger:   logger,
		tracer:   otel.Tracer("github.com/nugget/libula/internal/story"),
	}
}

// NewStory generates a story and its suggestions. A new thread is
// created when threadID is empty.
func (o *Orchestrator) NewStory(ctx context.Context, p Prompt, threadID string) (*Draft, error) {
	if threadID == "" {
		id, err := o.asker.NewThread(ctx)
		if err != nil {
			return nil, fmt.Errorf("new thread: %w", err)
		}
		threadID = id
	}
	return o.draft(ctx, "story.new", p, threadID)
}

// ContinueStory generates the next chapter on an existing thread.
func (o *Orchestrator) ContinueStory(ctx context.Context, p Prompt, threadID string) (*Draft, error) {
	if threadID == "" {
		return nil, errors.New("continue story: thread id required")
	}
	return o.draft(ctx, "story.continue", p, threadID)
}

func (o *Orchestrator) draft(ctx context.Context, name string, p Prompt, threadID string) (*Draft, error) {
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("assistant.thread_id", threadID),
	))
	defer span.End()

	d, err := o.generate(ctx, p, threadID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("story.word_count", d.WordCount),
		attribute.Int("story.suggestions", len(d.Suggestions)),
	)
	return d, nil
}

func (o *Orchestrator) generate(ctx context.Context, p Prompt, threadID string) (*Draft, error) {
	log := reqctx.Logger(ctx, o.logger).With("thread_id", threadID)

	raw, err := o.asker.Ask(ctx, threadID, p.User, p.System)
	if err != nil {
		return nil, fmt.Errorf("story run: %w", err)
	}
	title, body, err := ExtractTitle(raw)
	if err != nil {
		log.Error("story reply rejected", "error", err, "reply_chars", len(raw))
		return nil, err
	}
	d := &Draft{
		RawText:        raw,
		Title:          title,
		Body:           body,
		WordCount:      CountWords(body),
		CharacterCount: CountCharacters(body),
		ThreadID:       threadID,
		Model:          o.modelTag,
	}
	log.Info("story generated", "title", title, "words", d.WordCount, "characters", d.CharacterCount)

	rawSuggestions, err := o.asker.Ask(ctx, threadID, p.SuggestionUser, p.SuggestionSystem)
	if err != nil {
		return nil, fmt.Errorf("suggestion run: %w", err)
	}
	d.Suggestions, err = ParseSuggestions(rawSuggestions)
	if err != nil {
		log.Error("suggestion reply rejected", "error", err, "reply", rawSuggestions)
		return nil, err
	}
	log.Info("suggestions generated", "count", len(d.Suggestions))
	return d, nil
}
