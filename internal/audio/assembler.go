// Package audio turns story text into one narration file. Text longer
// than the synthesis input limit is split into chunks, each chunk is
// synthesized in order, and the resulting MP3 frames are concatenated.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nugget/libula/internal/assistant"
	"github.com/nugget/libula/internal/reqctx"
)

// Defaults for narration.
const (
	DefaultModel     = "tts-1"
	DefaultVoice     = "nova"
	DefaultSplitSize = 4000
)

// ErrSynthesis means a chunk could not be synthesized. No partial audio
// is returned.
var ErrSynthesis = errors.New("speech synthesis failed")

// Config selects the synthesis model and chunk size.
type Config struct {
	Model string
	// Voice is used when Synthesize is called with an empty voice.
	Voice     string
	SplitSize int
}

// Assembler synthesizes narration for arbitrarily long text.
type Assembler struct {
	speaker   assistant.Speaker
	model     string
	voice     string
	maxLength int
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewAssembler creates an Assembler. Zero Config fields take the
// package defaults.
func NewAssembler(speaker assistant.Speaker, cfg Config, logger *slog.Logger) *Assembler {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.SplitSize <= 0 {
		cfg.SplitSize = DefaultSplitSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		speaker:   speaker,
		model:     cfg.Model,
		voice:     cfg.Voice,
		maxLength: cfg.SplitSize,
		logger:    logger,
		tracer:    otel.Tracer("github.com/nugget/libula/internal/audio"),
	}
}

// Synthesize returns the narration of text. Chunks are synthesized
// sequentially and their audio appended in chunk order; the first
// failure aborts the whole call.
func (a *Assembler) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = a.voice
	}
	chunks := SplitText(text, a.maxLength)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text", ErrSynthesis)
	}

	ctx, span := a.tracer.Start(ctx, "audio.synthesize", trace.WithAttributes(
		attribute.String("audio.voice", voice),
		attribute.Int("audio.chars", utf8.RuneCountInString(text)),
		attribute.Int("audio.chunks", len(chunks)),
	))
	defer span.End()

	log := reqctx.Logger(ctx, a.logger)
	if len(chunks) > 1 {
		log.Info("splitting narration", "chunks", len(chunks), "max_length", a.maxLength)
	}

	start := time.Now()
	var out bytes.Buffer
	for i, chunk := range chunks {
		data, err := a.speaker.SynthesizeSpeech(ctx, a.model, voice, chunk)
		if err != nil {
			log.Error("chunk synthesis failed", "chunk", i+1, "of", len(chunks), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "chunk synthesis failed")
			return nil, fmt.Errorf("%w: chunk %d of %d: %w", ErrSynthesis, i+1, len(chunks), err)
		}
		out.Write(data)
	}

	log.Debug("narration synthesized",
		"bytes", out.Len(),
		"chunks", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	span.SetAttributes(attribute.Int("audio.bytes", out.Len()))
	return out.Bytes(), nil
}
