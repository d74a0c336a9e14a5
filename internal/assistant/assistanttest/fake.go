// Package assistanttest provides in-memory fakes of the completion and
// speech services for tests.
package assistanttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nugget/libula/internal/assistant"
)

// ErrInjected is returned by fakes when a failure is scripted.
var ErrInjected = errors.New("injected failure")

// Script is the scripted outcome of one run, consumed in CreateRun
// order.
type Script struct {
	// Statuses are reported by successive RunStatus queries. The last
	// one repeats. Empty means completed.
	Statuses []assistant.Status
	// Reply is the newest thread message once the run is queried.
	Reply string
}

// Message is an appended user message.
type Message struct {
	ThreadID string
	Text     string
}

// Service is a scripted [assistant.Service].
type Service struct {
	// Fail* inject errors into the matching call.
	FailCreateThread bool
	FailAppend       bool
	FailCreateRun    bool
	FailStatus       bool
	FailLatest       bool

	mu       sync.Mutex
	scripts  []Script
	threads  int
	runs     []assistant.Run
	messages []Message
	queries  map[string]int
	replies  map[string]string
	byRun    map[string]Script
}

// NewService returns a fake that plays scripts in order, one per run.
func NewService(scripts ...Script) *Service {
	return &Service{
		scripts: scripts,
		queries: make(map[string]int),
		replies: make(map[string]string),
		byRun:   make(map[string]Script),
	}
}

// CreateThread implements [assistant.Service].
func (s *Service) CreateThread(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateThread {
		return "", ErrInjected
	}
	s.threads++
	return fmt.Sprintf("thread_%d", s.threads), nil
}

// AppendMessage implements [assistant.Service].
func (s *Service) AppendMessage(_ context.Context, threadID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend {
		return ErrInjected
	}
	s.messages = append(s.messages, Message{ThreadID: threadID, Text: text})
	return nil
}

// CreateRun implements [assistant.Service].
func (s *Service) CreateRun(_ context.Context, threadID, instructions string) (*assistant.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateRun {
		return nil, ErrInjected
	}
	if len(s.runs) >= len(s.scripts) {
		return nil, fmt.Errorf("no script for run %d: %w", len(s.runs)+1, ErrInjected)
	}
	run := assistant.Run{
		ID:           fmt.Sprintf("run_%d", len(s.runs)+1),
		ThreadID:     threadID,
		Status:       assistant.StatusQueued,
		Instructions: instructions,
	}
	s.byRun[run.ID] = s.scripts[len(s.runs)]
	s.runs = append(s.runs, run)
	return &run, nil
}

// RunStatus implements [assistant.Service].
func (s *Service) RunStatus(ctx context.Context, threadID, runID string) (assistant.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStatus {
		return "", ErrInjected
	}
	script, ok := s.byRun[runID]
	if !ok {
		return "", fmt.Errorf("unknown run %s", runID)
	}
	n := s.queries[runID]
	s.queries[runID] = n + 1

	status := assistant.StatusCompleted
	if len(script.Statuses) > 0 {
		status = script.Statuses[min(n, len(script.Statuses)-1)]
	}
	if !status.Pending() {
		s.replies[threadID] = script.Reply
	}
	return status, nil
}

// LatestMessage implements [assistant.Service].
func (s *Service) LatestMessage(_ context.Context, threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLatest {
		return "", ErrInjected
	}
	return s.replies[threadID], nil
}

// Runs returns the runs created so far.
func (s *Service) Runs() []assistant.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]assistant.Run(nil), s.runs...)
}

// Messages returns the appended messages in order.
func (s *Service) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Queries returns how many status queries runID received.
func (s *Service) Queries(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[runID]
}

// Threads returns how many threads were created.
func (s *Service) Threads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads
}

// SpeechCall records one synthesis request.
type SpeechCall struct {
	Model string
	Voice string
	Text  string
}

// Speaker is a fake [assistant.Speaker] whose audio for a chunk is the
// chunk's own bytes, so concatenation order is observable.
type Speaker struct {
	// FailOn makes the Nth call (1-based) fail. Zero never fails.
	FailOn int

	mu    sync.Mutex
	calls []SpeechCall
}

// SynthesizeSpeech implements [assistant.Speaker].
func (s *Speaker) SynthesizeSpeech(ctx context.Context, model, voice, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SpeechCall{Model: model, Voice: voice, Text: text})
	if s.FailOn > 0 && len(s.calls) == s.FailOn {
		return nil, ErrInjected
	}
	return []byte(text), nil
}

// Calls returns the synthesis requests in order.
func (s *Speaker) Calls() []SpeechCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpeechCall(nil), s.calls...)
}
