// Package assistant drives remote completion jobs on a hosted
// assistant: a message is appended to a conversation thread, a run is
// started against the thread, and the run is polled until it reaches a
// terminal status. The newest thread message is then the response.
package assistant

import (
	"context"
	"errors"
)

// Errors returned by the poller. Callers match them with errors.Is.
var (
	// ErrSubmission means the message could not be appended or the run
	// could not be started.
	ErrSubmission = errors.New("run submission failed")
	// ErrRunFailed means the run reached failed, cancelled, or expired.
	ErrRunFailed = errors.New("run failed")
	// ErrRunTimeout means the run was still pending when the poll
	// deadline or the poll budget ran out.
	ErrRunTimeout = errors.New("run did not finish in time")
	// ErrEmptyResponse means the run finished but left no text reply.
	ErrEmptyResponse = errors.New("empty response")
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses reported by the service.
const (
	StatusQueued         Status = "queued"
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCancelling     Status = "cancelling"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
	StatusCompleted      Status = "completed"
	StatusIncomplete     Status = "incomplete"
	StatusExpired        Status = "expired"
)

// Pending reports whether the run has not reached a terminal status.
// A cancelling run is still pending; it settles as cancelled.
func (s Status) Pending() bool {
	return s == StatusQueued || s == StatusInProgress || s == StatusCancelling
}

// Failed reports whether the run ended without a usable result.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusExpired
}

// Run is one asynchronous execution of the assistant against a thread.
type Run struct {
	ID           string
	ThreadID     string
	Status       Status
	Instructions string
}

// Service is the remote completion service.
type Service interface {
	// CreateThread starts an empty conversation thread.
	CreateThread(ctx context.Context) (string, error)
	// AppendMessage adds a user message to a thread.
	AppendMessage(ctx context.Context, threadID, text string) error
	// CreateRun starts the configured assistant on a thread.
	CreateRun(ctx context.Context, threadID, instructions string) (*Run, error)
	// RunStatus returns the current status of a run.
	RunStatus(ctx context.Context, threadID, runID string) (Status, error)
	// LatestMessage returns the text of the newest message in a thread.
	LatestMessage(ctx context.Context, threadID string) (string, error)
}

// Speaker synthesizes narration audio.
type Speaker interface {
	SynthesizeSpeech(ctx context.Context, model, voice, text string) ([]byte, error)
}
