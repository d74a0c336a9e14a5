// Package events is an in-process broadcast bus for workflow lifecycle
// events. Workflows publish as stages start and finish; subscribers
// such as the MQTT forwarder receive copies on buffered channels. A nil
// *Bus accepts Publish and Emit as no-ops.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	SourceWorkflow  = "workflow"
	SourceAssistant = "assistant"
	SourceAudio     = "audio"
	SourceCredit    = "credit"
)

// Kinds. The comment on each lists the Data keys it carries.
const (
	// KindWorkflowStart: request_id, user_id, workflow.
	KindWorkflowStart = "workflow_start"
	// KindStageDone: request_id, stage, duration_ms.
	KindStageDone = "stage_done"
	// KindRunComplete: request_id, thread_id, words.
	KindRunComplete = "run_complete"
	// KindAudioReady: request_id, story_id, bytes.
	KindAudioReady = "audio_ready"
	// KindDebit: request_id, user_id, amount, balance, ok.
	KindDebit = "debit"
	// KindWorkflowComplete: request_id, user_id, workflow, story_id,
	// elapsed_ms.
	KindWorkflowComplete = "workflow_complete"
	// KindWorkflowFailed: request_id, user_id, workflow, stage.
	KindWorkflowFailed = "workflow_failed"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus fans events out to subscribers without blocking publishers. A
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu sync.RWMutex
	// subs is keyed by the receive view handed to the subscriber.
	subs map[<-chan Event]chan Event
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[<-chan Event]chan Event)}
}

// Publish delivers e to every subscriber with buffer space.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe registers a subscriber with the given buffer size. Call
// Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = ch
	return ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	send, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(send)
}

// SubscriberCount returns the number of subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
