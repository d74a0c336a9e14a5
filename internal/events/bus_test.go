package events

import (
	"sync"
	"testing"
	"time"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Source: SourceWorkflow, Kind: KindWorkflowStart})
	b.Emit(SourceWorkflow, KindWorkflowStart, nil)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestEmit(t *testing.T) {
	b := New()
	ch := b.Subscribe(4)
	defer b.Unsubscribe(ch)

	before := time.Now()
	b.Emit(SourceWorkflow, KindStageDone, map[string]any{"stage": "persist"})

	select {
	case got := <-ch:
		if got.Source != SourceWorkflow || got.Kind != KindStageDone {
			t.Errorf("got %s/%s, want %s/%s", got.Source, got.Kind, SourceWorkflow, KindStageDone)
		}
		if got.Data["stage"] != "persist" {
			t.Errorf("stage = %v, want persist", got.Data["stage"])
		}
		if got.Timestamp.Before(before) {
			t.Errorf("timestamp %v before emit %v", got.Timestamp, before)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishFanOut(t *testing.T) {
	b := New()
	const n = 4
	subs := make([]<-chan Event, n)
	for i := range n {
		subs[i] = b.Subscribe(2)
	}

	b.Publish(Event{Source: SourceAssistant, Kind: KindRunComplete})

	for i, ch := range subs {
		select {
		case got := <-ch:
			if got.Kind != KindRunComplete {
				t.Errorf("subscriber %d: kind = %q", i, got.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
		b.Unsubscribe(ch)
	}
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d after unsubscribing all", got)
	}
}

func TestFullSubscriberMissesEvents(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Emit(SourceWorkflow, "first", nil)
	b.Emit(SourceWorkflow, "second", nil)

	if got := <-ch; got.Kind != "first" {
		t.Errorf("kind = %q, want first", got.Kind)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected event %v", e)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)
	b.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	b.Emit(SourceWorkflow, KindWorkflowFailed, nil)
}

func TestConcurrentEmit(t *testing.T) {
	b := New()
	ch := b.Subscribe(16)

	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		for range ch {
		}
	}()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				b.Emit(SourceCredit, KindDebit, map[string]any{"worker": i, "seq": j})
			}
		}()
	}
	wg.Wait()
	b.Unsubscribe(ch)
	drained.Wait()
}
