package story

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type askCall struct {
	threadID     string
	message      string
	instructions string
}

type fakeAsker struct {
	replies   []string
	errs      []error
	calls     []askCall
	threads   int
	threadErr error
}

func (f *fakeAsker) NewThread(context.Context) (string, error) {
	if f.threadErr != nil {
		return "", f.threadErr
	}
	f.threads++
	return "thread_new", nil
}

func (f *fakeAsker) Ask(_ context.Context, threadID, message, instructions string) (string, error) {
	i := len(f.calls)
	f.calls = append(f.calls, askCall{threadID, message, instructions})
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i >= len(f.replies) {
		return "", errors.New("no reply scripted")
	}
	return f.replies[i], nil
}

func newTestOrchestrator(a Asker) *Orchestrator {
	return NewOrchestrator(a, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var testPrompt = Prompt{
	User:             "write a story",
	System:           "story system",
	SuggestionUser:   "suggest",
	SuggestionSystem: "suggestion system",
}

func TestNewStory(t *testing.T) {
	a := &fakeAsker{replies: []string{
		"**The Brave Fox**\n\nThe fox ran far.",
		"```json\n[{\"title\":\"Home\",\"message\":\"The fox goes home.\"}]\n```",
	}}
	o := newTestOrchestrator(a)

	d, err := o.NewStory(context.Background(), testPrompt, "")
	if err != nil {
		t.Fatalf("NewStory: %v", err)
	}

	if a.threads != 1 || d.ThreadID != "thread_new" {
		t.Errorf("thread = %q (created %d), want one new thread", d.ThreadID, a.threads)
	}
	if d.Title != "The Brave Fox" || d.Body != "The fox ran far." {
		t.Errorf("draft title/body = %q/%q", d.Title, d.Body)
	}
	if d.WordCount != 4 || d.CharacterCount != 16 {
		t.Errorf("counts = %d words, %d chars; want 4, 16", d.WordCount, d.CharacterCount)
	}
	if d.Model != DefaultModelTag {
		t.Errorf("Model = %q, want %q", d.Model, DefaultModelTag)
	}
	if d.RawText != a.replies[0] {
		t.Errorf("RawText = %q, want story reply", d.RawText)
	}
	if len(d.Suggestions) != 1 || d.Suggestions[0].Title != "Home" || d.Suggestions[0].Used {
		t.Errorf("suggestions = %+v", d.Suggestions)
	}

	want := []askCall{
		{"thread_new", "write a story", "story system"},
		{"thread_new", "suggest", "suggestion system"},
	}
	if len(a.calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(a.calls), len(want))
	}
	for i := range want {
		if a.calls[i] != want[i] {
			t.Errorf("call[%d] = %+v, want %+v", i, a.calls[i], want[i])
		}
	}
}

func TestNewStory_ExistingThread(t *testing.T) {
	a := &fakeAsker{replies: []string{"**T**\nbody", "[]"}}
	d, err := newTestOrchestrator(a).NewStory(context.Background(), testPrompt, "thread_given")
	if err != nil {
		t.Fatalf("NewStory: %v", err)
	}
	if a.threads != 0 || d.ThreadID != "thread_given" {
		t.Errorf("thread = %q, created %d; want thread_given, 0", d.ThreadID, a.threads)
	}
}

func TestNewStory_Failures(t *testing.T) {
	runErr := errors.New("run failed")
	tests := []struct {
		name      string
		asker     *fakeAsker
		wantErr   error
		wantCalls int
	}{
		{
			name:      "story run fails",
			asker:     &fakeAsker{errs: []error{runErr}},
			wantErr:   runErr,
			wantCalls: 1,
		},
		{
			name:      "story without title",
			asker:     &fakeAsker{replies: []string{"no title here", "[]"}},
			wantErr:   ErrParse,
			wantCalls: 1,
		},
		{
			name:      "suggestion run fails",
			asker:     &fakeAsker{replies: []string{"**T**\nbody"}, errs: []error{nil, runErr}},
			wantErr:   runErr,
			wantCalls: 2,
		},
		{
			name:      "suggestions unparseable",
			asker:     &fakeAsker{replies: []string{"**T**\nbody", "Sure! Here are ideas."}},
			wantErr:   ErrParse,
			wantCalls: 2,
		},
		{
			name:      "thread creation fails",
			asker:     &fakeAsker{threadErr: runErr},
			wantErr:   runErr,
			wantCalls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := newTestOrchestrator(tt.asker).NewStory(context.Background(), testPrompt, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewStory error = %v, want %v", err, tt.wantErr)
			}
			if d != nil {
				t.Errorf("NewStory returned draft %+v on failure", d)
			}
			if len(tt.asker.calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(tt.asker.calls), tt.wantCalls)
			}
		})
	}
}

func TestContinueStory(t *testing.T) {
	a := &fakeAsker{replies: []string{"**Part Two**\nMore.", `[{"title":"Three","message":"Go on."}]`}}
	o := NewOrchestrator(a, "custom", nil)

	d, err := o.ContinueStory(context.Background(), testPrompt, "thread_9")
	if err != nil {
		t.Fatalf("ContinueStory: %v", err)
	}
	if d.ThreadID != "thread_9" || d.Title != "Part Two" || d.Model != "custom" {
		t.Errorf("draft = %+v", d)
	}
	if a.threads != 0 {
		t.Errorf("ContinueStory created %d threads", a.threads)
	}

	if _, err := o.ContinueStory(context.Background(), testPrompt, ""); err == nil {
		t.Error("ContinueStory without thread should fail")
	}
}
