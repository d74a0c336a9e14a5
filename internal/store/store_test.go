package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nugget/libula/internal/supabase"
	"github.com/nugget/libula/internal/supabase/supabasetest"
)

func testStore(t *testing.T) (*Store, *supabasetest.Server) {
	t.Helper()
	srv := supabasetest.NewServer(t)
	db := supabase.NewClient(srv.URL, "anon", "service", 5*time.Second, nil)
	return New(db), srv
}

func TestCharacter(t *testing.T) {
	s, srv := testStore(t)
	srv.Seed("characters", map[string]any{
		"id": 7, "user_id": "u-1", "name": "Mila", "gender_type": "female", "age_id": 3,
	})

	c, err := s.Character(context.Background(), 7)
	if err != nil {
		t.Fatalf("Character(7): %v", err)
	}
	if c.Name != "Mila" || c.AgeID != 3 || c.UserID != "u-1" {
		t.Errorf("Character(7) = %+v", c)
	}

	_, err = s.Character(context.Background(), 8)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Character(8) error = %v, want ErrNotFound", err)
	}
}

func TestStoriesByUser_NewestFirst(t *testing.T) {
	s, srv := testStore(t)
	srv.Seed("stories",
		map[string]any{"id": 1, "user_id": "u-1", "stories_author_id": 10},
		map[string]any{"id": 2, "user_id": "u-1", "stories_author_id": 11},
	)

	got, err := s.StoriesByUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("StoriesByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[0].StoriesAuthorID != 11 {
		t.Errorf("StoriesByUser = %+v, want id 2 first", got)
	}
}

func TestTranslations_EmptyIsNotFound(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Translations(context.Background(), "de"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Translations(de) error = %v, want ErrNotFound", err)
	}
}

func TestInsertStoryAndLink(t *testing.T) {
	s, srv := testStore(t)
	ctx := context.Background()

	threadID, err := s.InsertThread(ctx, "thread_abc", "u-1")
	if err != nil {
		t.Fatalf("InsertThread: %v", err)
	}
	if threadID == 0 {
		t.Fatal("InsertThread returned id 0")
	}

	id, err := s.InsertStory(ctx, NewStory{
		UserID:    "u-1",
		Title:     "The Lantern",
		Text:      "Once upon a time.",
		ThreadID:  threadID,
		ImageID:   DefaultImageID,
		WordCount: 4,
		AIModel:   "openAI",
	})
	if err != nil {
		t.Fatalf("InsertStory: %v", err)
	}
	if err := s.LinkStory(ctx, id, id, RelationMain); err != nil {
		t.Fatalf("LinkStory: %v", err)
	}

	st, err := s.StoryByParent(ctx, id)
	if err != nil {
		t.Fatalf("StoryByParent(%d): %v", id, err)
	}
	if st.ID != id || st.Relation != RelationMain || st.ThreadID != threadID {
		t.Errorf("StoryByParent = %+v", st)
	}
	if st.SuggestionID != nil {
		t.Errorf("SuggestionID = %v, want nil", *st.SuggestionID)
	}

	if err := s.LinkStory(ctx, 999, id, RelationSide); !errors.Is(err, ErrNotFound) {
		t.Errorf("LinkStory(999) error = %v, want ErrNotFound", err)
	}
	if n := len(srv.Rows("stories")); n != 1 {
		t.Errorf("stories rows = %d, want 1", n)
	}
}

func TestSuggestions(t *testing.T) {
	s, srv := testStore(t)
	ctx := context.Background()

	err := s.InsertSuggestions(ctx, []NewSuggestion{
		{Title: "The cave", Message: "Explore the cave", StoryID: 5, UserID: "u-1"},
		{Title: "The sea", Message: "Sail away", StoryID: 5, UserID: "u-1"},
	})
	if err != nil {
		t.Fatalf("InsertSuggestions: %v", err)
	}
	rows := srv.Rows("suggestions")
	if len(rows) != 2 || rows[0]["title"] != "The cave" {
		t.Fatalf("suggestions = %v", rows)
	}

	if err := s.MarkSuggestionUsed(ctx, 1, "u-1"); err != nil {
		t.Fatalf("MarkSuggestionUsed: %v", err)
	}
	sg, err := s.Suggestion(ctx, 1)
	if err != nil {
		t.Fatalf("Suggestion(1): %v", err)
	}
	if !sg.Used {
		t.Error("suggestion 1 not marked used")
	}
	other, _ := s.Suggestion(ctx, 2)
	if other.Used {
		t.Error("suggestion 2 should stay unused")
	}

	if err := s.MarkSuggestionUsed(ctx, 2, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkSuggestionUsed by non-owner error = %v, want ErrNotFound", err)
	}
}

func TestCompareAndSwapCredit(t *testing.T) {
	s, srv := testStore(t)
	ctx := context.Background()
	srv.Seed("credits", map[string]any{"id": "u-1", "credit": 3})

	ok, err := s.CompareAndSwapCredit(ctx, "u-1", 3, 2)
	if err != nil || !ok {
		t.Fatalf("CompareAndSwapCredit(3→2) = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.CompareAndSwapCredit(ctx, "u-1", 3, 1)
	if err != nil || ok {
		t.Fatalf("stale CompareAndSwapCredit(3→1) = %v, %v; want false, nil", ok, err)
	}

	bal, err := s.Credit(ctx, "u-1")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if bal != 2 {
		t.Errorf("balance = %d, want 2", bal)
	}

	if err := s.SetCredit(ctx, "u-1", 10); err != nil {
		t.Fatalf("SetCredit: %v", err)
	}
	if bal, _ := s.Credit(ctx, "u-1"); bal != 10 {
		t.Errorf("balance after SetCredit = %d, want 10", bal)
	}
}

func TestUploadAudio(t *testing.T) {
	s, srv := testStore(t)

	url, err := s.UploadAudio(context.Background(), "audio", "u-1/a.mp3", []byte("ID3"), time.Hour)
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	if url == "" {
		t.Fatal("UploadAudio returned empty URL")
	}
	if _, ok := srv.Object("audio", "u-1/a.mp3"); !ok {
		t.Error("object not stored")
	}
}

func TestWithToken(t *testing.T) {
	s, srv := testStore(t)
	if s.WithToken("") != s {
		t.Error("WithToken(\"\") should return the same store")
	}
	_, _ = s.WithToken("user-jwt").StoriesByUser(context.Background(), "u-1")
	reqs := srv.Requests()
	if got := reqs[len(reqs)-1].Auth; got != "Bearer user-jwt" {
		t.Errorf("Authorization = %q, want Bearer user-jwt", got)
	}
}
