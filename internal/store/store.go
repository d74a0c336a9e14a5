// Package store is the typed repository over the Libula Supabase
// tables. Each method is one PostgREST call; multi-step sequences are
// composed by the workflow package and are not transactional.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nugget/libula/internal/supabase"
)

// ErrNotFound is returned when a required row does not exist.
var ErrNotFound = errors.New("not found")

// Store reads and writes Libula rows through a Supabase client.
type Store struct {
	db *supabase.Client
}

// New creates a Store over db.
func New(db *supabase.Client) *Store {
	return &Store{db: db}
}

// WithToken returns a Store that authenticates as the given user
// session. An empty token returns s.
func (s *Store) WithToken(token string) *Store {
	if token == "" {
		return s
	}
	return &Store{db: s.db.WithToken(token)}
}

// selectOne fetches the first row of table matching f into dest.
func selectOne[T any](ctx context.Context, s *Store, table string, f supabase.Filter, order supabase.Order) (*T, error) {
	var rows []T
	if err := s.db.Select(ctx, table, f, order, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("select %s where %s: %w", table, f, ErrNotFound)
	}
	return &rows[0], nil
}

func selectAll[T any](ctx context.Context, s *Store, table string, f supabase.Filter, order supabase.Order) ([]T, error) {
	var rows []T
	if err := s.db.Select(ctx, table, f, order, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

// Character returns the character with the given id.
func (s *Store) Character(ctx context.Context, id int64) (*Character, error) {
	return selectOne[Character](ctx, s, "characters", supabase.Eq("id", id), supabase.OrderNone)
}

// CharactersByUser returns every character owned by userID.
func (s *Store) CharactersByUser(ctx context.Context, userID string) ([]Character, error) {
	return selectAll[Character](ctx, s, "characters", supabase.Eq("user_id", userID), supabase.OrderNone)
}

// StoryDescription returns the description of a story type in lang.
func (s *Store) StoryDescription(ctx context.Context, storyTypeID int64, lang string) (*StoryDescription, error) {
	return selectOne[StoryDescription](ctx, s, "stories_descriptions",
		supabase.Eq("stories_type_id", storyTypeID).Eq("language", lang), supabase.OrderNone)
}

// StoriesByUser returns the user's stories, newest first.
func (s *Store) StoriesByUser(ctx context.Context, userID string) ([]Story, error) {
	return selectAll[Story](ctx, s, "stories", supabase.Eq("user_id", userID), supabase.OrderIDDesc)
}

// AuthorsForAge returns the candidate authors for an age group.
func (s *Store) AuthorsForAge(ctx context.Context, ageID int64) ([]AgeAuthor, error) {
	return selectAll[AgeAuthor](ctx, s, "view_ages_stories_authors", supabase.Eq("age_id", ageID), supabase.OrderNone)
}

// StoriesAuthor returns the author with the given id.
func (s *Store) StoriesAuthor(ctx context.Context, id int64) (*StoriesAuthor, error) {
	return selectOne[StoriesAuthor](ctx, s, "stories_authors", supabase.Eq("id", id), supabase.OrderNone)
}

// Prompts returns the prompt templates for lang.
func (s *Store) Prompts(ctx context.Context, lang string) (*Prompts, error) {
	return selectOne[Prompts](ctx, s, "prompts", supabase.Eq("language", lang), supabase.OrderNone)
}

// StoryTemplate returns the plot template for a story type and age in lang.
func (s *Store) StoryTemplate(ctx context.Context, storyTypeID, ageID int64, lang string) (*StoryTemplate, error) {
	return selectOne[StoryTemplate](ctx, s, "stories_templates",
		supabase.Eq("stories_type_id", storyTypeID).Eq("age_id", ageID).Eq("language", lang), supabase.OrderNone)
}

// Translations returns every translation for lang.
func (s *Store) Translations(ctx context.Context, lang string) ([]Translation, error) {
	rows, err := selectAll[Translation](ctx, s, "translations", supabase.Eq("language", lang), supabase.OrderNone)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("translations for %q: %w", lang, ErrNotFound)
	}
	return rows, nil
}

// StoryType returns the story type with the given id.
func (s *Store) StoryType(ctx context.Context, id int64) (*StoryType, error) {
	return selectOne[StoryType](ctx, s, "stories_types", supabase.Eq("id", id), supabase.OrderNone)
}

// Age returns the age group with the given id.
func (s *Store) Age(ctx context.Context, id int64) (*Age, error) {
	return selectOne[Age](ctx, s, "ages", supabase.Eq("id", id), supabase.OrderNone)
}

// Story returns the story with the given id.
func (s *Store) Story(ctx context.Context, id int64) (*Story, error) {
	return selectOne[Story](ctx, s, "stories", supabase.Eq("id", id), supabase.OrderNone)
}

// StoryByParent returns the oldest story linked to parentID. For a
// story tree this is the main story itself, whose parent_id is its own id.
func (s *Store) StoryByParent(ctx context.Context, parentID int64) (*Story, error) {
	return selectOne[Story](ctx, s, "stories", supabase.Eq("parent_id", parentID), supabase.OrderIDAsc)
}

// Suggestion returns the suggestion with the given id.
func (s *Store) Suggestion(ctx context.Context, id int64) (*Suggestion, error) {
	return selectOne[Suggestion](ctx, s, "suggestions", supabase.Eq("id", id), supabase.OrderNone)
}

// Thread returns the thread with the given local id owned by userID.
func (s *Store) Thread(ctx context.Context, id int64, userID string) (*Thread, error) {
	return selectOne[Thread](ctx, s, "threads", supabase.Eq("id", id).Eq("user_id", userID), supabase.OrderNone)
}

func insertOne[T any](ctx context.Context, s *Store, table string, row any) (*T, error) {
	var rows []T
	if err := s.db.Insert(ctx, table, row, &rows); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", table)
	}
	return &rows[0], nil
}

// InsertThread records a remote thread id for userID and returns the
// local thread id.
func (s *Store) InsertThread(ctx context.Context, remoteID, userID string) (int64, error) {
	t, err := insertOne[Thread](ctx, s, "threads", map[string]any{"thread": remoteID, "user_id": userID})
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// InsertStory writes a story and returns its id.
func (s *Store) InsertStory(ctx context.Context, st NewStory) (int64, error) {
	row, err := insertOne[Story](ctx, s, "stories", st)
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// LinkStory sets the parent and relation of a story.
func (s *Store) LinkStory(ctx context.Context, storyID, parentID int64, relation string) error {
	return s.updateOne(ctx, "stories", supabase.Eq("id", storyID),
		map[string]any{"parent_id": parentID, "relation": relation})
}

// SetStoryAudio stores the narration URL on a story.
func (s *Store) SetStoryAudio(ctx context.Context, storyID int64, url string) error {
	return s.updateOne(ctx, "stories", supabase.Eq("id", storyID), map[string]any{"audio_url": url})
}

// InsertSuggestions writes the suggestions for a story in one request,
// preserving order.
func (s *Store) InsertSuggestions(ctx context.Context, rows []NewSuggestion) error {
	if len(rows) == 0 {
		return nil
	}
	var created []Suggestion
	if err := s.db.Insert(ctx, "suggestions", rows, &created); err != nil {
		return fmt.Errorf("insert suggestions: %w", err)
	}
	if len(created) != len(rows) {
		return fmt.Errorf("insert suggestions: %d rows written, want %d", len(created), len(rows))
	}
	return nil
}

// MarkSuggestionUsed flags a suggestion owned by userID as consumed.
func (s *Store) MarkSuggestionUsed(ctx context.Context, id int64, userID string) error {
	return s.updateOne(ctx, "suggestions", supabase.Eq("id", id).Eq("user_id", userID), map[string]any{"used": true})
}

func (s *Store) updateOne(ctx context.Context, table string, f supabase.Filter, patch map[string]any) error {
	var rows []map[string]any
	if err := s.db.Update(ctx, table, f, patch, &rows); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("update %s where %s: %w", table, f, ErrNotFound)
	}
	return nil
}

// Credit returns the balance of userID.
func (s *Store) Credit(ctx context.Context, userID string) (int64, error) {
	c, err := selectOne[Credit](ctx, s, "credits", supabase.Eq("id", userID), supabase.OrderNone)
	if err != nil {
		return 0, err
	}
	return c.Credit, nil
}

// CompareAndSwapCredit sets the balance of userID to next only if it
// is still old. It reports whether the write happened.
func (s *Store) CompareAndSwapCredit(ctx context.Context, userID string, old, next int64) (bool, error) {
	var rows []Credit
	f := supabase.Eq("id", userID).Eq("credit", strconv.FormatInt(old, 10))
	if err := s.db.Update(ctx, "credits", f, map[string]any{"credit": next}, &rows); err != nil {
		return false, fmt.Errorf("update credits: %w", err)
	}
	return len(rows) > 0, nil
}

// SetCredit overwrites the balance of userID without a guard. It
// exists for administrative top-ups; workflows debit through
// CompareAndSwapCredit.
func (s *Store) SetCredit(ctx context.Context, userID string, balance int64) error {
	return s.updateOne(ctx, "credits", supabase.Eq("id", userID), map[string]any{"credit": balance})
}

// UploadAudio stores an MP3 object and returns a signed URL for it.
func (s *Store) UploadAudio(ctx context.Context, bucket, path string, data []byte, ttl time.Duration) (string, error) {
	stored, err := s.db.Upload(ctx, bucket, path, data, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	url, err := s.db.SignedURL(ctx, bucket, stored, ttl)
	if err != nil {
		return "", fmt.Errorf("sign audio: %w", err)
	}
	return url, nil
}
