package workflow

import (
	"context"
	"fmt"

	"github.com/nugget/libula/internal/events"
	"github.com/nugget/libula/internal/store"
	"github.com/nugget/libula/internal/story"
)

// NewStoryRequest asks for a new story about a main character.
type NewStoryRequest struct {
	UserID           string
	MainCharacterID  int64
	StoryTypeID      int64
	Language         string
	SideCharacterIDs []int64
	// Token is the user's session token. Empty acts with the service
	// key.
	Token string
}

// NewStoryResponse identifies the created story.
type NewStoryResponse struct {
	StoryID   int64  `json:"storyID"`
	RequestID string `json:"requestID"`
}

// newStoryContext is everything read before the prompt is built.
type newStoryContext struct {
	main        *store.Character
	description *store.StoryDescription
	prior       []store.Story
	authors     []store.AgeAuthor
	prompts     *store.Prompts
	template    *store.StoryTemplate
	translation []store.Translation
	pool        []store.Character
	storyType   *store.StoryType
	age         *store.Age
}

// NewStory generates, stores, and charges for a new story.
func (c *Coordinator) NewStory(ctx context.Context, req NewStoryRequest) (*NewStoryResponse, error) {
	ctx, r := c.begin(ctx, NameNewStory, req.UserID)
	st := c.store.WithToken(req.Token)
	acct := c.account(st)

	if err := r.checkCredit(ctx, acct); err != nil {
		return nil, r.fail(ctx, err)
	}

	var sc *newStoryContext
	err := r.stage(ctx, "fetch_context", func(ctx context.Context) error {
		var err error
		sc, err = fetchNewStoryContext(ctx, st, req)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	var author store.AgeAuthor
	_ = r.stage(ctx, "select_author", func(ctx context.Context) error {
		author = c.pickAuthor(sc.authors, sc.prior)
		r.log.Debug("author selected", "stories_author_id", author.StoriesAuthorID, "author", author.Author)
		return nil
	})

	var prompt story.Prompt
	err = r.stage(ctx, "build_prompt", func(ctx context.Context) error {
		user, err := story.BuildNewPrompt(story.NewStoryInput{
			Template:            sc.prompts.StoryUser,
			Description:         sc.description.Description,
			Main:                toCharacter(*sc.main),
			AgeID:               sc.age.ID,
			Author:              author.Author,
			StoryTemplate:       sc.template.Template,
			SideCharacterPrompt: sc.prompts.SideCharacterPrompt,
			SideCharacters:      toCharacters(sc.pool),
			SelectedSide:        req.SideCharacterIDs,
			Translations:        toTranslations(sc.translation),
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrContext, err)
		}
		prompt = storyPrompt(sc.prompts, user)
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	var draft *story.Draft
	err = r.stage(ctx, "generate", func(ctx context.Context) error {
		var err error
		draft, err = c.stories.NewStory(ctx, prompt, "")
		if err != nil {
			return err
		}
		c.bus.Emit(events.SourceAssistant, events.KindRunComplete, map[string]any{
			"request_id": r.entry.RequestID, "thread_id": draft.ThreadID, "words": draft.WordCount,
		})
		r.entry.ThreadID = draft.ThreadID
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	err = r.stage(ctx, "persist", func(ctx context.Context) error {
		threadID, err := st.InsertThread(ctx, draft.ThreadID, req.UserID)
		if err != nil {
			return fmt.Errorf("%w: thread: %w", ErrPersistence, err)
		}
		imageID := store.DefaultImageID
		if sc.storyType.ImageID != nil {
			imageID = *sc.storyType.ImageID
		}
		storyID, err := st.InsertStory(ctx, newStoryRow(req.UserID, draft, prompt.User, store.NewStory{
			ThreadID:        threadID,
			StoriesTypeID:   req.StoryTypeID,
			ImageID:         imageID,
			StoriesAuthorID: author.StoriesAuthorID,
			MainCharacterID: sc.main.ID,
		}))
		if err != nil {
			return fmt.Errorf("%w: story: %w", ErrPersistence, err)
		}
		r.entry.StoryID = storyID
		if err := st.LinkStory(ctx, storyID, storyID, store.RelationMain); err != nil {
			return fmt.Errorf("%w: link story: %w", ErrPersistence, err)
		}
		if err := st.InsertSuggestions(ctx, suggestionRows(draft.Suggestions, storyID, req.UserID)); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.debit(ctx, acct, c.cfg.StoryCost)
	r.finish(ctx)
	return &NewStoryResponse{StoryID: r.entry.StoryID, RequestID: r.entry.RequestID}, nil
}

func fetchNewStoryContext(ctx context.Context, st *store.Store, req NewStoryRequest) (*newStoryContext, error) {
	var (
		sc  newStoryContext
		err error
	)
	wrap := func(what string, err error) error {
		return fmt.Errorf("%w: %s: %w", ErrContext, what, err)
	}

	if sc.main, err = st.Character(ctx, req.MainCharacterID); err != nil {
		return nil, wrap("main character", err)
	}
	if sc.main.UserID != req.UserID {
		return nil, wrap("main character", fmt.Errorf("character %d is not owned by the user", req.MainCharacterID))
	}
	if sc.description, err = st.StoryDescription(ctx, req.StoryTypeID, req.Language); err != nil {
		return nil, wrap("story description", err)
	}
	if sc.prior, err = st.StoriesByUser(ctx, req.UserID); err != nil {
		return nil, wrap("prior stories", err)
	}
	if sc.authors, err = st.AuthorsForAge(ctx, sc.main.AgeID); err != nil {
		return nil, wrap("authors", err)
	}
	if len(sc.authors) == 0 {
		return nil, wrap("authors", fmt.Errorf("age %d: %w", sc.main.AgeID, store.ErrNotFound))
	}
	if sc.prompts, err = st.Prompts(ctx, req.Language); err != nil {
		return nil, wrap("prompts", err)
	}
	if sc.template, err = st.StoryTemplate(ctx, req.StoryTypeID, sc.main.AgeID, req.Language); err != nil {
		return nil, wrap("story template", err)
	}
	if sc.translation, err = st.Translations(ctx, req.Language); err != nil {
		return nil, wrap("translations", err)
	}
	if sc.pool, err = st.CharactersByUser(ctx, req.UserID); err != nil {
		return nil, wrap("side characters", err)
	}
	if sc.storyType, err = st.StoryType(ctx, req.StoryTypeID); err != nil {
		return nil, wrap("story type", err)
	}
	if sc.age, err = st.Age(ctx, sc.main.AgeID); err != nil {
		return nil, wrap("age", err)
	}
	return &sc, nil
}

// pickAuthor chooses uniformly among the candidates, skipping the
// author of the newest prior story unless that would leave none.
func (c *Coordinator) pickAuthor(candidates []store.AgeAuthor, prior []store.Story) store.AgeAuthor {
	pool := excludeLastAuthor(candidates, prior)
	return pool[c.intn(len(pool))]
}

func excludeLastAuthor(candidates []store.AgeAuthor, prior []store.Story) []store.AgeAuthor {
	if len(prior) == 0 {
		return candidates
	}
	last := prior[0].StoriesAuthorID
	pool := make([]store.AgeAuthor, 0, len(candidates))
	for _, a := range candidates {
		if a.StoriesAuthorID != last {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		return candidates
	}
	return pool
}

func storyPrompt(p *store.Prompts, user string) story.Prompt {
	return story.Prompt{
		User:             user,
		System:           p.StorySystem,
		SuggestionUser:   p.SuggestionUser,
		SuggestionSystem: p.SuggestionSystem,
	}
}

// newStoryRow fills the generated fields of base.
func newStoryRow(userID string, d *story.Draft, prompt string, base store.NewStory) store.NewStory {
	base.UserID = userID
	base.Title = d.Title
	base.Text = d.Body
	base.WordCount = d.WordCount
	base.CharacterCount = d.CharacterCount
	base.Prompt = prompt
	base.AIModel = d.Model
	return base
}

func suggestionRows(in []story.Suggestion, storyID int64, userID string) []store.NewSuggestion {
	rows := make([]store.NewSuggestion, 0, len(in))
	for _, s := range in {
		rows = append(rows, store.NewSuggestion{
			Title:   s.Title,
			Message: s.Message,
			StoryID: storyID,
			UserID:  userID,
		})
	}
	return rows
}

func toCharacter(c store.Character) story.Character {
	return story.Character{ID: c.ID, Name: c.Name, GenderType: c.GenderType, RelationType: c.RelationType}
}

func toCharacters(in []store.Character) []story.Character {
	out := make([]story.Character, 0, len(in))
	for _, c := range in {
		out = append(out, toCharacter(c))
	}
	return out
}

func toTranslations(in []store.Translation) story.Translations {
	rows := make([]story.Translation, 0, len(in))
	for _, t := range in {
		rows = append(rows, story.Translation{Value: t.Value, Translation: t.Translation, Prompt: t.Prompt})
	}
	return story.NewTranslations(rows)
}
