package workflow

import (
	"context"
	"fmt"

	"github.com/nugget/libula/internal/events"
	"github.com/nugget/libula/internal/store"
	"github.com/nugget/libula/internal/story"
)

// ContinueStoryRequest asks for the next part of a story, following
// one of its suggestions.
type ContinueStoryRequest struct {
	UserID       string
	SuggestionID int64
	// ParentID is the id of the main story of the tree.
	ParentID int64
	Language string
	Token    string
}

// ContinueStoryResponse identifies the created continuation.
type ContinueStoryResponse struct {
	StoryID   int64  `json:"storyID"`
	ParentID  int64  `json:"parentID"`
	RequestID string `json:"requestID"`
}

type continueContext struct {
	suggestion *store.Suggestion
	parent     *store.Story
	thread     *store.Thread
	author     *store.StoriesAuthor
	prompts    *store.Prompts
}

// ContinueStory continues the story tree under ParentID on its
// existing conversation thread.
func (c *Coordinator) ContinueStory(ctx context.Context, req ContinueStoryRequest) (*ContinueStoryResponse, error) {
	ctx, r := c.begin(ctx, NameContinueStory, req.UserID)
	r.log = r.log.With("suggestion_id", req.SuggestionID, "parent_id", req.ParentID)
	st := c.store.WithToken(req.Token)
	acct := c.account(st)

	if err := r.checkCredit(ctx, acct); err != nil {
		return nil, r.fail(ctx, err)
	}

	var cc *continueContext
	err := r.stage(ctx, "fetch_context", func(ctx context.Context) error {
		var err error
		cc, err = fetchContinueContext(ctx, st, req)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	prompt := storyPrompt(cc.prompts, story.BuildContinuePrompt(cc.prompts.ContinueUser, cc.suggestion.Title))

	var draft *story.Draft
	err = r.stage(ctx, "generate", func(ctx context.Context) error {
		var err error
		draft, err = c.stories.ContinueStory(ctx, prompt, cc.thread.Thread)
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
		suggestionID := cc.suggestion.ID
		storyID, err := st.InsertStory(ctx, newStoryRow(req.UserID, draft, prompt.User, store.NewStory{
			ThreadID:        cc.thread.ID,
			StoriesTypeID:   cc.parent.StoriesTypeID,
			ImageID:         imageOrDefault(cc.parent.ImageID),
			StoriesAuthorID: cc.author.ID,
			MainCharacterID: cc.parent.MainCharacterID,
			SuggestionID:    &suggestionID,
		}))
		if err != nil {
			return fmt.Errorf("%w: story: %w", ErrPersistence, err)
		}
		r.entry.StoryID = storyID
		if err := st.LinkStory(ctx, storyID, req.ParentID, store.RelationSide); err != nil {
			return fmt.Errorf("%w: link story: %w", ErrPersistence, err)
		}
		if err := st.InsertSuggestions(ctx, suggestionRows(draft.Suggestions, storyID, req.UserID)); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if err := st.MarkSuggestionUsed(ctx, suggestionID, req.UserID); err != nil {
			return fmt.Errorf("%w: mark suggestion used: %w", ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.debit(ctx, acct, c.cfg.StoryCost)
	r.finish(ctx)
	return &ContinueStoryResponse{
		StoryID:   r.entry.StoryID,
		ParentID:  req.ParentID,
		RequestID: r.entry.RequestID,
	}, nil
}

func fetchContinueContext(ctx context.Context, st *store.Store, req ContinueStoryRequest) (*continueContext, error) {
	var (
		cc  continueContext
		err error
	)
	wrap := func(what string, err error) error {
		return fmt.Errorf("%w: %s: %w", ErrContext, what, err)
	}

	if cc.suggestion, err = st.Suggestion(ctx, req.SuggestionID); err != nil {
		return nil, wrap("suggestion", err)
	}
	if cc.suggestion.UserID != req.UserID {
		return nil, wrap("suggestion", fmt.Errorf("suggestion %d is not owned by the user", req.SuggestionID))
	}
	if cc.parent, err = st.StoryByParent(ctx, req.ParentID); err != nil {
		return nil, wrap("parent story", err)
	}
	if cc.thread, err = st.Thread(ctx, cc.parent.ThreadID, req.UserID); err != nil {
		return nil, wrap("thread", err)
	}
	if cc.author, err = st.StoriesAuthor(ctx, cc.parent.StoriesAuthorID); err != nil {
		return nil, wrap("author", err)
	}
	if cc.prompts, err = st.Prompts(ctx, req.Language); err != nil {
		return nil, wrap("prompts", err)
	}
	return &cc, nil
}

func imageOrDefault(id int64) int64 {
	if id == 0 {
		return store.DefaultImageID
	}
	return id
}
