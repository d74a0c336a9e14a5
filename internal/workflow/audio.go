package workflow

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/nugget/libula/internal/audio"
	"github.com/nugget/libula/internal/events"
)

// AudioStoryRequest asks for narration of a stored story.
type AudioStoryRequest struct {
	UserID  string
	StoryID int64
	// Voice is the synthesis voice. Empty uses the narrator default.
	Voice string
	Token string
}

// AudioStoryResponse carries the signed URL of the narration.
type AudioStoryResponse struct {
	AudioURL  string `json:"audioUrl"`
	RequestID string `json:"requestID"`
}

// AudioStory narrates a story, stores the MP3, and links it on the
// story row.
func (c *Coordinator) AudioStory(ctx context.Context, req AudioStoryRequest) (*AudioStoryResponse, error) {
	ctx, r := c.begin(ctx, NameAudioStory, req.UserID)
	r.log = r.log.With("story_id", req.StoryID)
	r.entry.StoryID = req.StoryID
	st := c.store.WithToken(req.Token)
	acct := c.account(st)

	if err := r.checkCredit(ctx, acct); err != nil {
		return nil, r.fail(ctx, err)
	}

	var text string
	err := r.stage(ctx, "fetch_context", func(ctx context.Context) error {
		s, err := st.Story(ctx, req.StoryID)
		if err != nil {
			return fmt.Errorf("%w: story: %w", ErrContext, err)
		}
		if s.UserID != req.UserID {
			return fmt.Errorf("%w: story %d is not owned by the user", ErrContext, req.StoryID)
		}
		text = s.Text
		if c.cfg.StripMarkdown {
			text = audio.PlainText(text)
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	var data []byte
	err = r.stage(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		data, err = c.narrator.Synthesize(ctx, text, req.Voice)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	var url string
	err = r.stage(ctx, "persist", func(ctx context.Context) error {
		key := path.Join(req.UserID, uuid.NewString()+".mp3")
		var err error
		url, err = st.UploadAudio(ctx, c.cfg.Bucket, key, data, c.cfg.SignedURLTTL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if err := st.SetStoryAudio(ctx, req.StoryID, url); err != nil {
			return fmt.Errorf("%w: audio url: %w", ErrPersistence, err)
		}
		c.bus.Emit(events.SourceAudio, events.KindAudioReady, map[string]any{
			"request_id": r.entry.RequestID, "story_id": req.StoryID, "bytes": len(data),
		})
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.debit(ctx, acct, c.cfg.AudioCost)
	r.finish(ctx)
	return &AudioStoryResponse{AudioURL: url, RequestID: r.entry.RequestID}, nil
}
