package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nugget/libula/internal/config"
	"github.com/nugget/libula/internal/httpkit"
	"github.com/nugget/libula/internal/reqctx"
)

// OpenAIService implements [Service] and [Speaker] on the OpenAI
// Assistants and Audio APIs.
type OpenAIService struct {
	client      *openai.Client
	assistantID string
	logger      *slog.Logger
}

// NewOpenAIService creates a service bound to one assistant. baseURL
// may be empty to use the SDK default.
func NewOpenAIService(apiKey, baseURL, assistantID string, logger *slog.Logger) *OpenAIService {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(
			httpkit.WithTimeout(2*time.Minute),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		)),
		// The poller owns retry policy; a retried run creation would
		// start a second run on the same thread.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIService{
		client:      &client,
		assistantID: assistantID,
		logger:      logger,
	}
}

// CreateThread implements [Service].
func (s *OpenAIService) CreateThread(ctx context.Context) (string, error) {
	thread, err := s.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AppendMessage implements [Service].
func (s *OpenAIService) AppendMessage(ctx context.Context, threadID, text string) error {
	reqctx.Logger(ctx, s.logger).Log(ctx, config.LevelTrace, "openai append message", "thread_id", threadID, "text", text)
	_, err := s.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return fmt.Errorf("append message to %s: %w", threadID, err)
	}
	return nil
}

// CreateRun implements [Service].
func (s *OpenAIService) CreateRun(ctx context.Context, threadID, instructions string) (*Run, error) {
	params := openai.BetaThreadRunNewParams{
		AssistantID: s.assistantID,
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	run, err := s.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return nil, fmt.Errorf("create run on %s: %w", threadID, err)
	}
	return &Run{
		ID:           run.ID,
		ThreadID:     threadID,
		Status:       Status(run.Status),
		Instructions: instructions,
	}, nil
}

// RunStatus implements [Service].
func (s *OpenAIService) RunStatus(ctx context.Context, threadID, runID string) (Status, error) {
	run, err := s.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return "", fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.Status == openai.RunStatusFailed {
		reqctx.Logger(ctx, s.logger).Warn("openai run failed",
			"thread_id", threadID,
			"run_id", runID,
			"code", run.LastError.Code,
			"message", run.LastError.Message,
		)
	}
	return Status(run.Status), nil
}

// LatestMessage implements [Service].
func (s *OpenAIService) LatestMessage(ctx context.Context, threadID string) (string, error) {
	page, err := s.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("list messages of %s: %w", threadID, err)
	}
	if len(page.Data) == 0 {
		return "", nil
	}
	for _, c := range page.Data[0].Content {
		if c.Type == "text" {
			reqctx.Logger(ctx, s.logger).Log(ctx, config.LevelTrace, "openai latest message", "thread_id", threadID, "text", c.Text.Value)
			return c.Text.Value, nil
		}
	}
	return "", nil
}

// SynthesizeSpeech implements [Speaker]. The result is MP3.
func (s *OpenAIService) SynthesizeSpeech(ctx context.Context, model, voice, text string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech body: %w", err)
	}
	return data, nil
}
