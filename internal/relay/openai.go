package relay

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultSystemPrompt frames the model as a tutor looking at handwritten work.
const DefaultSystemPrompt = "You are a patient maths and science tutor. " +
	"The image, when present, is a snapshot of the student's handwritten work on a canvas. " +
	"Answer the student's question briefly, point out mistakes in their working and give the next step rather than the full solution. " +
	`Write mathematics with \( \) for inline and \[ \] for display formulas.`

// Options configures the OpenAI-compatible upstream.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	ImageDetail  string
	HTTPClient   *http.Client
}

// OpenAI streams chat completions from an OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
	opts   Options
	log    *zap.Logger
}

// NewOpenAI builds a client. An empty key is only accepted for a custom base
// URL, since local servers often run without one.
func NewOpenAI(opts Options, log *zap.Logger) (*OpenAI, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, ErrNoAPIKey
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), opts: opts, log: log}, nil
}

// Stream opens a streamed completion for q.
func (o *OpenAI) Stream(ctx context.Context, q Query) (TokenStream, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	req := openai.ChatCompletionRequest{
		Model:       o.opts.Model,
		Stream:      true,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.opts.SystemPrompt},
			o.userMessage(q),
		},
	}
	o.log.Debug("opening completion stream",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Bool("image", q.ImageBase64 != ""),
		zap.Int("message_len", len(q.UserMessage)))

	s, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		o.log.Error("completion stream failed", zap.Error(err))
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	return &chatStream{s: s}, nil
}

func (o *OpenAI) userMessage(q Query) openai.ChatCompletionMessage {
	if q.ImageBase64 == "" {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: q.UserMessage}
	}
	detail := openai.ImageURLDetailAuto
	switch strings.ToLower(o.opts.ImageDetail) {
	case "low":
		detail = openai.ImageURLDetailLow
	case "high":
		detail = openai.ImageURLDetailHigh
	}
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: q.ImageURL(), Detail: detail}},
	}
	if strings.TrimSpace(q.UserMessage) != "" {
		parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: q.UserMessage}}, parts...)
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

type chatStream struct {
	s *openai.ChatCompletionStream
}

func (c *chatStream) Recv() (string, error) {
	for {
		resp, err := c.s.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if tok := resp.Choices[0].Delta.Content; tok != "" {
			return tok, nil
		}
	}
}

func (c *chatStream) Close() error {
	c.s.Close()
	return nil
}
