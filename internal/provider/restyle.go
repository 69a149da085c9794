package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the completion response carries no choices.
var ErrNoChoices = errors.New("completion returned no choices")

// TranscriptPrefix introduces the raw transcript in the user turn.
const TranscriptPrefix = "Исходный текст: "

// ChatConfig configures the text restyling gateway.
type ChatConfig struct {
	Client      *openai.Client
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Chat implements domain.Restyler with a single chat completion call.
type Chat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

func NewChat(cfg ChatConfig) *Chat {
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Chat{
		client:      cfg.Client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}
}

// Restyle sends instruction as the system turn and the transcript as the
// user turn, and returns the trimmed content of the first choice.
func (c *Chat) Restyle(ctx context.Context, instruction, transcript string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: TranscriptPrefix + transcript},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	c.logger.Debug("restyle complete",
		"model", c.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
