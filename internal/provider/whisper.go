package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyAudio is returned when Transcribe is given no audio bytes.
var ErrEmptyAudio = errors.New("empty audio")

// WhisperConfig configures the speech-to-text gateway.
type WhisperConfig struct {
	Client   *openai.Client
	Model    string // e.g. "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	Language string // ISO-639-1 hint; empty lets the model guess
	Logger   *slog.Logger
}

// Whisper implements domain.Transcriber over the OpenAI-compatible
// /audio/transcriptions endpoint.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Whisper{
		client:   cfg.Client,
		model:    cfg.Model,
		language: cfg.Language,
		logger:   cfg.Logger,
	}
}

// Transcribe submits audio under the given filename (the extension tells the
// remote side the container format) and returns the trimmed text. An empty
// string means nothing was recognized and is not an error.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	w.logger.Debug("transcription complete",
		"model", w.model,
		"audio_bytes", len(audio),
		"text_len", len(text),
	)
	return text, nil
}
