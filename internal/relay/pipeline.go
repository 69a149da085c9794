// Package relay implements the voice message pipeline: download the clip,
// transcribe it, restyle the transcript, and reply with the result while a
// single status message tracks progress.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicepolish/internal/domain"
	"voicepolish/internal/metrics"

	"github.com/rs/xid"
)

var (
	// ErrNotRecognized marks a run whose transcript came back empty.
	ErrNotRecognized = errors.New("speech not recognized")
	// ErrEmptyCompletion marks a run where the model produced no text.
	ErrEmptyCompletion = errors.New("model returned empty text")
)

// Pipeline processes one voice message at a time per call to Handle.
// Runs share no state; the temp file of each run is named after its message.
type Pipeline struct {
	messenger   domain.Messenger
	transcriber domain.Transcriber
	restyler    domain.Restyler
	instruction string
	tempDir     string
	logger      *slog.Logger
}

type Config struct {
	Messenger   domain.Messenger
	Transcriber domain.Transcriber
	Restyler    domain.Restyler
	Instruction string // defaults to SystemPrompt
	TempDir     string // defaults to os.TempDir()
	Logger      *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Instruction == "" {
		cfg.Instruction = SystemPrompt
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		messenger:   cfg.Messenger,
		transcriber: cfg.Transcriber,
		restyler:    cfg.Restyler,
		instruction: cfg.Instruction,
		tempDir:     cfg.TempDir,
		logger:      cfg.Logger,
	}
}

// Result describes how a run ended.
type Result struct {
	RunID      string
	State      State // Done or Failed
	FailedAt   State // stage in progress when the run failed
	Transcript string
	Text       string
	Err        error
}

// AudioPath is the temp file used for msg. Telegram message IDs are only
// unique within a chat, so the chat ID is part of the name.
func (p *Pipeline) AudioPath(msg domain.VoiceMessage) string {
	return filepath.Join(p.tempDir, fmt.Sprintf("voice_%d_%d.ogg", msg.ChatID, msg.MessageID))
}

// Handle runs the pipeline for msg. Failures never escape: they are shown
// to the user in the status message and returned in the Result.
// Once started, a run is not cancelled by ctx.
func (p *Pipeline) Handle(ctx context.Context, msg domain.VoiceMessage) Result {
	ctx = context.WithoutCancel(ctx)
	runID := xid.New().String()
	log := p.logger.With("run_id", runID, "chat_id", msg.ChatID, "message_id", msg.MessageID)

	metrics.VoiceMessagesTotal.Inc()
	metrics.PipelineInFlight.Inc()
	defer metrics.PipelineInFlight.Dec()

	statusID, err := p.messenger.Reply(ctx, msg.ChatID, msg.MessageID, StatusDownloading)
	if err != nil {
		log.Error("post status message", "err", err)
		metrics.PipelineFailed.Inc()
		return Result{RunID: runID, State: Failed, FailedAt: Received, Err: fmt.Errorf("post status: %w", err)}
	}

	path := p.AudioPath(msg)
	defer p.cleanup(log, path)

	res := p.safeRun(ctx, msg, statusID, path)
	res.RunID = runID
	if res.State == Done {
		metrics.PipelineDone.Inc()
		log.Info("voice message processed", "transcript_len", len(res.Transcript), "text_len", len(res.Text))
		return res
	}

	metrics.PipelineFailed.Inc()
	text := ErrorText(res.Err)
	if errors.Is(res.Err, ErrNotRecognized) {
		metrics.EmptyTranscripts.Inc()
		text = NotRecognizedText
		log.Info("speech not recognized")
	} else {
		log.Warn("voice pipeline failed", "stage", res.FailedAt, "err", res.Err)
	}
	if err := p.messenger.Edit(ctx, msg.ChatID, statusID, text); err != nil {
		log.Error("report failure to user", "err", err)
	}
	return res
}

func (p *Pipeline) safeRun(ctx context.Context, msg domain.VoiceMessage, statusID int, path string) (res Result) {
	res.State = Downloading
	defer func() {
		if r := recover(); r != nil {
			res.FailedAt = res.State
			res.State = Failed
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	p.run(ctx, msg, statusID, path, &res)
	return res
}

func (p *Pipeline) run(ctx context.Context, msg domain.VoiceMessage, statusID int, path string, res *Result) {
	fail := func(err error) {
		res.FailedAt = res.State
		res.State = Failed
		res.Err = err
	}

	if err := p.timed(Downloading, func() error { return p.download(ctx, msg, path) }); err != nil {
		fail(err)
		return
	}

	res.State = Transcribing
	if err := p.setStatus(ctx, msg.ChatID, statusID, StatusTranscribing); err != nil {
		fail(err)
		return
	}
	var transcript string
	err := p.timed(Transcribing, func() error {
		var err error
		transcript, err = p.transcribe(ctx, path)
		transcript = strings.TrimSpace(transcript)
		return err
	})
	if err != nil {
		fail(err)
		return
	}
	if transcript == "" {
		fail(ErrNotRecognized)
		return
	}
	res.Transcript = transcript

	res.State = Restyling
	if err := p.setStatus(ctx, msg.ChatID, statusID, StatusRestyling); err != nil {
		fail(err)
		return
	}
	var text string
	err = p.timed(Restyling, func() error {
		var err error
		text, err = p.restyler.Restyle(ctx, p.instruction, transcript)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = ErrEmptyCompletion
		}
		return err
	})
	if err != nil {
		fail(fmt.Errorf("restyle: %w", err))
		return
	}
	res.Text = text

	if _, err := p.messenger.Reply(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		fail(fmt.Errorf("send result: %w", err))
		return
	}
	if err := p.messenger.Delete(ctx, msg.ChatID, statusID); err != nil {
		fail(fmt.Errorf("delete status: %w", err))
		return
	}
	res.State = Done
}

func (p *Pipeline) download(ctx context.Context, msg domain.VoiceMessage, path string) error {
	data, err := p.messenger.Download(ctx, msg.FileID)
	if err != nil {
		return fmt.Errorf("download voice: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save voice: %w", err)
	}
	return nil
}

func (p *Pipeline) transcribe(ctx context.Context, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read voice: %w", err)
	}
	text, err := p.transcriber.Transcribe(ctx, audio, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return text, nil
}

func (p *Pipeline) setStatus(ctx context.Context, chatID int64, statusID int, text string) error {
	if err := p.messenger.Edit(ctx, chatID, statusID, text); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (p *Pipeline) timed(stage State, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageLatency(stage.String()).ObserveSince(start)
	return err
}

// cleanup removes the run's temp file. A missing file is fine.
func (p *Pipeline) cleanup(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove temp audio", "path", path, "err", err)
	}
}
