package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voicepolish/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen = 4000
	// Bot API getFile refuses files above 20 MB.
	telegramMaxFileSize = 20 << 20
)

// WelcomeText answers /start.
const WelcomeText = "Привет! Отправь мне голосовое сообщение, а я превращу его в красивый, грамотный текст. 🎙️➡️📝"

const unauthorizedText = "⛔ Этот бот вам недоступен."

var _ domain.Channel = (*Telegram)(nil)

// Telegram receives updates by long polling and implements domain.Messenger.
type Telegram struct {
	token        string
	allowFrom    []int64 // empty = allow all
	pollTimeout  int
	fileEndpoint string
	httpClient   *http.Client

	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // user IDs as strings
	PollTimeout int      // seconds
	// APIEndpoint and FileEndpoint default to the public Bot API.
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// NewTelegram connects to the Bot API and verifies the token.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram allowFrom: %q is not a numeric user ID", s)
		}
		allowed = append(allowed, id)
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", scrubURL(err))
	}
	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	return &Telegram{
		token:        cfg.Token,
		allowFrom:    allowed,
		pollTimeout:  cfg.PollTimeout,
		fileEndpoint: cfg.FileEndpoint,
		httpClient:   cfg.HTTPClient,
		bot:          bot,
		logger:       cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Start polls for updates until ctx is cancelled. Updates are handled one
// at a time, in arrival order, so onVoice runs on the polling goroutine.
func (t *Telegram) Start(ctx context.Context, onVoice domain.VoiceHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "poll_timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update, onVoice)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update, onVoice domain.VoiceHandler) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", msg.From.UserName,
		)
		if _, err := t.Reply(ctx, chatID, msg.MessageID, unauthorizedText); err != nil {
			t.logger.Error("send refusal", "chat_id", chatID, "err", err)
		}
		return
	}

	if msg.IsCommand() {
		t.handleCommand(ctx, msg)
		return
	}

	if msg.Voice == nil {
		return
	}

	t.logger.Info("voice message received",
		"user_id", userID,
		"chat_id", chatID,
		"message_id", msg.MessageID,
		"duration", msg.Voice.Duration,
		"file_size", msg.Voice.FileSize,
	)
	onVoice(ctx, domain.VoiceMessage{
		ChatID:    chatID,
		MessageID: msg.MessageID,
		SenderID:  userID,
		FileID:    msg.Voice.FileID,
		Duration:  msg.Voice.Duration,
	})
}

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		if _, err := t.Reply(ctx, msg.Chat.ID, msg.MessageID, WelcomeText); err != nil {
			t.logger.Error("send welcome", "chat_id", msg.Chat.ID, "err", err)
		}
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// Reply sends text as a reply to replyTo. Long text goes out in several
// messages; only the first is threaded as the reply and its ID is returned.
func (t *Telegram) Reply(_ context.Context, chatID int64, replyTo int, text string) (int, error) {
	if text == "" {
		return 0, errors.New("empty message text")
	}
	firstID := 0
	for i, chunk := range splitMessage(text, telegramMaxMsgLen) {
		out := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 {
			out.ReplyToMessageID = replyTo
		}
		sent, err := t.bot.Send(out)
		if err != nil {
			return firstID, fmt.Errorf("telegram send: %w", scrubURL(err))
		}
		if i == 0 {
			firstID = sent.MessageID
		}
	}
	return firstID, nil
}

// Edit replaces the text of an existing message.
func (t *Telegram) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, truncate(text, telegramMaxMsgLen))
	if _, err := t.bot.Send(edit); err != nil {
		return fmt.Errorf("telegram edit: %w", scrubURL(err))
	}
	return nil
}

func (t *Telegram) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("telegram delete: %w", scrubURL(err))
	}
	return nil
}

// Download resolves fileID with getFile and fetches the file contents.
func (t *Telegram) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram getFile: %w", scrubURL(err))
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no path for file %s", fileID)
	}

	fileURL := fmt.Sprintf(t.fileEndpoint, t.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", scrubURL(err))
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", scrubURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > telegramMaxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", telegramMaxFileSize)
	}
	return data, nil
}

// scrubURL drops the request URL from transport errors. Bot API URLs embed
// the token and these errors end up in chat messages.
func scrubURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
