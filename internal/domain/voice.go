package domain

import "context"

// VoiceMessage is an inbound chat message carrying a voice attachment.
// It only lives for the duration of one pipeline run.
type VoiceMessage struct {
	ChatID    int64
	MessageID int
	SenderID  int64
	FileID    string // remote handle of the voice blob
	Duration  int    // seconds, as reported by the chat platform
}

// Messenger is the subset of the chat platform the voice pipeline talks to.
type Messenger interface {
	// Reply sends text as a reply to replyTo and returns the new message ID.
	Reply(ctx context.Context, chatID int64, replyTo int, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	// Download fetches the raw bytes behind a remote file handle.
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Transcriber turns recorded speech into text.
// An empty result is a valid answer, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Restyler rewrites a raw transcript according to a system instruction.
type Restyler interface {
	Restyle(ctx context.Context, instruction, transcript string) (string, error)
}
