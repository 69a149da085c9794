package domain

import "context"

// VoiceHandler processes one voice message.
type VoiceHandler func(ctx context.Context, msg VoiceMessage)

// Channel is a chat platform that delivers voice messages and carries the
// pipeline's replies back.
type Channel interface {
	Messenger
	Name() string
	// Start receives messages until ctx is cancelled, calling onVoice for
	// each voice message.
	Start(ctx context.Context, onVoice VoiceHandler) error
}
