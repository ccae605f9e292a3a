// Package channel defines the interface for communication channels.
// Channels are how GLaDOS talks to the world — Telegram today, possibly
// Matrix or a CLI later.
package channel

import "context"

// Message represents an incoming free-text or voice message.
type Message struct {
	// Source identifies the channel (e.g., "telegram")
	Source string

	// SenderID is the channel-specific sender identifier
	SenderID string

	// ChatID is the channel-specific conversation identifier
	ChatID string

	// MessageRef identifies this message within the chat,
	// usable for later Edit/Delete calls.
	MessageRef string

	// Content is the message text (empty for voice until transcribed)
	Content string

	// IsVoice indicates the message carries audio instead of text
	IsVoice bool

	// VoiceFileID is the channel-specific handle for downloading audio
	VoiceFileID string

	// ReplyToRef is the ref of the message this one replies to, if any
	ReplyToRef string

	// ReplyToText is the text of the replied-to message, if any
	ReplyToText string

	// Timestamp is the message timestamp in milliseconds
	Timestamp int64
}

// Callback represents a button press on an inline keyboard.
type Callback struct {
	Source     string
	SenderID   string
	ChatID     string
	CallbackID string // transport handle for acknowledging the press
	MessageRef string // the message whose keyboard was pressed
	Token      string // opaque token baked into the button
}

// Button is a single selectable action: a label and the opaque token
// delivered back as a Callback when pressed.
type Button struct {
	Label string
	Token string
}

// Prompt is a renderable message: text plus ordered rows of buttons.
// An empty Buttons slice renders as plain text.
type Prompt struct {
	Text    string
	Buttons [][]Button
}

// Channel is the interface for a communication channel.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram").
	Name() string

	// Start begins listening. Blocks until ctx is cancelled.
	// Incoming messages and button presses are dispatched to the handlers.
	Start(ctx context.Context, onMessage MessageHandler, onCallback CallbackHandler) error

	// Send renders a prompt as a new message and returns its ref.
	Send(ctx context.Context, chatID string, p Prompt) (string, error)

	// Edit replaces an existing message's text and keyboard in place.
	Edit(ctx context.Context, chatID, messageRef string, p Prompt) error

	// Delete retracts a previously sent or received message.
	Delete(ctx context.Context, chatID, messageRef string) error

	// SendVoice sends synthesized audio as a voice note.
	SendVoice(ctx context.Context, chatID string, audio []byte) error

	// DownloadVoice fetches the audio bytes for a voice message.
	DownloadVoice(ctx context.Context, fileID string) ([]byte, error)

	// Stop gracefully shuts down the channel.
	Stop() error
}

// MessageHandler is called for each incoming text or voice message.
type MessageHandler func(ctx context.Context, msg Message) error

// CallbackHandler is called for each button press.
type CallbackHandler func(ctx context.Context, cb Callback) error
