package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// ReplyTo makes the message a reply to an earlier message in the chat.
	// Zero value means a plain (non-reply) message.
	ReplyTo MessageRef
}

// PollSpec describes a native poll to create.
type PollSpec struct {
	Question    string
	Options     []string
	MultiSelect bool
	Anonymous   bool
}

// SelfRights is the subset of the bot's own chat-member permissions the
// core cares about.
type SelfRights struct {
	CanPinMessages bool
	IsAdmin        bool
}

// Adapter is the messaging boundary consumed by the core. One implementation
// exists (Telegram); tests use in-memory fakes.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPoll(ctx context.Context, to ChatTarget, poll PollSpec) (MessageRef, error)
	PinMessage(ctx context.Context, ref MessageRef) error
	SelfRights(ctx context.Context, chatID int64) (SelfRights, error)
}
