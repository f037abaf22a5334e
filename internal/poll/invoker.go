package poll

import (
	"context"
	"fmt"
	"sync"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"

	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/schedule"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/store"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/transport"
)

// Invoker executes fired actions: it composes content, talks to the
// messaging adapter and records poll references. Failure handling follows
// one rule throughout: the weekly cadence is the retry mechanism, so nothing
// here retries, and only the send itself can fail an action. Pinning and
// persistence are best-effort.
type Invoker struct {
	log     logx.Logger
	adapter transport.Adapter
	store   store.Store
	clock   schedule.Clock
	target  transport.ChatTarget
	pin     bool

	mu     sync.Mutex
	rights *transport.SelfRights
}

type InvokerConfig struct {
	Target   transport.ChatTarget
	PinPolls bool
}

func NewInvoker(cfg InvokerConfig, adapter transport.Adapter, st store.Store, clock schedule.Clock, log logx.Logger) *Invoker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Invoker{
		log:     log.With(logx.String("component", "invoker")),
		adapter: adapter,
		store:   st,
		clock:   clock,
		target:  cfg.Target,
		pin:     cfg.PinPolls,
	}
}

// Execute dispatches one action. The returned error reports only send
// failures; downstream best-effort steps are logged and swallowed.
func (iv *Invoker) Execute(ctx context.Context, a schedule.Action) error {
	switch a.Op {
	case schedule.OpPostPoll:
		return iv.postPoll(ctx, a.Kind)
	case schedule.OpSendReminder:
		return iv.sendReminder(ctx, a.Kind)
	default:
		return fmt.Errorf("unknown operation %q", a.Op)
	}
}

// HasPollRef reports whether a poll of this kind has ever been posted and
// recorded. Catch-up uses it to decide whether a stale slot still matters.
func (iv *Invoker) HasPollRef(ctx context.Context, k schedule.Kind) bool {
	_, ok, err := iv.store.GetPollRef(ctx, string(k))
	if err != nil {
		iv.log.Warn("poll ref read failed", logx.String("kind", string(k)), logx.Err(err))
		return false
	}
	return ok
}

func (iv *Invoker) postPoll(ctx context.Context, k schedule.Kind) error {
	now := iv.clock.Now()
	spec, err := BuildPoll(k, now)
	if err != nil {
		return err
	}

	ref, err := iv.adapter.SendPoll(ctx, iv.target, spec)
	if err != nil {
		return fmt.Errorf("send poll %s: %w", k, err)
	}
	iv.log.Info("poll posted",
		logx.String("kind", string(k)),
		logx.String("question", spec.Question),
		logx.Int("message_id", ref.MessageID))

	if err := iv.store.SetPollRef(ctx, string(k), store.PollRef{ChatID: ref.ChatID, MessageID: ref.MessageID}); err != nil {
		// In-memory state is already updated; reminders this process keep
		// working even if the write never lands.
		iv.log.Warn("poll ref persist failed", logx.String("kind", string(k)), logx.Err(err))
	}

	if iv.pin {
		iv.pinPoll(ctx, k, ref)
	}
	return nil
}

// pinPoll pins the freshly posted poll if the bot is allowed to. A missing
// permission or a pin failure never fails the post.
func (iv *Invoker) pinPoll(ctx context.Context, k schedule.Kind, ref transport.MessageRef) {
	if !iv.canPin(ctx) {
		iv.log.Debug("pin skipped: no pin permission", logx.String("kind", string(k)))
		return
	}
	if err := iv.adapter.PinMessage(ctx, ref); err != nil {
		iv.log.Warn("pin failed", logx.String("kind", string(k)), logx.Err(err))
		return
	}
	iv.log.Info("poll pinned", logx.String("kind", string(k)), logx.Int("message_id", ref.MessageID))
}

// canPin caches the first successful rights lookup; admin permissions in
// this group change rarely enough that a restart is an acceptable refresh.
func (iv *Invoker) canPin(ctx context.Context) bool {
	iv.mu.Lock()
	cached := iv.rights
	iv.mu.Unlock()
	if cached != nil {
		return cached.CanPinMessages
	}

	r, err := iv.adapter.SelfRights(ctx, iv.target.ChatID)
	if err != nil {
		// Unknown is treated as allowed: the pin call itself reports the
		// real answer and is already best-effort.
		iv.log.Debug("rights lookup failed", logx.Err(err))
		return true
	}
	iv.mu.Lock()
	iv.rights = &r
	iv.mu.Unlock()
	return r.CanPinMessages
}

func (iv *Invoker) sendReminder(ctx context.Context, k schedule.Kind) error {
	text := ReminderText(k)

	ref, ok, err := iv.store.GetPollRef(ctx, string(k))
	if err != nil {
		iv.log.Warn("poll ref read failed", logx.String("kind", string(k)), logx.Err(err))
		ok = false
	}

	if ok {
		opt := &transport.SendOptions{
			ReplyTo: transport.MessageRef{
				ChatID:    ref.ChatID,
				MessageID: ref.MessageID,
			},
		}
		_, err := iv.adapter.SendText(ctx, iv.target, text, opt)
		if err == nil {
			iv.log.Info("reminder sent", logx.String("kind", string(k)), logx.Int("reply_to", ref.MessageID))
			return nil
		}
		// The referenced poll may have been deleted; a plain reminder
		// still reaches the group.
		iv.log.Warn("reminder reply failed; retrying plain",
			logx.String("kind", string(k)), logx.Err(err))
	}

	if _, err := iv.adapter.SendText(ctx, iv.target, text, nil); err != nil {
		return fmt.Errorf("send reminder %s: %w", k, err)
	}
	iv.log.Info("reminder sent", logx.String("kind", string(k)))
	return nil
}

// AnnounceOnline posts the startup message.
func (iv *Invoker) AnnounceOnline(ctx context.Context) error {
	_, err := iv.adapter.SendText(ctx, iv.target, OnlineText(iv.clock.Now()), nil)
	return err
}
