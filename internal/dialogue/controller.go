// Package dialogue runs the per-conversation flow: /start, collect an email
// address, collect a message, deliver it, reset.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Queueue0/tgmail/internal/chat"
	"github.com/Queueue0/tgmail/internal/mail"
)

const (
	replyPrompt   = "Hi! Enter your email address:"
	replyAccepted = "Email accepted. Now enter the message text:"
	replyRejected = "Invalid email. Please try again. Error: %s"
	replySent     = "Message sent successfully!"
	replyFailed   = "Failed to send the message: %s"
)

// ErrOutOfOrder is returned when a handler is invoked in a stage it does not
// belong to. Nothing is changed in that case.
var ErrOutOfOrder = errors.New("handler called in the wrong stage")

type Deliverer interface {
	Send(ctx context.Context, recipient, body string) error
}

type Stats struct {
	Active    int   `json:"active_conversations"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// Controller owns the conversation store. Events for one conversation must
// not be handled concurrently; distinct conversations may be.
type Controller struct {
	store   *Store
	mail    Deliverer
	replies chat.Replier
	log     *slog.Logger

	delivered atomic.Int64
	failed    atomic.Int64
}

func NewController(store *Store, d Deliverer, r chat.Replier, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:   store,
		mail:    d,
		replies: r,
		log:     log.With("component", "dialogue"),
	}
}

// Handle routes one update. /start always restarts; anything else goes to
// the handler for the conversation's stage. Input with no dialogue in
// progress is dropped without a reply.
func (c *Controller) Handle(ctx context.Context, u chat.Update) error {
	if u.Command() == "start" {
		return c.OnStart(ctx, u.ConversationID)
	}

	conv, _ := c.store.Get(u.ConversationID)
	switch conv.Stage {
	case StageAwaitingEmail:
		return c.OnEmailInput(ctx, u.ConversationID, u.Text)
	case StageAwaitingMessage:
		return c.OnMessageInput(ctx, u.ConversationID, u.Text)
	default:
		c.log.Debug("ignoring input outside a dialogue", "conv", u.ConversationID)
		return nil
	}
}

// OnStart discards whatever the conversation had collected and asks for an
// email address.
func (c *Controller) OnStart(ctx context.Context, id int64) error {
	c.store.Put(Conversation{ID: id, Stage: StageAwaitingEmail})
	c.log.Info("dialogue started", "conv", id)
	return c.reply(ctx, id, replyPrompt)
}

func (c *Controller) OnEmailInput(ctx context.Context, id int64, text string) error {
	if c.Stage(id) != StageAwaitingEmail {
		return ErrOutOfOrder
	}

	if _, err := mail.ParseAddress(text); err != nil {
		c.log.Info("email rejected", "conv", id, "err", err.Error())
		return c.reply(ctx, id, fmt.Sprintf(replyRejected, err.Error()))
	}

	// the stage is checked again under the lock: the evictor may have
	// dropped the conversation meanwhile
	accepted := c.store.Update(id, func(conv *Conversation) bool {
		if conv.Stage != StageAwaitingEmail {
			return false
		}
		// stored as typed; the sender normalizes the domain on the envelope
		conv.Email = strings.TrimSpace(text)
		conv.Stage = StageAwaitingMessage
		return true
	})
	if !accepted {
		return ErrOutOfOrder
	}
	return c.reply(ctx, id, replyAccepted)
}

// OnMessageInput delivers text to the stored address. The conversation is
// reset however this returns, including a panic in the deliverer or a
// failed reply.
func (c *Controller) OnMessageInput(ctx context.Context, id int64, text string) error {
	conv, _ := c.store.Get(id)
	if conv.Stage != StageAwaitingMessage {
		return ErrOutOfOrder
	}
	defer c.store.Clear(id)

	if err := c.mail.Send(ctx, conv.Email, text); err != nil {
		c.failed.Add(1)
		c.log.Warn("delivery attempt failed", "conv", id, "kind", mail.KindOf(err).String())
		return c.reply(ctx, id, fmt.Sprintf(replyFailed, err.Error()))
	}

	c.delivered.Add(1)
	return c.reply(ctx, id, replySent)
}

// Stage reports where the conversation currently is.
func (c *Controller) Stage(id int64) Stage {
	conv, _ := c.store.Get(id)
	return conv.Stage
}

func (c *Controller) Stats() Stats {
	return Stats{
		Active:    c.store.Len(),
		Delivered: c.delivered.Load(),
		Failed:    c.failed.Load(),
	}
}

// EvictIdle periodically drops conversations idle for longer than maxIdle
// until ctx is done. A non-positive maxIdle disables eviction.
func (c *Controller) EvictIdle(ctx context.Context, every, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	if every <= 0 {
		every = maxIdle / 2
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.store.EvictIdle(maxIdle); n > 0 {
				c.log.Info("evicted idle conversations", "count", n)
			}
		}
	}
}

func (c *Controller) reply(ctx context.Context, id int64, text string) error {
	if err := c.replies.Reply(ctx, id, text); err != nil {
		c.log.Error("reply failed", "conv", id, "err", err.Error())
		return fmt.Errorf("reply to %d: %w", id, err)
	}
	return nil
}
