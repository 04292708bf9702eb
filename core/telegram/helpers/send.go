package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/reservebot/core/logger"
	"github.com/m3rciful/reservebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
// With no dispatcher set, helpers send synchronously.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// Outgoing is one message of a reply batch.
type Outgoing struct {
	Text string
	Opts *tele.SendOptions
}

func (o Outgoing) send(c tele.Context) error {
	if o.Opts != nil {
		return c.Send(o.Text, o.Opts)
	}
	return c.Send(o.Text)
}

// SendBatch sends msgs to the current chat in order. With a dispatcher they
// go out as one job; a queue that is full or closed falls back to sending inline.
func SendBatch(c tele.Context, msgs ...Outgoing) error {
	if len(msgs) == 0 {
		return nil
	}
	steps := make([]sender.Step, len(msgs))
	for i, m := range msgs {
		steps[i] = func() error { return m.send(c) }
	}

	countReplies(c, msgs)

	disp := globalDispatcher.Load()
	if disp == nil {
		return runInline(steps)
	}
	ctx := BuildContext(c)
	err := disp.EnqueueBatch(ctx, "reply", "sendMessage", steps)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompTGSender, "queue.fallback",
			slog.Int("messages", len(msgs)),
			logger.Err(err),
		)
		return runInline(steps)
	}
	return err
}

// countReplies feeds the per-update counters read by the handler summary log.
func countReplies(c tele.Context, msgs []Outgoing) {
	n, _ := c.Get("messages").(int)
	c.Set("messages", n+len(msgs))
	for _, m := range msgs {
		if m.Opts != nil && m.Opts.ReplyMarkup != nil {
			c.Set("kb", true)
		}
	}
}

// SendText sends plain text (no parse mode) to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	out := Outgoing{Text: text}
	if len(opts) > 0 {
		out.Opts = opts[0]
	}
	return SendBatch(c, out)
}

func runInline(steps []sender.Step) error {
	for _, s := range steps {
		if err := s(); err != nil {
			return err
		}
	}
	return nil
}
