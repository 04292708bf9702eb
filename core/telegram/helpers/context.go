// Package helpers bridges tele.Context with context.Context logging metadata
// and the asynchronous sender.
package helpers

import (
	"context"
	"strconv"

	"github.com/m3rciful/reservebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

// StoreContext attaches ctx to c for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	if ctx, ok := c.Get(contextKey).(context.Context); ok {
		return ctx, true
	}
	return nil, false
}

// UserKey renders the sender's Telegram id as the opaque string user key.
func UserKey(c tele.Context) string {
	if c == nil || c.Sender() == nil {
		return ""
	}
	return strconv.FormatInt(c.Sender().ID, 10)
}

// ChatKey renders the chat id as a string; replies are addressed by it.
func ChatKey(c tele.Context) string {
	if c == nil || c.Chat() == nil {
		return ""
	}
	return strconv.FormatInt(c.Chat().ID, 10)
}

// BuildContext returns the context stored for this update or builds one
// carrying rid and update, user and chat ids.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, UserKey(c), chatID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler adds the handler name to the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
