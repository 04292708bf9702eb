package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/reservebot/core/logger"
	"github.com/m3rciful/reservebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/reservebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update IDs so a receipt is logged once
// even when the middleware sits on several handler groups.
type seenUpdates struct {
	mu      sync.Mutex
	ids     map[int]time.Time
	keepFor time.Duration
}

var recent = &seenUpdates{ids: make(map[int]time.Time), keepFor: 10 * time.Second}

func (s *seenUpdates) firstTime(updateID int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ts := range s.ids {
		if now.Sub(ts) > s.keepFor {
			delete(s.ids, id)
		}
	}
	if _, ok := s.ids[updateID]; ok {
		return false
	}
	s.ids[updateID] = now
	return true
}

// LoggerMiddleware sets the request id and logging context for the update and
// logs one update.received line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()

		var chatID, userID int64
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(context.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, tghelpers.UserKey(c), chatID)
		ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && recent.firstTime(upd.ID, time.Now()) {
			logger.Debug(ctx, logger.CompTG, "update.received", updateAttrs(c, upd)...)
		}
		return next(c)
	}
}

func updateAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
