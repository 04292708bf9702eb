package middleware

import (
	"log/slog"

	"github.com/m3rciful/reservebot/core/logger"
	tghelpers "github.com/m3rciful/reservebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only the configured admin reach next.
// With no admin configured every caller is rejected.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() != nil && opts.AdminID != 0 && c.Sender().ID == opts.AdminID {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "access.denied",
				slog.String("outcome", "rejected"),
				slog.Bool("admin_configured", opts.AdminID != 0),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
