package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/reservebot/core/logger"
	tghelpers "github.com/m3rciful/reservebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures the per-user rate limiter.
type RateLimitOptions struct {
	// Interval is the sustained spacing between two updates of one user.
	Interval time.Duration
	// Burst is how many updates may arrive back to back before Interval applies.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users not seen for this long; defaults to 10 minutes.
	IdleTTL time.Duration
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiters holds one token bucket per user.
type Limiters struct {
	mu       sync.Mutex
	users    map[int64]*userLimiter
	every    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastSwep time.Time
}

// NewLimiters builds the per-user limiter set for opts.
func NewLimiters(opts RateLimitOptions) *Limiters {
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Limiters{
		users:   make(map[int64]*userLimiter),
		every:   rate.Every(opts.Interval),
		burst:   burst,
		idleTTL: ttl,
	}
}

// Allow reports whether userID may proceed at now.
func (l *Limiters) Allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSwep) > l.idleTTL {
		for id, u := range l.users {
			if now.Sub(u.lastSeen) > l.idleTTL {
				delete(l.users, id)
			}
		}
		l.lastSwep = now
	}

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(l.every, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = now
	return u.lim.AllowN(now, 1)
}

// Len returns the number of tracked users.
func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// UpdateKind names the update type the way rate_limit.exclude_updates does.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}

// RateLimitMiddleware drops updates from users that exceed the configured rate.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiters := NewLimiters(opts)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if limiters.Allow(user.ID, time.Now()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "rate_limit",
				slog.String("outcome", "rate_limited"),
				slog.String("kind", UpdateKind(c.Update())),
			)
			if c.Callback() != nil {
				_ = c.Respond()
			}
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
