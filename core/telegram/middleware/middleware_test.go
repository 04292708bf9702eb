package middleware

import (
	"testing"
	"time"

	"github.com/m3rciful/reservebot/core/telegram/teletest"

	tele "gopkg.in/telebot.v4"
)

func TestLimitersBurstThenInterval(t *testing.T) {
	l := NewLimiters(RateLimitOptions{Interval: time.Second, Burst: 2})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{0, true},
		{100 * time.Millisecond, false},
		{time.Second, true},
		{time.Second, false},
	}
	for i, s := range steps {
		if got := l.Allow(1, now.Add(s.at)); got != s.want {
			t.Fatalf("step %d: Allow = %v, want %v", i, got, s.want)
		}
	}
	if !l.Allow(2, now) {
		t.Fatal("other user must have its own bucket")
	}
}

func TestLimitersEvictIdle(t *testing.T) {
	l := NewLimiters(RateLimitOptions{Interval: time.Second, IdleTTL: time.Minute})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.Allow(1, now)
	l.Allow(2, now)
	l.Allow(3, now.Add(2*time.Minute))
	if got := l.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestRateLimitMiddlewareExclude(t *testing.T) {
	calls := 0
	next := func(tele.Context) error { calls++; return nil }
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})(next)

	for i := 0; i < 3; i++ {
		_ = mw(teletest.NewText(i, 7, "hi"))
	}
	for i := 0; i < 3; i++ {
		_ = mw(teletest.NewCallback(10+i, 7, "confirm_yes", ""))
	}
	if calls != 4 || limited != 2 {
		t.Fatalf("calls = %d limited = %d, want 4 and 2", calls, limited)
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		adminID int64
		userID  int64
		allowed bool
	}{
		{"admin", 99, 99, true},
		{"stranger", 99, 1, false},
		{"no admin configured", 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, rejected := false, false
			h := AdminOnlyMiddleware(AdminOptions{
				AdminID:  tt.adminID,
				OnReject: func(tele.Context) error { rejected = true; return nil },
			})(func(tele.Context) error { allowed = true; return nil })
			_ = h(teletest.NewText(1, tt.userID, "/today"))
			if allowed != tt.allowed || rejected == tt.allowed {
				t.Fatalf("allowed = %v rejected = %v", allowed, rejected)
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(teletest.NewText(1, 1, "x")); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	c := teletest.NewText(5, 7, "hi")
	_ = LoggerMiddleware(func(tele.Context) error { return nil })(c)
	if rid, _ := c.Get("rid").(string); rid == "" {
		t.Fatal("rid not set")
	}
	if !recent.firstTime(6, time.Now()) || recent.firstTime(6, time.Now()) {
		t.Fatal("update dedupe broken")
	}
}
