package router

import (
	"errors"
	"testing"

	tg "github.com/m3rciful/reservebot/core/telegram"
	"github.com/m3rciful/reservebot/core/telegram/callbacks"
	"github.com/m3rciful/reservebot/core/telegram/teletest"

	tele "gopkg.in/telebot.v4"
)

func TestCallbackRouteDispatchesByUnique(t *testing.T) {
	reg := tg.NewRegistry()
	var got string
	_ = reg.RegisterCallback("select_time", func(c tele.Context) error {
		got = callbacks.Postback(c)
		return nil
	})
	route := CallbackRoute(reg, CallbackOptions{})

	c := teletest.NewCallback(1, 42, "select_time", "2024-06-01T14:00:00")
	if err := route.Handler(c); err != nil {
		t.Fatal(err)
	}
	if got != "select_time|2024-06-01T14:00:00" {
		t.Fatalf("postback = %q", got)
	}
	if c.Responded() != 1 {
		t.Fatalf("responded = %d, want 1", c.Responded())
	}
}

func TestCallbackRouteNotFound(t *testing.T) {
	reg := tg.NewRegistry()
	called := false
	route := CallbackRoute(reg, CallbackOptions{NotFound: func(tele.Context) error {
		called = true
		return nil
	}})
	if err := route.Handler(teletest.NewCallback(1, 42, "nope", "")); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("NotFound not called")
	}
}

func TestTextRoutesOrder(t *testing.T) {
	reg := tg.NewRegistry()
	var hit string
	_ = reg.RegisterCommand("/reserve", tg.Command{
		Description: "reserve",
		Aliases:     []string{"book"},
		Handler:     func(tele.Context) error { hit = "command"; return nil },
	})
	_ = reg.RegisterCommand("/today", tg.Command{
		Description: "today",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { hit = "admin"; return nil },
	})
	reg.SetTextFallback(func(tele.Context) error { hit = "fallback"; return nil })
	route := TextRoutes(reg, TextOptions{})[0]

	tests := []struct {
		text string
		want string
	}{
		{"/book now", "command"},
		{"予約", "fallback"},
		{"/today", "fallback"},
		{"/unknown", "fallback"},
	}
	for _, tt := range tests {
		hit = ""
		if err := route.Handler(teletest.NewText(1, 42, tt.text)); err != nil {
			t.Fatal(err)
		}
		if hit != tt.want {
			t.Fatalf("%q routed to %q, want %q", tt.text, hit, tt.want)
		}
	}
}

func TestTextRoutesUnknownText(t *testing.T) {
	called := false
	route := TextRoutes(nil, TextOptions{UnknownText: func(tele.Context) error {
		called = true
		return nil
	}})[0]
	_ = route.Handler(teletest.NewText(1, 42, "hi"))
	if !called {
		t.Fatal("UnknownText not called")
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "boom" }
func (codedErr) Code() string  { return "slot full" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{codedErr{}, "SLOT_FULL"},
		{&plainErr{}, "PLAINERR"},
		{errors.New("x"), "ERRORSTRING"},
	}
	for _, tt := range tests {
		if got := deriveErrorCode(tt.err); got != tt.want {
			t.Fatalf("deriveErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	if got := normalizeHandlerName(" /Today "); got != "today" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeHandlerName(""); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}
