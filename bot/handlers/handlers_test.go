package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/reservebot/bot/availability"
	"github.com/m3rciful/reservebot/bot/config"
	"github.com/m3rciful/reservebot/bot/conversation"
	"github.com/m3rciful/reservebot/bot/storage"
	tg "github.com/m3rciful/reservebot/core/telegram"
	"github.com/m3rciful/reservebot/core/telegram/router"
	"github.com/m3rciful/reservebot/core/telegram/teletest"
)

const userID = 42

type fixture struct {
	h            *Handlers
	reg          *tg.Registry
	reservations *storage.MemoryReservationStore
	store        config.Store
}

// newFixture wires the real conversation over memory stores at 2024-06-01 08:00 store time.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := config.DefaultStore()
	res := storage.NewMemoryReservationStore()
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, st.Location)
	m := conversation.New(storage.NewMemoryStateStore(), res, availability.New(st, res), st,
		conversation.WithClock(func() time.Time { return now }))
	h := New(m, st.Location)
	reg := tg.NewRegistry()
	if err := h.Register(reg); err != nil {
		t.Fatal(err)
	}
	return &fixture{h: h, reg: reg, reservations: res, store: st}
}

func (f *fixture) press(t *testing.T, unique, data string) *teletest.Context {
	t.Helper()
	c := teletest.NewCallback(2, userID, unique, data)
	if err := router.CallbackRoute(f.reg, router.CallbackOptions{}).Handler(c); err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) say(t *testing.T, text string) *teletest.Context {
	t.Helper()
	c := teletest.NewText(1, userID, text)
	if err := router.TextRoutes(f.reg, router.TextOptions{})[0].Handler(c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestReservationOverTelegram(t *testing.T) {
	f := newFixture(t)

	c := f.say(t, "予約")
	sent := c.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	kb := sent[0].Markup()
	if kb == nil {
		t.Fatal("slot choices must carry an inline keyboard")
	}
	// 10:00..21:30 is 24 slots, four per row.
	if len(kb.InlineKeyboard) != 6 || len(kb.InlineKeyboard[0]) != 4 {
		t.Fatalf("keyboard shape = %d rows, first %d", len(kb.InlineKeyboard), len(kb.InlineKeyboard[0]))
	}
	first := kb.InlineKeyboard[0][0]
	if first.Text != "10:00" || first.Unique != conversation.IntentSelectTime || first.Data != "2024-06-01T10:00:00" {
		t.Fatalf("first button = %+v", first)
	}

	c = f.press(t, first.Unique, first.Data)
	if got := c.Texts(); len(got) != 1 || !strings.Contains(got[0], "10:00ですね") {
		t.Fatalf("after select_time = %q", got)
	}
	if c.Responded() != 1 {
		t.Fatal("callback must be acknowledged")
	}

	c = f.say(t, "3")
	sent = c.Sent()
	if len(sent) != 1 || sent[0].Markup() == nil {
		t.Fatalf("confirm prompt = %+v", sent)
	}
	row := sent[0].Markup().InlineKeyboard[0]
	if len(row) != 2 || row[0].Text != "はい" || row[0].Unique != conversation.IntentConfirmYes || row[1].Unique != conversation.IntentConfirmNo {
		t.Fatalf("confirm buttons = %+v", row)
	}

	c = f.press(t, conversation.IntentConfirmYes, "")
	got := c.Texts()
	if len(got) != 2 || !strings.HasPrefix(got[1], "予約番号: ") {
		t.Fatalf("booking replies = %q", got)
	}
	all := f.reservations.All()
	if len(all) != 1 || all[0].UserID != "42" || all[0].NumPeople != 3 {
		t.Fatalf("reservations = %+v", all)
	}
}

func TestCommands(t *testing.T) {
	f := newFixture(t)

	c := teletest.NewText(1, userID, "/start")
	if err := f.h.OnStart(c); err != nil {
		t.Fatal(err)
	}
	if got := c.Texts(); len(got) != 1 || !strings.Contains(got[0], "/reserve") {
		t.Fatalf("/start = %q", got)
	}

	c = f.say(t, "/book")
	if sent := c.Sent(); len(sent) != 1 || sent[0].Markup() == nil {
		t.Fatalf("/book alias = %+v", sent)
	}

	c = teletest.NewText(1, userID, "/cancel")
	if err := f.h.OnCancel(c); err != nil {
		t.Fatal(err)
	}
	if got := c.Texts(); len(got) != 1 || !strings.HasPrefix(got[0], "予約をキャンセルしました") {
		t.Fatalf("/cancel = %q", got)
	}
}

func TestUnknownCallbackFallsBackToConversation(t *testing.T) {
	f := newFixture(t)
	c := f.press(t, "confirm_yes", "")
	if got := c.Texts(); len(got) != 1 || !strings.HasPrefix(got[0], "この操作は現在ご利用いただけません") {
		t.Fatalf("stale confirm = %q", got)
	}
	c = f.press(t, "legacy_button", "")
	if got := c.Texts(); len(got) != 1 || !strings.HasPrefix(got[0], "この操作は現在ご利用いただけません") {
		t.Fatalf("unknown = %q", got)
	}
}

type todayConv struct {
	Conversation
	list []storage.Reservation
	err  error
}

func (c todayConv) Today(context.Context) ([]storage.Reservation, error) { return c.list, c.err }

func TestOnToday(t *testing.T) {
	loc := config.DefaultStore().Location
	tests := []struct {
		name string
		conv todayConv
		want []string
	}{
		{"empty", todayConv{}, []string{msgTodayEmpty}},
		{"error", todayConv{err: errors.New("db down")}, []string{msgTodayFailed}},
		{"list", todayConv{list: []storage.Reservation{
			{ID: 1, DateTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), NumPeople: 2},
			{ID: 2, DateTime: time.Date(2024, 6, 1, 18, 30, 0, 0, loc), NumPeople: 4},
		}}, []string{"12:00  2名様  #1", "18:30  4名様  #2", "合計: 2件 / 6名"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := teletest.NewText(1, 99, "/today")
			if err := New(tt.conv, loc).OnToday(c); err != nil {
				t.Fatal(err)
			}
			got := c.Texts()
			if len(got) != 1 {
				t.Fatalf("sent %d messages", len(got))
			}
			for _, w := range tt.want {
				if !strings.Contains(got[0], w) {
					t.Fatalf("%q missing %q", got[0], w)
				}
			}
		})
	}
}

func TestRenderKeepsOrderAndKinds(t *testing.T) {
	out := Render([]conversation.Message{
		conversation.Text("a"),
		{Kind: conversation.KindChoices, Text: "b"},
		{Kind: conversation.KindConfirm, Text: "c", Choices: []conversation.Choice{{Label: "はい", Data: "confirm_yes"}}},
	})
	if len(out) != 3 || out[0].Text != "a" || out[1].Text != "b" || out[2].Text != "c" {
		t.Fatalf("out = %+v", out)
	}
	if out[0].Opts != nil || out[1].Opts != nil {
		t.Fatal("text and empty choices must be sent without markup")
	}
	if out[2].Opts == nil || out[2].Opts.ReplyMarkup.InlineKeyboard[0][0].Unique != "confirm_yes" {
		t.Fatalf("confirm markup = %+v", out[2].Opts)
	}
}

func TestOnRateLimitedSkipsCallbacks(t *testing.T) {
	h := New(nil, nil)
	c := teletest.NewCallback(1, userID, "confirm_yes", "")
	_ = h.OnRateLimited(c)
	if len(c.Sent()) != 0 {
		t.Fatal("callbacks must not get a text reply")
	}
	c2 := teletest.NewText(1, userID, "x")
	_ = h.OnRateLimited(c2)
	if got := c2.Texts(); len(got) != 1 || got[0] != msgRateLimited {
		t.Fatalf("got %q", got)
	}
}
