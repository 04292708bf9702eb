package helpers

import (
	"testing"

	"github.com/m3rciful/reservebot/core/telegram/sender"
	"github.com/m3rciful/reservebot/core/telegram/teletest"

	tele "gopkg.in/telebot.v4"
)

func TestSendBatchInline(t *testing.T) {
	SetDispatcher(nil)
	c := teletest.NewText(1, 7, "hi")
	kb := &tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}}
	if err := SendBatch(c, Outgoing{Text: "a"}, Outgoing{Text: "b", Opts: kb}); err != nil {
		t.Fatal(err)
	}
	got := c.Texts()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("sent = %q", got)
	}
	if n, _ := c.Get("messages").(int); n != 2 {
		t.Fatalf("messages = %d", n)
	}
	if kbSeen, _ := c.Get("kb").(bool); !kbSeen {
		t.Fatal("keyboard flag not set")
	}
}

func TestSendBatchThroughDispatcher(t *testing.T) {
	d := sender.NewDispatcher(sender.Options{Workers: 2, QueueSize: 4})
	SetDispatcher(d)
	defer SetDispatcher(nil)

	c := teletest.NewText(1, 7, "hi")
	if err := SendBatch(c, Outgoing{Text: "1"}, Outgoing{Text: "2"}, Outgoing{Text: "3"}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	got := c.Texts()
	if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("sent = %q", got)
	}
}

func TestSendBatchFallsBackWhenClosed(t *testing.T) {
	d := sender.NewDispatcher(sender.Options{Workers: 1, QueueSize: 1})
	d.Close()
	SetDispatcher(d)
	defer SetDispatcher(nil)

	c := teletest.NewText(1, 7, "hi")
	if err := SendText(c, "x"); err != nil {
		t.Fatal(err)
	}
	if got := c.Texts(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("sent = %q", got)
	}
}

func TestUserAndChatKeys(t *testing.T) {
	c := teletest.NewText(1, 12345, "hi")
	if UserKey(c) != "12345" || ChatKey(c) != "12345" {
		t.Fatalf("keys = %q %q", UserKey(c), ChatKey(c))
	}
	if UserKey(nil) != "" {
		t.Fatal("nil context must give empty key")
	}
}
