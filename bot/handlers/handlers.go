// Package handlers adapts Telegram updates to the reservation conversation.
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/reservebot/bot/conversation"
	"github.com/m3rciful/reservebot/bot/storage"
	"github.com/m3rciful/reservebot/core/logger"
	tg "github.com/m3rciful/reservebot/core/telegram"
	"github.com/m3rciful/reservebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/reservebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const (
	msgStartHint   = "いらっしゃいませ。\n「予約」と入力するか /reserve を送ると、本日のご予約を承ります。"
	msgRateLimited = "操作が速すぎます。少し時間をおいてからお試しください。"
	msgAdminOnly   = "このコマンドは管理者のみ利用できます。"
	msgTodayEmpty  = "本日の確定済み予約はありません。"
	msgTodayFailed = "予約一覧の取得に失敗しました。"
)

// Conversation is the dialogue the handlers drive.
type Conversation interface {
	HandleText(ctx context.Context, ev conversation.TextEvent) []conversation.Message
	HandlePostback(ctx context.Context, ev conversation.PostbackEvent) []conversation.Message
	Start(ctx context.Context, userID string) []conversation.Message
	Cancel(ctx context.Context, userID string) []conversation.Message
	Today(ctx context.Context) ([]storage.Reservation, error)
}

// Handlers turns Telegram updates into conversation events and sends the replies.
type Handlers struct {
	conv     Conversation
	location *time.Location
}

// New builds the handlers; loc renders reservation times in /today.
func New(conv Conversation, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{conv: conv, location: loc}
}

// Register binds commands, callbacks and the text fallback on reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	commands := map[string]tg.Command{
		"/start":   {Handler: h.OnStart, Description: "使い方を表示", Hidden: true},
		"/reserve": {Handler: h.OnReserve, Description: "本日の予約を開始", Aliases: []string{"book"}},
		"/cancel":  {Handler: h.OnCancel, Description: "進行中の予約を中止"},
		"/today":   {Handler: h.OnToday, Description: "本日の予約一覧", AdminOnly: true},
	}
	for name, cmd := range commands {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return err
		}
	}
	for _, intent := range []string{conversation.IntentSelectTime, conversation.IntentConfirmYes, conversation.IntentConfirmNo} {
		if err := reg.RegisterCallback(intent, h.OnPostback); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(h.OnPostback)
	reg.SetTextFallback(h.OnText)
	return nil
}

// OnText feeds a typed message to the conversation.
func (h *Handlers) OnText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	msgs := h.conv.HandleText(ctx, conversation.TextEvent{
		UserID:     tghelpers.UserKey(c),
		Text:       c.Text(),
		ReplyToken: tghelpers.ChatKey(c),
	})
	return h.reply(c, msgs)
}

// OnPostback feeds an inline-button press to the conversation.
func (h *Handlers) OnPostback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	msgs := h.conv.HandlePostback(ctx, conversation.PostbackEvent{
		UserID:     tghelpers.UserKey(c),
		Payload:    callbacks.Postback(c),
		ReplyToken: tghelpers.ChatKey(c),
	})
	return h.reply(c, msgs)
}

// OnStart greets the user with how to begin.
func (h *Handlers) OnStart(c tele.Context) error {
	return tghelpers.SendText(c, msgStartHint)
}

// OnReserve starts a reservation like the start keyword does.
func (h *Handlers) OnReserve(c tele.Context) error {
	return h.reply(c, h.conv.Start(tghelpers.BuildContext(c), tghelpers.UserKey(c)))
}

// OnCancel drops the conversation in progress.
func (h *Handlers) OnCancel(c tele.Context) error {
	return h.reply(c, h.conv.Cancel(tghelpers.BuildContext(c), tghelpers.UserKey(c)))
}

// OnToday lists today's confirmed reservations.
func (h *Handlers) OnToday(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	list, err := h.conv.Today(ctx)
	if err != nil {
		logger.Error(ctx, logger.CompReservations, "today.list", logger.Failed(err)...)
		return tghelpers.SendText(c, msgTodayFailed)
	}
	return tghelpers.SendText(c, h.formatToday(list))
}

// OnRateLimited tells a throttled user to slow down.
func (h *Handlers) OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return nil
	}
	return tghelpers.SendText(c, msgRateLimited)
}

// OnAdminReject answers non-admins that tried an admin command.
func (h *Handlers) OnAdminReject(c tele.Context) error {
	return tghelpers.SendText(c, msgAdminOnly)
}

func (h *Handlers) reply(c tele.Context, msgs []conversation.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return tghelpers.SendBatch(c, Render(msgs)...)
}

func (h *Handlers) formatToday(list []storage.Reservation) string {
	if len(list) == 0 {
		return msgTodayEmpty
	}
	var b strings.Builder
	total := 0
	for _, r := range list {
		at := storage.InLocation(r.DateTime, h.location)
		fmt.Fprintf(&b, "%s  %d名様  #%d\n", at.Format("15:04"), r.NumPeople, r.ID)
		total += r.NumPeople
	}
	fmt.Fprintf(&b, "合計: %d件 / %d名", len(list), total)
	return "本日の予約一覧\n" + b.String()
}
