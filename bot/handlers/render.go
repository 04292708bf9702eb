package handlers

import (
	"github.com/m3rciful/reservebot/bot/conversation"
	tghelpers "github.com/m3rciful/reservebot/core/telegram/helpers"
	"github.com/m3rciful/reservebot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// slotsPerRow is how many time buttons share one keyboard row.
const slotsPerRow = 4

// Render converts conversation replies into Telegram messages, keeping their order.
func Render(msgs []conversation.Message) []tghelpers.Outgoing {
	out := make([]tghelpers.Outgoing, 0, len(msgs))
	for _, m := range msgs {
		o := tghelpers.Outgoing{Text: m.Text}
		switch m.Kind {
		case conversation.KindChoices:
			if len(m.Choices) > 0 {
				o.Opts = &tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsNPerRow(buttons(m.Choices), slotsPerRow)}
			}
		case conversation.KindConfirm:
			if len(m.Choices) > 0 {
				o.Opts = &tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsRows(buttons(m.Choices))}
			}
		}
		out = append(out, o)
	}
	return out
}

// buttons maps choices to inline buttons: the intent becomes the button's
// unique id and the value its data, so a press decodes back to the same payload.
func buttons(choices []conversation.Choice) []keyboard.InlineBtn {
	btns := make([]keyboard.InlineBtn, len(choices))
	for i, c := range choices {
		p := conversation.ParsePayload(c.Data)
		btns[i] = keyboard.InlineBtn{Text: c.Label, Unique: p.Intent, Data: p.Value}
	}
	return btns
}
