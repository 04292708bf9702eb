// Package callbacks decodes inline-button callback data produced by telebot.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// telebot prefixes data of buttons built with a unique id with a form feed.
const uniquePrefix = "\f"

// ParseCallbackData splits telebot's "\f<unique>|<payload>" encoding.
// Data without the prefix is treated as "<key>|<payload>".
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, uniquePrefix)
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// CallbackKey returns the unique id of the pressed button.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the data attached after the unique id.
func CallbackPayload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}

// Postback rebuilds the callback as a single "<key>|<payload>" string, or just
// "<key>" when the button carried no payload.
func Postback(c tele.Context) string {
	key, payload := ParseCallbackData(c.Callback())
	if payload == "" {
		return key
	}
	return key + "|" + payload
}
