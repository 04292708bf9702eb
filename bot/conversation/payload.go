package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/reservebot/bot/storage"
)

// Postback intents.
const (
	IntentSelectTime = "select_time"
	IntentConfirmYes = "confirm_yes"
	IntentConfirmNo  = "confirm_no"
)

// Payload is a parsed postback: the intent and an optional value (an ISO-8601 timestamp for select_time).
type Payload struct {
	Intent string
	Value  string
}

// ParsePayload splits "intent|value". Anything after the first '|' is the value.
func ParsePayload(raw string) Payload {
	intent, value, _ := strings.Cut(strings.TrimSpace(raw), "|")
	return Payload{Intent: strings.TrimSpace(intent), Value: strings.TrimSpace(value)}
}

// String renders the payload back to its wire form.
func (p Payload) String() string {
	if p.Value == "" {
		return p.Intent
	}
	return p.Intent + "|" + p.Value
}

// SelectTimePayload builds the postback data for choosing slot t.
func SelectTimePayload(t time.Time) string {
	return Payload{Intent: IntentSelectTime, Value: t.Format(storage.WallClockLayout)}.String()
}

var wallClockLayouts = []string{
	storage.WallClockLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseSlotTime parses an ISO-8601 timestamp. Values without an offset are
// read as wall clock in loc; values with one are converted into loc.
func ParseSlotTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", v)
}
