// Package conversation implements the reservation dialogue: a small state
// machine driven by typed text and button postbacks, persisted per user.
package conversation

// TextEvent is a free-text message typed by a user.
type TextEvent struct {
	UserID     string
	Text       string
	ReplyToken string
}

// PostbackEvent is a button press carrying an opaque "intent|value" payload.
type PostbackEvent struct {
	UserID     string
	Payload    string
	ReplyToken string
}

// MessageKind tells the transport how to render a Message.
type MessageKind int

const (
	// KindText is plain text.
	KindText MessageKind = iota
	// KindChoices is text with a set of selectable options (quick replies).
	KindChoices
	// KindConfirm is a yes/no prompt; Choices holds the yes option first.
	KindConfirm
)

func (k MessageKind) String() string {
	switch k {
	case KindChoices:
		return "choices"
	case KindConfirm:
		return "confirm"
	default:
		return "text"
	}
}

// Choice is one selectable option. Data is the postback payload sent back when chosen.
type Choice struct {
	Label string
	Data  string
}

// Message is a transport-neutral outbound message.
type Message struct {
	Kind    MessageKind
	Text    string
	Choices []Choice
}

// Text builds a plain text message.
func Text(s string) Message { return Message{Kind: KindText, Text: s} }
