// Package teletest provides an in-memory tele.Context for handler tests.
package teletest

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Sent is one message captured by Context.Send.
type Sent struct {
	What any
	Opts []any
}

// Text returns the message text when What is a string.
func (s Sent) Text() string {
	str, _ := s.What.(string)
	return str
}

// Markup returns the reply markup attached to the message, if any.
func (s Sent) Markup() *tele.ReplyMarkup {
	for _, o := range s.Opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return v.ReplyMarkup
			}
		case *tele.ReplyMarkup:
			return v
		}
	}
	return nil
}

// Context implements the parts of tele.Context the bot uses. Calling any
// other method panics through the nil embedded interface.
type Context struct {
	tele.Context

	Upd     tele.Update
	User    *tele.User
	ChatRef *tele.Chat
	// SendErr is returned by Send when set.
	SendErr error

	mu        sync.Mutex
	store     map[string]any
	sent      []Sent
	responded int
}

// NewText builds a context for a text message from userID in a private chat.
func NewText(updateID int, userID int64, text string) *Context {
	user := &tele.User{ID: userID}
	chat := &tele.Chat{ID: userID, Type: tele.ChatPrivate}
	return &Context{
		Upd:     tele.Update{ID: updateID, Message: &tele.Message{Text: text, Sender: user, Chat: chat}},
		User:    user,
		ChatRef: chat,
	}
}

// NewCallback builds a context for an inline-button press carrying unique and data.
func NewCallback(updateID int, userID int64, unique, data string) *Context {
	user := &tele.User{ID: userID}
	chat := &tele.Chat{ID: userID, Type: tele.ChatPrivate}
	raw := "\f" + unique
	if data != "" {
		raw += "|" + data
	}
	cb := &tele.Callback{ID: "cb", Sender: user, Data: raw, Message: &tele.Message{Chat: chat}}
	return &Context{
		Upd:     tele.Update{ID: updateID, Callback: cb},
		User:    user,
		ChatRef: chat,
	}
}

func (c *Context) Update() tele.Update { return c.Upd }
func (c *Context) Sender() *tele.User  { return c.User }
func (c *Context) Chat() *tele.Chat    { return c.ChatRef }
func (c *Context) Message() *tele.Message {
	if c.Upd.Message != nil {
		return c.Upd.Message
	}
	if c.Upd.Callback != nil {
		return c.Upd.Callback.Message
	}
	return nil
}
func (c *Context) Callback() *tele.Callback { return c.Upd.Callback }

func (c *Context) Text() string {
	if c.Upd.Message != nil {
		return c.Upd.Message.Text
	}
	return ""
}

func (c *Context) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *Context) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = val
}

func (c *Context) Send(what any, opts ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, Sent{What: what, Opts: opts})
	return nil
}

func (c *Context) Respond(_ ...*tele.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responded++
	return nil
}

// Sent returns the captured messages in send order.
func (c *Context) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Texts returns the text of every captured message.
func (c *Context) Texts() []string {
	sent := c.Sent()
	out := make([]string, len(sent))
	for i, s := range sent {
		out[i] = s.Text()
	}
	return out
}

// Responded reports how many times the callback was acknowledged.
func (c *Context) Responded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}
