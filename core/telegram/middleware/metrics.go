package middleware

import tele "gopkg.in/telebot.v4"

// MessageMetricsMiddleware resets the per-update reply counters that the
// send helpers increment and the handler summary log reports.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set("messages", 0)
		c.Set("kb", false)
		return next(c)
	}
}

// GetCounters returns the message count and keyboard flag for the update.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get("messages").(int)
	kb, _ := c.Get("kb").(bool)
	return msgs, kb
}
