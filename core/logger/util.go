package logger

import (
	"log/slog"
	"strings"
	"time"
)

// errLimit caps error text in log lines; driver errors can embed whole queries.
const errLimit = 256

// Status maps error to a unified status string for logs.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// Err renders err as the sanitized "err" attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", SanitizeLimit(err.Error(), errLimit))
}

// Failed returns the status=fail and err attributes followed by extra.
func Failed(err error, extra ...slog.Attr) []slog.Attr {
	return append([]slog.Attr{slog.String("status", "fail"), Err(err)}, extra...)
}

// Took returns the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to the nearest millisecond; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins up to limit values and reports whether any were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
