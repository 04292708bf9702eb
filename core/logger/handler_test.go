package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	}), aw
}

func flushLine(t *testing.T, aw *asyncWriter, buf *bytes.Buffer) string {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, "7", 9)

	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("state", "ASKING_TIME"),
	)

	line := flushLine(t, aw, buf)
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9", "state=ASKING_TIME"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithUser(ctx, "u-1")

	log := slog.New(handler).With("component", "service.reservations")
	LogEvent(ctx, log, slog.LevelError, "reservation.create",
		slog.String("status", "FAIL"),
		slog.String("err", "boom"),
	)

	line := flushLine(t, aw, buf)
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.reservations"`, `"event":"reservation.create"`, `"status":"fail"`, `"rid":"rid-json"`, `"user_id":"u-1"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	tests := []struct {
		name     string
		format   logFormat
		wantRID  string
		wantFull bool
	}{
		{name: "kv", format: formatKV, wantRID: "rid=" + CompactRID("123:456:789")},
		{name: "json", format: formatJSON, wantRID: `"rid":"` + CompactRID("123:456:789") + `"`, wantFull: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler, aw := newTestHandler(buf, tt.format)
			ctx := WithRID(context.Background(), "123:456:789")
			LogEvent(ctx, slog.New(handler), slog.LevelInfo, "rid.test")

			line := flushLine(t, aw, buf)
			if !strings.Contains(line, tt.wantRID) {
				t.Fatalf("expected compact rid, got %s", line)
			}
			if got := strings.Contains(line, "rid_full"); got != tt.wantFull {
				t.Fatalf("rid_full present = %v, want %v (%s)", got, tt.wantFull, line)
			}
		})
	}
}

func TestStructuredHandlerDurationKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	LogEvent(context.Background(), slog.New(handler), slog.LevelInfo, "timing",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("backoff", 2*time.Second),
	)
	line := flushLine(t, aw, buf)
	for _, want := range []string{"duration_ms=2", "backoff_ms=2000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestStructuredHandlerDropsUnknownOutcome(t *testing.T) {
	buf := &bytes.Buffer{}
	handler, aw := newTestHandler(buf, formatKV)
	LogEvent(context.Background(), slog.New(handler), slog.LevelInfo, "x",
		slog.String("outcome", "weird"),
		slog.String("empty", ""),
	)
	line := flushLine(t, aw, buf)
	if strings.Contains(line, "outcome=") || strings.Contains(line, "empty=") {
		t.Fatalf("unexpected fields in %s", line)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var passed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			passed++
		}
	}
	if passed != 3 {
		t.Fatalf("passed = %d, want 3", passed)
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}

func TestParseRatioSpec(t *testing.T) {
	tests := []struct {
		in       string
		num, den int
	}{
		{"1/10", 1, 10},
		{"20", 1, 20},
		{"0", 0, 0},
		{"x/y", 0, 0},
		{"", 0, 0},
	}
	for _, tt := range tests {
		num, den := parseRatioSpec(tt.in)
		if num != tt.num || den != tt.den {
			t.Errorf("parseRatioSpec(%q) = %d/%d, want %d/%d", tt.in, num, den, tt.num, tt.den)
		}
	}
}
