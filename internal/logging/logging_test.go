package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})
	WithPulsar(log, "B0531+21").Debug(context.Background(), "derived",
		Float("l", 184.5575), Int("hits", 3), Err(errors.New("boom")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if line["msg"] != "derived" || line["pulsar"] != "B0531+21" || line["error"] != "boom" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["l"] != 184.5575 || line["hits"] != float64(3) {
		t.Fatalf("numeric fields not preserved: %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line emitted at warn level: %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", id, err)
	}
	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id || RequestIDFromContext(ctx2) != id {
		t.Fatalf("request id changed: %q -> %q", id, id2)
	}
}

func TestFromContextOr(t *testing.T) {
	fallback := Noop()
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), l)
	if got := FromContextOr(ctx, fallback); got != l {
		t.Fatalf("expected context logger")
	}
	if got := FromContextOr(context.Background(), nil); got == nil {
		t.Fatalf("nil fallback should yield a noop logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTextLoggerToolFields(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info(context.Background(), "ran", Tool("psrcat"), Duration("elapsed", 1500*time.Millisecond))
	for _, want := range []string{"tool=psrcat", "elapsed=1.5s", "msg=ran"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("log line %q missing %q", buf.String(), want)
		}
	}
}
