package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")

	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}

	log.Warn("partition skipped", "name", "misc")
	out := buf.String()
	if !strings.Contains(out, "partition skipped") || !strings.Contains(out, `"name":"misc"`) {
		t.Fatalf("expected warn message in output, got: %s", out)
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"", "INFO  hello"},
		{"PRETTY", "INFO  hello"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := Setup(&buf, tc.format, "info")
		if err != nil {
			t.Fatalf("Setup(%q): %v", tc.format, err)
		}
		log.Info("hello")
		if !strings.Contains(buf.String(), tc.want) {
			t.Errorf("Setup(%q) output %q, want substring %q", tc.format, buf.String(), tc.want)
		}
	}

	if _, err := Setup(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := Setup(&bytes.Buffer{}, "json", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("nothing to see")
	log.With("k", "v").Warn("still nothing")
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.With("run", "abc").WithGroup("rkaf").Info("packed", "parts", 3)

	output := buf.String()
	if !strings.Contains(output, `"run":"abc"`) {
		t.Fatalf("expected run=abc in output, got: %s", output)
	}
	if !strings.Contains(output, `"rkaf":{"parts":3}`) {
		t.Fatalf("expected grouped attrs in output, got: %s", output)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}

	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}

	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("image", "update.img")}).WithGroup("rec"))
	log.Warn("skipping", "path", "a b", "offset", uint64(0x2000))

	got := buf.String()
	// A bytes.Buffer is not a terminal, so no escape codes.
	if strings.Contains(got, "\033[") {
		t.Fatalf("unexpected color codes: %q", got)
	}
	for _, want := range []string{"WARN  skipping", "image=update.img", `rec.path="a b"`, "rec.offset=0x2000"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}
