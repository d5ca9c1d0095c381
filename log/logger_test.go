package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_TargetFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Target{Path: "/tmp/out.ts", Mode: "file", Total: 12}, &buf, zap.NewAtomicLevelAt(zapcore.DebugLevel))

	l.Info("resumed", map[string]any{"position": 4})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	if entry["message"] != "resumed" {
		t.Errorf("message = %v, want resumed", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["target"] != "/tmp/out.ts" {
		t.Errorf("target = %v, want /tmp/out.ts", entry["target"])
	}
	if entry["mode"] != "file" {
		t.Errorf("mode = %v, want file", entry["mode"])
	}
	if entry["total"] != float64(12) {
		t.Errorf("total = %v, want 12", entry["total"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["position"] != float64(4) {
		t.Errorf("fields = %v, want position=4", entry["fields"])
	}
}

func TestLogger_OmitsEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Target{Path: "out"}, &buf, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	l.Warn("w", nil)

	entry := decodeLines(t, &buf)[0]
	if _, ok := entry["mode"]; ok {
		t.Error("mode should be omitted when empty")
	}
	if _, ok := entry["total"]; ok {
		t.Error("total should be omitted when zero")
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Target{Path: "out"}, &buf, zap.NewAtomicLevelAt(zapcore.InfoLevel))

	l.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug entry emitted at info level: %s", buf.String())
	}

	if err := l.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	l.Debug("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug entry missing after SetLevel(debug)")
	}

	if err := l.SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogger_WithOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := newLoggerWithWriter(Target{Path: "out", Mode: "directory"}, &first, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	moved := l.WithOutput(&second)

	moved.Error("boom", map[string]any{"index": 3})

	if first.Len() != 0 {
		t.Errorf("original writer received output: %s", first.String())
	}
	entry := decodeLines(t, &second)[0]
	if entry["mode"] != "directory" || entry["target"] != "out" {
		t.Errorf("context lost after WithOutput: %v", entry)
	}

	// The level stays shared with the original logger.
	if err := l.SetLevel("error"); err != nil {
		t.Fatal(err)
	}
	moved.Info("hidden", nil)
	if len(decodeLines(t, &second)) != 1 {
		t.Errorf("info entry emitted after SetLevel(error) on the parent")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing", nil)
}
