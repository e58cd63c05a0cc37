package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tc := range testCases {
		got, err := ParseLevel(tc.in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) should fail")
	}
}

func TestNew_TextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	off := false
	logger, level, err := New(Options{Level: "warn", Writer: &buf, Journal: &off})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "cycle_id", "c1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "cycle_id=c1") {
		t.Errorf("warn line missing: %s", out)
	}

	level.Set(slog.LevelDebug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("LevelVar change should take effect")
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	off := false
	logger, _, err := New(Options{Format: "json", Writer: &buf, Journal: &off})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("pulse sent", "xp", 3)
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if m["msg"] != "pulse sent" || m["xp"] != float64(3) {
		t.Errorf("record = %v", m)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestToJournalKey(t *testing.T) {
	if got := toJournalKey("cycle_id"); got != "CYCLE_ID" {
		t.Errorf("toJournalKey(cycle_id) = %q", got)
	}
	if got := toJournalKey("http.status-code"); got != "HTTP_STATUS_CODE" {
		t.Errorf("toJournalKey = %q", got)
	}
}
