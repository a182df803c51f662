package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWritesJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("production", "debug", &buf)

	log.Debug().Str("component", "merge").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "merge" || line["message"] != "hello" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNewFallsBackToInfoOnUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("production", "chatty", &buf)

	log.Debug().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}

	log.Info().Msg("kept")
	if buf.Len() == 0 {
		t.Fatal("expected info line to be written")
	}
}
