package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerEmitsOneObjectPerRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, nil))

	logger.Info("downloaded game", "game_id", "12345", "moves", 87)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if payload["msg"] != "downloaded game" {
		t.Errorf("msg = %v, want downloaded game", payload["msg"])
	}
	if payload["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", payload["level"])
	}
	if payload["game_id"] != "12345" {
		t.Errorf("game_id = %v, want 12345", payload["game_id"])
	}
	if payload["moves"] != float64(87) {
		t.Errorf("moves = %v, want 87", payload["moves"])
	}
}

func TestHandlerGroupsNest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, nil)).WithGroup("flush")

	logger.Info("batch written", "games", 10)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	group, ok := payload["flush"].(map[string]any)
	if !ok {
		t.Fatalf("flush group missing: %v", payload)
	}
	if group["games"] != float64(10) {
		t.Errorf("flush.games = %v, want 10", group["games"])
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("info record emitted below handler level:\n%s", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn record dropped at warn level")
	}
}
