// Package downloader fetches finished games over the archive's
// websocket event stream and converts them into engine moves.
package downloader

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/gorilla/websocket"
	"github.com/sente-go/sente/game"
)

// Config holds downloader configuration
type Config struct {
	EngineURL      string // WebSocket URL template
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		EngineURL:      "wss://online-go.com/games/%s/events",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
	}
}

// Record is one downloaded game.
type Record struct {
	ID        string
	BoardSize int
	Komi      float64
	Result    string
	Black     string
	White     string
	Moves     []game.Move
	// Checksum is an xxhash over the move stream, used to spot the same
	// game listed under different ids.
	Checksum string
}

// GameEvent represents an event from the WebSocket stream
type GameEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// GameInfo from the "game_info" event
type GameInfo struct {
	ID        string  `json:"id"`
	BoardSize int     `json:"board_size"`
	Komi      float64 `json:"komi"`
	Black     string  `json:"black"`
	White     string  `json:"white"`
}

// MoveData from "move" events. Coordinates are 1-based from the bottom
// left; a move with Pass set has no coordinates.
type MoveData struct {
	Turn  int    `json:"turn"`
	Color string `json:"color"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Pass  bool   `json:"pass"`
}

// GameEnd from the "game_end" event
type GameEnd struct {
	Result string `json:"result"`
}

// DownloadGame connects to the game WebSocket and downloads the full
// move stream.
func DownloadGame(gameID string, config Config) (*Record, error) {
	url := fmt.Sprintf(config.EngineURL, gameID)

	dialer := websocket.Dialer{
		HandshakeTimeout: config.ConnectTimeout,
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	record := &Record{ID: gameID}
	checksum := xxhash.New64()
	done := false

	for !done {
		conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Connection closed normally
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			// Timeout or unexpected close
			if len(record.Moves) > 0 {
				// We got some data, use it
				break
			}
			return nil, fmt.Errorf("read error: %w", err)
		}

		var event GameEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("Failed to parse event: %v", err)
			continue
		}

		switch event.Type {
		case "game_info":
			var info GameInfo
			if err := json.Unmarshal(event.Data, &info); err != nil {
				log.Printf("Failed to parse game_info: %v", err)
				continue
			}
			record.BoardSize = info.BoardSize
			record.Komi = info.Komi
			record.Black = info.Black
			record.White = info.White

		case "move":
			var moveData MoveData
			if err := json.Unmarshal(event.Data, &moveData); err != nil {
				log.Printf("Failed to parse move: %v", err)
				continue
			}
			move, err := decodeMove(moveData, record.BoardSize)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", moveData.Turn, err)
			}
			record.Moves = append(record.Moves, move)
			checksum.WriteString(move.String() + "\n")

		case "game_end":
			var end GameEnd
			if err := json.Unmarshal(event.Data, &end); err != nil {
				log.Printf("Failed to parse game_end: %v", err)
			} else {
				record.Result = end.Result
			}
			done = true
		}
	}

	if record.BoardSize < 2 || record.BoardSize > game.MaxBoardSize {
		return nil, fmt.Errorf("no usable game_info (board_size=%d)", record.BoardSize)
	}

	record.Checksum = fmt.Sprintf("%016x", checksum.Sum64())
	return record, nil
}

// Winner reads the result string. ok is false for unknown or void
// results.
func (r *Record) Winner() (game.Color, bool) {
	switch {
	case strings.HasPrefix(r.Result, "B+"):
		return game.Black, true
	case strings.HasPrefix(r.Result, "W+"):
		return game.White, true
	}
	return 0, false
}

func decodeMove(data MoveData, boardSize int) (game.Move, error) {
	if data.Pass {
		return game.PassMove(), nil
	}
	if boardSize == 0 {
		return game.Move{}, fmt.Errorf("move before game_info")
	}
	if data.Row < 1 || data.Row > boardSize || data.Col < 1 || data.Col > boardSize {
		return game.Move{}, fmt.Errorf("move (%d,%d) off %dx%d board", data.Row, data.Col, boardSize, boardSize)
	}
	return game.PlayMove(game.Point{Row: data.Row, Col: data.Col}), nil
}
