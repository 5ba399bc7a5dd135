// Package sgf parses Smart Game Format records into engine moves.
//
// Only the main line of play is read; variations, setup stones, and
// markup properties are ignored.
package sgf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sente-go/sente/game"
)

// Game is a parsed SGF game record.
type Game struct {
	Size   int
	Komi   float64
	Result string
	Black  string
	White  string
	Moves  []game.Move
}

// Winner reads the RE property. ok is false for unknown or void
// results.
func (g *Game) Winner() (game.Color, bool) {
	switch {
	case strings.HasPrefix(g.Result, "B+"):
		return game.Black, true
	case strings.HasPrefix(g.Result, "W+"):
		return game.White, true
	}
	return 0, false
}

// Parse reads a single SGF game record.
func Parse(src string) (*Game, error) {
	g := &Game{Size: 19}

	pos := 0
	readProp := func() (name, value string, ok bool) {
		// Property name: run of uppercase letters directly before '['.
		for pos < len(src) && !isUpper(src[pos]) {
			pos++
		}
		start := pos
		for pos < len(src) && isUpper(src[pos]) {
			pos++
		}
		if pos >= len(src) || src[pos] != '[' {
			return "", "", pos < len(src)
		}
		name = src[start:pos]
		pos++ // consume '['
		var sb strings.Builder
		for pos < len(src) && src[pos] != ']' {
			if src[pos] == '\\' && pos+1 < len(src) {
				pos++
			}
			sb.WriteByte(src[pos])
			pos++
		}
		if pos >= len(src) {
			return "", "", false
		}
		pos++ // consume ']'
		return name, sb.String(), true
	}

	sawSize := false
	for {
		name, value, ok := readProp()
		if !ok {
			break
		}
		if name == "" {
			continue
		}
		switch name {
		case "SZ":
			size, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || size < 2 || size > game.MaxBoardSize {
				return nil, fmt.Errorf("bad board size %q", value)
			}
			g.Size = size
			sawSize = true
		case "KM":
			if komi, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				g.Komi = komi
			}
		case "RE":
			g.Result = strings.TrimSpace(value)
		case "PB":
			g.Black = value
		case "PW":
			g.White = value
		case "B", "W":
			// Stones placed after moves started would reorder history;
			// a record mixing them is rejected by the replay anyway.
			move, err := parseMove(value, g.Size)
			if err != nil {
				return nil, fmt.Errorf("move %d: %w", len(g.Moves)+1, err)
			}
			g.Moves = append(g.Moves, move)
		}
	}

	if !sawSize && len(g.Moves) == 0 {
		return nil, fmt.Errorf("no game record found")
	}
	return g, nil
}

// parseMove converts an SGF coordinate pair to a move. SGF counts rows
// from the top; the engine counts from the bottom. An empty value (or
// "tt" on boards up to 19x19) is a pass.
func parseMove(value string, size int) (game.Move, error) {
	if value == "" || value == "tt" {
		return game.PassMove(), nil
	}
	if len(value) != 2 {
		return game.Move{}, fmt.Errorf("bad coordinate %q", value)
	}
	col := int(value[0]-'a') + 1
	rowFromTop := int(value[1]-'a') + 1
	if col < 1 || col > size || rowFromTop < 1 || rowFromTop > size {
		return game.Move{}, fmt.Errorf("coordinate %q off %dx%d board", value, size, size)
	}
	return game.PlayMove(game.Point{Row: size - rowFromTop + 1, Col: col}), nil
}

func isUpper(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
