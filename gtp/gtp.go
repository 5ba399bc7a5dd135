// Package gtp implements the Go Text Protocol front end, which lets the
// engine play against humans and other programs under a GTP controller
// such as gogui.
package gtp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/game"
)

const (
	protocolVersion = "2"
	engineName      = "sente"
	engineVersion   = "0.1"
)

// MoveSelector chooses a move for the player to move. *mcts.MCTS
// satisfies it.
type MoveSelector interface {
	SelectMove(ctx context.Context, state *game.GameState) (mcts.Decision, error)
}

// SelectorFactory builds a selector for a given board size. The engine
// calls it on every boardsize command, since the action space depends on
// the geometry.
type SelectorFactory func(size int) (MoveSelector, error)

// Engine holds the state of one GTP session.
type Engine struct {
	factory SelectorFactory

	size     int
	komi     float64
	state    *game.GameState
	selector MoveSelector
}

func NewEngine(factory SelectorFactory, defaultSize int) (*Engine, error) {
	e := &Engine{
		factory: factory,
		komi:    game.DefaultKomi,
	}
	if err := e.reset(defaultSize); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) reset(size int) error {
	if size < 2 || size > game.MaxBoardSize {
		return fmt.Errorf("unacceptable size")
	}
	selector, err := e.factory(size)
	if err != nil {
		return err
	}
	e.size = size
	e.selector = selector
	e.state = game.NewGameWithKomi(size, e.komi)
	return nil
}

// Run reads GTP commands from in until EOF or quit, writing one response
// per command to out.
func (e *Engine) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer w.Flush()

	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		// An optional numeric id prefixes the command and is echoed in
		// the response.
		id := ""
		if _, err := strconv.Atoi(fields[0]); err == nil {
			id = fields[0]
			fields = fields[1:]
			if len(fields) == 0 {
				writeResponse(w, id, false, "unknown command")
				continue
			}
		}

		command := fields[0]
		args := fields[1:]

		if command == "quit" {
			writeResponse(w, id, true, "")
			return w.Flush()
		}

		result, err := e.dispatch(ctx, command, args)
		if err != nil {
			writeResponse(w, id, false, err.Error())
			continue
		}
		writeResponse(w, id, true, result)
	}
	return scanner.Err()
}

func (e *Engine) dispatch(ctx context.Context, command string, args []string) (string, error) {
	switch command {
	case "protocol_version":
		return protocolVersion, nil
	case "name":
		return engineName, nil
	case "version":
		return engineVersion, nil
	case "known_command":
		if len(args) != 1 {
			return "", fmt.Errorf("syntax error")
		}
		return strconv.FormatBool(knownCommands[args[0]]), nil
	case "list_commands":
		names := make([]string, 0, len(knownCommands))
		for name := range knownCommands {
			names = append(names, name)
		}
		sort.Strings(names)
		return strings.Join(names, "\n"), nil
	case "boardsize":
		if len(args) != 1 {
			return "", fmt.Errorf("syntax error")
		}
		size, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("syntax error")
		}
		if err := e.reset(size); err != nil {
			return "", err
		}
		return "", nil
	case "clear_board":
		return "", e.reset(e.size)
	case "komi":
		if len(args) != 1 {
			return "", fmt.Errorf("syntax error")
		}
		komi, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", fmt.Errorf("syntax error")
		}
		e.komi = komi
		// Scoring and search terminal values both read komi off the
		// state, so the running game picks up the change too.
		e.state = e.state.WithKomi(komi)
		return "", nil
	case "play":
		return "", e.play(args)
	case "genmove":
		return e.genmove(ctx, args)
	case "showboard":
		return "\n" + e.state.Board().String(), nil
	case "final_score":
		result := game.ScoreGame(e.state.Board(), e.state.Komi())
		return result.String(), nil
	default:
		return "", fmt.Errorf("unknown command")
	}
}

func (e *Engine) play(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("syntax error")
	}
	color, err := parseColor(args[0])
	if err != nil {
		return err
	}
	if color != e.state.NextPlayer() && !e.state.IsOver() {
		// The engine keeps a strictly alternating history; controllers
		// that set up positions with consecutive same-color moves are
		// not supported.
		return fmt.Errorf("it is %s's turn", strings.ToLower(e.state.NextPlayer().String()))
	}
	move, err := ParseVertex(args[1], e.size)
	if err != nil {
		return err
	}
	next, err := e.state.ApplyMove(move)
	if err != nil {
		return fmt.Errorf("illegal move")
	}
	e.state = next
	return nil
}

func (e *Engine) genmove(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("syntax error")
	}
	color, err := parseColor(args[0])
	if err != nil {
		return "", err
	}
	if color != e.state.NextPlayer() {
		return "", fmt.Errorf("it is %s's turn", strings.ToLower(e.state.NextPlayer().String()))
	}
	if e.state.IsOver() {
		return "pass", nil
	}

	decision, err := e.selector.SelectMove(ctx, e.state)
	if err != nil {
		return "", fmt.Errorf("search failed: %v", err)
	}
	next, err := e.state.ApplyMove(decision.Move)
	if err != nil {
		return "", fmt.Errorf("search returned illegal move %s", decision.Move)
	}
	e.state = next
	return FormatVertex(decision.Move), nil
}

var knownCommands = map[string]bool{
	"protocol_version": true,
	"name":             true,
	"version":          true,
	"known_command":    true,
	"list_commands":    true,
	"boardsize":        true,
	"clear_board":      true,
	"komi":             true,
	"play":             true,
	"genmove":          true,
	"showboard":        true,
	"final_score":      true,
	"quit":             true,
}

func writeResponse(w *bufio.Writer, id string, ok bool, body string) {
	prefix := "="
	if !ok {
		prefix = "?"
	}
	w.WriteString(prefix + id)
	if body != "" {
		w.WriteString(" " + body)
	}
	w.WriteString("\n\n")
	w.Flush()
}

func parseColor(s string) (game.Color, error) {
	switch strings.ToLower(s) {
	case "b", "black":
		return game.Black, nil
	case "w", "white":
		return game.White, nil
	}
	return 0, fmt.Errorf("invalid color")
}

// vertexLetters skips I, per GTP convention.
const vertexLetters = "ABCDEFGHJKLMNOPQRST"

// ParseVertex converts a GTP vertex like C3 into a move. Columns are
// letters (skipping I), rows count up from the bottom.
func ParseVertex(s string, size int) (game.Move, error) {
	switch strings.ToLower(s) {
	case "pass":
		return game.PassMove(), nil
	case "resign":
		return game.ResignMove(), nil
	}

	if len(s) < 2 {
		return game.Move{}, fmt.Errorf("invalid vertex")
	}
	col := strings.IndexByte(vertexLetters, byte(s[0]&^0x20)) + 1
	if col == 0 {
		return game.Move{}, fmt.Errorf("invalid vertex")
	}
	row, err := strconv.Atoi(s[1:])
	if err != nil {
		return game.Move{}, fmt.Errorf("invalid vertex")
	}
	if row < 1 || row > size || col > size {
		return game.Move{}, fmt.Errorf("vertex off board")
	}
	return game.PlayMove(game.Point{Row: row, Col: col}), nil
}

// FormatVertex renders a move as a GTP vertex.
func FormatVertex(m game.Move) string {
	return m.String()
}
