package sgf

import (
	"testing"

	"github.com/sente-go/sente/game"
)

const sample = `(;GM[1]FF[4]SZ[9]KM[5.5]PB[alice]PW[bob]RE[W+2.5]
;B[ee];W[cc];B[];W[gc])`

func TestParse(t *testing.T) {
	g, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if g.Size != 9 || g.Komi != 5.5 || g.Black != "alice" || g.White != "bob" {
		t.Fatalf("header mismatch: %+v", g)
	}
	if winner, ok := g.Winner(); !ok || winner != game.White {
		t.Fatalf("winner = %v, %v", winner, ok)
	}

	want := []game.Move{
		// SGF rows count from the top: "ee" on 9x9 is row 5, col 5.
		game.PlayMove(game.Point{Row: 5, Col: 5}),
		game.PlayMove(game.Point{Row: 7, Col: 3}),
		game.PassMove(),
		game.PlayMove(game.Point{Row: 7, Col: 7}),
	}
	if len(g.Moves) != len(want) {
		t.Fatalf("got %d moves, want %d", len(g.Moves), len(want))
	}
	for i := range want {
		if g.Moves[i] != want[i] {
			t.Errorf("move %d = %v, want %v", i, g.Moves[i], want[i])
		}
	}
}

func TestParseReplaysCleanly(t *testing.T) {
	g, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	state := game.NewGame(g.Size)
	for i, move := range g.Moves {
		next, err := state.ApplyMove(move)
		if err != nil {
			t.Fatalf("move %d (%v): %v", i, move, err)
		}
		state = next
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"(;SZ[99];B[aa])",
		"(;SZ[9];B[zz])",
		"(;SZ[9];B[a])",
	}
	for _, src := range cases {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q) should fail", src)
		}
	}
}

func TestParseEscapedBrackets(t *testing.T) {
	g, err := Parse(`(;SZ[9]C[a \] in a comment];B[aa])`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Moves) != 1 {
		t.Fatalf("got %d moves, want 1", len(g.Moves))
	}
}
