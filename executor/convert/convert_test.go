package convert

import (
	"errors"
	"testing"

	"github.com/sente-go/sente/game"
)

func TestMoveIndexRoundTrip(t *testing.T) {
	e := NewEncoder(5, 5)

	if e.NumMoves() != 26 {
		t.Fatalf("action space = %d, want 26", e.NumMoves())
	}

	cases := []struct {
		move game.Move
		idx  int
	}{
		{game.PlayMove(game.Point{Row: 1, Col: 1}), 0},
		{game.PlayMove(game.Point{Row: 1, Col: 5}), 4},
		{game.PlayMove(game.Point{Row: 2, Col: 1}), 5},
		{game.PlayMove(game.Point{Row: 5, Col: 5}), 24},
		{game.PassMove(), 25},
	}
	for _, c := range cases {
		idx, err := e.MoveIndex(c.move)
		if err != nil {
			t.Fatalf("encode %s: %v", c.move, err)
		}
		if idx != c.idx {
			t.Errorf("encode %s = %d, want %d", c.move, idx, c.idx)
		}
		back, err := e.DecodeMoveIndex(idx)
		if err != nil {
			t.Fatalf("decode %d: %v", idx, err)
		}
		if back != c.move {
			t.Errorf("decode %d = %s, want %s", idx, back, c.move)
		}
	}
}

func TestMoveIndexErrors(t *testing.T) {
	e := NewEncoder(5, 5)

	if _, err := e.MoveIndex(game.ResignMove()); !errors.Is(err, ErrUnsupportedMove) {
		t.Errorf("resign: got %v, want ErrUnsupportedMove", err)
	}
	if _, err := e.MoveIndex(game.PlayMove(game.Point{Row: 6, Col: 1})); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("off-board play: got %v, want ErrIndexOutOfRange", err)
	}
	if _, err := e.DecodeMoveIndex(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("decode -1: got %v, want ErrIndexOutOfRange", err)
	}
	if _, err := e.DecodeMoveIndex(26); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("decode 26: got %v, want ErrIndexOutOfRange", err)
	}
}

func TestStatePlanes(t *testing.T) {
	e := NewEncoder(5, 5)
	s := game.NewGame(5)
	var err error
	s, err = s.ApplyMove(game.PlayMove(game.Point{Row: 3, Col: 3}))
	if err != nil {
		t.Fatal(err)
	}

	// White to move: the black stone is an opponent stone with 4 liberties.
	planesPtr := e.StatePlanes(s)
	defer e.PutPlanes(planesPtr)
	planes := *planesPtr

	planeSize := 25
	at := func(c, row, col int) float32 {
		return planes[c*planeSize+(row-1)*5+(col-1)]
	}

	if at(7, 3, 3) != 1 {
		t.Error("black stone missing from opponent 4+ liberty plane")
	}
	if at(3, 3, 3) != 0 {
		t.Error("black stone wrongly present in own-stone planes")
	}
	if at(9, 1, 1) != 1 || at(8, 1, 1) != 0 {
		t.Error("turn planes should mark white to move")
	}

	// Back at black's turn the perspective flips.
	s2, err := s.ApplyMove(game.PassMove())
	if err != nil {
		t.Fatal(err)
	}
	planes2Ptr := e.StatePlanes(s2)
	defer e.PutPlanes(planes2Ptr)
	planes2 := *planes2Ptr
	if planes2[3*planeSize+2*5+2] != 1 {
		t.Error("black stone missing from own 4+ liberty plane on black's turn")
	}
	if planes2[8*planeSize] != 1 {
		t.Error("turn plane should mark black to move")
	}
}

func TestStatePlanesLibertyBuckets(t *testing.T) {
	e := NewEncoder(5, 5)
	s := game.NewGame(5)
	moves := []game.Move{
		game.PlayMove(game.Point{Row: 1, Col: 1}), // black corner: 2 liberties
		game.PlayMove(game.Point{Row: 1, Col: 2}), // white contact: black down to 1
	}
	for _, m := range moves {
		var err error
		s, err = s.ApplyMove(m)
		if err != nil {
			t.Fatal(err)
		}
	}

	planesPtr := e.StatePlanes(s)
	defer e.PutPlanes(planesPtr)
	planes := *planesPtr
	planeSize := 25

	// Black to move. Own stone (1,1) has a single liberty at (2,1).
	if planes[0*planeSize+0] != 1 {
		t.Error("own stone in atari missing from the 1-liberty plane")
	}
	// White stone (1,2) has liberties (1,3), (2,2): opponent 2-liberty plane.
	if planes[5*planeSize+1] != 1 {
		t.Error("opponent stone missing from the 2-liberty plane")
	}
}
