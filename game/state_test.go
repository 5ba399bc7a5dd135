package game

import (
	"errors"
	"testing"
)

func mustApply(t *testing.T, s *GameState, m Move) *GameState {
	t.Helper()
	next, err := s.ApplyMove(m)
	if err != nil {
		t.Fatalf("apply %s %s: %v", s.NextPlayer(), m, err)
	}
	return next
}

func playOut(t *testing.T, s *GameState, points ...Point) *GameState {
	t.Helper()
	for _, p := range points {
		s = mustApply(t, s, PlayMove(p))
	}
	return s
}

func TestNewGame(t *testing.T) {
	s := NewGame(9)
	if s.NextPlayer() != Black {
		t.Error("black moves first")
	}
	if s.IsOver() {
		t.Error("new game is not over")
	}
	if s.Previous() != nil || s.LastMove() != nil {
		t.Error("new game has no history")
	}
}

func TestApplyMoveImmutability(t *testing.T) {
	s := NewGame(5)
	next := mustApply(t, s, PlayMove(Point{3, 3}))

	if s.Board().StringAt(Point{3, 3}) != nil {
		t.Fatal("applying a move mutated the parent state")
	}
	if next.Board().ColorAt(Point{3, 3}) != Black {
		t.Fatal("move not applied to the child state")
	}
	if next.NextPlayer() != White {
		t.Error("turn did not alternate")
	}
	if next.Previous() != s {
		t.Error("child does not reference its parent")
	}
}

func TestApplyMoveRejectsInvalid(t *testing.T) {
	s := mustApply(t, NewGame(5), PlayMove(Point{3, 3}))

	if _, err := s.ApplyMove(PlayMove(Point{3, 3})); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("occupied point: got %v, want ErrIllegalMove", err)
	}
	if _, err := s.ApplyMove(PlayMove(Point{6, 1})); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("off-grid point: got %v, want ErrIllegalMove", err)
	}

	over := mustApply(t, mustApply(t, s, PassMove()), PassMove())
	if _, err := over.ApplyMove(PlayMove(Point{1, 1})); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("move after game over: got %v, want ErrIllegalMove", err)
	}
}

func TestIsOver(t *testing.T) {
	s := NewGame(5)
	if s.IsOver() {
		t.Fatal("fresh game over")
	}

	s1 := mustApply(t, s, PlayMove(Point{3, 3}))
	if s1.IsOver() {
		t.Fatal("game over after a play")
	}

	onePass := mustApply(t, s1, PassMove())
	if onePass.IsOver() {
		t.Fatal("game over after a single pass")
	}

	interrupted := mustApply(t, mustApply(t, onePass, PlayMove(Point{2, 2})), PassMove())
	if interrupted.IsOver() {
		t.Fatal("pass-play-pass should not end the game")
	}

	twoPasses := mustApply(t, onePass, PassMove())
	if !twoPasses.IsOver() {
		t.Fatal("two consecutive passes end the game")
	}

	resigned := mustApply(t, s1, ResignMove())
	if !resigned.IsOver() {
		t.Fatal("resignation ends the game")
	}
}

func TestSelfCaptureIsInvalid(t *testing.T) {
	s := NewGame(5)
	s = mustApply(t, s, PlayMove(Point{5, 5})) // black tenuki
	s = mustApply(t, s, PlayMove(Point{1, 2}))
	s = mustApply(t, s, PlayMove(Point{5, 4}))
	s = mustApply(t, s, PlayMove(Point{2, 1}))

	if s.IsValidMove(PlayMove(Point{1, 1})) {
		t.Fatal("self-capture in the corner must be invalid")
	}
	if !s.IsMoveSelfCapture(PlayMove(Point{1, 1})) {
		t.Fatal("IsMoveSelfCapture disagrees with IsValidMove")
	}
}

// koPosition builds the classic single-stone ko on a 5x5 board:
//
//	5 . . . . .
//	4 . X O . .
//	3 X O . O .
//	2 . X O . .
//	1 X . . . .
//
// Black to move; (3,3) captures the white stone at (3,2).
func koPosition(t *testing.T) *GameState {
	t.Helper()
	return playOut(t, NewGame(5),
		Point{4, 2}, Point{4, 3},
		Point{3, 1}, Point{3, 2},
		Point{2, 2}, Point{2, 3},
		Point{1, 1}, Point{3, 4},
	)
}

func TestSuperkoRejectsImmediateRecapture(t *testing.T) {
	s := koPosition(t)

	afterCapture := mustApply(t, s, PlayMove(Point{3, 3}))
	if afterCapture.Board().ColorAt(Point{3, 2}) != 0 {
		t.Fatal("ko capture did not remove the white stone")
	}

	recapture := PlayMove(Point{3, 2})
	if !afterCapture.DoesMoveViolateKo(recapture) {
		t.Fatal("immediate recapture must violate superko")
	}
	if afterCapture.IsValidMove(recapture) {
		t.Fatal("superko violation reported as a valid move")
	}
	if _, err := afterCapture.ApplyMove(recapture); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("apply of superko violation: got %v, want ErrIllegalMove", err)
	}
}

func TestSuperkoAllowsRecaptureAfterKoThreat(t *testing.T) {
	s := koPosition(t)
	s = mustApply(t, s, PlayMove(Point{3, 3})) // black takes the ko
	s = mustApply(t, s, PlayMove(Point{5, 5})) // white plays elsewhere
	s = mustApply(t, s, PassMove())            // black ignores

	// The board now differs from the pre-capture position by the white
	// stone at (5,5), so retaking does not repeat any prior situation.
	recapture := PlayMove(Point{3, 2})
	if s.DoesMoveViolateKo(recapture) {
		t.Fatal("recapture after an exchange should not violate superko")
	}
	after := mustApply(t, s, recapture)
	if after.Board().ColorAt(Point{3, 3}) != 0 {
		t.Fatal("recapture did not remove the black ko stone")
	}
}

func TestNonCapturingRepeatIsNotKo(t *testing.T) {
	s := NewGame(5)
	s = mustApply(t, s, PlayMove(Point{1, 1}))
	// A plain play into an empty area never violates ko.
	if s.DoesMoveViolateKo(PlayMove(Point{5, 5})) {
		t.Fatal("non-capturing move cannot violate superko")
	}
}

func TestLegalMovesOrderAndContents(t *testing.T) {
	s := NewGame(3)
	moves := s.LegalMoves()
	// 9 plays + pass + resign on an empty 3x3 board.
	if len(moves) != 11 {
		t.Fatalf("got %d legal moves, want 11", len(moves))
	}
	if !moves[0].IsPlay() || moves[0].Point != (Point{1, 1}) {
		t.Errorf("scan should start at (1,1), got %s", moves[0])
	}
	if !moves[len(moves)-2].IsPass() {
		t.Error("pass should precede resign at the end of the list")
	}
	if !moves[len(moves)-1].IsResign() {
		t.Error("resign should be the final entry")
	}

	over := mustApply(t, mustApply(t, s, PassMove()), PassMove())
	if got := over.LegalMoves(); len(got) != 0 {
		t.Errorf("finished game has %d legal moves, want 0", len(got))
	}
}

func TestWinnerByResignation(t *testing.T) {
	s := mustApply(t, NewGame(5), PlayMove(Point{3, 3}))
	s = mustApply(t, s, ResignMove()) // white resigns

	winner, result, ok := s.Winner()
	if !ok {
		t.Fatal("finished game must report a winner")
	}
	if winner != Black {
		t.Errorf("winner = %s, want black", winner)
	}
	if !result.Resigned {
		t.Error("result should record the resignation")
	}
	if result.String() != "B+Resign" {
		t.Errorf("result = %q, want B+Resign", result)
	}
}

func TestWinnerByCounting(t *testing.T) {
	// Black claims the whole 3x3 board; white passes throughout.
	s := NewGame(3)
	for _, p := range []Point{{1, 1}, {2, 2}, {3, 3}} {
		s = mustApply(t, s, PlayMove(p))
		s = mustApply(t, s, PassMove())
	}
	s = mustApply(t, s, PassMove()) // black's pass is the second in a row

	winner, result, ok := s.Winner()
	if !ok {
		t.Fatal("two passes must end the game")
	}
	// Black: 3 stones + 6 points of territory = 9, white: komi only.
	if winner != Black {
		t.Fatalf("winner = %s, want black", winner)
	}
	if result.BlackPoints != 9 || result.WhitePoints != 0 {
		t.Errorf("score %v/%v, want 9/0", result.BlackPoints, result.WhitePoints)
	}
	if result.String() != "B+1.5" {
		t.Errorf("result = %q, want B+1.5", result)
	}

	empty := mustApply(t, mustApply(t, NewGame(3), PassMove()), PassMove())
	winner, _, ok = empty.Winner()
	if !ok {
		t.Fatal("two passes must end the game")
	}
	// Empty board: every region is neutral, komi decides.
	if winner != White {
		t.Errorf("komi should decide an empty board for white, got %s", winner)
	}
}

func TestWinnerUsesGameKomi(t *testing.T) {
	// Black takes the whole 3x3 board. With a small komi black wins;
	// crank the komi up and the same position flips to white.
	playOut := func(s *GameState) *GameState {
		for _, p := range []Point{{1, 1}, {2, 2}, {3, 3}} {
			s = mustApply(t, s, PlayMove(p))
			s = mustApply(t, s, PassMove())
		}
		return mustApply(t, s, PassMove())
	}

	low := playOut(NewGameWithKomi(3, 0.5))
	if low.Komi() != 0.5 {
		t.Fatalf("komi = %v after play, want 0.5", low.Komi())
	}
	winner, result, ok := low.Winner()
	if !ok || winner != Black {
		t.Fatalf("winner = %s (ok=%v), want black", winner, ok)
	}
	if result.String() != "B+8.5" {
		t.Errorf("result = %q, want B+8.5", result)
	}

	high := playOut(NewGameWithKomi(3, 30))
	winner, result, ok = high.Winner()
	if !ok || winner != White {
		t.Fatalf("winner = %s (ok=%v), want white", winner, ok)
	}
	if result.String() != "W+21.0" {
		t.Errorf("result = %q, want W+21.0", result)
	}
}

func TestWithKomiCarriesForward(t *testing.T) {
	s := NewGame(3).WithKomi(30)
	if s.Komi() != 30 {
		t.Fatalf("komi = %v, want 30", s.Komi())
	}
	s = mustApply(t, s, PlayMove(Point{2, 2}))
	if s.Komi() != 30 {
		t.Errorf("komi = %v after a move, want 30", s.Komi())
	}
}

func TestWinnerNotAvailableMidGame(t *testing.T) {
	s := mustApply(t, NewGame(5), PlayMove(Point{3, 3}))
	if _, _, ok := s.Winner(); ok {
		t.Fatal("running game must not report a winner")
	}
}
