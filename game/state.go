package game

import "fmt"

// situation pairs a position hash with the player to move, the unit of
// repetition the superko rule forbids.
type situation struct {
	player Color
	hash   uint64
}

// GameState is an immutable snapshot of a game in progress. Each applied
// move produces a new state referencing its parent, forming a backward
// chain; states are never mutated after creation, so arbitrarily many
// search branches can share ancestors.
type GameState struct {
	board      *Board
	nextPlayer Color
	previous   *GameState
	lastMove   *Move
	komi       float64
	// seen holds every (player-to-move, board-hash) situation that
	// occurred strictly before this state, for positional superko.
	seen map[situation]struct{}
}

// NewGame starts a fresh size x size game with Black to move and the
// default komi.
func NewGame(size int) *GameState {
	return NewGameWithKomi(size, DefaultKomi)
}

// NewGameWithKomi starts a fresh game scored with the given komi.
func NewGameWithKomi(size int, komi float64) *GameState {
	return &GameState{
		board:      NewBoard(size, size),
		nextPlayer: Black,
		komi:       komi,
		seen:       map[situation]struct{}{},
	}
}

// Board returns the current position. Callers must not mutate it; clone
// first.
func (s *GameState) Board() *Board { return s.board }

// NextPlayer returns the color to move.
func (s *GameState) NextPlayer() Color { return s.nextPlayer }

// Komi returns the komi this game is scored with.
func (s *GameState) Komi() float64 { return s.komi }

// WithKomi returns a state identical to s except for the komi. Moves
// applied to the result carry the new komi forward; s is unchanged.
func (s *GameState) WithKomi(komi float64) *GameState {
	clone := *s
	clone.komi = komi
	return &clone
}

// Previous returns the parent state, or nil for a new game.
func (s *GameState) Previous() *GameState { return s.previous }

// LastMove returns the move that produced this state, or nil for a new
// game.
func (s *GameState) LastMove() *Move { return s.lastMove }

// ApplyMove validates m against this state and returns the resulting
// state. The receiver is unchanged. An invalid move yields ErrIllegalMove.
func (s *GameState) ApplyMove(m Move) (*GameState, error) {
	if !s.IsValidMove(m) {
		return nil, fmt.Errorf("%w: %s %s", ErrIllegalMove, s.nextPlayer, m)
	}

	board := s.board
	if m.IsPlay() {
		board = s.board.Clone()
		if err := board.PlaceStone(s.nextPlayer, m.Point); err != nil {
			return nil, err
		}
	}

	seen := make(map[situation]struct{}, len(s.seen)+1)
	for k := range s.seen {
		seen[k] = struct{}{}
	}
	seen[situation{player: s.nextPlayer, hash: s.board.Hash()}] = struct{}{}

	move := m
	return &GameState{
		board:      board,
		nextPlayer: s.nextPlayer.Other(),
		previous:   s,
		lastMove:   &move,
		komi:       s.komi,
		seen:       seen,
	}, nil
}

// IsOver reports whether the game has ended: a resignation, or two
// consecutive passes.
func (s *GameState) IsOver() bool {
	if s.lastMove == nil {
		return false
	}
	if s.lastMove.IsResign() {
		return true
	}
	if !s.lastMove.IsPass() {
		return false
	}
	prev := s.previous
	return prev != nil && prev.lastMove != nil && prev.lastMove.IsPass()
}

// IsMoveSelfCapture reports whether m is a play that would leave its own
// chain without liberties.
func (s *GameState) IsMoveSelfCapture(m Move) bool {
	if !m.IsPlay() {
		return false
	}
	return s.board.IsSelfCapture(s.nextPlayer, m.Point)
}

// DoesMoveViolateKo reports whether m would recreate a previously seen
// situation. Only capturing plays can repeat a position, so everything
// else short-circuits; for a capture the move is applied to a board clone
// and the resulting (opponent-to-move, hash) pair is checked against the
// full ancestor history. This is positional superko, not just the
// single-stone ko rule.
func (s *GameState) DoesMoveViolateKo(m Move) bool {
	if !m.IsPlay() {
		return false
	}
	if !s.board.WillCapture(s.nextPlayer, m.Point) {
		return false
	}
	next := s.board.Clone()
	if err := next.PlaceStone(s.nextPlayer, m.Point); err != nil {
		return false
	}
	sit := situation{player: s.nextPlayer.Other(), hash: next.Hash()}
	_, ok := s.seen[sit]
	return ok
}

// IsValidMove reports whether m is legal in this state. Pass and Resign
// are always legal while the game is running.
func (s *GameState) IsValidMove(m Move) bool {
	if s.IsOver() {
		return false
	}
	if m.IsPass() || m.IsResign() {
		return true
	}
	p := m.Point
	if !s.board.IsOnGrid(p) || s.board.StringAt(p) != nil {
		return false
	}
	return !s.IsMoveSelfCapture(m) && !s.DoesMoveViolateKo(m)
}

// LegalMoves returns every valid move in deterministic order: plays in
// row-major scan order, then Pass, then Resign. The result is empty when
// the game is over.
func (s *GameState) LegalMoves() []Move {
	if s.IsOver() {
		return nil
	}
	moves := make([]Move, 0, s.board.Rows*s.board.Cols+2)
	for row := 1; row <= s.board.Rows; row++ {
		for col := 1; col <= s.board.Cols; col++ {
			m := PlayMove(Point{Row: row, Col: col})
			if s.IsValidMove(m) {
				moves = append(moves, m)
			}
		}
	}
	moves = append(moves, PassMove(), ResignMove())
	return moves
}

// Winner returns the winning color once the game is over, plus the area
// score result for a game decided by counting. A resignation awards the
// game to the opponent of the resigner; ok is false while the game is
// still running.
func (s *GameState) Winner() (winner Color, result Result, ok bool) {
	if !s.IsOver() {
		return 0, Result{}, false
	}
	if s.lastMove.IsResign() {
		// The resigner is the player who made lastMove.
		return s.nextPlayer, Result{Winner: s.nextPlayer, Resigned: true}, true
	}
	result = ScoreGame(s.board, s.komi)
	return result.Winner, result, true
}
