// Package convert encodes game states into the tensor layout consumed by
// the policy/value network, and maps moves to and from the network's
// flat action space.
package convert

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sente-go/sente/game"
)

// Channels is the number of feature planes in the encoded state.
//
// Plane layout, always from the perspective of the player to move:
//
//	0-3  own stones with 1, 2, 3, 4+ liberties
//	4-7  opponent stones with 1, 2, 3, 4+ liberties
//	8    all ones when black is to move
//	9    all ones when white is to move
//	10   points where a play would violate superko
const Channels = 11

const BytesPerFloat = 4

var (
	// ErrUnsupportedMove is returned when encoding a move with no index
	// in the action space (resign).
	ErrUnsupportedMove = errors.New("move has no action index")
	// ErrIndexOutOfRange is returned when decoding an index outside the
	// action space.
	ErrIndexOutOfRange = errors.New("action index out of range")
)

// Encoder converts states and moves for one fixed board geometry.
// The action space is rows*cols play indices in row-major order plus one
// trailing pass index.
type Encoder struct {
	Rows int
	Cols int

	pool sync.Pool
}

// NewEncoder creates an encoder for a rows x cols board.
func NewEncoder(rows, cols int) *Encoder {
	e := &Encoder{Rows: rows, Cols: cols}
	size := Channels * rows * cols
	e.pool = sync.Pool{
		New: func() interface{} {
			b := make([]float32, size)
			return &b
		},
	}
	return e
}

// NumMoves returns the size of the action space: one index per board
// point plus pass.
func (e *Encoder) NumMoves() int {
	return e.Rows*e.Cols + 1
}

// NumFloats returns the length of an encoded state tensor.
func (e *Encoder) NumFloats() int {
	return Channels * e.Rows * e.Cols
}

// PassIndex returns the action index of the pass move.
func (e *Encoder) PassIndex() int {
	return e.Rows * e.Cols
}

// MoveIndex returns the action index of m. Resign is not part of the
// action space and yields ErrUnsupportedMove.
func (e *Encoder) MoveIndex(m game.Move) (int, error) {
	switch {
	case m.IsResign():
		return 0, fmt.Errorf("%w: resign", ErrUnsupportedMove)
	case m.IsPass():
		return e.PassIndex(), nil
	}
	p := m.Point
	if p.Row < 1 || p.Row > e.Rows || p.Col < 1 || p.Col > e.Cols {
		return 0, fmt.Errorf("%w: play at %v off a %dx%d board", ErrIndexOutOfRange, p, e.Rows, e.Cols)
	}
	return (p.Row-1)*e.Cols + (p.Col - 1), nil
}

// DecodeMoveIndex returns the move for an action index: pass for the
// final index, a play otherwise.
func (e *Encoder) DecodeMoveIndex(idx int) (game.Move, error) {
	if idx < 0 || idx > e.PassIndex() {
		return game.Move{}, fmt.Errorf("%w: %d not in [0,%d]", ErrIndexOutOfRange, idx, e.PassIndex())
	}
	if idx == e.PassIndex() {
		return game.PassMove(), nil
	}
	return game.PlayMove(game.Point{Row: idx/e.Cols + 1, Col: idx%e.Cols + 1}), nil
}

// StatePlanes encodes the state into a pooled float32 tensor with shape
// [Channels, Rows, Cols]. Callers must hand the slice back with
// PutPlanes once consumed.
func (e *Encoder) StatePlanes(s *game.GameState) *[]float32 {
	dataPtr := e.pool.Get().(*[]float32)
	data := *dataPtr
	clear(data)

	planeSize := e.Rows * e.Cols
	set := func(c int, p game.Point, val float32) {
		data[c*planeSize+(p.Row-1)*e.Cols+(p.Col-1)] = val
	}

	next := s.NextPlayer()
	board := s.Board()
	for row := 1; row <= e.Rows; row++ {
		for col := 1; col <= e.Cols; col++ {
			p := game.Point{Row: row, Col: col}
			str := board.StringAt(p)
			if str == nil {
				if s.DoesMoveViolateKo(game.PlayMove(p)) {
					set(10, p, 1)
				}
				continue
			}
			libs := str.NumLiberties()
			if libs > 4 {
				libs = 4
			}
			base := 0
			if str.Color != next {
				base = 4
			}
			set(base+libs-1, p, 1)
		}
	}

	turnPlane := 8
	if next == game.White {
		turnPlane = 9
	}
	start := turnPlane * planeSize
	for i := start; i < start+planeSize; i++ {
		data[i] = 1
	}

	return dataPtr
}

// PutPlanes returns a tensor obtained from StatePlanes to the pool.
func (e *Encoder) PutPlanes(b *[]float32) {
	e.pool.Put(b)
}
