package game

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIllegalMove is returned when a requested placement or move violates
// the rules (occupied point, self-capture, superko, game already over).
var ErrIllegalMove = errors.New("illegal move")

// Board is the mutable grid of a position. A Board instance is owned by
// exactly one GameState; ApplyMove clones before placing so that ancestor
// states are never altered.
type Board struct {
	Rows int
	Cols int
	grid map[Point]*GoString
	hash uint64
}

// NewBoard creates an empty rows x cols board. Dimensions are capped at
// MaxBoardSize by the zobrist key table.
func NewBoard(rows, cols int) *Board {
	if rows < 1 || cols < 1 || rows > MaxBoardSize || cols > MaxBoardSize {
		panic(fmt.Sprintf("unsupported board size %dx%d", rows, cols))
	}
	return &Board{
		Rows: rows,
		Cols: cols,
		grid: make(map[Point]*GoString),
	}
}

// IsOnGrid reports whether p lies within the board.
func (b *Board) IsOnGrid(p Point) bool {
	return p.Row >= 1 && p.Row <= b.Rows && p.Col >= 1 && p.Col <= b.Cols
}

// StringAt returns the chain occupying p, or nil if p is empty.
func (b *Board) StringAt(p Point) *GoString {
	return b.grid[p]
}

// ColorAt returns the color of the stone at p, or 0 if p is empty.
func (b *Board) ColorAt(p Point) Color {
	if s := b.grid[p]; s != nil {
		return s.Color
	}
	return 0
}

// Hash returns the zobrist hash of the current stone placement. Boards
// with identical placements hash identically regardless of move order.
func (b *Board) Hash() uint64 {
	return b.hash
}

// PlaceStone places a stone for player at p and resolves captures:
// the stone merges with adjacent friendly chains, adjacent enemy chains
// lose the liberty at p, and enemy chains left without liberties are
// removed (each removed stone XORed out of the hash, its point restored
// as a liberty to remaining neighbors).
//
// Legality beyond "p is empty and on the grid" is the caller's concern.
// In particular a placement that captures nothing and leaves its own
// chain without liberties is performed as asked; GameState rejects such
// moves before they get here.
func (b *Board) PlaceStone(player Color, p Point) error {
	if !b.IsOnGrid(p) {
		return fmt.Errorf("%w: %v is off the board", ErrIllegalMove, p)
	}
	if b.grid[p] != nil {
		return fmt.Errorf("%w: %v is occupied", ErrIllegalMove, p)
	}

	var sameAdjacent []*GoString
	var otherAdjacent []*GoString
	var liberties []Point
	for _, n := range p.Neighbors() {
		if !b.IsOnGrid(n) {
			continue
		}
		ns := b.grid[n]
		if ns == nil {
			liberties = append(liberties, n)
			continue
		}
		if ns.Color == player {
			if !containsString(sameAdjacent, ns) {
				sameAdjacent = append(sameAdjacent, ns)
			}
		} else {
			if !containsString(otherAdjacent, ns) {
				otherAdjacent = append(otherAdjacent, ns)
			}
		}
	}

	merged := newGoString(player, []Point{p}, liberties)
	for _, s := range sameAdjacent {
		merged = merged.MergedWith(s)
	}
	for stone := range merged.stones {
		b.grid[stone] = merged
	}
	b.hash ^= zobristKey(p, player)

	for _, s := range otherAdjacent {
		shrunk := s.WithoutLiberty(p)
		if shrunk.NumLiberties() == 0 {
			b.removeString(shrunk)
		} else {
			b.replaceString(shrunk)
		}
	}
	return nil
}

// IsSelfCapture reports whether playing at p would leave the placed
// stone's chain without liberties after captures are resolved. A play
// that captures always frees at least the captured point, so any enemy
// neighbor in atari makes this false.
func (b *Board) IsSelfCapture(player Color, p Point) bool {
	var friendly []*GoString
	for _, n := range p.Neighbors() {
		if !b.IsOnGrid(n) {
			continue
		}
		ns := b.grid[n]
		if ns == nil {
			return false
		}
		if ns.Color == player {
			friendly = append(friendly, ns)
			continue
		}
		if ns.NumLiberties() == 1 {
			// The enemy chain's last liberty is p; it would be captured.
			return false
		}
	}
	for _, s := range friendly {
		if s.NumLiberties() > 1 {
			return false
		}
	}
	return true
}

// WillCapture reports whether playing at p would remove at least one
// enemy chain.
func (b *Board) WillCapture(player Color, p Point) bool {
	for _, n := range p.Neighbors() {
		if !b.IsOnGrid(n) {
			continue
		}
		ns := b.grid[n]
		if ns != nil && ns.Color != player && ns.NumLiberties() == 1 {
			return true
		}
	}
	return false
}

// Clone returns an independent copy. Chains are shared by reference,
// which is safe because mutation always replaces them.
func (b *Board) Clone() *Board {
	out := &Board{
		Rows: b.Rows,
		Cols: b.Cols,
		grid: make(map[Point]*GoString, len(b.grid)),
		hash: b.hash,
	}
	for p, s := range b.grid {
		out.grid[p] = s
	}
	return out
}

// replaceString points every cell of s at the new instance.
func (b *Board) replaceString(s *GoString) {
	for p := range s.stones {
		b.grid[p] = s
	}
}

func (b *Board) removeString(s *GoString) {
	for p := range s.stones {
		// Freed points become liberties of every distinct neighboring chain.
		for _, n := range p.Neighbors() {
			if !b.IsOnGrid(n) {
				continue
			}
			ns := b.grid[n]
			// Membership, not instance identity: the grid may still hold a
			// pre-shrink instance of the chain being removed.
			if ns == nil || s.HasStone(n) {
				continue
			}
			if !ns.HasLiberty(p) {
				b.replaceString(ns.WithLiberty(p))
			}
		}
		delete(b.grid, p)
		b.hash ^= zobristKey(p, s.Color)
	}
}

func containsString(list []*GoString, s *GoString) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// String renders the board with GTP column letters, black as X and white
// as O, for logs and debug games.
func (b *Board) String() string {
	var sb strings.Builder
	for row := b.Rows; row >= 1; row-- {
		fmt.Fprintf(&sb, "%2d ", row)
		for col := 1; col <= b.Cols; col++ {
			switch b.ColorAt(Point{Row: row, Col: col}) {
			case Black:
				sb.WriteByte('X')
			case White:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("   ")
	for col := 1; col <= b.Cols; col++ {
		sb.WriteByte(colLetters[col-1])
		sb.WriteByte(' ')
	}
	sb.WriteByte('\n')
	return sb.String()
}
