// Package game implements the rules of Go: board state with incremental
// position hashing, capture resolution, positional superko, and area scoring.
//
// GameState is immutable per move and designed to be cheap to branch from
// during MCTS tree exploration; only Board requires cloning on a play.
package game

// Point is a board coordinate. Row and Col are 1-based; Row 1 is the top
// edge in printed output.
type Point struct {
	Row int
	Col int
}

// Neighbors returns the 4-adjacent points. Callers must filter with
// Board.IsOnGrid since edge points produce off-board neighbors.
func (p Point) Neighbors() [4]Point {
	return [4]Point{
		{p.Row - 1, p.Col},
		{p.Row + 1, p.Col},
		{p.Row, p.Col - 1},
		{p.Row, p.Col + 1},
	}
}

// Color identifies a player's stones.
type Color uint8

const (
	Black Color = iota + 1
	White
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == Black {
		return White
	}
	return Black
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return "none"
}
