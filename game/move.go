package game

import "fmt"

type moveKind uint8

const (
	movePlay moveKind = iota
	movePass
	moveResign
)

// Move is one of three actions: playing a stone, passing, or resigning.
// Exactly one variant holds; use the constructors.
type Move struct {
	Point Point
	kind  moveKind
}

// PlayMove places a stone at p.
func PlayMove(p Point) Move {
	return Move{Point: p, kind: movePlay}
}

// PassMove passes the turn.
func PassMove() Move {
	return Move{kind: movePass}
}

// ResignMove concedes the game.
func ResignMove() Move {
	return Move{kind: moveResign}
}

func (m Move) IsPlay() bool   { return m.kind == movePlay }
func (m Move) IsPass() bool   { return m.kind == movePass }
func (m Move) IsResign() bool { return m.kind == moveResign }

// Columns use GTP letters, skipping I.
const colLetters = "ABCDEFGHJKLMNOPQRST"

func (m Move) String() string {
	switch m.kind {
	case movePass:
		return "pass"
	case moveResign:
		return "resign"
	}
	if m.Point.Col < 1 || m.Point.Col > len(colLetters) {
		return fmt.Sprintf("(%d,%d)", m.Point.Row, m.Point.Col)
	}
	return fmt.Sprintf("%c%d", colLetters[m.Point.Col-1], m.Point.Row)
}
