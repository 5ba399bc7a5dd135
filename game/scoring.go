package game

import "fmt"

// DefaultKomi is White's compensation under area scoring.
const DefaultKomi = 7.5

// Result is the outcome of a counted game.
type Result struct {
	Winner      Color
	BlackPoints float64
	WhitePoints float64
	Komi        float64
	Resigned    bool
}

// Margin returns the winner's lead. Zero for resignations.
func (r Result) Margin() float64 {
	if r.Resigned {
		return 0
	}
	if r.Winner == Black {
		return r.BlackPoints - r.WhitePoints - r.Komi
	}
	return r.WhitePoints + r.Komi - r.BlackPoints
}

// String renders the result in GTP form, e.g. "B+3.5" or "W+Resign".
func (r Result) String() string {
	side := "B"
	if r.Winner == White {
		side = "W"
	}
	if r.Resigned {
		return side + "+Resign"
	}
	return fmt.Sprintf("%s+%.1f", side, r.Margin())
}

// ScoreGame counts the final position with area scoring: each player
// scores their stones plus empty regions bordered exclusively by their
// color. Regions touching both colors are dame and score for no one.
func ScoreGame(b *Board, komi float64) Result {
	visited := make(map[Point]bool)
	var black, white float64

	for row := 1; row <= b.Rows; row++ {
		for col := 1; col <= b.Cols; col++ {
			p := Point{Row: row, Col: col}
			if visited[p] {
				continue
			}
			switch b.ColorAt(p) {
			case Black:
				black++
				visited[p] = true
			case White:
				white++
				visited[p] = true
			default:
				region, borders := collectRegion(b, p, visited)
				if borders == Black {
					black += float64(len(region))
				} else if borders == White {
					white += float64(len(region))
				}
			}
		}
	}

	winner := Black
	if white+komi > black {
		winner = White
	}
	return Result{
		Winner:      winner,
		BlackPoints: black,
		WhitePoints: white,
		Komi:        komi,
	}
}

// collectRegion flood-fills the empty region containing start and returns
// its points plus the single bordering color, or 0 if both colors (or, on
// an empty board, neither) touch it.
func collectRegion(b *Board, start Point, visited map[Point]bool) ([]Point, Color) {
	var region []Point
	var sawBlack, sawWhite bool

	stack := []Point{start}
	visited[start] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		region = append(region, p)
		for _, n := range p.Neighbors() {
			if !b.IsOnGrid(n) {
				continue
			}
			switch b.ColorAt(n) {
			case Black:
				sawBlack = true
			case White:
				sawWhite = true
			default:
				if !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
	}

	if sawBlack && !sawWhite {
		return region, Black
	}
	if sawWhite && !sawBlack {
		return region, White
	}
	return region, 0
}
