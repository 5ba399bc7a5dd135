package game

import "testing"

func TestScoreGameTerritory(t *testing.T) {
	// 5x5 split down the middle column by a wall of dame:
	//
	//	5 X X . O O
	//	4 X X . O O
	//	3 X X . O O
	//	2 X X . O O
	//	1 X X . O O
	b := NewBoard(5, 5)
	for row := 1; row <= 5; row++ {
		mustPlace(t, b, Black, Point{row, 1})
		mustPlace(t, b, Black, Point{row, 2})
		mustPlace(t, b, White, Point{row, 4})
		mustPlace(t, b, White, Point{row, 5})
	}

	r := ScoreGame(b, 0)
	// Column 3 touches both colors: dame, no territory for anyone.
	if r.BlackPoints != 10 || r.WhitePoints != 10 {
		t.Fatalf("score %v/%v, want 10/10", r.BlackPoints, r.WhitePoints)
	}
	// Ties go to black with zero komi.
	if r.Winner != Black {
		t.Errorf("winner = %s, want black on a zero-komi tie", r.Winner)
	}

	r = ScoreGame(b, DefaultKomi)
	if r.Winner != White {
		t.Errorf("winner = %s, want white with komi", r.Winner)
	}
	if got := r.String(); got != "W+7.5" {
		t.Errorf("result = %q, want W+7.5", got)
	}
}

func TestScoreGameEnclosedTerritory(t *testing.T) {
	// Black wall enclosing the corner point (1,1):
	//
	//	3 . . .
	//	2 X X .
	//	1 . X .
	b := NewBoard(3, 3)
	mustPlace(t, b, Black, Point{1, 2})
	mustPlace(t, b, Black, Point{2, 2})
	mustPlace(t, b, Black, Point{2, 1})

	r := ScoreGame(b, 0)
	// (1,1) is black territory; the open area touches only black too,
	// so the whole empty board counts for black.
	if r.BlackPoints != 9 {
		t.Fatalf("black points = %v, want 9", r.BlackPoints)
	}
	if r.WhitePoints != 0 {
		t.Fatalf("white points = %v, want 0", r.WhitePoints)
	}
}

func TestScoreGameMargin(t *testing.T) {
	b := NewBoard(3, 3)
	mustPlace(t, b, Black, Point{2, 2})
	r := ScoreGame(b, 2)
	// Black 9, white 0+2: black by 7.
	if r.Winner != Black || r.Margin() != 7 {
		t.Errorf("got %s margin %v, want black by 7", r.Winner, r.Margin())
	}
}
