package game

import "testing"

// checkBoardInvariants verifies the structural invariants of a position:
// every occupied point maps to a chain containing it, chains are maximal
// connected components, and liberty sets equal the empty 4-neighbors of
// each chain.
func checkBoardInvariants(t *testing.T, b *Board) {
	t.Helper()

	seen := make(map[*GoString]bool)
	for row := 1; row <= b.Rows; row++ {
		for col := 1; col <= b.Cols; col++ {
			p := Point{Row: row, Col: col}
			s := b.StringAt(p)
			if s == nil {
				continue
			}
			if !s.HasStone(p) {
				t.Fatalf("grid cell %v points at chain not containing it", p)
			}
			seen[s] = true

			// Same-color neighbors must be in the same chain (maximality).
			for _, n := range p.Neighbors() {
				if !b.IsOnGrid(n) {
					continue
				}
				if ns := b.StringAt(n); ns != nil && ns.Color == s.Color && ns != s {
					t.Fatalf("adjacent same-color points %v and %v in different chains", p, n)
				}
			}
		}
	}

	for s := range seen {
		want := make(map[Point]bool)
		for _, stone := range s.Stones() {
			if got := b.StringAt(stone); got != s {
				t.Fatalf("chain stone %v not mapped back to its chain", stone)
			}
			for _, n := range stone.Neighbors() {
				if b.IsOnGrid(n) && b.StringAt(n) == nil {
					want[n] = true
				}
			}
		}
		if len(want) != s.NumLiberties() {
			t.Fatalf("chain at %v has %d liberties, brute force says %d",
				s.Stones()[0], s.NumLiberties(), len(want))
		}
		for _, l := range s.Liberties() {
			if !want[l] {
				t.Fatalf("chain liberty %v is not an empty neighbor", l)
			}
		}
	}
}

func mustPlace(t *testing.T, b *Board, c Color, p Point) {
	t.Helper()
	if err := b.PlaceStone(c, p); err != nil {
		t.Fatalf("place %v %v: %v", c, p, err)
	}
}

func TestPlaceStoneMergesChains(t *testing.T) {
	b := NewBoard(5, 5)
	mustPlace(t, b, Black, Point{3, 3})
	mustPlace(t, b, White, Point{2, 3})
	mustPlace(t, b, Black, Point{3, 2})
	mustPlace(t, b, White, Point{2, 2})

	s := b.StringAt(Point{3, 3})
	if s == nil || s != b.StringAt(Point{3, 2}) {
		t.Fatal("adjacent black stones did not merge into one chain")
	}
	if s.NumStones() != 2 {
		t.Fatalf("merged chain has %d stones, want 2", s.NumStones())
	}
	// Manual count: (4,2) (4,3) (3,1) (3,4); (2,2) and (2,3) are white.
	if s.NumLiberties() != 4 {
		t.Fatalf("merged chain has %d liberties, want 4", s.NumLiberties())
	}
	for _, want := range []Point{{4, 2}, {4, 3}, {3, 1}, {3, 4}} {
		if !s.HasLiberty(want) {
			t.Errorf("missing liberty %v", want)
		}
	}
	checkBoardInvariants(t, b)
}

func TestPlaceStoneCapturesOnlyZeroLibertyChains(t *testing.T) {
	b := NewBoard(5, 5)
	mustPlace(t, b, White, Point{3, 3})
	mustPlace(t, b, Black, Point{2, 3})
	mustPlace(t, b, Black, Point{4, 3})
	mustPlace(t, b, Black, Point{3, 2})

	// White still has one liberty at (3,4); nothing may be captured yet.
	if b.StringAt(Point{3, 3}) == nil {
		t.Fatal("white chain captured while it still had a liberty")
	}
	if got := b.StringAt(Point{3, 3}).NumLiberties(); got != 1 {
		t.Fatalf("white chain has %d liberties, want 1", got)
	}

	mustPlace(t, b, Black, Point{3, 4})
	if b.StringAt(Point{3, 3}) != nil {
		t.Fatal("white chain not captured after losing its last liberty")
	}
	// The freed point is a liberty of the surrounding chains again.
	if !b.StringAt(Point{2, 3}).HasLiberty(Point{3, 3}) {
		t.Error("captured point not restored as a liberty")
	}
	checkBoardInvariants(t, b)
}

func TestPlaceStoneCaptureUpdatesHash(t *testing.T) {
	// Build the post-capture position directly and via the capture; the
	// hashes must agree since hashing is placement-order independent.
	captured := NewBoard(5, 5)
	mustPlace(t, captured, White, Point{1, 1})
	mustPlace(t, captured, Black, Point{1, 2})
	mustPlace(t, captured, Black, Point{2, 1})
	if captured.StringAt(Point{1, 1}) != nil {
		t.Fatal("corner stone not captured")
	}

	direct := NewBoard(5, 5)
	mustPlace(t, direct, Black, Point{2, 1})
	mustPlace(t, direct, Black, Point{1, 2})

	if captured.Hash() != direct.Hash() {
		t.Fatalf("hash %#x after capture, want %#x", captured.Hash(), direct.Hash())
	}

	// Putting the captured stone back restores the pre-capture hash,
	// since removal and placement are the same XOR.
	rebuilt := captured.Clone()
	mustPlace(t, rebuilt, White, Point{1, 1})
	if rebuilt.Hash() != direct.Hash()^zobristKey(Point{1, 1}, White) {
		t.Fatal("hash not restored by re-adding the captured stone")
	}
}

func TestHashOrderIndependence(t *testing.T) {
	a := NewBoard(9, 9)
	mustPlace(t, a, Black, Point{5, 5})
	mustPlace(t, a, White, Point{3, 3})
	mustPlace(t, a, Black, Point{7, 7})

	b := NewBoard(9, 9)
	mustPlace(t, b, Black, Point{7, 7})
	mustPlace(t, b, White, Point{3, 3})
	mustPlace(t, b, Black, Point{5, 5})

	if a.Hash() != b.Hash() {
		t.Fatalf("same placement hashes differ: %#x vs %#x", a.Hash(), b.Hash())
	}

	c := NewBoard(9, 9)
	if c.Hash() != 0 {
		t.Fatalf("empty board hash = %#x, want 0", c.Hash())
	}
}

func TestIsSelfCapture(t *testing.T) {
	b := NewBoard(5, 5)
	mustPlace(t, b, White, Point{1, 2})
	mustPlace(t, b, White, Point{2, 1})

	if !b.IsSelfCapture(Black, Point{1, 1}) {
		t.Error("corner play with no liberties and no capture should be self-capture")
	}
	if b.IsSelfCapture(White, Point{1, 1}) {
		t.Error("connecting to friendly chains with outside liberties is not self-capture")
	}

	// Filling the last shared liberty of a friendly chain with no
	// capture is self-capture even through a merge.
	b2 := NewBoard(5, 5)
	mustPlace(t, b2, Black, Point{1, 1})
	mustPlace(t, b2, White, Point{2, 1})
	mustPlace(t, b2, White, Point{2, 2})
	mustPlace(t, b2, White, Point{1, 3})
	if !b2.IsSelfCapture(Black, Point{1, 2}) {
		t.Error("merge into a zero-liberty chain should be self-capture")
	}

	// If the play captures, it is never self-capture.
	b3 := NewBoard(5, 5)
	mustPlace(t, b3, White, Point{1, 2})
	mustPlace(t, b3, White, Point{2, 1})
	mustPlace(t, b3, Black, Point{1, 3})
	mustPlace(t, b3, Black, Point{2, 2})
	mustPlace(t, b3, Black, Point{3, 1})
	// (1,1) has only white neighbors, but white (1,2) and (2,1) are in
	// atari; playing there captures and gains liberties.
	if b3.IsSelfCapture(Black, Point{1, 1}) {
		t.Error("capturing play misreported as self-capture")
	}
}

func TestWillCapture(t *testing.T) {
	b := NewBoard(5, 5)
	mustPlace(t, b, White, Point{3, 3})
	mustPlace(t, b, Black, Point{2, 3})
	mustPlace(t, b, Black, Point{4, 3})
	mustPlace(t, b, Black, Point{3, 2})

	if !b.WillCapture(Black, Point{3, 4}) {
		t.Error("filling the last liberty should report a capture")
	}
	if b.WillCapture(Black, Point{5, 5}) {
		t.Error("unrelated play reported as capture")
	}
	if b.WillCapture(White, Point{3, 4}) {
		t.Error("extending own chain reported as capture")
	}
}

func TestPlaceStoneRejectsOccupiedAndOffGrid(t *testing.T) {
	b := NewBoard(5, 5)
	mustPlace(t, b, Black, Point{3, 3})

	if err := b.PlaceStone(White, Point{3, 3}); err == nil {
		t.Error("placing on an occupied point must fail")
	}
	if err := b.PlaceStone(White, Point{0, 3}); err == nil {
		t.Error("placing off the grid must fail")
	}
	if err := b.PlaceStone(White, Point{3, 6}); err == nil {
		t.Error("placing off the grid must fail")
	}
}

func TestCloneIndependence(t *testing.T) {
	b := NewBoard(5, 5)
	mustPlace(t, b, Black, Point{3, 3})

	c := b.Clone()
	mustPlace(t, c, White, Point{3, 4})
	mustPlace(t, c, White, Point{2, 3})

	if b.StringAt(Point{3, 4}) != nil || b.StringAt(Point{2, 3}) != nil {
		t.Fatal("mutating a clone affected the original")
	}
	if got := b.StringAt(Point{3, 3}).NumLiberties(); got != 4 {
		t.Fatalf("original chain has %d liberties after clone mutation, want 4", got)
	}
}

func TestMultipleChainCapture(t *testing.T) {
	// Two separate white chains die to the same black play.
	b := NewBoard(5, 5)
	mustPlace(t, b, White, Point{1, 1})
	mustPlace(t, b, White, Point{1, 3})
	mustPlace(t, b, Black, Point{2, 1})
	mustPlace(t, b, Black, Point{2, 3})
	mustPlace(t, b, Black, Point{1, 4})

	mustPlace(t, b, Black, Point{1, 2})
	if b.StringAt(Point{1, 1}) != nil || b.StringAt(Point{1, 3}) != nil {
		t.Fatal("both atari chains should be captured by one play")
	}
	checkBoardInvariants(t, b)

	want := NewBoard(5, 5)
	mustPlace(t, want, Black, Point{2, 1})
	mustPlace(t, want, Black, Point{2, 3})
	mustPlace(t, want, Black, Point{1, 4})
	mustPlace(t, want, Black, Point{1, 2})
	if b.Hash() != want.Hash() {
		t.Fatalf("hash after double capture %#x, want %#x", b.Hash(), want.Hash())
	}
}
