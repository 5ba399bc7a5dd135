package game

import (
	"testing"

	"github.com/bszcz/mt19937_64"
)

// The key table must come from the seeded generator stream: stored
// hashes and superko histories are only stable if reseeding reproduces
// identical keys.
func TestZobristKeysMatchSeededStream(t *testing.T) {
	mt := mt19937_64.New()
	mt.SeedByUint(zobristSeed)
	for i := 0; i < 8; i++ {
		for c := 0; c < 2; c++ {
			k := mt.Uint64()
			for k == 0 {
				k = mt.Uint64()
			}
			if zobristKeys[i][c] != k {
				t.Fatalf("zobristKeys[%d][%d] = %#x, want %#x from seeded stream", i, c, zobristKeys[i][c], k)
			}
		}
	}
}

func TestZobristKeysNonzeroAndDistinct(t *testing.T) {
	seen := make(map[uint64]Point, MaxBoardSize*MaxBoardSize*2)
	for row := 1; row <= MaxBoardSize; row++ {
		for col := 1; col <= MaxBoardSize; col++ {
			p := Point{Row: row, Col: col}
			for _, c := range []Color{Black, White} {
				k := zobristKey(p, c)
				if k == 0 {
					t.Fatalf("zero key for %v %v", p, c)
				}
				if prev, ok := seen[k]; ok {
					t.Fatalf("key collision: %v and %v share %#x", prev, p, k)
				}
				seen[k] = p
			}
		}
	}
}

func TestZobristKeysStableAcrossCalls(t *testing.T) {
	p := Point{Row: 4, Col: 4}
	if zobristKey(p, Black) != zobristKey(p, Black) {
		t.Fatal("key not deterministic")
	}
	if zobristKey(p, Black) == zobristKey(p, White) {
		t.Fatal("black and white keys equal")
	}
}
