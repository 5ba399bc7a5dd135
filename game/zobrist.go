package game

import "github.com/bszcz/mt19937_64"

// MaxBoardSize bounds the zobrist key table. Boards larger than 19x19 are
// not supported.
const MaxBoardSize = 19

// zobristSeed fixes the key table so hashes are stable across processes.
// Stored experience and superko histories depend on this value.
const zobristSeed = 0x6c35c5d1e0f5d23b

// zobristKeys holds one 64-bit key per (point, color). Position hashes are
// the XOR of the keys of all occupied points, so placement and removal are
// the same O(1) update and the result is independent of move order.
var zobristKeys [MaxBoardSize * MaxBoardSize][2]uint64

func init() {
	mt := mt19937_64.New()
	mt.SeedByUint(zobristSeed)
	for i := range zobristKeys {
		for c := 0; c < 2; c++ {
			k := mt.Uint64()
			for k == 0 {
				k = mt.Uint64()
			}
			zobristKeys[i][c] = k
		}
	}
}

func zobristKey(p Point, c Color) uint64 {
	return zobristKeys[(p.Row-1)*MaxBoardSize+(p.Col-1)][c-1]
}
