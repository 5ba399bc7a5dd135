package selfplay

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/game"
)

// uniformEvaluator returns flat priors and a neutral value so games end
// quickly without a model.
type uniformEvaluator struct {
	numMoves int
}

func (e *uniformEvaluator) Evaluate(state *game.GameState) ([]float32, float32, error) {
	priors := make([]float32, e.numMoves)
	for i := range priors {
		priors[i] = 1 / float32(e.numMoves)
	}
	return priors, 0, nil
}

func TestPlayGameCompletes(t *testing.T) {
	const size = 3
	client := &uniformEvaluator{numMoves: size*size + 1}

	steps := 0
	out := PlayGame(context.Background(), 0, size, mcts.Config{Cpuct: 1.0, Rounds: 16}, client, false, func() { steps++ })

	if !out.Completed {
		t.Fatal("game did not complete")
	}
	if out.Result.Winner != game.Black && out.Result.Winner != game.White {
		t.Fatalf("no winner recorded: %+v", out.Result)
	}
	if len(out.TrainingRows) == 0 || len(out.TrainingRows) != len(out.ArchiveRows) {
		t.Fatalf("row counts: train=%d archive=%d", len(out.TrainingRows), len(out.ArchiveRows))
	}
	if steps == 0 {
		t.Fatal("onStep was never called")
	}

	for i, row := range out.TrainingRows {
		if row.Value != 1 && row.Value != -1 {
			t.Fatalf("row %d has unassigned value %f", i, row.Value)
		}
		wantValue := float32(-1)
		if game.Color(row.Color) == out.Result.Winner {
			wantValue = 1
		}
		if row.Value != wantValue {
			t.Fatalf("row %d: color %d value %f, winner %v", i, row.Color, row.Value, out.Result.Winner)
		}
		if len(row.Planes) != 11*size*size {
			t.Fatalf("row %d: %d plane floats", i, len(row.Planes))
		}

		sum := float32(0)
		for _, p := range row.Policy {
			sum += p
		}
		if math.Abs(float64(sum-1)) > 1e-3 {
			t.Fatalf("row %d: policy sums to %f", i, sum)
		}
	}

	for i, row := range out.ArchiveRows {
		if row.Move < 0 || int(row.Move) > size*size {
			t.Fatalf("archive row %d has move index %d", i, row.Move)
		}
		if len(row.BlackRow) != len(row.BlackCol) || len(row.WhiteRow) != len(row.WhiteCol) {
			t.Fatalf("archive row %d has mismatched stone coordinates", i)
		}
	}
}

func TestSampleMoveSkipsIllegalMass(t *testing.T) {
	const size = 3
	enc := convert.NewEncoder(size, size)

	state := game.NewGame(size)
	occupied := game.Point{Row: 1, Col: 1}
	state, err := state.ApplyMove(game.PlayMove(occupied))
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}

	occIdx, err := enc.MoveIndex(game.PlayMove(occupied))
	if err != nil {
		t.Fatalf("MoveIndex occupied: %v", err)
	}
	legalPoint := game.Point{Row: 2, Col: 2}
	legalIdx, err := enc.MoveIndex(game.PlayMove(legalPoint))
	if err != nil {
		t.Fatalf("MoveIndex legal: %v", err)
	}

	// Most of the mass sits on an occupied point; sampling must still
	// land on the legal remainder every time.
	policy := make([]float32, enc.NumMoves())
	policy[occIdx] = 0.9
	policy[legalIdx] = 0.1

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		move, ok := sampleMove(rng, enc, state, policy)
		if !ok {
			t.Fatal("sampling gave up despite legal mass in the policy")
		}
		if !move.IsPlay() || move.Point != legalPoint {
			t.Fatalf("drew %v, want play at %v", move, legalPoint)
		}
	}

	onlyIllegal := make([]float32, enc.NumMoves())
	onlyIllegal[occIdx] = 1
	if _, ok := sampleMove(rng, enc, state, onlyIllegal); ok {
		t.Fatal("sampled a move from a distribution with no legal mass")
	}
}

func TestPlayGameCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &uniformEvaluator{numMoves: 10}
	out := PlayGame(ctx, 0, 3, mcts.Config{Cpuct: 1.0, Rounds: 16}, client, false, nil)

	if out.Completed {
		t.Fatal("cancelled game reported as completed")
	}
	if len(out.TrainingRows) != 0 || len(out.ArchiveRows) != 0 {
		t.Fatal("cancelled game produced rows")
	}
}
