// Package selfplay runs search-guided games against itself and records
// the positions, search statistics, and outcomes for training.
package selfplay

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/game"
	"github.com/sente-go/sente/store"
)

const (
	// TemperatureMoves is how many opening moves are sampled from the
	// visit distribution instead of played greedily.
	TemperatureMoves = 10

	// ResignThreshold ends the game early when the root value estimate
	// for the player to move drops below it. Resignation is disabled
	// during the temperature phase so noisy openings don't end games.
	ResignThreshold = -0.95
)

type GameResult struct {
	Winner   game.Color
	Score    string
	Moves    int
	Resigned bool
}

type PlayGameOutcome struct {
	Completed    bool
	TrainingRows []store.TrainingRow
	ArchiveRows  []store.ArchiveTurnRow
	Result       GameResult
}

// PlayGame runs a single self-play game to completion and returns one
// training row and one archive row per turn, with values back-filled
// from the final outcome. An aborted game (context cancellation or
// search failure) returns Completed=false and no rows.
func PlayGame(ctx context.Context, workerID int, boardSize int, cfg mcts.Config, client mcts.Evaluator, verbose bool, onStep func()) PlayGameOutcome {
	encoder := convert.NewEncoder(boardSize, boardSize)
	state := game.NewGame(boardSize)
	gameID := fmt.Sprintf("selfplay_%d_%d", time.Now().UnixNano(), workerID)

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)*1000003))

	search := &mcts.MCTS{
		Config:  cfg,
		Client:  client,
		Encoder: encoder,
	}

	// Superko makes true cycles impossible, but pass-fighting endgames
	// can still drag on. Past the cap both sides are forced to pass so
	// the game reaches scoring.
	maxMoves := boardSize * boardSize * 3

	trainRows := make([]store.TrainingRow, 0, 128)
	archiveRows := make([]store.ArchiveTurnRow, 0, 128)
	resigned := false

	turn := 0
	for !state.IsOver() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return PlayGameOutcome{Result: GameResult{Moves: turn}}
			default:
			}
		}

		if verbose {
			PrintBoard(workerID, turn, state)
		}

		if turn >= maxMoves {
			next, err := state.ApplyMove(game.PassMove())
			if err != nil {
				log.Printf("[Worker %d] forced pass failed: %v", workerID, err)
				return PlayGameOutcome{Result: GameResult{Moves: turn}}
			}
			state = next
			turn++
			continue
		}

		decision, err := search.SelectMove(ctx, state)
		if err != nil {
			if ctx != nil {
				select {
				case <-ctx.Done():
					return PlayGameOutcome{Result: GameResult{Moves: turn}}
				default:
				}
			}
			log.Printf("[Worker %d] search error: %v", workerID, err)
			return PlayGameOutcome{Result: GameResult{Moves: turn}}
		}

		policy := normalizeVisits(decision.Visits)

		move := decision.Move
		if turn < TemperatureMoves {
			if sampled, ok := sampleMove(rng, encoder, state, policy); ok {
				move = sampled
			}
		} else if decision.RootValue < ResignThreshold {
			move = game.ResignMove()
			resigned = true
		}

		if verbose {
			logDecision(workerID, turn, state, move, decision, policy)
		}

		// The training target is the search distribution, recorded even
		// when the game ends by resignation on this turn.
		planesPtr := encoder.StatePlanes(state)
		planes := make([]float32, len(*planesPtr))
		copy(planes, *planesPtr)
		encoder.PutPlanes(planesPtr)

		trainRows = append(trainRows, store.TrainingRow{
			GameID: gameID,
			Turn:   int32(turn),
			Color:  int32(state.NextPlayer()),
			Rows:   int32(boardSize),
			Cols:   int32(boardSize),
			Planes: planes,
			Policy: policy,
			Source: "selfplay",
		})

		archiveRows = append(archiveRows, archiveRow(gameID, turn, state, encoder, move, decision, policy))

		next, err := state.ApplyMove(move)
		if err != nil {
			log.Printf("[Worker %d] apply %s failed: %v", workerID, move, err)
			return PlayGameOutcome{Result: GameResult{Moves: turn}}
		}
		state = next
		turn++

		if onStep != nil {
			onStep()
		}
	}

	winner, result, ok := state.Winner()
	if !ok {
		log.Printf("[Worker %d] finished game has no result", workerID)
		return PlayGameOutcome{Result: GameResult{Moves: turn}}
	}

	// Values are from the perspective of the player to move on each row.
	for i := range trainRows {
		if game.Color(trainRows[i].Color) == winner {
			trainRows[i].Value = 1
		} else {
			trainRows[i].Value = -1
		}
	}
	for i := range archiveRows {
		if game.Color(archiveRows[i].Color) == winner {
			archiveRows[i].Value = 1
		} else {
			archiveRows[i].Value = -1
		}
	}

	if verbose {
		PrintBoard(workerID, turn, state)
		log.Printf("[Worker %d] result: %s in %d moves", workerID, result, turn)
	}

	return PlayGameOutcome{
		Completed:    true,
		TrainingRows: trainRows,
		ArchiveRows:  archiveRows,
		Result: GameResult{
			Winner:   winner,
			Score:    result.String(),
			Moves:    turn,
			Resigned: resigned,
		},
	}
}

func archiveRow(gameID string, turn int, state *game.GameState, encoder *convert.Encoder, move game.Move, decision mcts.Decision, policy []float32) store.ArchiveTurnRow {
	board := state.Board()

	row := store.ArchiveTurnRow{
		GameID:      gameID,
		Turn:        int32(turn),
		Rows:        int32(board.Rows),
		Cols:        int32(board.Cols),
		Color:       int32(state.NextPlayer()),
		Move:        -1,
		PolicyProbs: policy,
		Source:      "selfplay",
	}

	if idx, err := encoder.MoveIndex(move); err == nil {
		row.Move = int32(idx)
	}

	for r := 1; r <= board.Rows; r++ {
		for c := 1; c <= board.Cols; c++ {
			p := game.Point{Row: r, Col: c}
			switch board.ColorAt(p) {
			case game.Black:
				row.BlackRow = append(row.BlackRow, int32(r))
				row.BlackCol = append(row.BlackCol, int32(c))
			case game.White:
				row.WhiteRow = append(row.WhiteRow, int32(r))
				row.WhiteCol = append(row.WhiteCol, int32(c))
			}
		}
	}

	children := make([]store.RootChild, 0, 16)
	for action, n := range decision.Visits {
		if n == 0 {
			continue
		}
		children = append(children, store.RootChild{
			Move: action,
			N:    n,
			Q:    decision.Qs[action],
			P:    decision.Priors[action],
		})
	}
	if data, err := store.EncodeRootChildrenJSON(children); err == nil {
		row.SearchRootJSON = data
	}

	return row
}

// normalizeVisits turns root visit counts into a probability vector.
func normalizeVisits(visits []int32) []float32 {
	policy := make([]float32, len(visits))
	total := int32(0)
	for _, n := range visits {
		total += n
	}
	if total == 0 {
		return policy
	}
	for i, n := range visits {
		policy[i] = float32(n) / float32(total)
	}
	return policy
}

// sampleMove draws an action from the visit distribution restricted to
// moves that are legal in this state, renormalizing over the legal mass.
// It reports false when no weighted action decodes to a legal move, and
// the caller keeps the most-visited move instead.
func sampleMove(rng *rand.Rand, encoder *convert.Encoder, state *game.GameState, policy []float32) (game.Move, bool) {
	type weighted struct {
		move game.Move
		p    float32
	}
	legal := make([]weighted, 0, len(policy))
	total := float32(0)
	for action, p := range policy {
		if p == 0 {
			continue
		}
		move, err := encoder.DecodeMoveIndex(action)
		if err != nil || !state.IsValidMove(move) {
			continue
		}
		legal = append(legal, weighted{move: move, p: p})
		total += p
	}
	if total <= 0 {
		return game.Move{}, false
	}

	r := rng.Float32() * total
	sum := float32(0)
	for _, w := range legal {
		sum += w.p
		if r < sum {
			return w.move, true
		}
	}
	// Float rounding can leave r just past the accumulated sum.
	return legal[len(legal)-1].move, true
}
