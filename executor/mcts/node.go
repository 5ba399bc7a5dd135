package mcts

import (
	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/game"
)

// Evaluator produces a move prior distribution and a position value for a
// state. Priors are indexed by the encoder's action space (plays in
// row-major order, then pass) and sum to 1; value is in [-1, 1] from the
// perspective of the player to move in the evaluated state.
type Evaluator interface {
	Evaluate(state *game.GameState) (priors []float32, value float32, err error)
}

// Config holds search hyperparameters.
type Config struct {
	// Cpuct scales the exploration term of the PUCT score.
	Cpuct float32
	// Rounds is the number of simulations per SelectMove call.
	Rounds int
}

// node is one state in the search tree. Nodes live in the arena slice
// owned by a single SelectMove call; parent and children are arena
// indices, so the tree has no pointer cycles and is freed as a whole.
type node struct {
	state    *game.GameState
	value    float32 // from the perspective of state's player to move
	parent   int32   // arena index, -1 at the root
	incoming int     // action index taken from the parent
	terminal bool

	// branches lists the legal action indices in ascending order; the
	// per-action slices are indexed by action, with one slot per board
	// point plus pass. Resign is never a branch.
	branches    []int
	priors      []float32
	visits      []int32
	totals      []float32
	children    []int32
	totalVisits int32
}

const noNode = int32(-1)

// expectedValue returns the mean backed-up value of a branch, zero when
// unvisited.
func (n *node) expectedValue(action int) float32 {
	if n.visits[action] == 0 {
		return 0
	}
	return n.totals[action] / float32(n.visits[action])
}

// MCTS holds the search context.
type MCTS struct {
	Config  Config
	Client  Evaluator
	Encoder *convert.Encoder
}

// Decision is the outcome of one SelectMove call: the chosen move plus
// the root statistics recorded for training.
type Decision struct {
	Move game.Move
	// Visits holds the root visit count per action index.
	Visits []int32
	// Priors holds the evaluator's prior per action index at the root.
	Priors []float32
	// Qs holds the mean backed-up value per root action, zero when
	// unvisited.
	Qs []float32
	// RootValue is the evaluator's value estimate for the root state.
	RootValue float32
}
