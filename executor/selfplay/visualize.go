// visualize.go - Console visualization for debugging self-play games.
package selfplay

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/game"
)

func PrintBoard(workerID, turn int, state *game.GameState) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n=== TRACE Worker %d Turn %d (%v to move) ===\n", workerID, turn, state.NextPlayer()))
	sb.WriteString(state.Board().String())
	log.Print(sb.String())
}

// logDecision prints the chosen move plus the most-visited root
// branches, one line per turn.
func logDecision(workerID, turn int, state *game.GameState, move game.Move, decision mcts.Decision, policy []float32) {
	type branch struct {
		action int
		n      int32
	}
	branches := make([]branch, 0, 8)
	total := int32(0)
	for action, n := range decision.Visits {
		total += n
		if n > 0 {
			branches = append(branches, branch{action, n})
		}
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].n > branches[j].n })
	if len(branches) > 5 {
		branches = branches[:5]
	}

	per := make([]string, 0, len(branches))
	for _, b := range branches {
		pct := float32(0)
		if total > 0 {
			pct = float32(b.n) / float32(total) * 100
		}
		per = append(per, fmt.Sprintf("a%d: N=%d (%.1f%%) Q=%.3f P=%.3f", b.action, b.n, pct, decision.Qs[b.action], decision.Priors[b.action]))
	}

	log.Printf(
		"[Worker %d] Turn %d: %v -> %s | v=%.3f | %s",
		workerID,
		turn,
		state.NextPlayer(),
		move,
		decision.RootValue,
		strings.Join(per, " | "),
	)
}
