// Package mcts implements PUCT tree search over immutable game states,
// guided by an external policy/value evaluator.
package mcts

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sente-go/sente/game"
)

// ErrNoLegalMove is returned when SelectMove is asked to move in a
// finished game.
var ErrNoLegalMove = errors.New("no legal move available")

// SelectMove runs the configured number of simulation rounds from state
// and returns the most-visited legal root move. Each round selects a
// path by PUCT score, expands one new leaf with an evaluator call, and
// backs the leaf value up to the root with alternating sign. The tree is
// local to the call; nothing is reused between calls.
//
// An evaluator failure aborts the whole call: a partially built tree is
// not trusted for a move decision.
func (m *MCTS) SelectMove(ctx context.Context, state *game.GameState) (Decision, error) {
	if state.IsOver() {
		return Decision{}, ErrNoLegalMove
	}

	rounds := m.Config.Rounds
	if rounds <= 0 {
		rounds = 1
	}

	nodes := make([]node, 0, rounds+1)
	root, err := m.newNode(state, noNode, 0)
	if err != nil {
		return Decision{}, err
	}
	nodes = append(nodes, root)

	for i := 0; i < rounds; i++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return Decision{}, ctx.Err()
			default:
			}
		}

		// Selection: descend while the best branch already has a child.
		idx := int32(0)
		for {
			n := &nodes[idx]
			if n.terminal || len(n.branches) == 0 {
				// Revisiting a terminal state: back its value up again.
				break
			}
			action := m.selectBranch(n)
			child := n.children[action]
			if child == noNode {
				// Expansion: apply the chosen move and evaluate the
				// resulting state once.
				next, err := n.state.ApplyMove(m.decode(action))
				if err != nil {
					return Decision{}, fmt.Errorf("expand: %w", err)
				}
				leaf, err := m.newNode(next, idx, action)
				if err != nil {
					return Decision{}, err
				}
				nodes = append(nodes, leaf)
				childIdx := int32(len(nodes) - 1)
				nodes[idx].children[action] = childIdx
				idx = childIdx
				break
			}
			idx = child
		}

		// Backup: negate at every step so each node's totals stay in its
		// own mover's perspective.
		value := nodes[idx].value
		for nodes[idx].parent != noNode {
			parent := nodes[idx].parent
			action := nodes[idx].incoming
			value = -value
			nodes[parent].totals[action] += value
			nodes[parent].visits[action]++
			nodes[parent].totalVisits++
			idx = parent
		}
	}

	return m.decide(&nodes[0], state)
}

// selectBranch returns the action maximizing the PUCT score
// Q + c * P * sqrt(N_total) / (1 + N). Ties go to the lowest action
// index, which makes the search deterministic for a fixed evaluator.
func (m *MCTS) selectBranch(n *node) int {
	sqrtTotal := float32(math.Sqrt(float64(n.totalVisits)))

	best := n.branches[0]
	bestScore := float32(math.Inf(-1))
	for _, action := range n.branches {
		q := n.expectedValue(action)
		u := m.Config.Cpuct * n.priors[action] * sqrtTotal / (1 + float32(n.visits[action]))
		if score := q + u; score > bestScore {
			bestScore = score
			best = action
		}
	}
	return best
}

// newNode evaluates state and builds its tree node. Terminal states get
// an exact value and no branches instead of an evaluator call.
func (m *MCTS) newNode(state *game.GameState, parent int32, incoming int) (node, error) {
	numMoves := m.Encoder.NumMoves()
	n := node{
		state:    state,
		parent:   parent,
		incoming: incoming,
		priors:   make([]float32, numMoves),
		visits:   make([]int32, numMoves),
		totals:   make([]float32, numMoves),
		children: make([]int32, numMoves),
	}
	for i := range n.children {
		n.children[i] = noNode
	}

	if state.IsOver() {
		n.terminal = true
		winner, _, _ := state.Winner()
		if winner == state.NextPlayer() {
			n.value = 1
		} else {
			n.value = -1
		}
		return n, nil
	}

	priors, value, err := m.Client.Evaluate(state)
	if err != nil {
		return node{}, fmt.Errorf("evaluate state: %w", err)
	}
	if len(priors) != numMoves {
		return node{}, fmt.Errorf("evaluator returned %d priors, want %d", len(priors), numMoves)
	}
	copy(n.priors, priors)
	n.value = value

	for _, move := range state.LegalMoves() {
		if move.IsResign() {
			continue
		}
		action, err := m.Encoder.MoveIndex(move)
		if err != nil {
			return node{}, err
		}
		n.branches = append(n.branches, action)
	}
	return n, nil
}

// decide picks the most-visited root action that is still legal in the
// root state. Legality is re-checked against the root's own history so a
// branch that only looks legal in some explored fork can never be
// returned.
func (m *MCTS) decide(root *node, state *game.GameState) (Decision, error) {
	visits := make([]int32, len(root.visits))
	copy(visits, root.visits)
	priors := make([]float32, len(root.priors))
	copy(priors, root.priors)
	qs := make([]float32, len(root.visits))
	for _, action := range root.branches {
		qs[action] = root.expectedValue(action)
	}

	best := -1
	var bestVisits int32 = -1
	for _, action := range root.branches {
		if root.visits[action] <= bestVisits {
			continue
		}
		if !state.IsValidMove(m.decode(action)) {
			continue
		}
		best = action
		bestVisits = root.visits[action]
	}
	if best < 0 {
		return Decision{}, ErrNoLegalMove
	}

	return Decision{
		Move:      m.decode(best),
		Visits:    visits,
		Priors:    priors,
		Qs:        qs,
		RootValue: root.value,
	}, nil
}

// decode maps an action index back to a move. Indices always come from
// the encoder, so failure here is a programming error.
func (m *MCTS) decode(action int) game.Move {
	move, err := m.Encoder.DecodeMoveIndex(action)
	if err != nil {
		panic(err)
	}
	return move
}
