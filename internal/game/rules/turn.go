package rules

import "strings"

// TurnManager tracks the active player and turn progression over a fixed
// seat order.
type TurnManager struct {
	turnNumber   int
	activePlayer string
}

// NewTurnManager creates a turn manager with no active player.
func NewTurnManager() *TurnManager {
	return &TurnManager{}
}

// Start makes first the active player of turn 1.
func (tm *TurnManager) Start(first string) {
	tm.turnNumber = 1
	tm.activePlayer = strings.TrimSpace(first)
}

// TurnNumber returns the current turn number (1-based, 0 before Start).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// ActivePlayer returns the player who currently has the turn.
func (tm *TurnManager) ActivePlayer() string {
	return tm.activePlayer
}

// Advance rotates the turn to the next seat still in the game. seats is the
// join order; stillIn reports whether a seat may take a turn. When the active
// player is no longer in the game the turn goes to the first seat still in.
// The returned bool is false when nobody can take a turn.
func (tm *TurnManager) Advance(seats []string, stillIn func(id string) bool) (string, bool) {
	next, ok := NextActive(seats, tm.activePlayer, stillIn)
	if !ok {
		return "", false
	}
	tm.activePlayer = next
	tm.turnNumber++
	return next, true
}

// NextActive returns the seat that follows current in round-robin order,
// skipping seats that are not still in.
func NextActive(seats []string, current string, stillIn func(id string) bool) (string, bool) {
	var in []string
	for _, id := range seats {
		if stillIn(id) {
			in = append(in, id)
		}
	}
	if len(in) == 0 {
		return "", false
	}

	idx := -1
	for i, id := range in {
		if id == current {
			idx = i
			break
		}
	}
	if idx == -1 {
		return in[0], true
	}
	return in[(idx+1)%len(in)], true
}
