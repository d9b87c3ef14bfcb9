package rules

import "fmt"

// ActionStatus is the resolution state of an in-flight action.
type ActionStatus string

const (
	StatusPending                  ActionStatus = "pending"
	StatusAwaitingChallenge        ActionStatus = "awaitingChallenge"
	StatusChallengeSucceeded       ActionStatus = "challengeSucceeded"
	StatusChallengeFailed          ActionStatus = "challengeFailed"
	StatusAwaitingBlock            ActionStatus = "awaitingBlock"
	StatusAwaitingChallengeToBlock ActionStatus = "awaitingChallengeToBlock"
	StatusSucceeded                ActionStatus = "succeeded"
	StatusCompleted                ActionStatus = "completed"
	StatusFailed                   ActionStatus = "failed"
)

// The challenge statuses are shared by the action's own challenge window and
// the challenge window opened against a block.
var actionTransitions = map[ActionStatus][]ActionStatus{
	StatusPending: {
		StatusAwaitingChallenge,
		StatusAwaitingBlock,
		StatusSucceeded,
	},
	StatusAwaitingChallenge: {
		StatusChallengeSucceeded,
		StatusChallengeFailed,
		StatusAwaitingBlock,
		StatusSucceeded,
	},
	StatusChallengeSucceeded: {
		StatusFailed,
		StatusSucceeded,
	},
	StatusChallengeFailed: {
		StatusAwaitingBlock,
		StatusSucceeded,
		StatusFailed,
	},
	StatusAwaitingBlock: {
		StatusAwaitingChallengeToBlock,
		StatusSucceeded,
	},
	StatusAwaitingChallengeToBlock: {
		StatusChallengeSucceeded,
		StatusChallengeFailed,
		StatusFailed,
	},
	StatusSucceeded: {
		StatusCompleted,
	},
}

// Terminal reports whether no further transition is possible.
func (s ActionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	for _, allowed := range actionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal edge.
func ValidateTransition(from, to ActionStatus) error {
	if from.Terminal() {
		return fmt.Errorf("action already %s, cannot move to %s", from, to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal action transition %s -> %s", from, to)
	}
	return nil
}

// RoomStatus is the lifecycle state of a room. It only moves forward.
type RoomStatus string

const (
	RoomWaitingForPlayers RoomStatus = "waitingForPlayers"
	RoomInProgress        RoomStatus = "inProgress"
	RoomOver              RoomStatus = "over"
)

// Started reports whether cards have been dealt.
func (s RoomStatus) Started() bool {
	return s != RoomWaitingForPlayers
}
