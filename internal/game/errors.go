package game

import (
	"errors"
	"fmt"
)

var (
	// ErrNameTaken is returned by AddPlayer when another seat uses the name.
	ErrNameTaken = errors.New("name already taken")
	// ErrGameInProgress is returned by AddPlayer once cards have been dealt.
	ErrGameInProgress = errors.New("game already in progress")
	// ErrRoomFull is returned by AddPlayer when every seat is taken.
	ErrRoomFull = errors.New("room is full")
)

// errIgnored marks late or duplicate responses. They are dropped without
// telling the client.
var errIgnored = errors.New("ignored")

func ignored(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errIgnored, fmt.Sprintf(format, args...))
}

// UnauthorisedError is a rule violation reported back to the offending
// player only.
type UnauthorisedError struct {
	Message string
}

func (e *UnauthorisedError) Error() string {
	return e.Message
}

func unauthorised(format string, args ...any) error {
	return &UnauthorisedError{Message: fmt.Sprintf(format, args...)}
}
