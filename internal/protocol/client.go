package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coupgame/coup-server-go/internal/game/rules"
)

// MessageType names a message kind on the wire.
type MessageType string

// Client to server message kinds.
const (
	TypeJoinGame            MessageType = "JoinGame"
	TypeLeaveGame           MessageType = "LeaveGame"
	TypeStartGame           MessageType = "StartGame"
	TypeTakeAction          MessageType = "TakeAction"
	TypeChallengeAction     MessageType = "ChallengeAction"
	TypeSkipChallengeAction MessageType = "SkipChallengeAction"
	TypeBlockAction         MessageType = "BlockAction"
	TypeConfirmAction       MessageType = "ConfirmAction"
	TypeLoseCard            MessageType = "LoseCard"
	TypeChooseCards         MessageType = "ChooseCards"
)

// ErrInvalidMessage wraps every decoding and shape validation failure.
var ErrInvalidMessage = errors.New("invalid message")

// MaxNameLength bounds player display names.
const MaxNameLength = 32

// ClientMessage is a decoded, shape-validated message from a client.
type ClientMessage interface {
	MessageType() MessageType
	Validate() error
}

// PlayerRef identifies a player by id.
type PlayerRef struct {
	ID string `json:"id"`
}

// CardRef identifies a card by id.
type CardRef struct {
	ID string `json:"id"`
}

// ActionRef identifies the action a response is aimed at.
type ActionRef struct {
	ID   string           `json:"id"`
	Type rules.ActionType `json:"type,omitempty"`
}

func (r ActionRef) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("action.id is required")
	}
	return nil
}

// JoinGame asks to be seated in the room with the given code, creating it if needed.
type JoinGame struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

func (JoinGame) MessageType() MessageType { return TypeJoinGame }

func (m JoinGame) Validate() error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name longer than %d characters", MaxNameLength)
	}
	if strings.TrimSpace(m.Room) == "" {
		return errors.New("room is required")
	}
	return nil
}

type LeaveGame struct{}

func (LeaveGame) MessageType() MessageType { return TypeLeaveGame }
func (LeaveGame) Validate() error { return nil }

type StartGame struct{}

func (StartGame) MessageType() MessageType { return TypeStartGame }
func (StartGame) Validate() error { return nil }

// ActionRequest is the move a player declares in TakeAction.
type ActionRequest struct {
	Type   rules.ActionType `json:"type"`
	Target *PlayerRef       `json:"target,omitempty"`
}

type TakeAction struct {
	Action ActionRequest `json:"action"`
}

func (TakeAction) MessageType() MessageType { return TypeTakeAction }

func (m TakeAction) Validate() error {
	spec, ok := rules.LookupAction(m.Action.Type)
	if !ok {
		return fmt.Errorf("unknown action type %q, expected one of %v", m.Action.Type, rules.AllActionTypes)
	}
	if spec.RequiresTarget && (m.Action.Target == nil || m.Action.Target.ID == "") {
		return fmt.Errorf("%s requires action.target.id", m.Action.Type)
	}
	return nil
}

type ChallengeAction struct {
	Action ActionRef `json:"action"`
}

func (ChallengeAction) MessageType() MessageType { return TypeChallengeAction }
func (m ChallengeAction) Validate() error { return m.Action.validate() }

type SkipChallengeAction struct {
	Action ActionRef `json:"action"`
}

func (SkipChallengeAction) MessageType() MessageType { return TypeSkipChallengeAction }
func (m SkipChallengeAction) Validate() error { return m.Action.validate() }

type BlockAction struct {
	With   rules.CardType `json:"with"`
	Action ActionRef      `json:"action"`
}

func (BlockAction) MessageType() MessageType { return TypeBlockAction }

func (m BlockAction) Validate() error {
	if _, err := rules.ParseCardType(string(m.With)); err != nil {
		return err
	}
	return m.Action.validate()
}

// ConfirmAction lets an eligible blocker allow the action without blocking.
type ConfirmAction struct {
	Action ActionRef `json:"action"`
}

func (ConfirmAction) MessageType() MessageType { return TypeConfirmAction }
func (m ConfirmAction) Validate() error { return m.Action.validate() }

type LoseCard struct {
	Card   CardRef   `json:"card"`
	Action ActionRef `json:"action"`
}

func (LoseCard) MessageType() MessageType { return TypeLoseCard }

func (m LoseCard) Validate() error {
	if strings.TrimSpace(m.Card.ID) == "" {
		return errors.New("card.id is required")
	}
	return m.Action.validate()
}

type ChooseCards struct {
	ChosenCards   []CardRef `json:"chosenCards"`
	ReturnedCards []CardRef `json:"returnedCards"`
}

func (ChooseCards) MessageType() MessageType { return TypeChooseCards }

func (m ChooseCards) Validate() error {
	if m.ChosenCards == nil || m.ReturnedCards == nil {
		return errors.New("chosenCards and returnedCards are required")
	}
	seen := make(map[string]bool)
	for _, ref := range append(append([]CardRef{}, m.ChosenCards...), m.ReturnedCards...) {
		if ref.ID == "" {
			return errors.New("card id is required")
		}
		if seen[ref.ID] {
			return fmt.Errorf("card %s listed twice", ref.ID)
		}
		seen[ref.ID] = true
	}
	return nil
}

type rawMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses and validates a client message. Every error wraps
// ErrInvalidMessage.
func Decode(data []byte) (ClientMessage, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	payload := bytes.TrimSpace(raw.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: %s payload must be an object", ErrInvalidMessage, raw.Type)
	}

	var msg ClientMessage
	switch raw.Type {
	case TypeJoinGame:
		msg = &JoinGame{}
	case TypeLeaveGame:
		msg = &LeaveGame{}
	case TypeStartGame:
		msg = &StartGame{}
	case TypeTakeAction:
		msg = &TakeAction{}
	case TypeChallengeAction:
		msg = &ChallengeAction{}
	case TypeSkipChallengeAction:
		msg = &SkipChallengeAction{}
	case TypeBlockAction:
		msg = &BlockAction{}
	case TypeConfirmAction:
		msg = &ConfirmAction{}
	case TypeLoseCard:
		msg = &LoseCard{}
	case TypeChooseCards:
		msg = &ChooseCards{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, raw.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, raw.Type, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, raw.Type, err)
	}
	return msg, nil
}
