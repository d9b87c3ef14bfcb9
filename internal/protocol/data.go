// Package protocol defines the JSON messages exchanged with game clients and
// the data projections of room state they carry.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coupgame/coup-server-go/internal/game/rules"
)

// CardData is the wire projection of a card.
type CardData struct {
	ID     string         `json:"id"`
	Type   rules.CardType `json:"type"`
	IsDead bool           `json:"isDead"`
}

// PlayerData is the public projection of a player. Hidden cards are only
// counted; revealed (dead) cards are listed.
type PlayerData struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Coins        int        `json:"coins"`
	IsActive     bool       `json:"isActive"`
	IsEliminated bool       `json:"isEliminated"`
	CardCount    int        `json:"cardCount"`
	DeadCards    []CardData `json:"deadCards"`
}

// Blockers describes who may block an action: anyone, or one player.
type Blockers struct {
	Anyone bool
	Player *PlayerData
}

const anyoneBlocker = "anyone"

// AnyoneMayBlock returns Blockers allowing every other player to block.
func AnyoneMayBlock() *Blockers {
	return &Blockers{Anyone: true}
}

// OnlyMayBlock returns Blockers naming a single player.
func OnlyMayBlock(p PlayerData) *Blockers {
	return &Blockers{Player: &p}
}

// MarshalJSON encodes "anyone" as a string and a single player as an object.
func (b Blockers) MarshalJSON() ([]byte, error) {
	if b.Anyone {
		return json.Marshal(anyoneBlocker)
	}
	if b.Player == nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.Player)
}

// UnmarshalJSON accepts either the string "anyone" or a player object.
func (b *Blockers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != anyoneBlocker {
			return fmt.Errorf("unknown blocker %q", s)
		}
		*b = Blockers{Anyone: true}
		return nil
	}
	var p PlayerData
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Blockers{Player: &p}
	return nil
}

// ActionData is the wire projection of an in-flight action.
type ActionData struct {
	ID              string             `json:"id"`
	Status          rules.ActionStatus `json:"status"`
	Type            rules.ActionType   `json:"type"`
	Player          PlayerData         `json:"player"`
	Target          *PlayerData        `json:"target,omitempty"`
	ChallengeBefore *time.Time         `json:"challengeBefore,omitempty"`
	BlockBefore     *time.Time         `json:"blockBefore,omitempty"`
	CanBeBlockedBy  *Blockers          `json:"canBeBlockedBy,omitempty"`
	BlockedWith     rules.CardType     `json:"blockedWith,omitempty"`
	Blocker         *PlayerData        `json:"blocker,omitempty"`
	Challenger      *PlayerData        `json:"challenger,omitempty"`
}

// RoomData is the full public room snapshot sent with every message.
type RoomData struct {
	Status         rules.RoomStatus `json:"status"`
	Code           string           `json:"code"`
	MinimumPlayers int              `json:"minimumPlayers"`
	MaximumPlayers int              `json:"maximumPlayers"`
	Creator        *PlayerData      `json:"creator,omitempty"`
	Players        []PlayerData     `json:"players"`
	ActivePlayer   *PlayerData      `json:"activePlayer,omitempty"`
	Winner         *PlayerData      `json:"winner,omitempty"`
	CurrentAction  *ActionData      `json:"currentAction,omitempty"`
}

// Context is the per-recipient snapshot attached to every server message.
type Context struct {
	RoomData
	You PlayerData `json:"you"`
}
