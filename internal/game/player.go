package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

// Conn delivers messages to one client. Implementations must not block.
type Conn interface {
	Send(env protocol.Envelope) error
}

// Player is a seat at a room. All methods must be called while the owning
// room's lock is held.
type Player struct {
	ID   string
	Name string

	conn   Conn
	room   *Room
	hand   []*Card
	coins  int
	active bool
}

// NewPlayer creates an unseated player talking over conn.
func NewPlayer(name string, conn Conn) *Player {
	return &Player{
		ID:   uuid.NewString(),
		Name: strings.TrimSpace(name),
		conn: conn,
	}
}

// Coins returns the player's coin balance.
func (p *Player) Coins() int {
	return p.coins
}

// UpdateCoinsBy adjusts the balance. No floor is enforced here; callers check
// sufficiency before spending.
func (p *Player) UpdateCoinsBy(delta int) {
	p.coins += delta
}

// Hand returns the cards the player holds, dead or alive.
func (p *Player) Hand() []*Card {
	out := make([]*Card, len(p.hand))
	copy(out, p.hand)
	return out
}

// LiveCards returns the cards that have not been lost.
func (p *Player) LiveCards() []*Card {
	var out []*Card
	for _, c := range p.hand {
		if !c.dead {
			out = append(out, c)
		}
	}
	return out
}

// HasLive reports whether the player holds an unrevealed card of type t.
func (p *Player) HasLive(t rules.CardType) bool {
	return p.liveCardOfType(t) != nil
}

func (p *Player) liveCardOfType(t rules.CardType) *Card {
	for _, c := range p.hand {
		if !c.dead && c.Type == t {
			return c
		}
	}
	return nil
}

// GiveCards puts cards into the player's hand.
func (p *Player) GiveCards(cards ...*Card) {
	for _, c := range cards {
		c.GiveTo(p)
	}
}

// RemoveCards returns cards from the player's hand to the deck.
func (p *Player) RemoveCards(cards ...*Card) {
	for _, c := range cards {
		if c.owner == p {
			c.ReturnToDeck()
		}
	}
}

// KillCard reveals and loses a live card the player holds.
func (p *Player) KillCard(c *Card) error {
	if c == nil || c.owner != p {
		return fmt.Errorf("card not held by %s", p.Name)
	}
	if c.dead {
		return fmt.Errorf("card %s already lost", c.ID)
	}
	c.Kill()
	return nil
}

// FindCard returns the card with the given id if the player holds it.
func (p *Player) FindCard(id string) *Card {
	for _, c := range p.hand {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// IsActive reports whether it is this player's turn.
func (p *Player) IsActive() bool {
	return p.active
}

// IsEliminated is true once the game has started and every held card is dead.
func (p *Player) IsEliminated() bool {
	if p.room == nil || !p.room.status.Started() {
		return false
	}
	for _, c := range p.hand {
		if !c.dead {
			return false
		}
	}
	return true
}

func (p *Player) dropCard(c *Card) {
	for i, held := range p.hand {
		if held == c {
			p.hand = append(p.hand[:i], p.hand[i+1:]...)
			return
		}
	}
}

func (p *Player) data() protocol.PlayerData {
	dead := make([]protocol.CardData, 0)
	for _, c := range p.hand {
		if c.dead {
			dead = append(dead, c.data())
		}
	}
	return protocol.PlayerData{
		ID:           p.ID,
		Name:         p.Name,
		Coins:        p.coins,
		IsActive:     p.active,
		IsEliminated: p.IsEliminated(),
		CardCount:    len(p.hand),
		DeadCards:    dead,
	}
}

func (p *Player) handData() []protocol.CardData {
	hand := make([]protocol.CardData, 0, len(p.hand))
	for _, c := range p.hand {
		hand = append(hand, c.data())
	}
	return hand
}

func (p *Player) dataPtr() *protocol.PlayerData {
	d := p.data()
	return &d
}
