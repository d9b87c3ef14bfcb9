package game

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

// Card is one character card. The Deck owns every card for the lifetime of a
// room; players only hold references.
type Card struct {
	ID   string
	Type rules.CardType

	dead  bool
	owner *Player
	deck  *Deck
}

// Owner returns the player holding the card, or nil while it is in the deck.
func (c *Card) Owner() *Player {
	return c.owner
}

// IsDead reports whether the card has been revealed and lost.
func (c *Card) IsDead() bool {
	return c.dead
}

// GiveTo transfers the card into p's hand. Giving a card to its current
// owner is a no-op.
func (c *Card) GiveTo(p *Player) {
	if c.owner == p {
		return
	}
	if c.owner != nil {
		c.owner.dropCard(c)
	}
	c.owner = p
	p.hand = append(p.hand, c)
}

// ReturnToDeck removes the card from its owner and moves it to the bottom of
// the deck.
func (c *Card) ReturnToDeck() {
	if c.owner != nil {
		c.owner.dropCard(c)
		c.owner = nil
	}
	if c.deck != nil {
		c.deck.moveToEnd(c)
	}
}

// Kill marks the card as lost. It never comes back to life.
func (c *Card) Kill() {
	c.dead = true
}

func (c *Card) data() protocol.CardData {
	return protocol.CardData{ID: c.ID, Type: c.Type, IsDead: c.dead}
}

// Deck holds all cards of a room in draw order.
type Deck struct {
	cards []*Card
}

// NewDeck builds the court deck, three of each character, shuffled with rng.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]*Card, 0, rules.DeckSize)}
	for _, cardType := range rules.AllCardTypes {
		for i := 0; i < rules.CopiesPerCardType; i++ {
			d.cards = append(d.cards, &Card{
				ID:   uuid.NewString(),
				Type: cardType,
				deck: d,
			})
		}
	}
	d.shuffle(rng)
	return d
}

// shuffle randomises the draw order. It only runs when the deck is built;
// returned cards go to the bottom instead.
func (d *Deck) shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// All returns every card in the room, held or not.
func (d *Deck) All() []*Card {
	out := make([]*Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Available returns the live cards nobody holds, in draw order.
func (d *Deck) Available() []*Card {
	var out []*Card
	for _, c := range d.cards {
		if c.owner == nil && !c.dead {
			out = append(out, c)
		}
	}
	return out
}

// Peek returns up to n cards from the top of the available pile without
// handing them out.
func (d *Deck) Peek(n int) []*Card {
	available := d.Available()
	if n > len(available) {
		n = len(available)
	}
	return available[:n]
}

// Find looks a card up by id.
func (d *Deck) Find(id string) *Card {
	for _, c := range d.cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (d *Deck) moveToEnd(c *Card) {
	for i, candidate := range d.cards {
		if candidate == c {
			d.cards = append(d.cards[:i], d.cards[i+1:]...)
			break
		}
	}
	d.cards = append(d.cards, c)
}
