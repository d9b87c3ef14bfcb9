package rules

import "fmt"

// CardType identifies one of the five character cards.
type CardType string

const (
	CardDuke       CardType = "duke"
	CardCaptain    CardType = "captain"
	CardAssassin   CardType = "assassin"
	CardAmbassador CardType = "ambassador"
	CardContessa   CardType = "contessa"
)

// CopiesPerCardType is how many cards of each type the court deck holds.
const CopiesPerCardType = 3

// AllCardTypes lists the card types in deck construction order.
var AllCardTypes = []CardType{
	CardDuke,
	CardCaptain,
	CardAssassin,
	CardAmbassador,
	CardContessa,
}

// DeckSize is the total number of cards in play.
var DeckSize = len(AllCardTypes) * CopiesPerCardType

// Valid reports whether c is a known card type.
func (c CardType) Valid() bool {
	for _, known := range AllCardTypes {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCardType converts a wire value into a CardType.
func ParseCardType(value string) (CardType, error) {
	c := CardType(value)
	if !c.Valid() {
		return "", fmt.Errorf("unknown card type %q", value)
	}
	return c, nil
}
