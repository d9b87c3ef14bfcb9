package rules

import "fmt"

// ActionType is one of the seven moves a player may declare on their turn.
type ActionType string

const (
	ActionIncome      ActionType = "Income"
	ActionForeignAid  ActionType = "ForeignAid"
	ActionTax         ActionType = "Tax"
	ActionSteal       ActionType = "Steal"
	ActionAssassinate ActionType = "Assassinate"
	ActionExchange    ActionType = "Exchange"
	ActionCoup        ActionType = "Coup"
)

// CoupThreshold is the coin count at which Coup becomes mandatory.
const CoupThreshold = 10

// MaxStolenCoins is the most a single Steal can take.
const MaxStolenCoins = 2

// ExchangeDrawCount is how many deck cards an Exchange offers.
const ExchangeDrawCount = 2

// BlockScope describes who may block an action.
type BlockScope int

const (
	// BlockNone means the action cannot be blocked.
	BlockNone BlockScope = iota
	// BlockAnyone lets any other player still in the game block.
	BlockAnyone
	// BlockTarget lets only the targeted player block.
	BlockTarget
)

func (s BlockScope) String() string {
	switch s {
	case BlockNone:
		return "none"
	case BlockAnyone:
		return "anyone"
	case BlockTarget:
		return "target"
	default:
		return fmt.Sprintf("BLOCK_SCOPE_%d", int(s))
	}
}

// ActionSpec is the static rule set of one action type.
type ActionSpec struct {
	Type ActionType
	// ClaimedCard is the card whose possession can be challenged. Empty means
	// the action is not challengeable.
	ClaimedCard    CardType
	Blockable      BlockScope
	BlockCards     []CardType
	RequiresTarget bool
	// Cost is the number of coins the actor must hold to declare the action.
	Cost int
	// CompletesOnSuccess is false for actions that wait for a follow-up choice
	// (a card loss or an exchange) before completing.
	CompletesOnSuccess bool
}

var actionSpecs = map[ActionType]ActionSpec{
	ActionIncome: {
		Type:               ActionIncome,
		CompletesOnSuccess: true,
	},
	ActionForeignAid: {
		Type:               ActionForeignAid,
		Blockable:          BlockAnyone,
		BlockCards:         []CardType{CardDuke},
		CompletesOnSuccess: true,
	},
	ActionTax: {
		Type:               ActionTax,
		ClaimedCard:        CardDuke,
		CompletesOnSuccess: true,
	},
	ActionSteal: {
		Type:               ActionSteal,
		ClaimedCard:        CardCaptain,
		Blockable:          BlockTarget,
		BlockCards:         []CardType{CardCaptain, CardAmbassador},
		RequiresTarget:     true,
		CompletesOnSuccess: true,
	},
	ActionAssassinate: {
		Type:           ActionAssassinate,
		ClaimedCard:    CardAssassin,
		Blockable:      BlockTarget,
		BlockCards:     []CardType{CardContessa},
		RequiresTarget: true,
		Cost:           3,
	},
	ActionExchange: {
		Type: ActionExchange,
	},
	ActionCoup: {
		Type:           ActionCoup,
		RequiresTarget: true,
		Cost:           7,
	},
}

// AllActionTypes lists the action types in rulebook order.
var AllActionTypes = []ActionType{
	ActionIncome,
	ActionForeignAid,
	ActionTax,
	ActionSteal,
	ActionAssassinate,
	ActionExchange,
	ActionCoup,
}

// LookupAction returns the rule set for an action type.
func LookupAction(t ActionType) (ActionSpec, bool) {
	spec, ok := actionSpecs[t]
	return spec, ok
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	_, ok := actionSpecs[t]
	return ok
}

// Challengeable reports whether the actor's card claim can be challenged.
func (s ActionSpec) Challengeable() bool {
	return s.ClaimedCard != ""
}

// CanBlockWith reports whether claiming card c blocks this action.
func (s ActionSpec) CanBlockWith(c CardType) bool {
	if s.Blockable == BlockNone {
		return false
	}
	for _, allowed := range s.BlockCards {
		if allowed == c {
			return true
		}
	}
	return false
}

// MustCoup reports whether a player holding coins is forced to Coup.
func MustCoup(coins int) bool {
	return coins >= CoupThreshold
}

// StolenCoins returns how many coins a Steal takes from a target holding
// targetCoins. It never exceeds what the target holds.
func StolenCoins(targetCoins int) int {
	if targetCoins <= 0 {
		return 0
	}
	if targetCoins < MaxStolenCoins {
		return targetCoins
	}
	return MaxStolenCoins
}
