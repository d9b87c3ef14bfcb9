package game

import (
	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

// behaviour is the success effect of one action type. apply runs before
// ActionSucceeded is broadcast; followUp runs after it for actions that wait
// on another player's choice.
type behaviour struct {
	apply    func(a *Action)
	followUp func(a *Action)
}

var behaviours = map[rules.ActionType]behaviour{
	rules.ActionIncome: {
		apply: gainCoins(1),
	},
	rules.ActionForeignAid: {
		apply: gainCoins(2),
	},
	rules.ActionTax: {
		apply: gainCoins(3),
	},
	rules.ActionSteal: {
		apply: func(a *Action) {
			stolen := rules.StolenCoins(a.target.Coins())
			a.player.UpdateCoinsBy(stolen)
			a.target.UpdateCoinsBy(-stolen)
			a.room.publish(coinsEvent(a, stolen))
		},
	},
	rules.ActionAssassinate: {
		apply:    payCost,
		followUp: targetLosesCard,
	},
	rules.ActionCoup: {
		apply:    payCost,
		followUp: targetLosesCard,
	},
	rules.ActionExchange: {
		followUp: offerExchange,
	},
}

func gainCoins(n int) func(a *Action) {
	return func(a *Action) {
		a.player.UpdateCoinsBy(n)
		a.room.publish(coinsEvent(a, n))
	}
}

func payCost(a *Action) {
	a.player.UpdateCoinsBy(-a.spec.Cost)
	a.room.publish(coinsEvent(a, -a.spec.Cost))
}

func targetLosesCard(a *Action) {
	a.room.requireCardLoss(a.target, a, a.complete)
}

func offerExchange(a *Action) {
	a.offered = a.room.deck.Peek(rules.ExchangeDrawCount)
	cards := make([]protocol.CardData, 0, len(a.offered))
	for _, c := range a.offered {
		cards = append(cards, c.data())
	}
	a.room.sendTo(a.player, protocol.PlayerMustChooseCards(a.data(), cards))
}

func coinsEvent(a *Action, amount int) rules.Event {
	evt := rules.NewEventWithAmount(rules.EventCoinsChanged, a.room.code, a.player.ID, a.targetID(), amount)
	evt.ActionID = a.ID
	evt.Data = string(a.Type)
	return evt
}
