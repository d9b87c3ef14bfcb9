package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

func TestAddPlayerBroadcastsAndSetsCreator(t *testing.T) {
	h := newRoomHarness(t, "Ada")
	ada := h.player(0)
	bo := h.join("Bo")

	assert.Equal(t, ada, h.room.creator)
	env, ok := h.conn(ada).last(protocol.TypeNewPlayer)
	require.True(t, ok)
	assert.Equal(t, bo.ID, env.Payload.(protocol.PlayerPayload).Player.ID)
	require.NotNil(t, env.Context)
	assert.Equal(t, ada.ID, env.Context.You.ID)
	assert.Len(t, env.Context.Players, 2)
	assert.Equal(t, 2, h.room.PlayerCount())
}

func TestAddPlayerRejectsDuplicateName(t *testing.T) {
	h := newRoomHarness(t, "Ada")

	conn := &recordingConn{}
	dup := NewPlayer("ada", conn)
	err := h.room.AddPlayer(dup)

	assert.ErrorIs(t, err, ErrNameTaken)
	_, ok := conn.last(protocol.TypeNameAlreadyTaken)
	assert.True(t, ok)
	assert.Equal(t, 1, h.room.PlayerCount())
}

func TestAddPlayerRejectsFullOrStartedRoom(t *testing.T) {
	settings := DefaultSettings()
	settings.MaximumPlayers = 2
	room := NewRoom("FULL", zaptest.NewLogger(t), WithSettings(settings), WithRand(rand.New(rand.NewSource(1))))

	ada := NewPlayer("Ada", &recordingConn{})
	require.NoError(t, room.AddPlayer(ada))
	require.NoError(t, room.AddPlayer(NewPlayer("Bo", &recordingConn{})))
	assert.ErrorIs(t, room.AddPlayer(NewPlayer("Cy", &recordingConn{})), ErrRoomFull)

	room.HandleMessage(ada, &protocol.StartGame{})
	require.Equal(t, rules.RoomInProgress, room.Status())
	assert.ErrorIs(t, room.AddPlayer(NewPlayer("Di", &recordingConn{})), ErrGameInProgress)
}

func TestStartGameOnlyCreator(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	bo := h.player(1)

	h.send(bo, &protocol.StartGame{})

	h.requireUnauthorised(bo, "Only the creator")
	assert.Equal(t, rules.RoomWaitingForPlayers, h.room.status)
}

func TestStartGameNeedsMinimumPlayers(t *testing.T) {
	h := newRoomHarness(t, "Ada")
	ada := h.player(0)

	h.send(ada, &protocol.StartGame{})

	h.requireUnauthorised(ada, "Current: 1. Needs: 2.")
	assert.Equal(t, rules.RoomWaitingForPlayers, h.room.status)
}

func TestStartGameDealsCardsAndCoins(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo", "Cy")

	h.send(h.player(0), &protocol.StartGame{})

	assert.Equal(t, rules.RoomInProgress, h.room.status)
	require.NotNil(t, h.room.active)
	for _, p := range h.players {
		assert.Len(t, p.Hand(), 2)
		assert.Len(t, p.LiveCards(), 2)
		assert.Equal(t, 2, p.Coins())

		conn := h.conn(p)
		hand, ok := conn.last(protocol.TypeNewHand)
		require.True(t, ok)
		assert.Len(t, hand.Payload.(protocol.HandPayload).Hand, 2)
		_, ok = conn.last(protocol.TypeGameStarted)
		assert.True(t, ok)
		turn, ok := conn.last(protocol.TypeNewTurn)
		require.True(t, ok)
		assert.Equal(t, h.room.active.ID, turn.Payload.(protocol.PlayerPayload).Player.ID)
	}
	assert.Len(t, h.room.deck.Available(), rules.DeckSize-6)

	h.send(h.player(0), &protocol.StartGame{})
	h.requireUnauthorised(h.player(0), "already started")
}

func TestTakeActionValidation(t *testing.T) {
	hands := [][]rules.CardType{
		{rules.CardDuke, rules.CardCaptain},
		{rules.CardContessa, rules.CardAssassin},
	}

	t.Run("not your turn", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		h.start(h.player(0), hands...)
		bo := h.player(1)

		assert.Nil(t, h.takeAction(bo, rules.ActionIncome, nil))
		h.requireUnauthorised(bo, "not your turn")
	})

	t.Run("must coup with ten coins", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		ada := h.player(0)
		h.start(ada, hands...)
		h.setCoins(ada, 10)

		assert.Nil(t, h.takeAction(ada, rules.ActionIncome, nil))
		h.requireUnauthorised(ada, "must coup")
		assert.Equal(t, 10, ada.Coins())
	})

	t.Run("assassinate needs three coins", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		ada := h.player(0)
		h.start(ada, hands...)

		assert.Nil(t, h.takeAction(ada, rules.ActionAssassinate, h.player(1)))
		h.requireUnauthorised(ada, "You need 3 but only have 2")
		assert.Nil(t, h.room.currentAction)
	})

	t.Run("coup needs seven coins", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		ada := h.player(0)
		h.start(ada, hands...)
		h.setCoins(ada, 6)

		assert.Nil(t, h.takeAction(ada, rules.ActionCoup, h.player(1)))
		h.requireUnauthorised(ada, "enough coins to coup")
	})

	t.Run("cannot target yourself", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		ada := h.player(0)
		h.start(ada, hands...)
		h.setCoins(ada, 7)

		assert.Nil(t, h.takeAction(ada, rules.ActionCoup, ada))
		h.requireUnauthorised(ada, "target yourself")
	})

	t.Run("cannot target an eliminated player", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo", "Cy")
		ada, bo := h.player(0), h.player(1)
		h.start(ada, append(hands, []rules.CardType{rules.CardAmbassador, rules.CardDuke})...)
		for _, c := range bo.Hand() {
			c.Kill()
		}

		assert.Nil(t, h.takeAction(ada, rules.ActionSteal, bo))
		h.requireUnauthorised(ada, "out of the game")
	})

	t.Run("one action at a time", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		ada := h.player(0)
		h.start(ada, hands...)

		first := h.takeAction(ada, rules.ActionTax, nil)
		require.NotNil(t, first)
		h.takeAction(ada, rules.ActionIncome, nil)

		h.requireUnauthorised(ada, "still being resolved")
		assert.Equal(t, first, h.room.currentAction)
	})

	t.Run("not before the game starts", func(t *testing.T) {
		h := newRoomHarness(t, "Ada", "Bo")
		ada := h.player(0)

		h.takeAction(ada, rules.ActionIncome, nil)
		h.requireUnauthorised(ada, "not in progress")
	})
}

func TestTurnOrderSkipsEliminatedPlayers(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo", "Cy")
	ada, bo, cy := h.player(0), h.player(1), h.player(2)
	h.start(ada,
		[]rules.CardType{rules.CardDuke, rules.CardCaptain},
		[]rules.CardType{rules.CardContessa, rules.CardAssassin},
		[]rules.CardType{rules.CardAmbassador, rules.CardDuke},
	)
	for _, c := range bo.Hand() {
		c.Kill()
	}

	h.takeAction(ada, rules.ActionIncome, nil)
	assert.Equal(t, cy, h.room.active)

	h.takeAction(cy, rules.ActionIncome, nil)
	assert.Equal(t, ada, h.room.active)
	assert.True(t, ada.IsActive())
	assert.False(t, cy.IsActive())
}

func TestLoseCardRejectsUnknownCard(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	ada, bo := h.player(0), h.player(1)
	h.start(ada,
		[]rules.CardType{rules.CardContessa, rules.CardCaptain},
		[]rules.CardType{rules.CardDuke, rules.CardAssassin},
	)

	a := h.takeAction(ada, rules.ActionTax, nil)
	h.send(bo, &protocol.ChallengeAction{Action: protocol.ActionRef{ID: a.ID}})
	require.Equal(t, rules.StatusChallengeSucceeded, a.Status())

	h.send(ada, &protocol.LoseCard{Card: protocol.CardRef{ID: bo.Hand()[0].ID}, Action: protocol.ActionRef{ID: a.ID}})
	h.requireUnauthorised(ada, "not in your hand")
	assert.Len(t, ada.LiveCards(), 2)

	h.loseCard(bo, bo.Hand()[0], a)
	h.requireUnauthorised(bo, "do not have to lose")
	assert.Len(t, bo.LiveCards(), 2)
}

func TestCoupEliminationEndsGame(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	ada, bo := h.player(0), h.player(1)
	h.start(ada,
		[]rules.CardType{rules.CardDuke, rules.CardCaptain},
		[]rules.CardType{rules.CardContessa, rules.CardAssassin},
	)
	h.setCoins(ada, 7)
	bo.Hand()[0].Kill()

	a := h.takeAction(ada, rules.ActionCoup, bo)
	require.NotNil(t, a)
	assert.Equal(t, rules.StatusSucceeded, a.Status())
	assert.Equal(t, 0, ada.Coins())
	assert.Equal(t, bo.ID, h.mustLoseCard(bo).Player.ID)

	h.loseCard(bo, bo.LiveCards()[0], a)

	assert.Equal(t, rules.StatusCompleted, a.Status())
	assert.True(t, bo.IsEliminated())
	assert.Equal(t, rules.RoomOver, h.room.status)
	for _, p := range h.players {
		env, ok := h.conn(p).last(protocol.TypeGameOver)
		require.True(t, ok)
		assert.Equal(t, ada.ID, env.Payload.(protocol.GameOverPayload).Winner.ID)
	}
	assertValidHistory(t, a)

	h.takeAction(ada, rules.ActionIncome, nil)
	h.requireUnauthorised(ada, "not in progress")
}

func TestRemovePlayerEndsGameAndEmptiesRoom(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	ada, bo := h.player(0), h.player(1)
	h.start(ada,
		[]rules.CardType{rules.CardDuke, rules.CardCaptain},
		[]rules.CardType{rules.CardContessa, rules.CardAssassin},
	)

	emptied := 0
	h.room.OnEmpty(func() { emptied++ })

	h.room.RemovePlayer(bo)

	assert.Equal(t, rules.RoomOver, h.room.status)
	_, ok := h.conn(ada).last(protocol.TypePlayerLeft)
	assert.True(t, ok)
	env, ok := h.conn(ada).last(protocol.TypeGameOver)
	require.True(t, ok)
	assert.Equal(t, ada.ID, env.Payload.(protocol.GameOverPayload).Winner.ID)
	assert.Len(t, h.room.deck.Available(), rules.DeckSize-2, "leaver's cards are back in the deck")
	assert.Equal(t, 0, emptied)

	h.room.RemovePlayer(ada)
	h.room.RemovePlayer(ada)
	assert.Equal(t, 1, emptied)
	assert.Equal(t, 0, h.room.PlayerCount())
}

func TestRemoveActivePlayerPassesTurn(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo", "Cy")
	ada, bo, cy := h.player(0), h.player(1), h.player(2)
	h.start(bo,
		[]rules.CardType{rules.CardDuke, rules.CardCaptain},
		[]rules.CardType{rules.CardContessa, rules.CardAssassin},
		[]rules.CardType{rules.CardAmbassador, rules.CardDuke},
	)

	h.room.RemovePlayer(bo)

	assert.Equal(t, rules.RoomInProgress, h.room.status)
	assert.Equal(t, ada, h.room.active, "first player still in takes over")
	assert.NotEqual(t, cy, h.room.active)
}

func TestRemoveCreatorHandsOverRoom(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo", "Cy")
	h.room.RemovePlayer(h.player(0))

	assert.Equal(t, h.player(1), h.room.creator)
	h.send(h.player(1), &protocol.StartGame{})
	assert.Equal(t, rules.RoomInProgress, h.room.status)
}

func TestMessagesFromUnseatedPlayersAreDropped(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	conn := &recordingConn{}
	stranger := NewPlayer("Eve", conn)

	h.send(stranger, &protocol.StartGame{})

	assert.Empty(t, conn.messages)
	assert.Equal(t, rules.RoomWaitingForPlayers, h.room.status)
}

func TestSnapshotIncludesCurrentAction(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	ada := h.player(0)
	h.start(ada,
		[]rules.CardType{rules.CardDuke, rules.CardCaptain},
		[]rules.CardType{rules.CardContessa, rules.CardAssassin},
	)
	a := h.takeAction(ada, rules.ActionTax, nil)

	snap := h.room.Snapshot()
	assert.Equal(t, "TEST", snap.Code)
	assert.Equal(t, rules.RoomInProgress, snap.Status)
	require.NotNil(t, snap.ActivePlayer)
	assert.Equal(t, ada.ID, snap.ActivePlayer.ID)
	require.NotNil(t, snap.CurrentAction)
	assert.Equal(t, a.ID, snap.CurrentAction.ID)
	assert.Equal(t, rules.StatusAwaitingChallenge, snap.CurrentAction.Status)
}

func TestEventsArePublished(t *testing.T) {
	h := newRoomHarness(t, "Ada", "Bo")
	ada := h.player(0)

	var seen []rules.EventType
	h.room.Events().Subscribe(func(evt rules.Event) {
		assert.Equal(t, "TEST", evt.RoomCode)
		assert.True(t, evt.Timestamp.Equal(h.clock.Now()))
		seen = append(seen, evt.Type)
	})

	h.start(ada,
		[]rules.CardType{rules.CardDuke, rules.CardCaptain},
		[]rules.CardType{rules.CardContessa, rules.CardAssassin},
	)
	h.takeAction(ada, rules.ActionIncome, nil)

	assert.Equal(t, []rules.EventType{
		rules.EventGameStarted,
		rules.EventTurnStarted,
		rules.EventTurnStarted,
		rules.EventActionDeclared,
		rules.EventCoinsChanged,
		rules.EventActionSucceeded,
		rules.EventActionCompleted,
		rules.EventTurnStarted,
	}, seen)
}
