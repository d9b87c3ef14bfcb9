package game

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coupgame/coup-server-go/internal/clock"
	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// recordingConn keeps every envelope sent to one player.
type recordingConn struct {
	mu       sync.Mutex
	messages []protocol.Envelope
}

func (c *recordingConn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, env)
	return nil
}

func (c *recordingConn) ofType(t protocol.MessageType) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range c.messages {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (c *recordingConn) last(t protocol.MessageType) (protocol.Envelope, bool) {
	found := c.ofType(t)
	if len(found) == 0 {
		return protocol.Envelope{}, false
	}
	return found[len(found)-1], true
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// roomHarness drives a room deterministically: fake clock, seeded shuffles
// and recording connections.
type roomHarness struct {
	t       *testing.T
	room    *Room
	clock   *clock.Fake
	players []*Player
	conns   map[*Player]*recordingConn
}

func newRoomHarness(t *testing.T, names ...string) *roomHarness {
	t.Helper()
	fake := clock.NewFake(epoch)
	h := &roomHarness{
		t:     t,
		clock: fake,
		conns: make(map[*Player]*recordingConn),
		room: NewRoom("TEST", zaptest.NewLogger(t),
			WithClock(fake),
			WithRand(rand.New(rand.NewSource(1))),
		),
	}
	for _, name := range names {
		h.join(name)
	}
	return h
}

func (h *roomHarness) join(name string) *Player {
	h.t.Helper()
	conn := &recordingConn{}
	p := NewPlayer(name, conn)
	require.NoError(h.t, h.room.AddPlayer(p))
	h.players = append(h.players, p)
	h.conns[p] = conn
	return p
}

func (h *roomHarness) player(i int) *Player {
	return h.players[i]
}

func (h *roomHarness) conn(p *Player) *recordingConn {
	return h.conns[p]
}

func (h *roomHarness) send(p *Player, msg protocol.ClientMessage) {
	h.room.HandleMessage(p, msg)
}

// start deals the game and then fixes every hand and the active player so
// scenarios do not depend on the shuffle.
func (h *roomHarness) start(active *Player, hands ...[]rules.CardType) {
	h.t.Helper()
	h.send(h.players[0], &protocol.StartGame{})
	require.Equal(h.t, rules.RoomInProgress, h.room.status)
	if len(hands) > 0 {
		h.deal(hands...)
	}
	h.setActive(active)
	h.resetMessages()
}

func (h *roomHarness) deal(hands ...[]rules.CardType) {
	h.t.Helper()
	for _, p := range h.players {
		for _, c := range p.Hand() {
			c.ReturnToDeck()
		}
	}
	for i, hand := range hands {
		p := h.players[i]
		for _, want := range hand {
			var picked *Card
			for _, c := range h.room.deck.Available() {
				if c.Type == want {
					picked = c
					break
				}
			}
			require.NotNil(h.t, picked, "no %s left in deck", want)
			picked.GiveTo(p)
		}
	}
}

func (h *roomHarness) setActive(p *Player) {
	h.room.turns.Start(p.ID)
	h.room.beginTurn(p)
}

func (h *roomHarness) setCoins(p *Player, coins int) {
	p.UpdateCoinsBy(coins - p.Coins())
}

func (h *roomHarness) resetMessages() {
	for _, conn := range h.conns {
		conn.reset()
	}
}

func (h *roomHarness) takeAction(p *Player, actionType rules.ActionType, target *Player) *Action {
	h.t.Helper()
	req := protocol.ActionRequest{Type: actionType}
	if target != nil {
		req.Target = &protocol.PlayerRef{ID: target.ID}
	}
	h.send(p, &protocol.TakeAction{Action: req})
	return h.room.currentAction
}

func (h *roomHarness) loseCard(p *Player, c *Card, a *Action) {
	h.send(p, &protocol.LoseCard{Card: protocol.CardRef{ID: c.ID}, Action: protocol.ActionRef{ID: a.ID}})
}

func (h *roomHarness) requireUnauthorised(p *Player, contains string) {
	h.t.Helper()
	env, ok := h.conn(p).last(protocol.TypeUnauthorisedAction)
	require.True(h.t, ok, "expected UnauthorisedAction for %s", p.Name)
	payload, ok := env.Payload.(protocol.UnauthorisedPayload)
	require.True(h.t, ok)
	assert.Contains(h.t, payload.Message, contains)
}

func (h *roomHarness) assertNoUnauthorised(p *Player) {
	h.t.Helper()
	assert.Empty(h.t, h.conn(p).ofType(protocol.TypeUnauthorisedAction))
}

func (h *roomHarness) mustLoseCard(p *Player) protocol.CardToLosePayload {
	h.t.Helper()
	env, ok := h.conn(p).last(protocol.TypePlayerMustChooseCardToLose)
	require.True(h.t, ok, "expected PlayerMustChooseCardToLose")
	payload, ok := env.Payload.(protocol.CardToLosePayload)
	require.True(h.t, ok)
	return payload
}

func assertValidHistory(t *testing.T, a *Action) {
	t.Helper()
	for i := 1; i < len(a.history); i++ {
		assert.NoError(t, rules.ValidateTransition(a.history[i-1], a.history[i]),
			"history %v", a.history)
	}
}
