package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/clock"
	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

// Settings are the tunable table rules of a room.
type Settings struct {
	ResponseWindow time.Duration
	MinimumPlayers int
	MaximumPlayers int
	StartingCoins  int
	CardsPerPlayer int
}

// DefaultSettings returns the standard rules: ten second windows, two to six
// players, two coins and two cards each.
func DefaultSettings() Settings {
	return Settings{
		ResponseWindow: 10 * time.Second,
		MinimumPlayers: 2,
		MaximumPlayers: 6,
		StartingCoins:  2,
		CardsPerPlayer: 2,
	}
}

// RoomOption customises a Room.
type RoomOption func(*Room)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) RoomOption {
	return func(r *Room) { r.clock = c }
}

// WithRand sets the source used to shuffle and pick the first player.
func WithRand(rng *rand.Rand) RoomOption {
	return func(r *Room) { r.rng = rng }
}

// WithSettings overrides DefaultSettings.
func WithSettings(s Settings) RoomOption {
	return func(r *Room) { r.settings = s }
}

type pendingLoss struct {
	player   *Player
	actionID string
	then     func()
}

// Room is one table. A single mutex serialises every message handler and
// timer callback, so all game state below is only touched under mu.
type Room struct {
	mu sync.Mutex

	code     string
	status   rules.RoomStatus
	players  []*Player
	creator  *Player
	active   *Player
	winner   *Player
	deck     *Deck
	turns    *rules.TurnManager
	losses   []*pendingLoss
	settings Settings

	currentAction *Action

	clock     clock.Clock
	rng       *rand.Rand
	logger    *zap.Logger
	events    *rules.EventBus
	onEmpty   func()
	startedAt time.Time
}

// NewRoom creates an empty room waiting for players.
func NewRoom(code string, logger *zap.Logger, opts ...RoomOption) *Room {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Room{
		code:     code,
		status:   rules.RoomWaitingForPlayers,
		turns:    rules.NewTurnManager(),
		settings: DefaultSettings(),
		clock:    clock.NewReal(),
		logger:   logger.With(zap.String("room", code)),
		events:   rules.NewEventBus(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r.deck = NewDeck(r.rng)
	return r
}

// Code returns the join code.
func (r *Room) Code() string {
	return r.code
}

// Events returns the bus room events are published on. Listeners run with
// the room locked and must not call back into the room.
func (r *Room) Events() *rules.EventBus {
	return r.events
}

// OnEmpty registers fn to run when the last player leaves.
func (r *Room) OnEmpty(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmpty = fn
}

// Status returns the room lifecycle state.
func (r *Room) Status() rules.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PlayerCount returns the number of seated players.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Snapshot returns the public room state.
func (r *Room) Snapshot() protocol.RoomData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data()
}

func (r *Room) withLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.recoverPanic("timer")
	fn()
}

func (r *Room) recoverPanic(source string) {
	if rec := recover(); rec != nil {
		r.logger.Error("recovered panic in room handler",
			zap.String("source", source),
			zap.Any("panic", rec),
			zap.Stack("stack"),
		)
	}
}

// AddPlayer seats p. Duplicate names are answered with NameAlreadyTaken.
func (r *Room) AddPlayer(p *Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Started() {
		return ErrGameInProgress
	}
	if len(r.players) >= r.settings.MaximumPlayers {
		return ErrRoomFull
	}
	for _, seated := range r.players {
		if strings.EqualFold(seated.Name, p.Name) {
			p.room = r
			r.sendTo(p, protocol.NameAlreadyTaken(p.data()))
			p.room = nil
			return ErrNameTaken
		}
	}

	p.room = r
	r.players = append(r.players, p)
	if r.creator == nil {
		r.creator = p
	}

	r.broadcast(protocol.NewPlayer(p.data()))
	r.publish(rules.NewEvent(rules.EventPlayerJoined, r.code, p.ID, ""))
	r.logger.Info("player joined",
		zap.String("player_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("players", len(r.players)),
	)
	return nil
}

// RemovePlayer takes p out of the room. Their cards go back to the deck and
// any card they still owed counts as paid. The OnEmpty callback runs after
// the room lock is released.
func (r *Room) RemovePlayer(p *Player) {
	empty, onEmpty := r.removePlayer(p)
	if empty && onEmpty != nil {
		onEmpty()
	}
}

func (r *Room) removePlayer(p *Player) (empty bool, onEmpty func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.recoverPanic("remove")

	idx := r.seatOf(p)
	if idx == -1 {
		return false, nil
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	for _, c := range p.Hand() {
		c.ReturnToDeck()
	}
	if r.creator == p {
		r.creator = nil
		if len(r.players) > 0 {
			r.creator = r.players[0]
		}
	}

	r.broadcast(protocol.PlayerLeft(p.data()))
	r.publish(rules.NewEvent(rules.EventPlayerLeft, r.code, p.ID, ""))
	r.logger.Info("player left",
		zap.String("player_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("players", len(r.players)),
	)

	r.settleLosses(p)

	if a := r.currentAction; a != nil && a.player == p &&
		a.Type == rules.ActionExchange && a.status == rules.StatusSucceeded {
		a.complete()
	}

	if r.status == rules.RoomInProgress {
		switch {
		case r.gameIsOver():
			r.endGame()
		case r.active == p && r.currentAction == nil:
			r.nextTurn()
		}
	}

	if len(r.players) == 0 {
		if r.currentAction != nil {
			r.currentAction.stopTimer()
			r.currentAction = nil
		}
		return true, r.onEmpty
	}
	return false, nil
}

// HandleMessage dispatches a client message from p. Rule violations are
// reported to p alone; late responses are dropped silently.
func (r *Room) HandleMessage(p *Player, msg protocol.ClientMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.recoverPanic(string(msg.MessageType()))

	if r.seatOf(p) == -1 {
		r.logger.Debug("message from unseated player",
			zap.String("player_id", p.ID),
			zap.String("type", string(msg.MessageType())),
		)
		return
	}

	err := r.dispatch(p, msg)
	if err == nil {
		return
	}

	var unauthorisedErr *UnauthorisedError
	switch {
	case errors.As(err, &unauthorisedErr):
		r.logger.Info("unauthorised action",
			zap.String("player_id", p.ID),
			zap.String("type", string(msg.MessageType())),
			zap.String("reason", unauthorisedErr.Message),
		)
		r.sendTo(p, protocol.UnauthorisedAction(unauthorisedErr.Message))
	case errors.Is(err, errIgnored):
		r.logger.Debug("ignored message",
			zap.String("player_id", p.ID),
			zap.String("type", string(msg.MessageType())),
			zap.Error(err),
		)
	default:
		r.logger.Warn("failed to handle message",
			zap.String("player_id", p.ID),
			zap.String("type", string(msg.MessageType())),
			zap.Error(err),
		)
	}
}

func (r *Room) dispatch(p *Player, msg protocol.ClientMessage) error {
	switch m := msg.(type) {
	case *protocol.StartGame:
		return r.startGame(p)
	case *protocol.TakeAction:
		return r.takeAction(p, m)
	case *protocol.ChallengeAction:
		a, err := r.actionFor(m.Action.ID)
		if err != nil {
			return err
		}
		return a.challenge(p)
	case *protocol.SkipChallengeAction:
		a, err := r.actionFor(m.Action.ID)
		if err != nil {
			return err
		}
		return a.skipChallenge(p)
	case *protocol.BlockAction:
		a, err := r.actionFor(m.Action.ID)
		if err != nil {
			return err
		}
		if m.Action.Type != "" && m.Action.Type != a.Type {
			return ignored("block names %s but current action is %s", m.Action.Type, a.Type)
		}
		return a.block(p, m.With)
	case *protocol.ConfirmAction:
		a, err := r.actionFor(m.Action.ID)
		if err != nil {
			return err
		}
		return a.allow(p)
	case *protocol.LoseCard:
		return r.loseCard(p, m)
	case *protocol.ChooseCards:
		if r.currentAction == nil {
			return unauthorised("There is no exchange waiting for you.")
		}
		return r.currentAction.chooseCards(p, m)
	default:
		return fmt.Errorf("unsupported message %s", msg.MessageType())
	}
}

func (r *Room) actionFor(id string) (*Action, error) {
	if r.currentAction == nil || r.currentAction.ID != id {
		return nil, ignored("action %s is not current", id)
	}
	return r.currentAction, nil
}

func (r *Room) startGame(p *Player) error {
	if r.status.Started() {
		return unauthorised("The game has already started.")
	}
	if p != r.creator {
		return unauthorised("Only the creator can start the game.")
	}
	if len(r.players) < r.settings.MinimumPlayers {
		return unauthorised("The game needs more players to start. Current: %d. Needs: %d.",
			len(r.players), r.settings.MinimumPlayers)
	}

	for i := 0; i < r.settings.CardsPerPlayer; i++ {
		for _, seated := range r.players {
			seated.GiveCards(r.deck.Peek(1)...)
		}
	}
	for _, seated := range r.players {
		seated.UpdateCoinsBy(r.settings.StartingCoins)
	}
	r.status = rules.RoomInProgress
	r.startedAt = r.clock.Now()

	for _, seated := range r.players {
		r.sendTo(seated, protocol.NewHand(seated.handData()))
	}
	r.broadcast(protocol.GameStarted())
	r.publish(rules.NewEventWithAmount(rules.EventGameStarted, r.code, p.ID, "", len(r.players)))
	r.logger.Info("game started", zap.Int("players", len(r.players)))

	first := r.players[r.rng.Intn(len(r.players))]
	r.turns.Start(first.ID)
	r.beginTurn(first)
	return nil
}

func (r *Room) takeAction(p *Player, m *protocol.TakeAction) error {
	if r.status != rules.RoomInProgress {
		return unauthorised("The game is not in progress.")
	}
	if p != r.active {
		return unauthorised("It is not your turn.")
	}
	if r.currentAction != nil {
		return unauthorised("Another action is still being resolved.")
	}
	if r.owesCard(p) {
		return unauthorised("You must lose a card before taking an action.")
	}

	spec, ok := rules.LookupAction(m.Action.Type)
	if !ok {
		return unauthorised("Unknown action %s.", m.Action.Type)
	}
	if rules.MustCoup(p.Coins()) && spec.Type != rules.ActionCoup {
		return unauthorised("You have ten or more coins and must coup.")
	}
	if p.Coins() < spec.Cost {
		return unauthorised("You do not have enough coins to %s. You need %d but only have %d.",
			strings.ToLower(string(spec.Type)), spec.Cost, p.Coins())
	}

	var target *Player
	if spec.RequiresTarget {
		if m.Action.Target == nil {
			return unauthorised("%s needs a target.", spec.Type)
		}
		target = r.findPlayer(m.Action.Target.ID)
		switch {
		case target == nil:
			return unauthorised("That player is not in this game.")
		case target == p:
			return unauthorised("You cannot target yourself.")
		case target.IsEliminated():
			return unauthorised("That player is already out of the game.")
		}
	}

	a := newAction(r, spec, p, target)
	r.currentAction = a

	evt := rules.NewEvent(rules.EventActionDeclared, r.code, p.ID, a.targetID())
	evt.ActionID = a.ID
	evt.Data = string(a.Type)
	r.publish(evt)
	r.logger.Debug("action declared",
		zap.String("action_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("player_id", p.ID),
	)

	a.begin()
	return nil
}

// requireCardLoss asks p to give up a card for action a and runs then once
// they have. A player with nothing left to lose settles immediately.
func (r *Room) requireCardLoss(p *Player, a *Action, then func()) {
	if r.seatOf(p) == -1 || len(p.LiveCards()) == 0 {
		if then != nil {
			then()
		}
		return
	}
	r.losses = append(r.losses, &pendingLoss{player: p, actionID: a.ID, then: then})
	r.broadcast(protocol.PlayerMustChooseCardToLose(p.data(), a.data()))
}

func (r *Room) loseCard(p *Player, m *protocol.LoseCard) error {
	idx := -1
	for i, loss := range r.losses {
		if loss.player == p && loss.actionID == m.Action.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return unauthorised("You do not have to lose a card.")
	}
	card := p.FindCard(m.Card.ID)
	if card == nil || card.IsDead() {
		return unauthorised("That card is not in your hand.")
	}

	loss := r.losses[idx]
	r.losses = append(r.losses[:idx], r.losses[idx+1:]...)
	if err := p.KillCard(card); err != nil {
		return err
	}

	r.sendTo(p, protocol.NewHand(p.handData()))
	evt := rules.NewEventWithAmount(rules.EventCardLost, r.code, p.ID, card.ID, 1)
	evt.ActionID = loss.actionID
	evt.Data = string(card.Type)
	r.publish(evt)

	if p.IsEliminated() {
		r.logger.Info("player eliminated", zap.String("player_id", p.ID), zap.String("name", p.Name))
		r.settleLosses(p)
	}
	if loss.then != nil {
		loss.then()
	}

	if r.status != rules.RoomInProgress {
		return nil
	}
	switch {
	case r.gameIsOver():
		r.endGame()
	case r.currentAction == nil && r.active != nil && r.active.IsEliminated():
		r.nextTurn()
	}
	return nil
}

func (r *Room) owesCard(p *Player) bool {
	for _, loss := range r.losses {
		if loss.player == p {
			return true
		}
	}
	return false
}

// settleLosses drops every card p still owes, running the continuations as
// if the cards had been given up.
func (r *Room) settleLosses(p *Player) {
	var owed []*pendingLoss
	kept := r.losses[:0]
	for _, loss := range r.losses {
		if loss.player == p {
			owed = append(owed, loss)
		} else {
			kept = append(kept, loss)
		}
	}
	r.losses = kept
	for _, loss := range owed {
		if loss.then != nil {
			loss.then()
		}
	}
}

// replaceRevealedCard puts the card a player proved they held at the bottom
// of the deck and deals them the top card.
func (r *Room) replaceRevealedCard(p *Player, t rules.CardType) {
	revealed := p.liveCardOfType(t)
	if revealed == nil {
		return
	}
	revealed.ReturnToDeck()
	p.GiveCards(r.deck.Peek(1)...)
	r.sendTo(p, protocol.NewHand(p.handData()))
}

func (r *Room) actionFinished(a *Action) {
	a.stopTimer()
	if r.currentAction == a {
		r.currentAction = nil
	}
	if r.status != rules.RoomInProgress {
		return
	}
	if r.gameIsOver() {
		r.endGame()
		return
	}
	r.nextTurn()
}

func (r *Room) nextTurn() {
	next, ok := r.turns.Advance(r.seatIDs(), func(id string) bool {
		p := r.findPlayer(id)
		return p != nil && !p.IsEliminated()
	})
	if !ok {
		return
	}
	r.beginTurn(r.findPlayer(next))
}

func (r *Room) beginTurn(p *Player) {
	if r.active != nil {
		r.active.active = false
	}
	r.active = p
	p.active = true

	r.broadcast(protocol.NewTurn(p.data()))
	r.publish(rules.NewEventWithAmount(rules.EventTurnStarted, r.code, p.ID, "", r.turns.TurnNumber()))
}

// gameIsOver is true once a started game has exactly one player left in it.
func (r *Room) gameIsOver() bool {
	return r.status.Started() && len(r.players) > 0 && len(r.playersStillIn()) == 1
}

func (r *Room) endGame() {
	if r.status == rules.RoomOver {
		return
	}
	r.status = rules.RoomOver
	r.winner = r.playersStillIn()[0]
	if r.currentAction != nil {
		r.currentAction.stopTimer()
		r.currentAction = nil
	}
	r.losses = nil

	r.broadcast(protocol.GameOver(r.winner.data()))

	evt := rules.NewEvent(rules.EventGameOver, r.code, r.winner.ID, "")
	evt.Data = r.winner.Name
	evt.Amount = r.turns.TurnNumber()
	evt.Metadata["started_at"] = r.startedAt.Format(time.RFC3339Nano)
	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		names = append(names, p.Name)
	}
	evt.Metadata["players"] = strings.Join(names, ",")
	r.publish(evt)

	r.logger.Info("game over",
		zap.String("winner", r.winner.Name),
		zap.Int("turns", r.turns.TurnNumber()),
	)
}

func (r *Room) publish(evt rules.Event) {
	evt.RoomCode = r.code
	evt.Timestamp = r.clock.Now()
	r.events.Publish(evt)
}

func (r *Room) broadcast(msg protocol.ServerMessage) {
	for _, p := range r.players {
		r.sendTo(p, msg)
	}
}

func (r *Room) sendTo(p *Player, msg protocol.ServerMessage) {
	if p.conn == nil {
		return
	}
	env := msg.WithContext(protocol.Context{RoomData: r.data(), You: p.data()})
	if err := p.conn.Send(env); err != nil {
		r.logger.Warn("failed to deliver message",
			zap.String("player_id", p.ID),
			zap.String("type", string(msg.Type)),
			zap.Error(err),
		)
	}
}

func (r *Room) data() protocol.RoomData {
	d := protocol.RoomData{
		Status:         r.status,
		Code:           r.code,
		MinimumPlayers: r.settings.MinimumPlayers,
		MaximumPlayers: r.settings.MaximumPlayers,
		Players:        make([]protocol.PlayerData, 0, len(r.players)),
	}
	for _, p := range r.players {
		d.Players = append(d.Players, p.data())
	}
	if r.creator != nil {
		d.Creator = r.creator.dataPtr()
	}
	if r.active != nil {
		d.ActivePlayer = r.active.dataPtr()
	}
	if r.winner != nil {
		d.Winner = r.winner.dataPtr()
	}
	if r.currentAction != nil {
		ad := r.currentAction.data()
		d.CurrentAction = &ad
	}
	return d
}

func (r *Room) seatOf(p *Player) int {
	for i, seated := range r.players {
		if seated == p {
			return i
		}
	}
	return -1
}

func (r *Room) isSeated(p *Player) bool {
	return r.seatOf(p) != -1
}

func (r *Room) seatIDs() []string {
	ids := make([]string, 0, len(r.players))
	for _, p := range r.players {
		ids = append(ids, p.ID)
	}
	return ids
}

func (r *Room) findPlayer(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playersStillIn() []*Player {
	var out []*Player
	for _, p := range r.players {
		if !p.IsEliminated() {
			out = append(out, p)
		}
	}
	return out
}
