package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/clock"
	"github.com/coupgame/coup-server-go/internal/game/rules"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

// Action is one declared move working its way through the challenge and block
// windows. Every method runs with the room lock held.
type Action struct {
	ID     string
	Type   rules.ActionType
	spec   rules.ActionSpec
	room   *Room
	player *Player
	target *Player

	status  rules.ActionStatus
	history []rules.ActionStatus

	challengeBefore *time.Time
	skipped         map[string]bool
	challenger      *Player

	blockBefore *time.Time
	allowed     map[string]bool
	blocker     *Player
	blockedWith rules.CardType

	// offered holds the deck cards shown to an exchanging player.
	offered []*Card

	timer  clock.Timer
	window int
}

func newAction(room *Room, spec rules.ActionSpec, player, target *Player) *Action {
	return &Action{
		ID:      uuid.NewString(),
		Type:    spec.Type,
		spec:    spec,
		room:    room,
		player:  player,
		target:  target,
		status:  rules.StatusPending,
		history: []rules.ActionStatus{rules.StatusPending},
	}
}

// Status returns the current resolution state.
func (a *Action) Status() rules.ActionStatus {
	return a.status
}

func (a *Action) setStatus(next rules.ActionStatus) {
	if err := rules.ValidateTransition(a.status, next); err != nil {
		panic(fmt.Sprintf("action %s: %v", a.ID, err))
	}
	a.status = next
	a.history = append(a.history, next)
}

// begin runs the first transition. The room calls it after registering the
// action as current so that every broadcast already carries it.
func (a *Action) begin() {
	switch {
	case a.spec.Challengeable():
		a.openChallengeWindow(rules.StatusAwaitingChallenge)
	case a.canBeBlocked():
		a.openBlockWindow()
	default:
		a.succeed()
	}
}

func (a *Action) canBeBlocked() bool {
	return a.spec.Blockable != rules.BlockNone
}

// claimant is the player whose card claim is currently open to challenge.
func (a *Action) claimant() *Player {
	if a.status == rules.StatusAwaitingChallengeToBlock {
		return a.blocker
	}
	return a.player
}

func (a *Action) claimedCard() rules.CardType {
	if a.status == rules.StatusAwaitingChallengeToBlock {
		return a.blockedWith
	}
	return a.spec.ClaimedCard
}

func (a *Action) inChallengeWindow() bool {
	return a.status == rules.StatusAwaitingChallenge || a.status == rules.StatusAwaitingChallengeToBlock
}

func (a *Action) eligibleChallengers() []*Player {
	claimant := a.claimant()
	var out []*Player
	for _, p := range a.room.playersStillIn() {
		if p != claimant {
			out = append(out, p)
		}
	}
	return out
}

func (a *Action) eligibleBlockers() []*Player {
	switch a.spec.Blockable {
	case rules.BlockAnyone:
		var out []*Player
		for _, p := range a.room.playersStillIn() {
			if p != a.player {
				out = append(out, p)
			}
		}
		return out
	case rules.BlockTarget:
		if a.target != nil && a.room.isSeated(a.target) && !a.target.IsEliminated() {
			return []*Player{a.target}
		}
	}
	return nil
}

// schedule arms the response window timer. A callback that lost the race
// against an explicit response sees a newer window number and does nothing.
func (a *Action) schedule(fn func()) {
	a.stopTimer()
	a.window++
	window := a.window
	a.timer = a.room.clock.AfterFunc(a.room.settings.ResponseWindow, func() {
		a.room.withLock(func() {
			if a.room.currentAction != a || a.window != window {
				return
			}
			fn()
		})
	})
}

func (a *Action) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.window++
}

func (a *Action) deadline() *time.Time {
	t := a.room.clock.Now().Add(a.room.settings.ResponseWindow)
	return &t
}

func (a *Action) openChallengeWindow(status rules.ActionStatus) {
	a.setStatus(status)
	a.challengeBefore = a.deadline()
	a.skipped = make(map[string]bool)
	a.challenger = nil

	a.room.broadcast(protocol.ActionPending(a.data()))
	a.schedule(a.challengeWindowClosed)
}

// challengeWindowClosed resolves a challenge window that nobody used, either
// on timeout or once every eligible player skipped.
func (a *Action) challengeWindowClosed() {
	switch a.status {
	case rules.StatusAwaitingChallenge:
		a.notSuccessfullyChallenged()
	case rules.StatusAwaitingChallengeToBlock:
		a.blockStands()
	default:
		a.room.logger.Debug("challenge window already resolved",
			zap.String("room", a.room.code),
			zap.String("action_id", a.ID),
			zap.String("status", string(a.status)),
		)
	}
}

func (a *Action) skipChallenge(p *Player) error {
	if !a.inChallengeWindow() {
		return ignored("skip after challenge window closed")
	}
	if p == a.claimant() || p.IsEliminated() {
		return ignored("%s cannot skip this challenge", p.Name)
	}
	if a.skipped[p.ID] {
		return ignored("%s already skipped", p.Name)
	}
	a.skipped[p.ID] = true

	for _, eligible := range a.eligibleChallengers() {
		if !a.skipped[eligible.ID] {
			return nil
		}
	}
	a.stopTimer()
	a.challengeWindowClosed()
	return nil
}

func (a *Action) challenge(p *Player) error {
	if !a.inChallengeWindow() {
		return ignored("challenge after window closed")
	}
	claimant := a.claimant()
	if p == claimant {
		return unauthorised("You cannot challenge your own claim.")
	}
	if p.IsEliminated() {
		return unauthorised("You are out of the game.")
	}
	if a.skipped[p.ID] {
		return unauthorised("You already passed on this challenge.")
	}

	a.stopTimer()
	a.challenger = p
	claimed := a.claimedCard()
	blockChallenge := a.status == rules.StatusAwaitingChallengeToBlock
	successful := !claimant.HasLive(claimed)

	if successful {
		a.setStatus(rules.StatusChallengeSucceeded)
	} else {
		a.setStatus(rules.StatusChallengeFailed)
	}

	evt := rules.NewEventWithFlag(rules.EventActionChallenged, a.room.code, p.ID, claimant.ID, successful)
	evt.ActionID = a.ID
	evt.Data = string(claimed)
	a.room.publish(evt)

	switch {
	case successful && !blockChallenge:
		a.room.requireCardLoss(claimant, a, a.fail)
	case successful && blockChallenge:
		a.room.requireCardLoss(claimant, a, nil)
		a.succeed()
	case !blockChallenge:
		a.room.replaceRevealedCard(claimant, claimed)
		a.room.requireCardLoss(p, a, nil)
		a.notSuccessfullyChallenged()
	default:
		a.room.replaceRevealedCard(claimant, claimed)
		a.room.requireCardLoss(p, a, nil)
		a.blockStands()
	}
	return nil
}

func (a *Action) notSuccessfullyChallenged() {
	if a.canBeBlocked() && len(a.eligibleBlockers()) > 0 {
		a.openBlockWindow()
		return
	}
	a.succeed()
}

func (a *Action) openBlockWindow() {
	a.setStatus(rules.StatusAwaitingBlock)
	a.blockBefore = a.deadline()
	a.allowed = make(map[string]bool)

	a.room.broadcast(protocol.ActionPending(a.data()))
	a.schedule(func() {
		if a.status == rules.StatusAwaitingBlock {
			a.succeed()
		}
	})
}

func (a *Action) isEligibleBlocker(p *Player) bool {
	for _, eligible := range a.eligibleBlockers() {
		if eligible == p {
			return true
		}
	}
	return false
}

func (a *Action) block(p *Player, with rules.CardType) error {
	if a.status != rules.StatusAwaitingBlock {
		return ignored("block outside block window")
	}
	if !a.isEligibleBlocker(p) {
		return unauthorised("You cannot block this action.")
	}
	if !a.spec.CanBlockWith(with) {
		return unauthorised("A %s cannot block %s.", with, a.Type)
	}

	a.stopTimer()
	a.blocker = p
	a.blockedWith = with

	evt := rules.NewEvent(rules.EventActionBlocked, a.room.code, p.ID, a.player.ID)
	evt.ActionID = a.ID
	evt.Data = string(with)
	a.room.publish(evt)

	a.openChallengeWindow(rules.StatusAwaitingChallengeToBlock)
	return nil
}

// allow records an eligible blocker declining to block.
func (a *Action) allow(p *Player) error {
	if a.status != rules.StatusAwaitingBlock {
		return ignored("allow outside block window")
	}
	if !a.isEligibleBlocker(p) {
		return unauthorised("You cannot block this action.")
	}
	if a.allowed[p.ID] {
		return ignored("%s already allowed", p.Name)
	}
	a.allowed[p.ID] = true

	for _, eligible := range a.eligibleBlockers() {
		if !a.allowed[eligible.ID] {
			return nil
		}
	}
	a.stopTimer()
	a.succeed()
	return nil
}

func (a *Action) blockStands() {
	a.fail()
}

func (a *Action) succeed() {
	a.stopTimer()
	a.setStatus(rules.StatusSucceeded)

	b := behaviours[a.Type]
	if b.apply != nil {
		b.apply(a)
	}

	a.room.broadcast(protocol.ActionSucceeded(a.data()))
	evt := rules.NewEvent(rules.EventActionSucceeded, a.room.code, a.player.ID, a.targetID())
	evt.ActionID = a.ID
	evt.Data = string(a.Type)
	a.room.publish(evt)

	if a.spec.CompletesOnSuccess || b.followUp == nil {
		a.complete()
		return
	}
	b.followUp(a)
}

func (a *Action) complete() {
	a.setStatus(rules.StatusCompleted)
	a.finish(rules.EventActionCompleted)
}

func (a *Action) fail() {
	a.setStatus(rules.StatusFailed)
	a.finish(rules.EventActionFailed)
}

func (a *Action) finish(eventType rules.EventType) {
	a.stopTimer()
	a.room.broadcast(protocol.ActionCompleted(a.data()))

	evt := rules.NewEvent(eventType, a.room.code, a.player.ID, a.targetID())
	evt.ActionID = a.ID
	evt.Data = string(a.Type)
	a.room.publish(evt)

	a.room.actionFinished(a)
}

// chooseCards resolves an Exchange: the player keeps as many cards as they
// had live and the rest go back to the deck.
func (a *Action) chooseCards(p *Player, msg *protocol.ChooseCards) error {
	if a.Type != rules.ActionExchange || a.status != rules.StatusSucceeded || p != a.player {
		return unauthorised("There is no exchange waiting for you.")
	}

	pool := make(map[string]*Card)
	for _, c := range p.LiveCards() {
		pool[c.ID] = c
	}
	for _, c := range a.offered {
		pool[c.ID] = c
	}
	live := len(p.LiveCards())

	if len(msg.ChosenCards) != live || len(msg.ChosenCards)+len(msg.ReturnedCards) != len(pool) {
		return unauthorised("Choose %d cards to keep and return the rest.", live)
	}
	resolve := func(refs []protocol.CardRef) ([]*Card, bool) {
		cards := make([]*Card, 0, len(refs))
		for _, ref := range refs {
			c, ok := pool[ref.ID]
			if !ok {
				return nil, false
			}
			cards = append(cards, c)
		}
		return cards, true
	}
	chosen, okChosen := resolve(msg.ChosenCards)
	returned, okReturned := resolve(msg.ReturnedCards)
	if !okChosen || !okReturned {
		return unauthorised("Invalid cards chosen.")
	}

	for _, c := range returned {
		c.ReturnToDeck()
	}
	p.GiveCards(chosen...)
	a.offered = nil

	a.room.sendTo(p, protocol.NewHand(p.handData()))
	evt := rules.NewEventWithAmount(rules.EventCardsExchanged, a.room.code, p.ID, "", len(returned))
	evt.ActionID = a.ID
	a.room.publish(evt)

	a.complete()
	return nil
}

func (a *Action) targetID() string {
	if a.target == nil {
		return ""
	}
	return a.target.ID
}

func (a *Action) data() protocol.ActionData {
	d := protocol.ActionData{
		ID:              a.ID,
		Status:          a.status,
		Type:            a.Type,
		Player:          a.player.data(),
		ChallengeBefore: a.challengeBefore,
		BlockBefore:     a.blockBefore,
		BlockedWith:     a.blockedWith,
	}
	if a.target != nil {
		d.Target = a.target.dataPtr()
	}
	switch a.spec.Blockable {
	case rules.BlockAnyone:
		d.CanBeBlockedBy = protocol.AnyoneMayBlock()
	case rules.BlockTarget:
		if a.target != nil {
			d.CanBeBlockedBy = protocol.OnlyMayBlock(a.target.data())
		}
	}
	if a.blocker != nil {
		d.Blocker = a.blocker.dataPtr()
	}
	if a.challenger != nil {
		d.Challenger = a.challenger.dataPtr()
	}
	return d
}
