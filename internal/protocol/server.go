package protocol

// Server to client message kinds.
const (
	TypeActionPending              MessageType = "ActionPending"
	TypeActionSucceeded            MessageType = "ActionSucceeded"
	TypeActionCompleted            MessageType = "ActionCompleted"
	TypePlayerMustChooseCardToLose MessageType = "PlayerMustChooseCardToLose"
	TypePlayerMustChooseCards      MessageType = "PlayerMustChooseCards"
	TypeNewTurn                    MessageType = "NewTurn"
	TypeNewHand                    MessageType = "NewHand"
	TypeGameOver                   MessageType = "GameOver"
	TypeUnauthorisedAction         MessageType = "UnauthorisedAction"
	TypeNewPlayer                  MessageType = "NewPlayer"
	TypeNameAlreadyTaken           MessageType = "NameAlreadyTaken"
	TypePlayerLeft                 MessageType = "PlayerLeft"
	TypeGameStarted                MessageType = "GameStarted"
)

// ServerMessage is a message before the per-recipient context is attached.
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// Envelope is what actually goes over the wire to one recipient.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
	Context *Context    `json:"context,omitempty"`
}

// WithContext attaches a recipient snapshot to msg.
func (msg ServerMessage) WithContext(ctx Context) Envelope {
	return Envelope{Type: msg.Type, Payload: msg.Payload, Context: &ctx}
}

// Bare wraps msg for a connection that is not seated in any room yet.
func (msg ServerMessage) Bare() Envelope {
	return Envelope{Type: msg.Type, Payload: msg.Payload}
}

type ActionPayload struct {
	Action ActionData `json:"action"`
}

type PlayerPayload struct {
	Player PlayerData `json:"player"`
}

type CardToLosePayload struct {
	Player PlayerData `json:"player"`
	Action ActionData `json:"action"`
}

type ChooseCardsPayload struct {
	Action ActionData `json:"action"`
	Cards  []CardData `json:"cards"`
}

type HandPayload struct {
	Hand []CardData `json:"hand"`
}

type GameOverPayload struct {
	Winner PlayerData `json:"winner"`
}

type UnauthorisedPayload struct {
	Message string `json:"message"`
}

// EmptyPayload encodes as {}.
type EmptyPayload struct{}

func ActionPending(action ActionData) ServerMessage {
	return ServerMessage{Type: TypeActionPending, Payload: ActionPayload{Action: action}}
}

func ActionSucceeded(action ActionData) ServerMessage {
	return ServerMessage{Type: TypeActionSucceeded, Payload: ActionPayload{Action: action}}
}

func ActionCompleted(action ActionData) ServerMessage {
	return ServerMessage{Type: TypeActionCompleted, Payload: ActionPayload{Action: action}}
}

func PlayerMustChooseCardToLose(player PlayerData, action ActionData) ServerMessage {
	return ServerMessage{
		Type:    TypePlayerMustChooseCardToLose,
		Payload: CardToLosePayload{Player: player, Action: action},
	}
}

func PlayerMustChooseCards(action ActionData, cards []CardData) ServerMessage {
	return ServerMessage{
		Type:    TypePlayerMustChooseCards,
		Payload: ChooseCardsPayload{Action: action, Cards: cards},
	}
}

func NewTurn(player PlayerData) ServerMessage {
	return ServerMessage{Type: TypeNewTurn, Payload: PlayerPayload{Player: player}}
}

func NewHand(hand []CardData) ServerMessage {
	if hand == nil {
		hand = []CardData{}
	}
	return ServerMessage{Type: TypeNewHand, Payload: HandPayload{Hand: hand}}
}

func GameOver(winner PlayerData) ServerMessage {
	return ServerMessage{Type: TypeGameOver, Payload: GameOverPayload{Winner: winner}}
}

func UnauthorisedAction(message string) ServerMessage {
	return ServerMessage{Type: TypeUnauthorisedAction, Payload: UnauthorisedPayload{Message: message}}
}

func NewPlayer(player PlayerData) ServerMessage {
	return ServerMessage{Type: TypeNewPlayer, Payload: PlayerPayload{Player: player}}
}

func NameAlreadyTaken(player PlayerData) ServerMessage {
	return ServerMessage{Type: TypeNameAlreadyTaken, Payload: PlayerPayload{Player: player}}
}

func PlayerLeft(player PlayerData) ServerMessage {
	return ServerMessage{Type: TypePlayerLeft, Payload: PlayerPayload{Player: player}}
}

func GameStarted() ServerMessage {
	return ServerMessage{Type: TypeGameStarted, Payload: EmptyPayload{}}
}
