package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/game"
	"github.com/coupgame/coup-server-go/internal/protocol"
)

var (
	errClosed       = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// Client is one websocket connection. Until it joins a room it only accepts
// JoinGame; afterwards every message is routed to its room.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	logger *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	// Owned by the read pump.
	player *game.Player
	room   *game.Room
}

func newClient(hub *Hub, conn *websocket.Conn, remote string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		remote: remote,
		logger: hub.logger.With(zap.String("remote", remote)),
		send:   make(chan []byte, hub.cfg.SendBuffer),
	}
}

// Send queues env for the write pump. It never blocks, so rooms can call it
// while holding their lock.
func (c *Client) Send(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.hub.release(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.logger.Debug("dropping malformed message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *protocol.JoinGame:
		c.join(m)
	case *protocol.LeaveGame:
		c.leave()
	default:
		if c.room == nil {
			c.logger.Debug("message before joining a room", zap.String("type", string(msg.MessageType())))
			return
		}
		c.room.HandleMessage(c.player, msg)
	}
}

func (c *Client) join(m *protocol.JoinGame) {
	if c.room != nil {
		c.logger.Debug("already seated", zap.String("room", c.room.Code()))
		return
	}

	player := game.NewPlayer(m.Name, c)
	room, err := c.hub.registry.Join(m.Room, player)
	switch {
	case err == nil:
		c.player = player
		c.room = room
		c.logger.Info("player seated",
			zap.String("room", room.Code()),
			zap.String("player_id", player.ID),
		)
	case errors.Is(err, game.ErrNameTaken):
		// The room already answered with NameAlreadyTaken.
	default:
		c.logger.Info("join refused", zap.String("room", m.Room), zap.Error(err))
		if sendErr := c.Send(protocol.UnauthorisedAction(joinRefusal(err)).Bare()); sendErr != nil {
			c.logger.Debug("failed to send join refusal", zap.Error(sendErr))
		}
	}
}

func (c *Client) leave() {
	if c.room == nil {
		return
	}
	room, player := c.room, c.player
	c.room, c.player = nil, nil
	room.RemovePlayer(player)
}

func joinRefusal(err error) string {
	switch {
	case errors.Is(err, game.ErrGameInProgress):
		return "The game has already started."
	case errors.Is(err, game.ErrRoomFull):
		return "The room is full."
	default:
		return "That room code is not valid."
	}
}
