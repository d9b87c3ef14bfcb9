package lobby

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/clock"
	"github.com/coupgame/coup-server-go/internal/game"
)

const (
	// DefaultCodeLength is the length of generated join codes.
	DefaultCodeLength = 4
	// MaxCodeLength bounds codes chosen by clients.
	MaxCodeLength = 16
	// DefaultIdleTimeout is how long a room may stay empty after creation.
	DefaultIdleTimeout = 5 * time.Minute

	codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ"
)

// ErrInvalidCode is returned for join codes that are empty, too long or not alphanumeric.
var ErrInvalidCode = errors.New("invalid room code")

// Registry owns every live room, keyed by join code. A room is dropped once
// its last player leaves, or when nobody has joined it within the idle timeout.
type Registry struct {
	rooms       map[string]*game.Room
	mu          sync.RWMutex
	logger      *zap.Logger
	codeLength  int
	roomOpts    []game.RoomOption
	created     []func(*game.Room)
	clock       clock.Clock
	idleTimeout time.Duration
}

// NewRegistry creates an empty registry. roomOpts are applied to every room it creates.
func NewRegistry(logger *zap.Logger, codeLength int, roomOpts ...game.RoomOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	return &Registry{
		rooms:      make(map[string]*game.Room),
		logger:     logger,
		codeLength:  codeLength,
		roomOpts:    roomOpts,
		clock:       clock.NewReal(),
		idleTimeout: DefaultIdleTimeout,
	}
}

// SetIdleTimeout changes how long rooms created from now on may stay empty,
// measured on c.
func (r *Registry) SetIdleTimeout(c clock.Clock, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c != nil {
		r.clock = c
	}
	if d > 0 {
		r.idleTimeout = d
	}
}

// OnRoomCreated registers fn to run for every room created from now on.
func (r *Registry) OnRoomCreated(fn func(*game.Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, fn)
}

// NormalizeCode upper-cases and validates a client supplied join code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > MaxCodeLength {
		return "", ErrInvalidCode
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

// Create opens a room under a fresh code.
func (r *Registry) Create() *game.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		code := generateCode(r.codeLength)
		if _, exists := r.rooms[code]; !exists {
			return r.createLocked(code)
		}
	}
}

// Get looks up a room by code.
func (r *Registry) Get(code string) (*game.Room, bool) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	return room, ok
}

// Join seats p in the room with the given code, creating the room if it does
// not exist yet.
func (r *Registry) Join(code string, p *game.Player) (*game.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[code]
	if !exists {
		room = r.createLocked(code)
	}
	if err := room.AddPlayer(p); err != nil {
		if !exists {
			delete(r.rooms, code)
		}
		return nil, fmt.Errorf("join room %s: %w", code, err)
	}
	return room, nil
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms returns every live room.
func (r *Registry) Rooms() []*game.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*game.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) createLocked(code string) *game.Room {
	room := game.NewRoom(code, r.logger, r.roomOpts...)
	room.OnEmpty(func() { r.evict(room) })
	r.clock.AfterFunc(r.idleTimeout, func() { r.evict(room) })
	r.rooms[code] = room
	for _, fn := range r.created {
		fn(room)
	}

	r.logger.Info("room created", zap.String("room", code), zap.Int("rooms", len(r.rooms)))
	return room
}

// evict drops room unless someone joined it again in the meantime.
func (r *Registry) evict(room *game.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.rooms[room.Code()]; !ok || current != room {
		return
	}
	if room.PlayerCount() > 0 {
		return
	}
	delete(r.rooms, room.Code())

	r.logger.Info("room removed", zap.String("room", room.Code()), zap.Int("rooms", len(r.rooms)))
}

func generateCode(length int) string {
	code := make([]byte, length)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
