package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/game/rules"
)

const replayVersion = 1

// Replay is the ordered event log of one game.
type Replay struct {
	RoomCode     string
	Events       []rules.Event
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay for a room.
func NewReplay(roomCode string) *Replay {
	return &Replay{
		RoomCode: roomCode,
		Events:   make([]rules.Event, 0),
	}
}

// Record appends an event.
func (r *Replay) Record(evt rules.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Events = append(r.Events, evt)
}

// Start rewinds playback to the first event.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CurrentIndex = 0
}

// Next returns the next event, or false at the end.
func (r *Replay) Next() (rules.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex < len(r.Events) {
		evt := r.Events[r.CurrentIndex]
		r.CurrentIndex++
		return evt, true
	}
	return rules.Event{}, false
}

// Previous steps back one event, or returns false at the beginning.
func (r *Replay) Previous() (rules.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.Events[r.CurrentIndex], true
	}
	return rules.Event{}, false
}

// Size returns the number of recorded events.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Events)
}

// SaveToFile writes the replay as gzipped gob to dir and returns the path.
func (r *Replay) SaveToFile(dir string, endedAt time.Time) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%d.replay", r.RoomCode, endedAt.Unix()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gzipWriter)

	metadata := replayMetadata{
		RoomCode:   r.RoomCode,
		EndedAt:    endedAt,
		Version:    replayVersion,
		EventCount: len(r.Events),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i := range r.Events {
		if err := encoder.Encode(&r.Events[i]); err != nil {
			return "", fmt.Errorf("failed to encode event %d: %w", i, err)
		}
	}
	if err := gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to flush replay: %w", err)
	}
	return path, nil
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(path string) (*Replay, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := NewReplay(metadata.RoomCode)
	for i := 0; i < metadata.EventCount; i++ {
		var evt rules.Event
		if err := decoder.Decode(&evt); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", i, err)
		}
		replay.Events = append(replay.Events, evt)
	}
	return replay, nil
}

type replayMetadata struct {
	RoomCode   string
	EndedAt    time.Time
	Version    int
	EventCount int
}

// ReplayRecorder records every game played in the rooms it is attached to
// and writes each one to disk when it ends.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay // room code -> replay of the running game
	saveDir string
	saved   []string
}

// NewReplayRecorder creates a recorder that saves into saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		saveDir: saveDir,
	}
}

// Attach subscribes the recorder to a room's events and returns the handle.
func (rr *ReplayRecorder) Attach(room *Room) int {
	return room.Events().Subscribe(rr.handle)
}

func (rr *ReplayRecorder) handle(evt rules.Event) {
	if evt.Type == rules.EventGameStarted {
		rr.StartRecording(evt.RoomCode)
	}

	rr.mu.RLock()
	replay := rr.replays[evt.RoomCode]
	rr.mu.RUnlock()
	if replay == nil {
		return
	}
	replay.Record(evt)

	if evt.Type == rules.EventGameOver {
		if _, err := rr.SaveReplay(evt.RoomCode, evt.Timestamp); err != nil {
			rr.logger.Error("failed to save replay",
				zap.String("room", evt.RoomCode),
				zap.Error(err),
			)
		}
	}
}

// StartRecording begins a fresh replay for a room.
func (rr *ReplayRecorder) StartRecording(roomCode string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.replays[roomCode] = NewReplay(roomCode)
	rr.logger.Info("started replay recording", zap.String("room", roomCode))
}

// GetReplay returns the in-progress replay for a room.
func (rr *ReplayRecorder) GetReplay(roomCode string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	replay, exists := rr.replays[roomCode]
	return replay, exists
}

// SaveReplay writes a room's replay to disk and forgets it.
func (rr *ReplayRecorder) SaveReplay(roomCode string, endedAt time.Time) (string, error) {
	rr.mu.Lock()
	replay, exists := rr.replays[roomCode]
	if !exists {
		rr.mu.Unlock()
		return "", fmt.Errorf("no replay found for room %s", roomCode)
	}
	delete(rr.replays, roomCode)
	rr.mu.Unlock()

	path, err := replay.SaveToFile(rr.saveDir, endedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save replay: %w", err)
	}

	rr.mu.Lock()
	rr.saved = append(rr.saved, path)
	rr.mu.Unlock()

	rr.logger.Info("saved replay to disk",
		zap.String("room", roomCode),
		zap.Int("event_count", replay.Size()),
		zap.String("path", path),
	)
	return path, nil
}

// Saved lists the files written so far.
func (rr *ReplayRecorder) Saved() []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	out := make([]string, len(rr.saved))
	copy(out, rr.saved)
	return out
}

// ClearReplay drops a room's replay without saving it.
func (rr *ReplayRecorder) ClearReplay(roomCode string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	delete(rr.replays, roomCode)
}
