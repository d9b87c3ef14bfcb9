package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/game/rules"
)

const insertResult = `
	INSERT INTO game_results (room_code, winner, players, turns, started_at, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

const selectRecent = `
	SELECT room_code, winner, players, turns, started_at, ended_at
	FROM game_results
	ORDER BY ended_at DESC
	LIMIT $1`

// querier is the read side of pgx, satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// GameResult is one finished game.
type GameResult struct {
	RoomCode  string
	Winner    string
	Players   []string
	Turns     int
	StartedAt time.Time
	EndedAt   time.Time
}

// ResultFromEvent extracts a GameResult from a GAME_OVER room event.
func ResultFromEvent(evt rules.Event) (GameResult, error) {
	if evt.Type != rules.EventGameOver {
		return GameResult{}, fmt.Errorf("event %s is not %s", evt.Type, rules.EventGameOver)
	}
	res := GameResult{
		RoomCode: evt.RoomCode,
		Winner:   evt.Data,
		Turns:    evt.Amount,
		EndedAt:  evt.Timestamp,
	}
	if raw := evt.Metadata["started_at"]; raw != "" {
		started, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return GameResult{}, fmt.Errorf("invalid started_at %q: %w", raw, err)
		}
		res.StartedAt = started
	} else {
		res.StartedAt = evt.Timestamp
	}
	if raw := evt.Metadata["players"]; raw != "" {
		res.Players = strings.Split(raw, ",")
	}
	return res, nil
}

// RecentResults returns up to limit finished games, newest first.
func RecentResults(ctx context.Context, db querier, limit int) ([]GameResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

func scanResult(row pgx.CollectableRow) (GameResult, error) {
	var res GameResult
	err := row.Scan(&res.RoomCode, &res.Winner, &res.Players, &res.Turns, &res.StartedAt, &res.EndedAt)
	return res, err
}

// ResultsRepository stores finished games.
type ResultsRepository struct {
	db      execer
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewResultsRepository creates a repository writing through db.
func NewResultsRepository(db execer, logger *zap.Logger) *ResultsRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsRepository{
		db:      db,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record inserts one result.
func (r *ResultsRepository) Record(ctx context.Context, res GameResult) error {
	if res.RoomCode == "" || res.Winner == "" {
		return errors.New("result needs a room code and a winner")
	}
	players := res.Players
	if players == nil {
		players = []string{}
	}
	if _, err := r.db.Exec(ctx, insertResult,
		res.RoomCode, res.Winner, players, res.Turns, res.StartedAt, res.EndedAt,
	); err != nil {
		return fmt.Errorf("failed to insert result for room %s: %w", res.RoomCode, err)
	}
	return nil
}

// Attach records every game that ends on bus. Inserts run in the background
// because bus listeners hold the room lock.
func (r *ResultsRepository) Attach(bus *rules.EventBus) int {
	return bus.SubscribeTyped(rules.EventGameOver, func(evt rules.Event) {
		res, err := ResultFromEvent(evt)
		if err != nil {
			r.logger.Error("unreadable game over event", zap.String("room", evt.RoomCode), zap.Error(err))
			return
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()

			if err := r.Record(ctx, res); err != nil {
				r.logger.Error("failed to record game result", zap.String("room", res.RoomCode), zap.Error(err))
				return
			}
			r.logger.Info("recorded game result",
				zap.String("room", res.RoomCode),
				zap.String("winner", res.Winner),
				zap.Int("turns", res.Turns),
			)
		}()
	})
}

// Wait blocks until every background insert has finished.
func (r *ResultsRepository) Wait() {
	r.wg.Wait()
}
