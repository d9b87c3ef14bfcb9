package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/lobby"
)

// RoomSummary is the lobby listing entry for one room.
type RoomSummary struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Players int    `json:"players"`
}

type api struct {
	registry *lobby.Registry
	logger   *zap.Logger
}

// NewRouter builds the HTTP surface: health, the room API and the websocket endpoint.
func NewRouter(registry *lobby.Registry, ws http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &api{registry: registry, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.health)
	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", a.listRooms)
		r.Post("/", a.createRoom)
		r.Get("/{code}", a.getRoom)
	})
	if ws != nil {
		r.Handle("/ws", ws)
	}
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  a.registry.Count(),
	})
}

func (a *api) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := a.registry.Rooms()
	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomSummary{
			Code:    room.Code(),
			Status:  string(room.Status()),
			Players: room.PlayerCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	room := a.registry.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"code": room.Code()})
}

func (a *api) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := a.registry.Get(chi.URLParam(r, "code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
