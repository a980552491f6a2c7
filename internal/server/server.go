package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cartsync/internal/handler"
	"github.com/dukerupert/cartsync/internal/middleware"
	"github.com/dukerupert/cartsync/internal/shopping"
	"github.com/dukerupert/cartsync/internal/state"
	ws "github.com/dukerupert/cartsync/internal/websocket"
)

// Options holds the HTTP-level knobs for the agent's local API.
type Options struct {
	// SyncRateLimit caps manual sync and connectivity signals per client per minute.
	SyncRateLimit int
}

type Server struct {
	state       *state.Container
	hub         *ws.Hub
	shoppingH   *handler.ShoppingHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

func New(c *state.Container, svc *shopping.Service, monitor handler.Signaler, opts Options, logger *slog.Logger) *Server {
	if opts.SyncRateLimit <= 0 {
		opts.SyncRateLimit = 30
	}
	return &Server{
		state:       c,
		hub:         ws.NewHub(logger.With("component", "websocket")),
		shoppingH:   handler.NewShoppingHandler(svc, c, monitor, logger.With("component", "shopping")),
		rateLimiter: middleware.NewRateLimiter(),
		opts:        opts,
		logger:      logger,
	}
}

// Hub returns the websocket hub so callers can relay container changes.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, func() ws.Message {
		return ws.SnapshotMessage(s.state)
	}))

	h := s.shoppingH
	mux.HandleFunc("GET /api/shopping-list", h.Get)
	mux.HandleFunc("GET /api/shopping-list/stats", h.Stats)
	mux.HandleFunc("GET /api/shopping-list/categories", h.Categories)
	mux.HandleFunc("PATCH /api/shopping-list/items/{item_id}/toggle", h.ToggleItem)
	mux.HandleFunc("PATCH /api/shopping-list/bulk-toggle", h.BulkToggle)
	mux.HandleFunc("POST /api/shopping-list/regenerate", h.Regenerate)
	mux.HandleFunc("POST /api/shopping-lists/{list_id}/load", h.Load)
	mux.HandleFunc("GET /api/shopping-lists/{list_id}/statistics", h.Statistics)
	mux.HandleFunc("GET /api/shopping-lists/{list_id}/history", h.History)
	mux.HandleFunc("POST /api/shopping-lists/{list_id}/export-data", h.ExportData)

	limited := middleware.RateLimit(s.rateLimiter, s.opts.SyncRateLimit, time.Minute)
	mux.Handle("POST /api/sync", limited(http.HandlerFunc(h.Sync)))
	mux.Handle("POST /api/connectivity", limited(http.HandlerFunc(h.Connectivity)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	st := s.state.SyncState()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"offline":         st.OfflineMode,
		"pending_actions": s.state.PendingCount(),
		"clients":         s.hub.ClientCount(),
	})
}
