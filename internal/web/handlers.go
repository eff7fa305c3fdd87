package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/engine"
	"story-o-matic/server/internal/strategy"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	hub        *StoryHub
	strategies *strategy.Manager
	backend    string
	logger     *zap.Logger
}

func NewHandlers(hub *StoryHub, strategies *strategy.Manager, backend string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		hub:        hub,
		strategies: strategies,
		backend:    backend,
		logger:     logger.Named("handlers"),
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.GetClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "story-o-matic",
		"backend":   h.backend,
		"wsClients": clients,
	})
}

func (h *Handlers) ListGenres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Genres())
}

func (h *Handlers) ListInstructions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Instructions())
}

func (h *Handlers) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.strategies.Versions())
}

// StreamStories upgrades to a WebSocket that receives story_state events.
// ?story=<id> limits the stream to one story.
func (h *Handlers) StreamStories(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Hub not initialized"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := &Client{
		ID:      uuid.New().String(),
		StoryID: r.URL.Query().Get("story"),
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Hub:     h.hub,
	}

	h.hub.register <- client
	h.logger.Debug("Stream client connected", zap.String("client_id", client.ID), zap.String("story", client.StoryID))

	welcome, _ := json.Marshal(map[string]any{
		"type":  "connected",
		"id":    client.ID,
		"story": client.StoryID,
		"time":  time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	go client.readPump()
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every request once it completes
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func NewRouter(handlers *Handlers, stories *StoryHandlers, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(corsMiddleware)

	r.Get("/health", handlers.HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(engine.MetricsRegistry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/genres", handlers.ListGenres)
			r.Get("/instructions", handlers.ListInstructions)
			r.Get("/strategies", handlers.ListStrategies)
		})

		r.Route("/stories", func(r chi.Router) {
			r.Get("/", stories.ListStories)
			r.Post("/", stories.StartStory)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", stories.GetStory)
				r.Delete("/", stories.DeleteStory)
				r.Post("/choices", stories.ApplyChoice)
				r.Post("/regenerate", stories.RegenerateChoices)
				r.Post("/retry", stories.Retry)
				r.Put("/settings", stories.EditSettings)
				r.Get("/summary", stories.Summary)
			})
		})

		r.Get("/ws", handlers.StreamStories)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
