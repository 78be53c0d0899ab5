package routers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"cocreate/internal/api"
	"cocreate/internal/config"
)

// New wires the HTTP surface: the health and execute endpoints under
// /api with the original service's rate limit, and the sync relay
// WebSocket under /ws.
func New(h *api.Handlers, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllow, ","),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(100, 15*time.Minute))
		r.Get("/health", h.Health)
		r.Post("/execute", h.Execute)
	})

	r.Get("/ws", h.SyncWS)
	r.Get("/ws/{room}", h.SyncWS)

	return r
}
