package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"cocreate/internal/api"
	"cocreate/internal/config"
	"cocreate/internal/judge"
	"cocreate/internal/routers"
	"cocreate/internal/session"
	"cocreate/internal/utils"
)

// Seams for tests.
var (
	listenAndServe = http.ListenAndServe
	exitFunc       = func(err error) { log.Fatal(err) }
)

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}

func run(_ context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := utils.NewLogger()

	// Execution-result cache is optional; the proxy works without it.
	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	runner := judge.New(logger, cfg.RapidAPIKey, cfg.RapidAPIHost, cache)
	hub := session.NewHub(cfg.MaxParticipants)
	handlers := api.NewHandlers(logger, hub, runner, cfg)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	r.Mount("/", routers.New(handlers, cfg))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	addr := ":" + cfg.Port
	logger.Info("sync relay listening", "addr", addr, "maxParticipants", cfg.MaxParticipants)
	return listenAndServe(addr, r)
}
