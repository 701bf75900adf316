package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/crawlvec/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/crawlvec/internal/api/middlewares"
)

// Server is the status and control endpoint of a running ingestion.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(addr, jwtSecret string, src handlers.StatusSource, pause func()) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(jwtSecret, src, pause),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: slog.Default().With("component", "status_server"),
	}
}

func NewRouter(jwtSecret string, src handlers.StatusSource, pause func()) http.Handler {
	statusHandler := handlers.NewStatusHandler(src, pause)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", statusHandler.Health)

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", statusHandler.GetStatus)

		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(jwtSecret))
			protected.Post("/pause", statusHandler.Pause)
		})
	})

	return r
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Info("status server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down status server")
	return s.httpServer.Shutdown(ctx)
}
