package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MHMDHIDR/expenses-tracker/internal/config"
	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
)

// Server bundles the facade's HTTP server, database, and change hub
type Server struct {
	cfg     *config.Config
	db      *sql.DB
	hub     *ChangeHub
	handler *Handler
	srv     *http.Server
	logger  *observability.Logger
}

// New assembles the facade from configuration
func New(cfg *config.Config) (*Server, error) {
	var db *sql.DB
	var err error
	logger := observability.GetLogger().WithField("component", "server")

	if cfg.UsePostgres() {
		logger.Info("using PostgreSQL database")
		db, err = NewPostgresDB(cfg.DatabaseURL)
	} else {
		logger.Info("using SQLite database")
		db, err = NewSQLiteDB(cfg.DatabasePath)
	}
	if err != nil {
		return nil, err
	}

	images, err := NewImageService(
		cfg.ImageStorage.BasePath,
		cfg.ImageStorage.AllowedExtensions,
		cfg.ImageStorage.MaxFileSizeMB,
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	hub := NewChangeHub()
	handler := NewHandler(NewRepo(db), hub, images)

	s := &Server{
		cfg:     cfg,
		db:      db,
		hub:     hub,
		handler: handler,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.TracingMiddleware("expenses-tracker"))
	if metrics, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(metrics))
	}
	r.Use(APIKeyAuth(s.cfg.Security.APIKey, s.cfg.Security.APIKeyHash, s.cfg.Security.APIKeyHeader))

	r.Get("/health", s.handler.Health)
	r.Get("/ws", s.hub.HandleWS)

	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", s.handler.ListReceipts)
		r.Post("/", s.handler.CreateReceipt)
		r.Get("/{id}", s.handler.GetReceipt)
		r.Patch("/{id}", s.handler.UpdateReceipt)
		r.Delete("/{id}", s.handler.DeleteReceipt)
		r.Post("/{id}/image", s.handler.UploadReceiptImage)
		r.Get("/{id}/image", s.handler.GetReceiptImage)
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/", s.handler.ListItems)
		r.Post("/", s.handler.CreateItem)
		r.Post("/bulk", s.handler.BulkCreateItems)
		r.Get("/{id}", s.handler.GetItem)
		r.Patch("/{id}", s.handler.UpdateItem)
		r.Delete("/{id}", s.handler.DeleteItem)
	})

	r.Get("/settings", s.handler.GetSettings)
	r.Put("/settings", s.handler.PutSettings)

	r.Get("/sync/all", s.handler.FetchAll)
	r.Post("/sync", s.handler.BulkPush)

	return r
}

// Handler returns the assembled router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %s", s.cfg.ServerAddress)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.db.Close()
}
