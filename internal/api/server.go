package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/types"
	"github.com/Project-Sylos/Chronicle/sdk"
	"github.com/go-chi/chi/v5"
)

// Server represents the HTTP API server
type Server struct {
	router *chi.Mux
	c      *sdk.Chronicle
	config *types.APIConfig
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(c *sdk.Chronicle, config *types.APIConfig) *Server {
	router := NewRouter(c).SetupRoutes()

	return &Server{
		router: router,
		c:      c,
		config: config,
		http: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start serves until Stop is called
func (s *Server) Start() error {
	addr := s.Addr()
	logging.Named("api").Info("starting Chronicle API server",
		logging.String("addr", addr),
		logging.String("api", "http://"+addr+"/api/v1/"),
		logging.String("health", "http://"+addr+"/health"),
	)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetRouter returns the configured router
func (s *Server) GetRouter() *chi.Mux {
	return s.router
}

// Stop gracefully stops the server and closes the session
func (s *Server) Stop(ctx context.Context) error {
	shutdownErr := s.http.Shutdown(ctx)
	closeErr := s.c.Close()
	return errors.Join(shutdownErr, closeErr)
}
