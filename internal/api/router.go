package api

import (
	"net/http"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/api/handlers"
	apimiddleware "github.com/Project-Sylos/Chronicle/internal/api/middleware"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/metrics"
	"github.com/Project-Sylos/Chronicle/sdk"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router represents the HTTP API router
type Router struct {
	c *sdk.Chronicle
}

// NewRouter creates a new API router
func NewRouter(c *sdk.Chronicle) *Router {
	return &Router{c: c}
}

// SetupRoutes configures all API routes using modular handlers
func (r *Router) SetupRoutes() *chi.Mux {
	router := chi.NewRouter()

	// Standard middleware
	router.Use(logging.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RealIP)

	// Custom middleware
	router.Use(apimiddleware.CORS)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	historyHandler := handlers.NewHistoryHandler(r.c)
	itemHandler := handlers.NewItemHandler(r.c)
	eventHandler := handlers.NewEventHandler(r.c)
	systemHandler := handlers.NewSystemHandler(r.c)

	// Health check and metrics
	router.Get("/health", healthHandler.HealthCheck)
	router.Handle("/metrics", metrics.Handler())

	// API routes
	router.Route("/api/v1", func(api chi.Router) {
		// Event stream stays open, so it is outside the timeout group
		api.Get("/events", eventHandler.Stream)

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(60 * time.Second))

			api.Route("/histories", func(histories chi.Router) {
				histories.Get("/", historyHandler.ListHistories)
				histories.Post("/", historyHandler.Create)
				histories.Post("/fetch", historyHandler.FetchFirst)
				histories.Post("/more", historyHandler.FetchMore)
				histories.Put("/sort", historyHandler.Sort)
				histories.Put("/include-deleted", historyHandler.SetIncludeDeleted)

				histories.Route("/{id}", func(history chi.Router) {
					history.Get("/", historyHandler.GetHistory)
					history.Patch("/", historyHandler.Rename)
					history.Delete("/", historyHandler.Delete)
					history.Post("/copy", historyHandler.Copy)
					history.Post("/purge", historyHandler.Purge)
					history.Post("/undelete", historyHandler.Undelete)
					history.Put("/current", historyHandler.SetCurrent)
					history.Post("/watch", historyHandler.Watch)
					history.Delete("/watch", historyHandler.Unwatch)

					history.Get("/items", itemHandler.GetItems)
					history.Post("/items/fetch", itemHandler.FetchItems)
				})
			})

			// Read-only view of the item cache
			api.Handle("/cache/*", http.StripPrefix("/api/v1/cache", handlers.NewCacheHandler(r.c.AsFS())))

			// System operations
			api.Post("/reset", systemHandler.Reset)
			api.Get("/config", systemHandler.GetConfig)
			api.Get("/status", systemHandler.GetStatus)
			api.Get("/tables", systemHandler.GetTables)
			api.Get("/tables/{id}/count", systemHandler.GetTableCount)
		})
	})

	return router
}
