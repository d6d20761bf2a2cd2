package graph

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the lineage feature routes.
func SetupRoutes(router chi.Router, d Deps) error {
	handlers := NewHandlers(d)

	// SSE route (live updates only)
	router.Get("/lineage/updates", handlers.Updates)

	router.Route("/api/lineage", func(r chi.Router) {
		r.Post("/project", handlers.Project)
		r.Post("/layout", handlers.Layout)
		r.Post("/classify", handlers.Classify)
		r.Post("/merge", handlers.Merge)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", handlers.View)
			r.Post("/expand", handlers.Expand)
			r.Post("/connect", handlers.Connect)
			r.Post("/disconnect", handlers.Disconnect)
			r.Post("/column/remove", handlers.RemoveColumn)
			r.Post("/node/remove", handlers.RemoveNode)
			r.Post("/toggle", handlers.Toggle)
			r.Post("/edit", handlers.Edit)
		})

		r.Get("/{type}/{fqn}", handlers.Load)
	})

	return nil
}
