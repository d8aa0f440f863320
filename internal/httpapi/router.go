package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Routes builds the HTTP router for the kernel API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (no tenant required)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1/kernel", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(RateLimitMiddleware(RateLimit{WindowSeconds: 60, MaxRequests: 600, Burst: 120}))

		r.Route("/objects", func(r chi.Router) {
			r.Post("/", s.CreateObject)
			r.Post("/bulk-get", s.BulkGetObjects)
			r.Get("/counts", s.CountObjects)
			r.Get("/recent", s.RecentObjects)
			r.Get("/search", s.SearchObjects)
			r.Get("/attribute", s.QueryObjectsByAttribute)
			r.Get("/code/{typeCode}/{code}", s.GetObjectByCode)
			r.Get("/type/{typeCode}", s.ListObjectsByType)
			r.Get("/status/{status}", s.ListObjectsByStatus)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetObject)
				r.Put("/", s.UpdateObject)
				r.Delete("/", s.DeleteObject)
				r.Post("/restore", s.RestoreObject)
				r.Post("/status", s.ChangeObjectStatus)
				r.Get("/relationships", s.ListObjectRelationships)
			})
		})

		r.Route("/versions/object/{id}", func(r chi.Router) {
			r.Get("/", s.GetVersionHistory)
			r.Get("/version/{number}", s.GetVersion)
			r.Get("/at", s.GetVersionAtTime)
		})

		r.Route("/relationships", func(r chi.Router) {
			r.Post("/", s.CreateRelationship)
			r.Delete("/{id}", s.DeleteRelationship)
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Put("/", s.SyncTypeMetadata)
			r.Get("/stale", s.ListStaleTypeMetadata)
			r.Get("/{typeCode}", s.GetTypeMetadata)
			r.Post("/{typeCode}/stale", s.MarkTypeMetadataStale)
		})

		r.Get("/outbox/dead-letters", s.ListDeadLetters)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
