package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the chi router for the HTTP API.
func NewRouter(handler *Handler, logger logrus.FieldLogger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(logger.WithField("component", "http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/users", handler.ListUsers)
		r.Get("/users/{slug}/eligibility", handler.Eligibility)
		r.Get("/users/{slug}/inbox", handler.Inbox)
		r.Get("/users/{slug}/archive", handler.Archive)
		r.Post("/links", handler.SubmitLink)
		r.Post("/links/{id}/watched", handler.MarkWatched)
		r.Get("/classify", handler.Classify)
	})
	return r
}
