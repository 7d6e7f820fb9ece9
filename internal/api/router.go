package api

import (
	"net/http"

	"nearest-store-service/internal/api/handlers"
	"nearest-store-service/internal/services/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Sessions  *session.Manager
	GeoIP     handlers.IPLocator
	Districts []string
	Log       *zap.Logger
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	sessions := &handlers.SessionHandler{
		Sessions:  d.Sessions,
		GeoIP:     d.GeoIP,
		Districts: d.Districts,
		Log:       log,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessions.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sessions.Get)
			r.Delete("/", sessions.Delete)
			r.Get("/stores", sessions.Stores)
			r.Get("/stores.xlsx", sessions.StoresXLSX)
			r.Get("/selected", sessions.Selected)
			r.Post("/position", sessions.Relocate)
			r.Post("/selection", sessions.Select)
			r.Get("/delivery-location", sessions.DeliveryLocation)
			r.Get("/map", sessions.Map)
		})
	})

	return r
}
