package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devaloi/courier/internal/middleware"
)

// Routes builds the chi router with the full middleware chain.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Logging(h.Log))
	r.Use(middleware.Recovery(h.Log))
	r.Use(middleware.CORS(h.AllowedOrigin))
	r.Use(middleware.Authenticate(h.Sessions))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/register", h.Register)
	r.Post("/api/login", h.Login)

	r.Group(func(p chi.Router) {
		p.Use(middleware.RequireIdentity)

		convPath := "/api/conversations"
		p.Get(convPath, h.ListConversations)
		p.Get(convPath+"/{counterpartID}", h.Thread)
		p.Delete(convPath+"/{counterpartID}", h.DeleteThread)
		p.Post(convPath+"/{counterpartID}/delete", h.DeleteThreadForm)

		p.Get("/api/presence/{userID}", h.Presence)

		p.Get("/ws", h.ServeWS)
	})

	return r
}
