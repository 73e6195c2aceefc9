// Package rest serves the request/response HTTP surface of the chat node
// and mounts the websocket endpoint next to it.
package rest

import (
	"log/slog"
	"market-chat/auth"
	"market-chat/contract"
	"market-chat/services"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Dependencies struct {
	Log            *slog.Logger
	Chat           services.IChatService
	Verifier       contract.IVerifier
	WebSocket      http.Handler
	Metrics        http.Handler
	AllowedOrigins []string
}

// NewRouter mounts every route. Everything but /healthz and /metrics
// requires a bearer token.
func NewRouter(deps Dependencies) *chi.Mux {
	h := &handlers{log: deps.Log, chat: deps.Chat}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(deps.Verifier, h.writeError))

		if deps.WebSocket != nil {
			r.Method(http.MethodGet, "/ws", deps.WebSocket)
		}
		r.Get("/conversations/{peer}/messages", h.history)
		r.Get("/conversations/{peer}/search", h.search)
		r.Put("/me/contact", h.putContact)
	})
	return r
}
