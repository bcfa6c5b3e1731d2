// Package server wires handlers and middleware into the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/marloweai/marlowe/internal/api/handlers"
	"github.com/marloweai/marlowe/internal/api/middleware"
)

type RouterConfig struct {
	KnowledgeHandler *handlers.KnowledgeHandler
	RAGHandler       *handlers.RAGHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", cfg.RAGHandler.Health)

	r.Route("/knowledge", func(r chi.Router) {
		r.Post("/", cfg.KnowledgeHandler.Create)
		r.Get("/", cfg.KnowledgeHandler.List)
		r.Get("/{id}", cfg.KnowledgeHandler.Get)
		r.Put("/{id}", cfg.KnowledgeHandler.Update)
		r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
	})

	r.Post("/search", cfg.RAGHandler.Search)
	r.Post("/chat", cfg.RAGHandler.Chat)

	return r
}
