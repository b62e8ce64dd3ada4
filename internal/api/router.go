package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func NewRouter(apiHandler *APIHandler, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", apiHandler.HealthHandler)
	r.Get("/ready", apiHandler.ReadyHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)

		r.Get("/secure", apiHandler.SecureHandler)

		r.Post("/conversation", apiHandler.CreateConversationHandler)
		r.Get("/conversations", apiHandler.ListConversationsHandler)
		r.Patch("/conversation/{conversationID}", apiHandler.UpdateConversationHandler)
		r.Delete("/conversation/{conversationID}", apiHandler.DeleteConversationHandler)
		r.Post("/conversation/{conversationID}/chat", apiHandler.PostChatHandler)

		r.Post("/message", apiHandler.CreateMessageHandler)
		r.Get("/message", apiHandler.ListMessagesHandler)
		r.Delete("/message/{conversationID}/{messageID}", apiHandler.DeleteMessageHandler)
	})

	return r
}
