package handlers

import (
	"github.com/go-chi/chi"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/auth"
	"github.com/d4l-data4life/go-chat-gateway/pkg/config"
	"github.com/d4l-data4life/go-chat-gateway/pkg/relay"
	"github.com/d4l-data4life/go-svc/pkg/middlewares"
)

// RegisterRoutes registers all API routes
func RegisterRoutes(
	r chi.Router,
	db *gorm.DB,
	engine *relay.Engine,
	tokenValidator auth.TokenValidator,
	jwtSecret []byte,
) {
	prefix := viper.GetString("PREFIX")

	// External routes (ingress routes)
	r.Route(prefix, func(r chi.Router) {
		// Public routes (no authentication required)
		authHandler := NewAuthHandler(db, jwtSecret)
		r.Mount("/auth", authHandler.Routes())

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(db, tokenValidator))

			r.Mount("/auth/me", authHandler.MeRoutes())

			// Conversations
			conversationsHandler := NewConversationsHandler(db, engine.Titles())
			r.Mount("/conversations", conversationsHandler.Routes())

			// Messages (nested under conversations)
			messagesHandler := NewMessagesHandler(db, engine)
			r.Route("/conversations/{id}/messages", func(r chi.Router) {
				r.Mount("/", messagesHandler.Routes())
			})

			// Models available for chatting
			modelConfigsHandler := NewModelConfigsHandler(db)
			r.Mount("/models", modelConfigsHandler.Routes())

			// Administration
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin(db))

				r.Mount("/models", modelConfigsHandler.AdminRoutes())
				r.Mount("/providers", NewProvidersHandler(db).Routes())
			})
		})
	})

	// Internal routes (service-to-service)
	r.Route(config.InternalPrefix, func(r chi.Router) {
		// Service-authenticated routes (require service secret)
		r.Group(func(r chi.Router) {
			serviceSecret := viper.GetString("SERVICE_SECRET")
			if serviceSecret == "" {
				// If no service secret is configured, skip service auth routes
				return
			}

			logger := NewServiceAuthLogger()
			serviceAuth := middlewares.NewServiceSecretAuthenticator(serviceSecret, logger)
			r.Use(serviceAuth.Authenticate())

			// Users management
			usersHandler := NewUsersHandler(db)
			r.Mount("/users", usersHandler.Routes())
		})
	})
}
