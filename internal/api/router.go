package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"quorum/internal/api/handlers"
	apimw "quorum/internal/api/middleware"
	ws "quorum/internal/api/websocket"
	"quorum/internal/service"
)

func NewRouter(server *handlers.Server, app *service.App, hub *ws.Hub, logger *slog.Logger) http.Handler {
	server.Sockets = hub

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(apimw.Logging(logger))

	r.Get("/healthz", server.Health)

	r.Route("/api/v1", func(api chi.Router) {
		// Authenticates from the api_key query parameter itself.
		api.Get("/ws", hub.ServeWS)

		api.Group(func(protected chi.Router) {
			protected.Use(apimw.RequireAuth(app))
			protected.Use(apimw.NewRateLimiter(app.Config.Auth.RequestsPerMinute, app.Config.Auth.Burst).Middleware)

			protected.Get("/users/me", server.CurrentUser)
			protected.Get("/users/me/saved-searches", server.GetSavedSearches)
			protected.Put("/users/me/saved-searches", server.PutSavedSearches)

			protected.Post("/topics", server.CreateTopic)
			protected.Get("/topics/{id}", server.GetTopic)
			protected.Post("/topics/{id}/posts", server.Reply)
			protected.Delete("/posts/{id}", server.DeletePost)

			protected.Get("/search", server.Search)
			protected.Get("/messages", server.Inbox)

			protected.Group(func(admin chi.Router) {
				admin.Use(apimw.RequireAdmin(app))
				admin.Post("/users", server.CreateUser)
				admin.Get("/users/{id}", server.GetUser)
				admin.Put("/users/{id}/trust-level", server.SetTrustLevel)
				admin.Post("/users/{id}/rotate-key", server.RotateUserKey)
				admin.Post("/admin/saved-searches/run", server.RunAllSavedSearches)
				admin.Post("/admin/saved-searches/run/{id}", server.RunSavedSearches)
				admin.Get("/admin/stats", server.AdminStats)
				admin.Get("/admin/config", server.AdminConfig)
				admin.Get("/admin/audit", server.AuditLog)
			})
		})
	})

	return r
}
