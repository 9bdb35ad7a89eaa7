// Package bot предоставляет маршруты приложения.
package bot

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamgf-ru/companion-bot/internal/characters"
	"github.com/dreamgf-ru/companion-bot/internal/config"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/admin/stats"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/admin/users"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/chat/character"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/chat/message"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/health"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/payment/paymentcreate"
	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/payment/paymentwebhook"
	chatservice "github.com/dreamgf-ru/companion-bot/internal/services/chat"
	"github.com/dreamgf-ru/companion-bot/internal/services/entitlement"
	subservice "github.com/dreamgf-ru/companion-bot/internal/services/subscription"
	"github.com/dreamgf-ru/companion-bot/internal/storage"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, pipeline *chatservice.Service, subs *subservice.Service, db *storage.Storage, quota *entitlement.Service, counters users.Counters, catalog *characters.Catalog) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat/message", message.New(logger, pipeline).ServeHTTP)
		r.Post("/chat/character", character.New(logger, db, catalog).ServeHTTP)
		r.Post("/payments", paymentcreate.New(logger, subs).ServeHTTP)

		// Webhook endpoint (подпись проверяется в обработчике)
		r.Post("/payments/webhook", paymentwebhook.New(logger, subs, cfg.WebhookSecret).ServeHTTP)

		r.Get("/admin/stats", stats.New(logger, db, cfg.AdminToken).ServeHTTP)
		adminUsers := users.New(logger, db, quota, counters, cfg.AdminToken)
		r.Get("/admin/users/{id}", adminUsers.Info)
		r.Post("/admin/users/{id}/ban", adminUsers.Ban)
		r.Post("/admin/users/{id}/reset-trial", adminUsers.ResetTrial)
	})

	r.Get("/health", health.New(logger, db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
}
