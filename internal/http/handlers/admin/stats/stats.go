// Package stats реализует админскую сводку по пользователям и выручке.
// Доступ закрыт статическим токеном из конфигурации.
package stats

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/storage"
)

// Service источник статистики.
type Service interface {
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Handler обработчик сводки.
type Handler struct {
	log        *slog.Logger
	service    Service
	adminToken string
}

// New создает Handler.
func New(log *slog.Logger, service Service, adminToken string) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		adminToken: adminToken,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.stats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := r.Header.Get("X-Admin-Token")
	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		log.Warn("rejected stats request with bad token")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		log.Error("failed to collect stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to collect stats"))
		return
	}

	render.JSON(w, r, response.OKWithData(stats))
}
