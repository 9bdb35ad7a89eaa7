// Package users реализует административные действия над пользователем:
// блокировку и сброс триала. Сброс триала — единственный путь, которым
// trial_ended возвращается в false.
package users

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// Service административные операции хранилища.
type Service interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	BanUser(ctx context.Context, userID int64) error
	ResetTrial(ctx context.Context, userID int64) error
}

// Quota информационные счетчики движка квот.
type Quota interface {
	PhotoCountToday(ctx context.Context, userID int64) int64
}

// Counters счетчики обращений из кеша.
type Counters interface {
	GetRateCounter(ctx context.Context, userID int64) (int64, error)
}

// Handler обработчик административных действий.
type Handler struct {
	log        *slog.Logger
	service    Service
	quota      Quota
	counters   Counters
	adminToken string
}

// New создает Handler.
func New(log *slog.Logger, service Service, quota Quota, counters Counters, adminToken string) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		quota:      quota,
		counters:   counters,
		adminToken: adminToken,
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Admin-Token")
	return h.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func (h *Handler) userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// Info отдает состояние пользователя вместе со счетчиками потребления
// за текущие окна: сколько фото за сутки и обращений за минуту.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.info"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if !h.authorized(r) {
		log.Warn("rejected admin request with bad token")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	id, ok := h.userID(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user id"))
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		log.Error("failed to load user", sl.UserID(id), sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	}

	rateCount, err := h.counters.GetRateCounter(r.Context(), id)
	if err != nil {
		log.Warn("failed to read rate counter", sl.UserID(id), sl.Err(err))
		rateCount = 0
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"user_id":           u.ID,
		"username":          u.Username,
		"current_character": u.CurrentCharacter,
		"vip_until":         u.VIPUntil,
		"trial_messages":    u.TrialMessages,
		"trial_ended":       u.TrialEnded,
		"banned":            u.Banned,
		"last_active":       u.LastActive,
		"photo_count_today": h.quota.PhotoCountToday(r.Context(), id),
		"rate_count_minute": rateCount,
	}))
}

// Ban блокирует пользователя. Запись не удаляется, конвейер перестает
// его обслуживать.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.ban"
	h.run(w, r, op, h.service.BanUser)
}

// ResetTrial сбрасывает счетчики триала пользователя.
func (h *Handler) ResetTrial(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.reset_trial"
	h.run(w, r, op, h.service.ResetTrial)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, op string, action func(context.Context, int64) error) {
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if !h.authorized(r) {
		log.Warn("rejected admin request with bad token")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	id, ok := h.userID(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user id"))
		return
	}

	if err := action(r.Context(), id); err != nil {
		log.Error("admin action failed", sl.UserID(id), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("action failed"))
		return
	}
	log.Info("admin action applied", sl.UserID(id))
	render.JSON(w, r, response.OKWithData(map[string]any{"user_id": id}))
}
