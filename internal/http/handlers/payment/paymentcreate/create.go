// Package paymentcreate реализует HTTP-обработчик создания платежа за
// VIP-подписку. Принимает идентификатор пользователя и запрошенный
// тариф, возвращает ссылку на страницу оплаты.
package paymentcreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/services/subscription"
)

// Service интерфейс сервиса подписок.
type Service interface {
	CreatePayment(ctx context.Context, userID int64, requested int) (string, error)
}

// Handler обработчик создания платежа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// Request тело запроса на создание платежа.
type Request struct {
	UserID int64 `json:"user_id" validate:"required,min=1"`
	Amount int   `json:"amount" validate:"required,min=1"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(validateErrs))
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	url, err := h.service.CreatePayment(r.Context(), req.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, subscription.ErrUnknownTier) {
			log.Warn("unknown tier requested", slog.Int("amount", req.Amount))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown subscription tier"))
			return
		}
		log.Error("failed to create payment", sl.Err(err), sl.UserID(req.UserID))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create payment"))
		return
	}

	log.Info("payment created", sl.UserID(req.UserID), slog.Int("amount", req.Amount))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"confirmation_url": url,
	}))
}
