// Package character реализует смену персонажа пользователем. Имя
// проверяется по каталогу до записи в базу.
package character

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/dreamgf-ru/companion-bot/internal/characters"
	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
)

// Service запись выбранного персонажа.
type Service interface {
	UpdateUserCharacter(ctx context.Context, userID int64, character string) error
}

// Handler обработчик смены персонажа.
type Handler struct {
	log      *slog.Logger
	service  Service
	catalog  *characters.Catalog
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service, catalog *characters.Catalog) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		catalog:  catalog,
		validate: validator.New(),
	}
}

// Request тело запроса на смену персонажа.
type Request struct {
	UserID    int64  `json:"user_id" validate:"required,min=1"`
	Character string `json:"character" validate:"required"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.character"
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

	if _, ok := h.catalog.Get(req.Character); !ok {
		log.Warn("unknown character requested", slog.String("character", req.Character))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown character"))
		return
	}

	if err := h.service.UpdateUserCharacter(r.Context(), req.UserID, req.Character); err != nil {
		log.Error("failed to update character", sl.UserID(req.UserID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update character"))
		return
	}

	log.Info("character updated", sl.UserID(req.UserID), slog.String("character", req.Character))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"character": req.Character,
	}))
}
