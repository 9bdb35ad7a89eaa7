// Package message реализует прием входящего сообщения пользователя от
// адаптера мессенджера: тело запроса превращается в типизированный
// контекст запроса и проходит конвейер чата.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/services/chat"
)

// Service конвейер чата.
type Service interface {
	Handle(ctx context.Context, rc models.RequestContext, username, firstName string) (chat.Reply, error)
}

// Handler обработчик входящих сообщений.
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

// Request входящее сообщение от адаптера мессенджера.
type Request struct {
	UserID    int64  `json:"user_id" validate:"required,min=1"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Kind      string `json:"kind" validate:"required,oneof=text photo voice"`
	Text      string `json:"text"`
}

// Reply ответ конвейера: медиа уходят в base64.
type Reply struct {
	Text   string `json:"text,omitempty"`
	Photo  []byte `json:"photo,omitempty"`
	Voice  []byte `json:"voice,omitempty"`
	Denied bool   `json:"denied"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.message"
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

	rc := models.RequestContext{
		UserID:    req.UserID,
		Kind:      models.RequestKind(req.Kind),
		Text:      req.Text,
		Timestamp: time.Now(),
	}
	reply, err := h.service.Handle(r.Context(), rc, req.Username, req.FirstName)
	if err != nil {
		// Пользователь получает фиксированное сообщение из Reply,
		// детали остаются в логах.
		log.Error("pipeline failed", sl.UserID(req.UserID), sl.Err(err))
	}

	render.JSON(w, r, response.OKWithData(Reply{
		Text:   reply.Text,
		Photo:  reply.Photo,
		Voice:  reply.Voice,
		Denied: reply.Denied,
	}))
}
