// Package chat оркестрирует обработку входящего сообщения: троттлинг,
// резервирование квоты, генерация контента, кеширование и история
// диалога. Слот квоты резервируется до генерации и возвращается при
// неудаче, так что неудачная генерация пользователю ничего не стоит.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dreamgf-ru/companion-bot/internal/cache"
	"github.com/dreamgf-ru/companion-bot/internal/characters"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/services/entitlement"
	"github.com/dreamgf-ru/companion-bot/internal/watermark"
)

// Фиксированные ответы пользователю: сырой текст ошибок наружу не
// уходит.
const (
	MsgRateLimited      = "Не так быстро, милый 😘 Подожди минутку"
	MsgGenerationFailed = "Ой, что-то пошло не так 😔 Попробуй еще раз чуть позже"
)

// RateLimiter троттлинг до всякой работы с состоянием.
type RateLimiter interface {
	Allow(userID int64) bool
}

// Entitlements движок квот.
type Entitlements interface {
	Reserve(ctx context.Context, userID int64, username, firstName string, kind models.RequestKind) (*entitlement.Reservation, entitlement.Decision, error)
}

// Generator внешние генераторы контента. Ошибка любого подтипа
// означает одно: контента нет, квота не расходуется.
type Generator interface {
	GenerateText(ctx context.Context, history []models.ChatMessage, userText string, ch models.Character) (string, error)
	GenerateImage(ctx context.Context, prompt string, ch models.Character) ([]byte, error)
	GenerateVoice(ctx context.Context, text string, ch models.Character) ([]byte, error)
}

// UsageCounter минутный счетчик обращений. Значение информационное,
// решения о троттлинге принимает RateLimiter.
type UsageCounter interface {
	IncrementRateCounter(ctx context.Context, userID int64) (int64, error)
}

// HistoryStore история диалога в кеше.
type HistoryStore interface {
	AppendChatMessage(ctx context.Context, userID int64, msg models.ChatMessage) error
	GetChatHistory(ctx context.Context, userID int64) ([]models.ChatMessage, error)
}

// ContentStore кеш сгенерированных артефактов.
type ContentStore interface {
	GetContent(ctx context.Context, scope int64, hash string) ([]byte, bool, error)
	PutContent(ctx context.Context, scope int64, hash string, artifact []byte) error
}

// Reply ответ пользователю: текст и, в зависимости от типа запроса,
// картинка или аудио.
type Reply struct {
	Text   string
	Photo  []byte
	Voice  []byte
	Denied bool
}

// Service конвейер обработки сообщений.
type Service struct {
	limiter RateLimiter
	quota   Entitlements
	gen     Generator
	usage   UsageCounter
	history HistoryStore
	content ContentStore
	catalog *characters.Catalog
	log     *slog.Logger
}

// New собирает конвейер.
func New(limiter RateLimiter, quota Entitlements, gen Generator, usage UsageCounter, history HistoryStore, content ContentStore, catalog *characters.Catalog, log *slog.Logger) *Service {
	return &Service{
		limiter: limiter,
		quota:   quota,
		gen:     gen,
		usage:   usage,
		history: history,
		content: content,
		catalog: catalog,
		log:     log,
	}
}

// Handle проводит запрос через весь конвейер и возвращает ответ для
// пользователя. Ошибка возвращается для логирования и метрик, но Reply
// пригоден к отправке всегда.
func (s *Service) Handle(ctx context.Context, rc models.RequestContext, username, firstName string) (Reply, error) {
	const op = "chat.Handle"

	if !s.limiter.Allow(rc.UserID) {
		return Reply{Text: MsgRateLimited, Denied: true}, nil
	}
	if _, err := s.usage.IncrementRateCounter(ctx, rc.UserID); err != nil {
		s.log.Warn("failed to increment rate counter", sl.UserID(rc.UserID), sl.Err(err))
	}

	res, decision, err := s.quota.Reserve(ctx, rc.UserID, username, firstName, rc.Kind)
	if err != nil {
		return Reply{Text: MsgGenerationFailed, Denied: true}, fmt.Errorf("%s: %w", op, err)
	}
	if !decision.Allowed {
		return Reply{Text: decision.Message(), Denied: true}, nil
	}

	ch := s.catalog.GetOrDefault(res.User().CurrentCharacter)

	switch rc.Kind {
	case models.RequestPhoto:
		return s.handlePhoto(ctx, rc, res, ch)
	case models.RequestVoice:
		return s.handleVoice(ctx, rc, res, ch)
	default:
		return s.handleText(ctx, rc, res, ch)
	}
}

func (s *Service) handleText(ctx context.Context, rc models.RequestContext, res *entitlement.Reservation, ch models.Character) (Reply, error) {
	const op = "chat.handleText"

	history := s.loadHistory(ctx, rc.UserID)
	answer, err := s.gen.GenerateText(ctx, history, rc.Text, ch)
	if err != nil {
		s.releaseSlot(ctx, res, rc.UserID)
		return Reply{Text: MsgGenerationFailed}, fmt.Errorf("%s: %w", op, err)
	}

	s.appendHistory(ctx, rc.UserID, models.ChatMessage{User: rc.Text, Assistant: answer})
	res.Commit(ctx)
	return Reply{Text: answer}, nil
}

func (s *Service) handlePhoto(ctx context.Context, rc models.RequestContext, res *entitlement.Reservation, ch models.Character) (Reply, error) {
	const op = "chat.handlePhoto"

	hash := cache.PromptHash(rc.Text, ch.Name)
	if data, ok, err := s.content.GetContent(ctx, cache.GlobalScope, hash); err == nil && ok {
		// Отдача из кеша тоже расходует слот: пользователь получил фото.
		res.Commit(ctx)
		return Reply{Photo: s.brandPhoto(res, data, rc.UserID)}, nil
	} else if err != nil {
		s.log.Warn("content cache read failed", sl.UserID(rc.UserID), sl.Err(err))
	}

	data, err := s.gen.GenerateImage(ctx, rc.Text, ch)
	if err != nil {
		s.releaseSlot(ctx, res, rc.UserID)
		return Reply{Text: MsgGenerationFailed}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.content.PutContent(ctx, cache.GlobalScope, hash, data); err != nil {
		s.log.Warn("content cache write failed", sl.UserID(rc.UserID), sl.Err(err))
	}

	res.Commit(ctx)
	return Reply{Photo: s.brandPhoto(res, data, rc.UserID)}, nil
}

// brandPhoto накладывает водяной знак для пользователей без подписки.
// В кеше лежит чистый артефакт, разметка происходит при каждой отдаче.
// Неудачная разметка не лишает пользователя фото: отдаем как есть.
func (s *Service) brandPhoto(res *entitlement.Reservation, data []byte, userID int64) []byte {
	if res.User().IsVIP(time.Now()) {
		return data
	}
	marked, err := watermark.Apply(data)
	if err != nil {
		s.log.Warn("failed to watermark photo", sl.UserID(userID), sl.Err(err))
		return data
	}
	return marked
}

func (s *Service) handleVoice(ctx context.Context, rc models.RequestContext, res *entitlement.Reservation, ch models.Character) (Reply, error) {
	const op = "chat.handleVoice"

	history := s.loadHistory(ctx, rc.UserID)
	answer, err := s.gen.GenerateText(ctx, history, rc.Text, ch)
	if err != nil {
		s.releaseSlot(ctx, res, rc.UserID)
		return Reply{Text: MsgGenerationFailed}, fmt.Errorf("%s: %w", op, err)
	}
	audio, err := s.gen.GenerateVoice(ctx, answer, ch)
	if err != nil {
		s.releaseSlot(ctx, res, rc.UserID)
		return Reply{Text: MsgGenerationFailed}, fmt.Errorf("%s: %w", op, err)
	}

	s.appendHistory(ctx, rc.UserID, models.ChatMessage{User: rc.Text, Assistant: answer})
	res.Commit(ctx)
	return Reply{Voice: audio, Text: answer}, nil
}

// loadHistory деградирует до пустой истории: неточный контекст LLM
// терпим, отказ в обслуживании из-за кеша — нет.
func (s *Service) loadHistory(ctx context.Context, userID int64) []models.ChatMessage {
	history, err := s.history.GetChatHistory(ctx, userID)
	if err != nil {
		s.log.Warn("failed to load chat history", sl.UserID(userID), sl.Err(err))
		return nil
	}
	return history
}

func (s *Service) appendHistory(ctx context.Context, userID int64, msg models.ChatMessage) {
	if err := s.history.AppendChatMessage(ctx, userID, msg); err != nil {
		s.log.Warn("failed to append chat history", sl.UserID(userID), sl.Err(err))
	}
}

func (s *Service) releaseSlot(ctx context.Context, res *entitlement.Reservation, userID int64) {
	if err := res.Release(ctx); err != nil {
		s.log.Error("failed to release quota slot", sl.UserID(userID), sl.Err(err))
	}
}
