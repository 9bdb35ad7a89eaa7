// Package sender доставляет вовлекающие сообщения из очереди:
// генерирует реплику персонажа и отправляет ее пользователю.
// Инициативные сообщения бота квоту триала не расходуют.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dreamgf-ru/companion-bot/internal/characters"
	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/services/scheduler"
)

// Промпты слотов рассылки.
var slotPrompts = map[string]string{
	"morning": "Напиши короткое игривое сообщение с пожеланием доброго утра, как будто соскучилась.",
	"evening": "Напиши короткое теплое сообщение с пожеланием спокойной ночи, немного флиртуя.",
}

// UserRepository чтение состояния получателя.
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Generator генерация текста реплики.
type Generator interface {
	GenerateText(ctx context.Context, history []models.ChatMessage, userText string, ch models.Character) (string, error)
}

// HistoryStore история диалога: инициативная реплика попадает в
// контекст следующих ответов.
type HistoryStore interface {
	AppendChatMessage(ctx context.Context, userID int64, msg models.ChatMessage) error
	GetChatHistory(ctx context.Context, userID int64) ([]models.ChatMessage, error)
}

// Notifier внешний транспорт доставки сообщений пользователю.
type Notifier interface {
	SendText(ctx context.Context, userID int64, text string) error
}

// Service обработчик задач рассылки.
type Service struct {
	repo     UserRepository
	gen      Generator
	history  HistoryStore
	notifier Notifier
	catalog  *characters.Catalog
	log      *slog.Logger
}

// New создает обработчик.
func New(repo UserRepository, gen Generator, history HistoryStore, notifier Notifier, catalog *characters.Catalog, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		gen:      gen,
		history:  history,
		notifier: notifier,
		catalog:  catalog,
		log:      log,
	}
}

// HandleEngagementTask обрабатывает одну задачу из очереди. Контекст
// приходит от потребителя: остановка приложения прерывает и доставку.
// Ошибка возвращает сообщение в очередь на повтор; заблокированный
// получатель не ошибка, задача просто гасится.
func (s *Service) HandleEngagementTask(ctx context.Context, body []byte) error {
	const op = "sender.HandleEngagementTask"

	var task scheduler.EngagementTask
	if err := json.Unmarshal(body, &task); err != nil {
		s.log.Error("failed to unmarshal engagement task", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	u, err := s.repo.GetUser(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if u.Banned {
		s.log.Info("skipping banned recipient", sl.UserID(u.ID))
		return nil
	}

	prompt, ok := slotPrompts[task.Slot]
	if !ok {
		s.log.Warn("unknown engagement slot, dropping task", slog.String("slot", task.Slot))
		return nil
	}

	ch := s.catalog.GetOrDefault(task.Character)
	history, err := s.history.GetChatHistory(ctx, u.ID)
	if err != nil {
		s.log.Warn("failed to load chat history", sl.UserID(u.ID), sl.Err(err))
		history = nil
	}

	text, err := s.gen.GenerateText(ctx, history, prompt, ch)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.notifier.SendText(ctx, u.ID, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.history.AppendChatMessage(ctx, u.ID, models.ChatMessage{Assistant: text}); err != nil {
		s.log.Warn("failed to append engagement message to history", sl.UserID(u.ID), sl.Err(err))
	}
	s.log.Info("engagement message delivered", sl.UserID(u.ID), slog.String("slot", task.Slot))
	return nil
}
