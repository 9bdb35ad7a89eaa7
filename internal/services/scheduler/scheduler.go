// Package scheduler рассылает вовлекающие сообщения: дважды в день
// активные пользователи получают инициативное сообщение от своего
// персонажа. Задачи публикуются в очередь, доставкой занимается sender.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/rabbitmq"
)

// EngagementTask задача на одно вовлекающее сообщение.
type EngagementTask struct {
	UserID    int64  `json:"user_id"`
	Character string `json:"character"`
	Slot      string `json:"slot"` // morning или evening
}

// UserRepository выборка получателей рассылки.
type UserRepository interface {
	ListActiveUsers(ctx context.Context) ([]*models.User, error)
}

// Publisher публикация задач в очередь.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Service планировщик рассылок.
type Service struct {
	repo UserRepository
	pub  Publisher
	log  *slog.Logger
}

// New создает планировщик.
func New(repo UserRepository, pub Publisher, log *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, log: log}
}

// Часы рассылок по локальному времени процесса.
const (
	morningHour = 9
	eveningHour = 23
)

// Run запускает цикл рассылок по фиксированным слотам: утром и
// вечером. Слоты привязаны к стеночным часам, а не к моменту старта
// процесса, перезапуск не вызывает внеочередную рассылку. Блокируется
// до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	for {
		at, slot := NextBroadcast(time.Now())
		timer := time.NewTimer(time.Until(at))
		select {
		case <-timer.C:
			s.Broadcast(ctx, slot)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// NextBroadcast возвращает момент и слот ближайшей рассылки после now.
func NextBroadcast(now time.Time) (time.Time, string) {
	morning := time.Date(now.Year(), now.Month(), now.Day(), morningHour, 0, 0, 0, now.Location())
	evening := time.Date(now.Year(), now.Month(), now.Day(), eveningHour, 0, 0, 0, now.Location())

	switch {
	case now.Before(morning):
		return morning, "morning"
	case now.Before(evening):
		return evening, "evening"
	default:
		return morning.AddDate(0, 0, 1), "morning"
	}
}

// Broadcast публикует по задаче на каждого активного пользователя.
// Ошибка публикации одного получателя не прерывает рассылку остальным.
func (s *Service) Broadcast(ctx context.Context, slot string) {
	s.log.Info("starting engagement broadcast", slog.String("slot", slot))

	users, err := s.repo.ListActiveUsers(ctx)
	if err != nil {
		s.log.Error("failed to list active users", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no active users for broadcast")
		return
	}
	s.log.Info("found broadcast recipients", slog.Int("count", len(users)))

	var published int
	for _, u := range users {
		task := EngagementTask{
			UserID:    u.ID,
			Character: u.CurrentCharacter,
			Slot:      slot,
		}
		if err := s.pub.Publish(ctx, "broadcast", task); err != nil {
			s.log.Error("failed to publish engagement task", sl.UserID(u.ID), sl.Err(err))
			continue
		}
		published++
	}
	s.log.Info("engagement broadcast published", slog.Int("published", published))
}

// AMQPPublisher адаптер Publisher поверх канала RabbitMQ.
type AMQPPublisher struct {
	ch *amqp.Channel
}

// NewAMQPPublisher оборачивает канал в Publisher.
func NewAMQPPublisher(ch *amqp.Channel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch}
}

// Publish публикует сообщение в exchange рассылок.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	return rabbitmq.PublishMessage(ctx, p.ch, rabbitmq.ExchangeName, routingKey, message)
}
