// Package subscription реализует жизненный цикл подписки: создание
// платежа, обработку событий шлюза и продление срока действия VIP.
// Этот пакет единственный, кто пишет Payment.status и User.vip_until.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dreamgf-ru/companion-bot/internal/lib/sl"
	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/paymentprovider"
)

// DiscountThreshold первые N успешных платежей по базовому тарифу
// получают скидку 50%.
const DiscountThreshold = 100

// Тарифы: запрашиваемая сумма в рублях и срок подписки в днях.
var tierDays = map[int]int{
	990:  30,
	495:  30, // базовый тариф со скидкой
	1690: 90,
	2990: 365,
}

// ErrUnknownTier сумма не соответствует ни одному тарифу.
var ErrUnknownTier = errors.New("unknown subscription tier")

// PaymentRepository операции хранилища над платежами.
type PaymentRepository interface {
	SavePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status string) (bool, error)
	CountCompletedPayments(ctx context.Context) (int, error)
	ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]string, error)
}

// UserRepository операции хранилища над подпиской пользователя.
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateVIPUntil(ctx context.Context, userID int64, until time.Time) error
}

// Provider платежный шлюз.
type Provider interface {
	CreatePayment(ctx context.Context, req paymentprovider.CreatePaymentRequest) (*paymentprovider.Payment, error)
	FindPayment(ctx context.Context, paymentID string) (*paymentprovider.Payment, error)
}

// Service управляет подписками.
type Service struct {
	payments  PaymentRepository
	users     UserRepository
	provider  Provider
	returnURL string
	log       *slog.Logger
}

// New создает сервис подписок.
func New(payments PaymentRepository, users UserRepository, provider Provider, returnURL string, log *slog.Logger) *Service {
	return &Service{
		payments:  payments,
		users:     users,
		provider:  provider,
		returnURL: returnURL,
		log:       log,
	}
}

// ChargeableAmount возвращает сумму к оплате для запрошенного тарифа:
// первые сто успешных платежей по базовому тарифу идут со скидкой.
// Счетчик читается из базы со строгой консистентностью, ошибка чтения
// не превращается в скидку.
func (s *Service) ChargeableAmount(ctx context.Context, requested int) (int, error) {
	const op = "subscription.ChargeableAmount"

	if _, ok := tierDays[requested]; !ok || requested == 495 {
		return 0, fmt.Errorf("%s: %w: %d", op, ErrUnknownTier, requested)
	}
	if requested != 990 {
		return requested, nil
	}
	count, err := s.payments.CountCompletedPayments(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if count < DiscountThreshold {
		return 495, nil
	}
	return 990, nil
}

// CreatePayment создает платеж в шлюзе и записывает его как pending.
// Возвращает URL подтверждения для пользователя.
func (s *Service) CreatePayment(ctx context.Context, userID int64, requested int) (string, error) {
	const op = "subscription.CreatePayment"

	amount, err := s.ChargeableAmount(ctx, requested)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req := paymentprovider.CreatePaymentRequest{
		Amount: paymentprovider.Amount{
			Value:    fmt.Sprintf("%d.00", amount),
			Currency: "RUB",
		},
		Capture: true,
		Confirmation: paymentprovider.Confirmation{
			Type:      "redirect",
			ReturnURL: s.returnURL,
		},
		Description: fmt.Sprintf("VIP-подписка на %d дней", tierDays[amount]),
		Metadata: map[string]string{
			"user_id": fmt.Sprintf("%d", userID),
		},
	}
	created, err := s.provider.CreatePayment(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	payment := &models.Payment{
		ID:          created.ID,
		UserID:      userID,
		Amount:      amount,
		Currency:    "RUB",
		Status:      models.PaymentStatusPending,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	if err := s.payments.SavePayment(ctx, payment); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("created pending payment",
		slog.String("payment_id", created.ID),
		sl.UserID(userID),
		slog.Int("amount", amount))

	if created.Confirmation == nil || created.Confirmation.ConfirmationURL == "" {
		return "", fmt.Errorf("%s: provider returned no confirmation url", op)
	}
	return created.Confirmation.ConfirmationURL, nil
}

// ProcessPaymentEvent обрабатывает уведомление шлюза об изменении
// статуса платежа. Обработка идемпотентна: статус переводится только
// из pending, повторное уведомление ничего не меняет и не продлевает
// подписку второй раз.
func (s *Service) ProcessPaymentEvent(ctx context.Context, paymentID string, succeeded bool) error {
	const op = "subscription.ProcessPaymentEvent"

	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := models.PaymentStatusFailed
	if succeeded {
		status = models.PaymentStatusCompleted
	}
	updated, err := s.payments.UpdatePaymentStatus(ctx, paymentID, status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !updated {
		s.log.Warn("payment already settled, ignoring event",
			slog.String("payment_id", paymentID),
			slog.String("status", string(status)))
		return nil
	}
	if !succeeded {
		s.log.Info("payment failed", slog.String("payment_id", paymentID), sl.UserID(payment.UserID))
		return nil
	}

	days, ok := tierDays[payment.Amount]
	if !ok {
		return fmt.Errorf("%s: %w: %d", op, ErrUnknownTier, payment.Amount)
	}
	if err := s.grant(ctx, payment.UserID, days); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription granted",
		slog.String("payment_id", paymentID),
		sl.UserID(payment.UserID),
		slog.Int("days", days))
	return nil
}

// grant продлевает подписку: отсчет от текущего срока, если он еще не
// истек, иначе от настоящего момента. Срок только растет.
func (s *Service) grant(ctx context.Context, userID int64, days int) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	base := now
	if u.VIPUntil != nil && u.VIPUntil.After(now) {
		base = *u.VIPUntil
	}
	until := base.AddDate(0, 0, days)
	return s.users.UpdateVIPUntil(ctx, userID, until)
}

// SyncPaymentState опрашивает шлюз по платежу и применяет его статус.
// Используется как страховка, когда вебхук не дошел.
func (s *Service) SyncPaymentState(ctx context.Context, paymentID string) error {
	const op = "subscription.SyncPaymentState"

	remote, err := s.provider.FindPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch remote.Status {
	case "succeeded":
		return s.ProcessPaymentEvent(ctx, paymentID, true)
	case "canceled":
		return s.ProcessPaymentEvent(ctx, paymentID, false)
	default:
		return nil
	}
}

// Параметры фоновой сверки зависших платежей.
const (
	sweepInterval = 10 * time.Minute
	staleAfter    = 15 * time.Minute
)

// SyncStalePayments один проход сверки: опрашивает шлюз по каждому
// платежу, зависшему в pending. Ошибка одного платежа не прерывает
// проход по остальным.
func (s *Service) SyncStalePayments(ctx context.Context) error {
	const op = "subscription.SyncStalePayments"

	ids, err := s.payments.ListStalePendingPayments(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, id := range ids {
		if err := s.SyncPaymentState(ctx, id); err != nil {
			s.log.Warn("failed to sync stale payment",
				slog.String("payment_id", id), sl.Err(err))
		}
	}
	return nil
}

// RunPendingSweep периодически сверяет зависшие платежи со шлюзом:
// потерянный вебхук не должен оставить оплаченную подписку невыданной.
// Блокируется до отмены контекста.
func (s *Service) RunPendingSweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SyncStalePayments(ctx); err != nil {
				s.log.Error("pending payments sweep failed", sl.Err(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
