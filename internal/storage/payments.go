package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// ErrPaymentNotFound возвращается, когда платеж с таким ID не найден.
var ErrPaymentNotFound = errors.New("payment not found")

// SavePayment сохраняет новую попытку оплаты со статусом pending.
func (s *Storage) SavePayment(ctx context.Context, p *models.Payment) error {
	const op = "storage.SavePayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (id, user_id, amount, currency, status, description)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.DB.ExecContext(ctx, query,
		p.ID, p.UserID, p.Amount, p.Currency, p.Status, p.Description)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPayment возвращает платеж по идентификатору провайдера.
func (s *Storage) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	const op = "storage.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, currency, status, COALESCE(description, ''),
			      created_at, paid_at
			  FROM payments
			  WHERE id = $1`
	p := &models.Payment{}
	err := s.DB.QueryRowContext(ctx, query, paymentID).Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.Description,
		&p.CreatedAt, &p.PaidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdatePaymentStatus переводит платеж из pending в терминальный статус.
// Обратные переходы отрезаются условием WHERE: если строка не изменилась,
// платеж уже был обработан или не существует.
func (s *Storage) UpdatePaymentStatus(ctx context.Context, paymentID, status string) (bool, error) {
	const op = "storage.UpdatePaymentStatus"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET status = $1,
			      paid_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE paid_at END
			  WHERE id = $2 AND status = 'pending'`
	res, err := s.DB.ExecContext(ctx, query, status, paymentID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

// ListStalePendingPayments возвращает идентификаторы платежей, которые
// зависли в pending дольше порога: по ним вебхук либо потерялся, либо
// пользователь бросил оплату.
func (s *Storage) ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]string, error) {
	const op = "storage.ListStalePendingPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id FROM payments WHERE status = 'pending' AND created_at < $1`
	rows, err := s.DB.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

// CountCompletedPayments считает завершенные платежи по всем
// пользователям. Скидка первых ста покупателей считается только отсюда:
// ошибка чтения пробрасывается, а не превращается в ноль.
func (s *Storage) CountCompletedPayments(ctx context.Context) (int, error) {
	const op = "storage.CountCompletedPayments"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	query := `SELECT COUNT(*) FROM payments WHERE status = 'completed'`
	if err := s.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
