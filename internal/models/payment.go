package models

import "time"

// Статусы платежа. Переходы только pending -> completed и
// pending -> failed, обратных переходов нет.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment представляет одну попытку оплаты. ID назначает ЮKassa,
// сумма в рублях и неизменна после создания записи.
type Payment struct {
	ID          string // Идентификатор платежа в ЮKassa
	UserID      int64  // Владелец платежа
	Amount      int    // Сумма в рублях
	Currency    string // Всегда "RUB"
	Status      string // pending / completed / failed
	Description string
	CreatedAt   time.Time
	PaidAt      *time.Time // Заполняется при переходе в completed
}
