package storage

import (
	"context"
	"fmt"
)

// Stats агрегированная статистика для административной команды.
type Stats struct {
	TotalUsers      int `json:"total_users"`
	ActiveUsers     int `json:"active_users"`
	VIPUsers        int `json:"vip_users"`
	TotalPayments   int `json:"total_payments"`
	MonthlyRevenue  int `json:"monthly_revenue"`
	EndedTrialUsers int `json:"ended_trial_users"`
}

// GetStats собирает показатели одним запросом к каждой таблице.
// Данные информационные, точность в пределах момента чтения.
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	const op = "storage.GetStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	st := &Stats{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE last_active > NOW() - INTERVAL '7 days'),
		       COUNT(*) FILTER (WHERE vip_until > NOW()),
		       COUNT(*) FILTER (WHERE trial_ended)
		FROM users`).Scan(
		&st.TotalUsers, &st.ActiveUsers, &st.VIPUsers, &st.EndedTrialUsers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount) FILTER (WHERE paid_at > NOW() - INTERVAL '30 days'), 0)
		FROM payments
		WHERE status = 'completed'`).Scan(
		&st.TotalPayments, &st.MonthlyRevenue)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}
