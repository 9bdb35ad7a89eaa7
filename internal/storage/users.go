package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// GetOrCreateUser возвращает пользователя, создавая запись при первом
// обращении. Вставка идемпотентна: при гонке двух первых сообщений
// выигрывает одна вставка, вторая читает ее результат.
func (s *Storage) GetOrCreateUser(ctx context.Context, id int64, username, firstName string) (*models.User, error) {
	const op = "storage.GetOrCreateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (id, username, first_name)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (id) DO UPDATE SET last_active = NOW()
			  RETURNING id, COALESCE(username, ''), COALESCE(first_name, ''),
			      current_character, vip_until, trial_messages, trial_photo_used,
			      trial_voice_used, trial_ended, banned, created_at, last_active`
	u := &models.User{}
	err := s.DB.QueryRowContext(ctx, query, id, username, firstName).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.CurrentCharacter, &u.VIPUntil,
		&u.TrialMessages, &u.TrialPhotoUsed, &u.TrialVoiceUsed, &u.TrialEnded,
		&u.Banned, &u.CreatedAt, &u.LastActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, COALESCE(username, ''), COALESCE(first_name, ''),
			      current_character, vip_until, trial_messages, trial_photo_used,
			      trial_voice_used, trial_ended, banned, created_at, last_active
			  FROM users
			  WHERE id = $1`
	u := &models.User{}
	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.CurrentCharacter, &u.VIPUntil,
		&u.TrialMessages, &u.TrialPhotoUsed, &u.TrialVoiceUsed, &u.TrialEnded,
		&u.Banned, &u.CreatedAt, &u.LastActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateTrialState записывает счетчики триала. Поля триала пишет только
// движок квот, под своей блокировкой на пользователя.
func (s *Storage) UpdateTrialState(ctx context.Context, u *models.User) error {
	const op = "storage.UpdateTrialState"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET trial_messages = $1, trial_photo_used = $2,
			      trial_voice_used = $3, trial_ended = $4, last_active = NOW()
			  WHERE id = $5`
	res, err := s.DB.ExecContext(ctx, query,
		u.TrialMessages, u.TrialPhotoUsed, u.TrialVoiceUsed, u.TrialEnded, u.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: user %d not found", op, u.ID)
	}
	return nil
}

// UpdateVIPUntil продлевает подписку пользователя. Дату окончания
// пишет только сервис подписок.
func (s *Storage) UpdateVIPUntil(ctx context.Context, userID int64, until time.Time) error {
	const op = "storage.UpdateVIPUntil"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET vip_until = $1 WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, until, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateUserCharacter сохраняет выбранного персонажа.
func (s *Storage) UpdateUserCharacter(ctx context.Context, userID int64, character string) error {
	const op = "storage.UpdateUserCharacter"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET current_character = $1 WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, character, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TouchActivity обновляет время последней активности.
func (s *Storage) TouchActivity(ctx context.Context, userID int64) error {
	const op = "storage.TouchActivity"
	query := `UPDATE users SET last_active = NOW() WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// BanUser ставит мягкий бан. Записи пользователей не удаляются.
func (s *Storage) BanUser(ctx context.Context, userID int64) error {
	const op = "storage.BanUser"
	query := `UPDATE users SET banned = TRUE WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResetTrial административный сброс триала. Единственный путь,
// которым trial_ended может вернуться в false.
func (s *Storage) ResetTrial(ctx context.Context, userID int64) error {
	const op = "storage.ResetTrial"
	query := `UPDATE users
			  SET trial_messages = 0, trial_photo_used = FALSE,
			      trial_voice_used = FALSE, trial_ended = FALSE
			  WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListActiveUsers возвращает пользователей, активных за последние
// 7 дней, для вовлекающих рассылок. Заблокированные не попадают.
func (s *Storage) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListActiveUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, COALESCE(current_character, '')
			  FROM users
			  WHERE last_active > NOW() - INTERVAL '7 days' AND NOT banned`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.CurrentCharacter); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
