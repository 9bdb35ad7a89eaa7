package cache

import (
	"context"
	"fmt"

	"github.com/dreamgf-ru/companion-bot/internal/config"
)

// Счетчики обращений. Точность в пределах окна обеспечивает атомарный
// INCR, TTL отвечает только за сброс окна.

func rateKey(userID int64) string {
	return fmt.Sprintf("user:%d:rate_limit", userID)
}

func photoKey(userID int64) string {
	return fmt.Sprintf("user:%d:photo_count", userID)
}

// IncrementRateCounter увеличивает минутный счетчик сообщений.
func (c *Cache) IncrementRateCounter(ctx context.Context, userID int64) (int64, error) {
	return c.Increment(ctx, rateKey(userID), config.RateCounterTTL)
}

// GetRateCounter возвращает минутный счетчик сообщений.
func (c *Cache) GetRateCounter(ctx context.Context, userID int64) (int64, error) {
	return c.GetCounter(ctx, rateKey(userID))
}

// IncrementPhotoCounter увеличивает суточный счетчик фото.
func (c *Cache) IncrementPhotoCounter(ctx context.Context, userID int64) (int64, error) {
	return c.Increment(ctx, photoKey(userID), config.PhotoCounterTTL)
}

// GetPhotoCounter возвращает суточный счетчик фото.
func (c *Cache) GetPhotoCounter(ctx context.Context, userID int64) (int64, error) {
	return c.GetCounter(ctx, photoKey(userID))
}
