// Package cache реализует хранилище счетчиков, истории чата и
// сгенерированного контента поверх Redis. Операции над одним ключом
// линеаризуемы за счет самого Redis: инкременты выполняются атомарно
// командой INCR, а не чтением-изменением-записью.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreamgf-ru/companion-bot/internal/config"
)

// Cache обертка над клиентом Redis.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Get возвращает значение по ключу. Отсутствие ключа — не ошибка:
// возвращается (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return val, true, nil
}

// Set сохраняет значение с временем жизни.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const op = "cache.Set"
	if err := c.Db.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет ключ.
func (c *Cache) Delete(ctx context.Context, key string) error {
	const op = "cache.Delete"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Increment атомарно увеличивает счетчик и продлевает его время жизни.
// Отсутствующий ключ создается со значением 1. TTL обновляется каждым
// вызовом, поэтому окно счетчика скользящее от последнего обращения.
func (c *Cache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	const op = "cache.Increment"
	pipe := c.Db.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return incr.Val(), nil
}

// GetCounter читает целочисленный счетчик, отсутствие ключа дает 0.
func (c *Cache) GetCounter(ctx context.Context, key string) (int64, error) {
	const op = "cache.GetCounter"
	val, err := c.Db.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return val, nil
}

// ListAppendFront добавляет элемент в начало списка и продлевает TTL.
func (c *Cache) ListAppendFront(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const op = "cache.ListAppendFront"
	pipe := c.Db.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListTrim оставляет в списке элементы с start по stop включительно.
func (c *Cache) ListTrim(ctx context.Context, key string, start, stop int64) error {
	const op = "cache.ListTrim"
	if err := c.Db.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListRange возвращает срез списка с start по stop включительно.
func (c *Cache) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	const op = "cache.ListRange"
	vals, err := c.Db.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return vals, nil
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}
