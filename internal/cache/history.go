package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dreamgf-ru/companion-bot/internal/config"
	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// История хранится списком Redis: свежие пары LPUSH-ятся в начало,
// LTRIM держит не больше config.ChatHistoryLimit записей. Читается
// история в хронологическом порядке (старые -> новые), как того ждет
// конструктор контекста LLM.

func historyKey(userID int64) string {
	return fmt.Sprintf("user:%d:messages", userID)
}

// AppendChatMessage добавляет пару сообщение-ответ в историю пользователя.
func (c *Cache) AppendChatMessage(ctx context.Context, userID int64, msg models.ChatMessage) error {
	const op = "cache.AppendChatMessage"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	key := historyKey(userID)
	if err := c.ListAppendFront(ctx, key, data, config.ChatHistoryTTL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.ListTrim(ctx, key, 0, int64(config.ChatHistoryLimit-1)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetChatHistory возвращает историю пользователя от старых сообщений
// к новым. Поврежденные записи пропускаются.
func (c *Cache) GetChatHistory(ctx context.Context, userID int64) ([]models.ChatMessage, error) {
	const op = "cache.GetChatHistory"
	raw, err := c.ListRange(ctx, historyKey(userID), 0, int64(config.ChatHistoryLimit-1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// В списке свежие впереди, разворачиваем в хронологию.
	out := make([]models.ChatMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
