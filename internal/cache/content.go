package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dreamgf-ru/companion-bot/internal/config"
)

// GlobalScope общий кеш артефактов: один и тот же промпт для одного
// персонажа дает один артефакт для всех пользователей.
const GlobalScope int64 = 0

// PromptHash строит стабильный ключ по промпту и персонажу.
// SHA-256, а не быстрый некриптографический хеш: подбор коллизий
// не должен быть тривиальным.
func PromptHash(prompt, character string) string {
	sum := sha256.Sum256([]byte(prompt + "|" + character))
	return hex.EncodeToString(sum[:])
}

func contentKey(scope int64, hash string) string {
	return fmt.Sprintf("cache:%d:image:%s", scope, hash)
}

// GetContent возвращает закешированный артефакт. Кеш — только
// оптимизация: отсутствие значения никогда не блокирует генерацию.
func (c *Cache) GetContent(ctx context.Context, scope int64, hash string) ([]byte, bool, error) {
	return c.Get(ctx, contentKey(scope, hash))
}

// PutContent сохраняет артефакт на сутки.
func (c *Cache) PutContent(ctx context.Context, scope int64, hash string, artifact []byte) error {
	return c.Set(ctx, contentKey(scope, hash), artifact, config.ContentCacheTTL)
}
