// Package characters загружает каталог персонажей из JSON-файла.
// Каталог читается один раз на старте и дальше неизменяем.
package characters

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// Catalog неизменяемый набор персонажей.
type Catalog struct {
	byName      map[string]models.Character
	defaultName string
	order       []string
}

// Load читает каталог из файла. Пустой каталог считается ошибкой
// конфигурации: боту не с кем разговаривать.
func Load(path string) (*Catalog, error) {
	const op = "characters.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var list []models.Character
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: catalog is empty", op)
	}

	c := &Catalog{byName: make(map[string]models.Character, len(list))}
	for _, ch := range list {
		if ch.Name == "" {
			return nil, fmt.Errorf("%s: character without name", op)
		}
		if _, dup := c.byName[ch.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate character %q", op, ch.Name)
		}
		c.byName[ch.Name] = ch
		c.order = append(c.order, ch.Name)
	}
	c.defaultName = list[0].Name
	return c, nil
}

// Get возвращает персонажа по имени.
func (c *Catalog) Get(name string) (models.Character, bool) {
	ch, ok := c.byName[name]
	return ch, ok
}

// GetOrDefault возвращает персонажа по имени либо персонажа по
// умолчанию, если имя пустое или неизвестно.
func (c *Catalog) GetOrDefault(name string) models.Character {
	if ch, ok := c.byName[name]; ok {
		return ch
	}
	return c.byName[c.defaultName]
}

// Names возвращает имена персонажей в порядке файла.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
