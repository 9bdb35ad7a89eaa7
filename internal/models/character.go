package models

// Character описывает персонажа из статического каталога.
// Каталог только для чтения, бот никогда его не изменяет.
type Character struct {
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Description string `json:"description"`
	Voice       string `json:"voice"`
}
