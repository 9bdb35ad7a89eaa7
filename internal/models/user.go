// Package models содержит доменные структуры бота: пользователя,
// платежи, персонажей и сообщения чата. Структуры используются
// в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User представляет пользователя бота. Запись создается при первом
// обращении (идемпотентный get-or-create) и никогда не удаляется —
// вместо удаления ставится флаг Banned.
type User struct {
	ID               int64      // Идентификатор пользователя в Telegram
	Username         string     // Имя пользователя (может быть пустым)
	FirstName        string     // Имя из профиля
	CurrentCharacter string     // Выбранный персонаж
	VIPUntil         *time.Time // Дата истечения оплаченной подписки, nil — не покупал
	TrialMessages    int        // Сколько сообщений потрачено в триале
	TrialPhotoUsed   bool       // Использовано ли фото в триале
	TrialVoiceUsed   bool       // Использован ли голос в триале
	TrialEnded       bool       // Флаг, что триал кончился
	Banned           bool       // Мягкий бан вместо удаления записи
	CreatedAt        time.Time
	LastActive       time.Time
}

// IsVIP сообщает, активна ли подписка на момент now. Истечение подписки —
// ленивый предикат, отдельного фонового перевода в "expired" нет.
func (u *User) IsVIP(now time.Time) bool {
	return u.VIPUntil != nil && u.VIPUntil.After(now)
}

// IsFirstInteraction сообщает, что пользователь еще ничего не потратил:
// первое обращение любого типа разрешается без проверок.
func (u *User) IsFirstInteraction() bool {
	return u.TrialMessages == 0 && !u.TrialPhotoUsed && !u.TrialVoiceUsed
}
