package models

import "time"

// RequestKind тип входящего запроса пользователя.
type RequestKind string

const (
	RequestText  RequestKind = "text"
	RequestPhoto RequestKind = "photo"
	RequestVoice RequestKind = "voice"
)

// RequestContext передается по значению через все стадии конвейера
// обработки сообщения вместо нетипизированного словаря.
type RequestContext struct {
	UserID    int64
	Kind      RequestKind
	Text      string
	Timestamp time.Time
}

// ChatMessage пара сообщение-ответ в истории диалога.
type ChatMessage struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}
