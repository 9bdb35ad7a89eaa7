// Package notifier доставляет сообщения пользователям через Bot API
// Telegram. Используется рассылками; входящие обновления сюда не
// попадают, их принимает адаптер мессенджера.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramNotifier клиент sendMessage Bot API.
type TelegramNotifier struct {
	token      string
	apiURL     string
	httpClient *http.Client
}

// NewTelegram создает нотификатор.
func NewTelegram(token string) *TelegramNotifier {
	return &TelegramNotifier{
		token:      token,
		apiURL:     "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendText отправляет пользователю текстовое сообщение.
func (n *TelegramNotifier) SendText(ctx context.Context, userID int64, text string) error {
	const op = "notifier.SendText"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(sendMessageRequest{ChatID: userID, Text: text}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !result.OK {
		return fmt.Errorf("%s: telegram api error: %s", op, result.Description)
	}
	return nil
}
