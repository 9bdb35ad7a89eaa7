// Package generator содержит клиент OpenRouter для генерации текста,
// изображений и озвучки. Ядро бота видит генерацию как "получилось или
// нет": подтип ошибки на расход квоты не влияет.
package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dreamgf-ru/companion-bot/internal/config"
	"github.com/dreamgf-ru/companion-bot/internal/models"
)

// Client клиент API OpenRouter.
type Client struct {
	apiKey     string
	apiURL     string
	textModel  string
	imageModel string

	textTimeout  time.Duration
	imageTimeout time.Duration
	voiceTimeout time.Duration

	httpClient *http.Client
}

// NewClient создает клиент генерации контента.
func NewClient(cfg config.OpenRouter) *Client {
	return &Client{
		apiKey:       cfg.APIKey,
		apiURL:       "https://openrouter.ai/api/v1",
		textModel:    cfg.TextModel,
		imageModel:   cfg.ImageModel,
		textTimeout:  cfg.TextTimeout,
		imageTimeout: cfg.ImageTimeout,
		voiceTimeout: cfg.VoiceTimeout,
		httpClient:   &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func systemPrompt(ch models.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ты — %s, %d лет. %s\n", ch.Name, ch.Age, ch.Description)
	b.WriteString("Отвечай кратко, тепло и в характере. Пиши по-русски.")
	return b.String()
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GenerateText отвечает на сообщение пользователя в контексте истории
// диалога. История передается в хронологическом порядке.
func (c *Client) GenerateText(ctx context.Context, history []models.ChatMessage, userText string, ch models.Character) (string, error) {
	const op = "generator.GenerateText"

	ctx, cancel := context.WithTimeout(ctx, c.textTimeout)
	defer cancel()

	msgs := make([]chatMessage, 0, 2*len(history)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt(ch)})
	for _, m := range history {
		msgs = append(msgs,
			chatMessage{Role: "user", Content: m.User},
			chatMessage{Role: "assistant", Content: m.Assistant})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userText})

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", chatRequest{Model: c.textModel, Messages: msgs}, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: empty completion", op)
	}
	return resp.Choices[0].Message.Content, nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage генерирует изображение персонажа по запросу
// пользователя и возвращает байты картинки.
func (c *Client) GenerateImage(ctx context.Context, prompt string, ch models.Character) ([]byte, error) {
	const op = "generator.GenerateImage"

	ctx, cancel := context.WithTimeout(ctx, c.imageTimeout)
	defer cancel()

	full := fmt.Sprintf("%s, %d years old, %s. %s", ch.Name, ch.Age, ch.Description, prompt)
	var resp imageResponse
	if err := c.post(ctx, "/images/generations", imageRequest{Model: c.imageModel, Prompt: full}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%s: empty image payload", op)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// GenerateVoice озвучивает текст голосом персонажа и возвращает
// аудиобайты в ogg.
func (c *Client) GenerateVoice(ctx context.Context, text string, ch models.Character) ([]byte, error) {
	const op = "generator.GenerateVoice"

	ctx, cancel := context.WithTimeout(ctx, c.voiceTimeout)
	defer cancel()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(speechRequest{
		Model: "openai/tts-1",
		Input: text,
		Voice: ch.Voice,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/audio/speech", &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	var audio bytes.Buffer
	if _, err := audio.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if audio.Len() == 0 {
		return nil, fmt.Errorf("%s: empty audio payload", op)
	}
	return audio.Bytes(), nil
}
