package sender_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dreamgf-ru/companion-bot/internal/characters"
	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/services/scheduler"
	"github.com/dreamgf-ru/companion-bot/internal/services/sender"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// Мок для Generator
type GeneratorMock struct {
	mock.Mock
}

func (m *GeneratorMock) GenerateText(ctx context.Context, history []models.ChatMessage, userText string, ch models.Character) (string, error) {
	args := m.Called(ctx, history, userText, ch)
	return args.String(0), args.Error(1)
}

// Мок для HistoryStore
type HistoryMock struct {
	mock.Mock
}

func (m *HistoryMock) AppendChatMessage(ctx context.Context, userID int64, msg models.ChatMessage) error {
	args := m.Called(ctx, userID, msg)
	return args.Error(0)
}

func (m *HistoryMock) GetChatHistory(ctx context.Context, userID int64) ([]models.ChatMessage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

// Мок для Notifier
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) SendText(ctx context.Context, userID int64, text string) error {
	args := m.Called(ctx, userID, text)
	return args.Error(0)
}

func testCatalog(t *testing.T) *characters.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "characters.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`[{"name": "Алиса", "age": 22, "description": "нежная", "voice": "alisa"}]`), 0644))
	catalog, err := characters.Load(path)
	require.NoError(t, err)
	return catalog
}

type fixture struct {
	svc      *sender.Service
	repo     *UserRepoMock
	gen      *GeneratorMock
	history  *HistoryMock
	notifier *NotifierMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		repo:     new(UserRepoMock),
		gen:      new(GeneratorMock),
		history:  new(HistoryMock),
		notifier: new(NotifierMock),
	}
	f.svc = sender.New(f.repo, f.gen, f.history, f.notifier, testCatalog(t), log)
	return f
}

func taskBody(t *testing.T, task scheduler.EngagementTask) []byte {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return body
}

func TestHandleEngagementTask_DeliversMessage(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetUser", mock.Anything, int64(1)).
		Return(&models.User{ID: 1, CurrentCharacter: "Алиса"}, nil).Once()
	f.history.On("GetChatHistory", mock.Anything, int64(1)).
		Return([]models.ChatMessage{{User: "привет", Assistant: "привет!"}}, nil).Once()
	f.gen.On("GenerateText", mock.Anything, mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return prompt != ""
	}), mock.Anything).Return("Доброе утро, солнце ☀️", nil).Once()
	f.notifier.On("SendText", mock.Anything, int64(1), "Доброе утро, солнце ☀️").Return(nil).Once()
	f.history.On("AppendChatMessage", mock.Anything, int64(1), models.ChatMessage{Assistant: "Доброе утро, солнце ☀️"}).
		Return(nil).Once()

	err := f.svc.HandleEngagementTask(context.Background(), taskBody(t, scheduler.EngagementTask{
		UserID: 1, Character: "Алиса", Slot: "morning",
	}))
	require.NoError(t, err)
	f.notifier.AssertExpectations(t)
}

func TestHandleEngagementTask_SkipsBannedUser(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetUser", mock.Anything, int64(2)).
		Return(&models.User{ID: 2, Banned: true}, nil).Once()

	err := f.svc.HandleEngagementTask(context.Background(), taskBody(t, scheduler.EngagementTask{
		UserID: 2, Slot: "evening",
	}))
	require.NoError(t, err, "banned recipient must not requeue the task")
	f.notifier.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEngagementTask_UnknownSlotDropped(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetUser", mock.Anything, int64(3)).
		Return(&models.User{ID: 3}, nil).Once()

	err := f.svc.HandleEngagementTask(context.Background(), taskBody(t, scheduler.EngagementTask{
		UserID: 3, Slot: "midnight",
	}))
	require.NoError(t, err)
	f.gen.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEngagementTask_DeliveryFailureRequeues(t *testing.T) {
	f := newFixture(t)

	f.repo.On("GetUser", mock.Anything, int64(4)).
		Return(&models.User{ID: 4}, nil).Once()
	f.history.On("GetChatHistory", mock.Anything, int64(4)).
		Return([]models.ChatMessage{}, nil).Once()
	f.gen.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("текст", nil).Once()
	f.notifier.On("SendText", mock.Anything, int64(4), "текст").
		Return(errors.New("telegram down")).Once()

	err := f.svc.HandleEngagementTask(context.Background(), taskBody(t, scheduler.EngagementTask{
		UserID: 4, Slot: "morning",
	}))
	assert.Error(t, err, "delivery failure must return the task to the queue")
}

func TestHandleEngagementTask_BadPayload(t *testing.T) {
	f := newFixture(t)
	err := f.svc.HandleEngagementTask(context.Background(), []byte("{broken"))
	assert.Error(t, err)
}
