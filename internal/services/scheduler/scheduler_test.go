package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/services/scheduler"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

// Мок для Publisher
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	args := m.Called(ctx, routingKey, message)
	return args.Error(0)
}

func newScheduler(repo *UserRepoMock, pub *PublisherMock) *scheduler.Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return scheduler.New(repo, pub, log)
}

func TestNextBroadcast(t *testing.T) {
	day := func(hour, min int) time.Time {
		return time.Date(2026, 9, 1, hour, min, 0, 0, time.UTC)
	}

	tests := []struct {
		name     string
		now      time.Time
		wantAt   time.Time
		wantSlot string
	}{
		{"before morning", day(7, 30), day(9, 0), "morning"},
		{"between slots", day(14, 0), day(23, 0), "evening"},
		{"after evening rolls to next morning", day(23, 30), day(9, 0).AddDate(0, 0, 1), "morning"},
		{"exactly at morning boundary", day(9, 0), day(23, 0), "evening"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, slot := scheduler.NextBroadcast(tt.now)
			assert.True(t, at.Equal(tt.wantAt), "got %v, want %v", at, tt.wantAt)
			assert.Equal(t, tt.wantSlot, slot)
		})
	}
}

func TestBroadcast_PublishesTaskPerActiveUser(t *testing.T) {
	repo := new(UserRepoMock)
	pub := new(PublisherMock)
	svc := newScheduler(repo, pub)

	repo.On("ListActiveUsers", mock.Anything).Return([]*models.User{
		{ID: 1, CurrentCharacter: "Алиса"},
		{ID: 2, CurrentCharacter: "Кира"},
	}, nil).Once()
	pub.On("Publish", mock.Anything, "broadcast", scheduler.EngagementTask{
		UserID: 1, Character: "Алиса", Slot: "morning",
	}).Return(nil).Once()
	pub.On("Publish", mock.Anything, "broadcast", scheduler.EngagementTask{
		UserID: 2, Character: "Кира", Slot: "morning",
	}).Return(nil).Once()

	svc.Broadcast(context.Background(), "morning")
	pub.AssertExpectations(t)
}

func TestBroadcast_OneFailureDoesNotStopOthers(t *testing.T) {
	repo := new(UserRepoMock)
	pub := new(PublisherMock)
	svc := newScheduler(repo, pub)

	repo.On("ListActiveUsers", mock.Anything).Return([]*models.User{
		{ID: 1}, {ID: 2}, {ID: 3},
	}, nil).Once()
	pub.On("Publish", mock.Anything, "broadcast", mock.MatchedBy(func(task scheduler.EngagementTask) bool {
		return task.UserID == 2
	})).Return(errors.New("broker down")).Once()
	pub.On("Publish", mock.Anything, "broadcast", mock.Anything).Return(nil).Twice()

	svc.Broadcast(context.Background(), "evening")
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestBroadcast_RepoErrorPublishesNothing(t *testing.T) {
	repo := new(UserRepoMock)
	pub := new(PublisherMock)
	svc := newScheduler(repo, pub)

	repo.On("ListActiveUsers", mock.Anything).Return(nil, errors.New("db down")).Once()

	svc.Broadcast(context.Background(), "morning")
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestBroadcast_NoActiveUsers(t *testing.T) {
	repo := new(UserRepoMock)
	pub := new(PublisherMock)
	svc := newScheduler(repo, pub)

	repo.On("ListActiveUsers", mock.Anything).Return([]*models.User{}, nil).Once()

	svc.Broadcast(context.Background(), "evening")
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, repo.AssertExpectations(t))
}
