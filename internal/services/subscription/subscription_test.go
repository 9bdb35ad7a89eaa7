package subscription_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dreamgf-ru/companion-bot/internal/models"
	"github.com/dreamgf-ru/companion-bot/internal/paymentprovider"
	"github.com/dreamgf-ru/companion-bot/internal/services/subscription"
)

// Мок для PaymentRepository
type PaymentRepoMock struct {
	mock.Mock
}

func (m *PaymentRepoMock) SavePayment(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *PaymentRepoMock) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *PaymentRepoMock) UpdatePaymentStatus(ctx context.Context, id string, status string) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *PaymentRepoMock) CountCompletedPayments(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *PaymentRepoMock) ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]string, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

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

func (m *UserRepoMock) UpdateVIPUntil(ctx context.Context, userID int64, until time.Time) error {
	args := m.Called(ctx, userID, until)
	return args.Error(0)
}

// Мок для Provider
type ProviderMock struct {
	mock.Mock
}

func (m *ProviderMock) CreatePayment(ctx context.Context, req paymentprovider.CreatePaymentRequest) (*paymentprovider.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Payment), args.Error(1)
}

func (m *ProviderMock) FindPayment(ctx context.Context, paymentID string) (*paymentprovider.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Payment), args.Error(1)
}

func newService(payments *PaymentRepoMock, users *UserRepoMock, provider *ProviderMock) *subscription.Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return subscription.New(payments, users, provider, "https://t.me/testbot", log)
}

func TestChargeableAmount(t *testing.T) {
	tests := []struct {
		name           string
		requested      int
		completedCount int
		countErr       error
		want           int
		wantErr        error
	}{
		{
			name:           "base tier discounted while under threshold",
			requested:      990,
			completedCount: 99,
			want:           495,
		},
		{
			name:           "discount ends at threshold",
			requested:      990,
			completedCount: 100,
			want:           990,
		},
		{
			name:      "quarter tier never discounted",
			requested: 1690,
			want:      1690,
		},
		{
			name:      "year tier never discounted",
			requested: 2990,
			want:      2990,
		},
		{
			name:      "unknown amount rejected",
			requested: 100,
			wantErr:   subscription.ErrUnknownTier,
		},
		{
			name:      "discounted amount is not a requestable tier",
			requested: 495,
			wantErr:   subscription.ErrUnknownTier,
		},
		{
			name:           "count error propagates instead of granting discount",
			requested:      990,
			completedCount: 0,
			countErr:       errors.New("db down"),
			wantErr:        errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := new(PaymentRepoMock)
			if tt.requested == 990 {
				payments.On("CountCompletedPayments", mock.Anything).
					Return(tt.completedCount, tt.countErr).Maybe()
			}
			svc := newService(payments, new(UserRepoMock), new(ProviderMock))

			got, err := svc.ChargeableAmount(context.Background(), tt.requested)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreatePayment(t *testing.T) {
	payments := new(PaymentRepoMock)
	provider := new(ProviderMock)
	svc := newService(payments, new(UserRepoMock), provider)

	payments.On("CountCompletedPayments", mock.Anything).Return(150, nil).Once()
	provider.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req paymentprovider.CreatePaymentRequest) bool {
		return req.Amount.Value == "990.00" &&
			req.Amount.Currency == "RUB" &&
			req.Confirmation.Type == "redirect" &&
			req.Metadata["user_id"] == "42"
	})).Return(&paymentprovider.Payment{
		ID:     "pay-1",
		Status: "pending",
		Confirmation: &paymentprovider.Confirmation{
			Type:            "redirect",
			ConfirmationURL: "https://yookassa.ru/checkout/pay-1",
		},
	}, nil).Once()
	payments.On("SavePayment", mock.Anything, mock.MatchedBy(func(p *models.Payment) bool {
		return p.ID == "pay-1" &&
			p.UserID == 42 &&
			p.Amount == 990 &&
			p.Status == models.PaymentStatusPending
	})).Return(nil).Once()

	url, err := svc.CreatePayment(context.Background(), 42, 990)
	require.NoError(t, err)
	assert.Equal(t, "https://yookassa.ru/checkout/pay-1", url)

	payments.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestProcessPaymentEvent_GrantExtendsActiveSubscription(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	svc := newService(payments, users, new(ProviderMock))

	current := time.Now().Add(10 * 24 * time.Hour)
	payments.On("GetPayment", mock.Anything, "pay-2").Return(&models.Payment{
		ID: "pay-2", UserID: 7, Amount: 990, Status: models.PaymentStatusPending,
	}, nil).Once()
	payments.On("UpdatePaymentStatus", mock.Anything, "pay-2", models.PaymentStatusCompleted).
		Return(true, nil).Once()
	users.On("GetUser", mock.Anything, int64(7)).
		Return(&models.User{ID: 7, VIPUntil: &current}, nil).Once()
	users.On("UpdateVIPUntil", mock.Anything, int64(7), mock.MatchedBy(func(until time.Time) bool {
		// Продление от текущего срока: now+10d+30d, а не now+30d.
		want := current.AddDate(0, 0, 30)
		return until.Equal(want)
	})).Return(nil).Once()

	require.NoError(t, svc.ProcessPaymentEvent(context.Background(), "pay-2", true))
	users.AssertExpectations(t)
}

func TestProcessPaymentEvent_GrantFromNowWhenExpired(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	svc := newService(payments, users, new(ProviderMock))

	expired := time.Now().Add(-48 * time.Hour)
	payments.On("GetPayment", mock.Anything, "pay-3").Return(&models.Payment{
		ID: "pay-3", UserID: 8, Amount: 1690, Status: models.PaymentStatusPending,
	}, nil).Once()
	payments.On("UpdatePaymentStatus", mock.Anything, "pay-3", models.PaymentStatusCompleted).
		Return(true, nil).Once()
	users.On("GetUser", mock.Anything, int64(8)).
		Return(&models.User{ID: 8, VIPUntil: &expired}, nil).Once()
	users.On("UpdateVIPUntil", mock.Anything, int64(8), mock.MatchedBy(func(until time.Time) bool {
		lo := time.Now().AddDate(0, 0, 90).Add(-time.Minute)
		hi := time.Now().AddDate(0, 0, 90).Add(time.Minute)
		return until.After(lo) && until.Before(hi)
	})).Return(nil).Once()

	require.NoError(t, svc.ProcessPaymentEvent(context.Background(), "pay-3", true))
	users.AssertExpectations(t)
}

func TestProcessPaymentEvent_DuplicateWebhookIsIgnored(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	svc := newService(payments, users, new(ProviderMock))

	payments.On("GetPayment", mock.Anything, "pay-4").Return(&models.Payment{
		ID: "pay-4", UserID: 9, Amount: 990, Status: models.PaymentStatusCompleted,
	}, nil).Once()
	payments.On("UpdatePaymentStatus", mock.Anything, "pay-4", models.PaymentStatusCompleted).
		Return(false, nil).Once()

	require.NoError(t, svc.ProcessPaymentEvent(context.Background(), "pay-4", true))
	users.AssertNotCalled(t, "UpdateVIPUntil", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaymentEvent_FailedPaymentGrantsNothing(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	svc := newService(payments, users, new(ProviderMock))

	payments.On("GetPayment", mock.Anything, "pay-5").Return(&models.Payment{
		ID: "pay-5", UserID: 10, Amount: 990, Status: models.PaymentStatusPending,
	}, nil).Once()
	payments.On("UpdatePaymentStatus", mock.Anything, "pay-5", models.PaymentStatusFailed).
		Return(true, nil).Once()

	require.NoError(t, svc.ProcessPaymentEvent(context.Background(), "pay-5", false))
	users.AssertNotCalled(t, "UpdateVIPUntil", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncPaymentState(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	provider := new(ProviderMock)
	svc := newService(payments, users, provider)

	provider.On("FindPayment", mock.Anything, "pay-6").
		Return(&paymentprovider.Payment{ID: "pay-6", Status: "succeeded"}, nil).Once()
	payments.On("GetPayment", mock.Anything, "pay-6").Return(&models.Payment{
		ID: "pay-6", UserID: 11, Amount: 2990, Status: models.PaymentStatusPending,
	}, nil).Once()
	payments.On("UpdatePaymentStatus", mock.Anything, "pay-6", models.PaymentStatusCompleted).
		Return(true, nil).Once()
	users.On("GetUser", mock.Anything, int64(11)).
		Return(&models.User{ID: 11}, nil).Once()
	users.On("UpdateVIPUntil", mock.Anything, int64(11), mock.Anything).Return(nil).Once()

	require.NoError(t, svc.SyncPaymentState(context.Background(), "pay-6"))
	provider.AssertExpectations(t)
}

func TestSyncStalePayments_AppliesRemoteStateToEachPayment(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	provider := new(ProviderMock)
	svc := newService(payments, users, provider)

	payments.On("ListStalePendingPayments", mock.Anything, mock.Anything).
		Return([]string{"pay-7", "pay-8"}, nil).Once()

	// Первый платеж оплачен, вебхук потерялся: сверка выдает подписку.
	provider.On("FindPayment", mock.Anything, "pay-7").
		Return(&paymentprovider.Payment{ID: "pay-7", Status: "succeeded"}, nil).Once()
	payments.On("GetPayment", mock.Anything, "pay-7").Return(&models.Payment{
		ID: "pay-7", UserID: 21, Amount: 990, Status: models.PaymentStatusPending,
	}, nil).Once()
	payments.On("UpdatePaymentStatus", mock.Anything, "pay-7", models.PaymentStatusCompleted).
		Return(true, nil).Once()
	users.On("GetUser", mock.Anything, int64(21)).
		Return(&models.User{ID: 21}, nil).Once()
	users.On("UpdateVIPUntil", mock.Anything, int64(21), mock.Anything).Return(nil).Once()

	// Ошибка шлюза по второму платежу не прерывает проход.
	provider.On("FindPayment", mock.Anything, "pay-8").
		Return(nil, errors.New("gateway timeout")).Once()

	require.NoError(t, svc.SyncStalePayments(context.Background()))
	provider.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestSyncStalePayments_ListErrorPropagates(t *testing.T) {
	payments := new(PaymentRepoMock)
	users := new(UserRepoMock)
	provider := new(ProviderMock)
	svc := newService(payments, users, provider)

	payments.On("ListStalePendingPayments", mock.Anything, mock.Anything).
		Return(nil, errors.New("db down")).Once()

	assert.Error(t, svc.SyncStalePayments(context.Background()))
	provider.AssertNotCalled(t, "FindPayment", mock.Anything, mock.Anything)
}
