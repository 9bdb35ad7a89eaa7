package paymentcreate_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/payment/paymentcreate"
	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/services/subscription"
)

// Мок для Service
type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) CreatePayment(ctx context.Context, userID int64, requested int) (string, error) {
	args := m.Called(ctx, userID, requested)
	return args.String(0), args.Error(1)
}

func doRequest(t *testing.T, svc *ServiceMock, body string) *httptest.ResponseRecorder {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := paymentcreate.New(log, svc)

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreate_Success(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("CreatePayment", mock.Anything, int64(42), 990).
		Return("https://yookassa.ru/checkout/pay-1", nil).Once()

	rr := doRequest(t, svc, `{"user_id": 42, "amount": 990}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, response.StatusOK, resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://yookassa.ru/checkout/pay-1", data["confirmation_url"])
	svc.AssertExpectations(t)
}

func TestCreate_InvalidJSON(t *testing.T) {
	svc := new(ServiceMock)
	rr := doRequest(t, svc, `{broken`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_ValidationError(t *testing.T) {
	svc := new(ServiceMock)
	rr := doRequest(t, svc, `{"amount": 990}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	svc.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_UnknownTier(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("CreatePayment", mock.Anything, int64(42), 123).
		Return("", subscription.ErrUnknownTier).Once()

	rr := doRequest(t, svc, `{"user_id": 42, "amount": 123}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreate_ServiceError(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("CreatePayment", mock.Anything, int64(42), 990).
		Return("", errors.New("provider down")).Once()

	rr := doRequest(t, svc, `{"user_id": 42, "amount": 990}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
