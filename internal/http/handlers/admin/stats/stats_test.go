package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dreamgf-ru/companion-bot/internal/http/handlers/admin/stats"
	"github.com/dreamgf-ru/companion-bot/internal/http/response"
	"github.com/dreamgf-ru/companion-bot/internal/storage"
)

const token = "admin-secret"

// Мок для Service
type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) GetStats(ctx context.Context) (*storage.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Stats), args.Error(1)
}

func doRequest(t *testing.T, svc *ServiceMock, adminToken, reqToken string) *httptest.ResponseRecorder {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := stats.New(log, svc, adminToken)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	if reqToken != "" {
		req.Header.Set("X-Admin-Token", reqToken)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStats_Success(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("GetStats", mock.Anything).Return(&storage.Stats{
		TotalUsers: 120, ActiveUsers: 40, VIPUsers: 7,
	}, nil).Once()

	rr := doRequest(t, svc, token, token)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, response.StatusOK, resp.Status)
}

func TestStats_BadToken(t *testing.T) {
	svc := new(ServiceMock)
	rr := doRequest(t, svc, token, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	svc.AssertNotCalled(t, "GetStats", mock.Anything)
}

func TestStats_MissingToken(t *testing.T) {
	svc := new(ServiceMock)
	rr := doRequest(t, svc, token, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStats_EmptyConfiguredTokenClosesEndpoint(t *testing.T) {
	svc := new(ServiceMock)
	rr := doRequest(t, svc, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStats_ServiceError(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("GetStats", mock.Anything).Return(nil, errors.New("db down")).Once()

	rr := doRequest(t, svc, token, token)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
