package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	registerErr error
	loginErr    error
	orderErr    error
	trn         model.Transaction
	lastSide    model.Side
	lastSymbol  string
	lastQty     decimal.Decimal
}

func (s *stubService) RegisterUser(ctx context.Context, username, email, password string) (model.User, error) {
	if s.registerErr != nil {
		return model.User{}, s.registerErr
	}
	return model.User{UserID: 1, Username: username, Email: email}, nil
}

func (s *stubService) Login(ctx context.Context, username, password string) (model.User, error) {
	if s.loginErr != nil {
		return model.User{}, s.loginErr
	}
	return model.User{UserID: 1, Username: username}, nil
}

func (s *stubService) GetQuotes(ctx context.Context) ([]model.Quote, error) { return nil, nil }

func (s *stubService) GetStockHistory(ctx context.Context, symbol string) ([]model.Candle, error) {
	return nil, service.ErrStockNotFound
}

func (s *stubService) GetPortfolioSummary(ctx context.Context, userID int64) (model.PortfolioSummary, error) {
	return model.PortfolioSummary{CashBalance: decimal.RequireFromString("1000")}, nil
}

func (s *stubService) GetHoldings(ctx context.Context, userID int64) ([]model.HoldingInfo, error) {
	return nil, nil
}

func (s *stubService) GetTransactions(ctx context.Context, userID int64, page int) ([]model.Transaction, bool, error) {
	return nil, false, nil
}

func (s *stubService) ExecuteTransaction(ctx context.Context, userID int64, symbol string, quantity decimal.Decimal, side model.Side) (model.Transaction, error) {
	s.lastSymbol, s.lastQty, s.lastSide = symbol, quantity, side
	if s.orderErr != nil {
		return model.Transaction{}, s.orderErr
	}
	return s.trn, nil
}

func (s *stubService) ExportTransactionsReport(ctx context.Context, userID int64) ([]byte, string, error) {
	return []byte("xlsx"), ".xlsx", nil
}

type stubSession struct {
	tokens map[string]int64
}

func (s *stubSession) Set(ctx context.Context, token string, userID int64) error {
	s.tokens[token] = userID
	return nil
}

func (s *stubSession) Get(ctx context.Context, token string) (int64, error) {
	userID, ok := s.tokens[token]
	if !ok {
		return 0, service.ErrNotFound
	}
	return userID, nil
}

func (s *stubSession) Delete(ctx context.Context, token string) error {
	delete(s.tokens, token)
	return nil
}

func newTestServer(svc *stubService) (*httptest.Server, *stubSession) {
	session := &stubSession{tokens: map[string]int64{"valid-token": 1}}
	srv := httptest.NewServer(NewController(svc, session).Routes())
	return srv, session
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRegister(t *testing.T) {
	svc := &stubService{}
	srv, _ := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/auth/register", "", `{"username":"alice","email":"alice@example.com","password":"s3cret"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodPost, "/auth/register", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	svc.registerErr = service.ErrUserAlreadyExists
	resp = doRequest(t, srv, http.MethodPost, "/auth/register", "", `{"username":"alice","email":"alice@example.com","password":"s3cret"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginIssuesSessionToken(t *testing.T) {
	svc := &stubService{}
	srv, session := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, int64(1), session.tokens[body.AccessToken])

	svc.loginErr = service.ErrInvalidCredentials
	resp = doRequest(t, srv, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(&stubService{})
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodGet, "/portfolio", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodGet, "/portfolio", "bogus-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodGet, "/portfolio", "valid-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuyOrder(t *testing.T) {
	svc := &stubService{trn: model.Transaction{
		TransactionID: 42,
		Symbol:        "AAPL",
		Side:          model.SideBuy,
		Quantity:      decimal.RequireFromString("5"),
		PricePerShare: decimal.RequireFromString("100"),
	}}
	srv, _ := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/portfolio/buy", "valid-token", `{"symbol":"aapl","quantity":"5"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "AAPL", svc.lastSymbol, "symbol must be upper-cased")
	assert.Equal(t, model.SideBuy, svc.lastSide)
	assert.True(t, svc.lastQty.Equal(decimal.RequireFromString("5")))

	resp = doRequest(t, srv, http.MethodPost, "/portfolio/buy", "valid-token", `{"symbol":"AAPL","quantity":"five"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid quantity", service.ErrInvalidQuantity, http.StatusUnprocessableEntity},
		{"insufficient funds", service.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"insufficient holdings", service.ErrInsufficientHoldings, http.StatusUnprocessableEntity},
		{"no price data", service.ErrNoPriceData, http.StatusServiceUnavailable},
		{"stock not found", service.ErrStockNotFound, http.StatusNotFound},
		{"portfolio not found", service.ErrNotFound, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(&stubService{orderErr: tc.err})
			defer srv.Close()

			resp := doRequest(t, srv, http.MethodPost, "/portfolio/sell", "valid-token", `{"symbol":"AAPL","quantity":"1"}`)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
		})
	}
}
