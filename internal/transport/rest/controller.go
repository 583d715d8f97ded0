package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/avdeyev/papertrader/internal/converter/restConverter"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/service"
	"github.com/avdeyev/papertrader/internal/transport/rest/middleware"
	"github.com/avdeyev/papertrader/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PortfolioService interface {
	RegisterUser(ctx context.Context, username, email, password string) (model.User, error)
	Login(ctx context.Context, username, password string) (model.User, error)
	GetQuotes(ctx context.Context) ([]model.Quote, error)
	GetStockHistory(ctx context.Context, symbol string) ([]model.Candle, error)
	GetPortfolioSummary(ctx context.Context, userID int64) (model.PortfolioSummary, error)
	GetHoldings(ctx context.Context, userID int64) ([]model.HoldingInfo, error)
	GetTransactions(ctx context.Context, userID int64, page int) ([]model.Transaction, bool, error)
	ExecuteTransaction(ctx context.Context, userID int64, symbol string, quantity decimal.Decimal, side model.Side) (model.Transaction, error)
	ExportTransactionsReport(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error)
}

type Session interface {
	Set(ctx context.Context, token string, userID int64) error
	Get(ctx context.Context, token string) (userID int64, err error)
	Delete(ctx context.Context, token string) error
}

type Controller struct {
	portfolioService PortfolioService
	session          Session
}

func NewController(portfolioService PortfolioService, session Session) *Controller {
	return &Controller{
		portfolioService: portfolioService,
		session:          session,
	}
}

func (ctrl *Controller) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)

	r.Post("/auth/register", ctrl.Register)
	r.Post("/auth/login", ctrl.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(ctrl.session))

		r.Post("/auth/logout", ctrl.Logout)

		r.Get("/stocks", ctrl.GetStocks)
		r.Get("/stocks/{symbol}/history", ctrl.GetStockHistory)

		r.Get("/portfolio", ctrl.GetPortfolioSummary)
		r.Get("/portfolio/holdings", ctrl.GetHoldings)
		r.Get("/portfolio/transactions", ctrl.GetTransactions)
		r.Get("/portfolio/transactions/export", ctrl.ExportTransactions)
		r.Post("/portfolio/buy", ctrl.Buy)
		r.Post("/portfolio/sell", ctrl.Sell)
	})

	return r
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string                    `json:"access_token"`
	User        restConverter.UserResponse `json:"user"`
}

type orderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
}

type errResponse struct {
	Message string `json:"message"`
}

func (ctrl *Controller) Register(w http.ResponseWriter, r *http.Request) {
	req := registerRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "request body must be JSON"})
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "missing required fields: username, password, email"})
		return
	}

	user, err := ctrl.portfolioService.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			writeJSON(w, http.StatusConflict, errResponse{Message: "a user with this name already exists"})
			return
		}
		writeInternalErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, restConverter.ConvertUser(user))
}

func (ctrl *Controller) Login(w http.ResponseWriter, r *http.Request) {
	req := loginRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "request body must be JSON"})
		return
	}

	user, err := ctrl.portfolioService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errResponse{Message: "invalid username or password"})
			return
		}
		writeInternalErr(w, r, err)
		return
	}

	token := uuid.NewString()
	if err := ctrl.session.Set(r.Context(), token, user.UserID); err != nil {
		writeInternalErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, User: restConverter.ConvertUser(user)})
}

func (ctrl *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := ctrl.session.Delete(r.Context(), token); err != nil {
		writeInternalErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *Controller) GetStocks(w http.ResponseWriter, r *http.Request) {
	quotes, err := ctrl.portfolioService.GetQuotes(r.Context())
	if err != nil {
		writeInternalErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, restConverter.ConvertQuotes(quotes))
}

func (ctrl *Controller) GetStockHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	candles, err := ctrl.portfolioService.GetStockHistory(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, service.ErrStockNotFound) {
			writeJSON(w, http.StatusNotFound, errResponse{Message: "stock not found"})
			return
		}
		writeInternalErr(w, r, err)
		return
	}

	if len(candles) == 0 {
		writeJSON(w, http.StatusNotFound, errResponse{Message: "no historical data found for this ticker"})
		return
	}

	writeJSON(w, http.StatusOK, restConverter.ConvertCandles(candles))
}

func (ctrl *Controller) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromCtx(r.Context())

	summary, err := ctrl.portfolioService.GetPortfolioSummary(r.Context(), userID)
	if err != nil {
		ctrl.writeOrderErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, restConverter.ConvertPortfolioSummary(summary))
}

func (ctrl *Controller) GetHoldings(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromCtx(r.Context())

	holdings, err := ctrl.portfolioService.GetHoldings(r.Context(), userID)
	if err != nil {
		ctrl.writeOrderErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, restConverter.ConvertHoldings(holdings))
}

type transactionsResponse struct {
	Transactions []restConverter.TransactionResponse `json:"transactions"`
	Page         int                                 `json:"page"`
	HasNextPage  bool                                `json:"has_next_page"`
}

func (ctrl *Controller) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromCtx(r.Context())

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	transactions, hasNextPage, err := ctrl.portfolioService.GetTransactions(r.Context(), userID, page)
	if err != nil {
		ctrl.writeOrderErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, transactionsResponse{
		Transactions: restConverter.ConvertTransactions(transactions),
		Page:         page,
		HasNextPage:  hasNextPage,
	})
}

func (ctrl *Controller) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromCtx(r.Context())

	fileBytes, fileExtension, err := ctrl.portfolioService.ExportTransactionsReport(r.Context(), userID)
	if err != nil {
		ctrl.writeOrderErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions`+fileExtension+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(fileBytes)
}

func (ctrl *Controller) Buy(w http.ResponseWriter, r *http.Request) {
	ctrl.executeOrder(w, r, model.SideBuy)
}

func (ctrl *Controller) Sell(w http.ResponseWriter, r *http.Request) {
	ctrl.executeOrder(w, r, model.SideSell)
}

func (ctrl *Controller) executeOrder(w http.ResponseWriter, r *http.Request, side model.Side) {
	userID, _ := utils.GetUserIDFromCtx(r.Context())

	req := orderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "request body must be JSON"})
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Message: "quantity must be a decimal number"})
		return
	}

	trn, err := ctrl.portfolioService.ExecuteTransaction(r.Context(), userID, strings.ToUpper(req.Symbol), quantity, side)
	if err != nil {
		ctrl.writeOrderErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, restConverter.ConvertTransaction(trn))
}

func (ctrl *Controller) writeOrderErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Message: "quantity must be positive"})
	case errors.Is(err, service.ErrInsufficientFunds):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Message: "insufficient balance"})
	case errors.Is(err, service.ErrInsufficientHoldings):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Message: "insufficient holdings to sell"})
	case errors.Is(err, service.ErrNoPriceData):
		writeJSON(w, http.StatusServiceUnavailable, errResponse{Message: "no price data available for this stock"})
	case errors.Is(err, service.ErrStockNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Message: "stock not found"})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Message: "portfolio not found"})
	default:
		writeInternalErr(w, r, err)
	}
}

func writeInternalErr(w http.ResponseWriter, r *http.Request, err error) {
	rqID := utils.GetRequestIDFromCtx(r.Context())
	slog.Error("internal error", slog.String("rqID", rqID), slog.String("err", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errResponse{Message: "an unexpected internal server error occurred"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("can't encode response body", slog.String("err", err.Error()))
	}
}
