package portfolioService

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/avdeyev/papertrader/config"
	"github.com/avdeyev/papertrader/data/repository"
	"github.com/avdeyev/papertrader/internal/externalApi"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/service"
	"github.com/avdeyev/papertrader/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const maxReportRows = 10000

type MarketDataApi interface {
	GetDailySeries(ctx context.Context, symbol string) ([]model.Candle, error)
	GetCompanyOverview(ctx context.Context, symbol string) (model.Stock, error)
}

type Cache interface {
	SetQuotes(ctx context.Context, quotes []model.Quote) error
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error)
}

type Repository interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	InsertUser(ctx context.Context, username, email, passwordHash string) (userID int64, err error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreatePortfolio(ctx context.Context, userID int64, initialCash decimal.Decimal) (portfolioID int64, err error)

	GetPortfolio(ctx context.Context, userID int64) (model.Portfolio, error)
	GetPortfolioForUpdate(ctx context.Context, userID int64) (model.Portfolio, error)
	UpdateCashBalance(ctx context.Context, portfolioID int64, cashBalance decimal.Decimal) error

	GetHolding(ctx context.Context, portfolioID, stockID int64) (model.Holding, error)
	CreateHolding(ctx context.Context, holding model.Holding) error
	UpdateHolding(ctx context.Context, holding model.Holding) error
	DeleteHolding(ctx context.Context, portfolioID, stockID int64) error
	GetHoldings(ctx context.Context, portfolioID int64) ([]model.Holding, error)

	InsertTransaction(ctx context.Context, trn model.Transaction) (model.Transaction, error)
	GetTransactions(ctx context.Context, portfolioID int64, limit, offset int) ([]model.Transaction, error)

	UpsertStock(ctx context.Context, stock model.Stock) (stockID int64, err error)
	GetStockBySymbol(ctx context.Context, symbol string) (model.Stock, error)
	GetQuotes(ctx context.Context) ([]model.Quote, error)
	LatestClosePrice(ctx context.Context, stockID int64) (decimal.Decimal, error)
	InsertCandles(ctx context.Context, stockID int64, candles []model.Candle) error
	GetCandles(ctx context.Context, stockID int64) ([]model.Candle, error)
}

type PortfolioService struct {
	cfg           *config.Config
	repo          Repository
	cache         Cache
	marketDataApi MarketDataApi
	reportGen     ReportGenerator
	initialCash   decimal.Decimal
}

func New(cfg *config.Config, repo Repository, cache Cache, marketDataApi MarketDataApi, reportGen ReportGenerator) *PortfolioService {
	initialCash, err := decimal.NewFromString(cfg.InitialCashBalance)
	if err != nil {
		panic("invalid INITIAL_CASH_BALANCE: " + err.Error())
	}

	return &PortfolioService{
		cfg:           cfg,
		repo:          repo,
		cache:         cache,
		marketDataApi: marketDataApi,
		reportGen:     reportGen,
		initialCash:   initialCash,
	}
}

// RegisterUser creates the user and their single portfolio, funded with the
// configured initial cash balance, in one transaction.
func (s *PortfolioService) RegisterUser(ctx context.Context, username, email, password string) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.RegisterUser"

	slog.Debug("RegisterUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("RegisterUser finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("got error from bcrypt.GenerateFromPassword", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		userID, err := s.repo.InsertUser(ctx, username, email, string(passwordHash))
		if err != nil {
			return err
		}

		_, err = s.repo.CreatePortfolio(ctx, userID, s.initialCash)
		if err != nil {
			return err
		}

		user = model.User{UserID: userID, Username: username, Email: email}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return model.User{}, service.ErrUserAlreadyExists
		}
		slog.Error("got error from repo while registering user", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	return user, nil
}

func (s *PortfolioService) Login(ctx context.Context, username, password string) (model.User, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.Login"

	slog.Debug("Login start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Login finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, service.ErrInvalidCredentials
		}
		slog.Error("got error from repo.GetUserByUsername", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, service.ErrInvalidCredentials
	}

	return user, nil
}

// GetQuotes returns the tracked stocks with their latest candles, reading
// through the cache and falling back to the database.
func (s *PortfolioService) GetQuotes(ctx context.Context) (quotes []model.Quote, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetQuotes"

	slog.Debug("GetQuotes start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetQuotes finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	cached, err := s.cache.GetQuotes(ctx, s.cfg.TrackedSymbols)
	if err == nil {
		quotes = make([]model.Quote, 0, len(cached))
		for _, quote := range cached {
			quotes = append(quotes, quote)
		}
		sort.Slice(quotes, func(i, j int) bool { return quotes[i].Stock.Symbol < quotes[j].Stock.Symbol })
		return quotes, nil
	}

	slog.Warn("can't get quotes from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

	quotes, err = s.repo.GetQuotes(ctx)
	if err != nil {
		slog.Error("got error from repo.GetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	go s.cache.SetQuotes(context.WithoutCancel(ctx), quotes)

	return quotes, nil
}

func (s *PortfolioService) GetStockHistory(ctx context.Context, symbol string) ([]model.Candle, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetStockHistory"

	slog.Debug("GetStockHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("GetStockHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	stock, err := s.repo.GetStockBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrStockNotFound
		}
		slog.Error("got error from repo.GetStockBySymbol", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	candles, err := s.repo.GetCandles(ctx, stock.StockID)
	if err != nil {
		slog.Error("got error from repo.GetCandles", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return candles, nil
}

func (s *PortfolioService) GetPortfolioSummary(ctx context.Context, userID int64) (summary model.PortfolioSummary, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetPortfolioSummary"

	slog.Debug("GetPortfolioSummary start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetPortfolioSummary finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	portfolio, err := s.getPortfolio(ctx, userID)
	if err != nil {
		return model.PortfolioSummary{}, err
	}

	holdings, err := s.repo.GetHoldings(ctx, portfolio.PortfolioID)
	if err != nil {
		slog.Error("got error from repo.GetHoldings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PortfolioSummary{}, err
	}

	summary = model.PortfolioSummary{
		PortfolioID: portfolio.PortfolioID,
		CashBalance: portfolio.CashBalance,
	}

	for _, holding := range holdings {
		price, err := s.repo.LatestClosePrice(ctx, holding.StockID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.PortfolioSummary{}, service.ErrNoPriceData
			}
			return model.PortfolioSummary{}, err
		}
		summary.HoldingsValue = summary.HoldingsValue.Add(holding.Quantity.Mul(price))
	}

	summary.HoldingsCount = len(holdings)
	summary.TotalValue = summary.CashBalance.Add(summary.HoldingsValue)

	return summary, nil
}

func (s *PortfolioService) GetHoldings(ctx context.Context, userID int64) (infos []model.HoldingInfo, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetHoldings"

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetHoldings finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	portfolio, err := s.getPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.repo.GetHoldings(ctx, portfolio.PortfolioID)
	if err != nil {
		slog.Error("got error from repo.GetHoldings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	quotes, err := s.repo.GetQuotes(ctx)
	if err != nil {
		slog.Error("got error from repo.GetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	quotesByStockID := make(map[int64]model.Quote, len(quotes))
	for _, quote := range quotes {
		quotesByStockID[quote.Stock.StockID] = quote
	}

	infos = make([]model.HoldingInfo, 0, len(holdings))
	for _, holding := range holdings {
		quote, ok := quotesByStockID[holding.StockID]
		if !ok || quote.LatestCandle == nil {
			slog.Error("no quote for held stock", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("stockID", holding.StockID))
			return nil, service.ErrNoPriceData
		}

		infos = append(infos, model.HoldingInfo{
			Symbol:              quote.Stock.Symbol,
			CompanyName:         quote.Stock.CompanyName,
			Quantity:            holding.Quantity,
			AverageCostPerShare: holding.AverageCostPerShare,
			LastPrice:           quote.LatestCandle.Close,
			MarketValue:         holding.Quantity.Mul(quote.LatestCandle.Close),
		})
	}

	return infos, nil
}

func (s *PortfolioService) GetTransactions(ctx context.Context, userID int64, page int) (transactions []model.Transaction, hasNextPage bool, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetTransactions"

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.Int("page", page))
	defer func() {
		slog.Debug("GetTransactions finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	portfolio, err := s.getPortfolio(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	limit := s.cfg.TransactionsPerPage
	offset := (page - 1) * limit

	// fetch one extra row to know whether a next page exists
	transactions, err = s.repo.GetTransactions(ctx, portfolio.PortfolioID, limit+1, offset)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, false, err
	}

	if len(transactions) > limit {
		hasNextPage = true
		transactions = transactions[:limit]
	}

	return transactions, hasNextPage, nil
}

// ExportTransactionsReport builds an xlsx workbook with the portfolio's
// transaction history.
func (s *PortfolioService) ExportTransactionsReport(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ExportTransactionsReport"

	slog.Debug("ExportTransactionsReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ExportTransactionsReport finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	portfolio, err := s.getPortfolio(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	transactions, err := s.repo.GetTransactions(ctx, portfolio.PortfolioID, maxReportRows, 0)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	return s.reportGen.Generate(ctx, transactions)
}

// RefreshMarketData pulls reference data and daily candles for every tracked
// symbol and warms the quote cache. Runs on a schedule.
func (s *PortfolioService) RefreshMarketData(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.RefreshMarketData"

	slog.Debug("RefreshMarketData start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("RefreshMarketData finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	var errs []error
	for _, symbol := range s.cfg.TrackedSymbols {
		if err := s.refreshSymbol(ctx, symbol); err != nil {
			slog.Error("failed to refresh symbol", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
			errs = append(errs, err)
		}
	}

	quotes, err := s.repo.GetQuotes(ctx)
	if err != nil {
		slog.Error("got error from repo.GetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return errors.Join(append(errs, err)...)
	}

	if err := s.cache.SetQuotes(ctx, quotes); err != nil {
		slog.Error("got error from cache.SetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *PortfolioService) refreshSymbol(ctx context.Context, symbol string) error {
	stock, err := s.marketDataApi.GetCompanyOverview(ctx, symbol)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			// reference data is optional, candles are not
			stock = model.Stock{Symbol: symbol}
		} else {
			return err
		}
	}

	stockID, err := s.repo.UpsertStock(ctx, stock)
	if err != nil {
		return err
	}

	candles, err := s.marketDataApi.GetDailySeries(ctx, symbol)
	if err != nil {
		return err
	}

	return s.repo.InsertCandles(ctx, stockID, candles)
}

func (s *PortfolioService) getPortfolio(ctx context.Context, userID int64) (model.Portfolio, error) {
	portfolio, err := s.repo.GetPortfolio(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Portfolio{}, service.ErrNotFound
		}
		return model.Portfolio{}, err
	}
	return portfolio, nil
}
