package portfolioService

import (
	"context"
	"sync"
	"testing"

	"github.com/avdeyev/papertrader/config"
	"github.com/avdeyev/papertrader/data/repository"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type holdingKey struct {
	portfolioID int64
	stockID     int64
}

// fakeRepo is an in-memory Repository with the same contract as the
// Postgres implementation: WithinTransaction serializes callers and rolls
// every mutation back when the callback fails.
type fakeRepo struct {
	mu           sync.Mutex
	users        map[string]model.User
	portfolios   map[int64]model.Portfolio // by user id
	stocks       map[string]model.Stock
	prices       map[int64]decimal.Decimal // latest close by stock id
	holdings     map[holdingKey]model.Holding
	transactions []model.Transaction

	nextUserID int64
	nextTrnID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:      map[string]model.User{},
		portfolios: map[int64]model.Portfolio{},
		stocks:     map[string]model.Stock{},
		prices:     map[int64]decimal.Decimal{},
		holdings:   map[holdingKey]model.Holding{},
	}
}

func (f *fakeRepo) addPortfolio(userID, portfolioID int64, cash decimal.Decimal) {
	f.portfolios[userID] = model.Portfolio{PortfolioID: portfolioID, UserID: userID, CashBalance: cash}
}

func (f *fakeRepo) addStock(stockID int64, symbol string, price decimal.Decimal) {
	f.stocks[symbol] = model.Stock{StockID: stockID, Symbol: symbol}
	f.prices[stockID] = price
}

func (f *fakeRepo) snapshot() *fakeRepo {
	snap := newFakeRepo()
	for k, v := range f.users {
		snap.users[k] = v
	}
	for k, v := range f.portfolios {
		snap.portfolios[k] = v
	}
	for k, v := range f.stocks {
		snap.stocks[k] = v
	}
	for k, v := range f.prices {
		snap.prices[k] = v
	}
	for k, v := range f.holdings {
		snap.holdings[k] = v
	}
	snap.transactions = append([]model.Transaction(nil), f.transactions...)
	snap.nextUserID = f.nextUserID
	snap.nextTrnID = f.nextTrnID
	return snap
}

func (f *fakeRepo) restore(snap *fakeRepo) {
	f.users = snap.users
	f.portfolios = snap.portfolios
	f.stocks = snap.stocks
	f.prices = snap.prices
	f.holdings = snap.holdings
	f.transactions = snap.transactions
	f.nextUserID = snap.nextUserID
	f.nextTrnID = snap.nextTrnID
}

func (f *fakeRepo) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeRepo) InsertUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	if _, ok := f.users[username]; ok {
		return 0, repository.ErrAlreadyExists
	}
	f.nextUserID++
	f.users[username] = model.User{UserID: f.nextUserID, Username: username, Email: email, PasswordHash: passwordHash}
	return f.nextUserID, nil
}

func (f *fakeRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	user, ok := f.users[username]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeRepo) CreatePortfolio(ctx context.Context, userID int64, initialCash decimal.Decimal) (int64, error) {
	if _, ok := f.portfolios[userID]; ok {
		return 0, repository.ErrAlreadyExists
	}
	portfolioID := userID * 100
	f.portfolios[userID] = model.Portfolio{PortfolioID: portfolioID, UserID: userID, CashBalance: initialCash}
	return portfolioID, nil
}

func (f *fakeRepo) GetPortfolio(ctx context.Context, userID int64) (model.Portfolio, error) {
	portfolio, ok := f.portfolios[userID]
	if !ok {
		return model.Portfolio{}, repository.ErrNotFound
	}
	return portfolio, nil
}

func (f *fakeRepo) GetPortfolioForUpdate(ctx context.Context, userID int64) (model.Portfolio, error) {
	return f.GetPortfolio(ctx, userID)
}

func (f *fakeRepo) UpdateCashBalance(ctx context.Context, portfolioID int64, cashBalance decimal.Decimal) error {
	for userID, portfolio := range f.portfolios {
		if portfolio.PortfolioID == portfolioID {
			portfolio.CashBalance = cashBalance
			f.portfolios[userID] = portfolio
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeRepo) GetHolding(ctx context.Context, portfolioID, stockID int64) (model.Holding, error) {
	holding, ok := f.holdings[holdingKey{portfolioID, stockID}]
	if !ok {
		return model.Holding{}, repository.ErrNotFound
	}
	return holding, nil
}

func (f *fakeRepo) CreateHolding(ctx context.Context, holding model.Holding) error {
	key := holdingKey{holding.PortfolioID, holding.StockID}
	if _, ok := f.holdings[key]; ok {
		return repository.ErrAlreadyExists
	}
	f.holdings[key] = holding
	return nil
}

func (f *fakeRepo) UpdateHolding(ctx context.Context, holding model.Holding) error {
	f.holdings[holdingKey{holding.PortfolioID, holding.StockID}] = holding
	return nil
}

func (f *fakeRepo) DeleteHolding(ctx context.Context, portfolioID, stockID int64) error {
	delete(f.holdings, holdingKey{portfolioID, stockID})
	return nil
}

func (f *fakeRepo) GetHoldings(ctx context.Context, portfolioID int64) ([]model.Holding, error) {
	var holdings []model.Holding
	for key, holding := range f.holdings {
		if key.portfolioID == portfolioID {
			holdings = append(holdings, holding)
		}
	}
	return holdings, nil
}

func (f *fakeRepo) InsertTransaction(ctx context.Context, trn model.Transaction) (model.Transaction, error) {
	f.nextTrnID++
	trn.TransactionID = f.nextTrnID
	f.transactions = append(f.transactions, trn)
	return trn, nil
}

func (f *fakeRepo) GetTransactions(ctx context.Context, portfolioID int64, limit, offset int) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for i := len(f.transactions) - 1; i >= 0; i-- {
		if f.transactions[i].PortfolioID == portfolioID {
			transactions = append(transactions, f.transactions[i])
		}
	}
	if offset >= len(transactions) {
		return nil, nil
	}
	transactions = transactions[offset:]
	if len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

func (f *fakeRepo) UpsertStock(ctx context.Context, stock model.Stock) (int64, error) {
	existing, ok := f.stocks[stock.Symbol]
	if ok {
		stock.StockID = existing.StockID
	} else {
		stock.StockID = int64(len(f.stocks) + 1)
	}
	f.stocks[stock.Symbol] = stock
	return stock.StockID, nil
}

func (f *fakeRepo) GetStockBySymbol(ctx context.Context, symbol string) (model.Stock, error) {
	stock, ok := f.stocks[symbol]
	if !ok {
		return model.Stock{}, repository.ErrNotFound
	}
	return stock, nil
}

func (f *fakeRepo) GetQuotes(ctx context.Context) ([]model.Quote, error) {
	var quotes []model.Quote
	for _, stock := range f.stocks {
		quote := model.Quote{Stock: stock}
		if price, ok := f.prices[stock.StockID]; ok {
			quote.LatestCandle = &model.Candle{Close: price}
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

func (f *fakeRepo) LatestClosePrice(ctx context.Context, stockID int64) (decimal.Decimal, error) {
	price, ok := f.prices[stockID]
	if !ok {
		return decimal.Decimal{}, repository.ErrNotFound
	}
	return price, nil
}

func (f *fakeRepo) InsertCandles(ctx context.Context, stockID int64, candles []model.Candle) error {
	if len(candles) > 0 {
		f.prices[stockID] = candles[len(candles)-1].Close
	}
	return nil
}

func (f *fakeRepo) GetCandles(ctx context.Context, stockID int64) ([]model.Candle, error) {
	return nil, nil
}

type noopCache struct{}

func (noopCache) SetQuotes(ctx context.Context, quotes []model.Quote) error { return nil }
func (noopCache) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	return model.Quote{}, repository.ErrNotFound
}
func (noopCache) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	return nil, repository.ErrNotFound
}

func newTestService(repo Repository) *PortfolioService {
	cfg := &config.Config{
		InitialCashBalance:  "10000.00",
		TransactionsPerPage: 50,
	}
	return New(cfg, repo, noopCache{}, nil, nil)
}

func TestRegisterUserCreatesFundedPortfolio(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotZero(t, user.UserID)

	portfolio, err := repo.GetPortfolio(ctx, user.UserID)
	require.NoError(t, err)
	assert.True(t, portfolio.CashBalance.Equal(decimal.RequireFromString("10000.00")))

	// stored hash must verify against the raw password
	stored, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")))

	_, err = svc.RegisterUser(ctx, "alice", "other@example.com", "s3cret")
	assert.ErrorIs(t, err, service.ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "bob", "bob@example.com", "hunter2")
	require.NoError(t, err)

	user, err := svc.Login(ctx, "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)

	_, err = svc.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "hunter2")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestGetPortfolioSummary(t *testing.T) {
	repo := newFakeRepo()
	repo.addPortfolio(1, 100, decimal.RequireFromString("500"))
	repo.addStock(7, "AAPL", decimal.RequireFromString("110"))
	repo.addStock(8, "MSFT", decimal.RequireFromString("200"))
	repo.holdings[holdingKey{100, 7}] = model.Holding{PortfolioID: 100, StockID: 7, Quantity: decimal.RequireFromString("5"), AverageCostPerShare: decimal.RequireFromString("100")}
	repo.holdings[holdingKey{100, 8}] = model.Holding{PortfolioID: 100, StockID: 8, Quantity: decimal.RequireFromString("2"), AverageCostPerShare: decimal.RequireFromString("190")}
	svc := newTestService(repo)

	summary, err := svc.GetPortfolioSummary(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, summary.CashBalance.Equal(decimal.RequireFromString("500")))
	assert.True(t, summary.HoldingsValue.Equal(decimal.RequireFromString("950")), "holdings value = %s", summary.HoldingsValue)
	assert.True(t, summary.TotalValue.Equal(decimal.RequireFromString("1450")))
	assert.Equal(t, 2, summary.HoldingsCount)
}

func TestGetPortfolioSummaryNoPriceData(t *testing.T) {
	repo := newFakeRepo()
	repo.addPortfolio(1, 100, decimal.RequireFromString("500"))
	repo.stocks["AAPL"] = model.Stock{StockID: 7, Symbol: "AAPL"}
	repo.holdings[holdingKey{100, 7}] = model.Holding{PortfolioID: 100, StockID: 7, Quantity: decimal.RequireFromString("5"), AverageCostPerShare: decimal.RequireFromString("100")}
	svc := newTestService(repo)

	_, err := svc.GetPortfolioSummary(context.Background(), 1)
	assert.ErrorIs(t, err, service.ErrNoPriceData)
}

func TestGetTransactionsPagination(t *testing.T) {
	repo := newFakeRepo()
	repo.addPortfolio(1, 100, decimal.Zero)
	svc := newTestService(repo)
	svc.cfg.TransactionsPerPage = 3
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := repo.InsertTransaction(ctx, model.Transaction{
			PortfolioID:   100,
			StockID:       7,
			Symbol:        "AAPL",
			Side:          model.SideBuy,
			Quantity:      decimal.RequireFromString("1"),
			PricePerShare: decimal.RequireFromString("10"),
		})
		require.NoError(t, err)
	}

	transactions, hasNextPage, err := svc.GetTransactions(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, transactions, 3)
	assert.True(t, hasNextPage)

	transactions, hasNextPage, err = svc.GetTransactions(ctx, 1, 3)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
	assert.False(t, hasNextPage)

	transactions, hasNextPage, err = svc.GetTransactions(ctx, 1, 4)
	require.NoError(t, err)
	assert.Empty(t, transactions)
	assert.False(t, hasNextPage)
}
