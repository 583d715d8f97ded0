package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Portfolio struct {
	PortfolioID int64           `db:"portfolio_id"`
	UserID      int64           `db:"user_id"`
	CashBalance decimal.Decimal `db:"cash_balance"`
	CreatedAt   time.Time       `db:"created_at"`
}

type Holding struct {
	PortfolioID         int64           `db:"portfolio_id"`
	StockID             int64           `db:"stock_id"`
	Quantity            decimal.Decimal `db:"quantity"`
	AverageCostPerShare decimal.Decimal `db:"average_cost_per_share"`
	LastUpdated         time.Time       `db:"last_updated"`
}

type Transaction struct {
	TransactionID int64           `db:"transaction_id"`
	PortfolioID   int64           `db:"portfolio_id"`
	StockID       int64           `db:"stock_id"`
	Symbol        string          `db:"symbol"`
	Side          string          `db:"side"`
	Quantity      decimal.Decimal `db:"quantity"`
	PricePerShare decimal.Decimal `db:"price_per_share"`
	ExecutedAt    time.Time       `db:"executed_at"`
}
