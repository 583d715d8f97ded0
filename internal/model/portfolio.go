package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Portfolio struct {
	PortfolioID int64
	UserID      int64
	CashBalance decimal.Decimal
	CreatedAt   time.Time
}

// Holding is the aggregate position for one stock inside a portfolio.
// It exists only while Quantity > 0.
type Holding struct {
	PortfolioID         int64
	StockID             int64
	Quantity            decimal.Decimal
	AverageCostPerShare decimal.Decimal
	LastUpdated         time.Time
}

type Transaction struct {
	TransactionID int64
	PortfolioID   int64
	StockID       int64
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	PricePerShare decimal.Decimal
	ExecutedAt    time.Time
}

type PortfolioSummary struct {
	PortfolioID   int64
	CashBalance   decimal.Decimal
	HoldingsValue decimal.Decimal
	TotalValue    decimal.Decimal
	HoldingsCount int
}

// HoldingInfo is a holding enriched with reference data and the latest
// oracle price for display purposes.
type HoldingInfo struct {
	Symbol              string
	CompanyName         string
	Quantity            decimal.Decimal
	AverageCostPerShare decimal.Decimal
	LastPrice           decimal.Decimal
	MarketValue         decimal.Decimal
}
