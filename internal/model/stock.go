package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Stock struct {
	StockID     int64
	Symbol      string
	CompanyName string
	Sector      string
}

type Candle struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Quote pairs a stock with its most recent candle. LatestCandle is nil
// when no price data has been ingested yet.
type Quote struct {
	Stock        Stock
	LatestCandle *Candle
}
