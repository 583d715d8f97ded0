package dbModel

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Stock struct {
	StockID     int64  `db:"stock_id"`
	Symbol      string `db:"symbol"`
	CompanyName string `db:"company_name"`
	Sector      string `db:"sector"`
}

type Candle struct {
	StockID int64           `db:"stock_id"`
	Date    time.Time       `db:"date"`
	Open    decimal.Decimal `db:"open"`
	High    decimal.Decimal `db:"high"`
	Low     decimal.Decimal `db:"low"`
	Close   decimal.Decimal `db:"close"`
	Volume  int64           `db:"volume"`
}

// StockWithCandle carries a stock row left-joined with its latest
// time_series row, so candle columns are nullable.
type StockWithCandle struct {
	StockID     int64               `db:"stock_id"`
	Symbol      string              `db:"symbol"`
	CompanyName string              `db:"company_name"`
	Sector      string              `db:"sector"`
	Date        sql.NullTime        `db:"date"`
	Open        decimal.NullDecimal `db:"open"`
	High        decimal.NullDecimal `db:"high"`
	Low         decimal.NullDecimal `db:"low"`
	Close       decimal.NullDecimal `db:"close"`
	Volume      sql.NullInt64       `db:"volume"`
}
