package restConverter

import (
	"time"

	"github.com/avdeyev/papertrader/internal/model"
)

const dateLayout = "2006-01-02"

type UserResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type CandleResponse struct {
	Date   string `json:"date"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume int64  `json:"volume"`
}

type QuoteResponse struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"company_name"`
	Sector      string          `json:"sector"`
	LatestOHLC  *CandleResponse `json:"latest_ohlc"`
}

type PortfolioSummaryResponse struct {
	CashBalance   string `json:"cash_balance"`
	HoldingsValue string `json:"holdings_value"`
	TotalValue    string `json:"total_value"`
	HoldingsCount int    `json:"holdings_count"`
}

type HoldingResponse struct {
	Symbol              string `json:"symbol"`
	CompanyName         string `json:"company_name"`
	Quantity            string `json:"quantity"`
	AverageCostPerShare string `json:"average_cost_per_share"`
	LastPrice           string `json:"last_price"`
	MarketValue         string `json:"market_value"`
}

type TransactionResponse struct {
	TransactionID int64  `json:"transaction_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	PricePerShare string `json:"price_per_share"`
	ExecutedAt    string `json:"executed_at"`
}

func ConvertUser(user model.User) UserResponse {
	return UserResponse{
		UserID:   user.UserID,
		Username: user.Username,
		Email:    user.Email,
	}
}

func ConvertCandle(candle model.Candle) CandleResponse {
	return CandleResponse{
		Date:   candle.Date.Format(dateLayout),
		Open:   candle.Open.String(),
		High:   candle.High.String(),
		Low:    candle.Low.String(),
		Close:  candle.Close.String(),
		Volume: candle.Volume,
	}
}

func ConvertCandles(candles []model.Candle) []CandleResponse {
	res := make([]CandleResponse, 0, len(candles))
	for _, candle := range candles {
		res = append(res, ConvertCandle(candle))
	}
	return res
}

func ConvertQuote(quote model.Quote) QuoteResponse {
	res := QuoteResponse{
		Symbol:      quote.Stock.Symbol,
		CompanyName: quote.Stock.CompanyName,
		Sector:      quote.Stock.Sector,
	}
	if quote.LatestCandle != nil {
		candle := ConvertCandle(*quote.LatestCandle)
		res.LatestOHLC = &candle
	}
	return res
}

func ConvertQuotes(quotes []model.Quote) []QuoteResponse {
	res := make([]QuoteResponse, 0, len(quotes))
	for _, quote := range quotes {
		res = append(res, ConvertQuote(quote))
	}
	return res
}

func ConvertPortfolioSummary(summary model.PortfolioSummary) PortfolioSummaryResponse {
	return PortfolioSummaryResponse{
		CashBalance:   summary.CashBalance.String(),
		HoldingsValue: summary.HoldingsValue.String(),
		TotalValue:    summary.TotalValue.String(),
		HoldingsCount: summary.HoldingsCount,
	}
}

func ConvertHoldings(holdings []model.HoldingInfo) []HoldingResponse {
	res := make([]HoldingResponse, 0, len(holdings))
	for _, holding := range holdings {
		res = append(res, HoldingResponse{
			Symbol:              holding.Symbol,
			CompanyName:         holding.CompanyName,
			Quantity:            holding.Quantity.String(),
			AverageCostPerShare: holding.AverageCostPerShare.String(),
			LastPrice:           holding.LastPrice.String(),
			MarketValue:         holding.MarketValue.String(),
		})
	}
	return res
}

func ConvertTransaction(trn model.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: trn.TransactionID,
		Symbol:        trn.Symbol,
		Side:          string(trn.Side),
		Quantity:      trn.Quantity.String(),
		PricePerShare: trn.PricePerShare.String(),
		ExecutedAt:    trn.ExecutedAt.UTC().Format(time.RFC3339),
	}
}

func ConvertTransactions(transactions []model.Transaction) []TransactionResponse {
	res := make([]TransactionResponse, 0, len(transactions))
	for _, trn := range transactions {
		res = append(res, ConvertTransaction(trn))
	}
	return res
}
