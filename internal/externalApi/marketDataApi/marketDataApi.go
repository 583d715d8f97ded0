package marketDataApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/avdeyev/papertrader/config"
	"github.com/avdeyev/papertrader/internal/externalApi"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type MarketDataApi struct {
	client *resty.Client
	apiKey string
}

func New(cfg *config.Config) *MarketDataApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.MarketDataApi.Url)
	return &MarketDataApi{client: client, apiKey: cfg.API.MarketDataApi.ApiKey}
}

type rawDailySeries struct {
	ErrorMessage string                       `json:"Error Message"`
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
}

type rawOverview struct {
	Symbol string `json:"Symbol"`
	Name   string `json:"Name"`
	Sector string `json:"Sector"`
}

// GetDailySeries fetches the daily OHLCV history for a symbol, oldest first.
func (a *MarketDataApi) GetDailySeries(ctx context.Context, symbol string) ([]model.Candle, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	params := map[string]string{
		"function": "TIME_SERIES_DAILY",
		"symbol":   symbol,
		"apikey":   a.apiKey,
	}

	slog.Debug("start MarketDataApi.GetDailySeries request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get("/query")

	if err != nil {
		slog.Error("error while dialing MarketDataApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	raw := rawDailySeries{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into rawDailySeries", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	if raw.ErrorMessage != "" || len(raw.Series) == 0 {
		slog.Warn("no daily series in response", slog.String("rqID", rqID), slog.String("symbol", symbol), slog.String("apiError", raw.ErrorMessage))
		return nil, externalApi.ErrNotFound
	}

	candles, err := a.parseRawDailySeries(raw)
	if err != nil {
		slog.Error("can't parse raw daily series", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	slog.Debug("MarketDataApi.GetDailySeries request complete", slog.String("rqID", rqID), slog.Int("candles", len(candles)))

	return candles, nil
}

// GetCompanyOverview fetches reference data (name, sector) for a symbol.
func (a *MarketDataApi) GetCompanyOverview(ctx context.Context, symbol string) (model.Stock, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	params := map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
		"apikey":   a.apiKey,
	}

	slog.Debug("start MarketDataApi.GetCompanyOverview request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get("/query")

	if err != nil {
		slog.Error("error while dialing MarketDataApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Stock{}, err
	}

	raw := rawOverview{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into rawOverview", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Stock{}, err
	}

	if raw.Symbol == "" {
		return model.Stock{}, externalApi.ErrNotFound
	}

	slog.Debug("MarketDataApi.GetCompanyOverview request complete", slog.String("rqID", rqID))

	return model.Stock{Symbol: raw.Symbol, CompanyName: raw.Name, Sector: raw.Sector}, nil
}

func (a *MarketDataApi) parseRawDailySeries(raw rawDailySeries) ([]model.Candle, error) {
	candles := make([]model.Candle, 0, len(raw.Series))

	for dateStr, fields := range raw.Series {
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid series date %s: %w", dateStr, err)
		}

		candle := model.Candle{Date: date}

		for key, value := range fields {
			switch key {
			case "1. open":
				candle.Open, err = decimal.NewFromString(value)
			case "2. high":
				candle.High, err = decimal.NewFromString(value)
			case "3. low":
				candle.Low, err = decimal.NewFromString(value)
			case "4. close":
				candle.Close, err = decimal.NewFromString(value)
			case "5. volume":
				var volume int64
				_, err = fmt.Sscan(value, &volume)
				candle.Volume = volume
			default:
				return nil, fmt.Errorf("unknown column %s", key)
			}

			if err != nil {
				return nil, fmt.Errorf("invalid value %s = %s: %w", key, value, err)
			}
		}

		if candle.Close.IsZero() {
			return nil, fmt.Errorf("missing close for %s", dateStr)
		}

		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })

	return candles, nil
}
