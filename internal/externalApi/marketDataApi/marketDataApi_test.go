package marketDataApi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avdeyev/papertrader/config"
	"github.com/avdeyev/papertrader/internal/externalApi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailySeriesFixture = `{
	"Meta Data": {
		"1. Information": "Daily Prices (open, high, low, close) and Volumes",
		"2. Symbol": "AAPL"
	},
	"Time Series (Daily)": {
		"2026-08-28": {
			"1. open": "231.10",
			"2. high": "233.40",
			"3. low": "229.85",
			"4. close": "232.14",
			"5. volume": "44120345"
		},
		"2026-08-27": {
			"1. open": "228.50",
			"2. high": "231.70",
			"3. low": "228.05",
			"4. close": "230.49",
			"5. volume": "39872100"
		},
		"2026-08-26": {
			"1. open": "227.00",
			"2. high": "229.10",
			"3. low": "226.40",
			"4. close": "228.88",
			"5. volume": "35210540"
		}
	}
}`

func newTestApi(t *testing.T, handler http.HandlerFunc) *MarketDataApi {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.API.Timeout = 5 * time.Second
	cfg.API.MarketDataApi.Url = srv.URL
	cfg.API.MarketDataApi.ApiKey = "test-key"

	return New(cfg)
}

func TestGetDailySeries(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(dailySeriesFixture))
	})

	candles, err := api.GetDailySeries(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, candles, 3)

	// oldest first
	assert.Equal(t, "2026-08-26", candles[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2026-08-28", candles[2].Date.Format("2006-01-02"))

	assert.True(t, candles[0].Open.Equal(decimal.RequireFromString("227.00")))
	assert.True(t, candles[0].Close.Equal(decimal.RequireFromString("228.88")))
	assert.Equal(t, int64(35210540), candles[0].Volume)
	assert.True(t, candles[2].Close.Equal(decimal.RequireFromString("232.14")))
}

func TestGetDailySeriesUnknownSymbol(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	})

	_, err := api.GetDailySeries(context.Background(), "NOPE")
	assert.ErrorIs(t, err, externalApi.ErrNotFound)
}

func TestGetDailySeriesEmptyResponse(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := api.GetDailySeries(context.Background(), "AAPL")
	assert.ErrorIs(t, err, externalApi.ErrNotFound)
}

func TestGetCompanyOverview(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Symbol": "AAPL", "Name": "Apple Inc", "Sector": "TECHNOLOGY"}`))
	})

	stock, err := api.GetCompanyOverview(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", stock.Symbol)
	assert.Equal(t, "Apple Inc", stock.CompanyName)
	assert.Equal(t, "TECHNOLOGY", stock.Sector)
}

func TestGetCompanyOverviewUnknownSymbol(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := api.GetCompanyOverview(context.Background(), "NOPE")
	assert.ErrorIs(t, err, externalApi.ErrNotFound)
}
