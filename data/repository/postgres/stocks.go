package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avdeyev/papertrader/data/repository"
	"github.com/avdeyev/papertrader/internal/converter/dbConverter"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/model/dbModel"
	"github.com/avdeyev/papertrader/utils"
	"github.com/shopspring/decimal"
)

func (r *Postgres) UpsertStock(ctx context.Context, stock model.Stock) (stockID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO stocks (symbol, company_name, sector) VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			sector = EXCLUDED.sector
		RETURNING stock_id
		`

	slog.Debug("UpsertStock start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertStock failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertStock completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, stock.Symbol, stock.CompanyName, stock.Sector).Scan(&stockID)
	if err != nil {
		return 0, err
	}

	return stockID, nil
}

func (r *Postgres) GetStockBySymbol(ctx context.Context, symbol string) (stock model.Stock, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT stock_id, symbol, company_name, sector FROM stocks WHERE symbol = $1`

	slog.Debug("GetStockBySymbol start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetStockBySymbol failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetStockBySymbol completed", slog.String("rqID", rqID))
		}
	}()

	dbStock := dbModel.Stock{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, symbol).StructScan(&dbStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Stock{}, repository.ErrNotFound
		}
		return model.Stock{}, err
	}

	return dbConverter.ConvertStock(dbStock), nil
}

func (r *Postgres) GetQuotes(ctx context.Context) (quotes []model.Quote, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetQuotes"
	query := `
		SELECT s.stock_id, s.symbol, s.company_name, s.sector,
			ts.date, ts.open, ts.high, ts.low, ts.close, ts.volume
		FROM stocks s
		LEFT JOIN LATERAL (
			SELECT date, open, high, low, close, volume
			FROM time_series
			WHERE stock_id = s.stock_id
			ORDER BY date DESC
			LIMIT 1
		) ts ON true
		ORDER BY s.symbol
		`

	slog.Debug("GetQuotes start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetQuotes failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetQuotes completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var row dbModel.StockWithCandle
		err = rows.StructScan(&row)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, dbConverter.ConvertStockWithCandle(row))
	}

	return quotes, nil
}

// LatestClosePrice is the price oracle: the most recent close recorded for
// the stock. Returns repository.ErrNotFound when no quote was ever ingested.
func (r *Postgres) LatestClosePrice(ctx context.Context, stockID int64) (price decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT close FROM time_series
		WHERE stock_id = $1
		ORDER BY date DESC
		LIMIT 1
		`

	slog.Debug("LatestClosePrice start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("LatestClosePrice failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("LatestClosePrice completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, stockID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, repository.ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	return price, nil
}

func (r *Postgres) InsertCandles(ctx context.Context, stockID int64, candles []model.Candle) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertCandles"

	if len(candles) == 0 {
		return nil
	}

	sb := strings.Builder{}
	args := make([]any, 0, len(candles)*7)

	defer func() {
		if err != nil {
			slog.Error("InsertCandles failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertCandles completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	slog.Debug("InsertCandles start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("stockID", stockID), slog.Int("candles", len(candles)))

	sb.WriteString(`INSERT INTO time_series (stock_id, date, open, high, low, close, volume) VALUES `)

	for i, candle := range candles {
		args = append(args, stockID, candle.Date, candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)

		start := i*7 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			start, start+1, start+2, start+3, start+4, start+5, start+6,
		))

		if i < len(candles)-1 {
			sb.WriteString(",")
		}
	}

	sb.WriteString(`
		ON CONFLICT (stock_id, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume;
	`)

	_, err = r.txOrDb(ctx).ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *Postgres) GetCandles(ctx context.Context, stockID int64) (candles []model.Candle, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetCandles"
	query := `
		SELECT stock_id, date, open, high, low, close, volume
		FROM time_series
		WHERE stock_id = $1
		ORDER BY date
		`

	slog.Debug("GetCandles start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetCandles failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetCandles completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, stockID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbCandle dbModel.Candle
		err = rows.StructScan(&dbCandle)
		if err != nil {
			return nil, err
		}
		candles = append(candles, dbConverter.ConvertCandle(dbCandle))
	}

	return candles, nil
}
