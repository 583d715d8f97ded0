package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/avdeyev/papertrader/data/repository"
	"github.com/avdeyev/papertrader/internal/converter/dbConverter"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/model/dbModel"
	"github.com/avdeyev/papertrader/utils"
	"github.com/shopspring/decimal"
)

func (r *Postgres) GetPortfolio(ctx context.Context, userID int64) (portfolio model.Portfolio, err error) {
	query := `
		SELECT portfolio_id, user_id, cash_balance, created_at
		FROM portfolios
		WHERE user_id = $1
		`

	return r.getPortfolio(ctx, userID, query)
}

// GetPortfolioForUpdate locks the portfolio row until the surrounding
// transaction commits or rolls back. Every order against the portfolio has
// to go through this lock, which serializes concurrent orders per portfolio.
func (r *Postgres) GetPortfolioForUpdate(ctx context.Context, userID int64) (portfolio model.Portfolio, err error) {
	query := `
		SELECT portfolio_id, user_id, cash_balance, created_at
		FROM portfolios
		WHERE user_id = $1
		FOR UPDATE
		`

	return r.getPortfolio(ctx, userID, query)
}

func (r *Postgres) getPortfolio(ctx context.Context, userID int64, query string) (portfolio model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("getPortfolio start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("getPortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("getPortfolio completed", slog.String("rqID", rqID))
		}
	}()

	dbPortfolio := dbModel.Portfolio{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, userID).StructScan(&dbPortfolio)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Portfolio{}, repository.ErrNotFound
		}
		return model.Portfolio{}, err
	}

	return dbConverter.ConvertPortfolio(dbPortfolio), nil
}

func (r *Postgres) UpdateCashBalance(ctx context.Context, portfolioID int64, cashBalance decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `UPDATE portfolios SET cash_balance = $1 WHERE portfolio_id = $2`

	slog.Debug("UpdateCashBalance start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateCashBalance failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateCashBalance completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, cashBalance, portfolioID)
	return err
}

func (r *Postgres) GetHolding(ctx context.Context, portfolioID, stockID int64) (holding model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT portfolio_id, stock_id, quantity, average_cost_per_share, last_updated
		FROM holdings
		WHERE portfolio_id = $1 AND stock_id = $2
		`

	slog.Debug("GetHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHolding completed", slog.String("rqID", rqID))
		}
	}()

	dbHolding := dbModel.Holding{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, portfolioID, stockID).StructScan(&dbHolding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Holding{}, repository.ErrNotFound
		}
		return model.Holding{}, err
	}

	return dbConverter.ConvertHolding(dbHolding), nil
}

func (r *Postgres) CreateHolding(ctx context.Context, holding model.Holding) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO holdings(portfolio_id, stock_id, quantity, average_cost_per_share)
		VALUES($1, $2, $3, $4)
		`

	slog.Debug("CreateHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, holding.PortfolioID, holding.StockID, holding.Quantity, holding.AverageCostPerShare)
	return err
}

func (r *Postgres) UpdateHolding(ctx context.Context, holding model.Holding) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE holdings
		SET quantity = $1, average_cost_per_share = $2, last_updated = now()
		WHERE portfolio_id = $3 AND stock_id = $4
		`

	slog.Debug("UpdateHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, holding.Quantity, holding.AverageCostPerShare, holding.PortfolioID, holding.StockID)
	return err
}

func (r *Postgres) DeleteHolding(ctx context.Context, portfolioID, stockID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM holdings WHERE portfolio_id = $1 AND stock_id = $2`

	slog.Debug("DeleteHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, portfolioID, stockID)
	return err
}

func (r *Postgres) GetHoldings(ctx context.Context, portfolioID int64) (holdings []model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT portfolio_id, stock_id, quantity, average_cost_per_share, last_updated
		FROM holdings
		WHERE portfolio_id = $1
		ORDER BY stock_id
		`

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHoldings failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHoldings completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbHolding dbModel.Holding
		err = rows.StructScan(&dbHolding)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, dbConverter.ConvertHolding(dbHolding))
	}

	return holdings, nil
}

func (r *Postgres) InsertTransaction(ctx context.Context, trn model.Transaction) (res model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertTransaction"
	query := `
		INSERT INTO transactions(portfolio_id, stock_id, side, quantity, price_per_share)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING transaction_id, executed_at
		`

	slog.Debug(
		"InsertTransaction start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int64("portfolioID", trn.PortfolioID),
		slog.Any("transaction", trn),
		slog.String("query", query),
	)
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(
		ctx,
		query,
		trn.PortfolioID,
		trn.StockID,
		string(trn.Side),
		trn.Quantity,
		trn.PricePerShare,
	).Scan(&trn.TransactionID, &trn.ExecutedAt)
	if err != nil {
		return model.Transaction{}, err
	}

	return trn, nil
}

func (r *Postgres) GetTransactions(ctx context.Context, portfolioID int64, limit, offset int) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransactions"
	params := map[string]any{
		"portfolioID": portfolioID,
		"limit":       limit,
		"offset":      offset,
	}
	query := `
		SELECT t.transaction_id, t.portfolio_id, t.stock_id, s.symbol, t.side, t.quantity, t.price_per_share, t.executed_at
		FROM transactions t
		JOIN stocks s USING(stock_id)
		WHERE t.portfolio_id = $1
		ORDER BY t.executed_at DESC, t.transaction_id DESC
		LIMIT $2
		OFFSET $3
		`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query), slog.Any("params", params))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID, limit, offset)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	transactions = make([]model.Transaction, 0, limit)
	for rows.Next() {
		var dbTrn dbModel.Transaction
		err = rows.StructScan(&dbTrn)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, dbConverter.ConvertTransaction(dbTrn))
	}

	return transactions, nil
}
