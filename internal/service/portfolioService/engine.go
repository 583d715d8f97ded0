package portfolioService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avdeyev/papertrader/data/repository"
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/service"
	"github.com/avdeyev/papertrader/utils"
	"github.com/shopspring/decimal"
)

// tradePlan is the set of mutations one executed order applies to a
// portfolio: the new cash balance and what happens to the holding row.
// At most one of create/update/delete is set.
type tradePlan struct {
	cashBalance   decimal.Decimal
	holding       model.Holding
	createHolding bool
	updateHolding bool
	deleteHolding bool
}

// planTrade is the arithmetic core of the transaction engine. It is a pure
// function over plain records: given the current portfolio state, the
// existing holding (nil when the position is not open) and an order, it
// either returns the mutations to apply or a business rejection. All math is
// exact decimal, no floats.
func planTrade(portfolio model.Portfolio, holding *model.Holding, stockID int64, side model.Side, quantity, price decimal.Decimal) (tradePlan, error) {
	total := quantity.Mul(price)

	switch side {
	case model.SideBuy:
		if portfolio.CashBalance.LessThan(total) {
			return tradePlan{}, service.ErrInsufficientFunds
		}

		plan := tradePlan{cashBalance: portfolio.CashBalance.Sub(total)}

		if holding == nil {
			plan.createHolding = true
			plan.holding = model.Holding{
				PortfolioID:         portfolio.PortfolioID,
				StockID:             stockID,
				Quantity:            quantity,
				AverageCostPerShare: price,
			}
			return plan, nil
		}

		// weighted-average cost basis: blend the committed capital with the
		// cost of the new shares
		oldValue := holding.Quantity.Mul(holding.AverageCostPerShare)
		newQuantity := holding.Quantity.Add(quantity)

		plan.updateHolding = true
		plan.holding = model.Holding{
			PortfolioID:         portfolio.PortfolioID,
			StockID:             stockID,
			Quantity:            newQuantity,
			AverageCostPerShare: oldValue.Add(total).Div(newQuantity),
		}
		return plan, nil

	case model.SideSell:
		if holding == nil || holding.Quantity.LessThan(quantity) {
			return tradePlan{}, service.ErrInsufficientHoldings
		}

		plan := tradePlan{cashBalance: portfolio.CashBalance.Add(total)}
		remaining := holding.Quantity.Sub(quantity)

		if remaining.IsZero() {
			plan.deleteHolding = true
			plan.holding = model.Holding{PortfolioID: portfolio.PortfolioID, StockID: stockID}
			return plan, nil
		}

		// selling never touches the cost basis of the remaining shares
		plan.updateHolding = true
		plan.holding = model.Holding{
			PortfolioID:         portfolio.PortfolioID,
			StockID:             stockID,
			Quantity:            remaining,
			AverageCostPerShare: holding.AverageCostPerShare,
		}
		return plan, nil

	default:
		return tradePlan{}, fmt.Errorf("unsupported side %q", side)
	}
}

// ExecuteTransaction executes a buy or sell order against the user's
// portfolio as one atomic unit: validation, price lookup, holding and cash
// mutation, ledger append. The portfolio row is locked for the duration, so
// concurrent orders against the same portfolio serialize; on any error
// nothing is applied.
func (s *PortfolioService) ExecuteTransaction(ctx context.Context, userID int64, symbol string, quantity decimal.Decimal, side model.Side) (trn model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ExecuteTransaction"

	slog.Debug(
		"ExecuteTransaction start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Int64("userID", userID),
		slog.String("symbol", symbol),
		slog.String("quantity", quantity.String()),
		slog.String("side", string(side)),
	)
	defer func() {
		slog.Debug("ExecuteTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	if !quantity.IsPositive() {
		return model.Transaction{}, service.ErrInvalidQuantity
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		stock, err := s.repo.GetStockBySymbol(ctx, symbol)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return service.ErrStockNotFound
			}
			return err
		}

		// lock the portfolio row first: every later read and write happens
		// under this lock
		portfolio, err := s.repo.GetPortfolioForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return service.ErrNotFound
			}
			return err
		}

		price, err := s.repo.LatestClosePrice(ctx, stock.StockID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return service.ErrNoPriceData
			}
			return err
		}

		var holding *model.Holding
		h, err := s.repo.GetHolding(ctx, portfolio.PortfolioID, stock.StockID)
		if err == nil {
			holding = &h
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		plan, err := planTrade(portfolio, holding, stock.StockID, side, quantity, price)
		if err != nil {
			return err
		}

		if err := s.repo.UpdateCashBalance(ctx, portfolio.PortfolioID, plan.cashBalance); err != nil {
			return err
		}

		switch {
		case plan.createHolding:
			err = s.repo.CreateHolding(ctx, plan.holding)
		case plan.updateHolding:
			err = s.repo.UpdateHolding(ctx, plan.holding)
		case plan.deleteHolding:
			err = s.repo.DeleteHolding(ctx, portfolio.PortfolioID, stock.StockID)
		}
		if err != nil {
			return err
		}

		trn, err = s.repo.InsertTransaction(ctx, model.Transaction{
			PortfolioID:   portfolio.PortfolioID,
			StockID:       stock.StockID,
			Symbol:        stock.Symbol,
			Side:          side,
			Quantity:      quantity,
			PricePerShare: price,
		})
		return err
	})
	if err != nil {
		if isBusinessErr(err) {
			slog.Warn("transaction rejected", slog.String("rqID", rqID), slog.String("op", op), slog.String("reason", err.Error()))
		} else {
			slog.Error("transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return model.Transaction{}, err
	}

	return trn, nil
}

func isBusinessErr(err error) bool {
	return errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrNoPriceData) ||
		errors.Is(err, service.ErrInsufficientFunds) ||
		errors.Is(err, service.ErrInsufficientHoldings) ||
		errors.Is(err, service.ErrStockNotFound) ||
		errors.Is(err, service.ErrNotFound)
}
