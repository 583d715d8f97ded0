package dbConverter

import (
	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/internal/model/dbModel"
)

func ConvertUser(dbUser dbModel.User) model.User {
	return model.User{
		UserID:       dbUser.UserID,
		Username:     dbUser.Username,
		Email:        dbUser.Email,
		PasswordHash: dbUser.PasswordHash,
		CreatedAt:    dbUser.CreatedAt,
	}
}

func ConvertPortfolio(dbPortfolio dbModel.Portfolio) model.Portfolio {
	return model.Portfolio{
		PortfolioID: dbPortfolio.PortfolioID,
		UserID:      dbPortfolio.UserID,
		CashBalance: dbPortfolio.CashBalance,
		CreatedAt:   dbPortfolio.CreatedAt,
	}
}

func ConvertHolding(dbHolding dbModel.Holding) model.Holding {
	return model.Holding{
		PortfolioID:         dbHolding.PortfolioID,
		StockID:             dbHolding.StockID,
		Quantity:            dbHolding.Quantity,
		AverageCostPerShare: dbHolding.AverageCostPerShare,
		LastUpdated:         dbHolding.LastUpdated,
	}
}

func ConvertTransaction(dbTransaction dbModel.Transaction) model.Transaction {
	return model.Transaction{
		TransactionID: dbTransaction.TransactionID,
		PortfolioID:   dbTransaction.PortfolioID,
		StockID:       dbTransaction.StockID,
		Symbol:        dbTransaction.Symbol,
		Side:          model.Side(dbTransaction.Side),
		Quantity:      dbTransaction.Quantity,
		PricePerShare: dbTransaction.PricePerShare,
		ExecutedAt:    dbTransaction.ExecutedAt,
	}
}

func ConvertStock(dbStock dbModel.Stock) model.Stock {
	return model.Stock{
		StockID:     dbStock.StockID,
		Symbol:      dbStock.Symbol,
		CompanyName: dbStock.CompanyName,
		Sector:      dbStock.Sector,
	}
}

func ConvertCandle(dbCandle dbModel.Candle) model.Candle {
	return model.Candle{
		Date:   dbCandle.Date,
		Open:   dbCandle.Open,
		High:   dbCandle.High,
		Low:    dbCandle.Low,
		Close:  dbCandle.Close,
		Volume: dbCandle.Volume,
	}
}

func ConvertStockWithCandle(row dbModel.StockWithCandle) model.Quote {
	quote := model.Quote{
		Stock: model.Stock{
			StockID:     row.StockID,
			Symbol:      row.Symbol,
			CompanyName: row.CompanyName,
			Sector:      row.Sector,
		},
	}

	if row.Date.Valid {
		quote.LatestCandle = &model.Candle{
			Date:   row.Date.Time,
			Open:   row.Open.Decimal,
			High:   row.High.Decimal,
			Low:    row.Low.Decimal,
			Close:  row.Close.Decimal,
			Volume: row.Volume.Int64,
		}
	}

	return quote
}
