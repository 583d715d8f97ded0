package service

import "errors"

var (
	// business rejections of the transaction engine
	ErrInvalidQuantity      = errors.New("error quantity must be positive")
	ErrNoPriceData          = errors.New("error no price data available")
	ErrInsufficientFunds    = errors.New("error insufficient cash balance")
	ErrInsufficientHoldings = errors.New("error insufficient holdings to sell")

	ErrNotFound           = errors.New("error not found")
	ErrStockNotFound      = errors.New("error stock not found")
	ErrUserAlreadyExists  = errors.New("error user already exists")
	ErrInvalidCredentials = errors.New("error invalid credentials")
)
