package services

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
)

const (
	MinLeverage = 1
	MaxLeverage = 125
)

func validateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return domain.InvalidParameter("symbol must be a non-empty string")
	}
	hasLetter := false
	for _, r := range symbol {
		if unicode.IsSpace(r) {
			return domain.InvalidParameter("symbol must not contain whitespace")
		}
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return domain.InvalidParameter("symbol must be uppercase (e.g., BTCUSDT)")
			}
		}
	}
	if !hasLetter {
		return domain.InvalidParameter("symbol must be uppercase (e.g., BTCUSDT)")
	}
	return nil
}

func validateSide(side types.Side) error {
	if !side.Valid() {
		return domain.InvalidParameter("side must be either BUY or SELL")
	}
	return nil
}

func validateQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return domain.InvalidParameter("quantity must be positive")
	}
	return nil
}

func validateOrderType(t types.OrderType) error {
	if !t.Valid() {
		return domain.InvalidParameter("order type must be MARKET or LIMIT")
	}
	return nil
}

// validatePrice price 可选，提供时必须为正；LIMIT 单必须提供
func validatePrice(t types.OrderType, price *decimal.Decimal) error {
	if price != nil && !price.IsPositive() {
		return domain.InvalidParameter("price must be positive")
	}
	if t == types.OrderTypeLimit && price == nil {
		return domain.InvalidParameter("price is required for LIMIT orders")
	}
	return nil
}

func validateLeverage(leverage int) error {
	if leverage < MinLeverage || leverage > MaxLeverage {
		return domain.InvalidLeverage("leverage must be between %d and %d, got %d", MinLeverage, MaxLeverage, leverage)
	}
	return nil
}
