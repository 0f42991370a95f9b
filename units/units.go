// Package units converts between on-chain integers and the decimal amounts
// people type and read.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals of lovelace per ADA, basket token units per token, and oracle
// price precision. All three are six.
const Decimals = 6

// LovelaceToAda renders lovelace as ADA.
func LovelaceToAda(lovelace *big.Int) decimal.Decimal {
	return shift(lovelace)
}

// AdaToLovelace converts ADA to lovelace, truncating sub-lovelace digits.
func AdaToLovelace(ada decimal.Decimal) *big.Int {
	return unshift(ada)
}

// ParseAda parses a decimal ADA amount such as "12.5".
func ParseAda(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ADA amount %q: %w", s, err)
	}
	return AdaToLovelace(d), nil
}

// UnitsToTokens renders basket token base units as whole tokens.
func UnitsToTokens(units *big.Int) decimal.Decimal {
	return shift(units)
}

// TokensToUnits converts whole tokens to base units, truncating.
func TokensToUnits(tokens decimal.Decimal) *big.Int {
	return unshift(tokens)
}

// PriceToUsd renders a fixed-point oracle price in dollars.
func PriceToUsd(price *big.Int) decimal.Decimal {
	return shift(price)
}

// UsdToPrice converts a dollar amount to a fixed-point oracle price.
func UsdToPrice(usd decimal.Decimal) *big.Int {
	return unshift(usd)
}

func shift(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}

func unshift(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).Truncate(0).BigInt()
}
