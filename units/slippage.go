package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SlippageType selects how a minimum output is derived from a quote.
type SlippageType string

const (
	// SlippageFixed uses Value as the exact minimum.
	SlippageFixed SlippageType = "fixed"
	// SlippagePercent allows the output to fall Value percent below the quote.
	SlippagePercent SlippageType = "percent"
	// SlippageNone accepts any output.
	SlippageNone SlippageType = "none"
)

// Slippage is a caller's tolerance for a swap or liquidity action.
type Slippage struct {
	Type  SlippageType    `json:"type" mapstructure:"type"`
	Value decimal.Decimal `json:"value" mapstructure:"value"`
}

// MinOutput derives the minimum acceptable output for an expected quote.
func (s Slippage) MinOutput(expected *big.Int) (*big.Int, error) {
	switch s.Type {
	case SlippageFixed:
		if s.Value.IsNegative() {
			return nil, fmt.Errorf("fixed minimum must not be negative, got %s", s.Value)
		}
		return s.Value.Truncate(0).BigInt(), nil
	case SlippagePercent:
		return MinWithSlippage(expected, s.Value)
	case SlippageNone, "":
		return new(big.Int), nil
	default:
		return nil, fmt.Errorf("unknown slippage type %q", s.Type)
	}
}

// MinWithSlippage returns floor(expected * (100 - percent) / 100).
func MinWithSlippage(expected *big.Int, percent decimal.Decimal) (*big.Int, error) {
	hundred := decimal.NewFromInt(100)
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return nil, fmt.Errorf("slippage must be between 0 and 100 percent, got %s", percent)
	}
	if expected == nil {
		return new(big.Int), nil
	}
	keep := hundred.Sub(percent)
	return decimal.NewFromBigInt(expected, 0).Mul(keep).Div(hundred).Floor().BigInt(), nil
}
