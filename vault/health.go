// Package vault prices baskets from oracle quotes and decides whether a
// vault position is sufficiently collateralized.
package vault

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/mgpai22/equibasket/datum"
)

// CollateralAsset is the oracle id that prices vault collateral.
const CollateralAsset = "ADA"

// Params are the fixed-point constants shared with the validator.
type Params struct {
	PricePrecision  *big.Int
	CollateralRatio *big.Int // scaled by PricePrecision, 1_500_000 is 150%
}

// DefaultParams returns the protocol constants.
func DefaultParams() Params {
	return Params{
		PricePrecision:  big.NewInt(1_000_000),
		CollateralRatio: big.NewInt(1_500_000),
	}
}

// PricingError reports a basket asset with no oracle quote.
type PricingError struct {
	AssetID string
}

// ErrAssetNotFound matches any PricingError.
var ErrAssetNotFound = &PricingError{}

func (e *PricingError) Error() string {
	return fmt.Sprintf("asset %q not found in oracle prices", e.AssetID)
}

func (e *PricingError) Is(target error) bool {
	_, ok := target.(*PricingError)
	return ok
}

// HealthError reports an action that would leave a vault below the
// collateral ratio.
type HealthError struct {
	Collateral *big.Int
	Minted     *big.Int
	Ratio      Ratio
	Required   Ratio
}

// ErrUnhealthy matches any HealthError.
var ErrUnhealthy = &HealthError{}

func (e *HealthError) Error() string {
	return fmt.Sprintf("vault would be undercollateralized: ratio %s below required %s", e.Ratio, e.Required)
}

func (e *HealthError) Is(target error) bool {
	_, ok := target.(*HealthError)
	return ok
}

// PriceMap indexes an oracle's quotes by asset id. When an asset appears
// more than once the first quote wins.
func PriceMap(o datum.OracleDatum) map[string]*big.Int {
	prices := make(map[string]*big.Int, len(o.Prices))
	for _, p := range o.Prices {
		if _, ok := prices[p.AssetID]; ok || p.Price == nil {
			continue
		}
		prices[p.AssetID] = new(big.Int).Set(p.Price)
	}
	return prices
}

// BasketPrice is sum(price * weight) / WeightPrecision. Every asset must be
// quoted; a basket is never partially priced.
func BasketPrice(prices map[string]*big.Int, assets []datum.AssetWeight) (*big.Int, error) {
	total := new(big.Int)
	term := new(big.Int)
	for _, a := range assets {
		price, ok := prices[a.AssetID]
		if !ok {
			return nil, &PricingError{AssetID: a.AssetID}
		}
		term.Mul(price, big.NewInt(a.Weight))
		total.Add(total, term)
	}
	return total.Quo(total, big.NewInt(datum.WeightPrecision)), nil
}

// CollateralValue converts locked lovelace to value at the ADA price.
func (p Params) CollateralValue(lovelace, adaPrice *big.Int) *big.Int {
	v := new(big.Int).Mul(orZero(lovelace), orZero(adaPrice))
	return v.Quo(v, p.PricePrecision)
}

// MintedValue converts minted basket tokens, which carry six decimals, to
// value at the basket price.
func (p Params) MintedValue(tokens, basketPrice *big.Int) *big.Int {
	v := new(big.Int).Mul(orZero(tokens), orZero(basketPrice))
	return v.Quo(v, p.PricePrecision)
}

// IsHealthy reports collateralValue * PricePrecision >= mintedValue *
// CollateralRatio. The boundary itself is healthy.
func (p Params) IsHealthy(collateralValue, mintedValue *big.Int) bool {
	lhs := new(big.Int).Mul(orZero(collateralValue), p.PricePrecision)
	rhs := new(big.Int).Mul(orZero(mintedValue), p.CollateralRatio)
	return lhs.Cmp(rhs) >= 0
}

// Ratio is a collateral ratio in basis points of the minted value.
// Infinite means there is no debt.
type Ratio struct {
	BasisPoints *big.Int
	Infinite    bool
}

// CollateralRatio returns collateralValue / mintedValue.
func CollateralRatio(collateralValue, mintedValue *big.Int) Ratio {
	if mintedValue == nil || mintedValue.Sign() == 0 {
		return Ratio{Infinite: true}
	}
	bp := new(big.Int).Mul(orZero(collateralValue), big.NewInt(10000))
	return Ratio{BasisPoints: bp.Quo(bp, mintedValue)}
}

// RequiredRatio expresses the configured minimum as a Ratio.
func (p Params) RequiredRatio() Ratio {
	bp := new(big.Int).Mul(p.CollateralRatio, big.NewInt(10000))
	return Ratio{BasisPoints: bp.Quo(bp, p.PricePrecision)}
}

// Percent renders the ratio as a percentage.
func (r Ratio) Percent() decimal.Decimal {
	if r.Infinite || r.BasisPoints == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(r.BasisPoints, -2)
}

func (r Ratio) String() string {
	if r.Infinite {
		return "∞"
	}
	return r.Percent().StringFixed(2) + "%"
}

func (r Ratio) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Health is an assessment of one vault at the given prices.
type Health struct {
	BasketPrice     *big.Int `json:"basket_price"`
	AdaPrice        *big.Int `json:"ada_price"`
	CollateralValue *big.Int `json:"collateral_value"`
	MintedValue     *big.Int `json:"minted_value"`
	Ratio           Ratio    `json:"ratio"`
	Healthy         bool     `json:"healthy"`
}

// Assess prices the vault's basket and collateral and checks its health.
func (p Params) Assess(prices map[string]*big.Int, basket datum.BasketDatum, v datum.VaultDatum) (Health, error) {
	basketPrice, err := BasketPrice(prices, basket.Assets)
	if err != nil {
		return Health{}, err
	}
	adaPrice, ok := prices[CollateralAsset]
	if !ok {
		return Health{}, &PricingError{AssetID: CollateralAsset}
	}
	cv := p.CollateralValue(v.CollateralAda, adaPrice)
	mv := p.MintedValue(v.MintedTokens, basketPrice)
	return Health{
		BasketPrice:     basketPrice,
		AdaPrice:        new(big.Int).Set(adaPrice),
		CollateralValue: cv,
		MintedValue:     mv,
		Ratio:           CollateralRatio(cv, mv),
		Healthy:         p.IsHealthy(cv, mv),
	}, nil
}

// Require returns a HealthError unless the assessed vault is healthy.
func (p Params) Require(h Health) error {
	if h.Healthy {
		return nil
	}
	return &HealthError{
		Collateral: h.CollateralValue,
		Minted:     h.MintedValue,
		Ratio:      h.Ratio,
		Required:   p.RequiredRatio(),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
