// Package amm holds the constant-product pool arithmetic. Every function is
// pure and integer only; division truncates, matching the on-chain validator.
package amm

import (
	"math/big"
)

// PricePrecision scales SpotPrice quotes.
var PricePrecision = big.NewInt(1_000_000)

// SwapOutput returns what a trader receives for amountIn against the pool:
//
//	reserveOut - floor(reserveIn * reserveOut / (reserveIn + amountIn))
//
// There is no fee. The product of the resulting reserves can fall short of
// the previous product by less than the new input reserve because of truncation.
func SwapOutput(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if err := checkPositive("amount in", amountIn); err != nil {
		return nil, err
	}

	k := new(big.Int).Mul(reserveIn, reserveOut)
	newIn := new(big.Int).Add(reserveIn, amountIn)
	newOut := new(big.Int).Quo(k, newIn)
	if newOut.Sign() == 0 {
		return nil, newError(InsufficientLiquidity, "swap of %s would drain the output reserve", amountIn)
	}
	return newOut.Sub(reserveOut, newOut), nil
}

// AddLiquidity returns the LP tokens minted for depositing basketIn and
// adaIn into an existing pool: the smaller of the two proportional shares.
// The first deposit into an empty pool is priced by the pool creation
// convention instead and fails here with ZeroSupply.
func AddLiquidity(basketReserve, adaReserve, lpSupply, basketIn, adaIn *big.Int) (*big.Int, error) {
	if err := checkReserves(basketReserve, adaReserve); err != nil {
		return nil, err
	}
	if lpSupply == nil || lpSupply.Sign() <= 0 {
		return nil, newError(ZeroSupply, "pool has no lp tokens outstanding")
	}
	if err := checkPositive("basket in", basketIn); err != nil {
		return nil, err
	}
	if err := checkPositive("ada in", adaIn); err != nil {
		return nil, err
	}

	byBasket := new(big.Int).Mul(basketIn, lpSupply)
	byBasket.Quo(byBasket, basketReserve)
	byAda := new(big.Int).Mul(adaIn, lpSupply)
	byAda.Quo(byAda, adaReserve)

	if byAda.Cmp(byBasket) < 0 {
		return byAda, nil
	}
	return byBasket, nil
}

// RemoveLiquidity returns the reserves paid out for burning lpIn tokens.
func RemoveLiquidity(basketReserve, adaReserve, lpSupply, lpIn *big.Int) (basketOut, adaOut *big.Int, err error) {
	if lpSupply == nil || lpSupply.Sign() <= 0 {
		return nil, nil, newError(ZeroSupply, "pool has no lp tokens outstanding")
	}
	if err := checkPositive("lp in", lpIn); err != nil {
		return nil, nil, err
	}
	if lpIn.Cmp(lpSupply) > 0 {
		return nil, nil, newError(InsufficientLiquidity, "burning %s lp tokens of %s outstanding", lpIn, lpSupply)
	}
	if basketReserve == nil || basketReserve.Sign() < 0 || adaReserve == nil || adaReserve.Sign() < 0 {
		return nil, nil, newError(ZeroReserve, "negative or missing reserve")
	}

	basketOut = new(big.Int).Mul(basketReserve, lpIn)
	basketOut.Quo(basketOut, lpSupply)
	adaOut = new(big.Int).Mul(adaReserve, lpIn)
	adaOut.Quo(adaOut, lpSupply)
	return basketOut, adaOut, nil
}

// InitialLiquidity is the LP supply minted by pool creation:
// floor(sqrt(basketIn * adaIn)).
func InitialLiquidity(basketIn, adaIn *big.Int) (*big.Int, error) {
	if err := checkPositive("initial basket", basketIn); err != nil {
		return nil, err
	}
	if err := checkPositive("initial ada", adaIn); err != nil {
		return nil, err
	}
	return new(big.Int).Sqrt(new(big.Int).Mul(basketIn, adaIn)), nil
}

// SpotPrice quotes one unit of the input side in output units, scaled by
// PricePrecision. It is for display only; trades use SwapOutput.
func SpotPrice(reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	p := new(big.Int).Mul(reserveOut, PricePrecision)
	return p.Quo(p, reserveIn), nil
}

func checkReserves(a, b *big.Int) error {
	if a == nil || b == nil || a.Sign() <= 0 || b.Sign() <= 0 {
		return newError(ZeroReserve, "reserves %s and %s", fmtInt(a), fmtInt(b))
	}
	return nil
}

func checkPositive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return newError(InvalidAmount, "%s must be positive, got %s", name, fmtInt(v))
	}
	return nil
}

func fmtInt(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
