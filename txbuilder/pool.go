package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/mgpai22/equibasket/amm"
	"github.com/mgpai22/equibasket/audit"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
)

// CreatePoolParams seeds a new pool. InitialLp overrides the default
// geometric-mean LP supply when set.
type CreatePoolParams struct {
	BasketID     string   `json:"basket_id"`
	BasketAmount *big.Int `json:"basket_amount"`
	AdaAmount    *big.Int `json:"ada_amount"`
	InitialLp    *big.Int `json:"initial_lp,omitempty"`
}

// AddLiquidityParams deposits both sides into a pool. InitialLp applies
// only to a pool with no LP supply, which is re-seeded like a new pool.
type AddLiquidityParams struct {
	BasketID     string   `json:"basket_id"`
	BasketAmount *big.Int `json:"basket_amount"`
	AdaAmount    *big.Int `json:"ada_amount"`
	MinLp        *big.Int `json:"min_lp,omitempty"`
	InitialLp    *big.Int `json:"initial_lp,omitempty"`
}

// RemoveLiquidityParams redeems LP tokens for both reserves.
type RemoveLiquidityParams struct {
	BasketID  string   `json:"basket_id"`
	LpTokens  *big.Int `json:"lp_tokens"`
	MinBasket *big.Int `json:"min_basket,omitempty"`
	MinAda    *big.Int `json:"min_ada,omitempty"`
}

// SwapParams trades AmountIn of one side for at least MinOut of the other.
type SwapParams struct {
	BasketID string   `json:"basket_id"`
	AmountIn *big.Int `json:"amount_in"`
	MinOut   *big.Int `json:"min_out,omitempty"`
}

// BuildCreatePool creates the pool of a basket and mints its initial LP
// supply to the signer.
func (b *Builder) BuildCreatePool(ctx context.Context, p CreatePoolParams) (*ledger.UnsignedTx, error) {
	r := b.start("create_pool", map[string]interface{}{
		"basket_id": p.BasketID,
		"basket":    fmt.Sprint(p.BasketAmount),
		"ada":       fmt.Sprint(p.AdaAmount),
	})
	if err := requirePositive("basket amount", p.BasketAmount); err != nil {
		return nil, r.fail(err)
	}
	if err := requirePositive("ada amount", p.AdaAmount); err != nil {
		return nil, r.fail(err)
	}
	if p.InitialLp != nil {
		if err := requirePositive("initial lp", p.InitialLp); err != nil {
			return nil, r.fail(err)
		}
	}

	r.enter(StageQuery, "loading basket and pools", nil)
	basket, err := b.findBasket(ctx, p.BasketID)
	if err != nil {
		return nil, r.fail(err)
	}
	_, err = b.findPool(ctx, p.BasketID)
	switch {
	case err == nil:
		return nil, r.fail(fmt.Errorf("pool for %q: %w", p.BasketID, ErrExists))
	case !errors.Is(err, ErrNotFound):
		return nil, r.fail(err)
	}

	r.enter(StageCompute, "computing initial liquidity", nil)
	lp := p.InitialLp
	if lp == nil {
		if lp, err = amm.InitialLiquidity(p.BasketAmount, p.AdaAmount); err != nil {
			return nil, r.fail(err)
		}
	}
	next := datum.PoolDatum{
		BasketID:      p.BasketID,
		BasketReserve: new(big.Int).Set(p.BasketAmount),
		AdaReserve:    new(big.Int).Set(p.AdaAmount),
		LpTokenSupply: new(big.Int).Set(lp),
		CreatedAt:     b.timestamp(),
	}
	value, err := b.poolValue(next)
	if err != nil {
		return nil, r.fail(err)
	}
	lpUnit, err := b.lpToken(p.BasketID)
	if err != nil {
		return nil, r.fail(err)
	}

	enc, err := r.encode(next, datum.MintLpTokens{PoolRef: basket.UTxO.Ref})
	if err != nil {
		return nil, err
	}
	return r.done(&ledger.UnsignedTx{
		ReferenceInputs: []ledger.UTxO{basket.UTxO},
		Mints:           []ledger.Mint{mintOf(lpUnit, lp, enc[1])},
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.PoolAddress,
			Value:   value,
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	})
}

// BuildAddLiquidity deposits into a pool and mints the proportional LP
// share, failing when it is below MinLp.
func (b *Builder) BuildAddLiquidity(ctx context.Context, p AddLiquidityParams) (*ledger.UnsignedTx, error) {
	r := b.start("add_liquidity", map[string]interface{}{
		"basket_id": p.BasketID,
		"basket":    fmt.Sprint(p.BasketAmount),
		"ada":       fmt.Sprint(p.AdaAmount),
	})
	if err := requirePositive("basket amount", p.BasketAmount); err != nil {
		return nil, r.fail(err)
	}
	if err := requirePositive("ada amount", p.AdaAmount); err != nil {
		return nil, r.fail(err)
	}
	minLp, err := minimum("min lp", p.MinLp)
	if err != nil {
		return nil, r.fail(err)
	}
	if p.InitialLp != nil {
		if err := requirePositive("initial lp", p.InitialLp); err != nil {
			return nil, r.fail(err)
		}
	}
	pool, err := b.loadPool(ctx, r, p.BasketID)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing lp share", nil)
	cur := pool.Datum
	lp := p.InitialLp
	if cur.LpTokenSupply.Sign() == 0 {
		r.record(audit.LevelInfo, "re-seeding empty pool", nil)
	}
	if lp == nil || cur.LpTokenSupply.Sign() > 0 {
		lp, err = depositLp(cur, p.BasketAmount, p.AdaAmount)
		if err != nil {
			return nil, r.fail(err)
		}
	}
	if lp.Sign() == 0 {
		return nil, r.fail(invalidf("deposit is too small to mint lp tokens"))
	}
	if err := atLeast("lp tokens", lp, minLp); err != nil {
		return nil, r.fail(err)
	}
	next := cur.WithReserves(
		add(cur.BasketReserve, p.BasketAmount),
		add(cur.AdaReserve, p.AdaAmount),
		add(cur.LpTokenSupply, lp),
	)
	redeemer := datum.AddLiquidity{BasketAmount: p.BasketAmount, AdaAmount: p.AdaAmount, MinLp: minLp}
	return b.finishPool(r, pool, next, redeemer, lp, datum.MintLpTokens{PoolRef: pool.UTxO.Ref})
}

// BuildRemoveLiquidity burns LP tokens for the proportional reserves.
func (b *Builder) BuildRemoveLiquidity(ctx context.Context, p RemoveLiquidityParams) (*ledger.UnsignedTx, error) {
	r := b.start("remove_liquidity", map[string]interface{}{"basket_id": p.BasketID, "lp": fmt.Sprint(p.LpTokens)})
	if err := requirePositive("lp tokens", p.LpTokens); err != nil {
		return nil, r.fail(err)
	}
	minBasket, err := minimum("min basket", p.MinBasket)
	if err != nil {
		return nil, r.fail(err)
	}
	minAda, err := minimum("min ada", p.MinAda)
	if err != nil {
		return nil, r.fail(err)
	}
	pool, err := b.loadPool(ctx, r, p.BasketID)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing withdrawal", nil)
	cur := pool.Datum
	basketOut, adaOut, err := amm.RemoveLiquidity(cur.BasketReserve, cur.AdaReserve, cur.LpTokenSupply, p.LpTokens)
	if err != nil {
		return nil, r.fail(err)
	}
	if err := atLeast("basket out", basketOut, minBasket); err != nil {
		return nil, r.fail(err)
	}
	if err := atLeast("ada out", adaOut, minAda); err != nil {
		return nil, r.fail(err)
	}
	next := cur.WithReserves(
		sub(cur.BasketReserve, basketOut),
		sub(cur.AdaReserve, adaOut),
		sub(cur.LpTokenSupply, p.LpTokens),
	)
	redeemer := datum.RemoveLiquidity{LpTokens: p.LpTokens, MinBasket: minBasket, MinAda: minAda}
	return b.finishPool(r, pool, next, redeemer, new(big.Int).Neg(p.LpTokens), datum.BurnLpTokens{PoolRef: pool.UTxO.Ref})
}

// BuildSwapBasketForAda sells basket tokens to the pool.
func (b *Builder) BuildSwapBasketForAda(ctx context.Context, p SwapParams) (*ledger.UnsignedTx, error) {
	return b.swap(ctx, "swap_basket_for_ada", p, true)
}

// BuildSwapAdaForBasket buys basket tokens from the pool.
func (b *Builder) BuildSwapAdaForBasket(ctx context.Context, p SwapParams) (*ledger.UnsignedTx, error) {
	return b.swap(ctx, "swap_ada_for_basket", p, false)
}

func (b *Builder) swap(ctx context.Context, action string, p SwapParams, basketIn bool) (*ledger.UnsignedTx, error) {
	r := b.start(action, map[string]interface{}{"basket_id": p.BasketID, "amount_in": fmt.Sprint(p.AmountIn)})
	if err := requirePositive("amount in", p.AmountIn); err != nil {
		return nil, r.fail(err)
	}
	minOut, err := minimum("min out", p.MinOut)
	if err != nil {
		return nil, r.fail(err)
	}
	pool, err := b.loadPool(ctx, r, p.BasketID)
	if err != nil {
		return nil, err
	}

	r.enter(StageCompute, "computing swap output", nil)
	cur := pool.Datum
	var (
		next     datum.PoolDatum
		redeemer datum.PoolRedeemer
		out      *big.Int
	)
	if basketIn {
		out, err = amm.SwapOutput(p.AmountIn, cur.BasketReserve, cur.AdaReserve)
		if err == nil {
			next = cur.WithReserves(add(cur.BasketReserve, p.AmountIn), sub(cur.AdaReserve, out), cur.LpTokenSupply)
			redeemer = datum.SwapBasketForAda{BasketIn: p.AmountIn, MinAdaOut: minOut}
		}
	} else {
		out, err = amm.SwapOutput(p.AmountIn, cur.AdaReserve, cur.BasketReserve)
		if err == nil {
			next = cur.WithReserves(sub(cur.BasketReserve, out), add(cur.AdaReserve, p.AmountIn), cur.LpTokenSupply)
			redeemer = datum.SwapAdaForBasket{AdaIn: p.AmountIn, MinBasketOut: minOut}
		}
	}
	if err != nil {
		return nil, r.fail(err)
	}
	if err := atLeast("swap output", out, minOut); err != nil {
		return nil, r.fail(err)
	}
	r.record(audit.LevelInfo, "swap output computed", map[string]interface{}{"out": out.String()})
	return b.finishPool(r, pool, next, redeemer, nil, nil)
}

// loadPool runs the query and decode stages shared by pool actions.
func (b *Builder) loadPool(ctx context.Context, r *run, basketID string) (PoolState, error) {
	r.enter(StageQuery, "loading pool", nil)
	pool, err := b.findPool(ctx, basketID)
	if err != nil {
		return PoolState{}, r.fail(err)
	}
	r.enter(StageDecode, "pool decoded", map[string]interface{}{
		"basket_reserve": pool.Datum.BasketReserve.String(),
		"ada_reserve":    pool.Datum.AdaReserve.String(),
		"lp_supply":      pool.Datum.LpTokenSupply.String(),
	})
	if err := pool.Datum.Validate(); err != nil {
		return PoolState{}, r.fail(err)
	}
	return pool, nil
}

// finishPool encodes and assembles an action that recreates the pool. A
// non-nil lp mints (positive) or burns (negative) LP tokens.
func (b *Builder) finishPool(r *run, pool PoolState, next datum.PoolDatum, redeemer datum.PoolRedeemer, lp *big.Int, lpRedeemer datum.LpTokenRedeemer) (*ledger.UnsignedTx, error) {
	value, err := b.poolValue(next)
	if err != nil {
		return nil, r.fail(err)
	}
	records := []datum.Record{next, redeemer}
	if lp != nil {
		records = append(records, lpRedeemer)
	}
	enc, err := r.encode(records...)
	if err != nil {
		return nil, err
	}

	tx := &ledger.UnsignedTx{
		Inputs: []ledger.ScriptInput{{UTxO: pool.UTxO, Redeemer: enc[1]}},
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.PoolAddress,
			Value:   value,
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	}
	if lp != nil {
		lpUnit, err := b.lpToken(next.BasketID)
		if err != nil {
			return nil, r.fail(err)
		}
		tx.Mints = []ledger.Mint{mintOf(lpUnit, lp, enc[2])}
	}
	return r.done(tx)
}

// poolValue is what the pool output holds for a given datum: the ADA
// reserve on top of the minimum output value, and the basket reserve.
func (b *Builder) poolValue(d datum.PoolDatum) (ledger.Value, error) {
	unit, err := b.basketToken(d.BasketID)
	if err != nil {
		return ledger.Value{}, err
	}
	v := ledger.Lovelace(add(d.AdaReserve, b.cfg.MinLovelace))
	if d.BasketReserve.Sign() > 0 {
		v = v.WithAsset(unit, d.BasketReserve)
	}
	return v, nil
}

// depositLp is the LP minted for a deposit. A pool with no LP supply is
// re-seeded like a new one.
func depositLp(d datum.PoolDatum, basketIn, adaIn *big.Int) (*big.Int, error) {
	if d.LpTokenSupply.Sign() == 0 {
		return amm.InitialLiquidity(basketIn, adaIn)
	}
	return amm.AddLiquidity(d.BasketReserve, d.AdaReserve, d.LpTokenSupply, basketIn, adaIn)
}

func minimum(field string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if err := requireNonNegative(field, v); err != nil {
		return nil, err
	}
	return new(big.Int).Set(v), nil
}

func atLeast(what string, got, floor *big.Int) error {
	if got.Cmp(floor) < 0 {
		return &SlippageError{What: what, Min: new(big.Int).Set(floor), Got: new(big.Int).Set(got)}
	}
	return nil
}
