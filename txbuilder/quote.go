package txbuilder

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/amm"
	"github.com/mgpai22/equibasket/audit"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/units"
	"github.com/mgpai22/equibasket/vault"
)

// SwapQuote is the expected result of a swap against the current pool.
type SwapQuote struct {
	BasketID  string   `json:"basket_id"`
	BasketIn  bool     `json:"basket_in"`
	AmountIn  *big.Int `json:"amount_in"`
	AmountOut *big.Int `json:"amount_out"`
	MinOut    *big.Int `json:"min_out"`
	SpotPrice *big.Int `json:"spot_price"`
}

// LiquidityQuote is the LP share a deposit would mint.
type LiquidityQuote struct {
	BasketID string   `json:"basket_id"`
	LpTokens *big.Int `json:"lp_tokens"`
	MinLp    *big.Int `json:"min_lp"`
}

// BasketQuote is a basket's price from the latest oracle.
type BasketQuote struct {
	BasketID string          `json:"basket_id"`
	Price    *big.Int        `json:"price"`
	Usd      decimal.Decimal `json:"usd"`
}

// QuoteSwap prices a swap without building it. The minimum output is
// derived from the slippage tolerance.
func (b *Builder) QuoteSwap(ctx context.Context, basketID string, amountIn *big.Int, basketIn bool, tolerance units.Slippage) (SwapQuote, error) {
	pool, err := b.findPool(ctx, basketID)
	if err != nil {
		return SwapQuote{}, err
	}
	reserveIn, reserveOut := pool.Datum.AdaReserve, pool.Datum.BasketReserve
	if basketIn {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	out, err := amm.SwapOutput(amountIn, reserveIn, reserveOut)
	if err != nil {
		return SwapQuote{}, err
	}
	spot, err := amm.SpotPrice(reserveIn, reserveOut)
	if err != nil {
		return SwapQuote{}, err
	}
	minOut, err := tolerance.MinOutput(out)
	if err != nil {
		return SwapQuote{}, err
	}
	return SwapQuote{
		BasketID:  basketID,
		BasketIn:  basketIn,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: out,
		MinOut:    minOut,
		SpotPrice: spot,
	}, nil
}

// QuoteLiquidity prices a deposit into an existing pool, including one
// drained to zero LP supply.
func (b *Builder) QuoteLiquidity(ctx context.Context, basketID string, basketIn, adaIn *big.Int, tolerance units.Slippage) (LiquidityQuote, error) {
	pool, err := b.findPool(ctx, basketID)
	if err != nil {
		return LiquidityQuote{}, err
	}
	lp, err := depositLp(pool.Datum, basketIn, adaIn)
	if err != nil {
		return LiquidityQuote{}, err
	}
	minLp, err := tolerance.MinOutput(lp)
	if err != nil {
		return LiquidityQuote{}, err
	}
	return LiquidityQuote{BasketID: basketID, LpTokens: lp, MinLp: minLp}, nil
}

// QuoteBasketPrice prices a basket at the latest oracle.
func (b *Builder) QuoteBasketPrice(ctx context.Context, basketID string) (BasketQuote, error) {
	basket, err := b.findBasket(ctx, basketID)
	if err != nil {
		return BasketQuote{}, err
	}
	oracle, err := b.latestOracle(ctx)
	if err != nil {
		return BasketQuote{}, err
	}
	price, err := vault.BasketPrice(vault.PriceMap(oracle.Datum), basket.Datum.Assets)
	if err != nil {
		return BasketQuote{}, err
	}
	return BasketQuote{BasketID: basketID, Price: price, Usd: units.PriceToUsd(price)}, nil
}

// VaultHealth assesses a vault at the latest oracle.
func (b *Builder) VaultHealth(ctx context.Context, ref datum.OutputRef) (vault.Health, error) {
	v, err := b.findVault(ctx, ref)
	if err != nil {
		return vault.Health{}, err
	}
	basket, err := b.findBasket(ctx, v.Datum.BasketID)
	if err != nil {
		return vault.Health{}, err
	}
	oracle, err := b.latestOracle(ctx)
	if err != nil {
		return vault.Health{}, err
	}
	return b.cfg.Health.Assess(vault.PriceMap(oracle.Datum), basket.Datum, v.Datum)
}

// Submit hands an assembled transaction to the ledger with the builder's
// signer.
func (b *Builder) Submit(ctx context.Context, tx *ledger.UnsignedTx) (datum.TxID, error) {
	if tx == nil {
		r := &run{b: b, action: "submit", stage: StageSubmit, logger: b.logger}
		return datum.TxID{}, r.fail(invalidf("nil transaction"))
	}
	r := &run{b: b, action: tx.Action, id: tx.RequestID, stage: StageSubmit}
	r.logger = b.logger.With(zap.String("action", tx.Action), zap.String("request_id", tx.RequestID))
	if !tx.ValidTo.IsZero() && b.now().After(tx.ValidTo) {
		return datum.TxID{}, r.fail(invalidf("transaction expired at %s", tx.ValidTo))
	}
	r.record(audit.LevelInfo, "submitting transaction", nil)
	id, err := b.ledger.Submit(ctx, tx, b.cfg.Signer)
	if err != nil {
		return datum.TxID{}, r.fail(err)
	}
	r.record(audit.LevelInfo, "transaction submitted", map[string]interface{}{"tx_id": id.String()})
	r.logger.Info("Transaction submitted", zap.Stringer("tx_id", id))
	return id, nil
}
