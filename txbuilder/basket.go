package txbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
)

// CreateBasketParams describes a new basket.
type CreateBasketParams struct {
	BasketID string              `json:"basket_id"`
	Name     string              `json:"name"`
	Assets   []datum.AssetWeight `json:"assets"`
}

// UpdateBasketParams replaces the weights of an existing basket.
type UpdateBasketParams struct {
	BasketID string              `json:"basket_id"`
	Assets   []datum.AssetWeight `json:"assets"`
}

// BuildCreateBasket pays a new basket record to the factory address.
func (b *Builder) BuildCreateBasket(ctx context.Context, p CreateBasketParams) (*ledger.UnsignedTx, error) {
	r := b.start("create_basket", map[string]interface{}{"basket_id": p.BasketID})
	next := datum.BasketDatum{
		BasketID:  p.BasketID,
		Name:      p.Name,
		Assets:    p.Assets,
		Creator:   b.cfg.Signer.PubKeyHash,
		CreatedAt: b.timestamp(),
	}
	if err := next.Validate(); err != nil {
		return nil, r.fail(err)
	}
	if _, err := b.basketToken(p.BasketID); err != nil {
		return nil, r.fail(invalidf("basket id: %v", err))
	}

	r.enter(StageQuery, "checking for an existing basket", nil)
	_, err := b.findBasket(ctx, p.BasketID)
	switch {
	case err == nil:
		return nil, r.fail(fmt.Errorf("basket %q: %w", p.BasketID, ErrExists))
	case !errors.Is(err, ErrNotFound):
		return nil, r.fail(err)
	}

	r.enter(StageCompute, "basket datum computed", nil)
	enc, err := r.encode(next)
	if err != nil {
		return nil, err
	}
	return r.done(&ledger.UnsignedTx{
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.BasketFactoryAddress,
			Value:   b.minValue(),
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	})
}

// BuildUpdateBasket spends the basket output and recreates it with new
// weights. Only the creator may update a basket.
func (b *Builder) BuildUpdateBasket(ctx context.Context, p UpdateBasketParams) (*ledger.UnsignedTx, error) {
	r := b.start("update_basket", map[string]interface{}{"basket_id": p.BasketID})
	if err := datum.ValidateWeights(p.Assets); err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageQuery, "loading basket", nil)
	cur, err := b.findBasket(ctx, p.BasketID)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageDecode, "basket decoded", nil)
	if cur.Datum.Creator != b.cfg.Signer.PubKeyHash {
		return nil, r.fail(fmt.Errorf("basket %q: %w", p.BasketID, ErrNotOwner))
	}

	r.enter(StageCompute, "basket weights replaced", nil)
	next := cur.Datum.WithAssets(p.Assets)
	redeemer := datum.UpdateBasket{Weights: next.Assets}

	enc, err := r.encode(next, redeemer)
	if err != nil {
		return nil, err
	}
	return r.done(&ledger.UnsignedTx{
		Inputs: []ledger.ScriptInput{{UTxO: cur.UTxO, Redeemer: enc[1]}},
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.BasketFactoryAddress,
			Value:   cur.UTxO.Value.Clone(),
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	})
}
