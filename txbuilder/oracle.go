package txbuilder

import (
	"context"
	"math/big"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
)

// PublishOracleParams is a complete price set in price-precision fixed point.
type PublishOracleParams struct {
	Prices []datum.AssetPrice `json:"prices"`
}

// BuildPublishOracle publishes a new oracle output signed by the builder's
// key. Earlier oracle outputs are left in place; readers pick the latest.
func (b *Builder) BuildPublishOracle(ctx context.Context, p PublishOracleParams) (*ledger.UnsignedTx, error) {
	r := b.start("publish_oracle", map[string]interface{}{"prices": len(p.Prices)})
	if len(p.Prices) == 0 {
		return nil, r.fail(invalidf("at least one price is required"))
	}
	seen := make(map[string]struct{}, len(p.Prices))
	prices := make([]datum.AssetPrice, len(p.Prices))
	for i, ap := range p.Prices {
		if ap.AssetID == "" {
			return nil, r.fail(invalidf("price %d has no asset id", i))
		}
		if err := requirePositive("price of "+ap.AssetID, ap.Price); err != nil {
			return nil, r.fail(err)
		}
		if _, dup := seen[ap.AssetID]; dup {
			return nil, r.fail(invalidf("duplicate price for %s", ap.AssetID))
		}
		seen[ap.AssetID] = struct{}{}
		prices[i] = datum.AssetPrice{AssetID: ap.AssetID, Price: new(big.Int).Set(ap.Price)}
	}
	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageCompute, "oracle datum computed", nil)
	next := datum.OracleDatum{
		Prices:      prices,
		LastUpdated: b.timestamp(),
		Admin:       b.cfg.Signer.PubKeyHash,
	}

	enc, err := r.encode(next)
	if err != nil {
		return nil, err
	}
	return r.done(&ledger.UnsignedTx{
		Outputs: []ledger.Output{{
			Address: b.cfg.Scripts.OracleAddress,
			Value:   b.minValue(),
			Datum:   enc[0],
		}},
		RequiredSigners: b.signers(),
	})
}
