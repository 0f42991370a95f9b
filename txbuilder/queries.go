package txbuilder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
)

// OracleState is an oracle output and its decoded datum.
type OracleState struct {
	UTxO  ledger.UTxO       `json:"utxo"`
	Datum datum.OracleDatum `json:"datum"`
}

// BasketState is a basket output and its decoded datum.
type BasketState struct {
	UTxO  ledger.UTxO       `json:"utxo"`
	Datum datum.BasketDatum `json:"datum"`
}

// VaultState is a vault output and its decoded datum.
type VaultState struct {
	UTxO  ledger.UTxO      `json:"utxo"`
	Datum datum.VaultDatum `json:"datum"`
}

// PoolState is a pool output and its decoded datum.
type PoolState struct {
	UTxO  ledger.UTxO     `json:"utxo"`
	Datum datum.PoolDatum `json:"datum"`
}

// decodeAll queries address and decodes every datum it can. Outputs without
// a datum or with a malformed one are skipped.
func decodeAll[T any](ctx context.Context, b *Builder, kind, address string, decode func(ledger.UTxO) (T, error)) ([]T, error) {
	utxos, err := b.ledger.QueryUtxosAt(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s outputs: %w", kind, err)
	}
	out := make([]T, 0, len(utxos))
	for _, u := range utxos {
		if len(u.Datum) == 0 {
			continue
		}
		v, err := decode(u)
		if err != nil {
			b.logger.Warn("Skipping undecodable output",
				zap.String("kind", kind),
				zap.Stringer("ref", u.Ref),
				zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Oracles returns every oracle output at the oracle address.
func (b *Builder) Oracles(ctx context.Context) ([]OracleState, error) {
	return decodeAll(ctx, b, "oracle", b.cfg.Scripts.OracleAddress, func(u ledger.UTxO) (OracleState, error) {
		d, err := datum.DecodeOracleDatum(u.Datum)
		return OracleState{UTxO: u, Datum: d}, err
	})
}

// Baskets returns every basket output at the factory address.
func (b *Builder) Baskets(ctx context.Context) ([]BasketState, error) {
	return decodeAll(ctx, b, "basket", b.cfg.Scripts.BasketFactoryAddress, func(u ledger.UTxO) (BasketState, error) {
		if d, ok := b.baskets.Get(u.Ref); ok {
			return BasketState{UTxO: u, Datum: d}, nil
		}
		d, err := datum.DecodeBasketDatum(u.Datum)
		if err != nil {
			return BasketState{}, err
		}
		b.baskets.Add(u.Ref, d)
		return BasketState{UTxO: u, Datum: d}, nil
	})
}

// Vaults returns the vault outputs, only those of owner when it is set.
func (b *Builder) Vaults(ctx context.Context, owner *datum.PubKeyHash) ([]VaultState, error) {
	all, err := decodeAll(ctx, b, "vault", b.cfg.Scripts.VaultAddress, func(u ledger.UTxO) (VaultState, error) {
		d, err := datum.DecodeVaultDatum(u.Datum)
		return VaultState{UTxO: u, Datum: d}, err
	})
	if err != nil || owner == nil {
		return all, err
	}
	mine := all[:0]
	for _, v := range all {
		if v.Datum.Owner == *owner {
			mine = append(mine, v)
		}
	}
	return mine, nil
}

// Pools returns every pool output at the pool address.
func (b *Builder) Pools(ctx context.Context) ([]PoolState, error) {
	return decodeAll(ctx, b, "pool", b.cfg.Scripts.PoolAddress, func(u ledger.UTxO) (PoolState, error) {
		d, err := datum.DecodePoolDatum(u.Datum)
		return PoolState{UTxO: u, Datum: d}, err
	})
}

// latestOracle picks the most recently updated oracle, considering only
// the configured admin's outputs when one is set.
func (b *Builder) latestOracle(ctx context.Context) (OracleState, error) {
	oracles, err := b.Oracles(ctx)
	if err != nil {
		return OracleState{}, err
	}
	if admin := b.cfg.OracleAdmin; admin != nil {
		trusted := oracles[:0:0]
		for _, o := range oracles {
			if o.Datum.Admin == *admin {
				trusted = append(trusted, o)
			}
		}
		if skipped := len(oracles) - len(trusted); skipped > 0 {
			b.logger.Warn("Ignoring oracle outputs from other admins", zap.Int("count", skipped))
		}
		if len(trusted) == 0 {
			return OracleState{}, &NotFoundError{Kind: "oracle", Key: admin.String()}
		}
		oracles = trusted
	}
	if len(oracles) == 0 {
		return OracleState{}, &NotFoundError{Kind: "oracle"}
	}
	if len(oracles) > 1 {
		b.logger.Warn("Multiple oracle outputs found, using the latest", zap.Int("count", len(oracles)))
	}
	best := oracles[0]
	for _, o := range oracles[1:] {
		if o.Datum.LastUpdated > best.Datum.LastUpdated {
			best = o
		}
	}
	return best, nil
}

func (b *Builder) findBasket(ctx context.Context, basketID string) (BasketState, error) {
	baskets, err := b.Baskets(ctx)
	if err != nil {
		return BasketState{}, err
	}
	for _, s := range baskets {
		if s.Datum.BasketID == basketID {
			return s, nil
		}
	}
	return BasketState{}, &NotFoundError{Kind: "basket", Key: basketID}
}

func (b *Builder) findVault(ctx context.Context, ref datum.OutputRef) (VaultState, error) {
	vaults, err := b.Vaults(ctx, nil)
	if err != nil {
		return VaultState{}, err
	}
	for _, v := range vaults {
		if v.UTxO.Ref == ref {
			return v, nil
		}
	}
	return VaultState{}, &NotFoundError{Kind: "vault", Key: ref.String()}
}

func (b *Builder) findPool(ctx context.Context, basketID string) (PoolState, error) {
	pools, err := b.Pools(ctx)
	if err != nil {
		return PoolState{}, err
	}
	for _, p := range pools {
		if p.Datum.BasketID == basketID {
			return p, nil
		}
	}
	return PoolState{}, &NotFoundError{Kind: "pool", Key: basketID}
}
