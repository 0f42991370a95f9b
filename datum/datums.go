package datum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/mgpai22/equibasket/plutus"
)

const (
	recOracle = "OracleDatum"
	recBasket = "BasketDatum"
	recVault  = "VaultDatum"
	recPool   = "PoolDatum"
)

// OracleDatum is the full price set published by the oracle admin.
// Constr 0 [prices, last_updated, admin].
type OracleDatum struct {
	Prices      []AssetPrice `json:"prices"`
	LastUpdated int64        `json:"last_updated"`
	Admin       PubKeyHash   `json:"admin"`
}

func (o OracleDatum) ToData() plutus.Data {
	return plutus.NewConstr(0,
		pricesToData(o.Prices),
		plutus.Int64(o.LastUpdated),
		plutus.Bytes(o.Admin[:]),
	)
}

// DecodeOracleDatum parses an oracle datum.
func DecodeOracleDatum(b []byte) (OracleDatum, error) {
	r := readConstr(b, recOracle, 0, 3)
	o := OracleDatum{
		Prices:      r.prices(0, "prices"),
		LastUpdated: r.int64(1, "last_updated"),
		Admin:       r.pubKeyHash(2, "admin"),
	}
	if r.err != nil {
		return OracleDatum{}, r.err
	}
	return o, nil
}

func (o OracleDatum) Equal(other OracleDatum) bool {
	if o.LastUpdated != other.LastUpdated || o.Admin != other.Admin || len(o.Prices) != len(other.Prices) {
		return false
	}
	for i := range o.Prices {
		if o.Prices[i].AssetID != other.Prices[i].AssetID || !intEqual(o.Prices[i].Price, other.Prices[i].Price) {
			return false
		}
	}
	return true
}

// BasketDatum describes a basket. It is immutable once created; an update
// produces a new record.
// Constr 0 [basket_id, name, assets, creator, created_at].
type BasketDatum struct {
	BasketID  string        `json:"basket_id"`
	Name      string        `json:"name"`
	Assets    []AssetWeight `json:"assets"`
	Creator   PubKeyHash    `json:"creator"`
	CreatedAt int64         `json:"created_at"`
}

func (b BasketDatum) ToData() plutus.Data {
	return plutus.NewConstr(0,
		plutus.Text(b.BasketID),
		plutus.Text(b.Name),
		weightsToData(b.Assets),
		plutus.Bytes(b.Creator[:]),
		plutus.Int64(b.CreatedAt),
	)
}

// DecodeBasketDatum parses a basket datum.
func DecodeBasketDatum(b []byte) (BasketDatum, error) {
	r := readConstr(b, recBasket, 0, 5)
	d := BasketDatum{
		BasketID:  r.text(0, "basket_id"),
		Name:      r.text(1, "name"),
		Assets:    r.weights(2, "assets"),
		Creator:   r.pubKeyHash(3, "creator"),
		CreatedAt: r.int64(4, "created_at"),
	}
	if r.err != nil {
		return BasketDatum{}, r.err
	}
	return d, nil
}

// WithAssets returns a new basket record carrying the given weights.
func (b BasketDatum) WithAssets(assets []AssetWeight) BasketDatum {
	b.Assets = copyWeights(assets)
	return b
}

// Validate checks the basket invariants.
func (b BasketDatum) Validate() error {
	if b.BasketID == "" {
		return errors.New("basket id is required")
	}
	return ValidateWeights(b.Assets)
}

func (b BasketDatum) Equal(other BasketDatum) bool {
	return b.BasketID == other.BasketID &&
		b.Name == other.Name &&
		weightsEqual(b.Assets, other.Assets) &&
		b.Creator == other.Creator &&
		b.CreatedAt == other.CreatedAt
}

// WeightError reports an asset-weight sequence that breaks the basket
// invariant.
type WeightError struct {
	Sum    int64
	Reason string
}

func (e *WeightError) Error() string {
	if e.Reason != "" {
		return "invalid basket weights: " + e.Reason
	}
	return fmt.Sprintf("weights must sum to %d, got %d", WeightPrecision, e.Sum)
}

// ValidateWeights rejects any sequence that does not sum to exactly
// WeightPrecision, has a non-positive weight, or repeats an asset.
func ValidateWeights(assets []AssetWeight) error {
	if len(assets) == 0 {
		return &WeightError{Reason: "basket has no assets"}
	}
	seen := make(map[string]struct{}, len(assets))
	var sum int64
	for _, a := range assets {
		if a.AssetID == "" {
			return &WeightError{Reason: "empty asset id"}
		}
		if a.Weight <= 0 {
			return &WeightError{Reason: fmt.Sprintf("weight of %s must be positive, got %d", a.AssetID, a.Weight)}
		}
		if _, dup := seen[a.AssetID]; dup {
			return &WeightError{Reason: "duplicate asset " + a.AssetID}
		}
		seen[a.AssetID] = struct{}{}
		sum += a.Weight
		if sum > WeightPrecision {
			break
		}
	}
	if sum != WeightPrecision {
		return &WeightError{Sum: sum}
	}
	return nil
}

// VaultDatum is one user's collateral position against a basket.
// Constr 0 [owner, basket_id, collateral_ada, minted_tokens, created_at].
type VaultDatum struct {
	Owner         PubKeyHash `json:"owner"`
	BasketID      string     `json:"basket_id"`
	CollateralAda *big.Int   `json:"collateral_ada"`
	MintedTokens  *big.Int   `json:"minted_tokens"`
	CreatedAt     int64      `json:"created_at"`
}

func (v VaultDatum) ToData() plutus.Data {
	return plutus.NewConstr(0,
		plutus.Bytes(v.Owner[:]),
		plutus.Text(v.BasketID),
		plutus.NewInt(v.CollateralAda),
		plutus.NewInt(v.MintedTokens),
		plutus.Int64(v.CreatedAt),
	)
}

// DecodeVaultDatum parses a vault datum.
func DecodeVaultDatum(b []byte) (VaultDatum, error) {
	r := readConstr(b, recVault, 0, 5)
	v := VaultDatum{
		Owner:         r.pubKeyHash(0, "owner"),
		BasketID:      r.text(1, "basket_id"),
		CollateralAda: r.integer(2, "collateral_ada"),
		MintedTokens:  r.integer(3, "minted_tokens"),
		CreatedAt:     r.int64(4, "created_at"),
	}
	if r.err != nil {
		return VaultDatum{}, r.err
	}
	return v, nil
}

// WithCollateral returns the vault state after its collateral changes.
func (v VaultDatum) WithCollateral(collateral *big.Int) VaultDatum {
	v.CollateralAda = copyInt(collateral)
	v.MintedTokens = copyInt(v.MintedTokens)
	return v
}

// WithMinted returns the vault state after its debt changes.
func (v VaultDatum) WithMinted(minted *big.Int) VaultDatum {
	v.CollateralAda = copyInt(v.CollateralAda)
	v.MintedTokens = copyInt(minted)
	return v
}

// Validate checks the vault invariants.
func (v VaultDatum) Validate() error {
	if v.CollateralAda == nil || v.CollateralAda.Sign() < 0 {
		return errors.New("vault collateral must be non-negative")
	}
	if v.MintedTokens == nil || v.MintedTokens.Sign() < 0 {
		return errors.New("vault minted tokens must be non-negative")
	}
	return nil
}

func (v VaultDatum) Equal(other VaultDatum) bool {
	return v.Owner == other.Owner &&
		v.BasketID == other.BasketID &&
		intEqual(v.CollateralAda, other.CollateralAda) &&
		intEqual(v.MintedTokens, other.MintedTokens) &&
		v.CreatedAt == other.CreatedAt
}

// PoolDatum is the constant-product pool of a basket token against ADA.
// Constr 0 [basket_id, basket_reserve, ada_reserve, lp_token_supply, created_at].
type PoolDatum struct {
	BasketID      string   `json:"basket_id"`
	BasketReserve *big.Int `json:"basket_reserve"`
	AdaReserve    *big.Int `json:"ada_reserve"`
	LpTokenSupply *big.Int `json:"lp_token_supply"`
	CreatedAt     int64    `json:"created_at"`
}

func (p PoolDatum) ToData() plutus.Data {
	return plutus.NewConstr(0,
		plutus.Text(p.BasketID),
		plutus.NewInt(p.BasketReserve),
		plutus.NewInt(p.AdaReserve),
		plutus.NewInt(p.LpTokenSupply),
		plutus.Int64(p.CreatedAt),
	)
}

// DecodePoolDatum parses a pool datum.
func DecodePoolDatum(b []byte) (PoolDatum, error) {
	r := readConstr(b, recPool, 0, 5)
	p := PoolDatum{
		BasketID:      r.text(0, "basket_id"),
		BasketReserve: r.integer(1, "basket_reserve"),
		AdaReserve:    r.integer(2, "ada_reserve"),
		LpTokenSupply: r.integer(3, "lp_token_supply"),
		CreatedAt:     r.int64(4, "created_at"),
	}
	if r.err != nil {
		return PoolDatum{}, r.err
	}
	return p, nil
}

// WithReserves returns the pool state after a liquidity or swap action.
func (p PoolDatum) WithReserves(basketReserve, adaReserve, lpSupply *big.Int) PoolDatum {
	p.BasketReserve = copyInt(basketReserve)
	p.AdaReserve = copyInt(adaReserve)
	p.LpTokenSupply = copyInt(lpSupply)
	return p
}

// Validate checks the pool invariants.
func (p PoolDatum) Validate() error {
	fields := []struct {
		name  string
		value *big.Int
	}{
		{"basket reserve", p.BasketReserve},
		{"ada reserve", p.AdaReserve},
		{"lp token supply", p.LpTokenSupply},
	}
	for _, f := range fields {
		if f.value == nil || f.value.Sign() < 0 {
			return fmt.Errorf("pool %s must be non-negative", f.name)
		}
	}
	return nil
}

func (p PoolDatum) Equal(other PoolDatum) bool {
	return p.BasketID == other.BasketID &&
		intEqual(p.BasketReserve, other.BasketReserve) &&
		intEqual(p.AdaReserve, other.AdaReserve) &&
		intEqual(p.LpTokenSupply, other.LpTokenSupply) &&
		p.CreatedAt == other.CreatedAt
}
