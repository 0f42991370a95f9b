package datum

import (
	"math/big"

	"github.com/mgpai22/equibasket/plutus"
)

// Each validator has its own redeemer family. A family is a closed set of Go
// types; adding an on-chain action means adding a variant here and a case in
// the family's decoder.

// BasketRedeemer is spent against the basket factory validator.
type BasketRedeemer interface {
	Record
	isBasketRedeemer()
}

// CreateBasket is Constr 0 [].
type CreateBasket struct{}

// UpdateBasket is Constr 1 [weights].
type UpdateBasket struct {
	Weights []AssetWeight
}

func (CreateBasket) isBasketRedeemer() {}
func (UpdateBasket) isBasketRedeemer() {}

func (CreateBasket) ToData() plutus.Data { return plutus.NewConstr(0) }

func (u UpdateBasket) ToData() plutus.Data {
	return plutus.NewConstr(1, weightsToData(u.Weights))
}

// DecodeBasketRedeemer parses a basket factory redeemer.
func DecodeBasketRedeemer(b []byte) (BasketRedeemer, error) {
	const rec = "BasketRedeemer"
	c, err := decodeVariant(b, rec)
	if err != nil {
		return nil, err
	}
	switch c.Index {
	case 0:
		if r := readFields(c, rec, 0, 0); r.err != nil {
			return nil, r.err
		}
		return CreateBasket{}, nil
	case 1:
		r := readFields(c, rec, 1, 1)
		u := UpdateBasket{Weights: r.weights(0, "weights")}
		if r.err != nil {
			return nil, r.err
		}
		return u, nil
	default:
		return nil, unknownVariant(rec, c.Index)
	}
}

// VaultRedeemer is spent against the vault validator.
type VaultRedeemer interface {
	Record
	isVaultRedeemer()
}

// Deposit is Constr 0 [amount].
type Deposit struct{ Amount *big.Int }

// Withdraw is Constr 1 [amount].
type Withdraw struct{ Amount *big.Int }

// Mint is Constr 2 [amount].
type Mint struct{ Amount *big.Int }

// Burn is Constr 3 [amount].
type Burn struct{ Amount *big.Int }

// Liquidate is Constr 4 [].
type Liquidate struct{}

func (Deposit) isVaultRedeemer()   {}
func (Withdraw) isVaultRedeemer()  {}
func (Mint) isVaultRedeemer()      {}
func (Burn) isVaultRedeemer()      {}
func (Liquidate) isVaultRedeemer() {}

func (r Deposit) ToData() plutus.Data  { return plutus.NewConstr(0, plutus.NewInt(r.Amount)) }
func (r Withdraw) ToData() plutus.Data { return plutus.NewConstr(1, plutus.NewInt(r.Amount)) }
func (r Mint) ToData() plutus.Data     { return plutus.NewConstr(2, plutus.NewInt(r.Amount)) }
func (r Burn) ToData() plutus.Data     { return plutus.NewConstr(3, plutus.NewInt(r.Amount)) }
func (Liquidate) ToData() plutus.Data  { return plutus.NewConstr(4) }

// DecodeVaultRedeemer parses a vault redeemer.
func DecodeVaultRedeemer(b []byte) (VaultRedeemer, error) {
	const rec = "VaultRedeemer"
	c, err := decodeVariant(b, rec)
	if err != nil {
		return nil, err
	}
	if c.Index == 4 {
		if r := readFields(c, rec, 4, 0); r.err != nil {
			return nil, r.err
		}
		return Liquidate{}, nil
	}
	if c.Index > 4 {
		return nil, unknownVariant(rec, c.Index)
	}
	r := readFields(c, rec, c.Index, 1)
	amount := r.integer(0, "amount")
	if r.err != nil {
		return nil, r.err
	}
	switch c.Index {
	case 0:
		return Deposit{Amount: amount}, nil
	case 1:
		return Withdraw{Amount: amount}, nil
	case 2:
		return Mint{Amount: amount}, nil
	default:
		return Burn{Amount: amount}, nil
	}
}

// BasketTokenRedeemer is passed to the basket token minting policy. On chain
// it is Constr 0 [action, output_reference] where action is MintTokens
// (Constr 0 []) or BurnTokens (Constr 1 []) and the reference names the
// vault output being spent.
type BasketTokenRedeemer interface {
	Record
	isBasketTokenRedeemer()
}

// MintTokens mints basket tokens against the referenced vault.
type MintTokens struct{ Ref OutputRef }

// BurnTokens burns basket tokens against the referenced vault.
type BurnTokens struct{ Ref OutputRef }

func (MintTokens) isBasketTokenRedeemer() {}
func (BurnTokens) isBasketTokenRedeemer() {}

func (r MintTokens) ToData() plutus.Data { return policyAction(0, r.Ref) }
func (r BurnTokens) ToData() plutus.Data { return policyAction(1, r.Ref) }

// DecodeBasketTokenRedeemer parses a basket token policy redeemer.
func DecodeBasketTokenRedeemer(b []byte) (BasketTokenRedeemer, error) {
	action, ref, err := decodePolicyAction(b, "BasketTokenRedeemer", "output_reference")
	if err != nil {
		return nil, err
	}
	if action == 0 {
		return MintTokens{Ref: ref}, nil
	}
	return BurnTokens{Ref: ref}, nil
}

// PoolRedeemer is spent against the liquidity pool validator.
type PoolRedeemer interface {
	Record
	isPoolRedeemer()
}

// CreatePool is Constr 0 [initial_basket, initial_ada].
type CreatePool struct {
	InitBasket *big.Int
	InitAda    *big.Int
}

// AddLiquidity is Constr 1 [basket_amount, ada_amount, min_lp_tokens].
type AddLiquidity struct {
	BasketAmount *big.Int
	AdaAmount    *big.Int
	MinLp        *big.Int
}

// RemoveLiquidity is Constr 2 [lp_tokens, min_basket, min_ada].
type RemoveLiquidity struct {
	LpTokens  *big.Int
	MinBasket *big.Int
	MinAda    *big.Int
}

// SwapBasketForAda is Constr 3 [basket_in, min_ada_out].
type SwapBasketForAda struct {
	BasketIn  *big.Int
	MinAdaOut *big.Int
}

// SwapAdaForBasket is Constr 4 [ada_in, min_basket_out].
type SwapAdaForBasket struct {
	AdaIn        *big.Int
	MinBasketOut *big.Int
}

func (CreatePool) isPoolRedeemer()       {}
func (AddLiquidity) isPoolRedeemer()     {}
func (RemoveLiquidity) isPoolRedeemer()  {}
func (SwapBasketForAda) isPoolRedeemer() {}
func (SwapAdaForBasket) isPoolRedeemer() {}

func (r CreatePool) ToData() plutus.Data {
	return plutus.NewConstr(0, plutus.NewInt(r.InitBasket), plutus.NewInt(r.InitAda))
}

func (r AddLiquidity) ToData() plutus.Data {
	return plutus.NewConstr(1, plutus.NewInt(r.BasketAmount), plutus.NewInt(r.AdaAmount), plutus.NewInt(r.MinLp))
}

func (r RemoveLiquidity) ToData() plutus.Data {
	return plutus.NewConstr(2, plutus.NewInt(r.LpTokens), plutus.NewInt(r.MinBasket), plutus.NewInt(r.MinAda))
}

func (r SwapBasketForAda) ToData() plutus.Data {
	return plutus.NewConstr(3, plutus.NewInt(r.BasketIn), plutus.NewInt(r.MinAdaOut))
}

func (r SwapAdaForBasket) ToData() plutus.Data {
	return plutus.NewConstr(4, plutus.NewInt(r.AdaIn), plutus.NewInt(r.MinBasketOut))
}

// DecodePoolRedeemer parses a liquidity pool redeemer.
func DecodePoolRedeemer(b []byte) (PoolRedeemer, error) {
	const rec = "PoolRedeemer"
	c, err := decodeVariant(b, rec)
	if err != nil {
		return nil, err
	}
	switch c.Index {
	case 0:
		r := readFields(c, rec, 0, 2)
		out := CreatePool{InitBasket: r.integer(0, "initial_basket"), InitAda: r.integer(1, "initial_ada")}
		if r.err != nil {
			return nil, r.err
		}
		return out, nil
	case 1:
		r := readFields(c, rec, 1, 3)
		out := AddLiquidity{
			BasketAmount: r.integer(0, "basket_amount"),
			AdaAmount:    r.integer(1, "ada_amount"),
			MinLp:        r.integer(2, "min_lp_tokens"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return out, nil
	case 2:
		r := readFields(c, rec, 2, 3)
		out := RemoveLiquidity{
			LpTokens:  r.integer(0, "lp_tokens"),
			MinBasket: r.integer(1, "min_basket"),
			MinAda:    r.integer(2, "min_ada"),
		}
		if r.err != nil {
			return nil, r.err
		}
		return out, nil
	case 3:
		r := readFields(c, rec, 3, 2)
		out := SwapBasketForAda{BasketIn: r.integer(0, "basket_in"), MinAdaOut: r.integer(1, "min_ada_out")}
		if r.err != nil {
			return nil, r.err
		}
		return out, nil
	case 4:
		r := readFields(c, rec, 4, 2)
		out := SwapAdaForBasket{AdaIn: r.integer(0, "ada_in"), MinBasketOut: r.integer(1, "min_basket_out")}
		if r.err != nil {
			return nil, r.err
		}
		return out, nil
	default:
		return nil, unknownVariant(rec, c.Index)
	}
}

// LpTokenRedeemer is passed to the LP token minting policy, with the same
// Constr 0 [action, pool_reference] shape as BasketTokenRedeemer.
type LpTokenRedeemer interface {
	Record
	isLpTokenRedeemer()
}

// MintLpTokens mints LP tokens against the referenced pool output.
type MintLpTokens struct{ PoolRef OutputRef }

// BurnLpTokens burns LP tokens against the referenced pool output.
type BurnLpTokens struct{ PoolRef OutputRef }

func (MintLpTokens) isLpTokenRedeemer() {}
func (BurnLpTokens) isLpTokenRedeemer() {}

func (r MintLpTokens) ToData() plutus.Data { return policyAction(0, r.PoolRef) }
func (r BurnLpTokens) ToData() plutus.Data { return policyAction(1, r.PoolRef) }

// DecodeLpTokenRedeemer parses an LP token policy redeemer.
func DecodeLpTokenRedeemer(b []byte) (LpTokenRedeemer, error) {
	action, ref, err := decodePolicyAction(b, "LpTokenRedeemer", "pool_reference")
	if err != nil {
		return nil, err
	}
	if action == 0 {
		return MintLpTokens{PoolRef: ref}, nil
	}
	return BurnLpTokens{PoolRef: ref}, nil
}

func policyAction(action uint64, ref OutputRef) plutus.Data {
	return plutus.NewConstr(0, plutus.NewConstr(action), ref.ToData())
}

func decodePolicyAction(b []byte, rec, refField string) (uint64, OutputRef, error) {
	r := readConstr(b, rec, 0, 2)
	if r.err != nil {
		return 0, OutputRef{}, r.err
	}
	action, err := plutus.AsConstr(r.fields[0])
	if err != nil {
		return 0, OutputRef{}, plutus.Within(err, rec, "action")
	}
	if action.Index > 1 {
		return 0, OutputRef{}, unknownVariant(rec, action.Index)
	}
	if len(action.Fields) != 0 {
		return 0, OutputRef{}, &plutus.DecodeError{Kind: plutus.WrongArity, Record: rec, Field: "action", Want: 0, Got: len(action.Fields)}
	}
	ref := r.outputRef(1, refField)
	if r.err != nil {
		return 0, OutputRef{}, r.err
	}
	return action.Index, ref, nil
}

func decodeVariant(b []byte, rec string) (plutus.Constr, error) {
	d, err := plutus.Decode(b)
	if err != nil {
		return plutus.Constr{}, plutus.Within(err, rec, "")
	}
	c, err := plutus.AsConstr(d)
	if err != nil {
		return plutus.Constr{}, plutus.Within(err, rec, "")
	}
	return c, nil
}

func unknownVariant(rec string, index uint64) error {
	return &plutus.DecodeError{Kind: plutus.WrongConstructor, Record: rec, Want: -1, Got: int(index)}
}
