// Package service binds builder actions to named, JSON-parameterised
// operations and runs them with submission retries.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/txbuilder"
)

// BuildFunc decodes params and builds one unsigned transaction.
type BuildFunc func(ctx context.Context, b *txbuilder.Builder, params json.RawMessage) (*ledger.UnsignedTx, error)

// handler adapts a typed builder method to a BuildFunc.
func handler[P any](build func(*txbuilder.Builder, context.Context, P) (*ledger.UnsignedTx, error)) BuildFunc {
	return func(ctx context.Context, b *txbuilder.Builder, params json.RawMessage) (*ledger.UnsignedTx, error) {
		var p P
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return build(b, ctx, p)
	}
}

var actions = map[string]BuildFunc{
	"publish_oracle":      handler((*txbuilder.Builder).BuildPublishOracle),
	"create_basket":       handler((*txbuilder.Builder).BuildCreateBasket),
	"update_basket":       handler((*txbuilder.Builder).BuildUpdateBasket),
	"open_vault":          handler((*txbuilder.Builder).BuildOpenVault),
	"deposit":             handler((*txbuilder.Builder).BuildDeposit),
	"withdraw":            handler((*txbuilder.Builder).BuildWithdraw),
	"mint":                handler((*txbuilder.Builder).BuildMint),
	"burn":                handler((*txbuilder.Builder).BuildBurn),
	"liquidate":           handler((*txbuilder.Builder).BuildLiquidate),
	"create_pool":         handler((*txbuilder.Builder).BuildCreatePool),
	"add_liquidity":       handler((*txbuilder.Builder).BuildAddLiquidity),
	"remove_liquidity":    handler((*txbuilder.Builder).BuildRemoveLiquidity),
	"swap_basket_for_ada": handler((*txbuilder.Builder).BuildSwapBasketForAda),
	"swap_ada_for_basket": handler((*txbuilder.Builder).BuildSwapAdaForBasket),
}

// Action looks up a build action by name.
func Action(name string) (BuildFunc, error) {
	fn, ok := actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", txbuilder.ErrInvalidParams, name)
	}
	return fn, nil
}

// ActionNames lists every action in sorted order.
func ActionNames() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams rejects unknown fields so a misspelt minimum is not
// silently dropped.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", txbuilder.ErrInvalidParams, err)
	}
	return nil
}
