// Package ledger describes the UTxO ledger the builders read from and submit
// to, and provides a file-backed snapshot implementation of it.
package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/datum"
)

// Ledger is the chain collaborator: a snapshot query and a submission.
type Ledger interface {
	QueryUtxosAt(ctx context.Context, address string) ([]UTxO, error)
	Submit(ctx context.Context, tx *UnsignedTx, signer SignerContext) (datum.TxID, error)
}

// CBOR is raw CBOR bytes that travel as hex in text formats.
type CBOR []byte

func (c CBOR) String() string {
	return hex.EncodeToString(c)
}

func (c CBOR) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CBOR) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid cbor hex: %w", err)
	}
	*c = b
	return nil
}

// Value is an amount of lovelace plus native assets.
type Value struct {
	Lovelace *big.Int               `json:"lovelace"`
	Assets   map[asset.Unit]*big.Int `json:"assets,omitempty"`
}

// Lovelace builds a value holding only the native coin.
func Lovelace(amount *big.Int) Value {
	return Value{Lovelace: new(big.Int).Set(amount)}
}

// WithAsset returns a copy of v holding qty of unit.
func (v Value) WithAsset(unit asset.Unit, qty *big.Int) Value {
	out := v.Clone()
	if out.Assets == nil {
		out.Assets = make(map[asset.Unit]*big.Int)
	}
	out.Assets[unit] = new(big.Int).Set(qty)
	return out
}

// AmountOf returns the quantity of unit, zero when absent.
func (v Value) AmountOf(unit asset.Unit) *big.Int {
	if q, ok := v.Assets[unit]; ok && q != nil {
		return new(big.Int).Set(q)
	}
	return new(big.Int)
}

func (v Value) Clone() Value {
	out := Value{Lovelace: new(big.Int)}
	if v.Lovelace != nil {
		out.Lovelace.Set(v.Lovelace)
	}
	if len(v.Assets) > 0 {
		out.Assets = make(map[asset.Unit]*big.Int, len(v.Assets))
		for u, q := range v.Assets {
			out.Assets[u] = new(big.Int).Set(q)
		}
	}
	return out
}

// UTxO is one unspent output as seen in a snapshot.
type UTxO struct {
	Ref     datum.OutputRef `json:"ref"`
	Address string          `json:"address"`
	Value   Value           `json:"value"`
	Datum   CBOR            `json:"datum,omitempty"` // inline datum
}

// Output is a new output the transaction creates.
type Output struct {
	Address string `json:"address"`
	Value   Value  `json:"value"`
	Datum   CBOR   `json:"datum,omitempty"`
}

// ScriptInput spends a script-locked UTxO with a redeemer.
type ScriptInput struct {
	UTxO     UTxO `json:"utxo"`
	Redeemer CBOR `json:"redeemer"`
}

// Mint mints (positive) or burns (negative) tokens under one policy.
type Mint struct {
	PolicyID string              `json:"policy_id"`
	Assets   map[string]*big.Int `json:"assets"` // hex asset name to quantity
	Redeemer CBOR                `json:"redeemer"`
}

// UnsignedTx is everything the external transaction builder needs to
// balance, sign and submit one protocol action. Wallet inputs, change and
// fees are left to it.
type UnsignedTx struct {
	Action          string             `json:"action"`
	RequestID       string             `json:"request_id"`
	ReferenceInputs []UTxO             `json:"reference_inputs,omitempty"`
	Inputs          []ScriptInput      `json:"inputs,omitempty"`
	Mints           []Mint             `json:"mints,omitempty"`
	Outputs         []Output           `json:"outputs"`
	RequiredSigners []datum.PubKeyHash `json:"required_signers,omitempty"`
	ValidTo         time.Time          `json:"valid_to"`
}

// SpentRefs lists the outputs the transaction consumes.
func (tx *UnsignedTx) SpentRefs() []datum.OutputRef {
	refs := make([]datum.OutputRef, len(tx.Inputs))
	for i, in := range tx.Inputs {
		refs[i] = in.UTxO.Ref
	}
	return refs
}

// SignerContext identifies the wallet that signs and pays.
type SignerContext struct {
	Address    string           `json:"address"`
	PubKeyHash datum.PubKeyHash `json:"pub_key_hash"`
}
