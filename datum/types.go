// Package datum defines the typed on-chain records of the basket protocol and
// their fixed-ABI encoding to Plutus data.
//
// Field order inside every constructor is part of the validator ABI. The codec
// can detect malformed input but not a reordered schema.
package datum

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/mgpai22/equibasket/plutus"
)

// WeightPrecision is the sum every basket's weights must reach: weights are
// basis points of total basket value.
const WeightPrecision = 10000

const (
	pubKeyHashSize = 28
	txIDSize       = 32
)

// Record is anything with a fixed Plutus data representation.
type Record interface {
	ToData() plutus.Data
}

// Encode serializes a datum or redeemer to its canonical CBOR bytes.
func Encode(r Record) ([]byte, error) {
	return plutus.Encode(r.ToData())
}

// PubKeyHash is a Blake2b-224 payment key hash.
type PubKeyHash [pubKeyHashSize]byte

// ParsePubKeyHash parses a hex encoded key hash.
func ParsePubKeyHash(s string) (PubKeyHash, error) {
	var p PubKeyHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("invalid pub key hash %q: %w", s, err)
	}
	if len(b) != pubKeyHashSize {
		return p, fmt.Errorf("invalid pub key hash %q: want %d bytes, got %d", s, pubKeyHashSize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

func (p PubKeyHash) String() string {
	return hex.EncodeToString(p[:])
}

func (p PubKeyHash) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PubKeyHash) UnmarshalText(text []byte) error {
	parsed, err := ParsePubKeyHash(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TxID is a transaction hash.
type TxID [txIDSize]byte

// ParseTxID parses a hex encoded transaction hash.
func ParseTxID(s string) (TxID, error) {
	var id TxID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid tx id %q: %w", s, err)
	}
	if len(b) != txIDSize {
		return id, fmt.Errorf("invalid tx id %q: want %d bytes, got %d", s, txIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id TxID) String() string {
	return hex.EncodeToString(id[:])
}

func (id TxID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TxID) UnmarshalText(text []byte) error {
	parsed, err := ParseTxID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// OutputRef points at a transaction output.
type OutputRef struct {
	TxID  TxID
	Index uint32
}

// ParseOutputRef parses the "txid#index" form.
func ParseOutputRef(s string) (OutputRef, error) {
	txPart, idxPart, ok := strings.Cut(s, "#")
	if !ok {
		return OutputRef{}, fmt.Errorf("invalid output reference %q: want txid#index", s)
	}
	id, err := ParseTxID(txPart)
	if err != nil {
		return OutputRef{}, err
	}
	idx, err := strconv.ParseUint(idxPart, 10, 32)
	if err != nil {
		return OutputRef{}, fmt.Errorf("invalid output index in %q: %w", s, err)
	}
	return OutputRef{TxID: id, Index: uint32(idx)}, nil
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxID, r.Index)
}

func (r OutputRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *OutputRef) UnmarshalText(text []byte) error {
	parsed, err := ParseOutputRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ToData encodes the reference as Constr 0 [txId, outputIndex].
func (r OutputRef) ToData() plutus.Data {
	return plutus.NewConstr(0, plutus.Bytes(r.TxID[:]), plutus.Int64(int64(r.Index)))
}

// AssetWeight is one basket constituent and its weight in basis points.
type AssetWeight struct {
	AssetID string `json:"asset_id"`
	Weight  int64  `json:"weight"`
}

// AssetPrice is one oracle quote in price-precision fixed point.
type AssetPrice struct {
	AssetID string   `json:"asset_id"`
	Price   *big.Int `json:"price"`
}

func weightsToData(assets []AssetWeight) plutus.List {
	out := make(plutus.List, len(assets))
	for i, a := range assets {
		out[i] = plutus.Pair(plutus.Text(a.AssetID), plutus.Int64(a.Weight))
	}
	return out
}

func pricesToData(prices []AssetPrice) plutus.List {
	out := make(plutus.List, len(prices))
	for i, p := range prices {
		out[i] = plutus.Pair(plutus.Text(p.AssetID), plutus.NewInt(p.Price))
	}
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func intEqual(a, b *big.Int) bool {
	return copyInt(a).Cmp(copyInt(b)) == 0
}

func copyWeights(assets []AssetWeight) []AssetWeight {
	return append([]AssetWeight{}, assets...)
}

func weightsEqual(a, b []AssetWeight) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
