// Package plutus implements the Plutus structured-data model used for datums
// and redeemers, together with its canonical CBOR wire encoding.
package plutus

import (
	"math/big"
)

// Data is a Plutus data value. The concrete types are Constr, List, Int and
// Bytes.
type Data interface {
	isData()
}

// Constr is a tagged constructor: a discriminant plus an ordered field list.
type Constr struct {
	Index  uint64
	Fields []Data
}

// List is an ordered sequence of data values. Tuples are encoded as lists.
type List []Data

// Int is an arbitrary precision integer.
type Int struct {
	Value *big.Int
}

// Bytes is a byte string.
type Bytes []byte

func (Constr) isData() {}
func (List) isData()   {}
func (Int) isData()    {}
func (Bytes) isData()  {}

// NewConstr builds a constructor value.
func NewConstr(index uint64, fields ...Data) Constr {
	if fields == nil {
		fields = []Data{}
	}
	return Constr{Index: index, Fields: fields}
}

// NewInt copies v into an Int. A nil v is treated as zero.
func NewInt(v *big.Int) Int {
	if v == nil {
		return Int{Value: new(big.Int)}
	}
	return Int{Value: new(big.Int).Set(v)}
}

// Int64 builds an Int from a machine integer.
func Int64(v int64) Int {
	return Int{Value: big.NewInt(v)}
}

// Pair encodes a two-element tuple as a plain list.
func Pair(a, b Data) List {
	return List{a, b}
}
