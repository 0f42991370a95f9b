package plutus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/Salvionied/cbor/v2"
)

const (
	// constructor tags, see CIP-0005 / the Plutus data CDDL
	tagConstrCompactBase = 121
	tagConstrCompactMax  = 127
	tagConstrExtBase     = 1280
	tagConstrExtMax      = 1400
	tagConstrGeneral     = 102
	tagPosBignum         = 2
	tagNegBignum         = 3

	// byte strings above this length are split into chunks
	maxBytesChunk = 64
)

// Encode serializes d to CBOR exactly the way the reference off-chain SDK
// does: non-empty lists and field lists are indefinite-length, empty ones are
// definite, and long byte strings are chunked.
func Encode(d Data) ([]byte, error) {
	v, err := toCBOR(d)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(v)
}

// Decode parses CBOR into Data. Trailing bytes, maps and unknown tags are
// rejected as malformed.
func Decode(b []byte) (Data, error) {
	if len(b) == 0 {
		return nil, &DecodeError{Kind: Malformed, Err: errors.New("empty input")}
	}
	var raw interface{}
	if err := cbor.Unmarshal(b, &raw); err != nil {
		return nil, &DecodeError{Kind: Malformed, Err: err}
	}
	return fromCBOR(raw)
}

// indefList marshals as an indefinite-length CBOR array.
type indefList []interface{}

func (l indefList) MarshalCBOR() ([]byte, error) {
	out := []byte{0x9f}
	for _, item := range l {
		b, err := cbor.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return append(out, 0xff), nil
}

// chunkedBytes marshals as an indefinite-length byte string of 64-byte chunks.
type chunkedBytes []byte

func (c chunkedBytes) MarshalCBOR() ([]byte, error) {
	out := []byte{0x5f}
	rest := []byte(c)
	for len(rest) > 0 {
		n := len(rest)
		if n > maxBytesChunk {
			n = maxBytesChunk
		}
		b, err := cbor.Marshal(rest[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		rest = rest[n:]
	}
	return append(out, 0xff), nil
}

// negUint64 marshals as a major type 1 integer carrying -1 - n. It covers
// the negative range below int64 that still fits the 8-byte head.
type negUint64 uint64

func (n negUint64) MarshalCBOR() ([]byte, error) {
	out := make([]byte, 9)
	out[0] = 0x3b
	binary.BigEndian.PutUint64(out[1:], uint64(n))
	return out, nil
}

func toCBOR(d Data) (interface{}, error) {
	switch v := d.(type) {
	case Constr:
		fields, err := listToCBOR(v.Fields)
		if err != nil {
			return nil, err
		}
		switch {
		case v.Index <= tagConstrCompactMax-tagConstrCompactBase:
			return cbor.Tag{Number: tagConstrCompactBase + v.Index, Content: fields}, nil
		case v.Index <= 127:
			return cbor.Tag{Number: tagConstrExtBase + v.Index - 7, Content: fields}, nil
		default:
			return cbor.Tag{Number: tagConstrGeneral, Content: []interface{}{v.Index, fields}}, nil
		}
	case List:
		return listToCBOR(v)
	case Int:
		return intToCBOR(v.Value), nil
	case Bytes:
		return bytesToCBOR(v), nil
	case nil:
		return nil, errors.New("plutus: cannot encode nil data")
	default:
		return nil, fmt.Errorf("plutus: cannot encode %T", d)
	}
}

func listToCBOR(items []Data) (interface{}, error) {
	if len(items) == 0 {
		return []interface{}{}, nil
	}
	out := make(indefList, len(items))
	for i, item := range items {
		v, err := toCBOR(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func bytesToCBOR(b []byte) interface{} {
	if len(b) > maxBytesChunk {
		return chunkedBytes(b)
	}
	if b == nil {
		// nil slices would otherwise encode as CBOR null
		return []byte{}
	}
	return b
}

func intToCBOR(v *big.Int) interface{} {
	switch {
	case v == nil:
		return uint64(0)
	case v.IsUint64():
		return v.Uint64()
	case v.IsInt64():
		return v.Int64()
	case v.Sign() > 0:
		return cbor.Tag{Number: tagPosBignum, Content: bytesToCBOR(v.Bytes())}
	}
	// both forms carry -1 - n
	n := new(big.Int).Neg(v)
	n.Sub(n, big.NewInt(1))
	if n.IsUint64() {
		return negUint64(n.Uint64())
	}
	return cbor.Tag{Number: tagNegBignum, Content: bytesToCBOR(n.Bytes())}
}

func fromCBOR(raw interface{}) (Data, error) {
	switch v := raw.(type) {
	case cbor.Tag:
		return tagFromCBOR(v)
	case []interface{}:
		return listFromCBOR(v)
	case uint64:
		return Int{Value: new(big.Int).SetUint64(v)}, nil
	case int64:
		return Int{Value: big.NewInt(v)}, nil
	case big.Int:
		return Int{Value: new(big.Int).Set(&v)}, nil
	case *big.Int:
		return Int{Value: new(big.Int).Set(v)}, nil
	case []byte:
		return Bytes(append([]byte{}, v...)), nil
	case map[interface{}]interface{}:
		return nil, &DecodeError{Kind: Malformed, Err: errors.New("plutus maps are not part of this schema")}
	default:
		return nil, &DecodeError{Kind: Malformed, Err: fmt.Errorf("unexpected CBOR item %T", raw)}
	}
}

func listFromCBOR(items []interface{}) (List, error) {
	out := make(List, len(items))
	for i, item := range items {
		d, err := fromCBOR(item)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func tagFromCBOR(t cbor.Tag) (Data, error) {
	switch {
	case t.Number >= tagConstrCompactBase && t.Number <= tagConstrCompactMax:
		return constrFromCBOR(t.Number-tagConstrCompactBase, t.Content)
	case t.Number >= tagConstrExtBase && t.Number <= tagConstrExtMax:
		return constrFromCBOR(t.Number-tagConstrExtBase+7, t.Content)
	case t.Number == tagConstrGeneral:
		pair, ok := t.Content.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, &DecodeError{Kind: Malformed, Err: errors.New("general constructor must be [index, fields]")}
		}
		index, ok := pair[0].(uint64)
		if !ok {
			return nil, &DecodeError{Kind: Malformed, Err: errors.New("general constructor index must be unsigned")}
		}
		return constrFromCBOR(index, pair[1])
	case t.Number == tagPosBignum || t.Number == tagNegBignum:
		b, ok := t.Content.([]byte)
		if !ok {
			return nil, &DecodeError{Kind: Malformed, Err: errors.New("bignum content must be a byte string")}
		}
		n := new(big.Int).SetBytes(b)
		if t.Number == tagNegBignum {
			n.Add(n, big.NewInt(1))
			n.Neg(n)
		}
		return Int{Value: n}, nil
	default:
		return nil, &DecodeError{Kind: Malformed, Err: fmt.Errorf("unexpected CBOR tag %d", t.Number)}
	}
}

func constrFromCBOR(index uint64, content interface{}) (Data, error) {
	items, ok := content.([]interface{})
	if !ok {
		return nil, &DecodeError{Kind: Malformed, Err: fmt.Errorf("constructor %d fields must be a list", index)}
	}
	fields, err := listFromCBOR(items)
	if err != nil {
		return nil, err
	}
	return Constr{Index: index, Fields: fields}, nil
}
