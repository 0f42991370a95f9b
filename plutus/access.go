package plutus

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"
)

// ExpectConstr checks that d is a constructor with the given index and field
// count and returns its fields.
func ExpectConstr(d Data, index uint64, arity int) ([]Data, error) {
	c, ok := d.(Constr)
	if !ok {
		return nil, &DecodeError{Kind: Malformed, Err: fmt.Errorf("expected constructor, got %s", typeName(d))}
	}
	if c.Index != index {
		return nil, &DecodeError{Kind: WrongConstructor, Want: int(index), Got: int(c.Index)}
	}
	if len(c.Fields) != arity {
		return nil, &DecodeError{Kind: WrongArity, Want: arity, Got: len(c.Fields)}
	}
	return c.Fields, nil
}

// AsConstr returns d as a constructor.
func AsConstr(d Data) (Constr, error) {
	c, ok := d.(Constr)
	if !ok {
		return Constr{}, &DecodeError{Kind: Malformed, Err: fmt.Errorf("expected constructor, got %s", typeName(d))}
	}
	return c, nil
}

// AsList returns d as a list.
func AsList(d Data) (List, error) {
	l, ok := d.(List)
	if !ok {
		return nil, &DecodeError{Kind: InvalidField, Err: fmt.Errorf("expected list, got %s", typeName(d))}
	}
	return l, nil
}

// AsPair returns the two elements of a tuple encoded as a plain list.
func AsPair(d Data) (Data, Data, error) {
	l, err := AsList(d)
	if err != nil {
		return nil, nil, err
	}
	if len(l) != 2 {
		return nil, nil, &DecodeError{Kind: WrongArity, Want: 2, Got: len(l)}
	}
	return l[0], l[1], nil
}

// AsInt returns a copy of the integer held by d.
func AsInt(d Data) (*big.Int, error) {
	i, ok := d.(Int)
	if !ok || i.Value == nil {
		return nil, &DecodeError{Kind: InvalidField, Err: fmt.Errorf("expected integer, got %s", typeName(d))}
	}
	return new(big.Int).Set(i.Value), nil
}

// AsInt64 returns the integer held by d if it fits in an int64.
func AsInt64(d Data) (int64, error) {
	n, err := AsInt(d)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, &DecodeError{Kind: InvalidField, Err: fmt.Errorf("integer %s out of range", n)}
	}
	return n.Int64(), nil
}

// AsUint32 returns the integer held by d if it fits in a uint32.
func AsUint32(d Data) (uint32, error) {
	n, err := AsInt64(d)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, &DecodeError{Kind: InvalidField, Err: fmt.Errorf("integer %d out of range", n)}
	}
	return uint32(n), nil
}

// AsBytes returns a copy of the byte string held by d.
func AsBytes(d Data) ([]byte, error) {
	b, ok := d.(Bytes)
	if !ok {
		return nil, &DecodeError{Kind: InvalidField, Err: fmt.Errorf("expected bytes, got %s", typeName(d))}
	}
	return append([]byte{}, b...), nil
}

// AsFixedBytes returns the byte string held by d, requiring an exact length.
func AsFixedBytes(d Data, size int) ([]byte, error) {
	b, err := AsBytes(d)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, &DecodeError{Kind: InvalidField, Err: fmt.Errorf("expected %d bytes, got %d", size, len(b))}
	}
	return b, nil
}

// Text encodes s as its UTF-8 bytes, the on-chain form of the hex string the
// off-chain SDK produces with fromText.
func Text(s string) Bytes {
	return Bytes(s)
}

// AsText decodes a text field, rejecting byte strings that are not UTF-8.
func AsText(d Data) (string, error) {
	b, err := AsBytes(d)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &DecodeError{Kind: InvalidText, Err: errors.New("text is not valid UTF-8")}
	}
	return string(b), nil
}

// TextToHex returns the hexadecimal encoding of the UTF-8 bytes of s.
func TextToHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

// HexToText inverts TextToHex. Odd-length hex, non-hex digits and non-UTF-8
// payloads fail with InvalidText.
func HexToText(h string) (string, error) {
	if len(h)%2 != 0 {
		return "", &DecodeError{Kind: InvalidText, Err: fmt.Errorf("odd-length hex %q", h)}
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return "", &DecodeError{Kind: InvalidText, Err: err}
	}
	if !utf8.Valid(b) {
		return "", &DecodeError{Kind: InvalidText, Err: errors.New("text is not valid UTF-8")}
	}
	return string(b), nil
}

func typeName(d Data) string {
	switch d.(type) {
	case Constr:
		return "constructor"
	case List:
		return "list"
	case Int:
		return "integer"
	case Bytes:
		return "bytes"
	case nil:
		return "nothing"
	default:
		return fmt.Sprintf("%T", d)
	}
}
