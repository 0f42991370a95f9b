package plutus

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestEncodeVectors(t *testing.T) {
	big64 := new(big.Int).Lsh(big.NewInt(1), 64)

	tests := []struct {
		name string
		data Data
		want string
	}{
		{"empty constr", NewConstr(0), "d87980"},
		{"constr with int", NewConstr(0, Int64(1)), "d8799f01ff"},
		{"constr 4", NewConstr(4), "d87d80"},
		{"constr 7 uses extended tag", NewConstr(7), "d9050080"},
		{"constr 200 uses general form", NewConstr(200), "d8668218c880"},
		{"empty list is definite", List{}, "80"},
		{"list is indefinite", List{Int64(1), Int64(2)}, "9f0102ff"},
		{"pair", Pair(Bytes("BTC"), Int64(5000)), "9f43425443191388ff"},
		{"negative int", Int64(-1), "20"},
		{"2^64 is a bignum", Int{Value: big64}, "c249010000000000000000"},
		{"empty bytes", Bytes{}, "40"},
		{"nil bytes", Bytes(nil), "40"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(got))
		})
	}
}

func TestEncodeChunksLongBytes(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 65)
	got, err := Encode(Bytes(payload))
	require.NoError(t, err)

	want := append([]byte{0x5f, 0x58, 0x40}, payload[:64]...)
	want = append(want, 0x41, 0xab, 0xff)
	assert.Equal(t, want, got)

	back, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, Bytes(payload), back)
}

func TestRoundTrip(t *testing.T) {
	huge, ok := new(big.Int).SetString("1606938044258990275541962092341162602522202993782792835301376", 10)
	require.True(t, ok)
	negHuge := new(big.Int).Neg(huge)

	values := []Data{
		NewConstr(0),
		NewConstr(3, Int64(42), Bytes("abc"), List{}),
		NewConstr(9, List{Pair(Bytes("ETH"), Int64(3000000000))}),
		NewConstr(1000, Int64(-7)),
		List{NewConstr(1), NewConstr(0, Bytes{0x01, 0x02})},
		Int{Value: huge},
		Int{Value: negHuge},
		Int64(-9223372036854775808),
		Bytes(bytes.Repeat([]byte{0x01}, 200)),
	}

	for _, v := range values {
		encoded, err := Encode(v)
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)

		reencoded, err := Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, encoded, reencoded)
	}
}

func TestDecodeBignumValue(t *testing.T) {
	d, err := Decode(mustHex(t, "c249010000000000000000"))
	require.NoError(t, err)

	n, err := AsInt(d)
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", n.String())
}

func TestEncodeNegativeBelowInt64(t *testing.T) {
	tests := []struct {
		value   string
		encoded string
	}{
		{"-9223372036854775808", "3b7fffffffffffffff"},
		{"-9223372036854775809", "3b8000000000000000"},
		{"-18446744073709551616", "3bffffffffffffffff"},
		{"-18446744073709551617", "c349010000000000000000"},
	}
	for _, tt := range tests {
		v, ok := new(big.Int).SetString(tt.value, 10)
		require.True(t, ok)

		got, err := Encode(NewInt(v))
		require.NoError(t, err)
		assert.Equal(t, tt.encoded, hex.EncodeToString(got), tt.value)

		decoded, err := Decode(got)
		require.NoError(t, err)
		n, err := AsInt(decoded)
		require.NoError(t, err)
		assert.Equal(t, tt.value, n.String())
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"map", "a10102"},
		{"trailing bytes", "d8798000"},
		{"unknown tag", "d81e80"},
		{"truncated", "d8799f01"},
		{"text string", "6141"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(mustHex(t, tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestExpectConstr(t *testing.T) {
	d := NewConstr(0, Int64(1), Int64(2), Int64(3), Int64(4))

	fields, err := ExpectConstr(d, 0, 4)
	require.NoError(t, err)
	assert.Len(t, fields, 4)

	_, err = ExpectConstr(d, 0, 5)
	require.ErrorIs(t, err, ErrWrongArity)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 5, de.Want)
	assert.Equal(t, 4, de.Got)

	_, err = ExpectConstr(d, 1, 4)
	assert.ErrorIs(t, err, ErrWrongConstructor)

	_, err = ExpectConstr(List{}, 0, 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTextRules(t *testing.T) {
	assert.Equal(t, "455155495459", TextToHex("EQUITY"))

	s, err := HexToText("455155495459")
	require.NoError(t, err)
	assert.Equal(t, "EQUITY", s)

	_, err = HexToText("455")
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = HexToText("zz")
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = HexToText("ff")
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = AsText(Bytes{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrInvalidText)

	got, err := AsText(Text("bäsket"))
	require.NoError(t, err)
	assert.Equal(t, "bäsket", got)
}

func TestIntAccessorsRange(t *testing.T) {
	_, err := AsInt64(Int{Value: new(big.Int).Lsh(big.NewInt(1), 70)})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = AsUint32(Int64(-1))
	assert.ErrorIs(t, err, ErrInvalidField)

	v, err := AsUint32(Int64(7))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	_, err = AsFixedBytes(Bytes{1, 2}, 28)
	assert.ErrorIs(t, err, ErrInvalidField)
}
