package evaluator

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"

	"github.com/mgpai22/equibasket/asset"
)

// UTxO is the form the evaluator module reads resolved inputs in.
type UTxO struct {
	Address     string            `json:"address"`
	TxHash      string            `json:"tx_hash"`
	OutputIndex uint64            `json:"output_index"`
	DatumHash   *string           `json:"datum_hash,omitempty"`
	Datum       *string           `json:"datum,omitempty"`
	ScriptRef   *ScriptRef        `json:"script_ref,omitempty"`
	Assets      map[string]uint64 `json:"assets"`
}

// ScriptRef is a reference script carried by an output.
type ScriptRef struct {
	ScriptType string `json:"script_type"`
	Script     string `json:"script"`
}

// assetMap lists an output's value keyed by unit, lovelace included.
func assetMap(u *apolloUTxO.UTxO) map[string]uint64 {
	amount := u.Output.GetAmount()
	out := map[string]uint64{asset.Lovelace: uint64(amount.GetCoin())}
	for policyID, group := range amount.GetAssets() {
		for name, qty := range group {
			out[policyID.Value+name.HexString()] = uint64(qty)
		}
	}
	return out
}

// fromApollo converts a resolved input for the evaluator.
func fromApollo(u *apolloUTxO.UTxO) UTxO {
	out := UTxO{
		Address:     u.Output.GetAddress().String(),
		TxHash:      hex.EncodeToString(u.Input.TransactionId),
		OutputIndex: uint64(u.Input.Index),
		Assets:      assetMap(u),
	}
	if dh := u.Output.GetDatumHash(); dh != nil {
		if s := hex.EncodeToString(dh.Payload); s != "" {
			out.DatumHash = &s
		}
	}
	if d := u.Output.GetDatum(); d != nil {
		if raw, err := d.MarshalCBOR(); err == nil && len(raw) > 0 {
			s := hex.EncodeToString(raw)
			out.Datum = &s
		}
	}
	if ref := u.Output.GetScriptRef(); ref != nil && len(*ref) > 0 {
		out.ScriptRef = &ScriptRef{
			ScriptType: "plutus_v3",
			Script:     hex.EncodeToString(*ref),
		}
	}
	return out
}

// serializeUTxOs lays out input/output pairs as the evaluator expects:
// a little-endian count, then each input and output prefixed by its length.
func serializeUTxOs(inputs, outputs [][]byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(inputs)))
	for i := range inputs {
		_ = binary.Write(&buf, binary.LittleEndian, uint64(len(inputs[i])))
		buf.Write(inputs[i])
		_ = binary.Write(&buf, binary.LittleEndian, uint64(len(outputs[i])))
		buf.Write(outputs[i])
	}
	return buf.Bytes()
}
