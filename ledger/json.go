package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/datum"
)

// TxJSON groups the outputs of one transaction in a snapshot file.
type TxJSON struct {
	Hash    string       `json:"hash"`
	Outputs []OutputJSON `json:"outputs"`
}

// OutputJSON is an unspent output as an indexer reports it.
type OutputJSON struct {
	TxHash      string      `json:"tx_hash"`
	OutputIndex int         `json:"output_index"`
	Address     string      `json:"address"`
	Amount      []AssetJSON `json:"amount"`
	InlineDatum string      `json:"inline_datum,omitempty"`
	DataHash    string      `json:"data_hash,omitempty"`
}

// AssetJSON is one entry of an output amount. Unit is "lovelace" or the
// concatenated policy id and asset name.
type AssetJSON struct {
	Unit     string `json:"unit"`
	Quantity int64  `json:"quantity"`
}

func utxoFromJSON(o OutputJSON) (UTxO, error) {
	id, err := datum.ParseTxID(o.TxHash)
	if err != nil {
		return UTxO{}, err
	}
	if o.OutputIndex < 0 {
		return UTxO{}, fmt.Errorf("negative output index %d", o.OutputIndex)
	}
	u := UTxO{
		Ref:     datum.OutputRef{TxID: id, Index: uint32(o.OutputIndex)},
		Address: o.Address,
		Value:   Value{Lovelace: new(big.Int)},
	}
	for _, amt := range o.Amount {
		if amt.Unit == asset.Lovelace {
			u.Value.Lovelace.SetInt64(amt.Quantity)
			continue
		}
		unit, err := asset.ParseUnit(amt.Unit)
		if err != nil {
			return UTxO{}, fmt.Errorf("output %s: %w", u.Ref, err)
		}
		u.Value = u.Value.WithAsset(unit, big.NewInt(amt.Quantity))
	}
	if o.InlineDatum != "" {
		d, err := hex.DecodeString(o.InlineDatum)
		if err != nil {
			return UTxO{}, fmt.Errorf("output %s: failed to decode inline datum: %w", u.Ref, err)
		}
		u.Datum = d
	}
	return u, nil
}

func utxoToJSON(u UTxO) (OutputJSON, error) {
	o := OutputJSON{
		TxHash:      u.Ref.TxID.String(),
		OutputIndex: int(u.Ref.Index),
		Address:     u.Address,
	}
	if len(u.Datum) > 0 {
		o.InlineDatum = u.Datum.String()
	}
	lovelace := u.Value.Lovelace
	if lovelace == nil {
		lovelace = new(big.Int)
	}
	if !lovelace.IsInt64() {
		return OutputJSON{}, fmt.Errorf("output %s: lovelace %s out of range", u.Ref, lovelace)
	}
	o.Amount = append(o.Amount, AssetJSON{Unit: asset.Lovelace, Quantity: lovelace.Int64()})

	units := make([]asset.Unit, 0, len(u.Value.Assets))
	for unit := range u.Value.Assets {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].String() < units[j].String() })
	for _, unit := range units {
		q := u.Value.Assets[unit]
		if !q.IsInt64() {
			return OutputJSON{}, fmt.Errorf("output %s: quantity of %s out of range", u.Ref, unit)
		}
		o.Amount = append(o.Amount, AssetJSON{Unit: unit.String(), Quantity: q.Int64()})
	}
	return o, nil
}
