package ledger

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/Amount"
	"github.com/Salvionied/apollo/serialization/Asset"
	"github.com/Salvionied/apollo/serialization/AssetName"
	"github.com/Salvionied/apollo/serialization/MultiAsset"
	"github.com/Salvionied/apollo/serialization/PlutusData"
	"github.com/Salvionied/apollo/serialization/Policy"
	"github.com/Salvionied/apollo/serialization/Transaction"
	"github.com/Salvionied/apollo/serialization/TransactionInput"
	"github.com/Salvionied/apollo/serialization/TransactionOutput"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	apolloValue "github.com/Salvionied/apollo/serialization/Value"
	apolloCbor "github.com/Salvionied/cbor/v2"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/datum"
)

// Resolver finds the output a transaction input points at. Apollo chain
// contexts satisfy it, and so does Snapshot.
type Resolver interface {
	GetUtxoFromRef(txHash string, index int) *apolloUTxO.UTxO
}

// GetUtxoFromRef returns the unspent output at txHash#index in apollo form,
// or nil when it is spent, unknown or cannot be represented.
func (s *Snapshot) GetUtxoFromRef(txHash string, index int) *apolloUTxO.UTxO {
	id, err := datum.ParseTxID(txHash)
	if err != nil || index < 0 {
		return nil
	}
	u, ok := s.Lookup(datum.OutputRef{TxID: id, Index: uint32(index)})
	if !ok {
		return nil
	}
	out, err := ToApollo(u)
	if err != nil {
		s.logger.Warn("Failed to convert utxo", zap.String("ref", u.Ref.String()), zap.Error(err))
		return nil
	}
	return &out
}

// ParseTx decodes a serialized transaction.
func ParseTx(txBytes []byte) (*Transaction.Transaction, error) {
	tx := &Transaction.Transaction{}
	if err := apolloCbor.Unmarshal(txBytes, tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// ResolveInputs returns the outputs spent by a serialized transaction. An
// input the resolver no longer knows is reported as a StaleInputError.
func ResolveInputs(ctx context.Context, txBytes []byte, resolver Resolver) ([]apolloUTxO.UTxO, error) {
	tx, err := ParseTx(txBytes)
	if err != nil {
		return nil, err
	}

	utxos := make([]apolloUTxO.UTxO, 0, len(tx.TransactionBody.Inputs))
	for _, input := range tx.TransactionBody.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txHash := hex.EncodeToString(input.TransactionId)
		utxo := resolver.GetUtxoFromRef(txHash, int(input.Index))
		if utxo == nil {
			var ref datum.OutputRef
			if len(input.TransactionId) != len(ref.TxID) || input.Index < 0 {
				return nil, fmt.Errorf("UTxO not found for input %s#%d", txHash, input.Index)
			}
			copy(ref.TxID[:], input.TransactionId)
			ref.Index = uint32(input.Index)
			return nil, &StaleInputError{Ref: ref}
		}
		utxos = append(utxos, *utxo)
	}
	return utxos, nil
}

// ToApollo converts a snapshot output to apollo's UTxO.
func ToApollo(u UTxO) (apolloUTxO.UTxO, error) {
	addr, err := Address.DecodeAddress(u.Address)
	if err != nil {
		return apolloUTxO.UTxO{}, fmt.Errorf("failed to decode address: %w", err)
	}

	lovelace := int64(0)
	if u.Value.Lovelace != nil {
		if !u.Value.Lovelace.IsInt64() {
			return apolloUTxO.UTxO{}, fmt.Errorf("lovelace %s out of range", u.Value.Lovelace)
		}
		lovelace = u.Value.Lovelace.Int64()
	}

	multiAssets := MultiAsset.MultiAsset[int64]{}
	for unit, qty := range u.Value.Assets {
		if !qty.IsInt64() {
			return apolloUTxO.UTxO{}, fmt.Errorf("quantity of %s out of range", unit)
		}
		policyID := Policy.PolicyId{Value: unit.PolicyID}
		name := *AssetName.NewAssetNameFromHexString(unit.AssetName)
		if _, ok := multiAssets[policyID]; !ok {
			multiAssets[policyID] = Asset.Asset[int64]{}
		}
		multiAssets[policyID][name] = qty.Int64()
	}

	txOut, err := alonzoOutput(addr, createValue(lovelace, multiAssets), u.Datum)
	if err != nil {
		return apolloUTxO.UTxO{}, err
	}

	return apolloUTxO.UTxO{
		Input: TransactionInput.TransactionInput{
			TransactionId: append([]byte{}, u.Ref.TxID[:]...),
			Index:         int(u.Ref.Index),
		},
		Output: txOut,
	}, nil
}

// alonzoOutput builds a post-Alonzo output, with an inline datum when one
// is present.
func alonzoOutput(addr Address.Address, value apolloValue.Value, inlineDatum CBOR) (TransactionOutput.TransactionOutput, error) {
	out := TransactionOutput.TransactionOutputAlonzo{
		Address: addr,
		Amount:  value.ToAlonzoValue(),
	}
	if len(inlineDatum) > 0 {
		var plutusData PlutusData.PlutusData
		if err := apolloCbor.Unmarshal(inlineDatum, &plutusData); err != nil {
			return TransactionOutput.TransactionOutput{}, fmt.Errorf("failed to unmarshal plutus data: %w", err)
		}
		datumOption := PlutusData.DatumOptionInline(&plutusData)
		out.Datum = &datumOption
	}
	return TransactionOutput.TransactionOutput{IsPostAlonzo: true, PostAlonzo: out}, nil
}

func createValue(lovelace int64, multiAssets MultiAsset.MultiAsset[int64]) apolloValue.Value {
	if len(multiAssets) > 0 {
		return apolloValue.Value{
			Am: Amount.Amount{
				Coin:  lovelace,
				Value: multiAssets,
			},
			HasAssets: true,
		}
	}
	return apolloValue.Value{Coin: lovelace}
}
