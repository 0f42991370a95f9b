package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/internal/testenv"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/txbuilder"
)

func fastPolicy(tries uint) RetryPolicy {
	return RetryPolicy{MaxTries: tries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func swapParams(t *testing.T) json.RawMessage {
	raw, err := json.Marshal(map[string]interface{}{"basket_id": testenv.BasketID, "amount_in": 100, "min_out": 180})
	require.NoError(t, err)
	return raw
}

func TestActionNames(t *testing.T) {
	names := ActionNames()
	assert.Len(t, names, 14)
	assert.Equal(t, "add_liquidity", names[0])
	assert.Contains(t, names, "liquidate")

	_, err := Action("rug_pull")
	assert.ErrorIs(t, err, txbuilder.ErrInvalidParams)
}

func TestBuildDecodesParams(t *testing.T) {
	env := testenv.New(t)
	s := New(env.Builder, fastPolicy(1), zaptest.NewLogger(t))

	tx, err := s.Build(context.Background(), "swap_basket_for_ada", swapParams(t))
	require.NoError(t, err)
	assert.Equal(t, "swap_basket_for_ada", tx.Action)
	assert.Equal(t, int32(0), env.Ledger.Submits.Load())

	_, err = s.Build(context.Background(), "swap_basket_for_ada", json.RawMessage(`{"basket_id":"defi-index","amount":1}`))
	assert.ErrorIs(t, err, txbuilder.ErrInvalidParams)
	assert.ErrorContains(t, err, "unknown field")
}

func TestBuildVaultActionByRef(t *testing.T) {
	env := testenv.New(t)
	s := New(env.Builder, fastPolicy(1), zaptest.NewLogger(t))

	raw, err := json.Marshal(map[string]interface{}{"vault": testenv.VaultRef.String(), "amount": 1_000_000})
	require.NoError(t, err)
	tx, err := s.Build(context.Background(), "deposit", raw)
	require.NoError(t, err)
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, testenv.VaultRef, tx.Inputs[0].UTxO.Ref)
}

func TestBuildAndSubmitRetriesStaleInput(t *testing.T) {
	env := testenv.New(t)
	env.Ledger.FailStale(2)
	s := New(env.Builder, fastPolicy(5), zaptest.NewLogger(t))

	res, err := s.BuildAndSubmit(context.Background(), "swap_basket_for_ada", swapParams(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.NotEqual(t, datum.TxID{}, res.TxID)
	assert.Equal(t, int32(3), env.Ledger.Submits.Load())

	pools, err := env.Builder.Pools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, int64(1100), pools[0].Datum.BasketReserve.Int64())
}

func TestBuildAndSubmitGivesUpAfterMaxTries(t *testing.T) {
	env := testenv.New(t)
	env.Ledger.FailStale(10)
	s := New(env.Builder, fastPolicy(2), zaptest.NewLogger(t))

	_, err := s.BuildAndSubmit(context.Background(), "swap_basket_for_ada", swapParams(t))
	assert.ErrorIs(t, err, ledger.ErrStaleInput)
	assert.Equal(t, int32(2), env.Ledger.Submits.Load())
}

func TestBuildAndSubmitDoesNotRetryBuildFailures(t *testing.T) {
	env := testenv.New(t)
	s := New(env.Builder, fastPolicy(5), zaptest.NewLogger(t))

	raw := json.RawMessage(`{"basket_id":"defi-index","amount_in":100,"min_out":500}`)
	_, err := s.BuildAndSubmit(context.Background(), "swap_basket_for_ada", raw)
	assert.ErrorIs(t, err, txbuilder.ErrSlippage)
	assert.Equal(t, int32(0), env.Ledger.Submits.Load())
}
