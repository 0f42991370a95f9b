package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/audit"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/plutus"
	"github.com/mgpai22/equibasket/units"
	"github.com/mgpai22/equibasket/vault"
)

var (
	basketPolicy = strings.Repeat("ab", 28)
	lpPolicy     = strings.Repeat("cd", 28)
	now          = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	indexAssets  = []datum.AssetWeight{{AssetID: "BTC", Weight: 5000}, {AssetID: "ETH", Weight: 5000}}
)

const (
	oracleAddr  = "addr_test1_oracle"
	factoryAddr = "addr_test1_factory"
	vaultAddr   = "addr_test1_vault"
	poolAddr    = "addr_test1_pool"
	basketID    = "defi-index"
)

func n(v int64) *big.Int { return big.NewInt(v) }

func pkh(b byte) datum.PubKeyHash {
	var p datum.PubKeyHash
	for i := range p {
		p[i] = b
	}
	return p
}

func ref(seed byte, idx uint32) datum.OutputRef {
	var id datum.TxID
	for i := range id {
		id[i] = seed
	}
	return datum.OutputRef{TxID: id, Index: idx}
}

var (
	signer      = pkh(0x11)
	stranger    = pkh(0x22)
	oracleRef   = ref(1, 0)
	basketRef   = ref(2, 0)
	vaultRef    = ref(3, 0)
	underwater  = ref(3, 1)
	poolRef     = ref(4, 0)
	ethBasketID = "eth-only"
)

// countingLedger counts submissions that reach the snapshot.
type countingLedger struct {
	*ledger.Snapshot
	submits atomic.Int32
}

func (c *countingLedger) Submit(ctx context.Context, tx *ledger.UnsignedTx, s ledger.SignerContext) (datum.TxID, error) {
	c.submits.Add(1)
	return c.Snapshot.Submit(ctx, tx, s)
}

type fixture struct {
	b      *Builder
	ledger *countingLedger
	audit  *audit.Recorder
}

func encode(t *testing.T, r datum.Record) ledger.CBOR {
	b, err := datum.Encode(r)
	require.NoError(t, err)
	return b
}

func testConfig(who datum.PubKeyHash) Config {
	cfg := DefaultConfig()
	cfg.Scripts = Scripts{
		OracleAddress:        oracleAddr,
		BasketFactoryAddress: factoryAddr,
		VaultAddress:         vaultAddr,
		PoolAddress:          poolAddr,
		BasketTokenPolicyID:  basketPolicy,
		LpTokenPolicyID:      lpPolicy,
	}
	cfg.Signer = ledger.SignerContext{Address: "addr_test1_wallet", PubKeyHash: who}
	return cfg
}

func seed(t *testing.T) []ledger.UTxO {
	token, err := asset.BasketToken(basketPolicy, basketID)
	require.NoError(t, err)
	minAda := n(DefaultMinLovelace)

	oracle := datum.OracleDatum{
		Prices: []datum.AssetPrice{
			{AssetID: "BTC", Price: n(50000_000000)},
			{AssetID: "ETH", Price: n(3000_000000)},
			{AssetID: "ADA", Price: n(500_000)},
		},
		LastUpdated: now.Add(-time.Hour).UnixMilli(),
		Admin:       stranger,
	}
	basket := datum.BasketDatum{BasketID: basketID, Name: "DeFi Index", Assets: indexAssets, Creator: signer, CreatedAt: 1}
	ethBasket := datum.BasketDatum{BasketID: ethBasketID, Name: "ETH", Assets: []datum.AssetWeight{{AssetID: "ETH", Weight: 10000}}, Creator: stranger, CreatedAt: 1}
	healthy := datum.VaultDatum{Owner: signer, BasketID: basketID, CollateralAda: n(10_000_000), MintedTokens: n(0), CreatedAt: 1}
	sunk := datum.VaultDatum{Owner: stranger, BasketID: basketID, CollateralAda: n(10_000_000), MintedTokens: n(200), CreatedAt: 1}
	pool := datum.PoolDatum{BasketID: basketID, BasketReserve: n(1000), AdaReserve: n(2000), LpTokenSupply: n(1414), CreatedAt: 1}

	return []ledger.UTxO{
		{Ref: oracleRef, Address: oracleAddr, Value: ledger.Lovelace(minAda), Datum: encode(t, oracle)},
		{Ref: basketRef, Address: factoryAddr, Value: ledger.Lovelace(minAda), Datum: encode(t, basket)},
		{Ref: ref(2, 1), Address: factoryAddr, Value: ledger.Lovelace(minAda), Datum: encode(t, ethBasket)},
		{Ref: vaultRef, Address: vaultAddr, Value: ledger.Lovelace(n(10_000_000)), Datum: encode(t, healthy)},
		{Ref: underwater, Address: vaultAddr, Value: ledger.Lovelace(n(10_000_000)), Datum: encode(t, sunk)},
		{Ref: poolRef, Address: poolAddr, Value: ledger.Lovelace(n(5_002_000)).WithAsset(token, n(1000)), Datum: encode(t, pool)},
	}
}

func newFixture(t *testing.T, who datum.PubKeyHash, extra ...ledger.UTxO) *fixture {
	logger := zaptest.NewLogger(t)
	l := &countingLedger{Snapshot: ledger.NewSnapshot(logger, append(seed(t), extra...)...)}
	rec := audit.NewRecorder(logger, audit.WithClock(func() time.Time { return now }))
	var seq atomic.Int32
	b, err := New(testConfig(who), l, rec, logger,
		WithClock(func() time.Time { return now }),
		WithRequestIDs(func() string { return fmt.Sprintf("req-%d", seq.Add(1)) }),
	)
	require.NoError(t, err)
	return &fixture{b: b, ledger: l, audit: rec}
}

func (f *fixture) stages(requestID string) []string {
	var out []string
	for _, e := range f.audit.Entries() {
		if e.RequestID == requestID {
			out = append(out, e.Stage)
		}
	}
	return out
}

func requireStage(t *testing.T, err error, stage string) *BuildError {
	t.Helper()
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, stage, be.Stage)
	return be
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig(signer)
	cfg.Scripts.PoolAddress = ""
	_, err := New(cfg, ledger.NewSnapshot(zaptest.NewLogger(t)), audit.NewRecorder(zaptest.NewLogger(t)), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "script addresses")

	cfg = testConfig(signer)
	cfg.Scripts.LpTokenPolicyID = "zz"
	_, err = New(cfg, ledger.NewSnapshot(zaptest.NewLogger(t)), audit.NewRecorder(zaptest.NewLogger(t)), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "lp token policy")
}

func TestBuildSwapBasketForAda(t *testing.T) {
	f := newFixture(t, signer)
	tx, err := f.b.BuildSwapBasketForAda(context.Background(), SwapParams{BasketID: basketID, AmountIn: n(100), MinOut: n(182)})
	require.NoError(t, err)

	assert.Equal(t, "swap_basket_for_ada", tx.Action)
	assert.Equal(t, now.Add(15*time.Minute), tx.ValidTo)
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, poolRef, tx.Inputs[0].UTxO.Ref)

	red, err := datum.DecodePoolRedeemer(tx.Inputs[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.SwapBasketForAda{BasketIn: n(100), MinAdaOut: n(182)}, red)

	require.Len(t, tx.Outputs, 1)
	out := tx.Outputs[0]
	assert.Equal(t, poolAddr, out.Address)
	pool, err := datum.DecodePoolDatum(out.Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), pool.BasketReserve.Int64())
	assert.Equal(t, int64(1818), pool.AdaReserve.Int64())
	assert.Equal(t, int64(1414), pool.LpTokenSupply.Int64())
	assert.Equal(t, int64(5_001_818), out.Value.Lovelace.Int64())

	token, err := asset.BasketToken(basketPolicy, basketID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), out.Value.AmountOf(token).Int64())
	assert.Empty(t, tx.Mints)

	assert.Equal(t,
		[]string{StageValidate, StageQuery, StageDecode, StageCompute, StageCompute, StageEncode, StageAssemble},
		f.stages(tx.RequestID))
}

func TestBuildSwapAdaForBasket(t *testing.T) {
	f := newFixture(t, signer)
	tx, err := f.b.BuildSwapAdaForBasket(context.Background(), SwapParams{BasketID: basketID, AmountIn: n(200)})
	require.NoError(t, err)

	pool, err := datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	// floor(2_000_000 / 2200) basket units stay in the pool
	assert.Equal(t, int64(909), pool.BasketReserve.Int64())
	assert.Equal(t, int64(2200), pool.AdaReserve.Int64())
}

func TestSwapSlippage(t *testing.T) {
	f := newFixture(t, signer)
	_, err := f.b.BuildSwapBasketForAda(context.Background(), SwapParams{BasketID: basketID, AmountIn: n(100), MinOut: n(183)})
	requireStage(t, err, StageCompute)

	var se *SlippageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(182), se.Got.Int64())
	assert.Equal(t, int64(183), se.Min.Int64())
	assert.ErrorIs(t, err, ErrSlippage)
	assert.Zero(t, f.ledger.submits.Load())
}

func TestSwapUnknownPool(t *testing.T) {
	f := newFixture(t, signer)
	_, err := f.b.BuildSwapAdaForBasket(context.Background(), SwapParams{BasketID: "nope", AmountIn: n(1)})
	requireStage(t, err, StageQuery)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, `swap_ada_for_basket failed at query: pool "nope" not found`)
}

func TestSwapRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, signer)
	for _, amt := range []*big.Int{nil, n(0), n(-5)} {
		_, err := f.b.BuildSwapBasketForAda(context.Background(), SwapParams{BasketID: basketID, AmountIn: amt})
		requireStage(t, err, StageValidate)
		assert.ErrorIs(t, err, ErrInvalidParams)
	}
}

func TestMintRejectedWhenUnhealthy(t *testing.T) {
	f := newFixture(t, signer)
	tx, err := f.b.BuildMint(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(200)})
	require.Nil(t, tx)
	requireStage(t, err, StageCompute)

	var he *vault.HealthError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, int64(5_000_000), he.Collateral.Int64())
	assert.Equal(t, int64(5_300_000), he.Minted.Int64())

	stages := f.stages("req-1")
	assert.NotContains(t, stages, StageEncode)
	assert.NotContains(t, stages, StageAssemble)
	assert.Zero(t, f.ledger.submits.Load())

	last := f.audit.Entries()[len(f.audit.Entries())-1]
	assert.Equal(t, audit.LevelError, last.Level)
}

func TestMintAtHealthLimit(t *testing.T) {
	f := newFixture(t, signer)

	// 125 units are worth 3_312_500, within 5_000_000 / 1.5. 126 are not.
	_, err := f.b.BuildMint(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(126)})
	require.ErrorIs(t, err, vault.ErrUnhealthy)

	tx, err := f.b.BuildMint(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(125)})
	require.NoError(t, err)

	assert.ElementsMatch(t, []datum.OutputRef{oracleRef, basketRef}, []datum.OutputRef{tx.ReferenceInputs[0].Ref, tx.ReferenceInputs[1].Ref})
	v, err := datum.DecodeVaultDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(125), v.MintedTokens.Int64())
	assert.Equal(t, int64(10_000_000), v.CollateralAda.Int64())
	assert.Equal(t, signer, v.Owner)

	require.Len(t, tx.Mints, 1)
	m := tx.Mints[0]
	assert.Equal(t, basketPolicy, m.PolicyID)
	assert.Equal(t, int64(125), m.Assets[asset.FromText(basketID)].Int64())
	red, err := datum.DecodeBasketTokenRedeemer(m.Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.MintTokens{Ref: vaultRef}, red)

	vr, err := datum.DecodeVaultRedeemer(tx.Inputs[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.Mint{Amount: n(125)}, vr)
}

func TestVaultActionsRequireOwner(t *testing.T) {
	f := newFixture(t, stranger)
	_, err := f.b.BuildDeposit(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(1_000_000)})
	requireStage(t, err, StageDecode)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, signer)
	tx, err := f.b.BuildDeposit(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(2_000_000)})
	require.NoError(t, err)
	assert.Equal(t, int64(12_000_000), tx.Outputs[0].Value.Lovelace.Int64())
	assert.Empty(t, tx.Mints)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildWithdraw(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(10_000_001)})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = f.b.BuildWithdraw(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(6_000_000)})
	assert.ErrorContains(t, err, "below the minimum output value")

	tx, err := f.b.BuildWithdraw(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(4_000_000)})
	require.NoError(t, err)
	assert.Equal(t, int64(6_000_000), tx.Outputs[0].Value.Lovelace.Int64())

	tx, err = f.b.BuildWithdraw(context.Background(), VaultAmountParams{Vault: vaultRef, Amount: n(10_000_000)})
	require.NoError(t, err)
	assert.Empty(t, tx.Outputs, "full withdrawal closes the vault")
	require.Len(t, tx.Inputs, 1)
	red, err := datum.DecodeVaultRedeemer(tx.Inputs[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.Withdraw{Amount: n(10_000_000)}, red)
}

func TestBurn(t *testing.T) {
	f := newFixture(t, stranger)

	_, err := f.b.BuildBurn(context.Background(), VaultAmountParams{Vault: underwater, Amount: n(201)})
	requireStage(t, err, StageCompute)
	assert.ErrorIs(t, err, ErrInvalidParams)

	tx, err := f.b.BuildBurn(context.Background(), VaultAmountParams{Vault: underwater, Amount: n(50)})
	require.NoError(t, err)
	require.Len(t, tx.Mints, 1)
	assert.Equal(t, int64(-50), tx.Mints[0].Assets[asset.FromText(basketID)].Int64())
	red, err := datum.DecodeBasketTokenRedeemer(tx.Mints[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.BurnTokens{Ref: underwater}, red)

	v, err := datum.DecodeVaultDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(150), v.MintedTokens.Int64())
}

func TestLiquidate(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildLiquidate(context.Background(), LiquidateParams{Vault: vaultRef})
	requireStage(t, err, StageCompute)
	assert.ErrorIs(t, err, ErrVaultHealthy)

	tx, err := f.b.BuildLiquidate(context.Background(), LiquidateParams{Vault: underwater})
	require.NoError(t, err)
	assert.Empty(t, tx.Outputs)
	require.Len(t, tx.Mints, 1)
	assert.Equal(t, int64(-200), tx.Mints[0].Assets[asset.FromText(basketID)].Int64())

	red, err := datum.DecodeVaultRedeemer(tx.Inputs[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.Liquidate{}, red)
}

func TestOpenVault(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildOpenVault(context.Background(), OpenVaultParams{BasketID: basketID, Collateral: n(1_000_000)})
	requireStage(t, err, StageValidate)

	_, err = f.b.BuildOpenVault(context.Background(), OpenVaultParams{BasketID: "missing", Collateral: n(20_000_000)})
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err := f.b.BuildOpenVault(context.Background(), OpenVaultParams{BasketID: basketID, Collateral: n(20_000_000)})
	require.NoError(t, err)
	v, err := datum.DecodeVaultDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.True(t, v.Equal(datum.VaultDatum{
		Owner:         signer,
		BasketID:      basketID,
		CollateralAda: n(20_000_000),
		MintedTokens:  n(0),
		CreatedAt:     now.UnixMilli(),
	}))
	assert.Equal(t, int64(20_000_000), tx.Outputs[0].Value.Lovelace.Int64())
}

func TestCreateBasket(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildCreateBasket(context.Background(), CreateBasketParams{
		BasketID: "lopsided",
		Assets:   []datum.AssetWeight{{AssetID: "BTC", Weight: 6000}, {AssetID: "ETH", Weight: 3000}},
	})
	requireStage(t, err, StageValidate)
	var we *datum.WeightError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, int64(9000), we.Sum)

	_, err = f.b.BuildCreateBasket(context.Background(), CreateBasketParams{BasketID: basketID, Assets: indexAssets})
	requireStage(t, err, StageQuery)
	assert.ErrorIs(t, err, ErrExists)

	tx, err := f.b.BuildCreateBasket(context.Background(), CreateBasketParams{BasketID: "l1", Name: "Layer 1", Assets: indexAssets})
	require.NoError(t, err)
	require.Len(t, tx.Outputs, 1)
	assert.Equal(t, factoryAddr, tx.Outputs[0].Address)
	assert.Equal(t, int64(DefaultMinLovelace), tx.Outputs[0].Value.Lovelace.Int64())
	d, err := datum.DecodeBasketDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, signer, d.Creator)
	assert.Equal(t, indexAssets, d.Assets)
	assert.Equal(t, []datum.PubKeyHash{signer}, tx.RequiredSigners)
}

func TestUpdateBasket(t *testing.T) {
	weights := []datum.AssetWeight{{AssetID: "BTC", Weight: 7000}, {AssetID: "ETH", Weight: 3000}}

	f := newFixture(t, stranger)
	_, err := f.b.BuildUpdateBasket(context.Background(), UpdateBasketParams{BasketID: basketID, Assets: weights})
	assert.ErrorIs(t, err, ErrNotOwner)

	f = newFixture(t, signer)
	tx, err := f.b.BuildUpdateBasket(context.Background(), UpdateBasketParams{BasketID: basketID, Assets: weights})
	require.NoError(t, err)
	assert.Equal(t, basketRef, tx.Inputs[0].UTxO.Ref)

	d, err := datum.DecodeBasketDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, weights, d.Assets)
	assert.Equal(t, "DeFi Index", d.Name)
	assert.Equal(t, int64(1), d.CreatedAt)

	red, err := datum.DecodeBasketRedeemer(tx.Inputs[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.UpdateBasket{Weights: weights}, red)
}

func TestPublishOracle(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildPublishOracle(context.Background(), PublishOracleParams{Prices: []datum.AssetPrice{
		{AssetID: "BTC", Price: n(1)}, {AssetID: "BTC", Price: n(2)},
	}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	tx, err := f.b.BuildPublishOracle(context.Background(), PublishOracleParams{Prices: []datum.AssetPrice{
		{AssetID: "ADA", Price: n(450_000)},
	}})
	require.NoError(t, err)
	o, err := datum.DecodeOracleDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), o.LastUpdated)
	assert.Equal(t, signer, o.Admin)
	assert.Empty(t, tx.Inputs)
}

func TestCreatePool(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildCreatePool(context.Background(), CreatePoolParams{BasketID: basketID, BasketAmount: n(10), AdaAmount: n(10)})
	assert.ErrorIs(t, err, ErrExists)

	tx, err := f.b.BuildCreatePool(context.Background(), CreatePoolParams{BasketID: ethBasketID, BasketAmount: n(1000), AdaAmount: n(2000)})
	require.NoError(t, err)
	assert.Equal(t, ref(2, 1), tx.ReferenceInputs[0].Ref)

	pool, err := datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(1414), pool.LpTokenSupply.Int64())

	require.Len(t, tx.Mints, 1)
	assert.Equal(t, lpPolicy, tx.Mints[0].PolicyID)
	assert.Equal(t, int64(1414), tx.Mints[0].Assets[asset.FromText(ethBasketID)].Int64())
	red, err := datum.DecodeLpTokenRedeemer(tx.Mints[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.MintLpTokens{PoolRef: ref(2, 1)}, red)

	tx, err = f.b.BuildCreatePool(context.Background(), CreatePoolParams{BasketID: ethBasketID, BasketAmount: n(1000), AdaAmount: n(2000), InitialLp: n(5)})
	require.NoError(t, err)
	pool, err = datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pool.LpTokenSupply.Int64())
}

func TestAddAndRemoveLiquidity(t *testing.T) {
	f := newFixture(t, signer)

	_, err := f.b.BuildAddLiquidity(context.Background(), AddLiquidityParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200), MinLp: n(142)})
	assert.ErrorIs(t, err, ErrSlippage)

	tx, err := f.b.BuildAddLiquidity(context.Background(), AddLiquidityParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200), MinLp: n(141)})
	require.NoError(t, err)
	pool, err := datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), pool.BasketReserve.Int64())
	assert.Equal(t, int64(2200), pool.AdaReserve.Int64())
	assert.Equal(t, int64(1555), pool.LpTokenSupply.Int64())
	assert.Equal(t, int64(141), tx.Mints[0].Assets[asset.FromText(basketID)].Int64())

	tx, err = f.b.BuildRemoveLiquidity(context.Background(), RemoveLiquidityParams{BasketID: basketID, LpTokens: n(707), MinBasket: n(500), MinAda: n(1000)})
	require.NoError(t, err)
	pool, err = datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pool.BasketReserve.Int64())
	assert.Equal(t, int64(1000), pool.AdaReserve.Int64())
	assert.Equal(t, int64(707), pool.LpTokenSupply.Int64())
	assert.Equal(t, int64(-707), tx.Mints[0].Assets[asset.FromText(basketID)].Int64())
	red, err := datum.DecodeLpTokenRedeemer(tx.Mints[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.BurnLpTokens{PoolRef: poolRef}, red)

	_, err = f.b.BuildRemoveLiquidity(context.Background(), RemoveLiquidityParams{BasketID: basketID, LpTokens: n(1415)})
	requireStage(t, err, StageCompute)
}

func TestAddLiquidityReseedsDrainedPool(t *testing.T) {
	f := newFixture(t, signer)
	ctx := context.Background()

	tx, err := f.b.BuildRemoveLiquidity(ctx, RemoveLiquidityParams{BasketID: basketID, LpTokens: n(1414)})
	require.NoError(t, err)
	assert.Len(t, tx.Outputs[0].Value.Assets, 0)
	id, err := f.b.Submit(ctx, tx)
	require.NoError(t, err)
	drained := datum.OutputRef{TxID: id, Index: 0}

	_, err = f.b.BuildCreatePool(ctx, CreatePoolParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200)})
	assert.ErrorIs(t, err, ErrExists)

	lq, err := f.b.QuoteLiquidity(ctx, basketID, n(100), n(200), units.Slippage{})
	require.NoError(t, err)
	assert.Equal(t, int64(141), lq.LpTokens.Int64())

	_, err = f.b.BuildAddLiquidity(ctx, AddLiquidityParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200), MinLp: n(142)})
	assert.ErrorIs(t, err, ErrSlippage)

	tx, err = f.b.BuildAddLiquidity(ctx, AddLiquidityParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200), MinLp: n(141)})
	require.NoError(t, err)
	assert.Equal(t, drained, tx.Inputs[0].UTxO.Ref)
	pool, err := datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pool.BasketReserve.Int64())
	assert.Equal(t, int64(200), pool.AdaReserve.Int64())
	assert.Equal(t, int64(141), pool.LpTokenSupply.Int64())
	assert.Equal(t, int64(141), tx.Mints[0].Assets[asset.FromText(basketID)].Int64())
	red, err := datum.DecodeLpTokenRedeemer(tx.Mints[0].Redeemer)
	require.NoError(t, err)
	assert.Equal(t, datum.MintLpTokens{PoolRef: drained}, red)

	tx, err = f.b.BuildAddLiquidity(ctx, AddLiquidityParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200), InitialLp: n(7)})
	require.NoError(t, err)
	pool, err = datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pool.LpTokenSupply.Int64())

	_, err = f.b.BuildAddLiquidity(ctx, AddLiquidityParams{BasketID: basketID, BasketAmount: n(100), AdaAmount: n(200), InitialLp: n(0)})
	requireStage(t, err, StageValidate)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestSubmitAndStaleRebuild(t *testing.T) {
	f := newFixture(t, signer)
	ctx := context.Background()

	tx, err := f.b.BuildSwapBasketForAda(ctx, SwapParams{BasketID: basketID, AmountIn: n(100)})
	require.NoError(t, err)
	id, err := f.b.Submit(ctx, tx)
	require.NoError(t, err)

	_, err = f.b.Submit(ctx, tx)
	requireStage(t, err, StageSubmit)
	assert.ErrorIs(t, err, ledger.ErrStaleInput)
	assert.Equal(t, int32(2), f.ledger.submits.Load())

	// A rebuild reads the pool output the first swap created.
	tx, err = f.b.BuildSwapBasketForAda(ctx, SwapParams{BasketID: basketID, AmountIn: n(100)})
	require.NoError(t, err)
	assert.Equal(t, datum.OutputRef{TxID: id, Index: 0}, tx.Inputs[0].UTxO.Ref)
	pool, err := datum.DecodePoolDatum(tx.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), pool.BasketReserve.Int64())
}

func TestSubmitExpired(t *testing.T) {
	f := newFixture(t, signer)
	tx, err := f.b.BuildSwapBasketForAda(context.Background(), SwapParams{BasketID: basketID, AmountIn: n(100)})
	require.NoError(t, err)
	tx.ValidTo = now.Add(-time.Second)
	_, err = f.b.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Zero(t, f.ledger.submits.Load())
}

func TestSubmitNilTransaction(t *testing.T) {
	f := newFixture(t, signer)
	_, err := f.b.Submit(context.Background(), nil)
	requireStage(t, err, StageSubmit)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Zero(t, f.ledger.submits.Load())
}

func TestQueriesSkipUndecodable(t *testing.T) {
	junk := ledger.UTxO{Ref: ref(9, 0), Address: poolAddr, Value: ledger.Lovelace(n(1)), Datum: ledger.CBOR{0x01}}
	bare := ledger.UTxO{Ref: ref(9, 1), Address: poolAddr, Value: ledger.Lovelace(n(1))}
	f := newFixture(t, signer, junk, bare)

	pools, err := f.b.Pools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, poolRef, pools[0].UTxO.Ref)

	mine, err := f.b.Vaults(context.Background(), &signer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, vaultRef, mine[0].UTxO.Ref)

	all, err := f.b.Vaults(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLatestOracleWins(t *testing.T) {
	newer := datum.OracleDatum{
		Prices: []datum.AssetPrice{
			{AssetID: "BTC", Price: n(60000_000000)},
			{AssetID: "ETH", Price: n(4000_000000)},
		},
		LastUpdated: now.UnixMilli(),
		Admin:       stranger,
	}
	f := newFixture(t, signer, ledger.UTxO{Ref: ref(1, 1), Address: oracleAddr, Value: ledger.Lovelace(n(DefaultMinLovelace)), Datum: encode(t, newer)})

	q, err := f.b.QuoteBasketPrice(context.Background(), basketID)
	require.NoError(t, err)
	assert.Equal(t, int64(32000_000000), q.Price.Int64())
	assert.Equal(t, "32000", q.Usd.String())

	// The newer oracle has no ADA quote, so vault pricing fails.
	_, err = f.b.VaultHealth(context.Background(), vaultRef)
	assert.ErrorIs(t, err, vault.ErrAssetNotFound)
}

func TestOracleAdminFilter(t *testing.T) {
	forged := datum.OracleDatum{
		Prices: []datum.AssetPrice{
			{AssetID: "BTC", Price: n(1)},
			{AssetID: "ETH", Price: n(1)},
			{AssetID: "ADA", Price: n(1)},
		},
		LastUpdated: now.UnixMilli(),
		Admin:       pkh(0x33),
	}
	f := newFixture(t, signer, ledger.UTxO{Ref: ref(1, 1), Address: oracleAddr, Value: ledger.Lovelace(n(DefaultMinLovelace)), Datum: encode(t, forged)})

	q, err := f.b.QuoteBasketPrice(context.Background(), basketID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.Price.Int64())

	admin := stranger
	f.b.cfg.OracleAdmin = &admin
	q, err = f.b.QuoteBasketPrice(context.Background(), basketID)
	require.NoError(t, err)
	assert.Equal(t, int64(26500_000000), q.Price.Int64())

	other := pkh(0x44)
	f.b.cfg.OracleAdmin = &other
	_, err = f.b.QuoteBasketPrice(context.Background(), basketID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuotes(t *testing.T) {
	f := newFixture(t, signer)
	ctx := context.Background()

	q, err := f.b.QuoteSwap(ctx, basketID, n(100), true, units.Slippage{Type: units.SlippagePercent, Value: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(182), q.AmountOut.Int64())
	assert.Equal(t, int64(180), q.MinOut.Int64())
	assert.Equal(t, int64(2_000_000), q.SpotPrice.Int64())

	lq, err := f.b.QuoteLiquidity(ctx, basketID, n(100), n(200), units.Slippage{})
	require.NoError(t, err)
	assert.Equal(t, int64(141), lq.LpTokens.Int64())
	assert.Zero(t, lq.MinLp.Sign())

	bq, err := f.b.QuoteBasketPrice(ctx, basketID)
	require.NoError(t, err)
	assert.Equal(t, int64(26500_000000), bq.Price.Int64())

	h, err := f.b.VaultHealth(ctx, underwater)
	require.NoError(t, err)
	assert.False(t, h.Healthy)
	assert.Equal(t, "94.33%", h.Ratio.String())
}

func TestMalformedPoolIsSkipped(t *testing.T) {
	// A wrong constructor leaves the basket looking pool-less rather than
	// failing the whole query.
	bad := plutus.NewConstr(1, plutus.Text(ethBasketID))
	raw, err := plutus.Encode(bad)
	require.NoError(t, err)
	f := newFixture(t, signer, ledger.UTxO{Ref: ref(9, 0), Address: poolAddr, Value: ledger.Lovelace(n(1)), Datum: raw})

	_, err = f.b.BuildSwapBasketForAda(context.Background(), SwapParams{BasketID: ethBasketID, AmountIn: n(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}
