// Package testenv seeds an in-memory protocol deployment for tests of the
// outer surfaces.
package testenv

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/audit"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/txbuilder"
)

const (
	OracleAddress  = "addr_test1_oracle"
	FactoryAddress = "addr_test1_factory"
	VaultAddress   = "addr_test1_vault"
	PoolAddress    = "addr_test1_pool"
	WalletAddress  = "addr_test1_wallet"
	BasketID       = "defi-index"
)

var (
	BasketPolicy = strings.Repeat("ab", 28)
	LpPolicy     = strings.Repeat("cd", 28)
	Now          = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	Signer   = KeyHash(0x11)
	Stranger = KeyHash(0x22)

	OracleRef     = Ref(1, 0)
	BasketRef     = Ref(2, 0)
	VaultRef      = Ref(3, 0)
	UnderwaterRef = Ref(3, 1)
	PoolRef       = Ref(4, 0)
)

func KeyHash(b byte) datum.PubKeyHash {
	var p datum.PubKeyHash
	for i := range p {
		p[i] = b
	}
	return p
}

func Ref(seed byte, idx uint32) datum.OutputRef {
	var id datum.TxID
	for i := range id {
		id[i] = seed
	}
	return datum.OutputRef{TxID: id, Index: idx}
}

// Ledger wraps a snapshot and can reject the next submissions as stale.
type Ledger struct {
	*ledger.Snapshot

	mu      sync.Mutex
	stale   int
	Submits atomic.Int32
}

// FailStale makes the next n submissions fail with a stale input.
func (l *Ledger) FailStale(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stale = n
}

func (l *Ledger) Submit(ctx context.Context, tx *ledger.UnsignedTx, s ledger.SignerContext) (datum.TxID, error) {
	l.Submits.Add(1)
	l.mu.Lock()
	if l.stale > 0 {
		l.stale--
		l.mu.Unlock()
		refs := tx.SpentRefs()
		var ref datum.OutputRef
		if len(refs) > 0 {
			ref = refs[0]
		}
		return datum.TxID{}, &ledger.StaleInputError{Ref: ref}
	}
	l.mu.Unlock()
	return l.Snapshot.Submit(ctx, tx, s)
}

// Env is a builder over a seeded snapshot with a fixed clock.
type Env struct {
	Builder *txbuilder.Builder
	Ledger  *Ledger
	Audit   *audit.Recorder
	Config  txbuilder.Config
}

func Config(who datum.PubKeyHash) txbuilder.Config {
	cfg := txbuilder.DefaultConfig()
	cfg.Scripts = txbuilder.Scripts{
		OracleAddress:        OracleAddress,
		BasketFactoryAddress: FactoryAddress,
		VaultAddress:         VaultAddress,
		PoolAddress:          PoolAddress,
		BasketTokenPolicyID:  BasketPolicy,
		LpTokenPolicyID:      LpPolicy,
	}
	cfg.Signer = ledger.SignerContext{Address: WalletAddress, PubKeyHash: who}
	return cfg
}

// New returns an environment signed by Signer.
func New(t *testing.T) *Env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	l := &Ledger{Snapshot: ledger.NewSnapshot(logger, Seed(t)...)}
	rec := audit.NewRecorder(logger, audit.WithClock(func() time.Time { return Now }))
	cfg := Config(Signer)
	var seq atomic.Int32
	b, err := txbuilder.New(cfg, l, rec, logger,
		txbuilder.WithClock(func() time.Time { return Now }),
		txbuilder.WithRequestIDs(func() string { return fmt.Sprintf("req-%d", seq.Add(1)) }),
	)
	require.NoError(t, err)
	return &Env{Builder: b, Ledger: l, Audit: rec, Config: cfg}
}

func encode(t *testing.T, r datum.Record) ledger.CBOR {
	b, err := datum.Encode(r)
	require.NoError(t, err)
	return b
}

// Seed is one oracle, the defi-index basket, a healthy vault owned by
// Signer, an undercollateralized vault owned by Stranger and a
// 1000 basket / 2000 lovelace pool.
func Seed(t *testing.T) []ledger.UTxO {
	t.Helper()
	n := big.NewInt
	token, err := asset.BasketToken(BasketPolicy, BasketID)
	require.NoError(t, err)
	minAda := n(txbuilder.DefaultMinLovelace)

	oracle := datum.OracleDatum{
		Prices: []datum.AssetPrice{
			{AssetID: "BTC", Price: n(50000_000000)},
			{AssetID: "ETH", Price: n(3000_000000)},
			{AssetID: "ADA", Price: n(500_000)},
		},
		LastUpdated: Now.Add(-time.Hour).UnixMilli(),
		Admin:       Stranger,
	}
	basket := datum.BasketDatum{
		BasketID:  BasketID,
		Name:      "DeFi Index",
		Assets:    []datum.AssetWeight{{AssetID: "BTC", Weight: 5000}, {AssetID: "ETH", Weight: 5000}},
		Creator:   Signer,
		CreatedAt: 1,
	}
	healthy := datum.VaultDatum{Owner: Signer, BasketID: BasketID, CollateralAda: n(10_000_000), MintedTokens: n(0), CreatedAt: 1}
	sunk := datum.VaultDatum{Owner: Stranger, BasketID: BasketID, CollateralAda: n(10_000_000), MintedTokens: n(200), CreatedAt: 1}
	pool := datum.PoolDatum{BasketID: BasketID, BasketReserve: n(1000), AdaReserve: n(2000), LpTokenSupply: n(1414), CreatedAt: 1}

	return []ledger.UTxO{
		{Ref: OracleRef, Address: OracleAddress, Value: ledger.Lovelace(minAda), Datum: encode(t, oracle)},
		{Ref: BasketRef, Address: FactoryAddress, Value: ledger.Lovelace(minAda), Datum: encode(t, basket)},
		{Ref: VaultRef, Address: VaultAddress, Value: ledger.Lovelace(n(10_000_000)), Datum: encode(t, healthy)},
		{Ref: UnderwaterRef, Address: VaultAddress, Value: ledger.Lovelace(n(10_000_000)), Datum: encode(t, sunk)},
		{Ref: PoolRef, Address: PoolAddress, Value: ledger.Lovelace(n(5_002_000)).WithAsset(token, n(1000)), Datum: encode(t, pool)},
	}
}
