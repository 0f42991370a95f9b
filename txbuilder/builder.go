// Package txbuilder assembles unsigned protocol transactions. Every build
// reads a ledger snapshot, decodes the current records, computes the next
// state, re-encodes it and returns the transaction, or fails without side
// effects.
package txbuilder

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/asset"
	"github.com/mgpai22/equibasket/audit"
	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
)

// Builder assembles transactions for one signer. It is safe for
// concurrent use.
type Builder struct {
	cfg     Config
	ledger  ledger.Ledger
	audit   audit.Log
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
	baskets *lru.Cache[datum.OutputRef, datum.BasketDatum]
}

// Option configures a Builder.
type Option func(*options)

type options struct {
	now       func() time.Time
	newID     func() string
	cacheSize int
}

// WithClock replaces time.Now for timestamps and validity bounds.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRequestIDs replaces the uuid generator for audit request ids.
func WithRequestIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithBasketCacheSize bounds the cache of decoded basket records. Basket
// outputs never change in place, so entries keyed by output never go stale.
func WithBasketCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// New creates a Builder. The audit log is shared with whoever else holds it.
func New(cfg Config, l ledger.Ledger, log audit.Log, logger *zap.Logger, opts ...Option) (*Builder, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid builder config: %w", err)
	}
	if l == nil || log == nil {
		return nil, fmt.Errorf("ledger and audit log are required")
	}
	o := options{now: time.Now, newID: uuid.NewString, cacheSize: 256}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[datum.OutputRef, datum.BasketDatum](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create basket cache: %w", err)
	}
	return &Builder{
		cfg:     cfg,
		ledger:  l,
		audit:   log,
		logger:  logger.Named("txbuilder"),
		now:     o.now,
		newID:   o.newID,
		baskets: cache,
	}, nil
}

// Config returns the builder configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// run tracks one build through its stages, auditing each transition.
type run struct {
	b      *Builder
	action string
	id     string
	stage  string
	logger *zap.Logger
}

func (b *Builder) start(action string, fields map[string]interface{}) *run {
	r := &run{b: b, action: action, id: b.newID()}
	r.logger = b.logger.With(zap.String("action", action), zap.String("request_id", r.id))
	r.enter(StageValidate, "build started", fields)
	return r
}

func (r *run) enter(stage, msg string, fields map[string]interface{}) {
	r.stage = stage
	r.record(audit.LevelInfo, msg, fields)
}

func (r *run) record(level audit.Level, msg string, fields map[string]interface{}) {
	err := r.b.audit.Append(audit.Entry{
		Level:     level,
		RequestID: r.id,
		Action:    r.action,
		Stage:     r.stage,
		Message:   msg,
		Fields:    fields,
	})
	if err != nil {
		r.logger.Warn("Failed to append audit entry", zap.String("stage", r.stage), zap.Error(err))
	}
}

func (r *run) fail(err error) error {
	r.record(audit.LevelError, err.Error(), nil)
	r.logger.Info("Build failed", zap.String("stage", r.stage), zap.Error(err))
	return &BuildError{Action: r.action, Stage: r.stage, Err: err}
}

func (r *run) done(tx *ledger.UnsignedTx) (*ledger.UnsignedTx, error) {
	r.stage = StageAssemble
	tx.Action = r.action
	tx.RequestID = r.id
	tx.ValidTo = r.b.now().Add(r.b.cfg.Validity)
	r.record(audit.LevelInfo, "transaction assembled", map[string]interface{}{
		"inputs":  len(tx.Inputs),
		"outputs": len(tx.Outputs),
		"mints":   len(tx.Mints),
	})
	return tx, nil
}

// encode runs the encode stage for an output datum and redeemers.
func (r *run) encode(records ...datum.Record) ([]ledger.CBOR, error) {
	r.enter(StageEncode, "encoding records", nil)
	out := make([]ledger.CBOR, len(records))
	for i, rec := range records {
		b, err := datum.Encode(rec)
		if err != nil {
			return nil, r.fail(fmt.Errorf("encode %T: %w", rec, err))
		}
		out[i] = b
	}
	return out, nil
}

func (b *Builder) timestamp() int64 {
	return b.now().UnixMilli()
}

func (b *Builder) basketToken(basketID string) (asset.Unit, error) {
	return asset.BasketToken(b.cfg.Scripts.BasketTokenPolicyID, basketID)
}

func (b *Builder) lpToken(basketID string) (asset.Unit, error) {
	return asset.BasketToken(b.cfg.Scripts.LpTokenPolicyID, basketID)
}

func (b *Builder) minValue() ledger.Value {
	return ledger.Lovelace(b.cfg.MinLovelace)
}

func (b *Builder) signers() []datum.PubKeyHash {
	return []datum.PubKeyHash{b.cfg.Signer.PubKeyHash}
}

func mintOf(unit asset.Unit, qty *big.Int, redeemer ledger.CBOR) ledger.Mint {
	return ledger.Mint{
		PolicyID: unit.PolicyID,
		Assets:   map[string]*big.Int{unit.AssetName: new(big.Int).Set(qty)},
		Redeemer: redeemer,
	}
}

func requirePositive(field string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return invalidf("%s must be positive", field)
	}
	return nil
}

func requireNonNegative(field string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return invalidf("%s must not be negative", field)
	}
	return nil
}

func add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }
func sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }
