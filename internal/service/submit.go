package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/txbuilder"
)

// RetryPolicy bounds how often a stale build is rebuilt and resubmitted.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}
}

// Result is a submitted transaction with the build that produced it.
type Result struct {
	TxID     datum.TxID         `json:"tx_id"`
	Tx       *ledger.UnsignedTx `json:"tx"`
	Attempts int                `json:"attempts"`
}

// Service runs named actions against one builder.
type Service struct {
	builder *txbuilder.Builder
	policy  RetryPolicy
	logger  *zap.Logger
}

func New(b *txbuilder.Builder, policy RetryPolicy, logger *zap.Logger) *Service {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	return &Service{builder: b, policy: policy, logger: logger.Named("service")}
}

func (s *Service) Builder() *txbuilder.Builder {
	return s.builder
}

// Build builds action without submitting it.
func (s *Service) Build(ctx context.Context, action string, params json.RawMessage) (*ledger.UnsignedTx, error) {
	fn, err := Action(action)
	if err != nil {
		return nil, err
	}
	return fn(ctx, s.builder, params)
}

// BuildAndSubmit builds and submits action. A submission rejected for a
// stale input is rebuilt from fresh state and retried; every other
// failure is returned at once.
func (s *Service) BuildAndSubmit(ctx context.Context, action string, params json.RawMessage) (*Result, error) {
	fn, err := Action(action)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.policy.InitialInterval
	policy.MaxInterval = s.policy.MaxInterval

	attempts := 0
	operation := func() (*Result, error) {
		attempts++
		tx, err := fn(ctx, s.builder, params)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		id, err := s.builder.Submit(ctx, tx)
		if err != nil {
			if errors.Is(err, ledger.ErrStaleInput) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return &Result{TxID: id, Tx: tx, Attempts: attempts}, nil
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Info("Rebuilding after stale input",
			zap.String("action", action),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.policy.MaxTries),
		backoff.WithNotify(notify))
	if err != nil {
		s.logger.Error("Action failed", zap.String("action", action), zap.Int("attempts", attempts), zap.Error(err))
		return nil, err
	}
	return res, nil
}
