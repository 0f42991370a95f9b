package txbuilder

import (
	"errors"
	"fmt"
	"math/big"
)

// Stages of a build, in pipeline order.
const (
	StageValidate = "validate"
	StageQuery    = "query"
	StageDecode   = "decode"
	StageCompute  = "compute"
	StageEncode   = "encode"
	StageAssemble = "assemble"
	StageSubmit   = "submit"
)

// BuildError wraps any failure of a build with the action and the stage
// that failed. The typed cause is reachable with errors.As.
type BuildError struct {
	Action string
	Stage  string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Action, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// SlippageError reports a computed output below the caller's minimum.
type SlippageError struct {
	What string
	Min  *big.Int
	Got  *big.Int
}

// ErrSlippage matches any SlippageError.
var ErrSlippage = &SlippageError{}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("%s of %s is below the minimum %s", e.What, e.Got, e.Min)
}

func (e *SlippageError) Is(target error) bool {
	_, ok := target.(*SlippageError)
	return ok
}

// NotFoundError reports protocol state missing from the ledger snapshot.
type NotFoundError struct {
	Kind string
	Key  string
}

// ErrNotFound matches any NotFoundError.
var ErrNotFound = &NotFoundError{}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return "no " + e.Kind + " found"
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

var (
	ErrInvalidParams = errors.New("invalid parameters")
	ErrNotOwner      = errors.New("signer does not own this record")
	ErrExists        = errors.New("already exists")
	ErrVaultHealthy  = errors.New("vault is healthy and cannot be liquidated")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
