package evaluator

import "fmt"

// EvalError is the failure report of the UPLC evaluator.
type EvalError struct {
	ErrorType  string   `cbor:"error_type"`
	Budget     Budget   `cbor:"budget"`
	DebugTrace []string `cbor:"debug_trace"`
}

// Budget is the execution budget consumed before a failure.
type Budget struct {
	Mem uint64 `cbor:"mem"`
	CPU uint64 `cbor:"cpu"`
}

// EvaluationError means a validator rejected the transaction.
type EvaluationError struct {
	EvalError EvalError
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %s", e.EvalError.ErrorType)
}
