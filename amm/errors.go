package amm

import "fmt"

// ErrorKind classifies AMM failures.
type ErrorKind int

const (
	// ZeroReserve means a reserve the formula divides by is zero.
	ZeroReserve ErrorKind = iota
	// InvalidAmount means an input amount is zero or negative.
	InvalidAmount
	// ZeroSupply means proportional math was asked of a pool with no LP tokens.
	ZeroSupply
	// InsufficientLiquidity means the request exceeds what the pool holds.
	InsufficientLiquidity
)

func (k ErrorKind) String() string {
	switch k {
	case ZeroReserve:
		return "zero reserve"
	case InvalidAmount:
		return "invalid amount"
	case ZeroSupply:
		return "zero lp supply"
	case InsufficientLiquidity:
		return "insufficient liquidity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every engine function on degenerate input.
type Error struct {
	Kind   ErrorKind
	Detail string
}

var (
	ErrZeroReserve           = &Error{Kind: ZeroReserve}
	ErrInvalidAmount         = &Error{Kind: InvalidAmount}
	ErrZeroSupply            = &Error{Kind: ZeroSupply}
	ErrInsufficientLiquidity = &Error{Kind: InsufficientLiquidity}
)

func (e *Error) Error() string {
	if e.Detail == "" {
		return "amm: " + e.Kind.String()
	}
	return fmt.Sprintf("amm: %s: %s", e.Kind, e.Detail)
}

// Is matches any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
