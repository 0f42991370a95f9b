package plutus

import "fmt"

// DecodeErrorKind classifies why structured data could not be decoded.
type DecodeErrorKind int

const (
	// Malformed covers CBOR that is not valid Plutus data.
	Malformed DecodeErrorKind = iota
	// WrongConstructor means the discriminant does not match the expected kind.
	WrongConstructor
	// WrongArity means the field count differs from the fixed schema.
	WrongArity
	// InvalidText means a text field is not valid UTF-8 or not valid hex.
	InvalidText
	// InvalidField means a field has the wrong data type or is out of range.
	InvalidField
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case WrongConstructor:
		return "wrong constructor"
	case WrongArity:
		return "wrong arity"
	case InvalidText:
		return "invalid text"
	case InvalidField:
		return "invalid field"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DecodeError reports malformed or mismatched structured data.
type DecodeError struct {
	Kind   DecodeErrorKind
	Record string // record being decoded, e.g. "VaultDatum"
	Field  string
	Want   int
	Got    int
	Err    error
}

// Sentinels for errors.Is. Matching compares the kind only.
var (
	ErrMalformed        = &DecodeError{Kind: Malformed}
	ErrWrongConstructor = &DecodeError{Kind: WrongConstructor}
	ErrWrongArity       = &DecodeError{Kind: WrongArity}
	ErrInvalidText      = &DecodeError{Kind: InvalidText}
	ErrInvalidField     = &DecodeError{Kind: InvalidField}
)

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Record != "" {
		msg += " " + e.Record
	}
	if e.Field != "" {
		msg += "." + e.Field
	}
	msg += ": " + e.Kind.String()
	switch e.Kind {
	case WrongConstructor:
		if e.Want < 0 {
			msg += fmt.Sprintf(" (unknown discriminant %d)", e.Got)
		} else {
			msg += fmt.Sprintf(" (want %d, got %d)", e.Want, e.Got)
		}
	case WrongArity:
		msg += fmt.Sprintf(" (want %d fields, got %d)", e.Want, e.Got)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DecodeError of the same kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// Within returns a copy of err annotated with the record and field it was
// found in, keeping any annotation already present.
func Within(err error, record, field string) error {
	de, ok := err.(*DecodeError)
	if !ok {
		return &DecodeError{Kind: Malformed, Record: record, Field: field, Err: err}
	}
	out := *de
	if out.Record == "" {
		out.Record = record
	}
	if out.Field == "" {
		out.Field = field
	}
	return &out
}
