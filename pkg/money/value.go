// Package money implements the exact fixed-scale decimal arithmetic used
// for every USDC and size quantity in the engine. Floats are reserved for
// IV and ratio values that never touch the ledger.
package money

import (
	"github.com/shopspring/decimal"
)

// Value wraps shopspring/decimal behind a small Add/Sub/Mul/Div/Compare/Sign
// API, while the wire format stays a fixed 2-decimal-place string for USDC
// fields.
type Value struct {
	d decimal.Decimal
}

var (
	Zero = Value{d: decimal.Zero}
	One  = Value{d: decimal.New(1, 0)}
	Two  = Value{d: decimal.New(2, 0)}
)

// NewFromFloat builds a Value from a float64. Only used at the boundary
// (config parsing, IV-derived quantities); arithmetic afterwards stays exact.
func NewFromFloat(f float64) Value {
	return Value{d: decimal.NewFromFloat(f)}
}

// NewFromInt builds a Value from an int64.
func NewFromInt(i int64) Value {
	return Value{d: decimal.NewFromInt(i)}
}

// NewFromString parses a decimal literal; used for wire-format round trips.
func NewFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Value{d: d}, nil
}

func (v Value) Add(o Value) Value { return Value{d: v.d.Add(o.d)} }
func (v Value) Sub(o Value) Value { return Value{d: v.d.Sub(o.d)} }
func (v Value) Mul(o Value) Value { return Value{d: v.d.Mul(o.d)} }

// Div returns zero instead of panicking on division by zero: the spec
// reduces any unrecoverable arithmetic (division by zero, non-finite) to
// no_quote rather than a crash, so division failures must be observable by
// the caller through IsZero()/Sign() rather than a panic.
func (v Value) Div(o Value) Value {
	if o.d.IsZero() {
		return Zero
	}
	return Value{d: v.d.Div(o.d)}
}

func (v Value) Neg() Value { return Value{d: v.d.Neg()} }
func (v Value) Abs() Value { return Value{d: v.d.Abs()} }

func (v Value) IsZero() bool { return v.d.IsZero() }
func (v Value) Sign() int    { return v.d.Sign() }

// Compare returns -1, 0, or 1 the way decimal.Decimal.Compare does.
func (v Value) Compare(o Value) int { return v.d.Cmp(o.d) }

func (v Value) GreaterThan(o Value) bool      { return v.Compare(o) > 0 }
func (v Value) GreaterOrEqual(o Value) bool   { return v.Compare(o) >= 0 }
func (v Value) LessThan(o Value) bool         { return v.Compare(o) < 0 }
func (v Value) LessOrEqual(o Value) bool      { return v.Compare(o) <= 0 }

func (v Value) Float64() float64 { return v.d.InexactFloat64() }

// Min and Max mirror the two-argument helpers used throughout the fee and
// hedging state machines (max(baseFee, minFeeByTier), min(available, ...)).
func Min(a, b Value) Value {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

func Max(a, b Value) Value {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

// Clamp0 floors a value at zero, used pervasively for S := max(0, P-F).
func Clamp0(v Value) Value {
	return Max(Zero, v)
}

// Round2 rounds to 2 decimal places, the canonical USDC wire precision.
func (v Value) Round2() Value { return Value{d: v.d.Round(2)} }

// Round6 rounds to 6 decimal places, the canonical size wire precision.
func (v Value) Round6() Value { return Value{d: v.d.Round(6)} }

// String renders with the decimal's natural precision (used internally/logs).
func (v Value) String() string { return v.d.String() }

// USDCString renders the fixed 2-decimal-place wire form required by the
// control API for every USDC field.
func (v Value) USDCString() string { return v.d.Round(2).StringFixed(2) }

// SizeString renders a 6-decimal-place wire form for size fields, used
// uniformly to keep the wire format stable.
func (v Value) SizeString() string { return v.d.Round(6).StringFixed(6) }

// MarshalJSON always emits the 2dp USDC string form: every numeric USDC
// value on the wire is a string, never a bare JSON number.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.USDCString() + `"`), nil
}

// UnmarshalJSON accepts both a JSON string and a bare JSON number, matching
// the "numerics may be strings or numbers" rule from the config formats.
func (v *Value) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	v.d = d
	return nil
}

// Size is a Value whose wire form is the 6-decimal-place size precision
// instead of the 2dp USDC form: hedge sizes, execution-plan leg sizes, and
// coverage fractions must not be flattened to cents (a 0.033 BTC hedge is
// not "0.03"). Arithmetic stays on the embedded Value; wrap the result
// back with NewSize at the wire boundary.
type Size struct {
	Value
}

// NewSize wraps a Value for size-precision marshaling.
func NewSize(v Value) Size { return Size{Value: v} }

// MarshalJSON emits the 6dp size string form.
func (s Size) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.SizeString() + `"`), nil
}

// UnmarshalJSON accepts the same string-or-number forms Value does.
func (s *Size) UnmarshalJSON(b []byte) error {
	return s.Value.UnmarshalJSON(b)
}

// Decimal exposes the underlying decimal.Decimal for callers (e.g. the
// config FlexNumber type) that need to convert without re-parsing strings.
func (v Value) Decimal() decimal.Decimal { return v.d }

// FromDecimal wraps an existing decimal.Decimal.
func FromDecimal(d decimal.Decimal) Value { return Value{d: d} }

// CeilDiv computes ceil(a/b) for positive integer-valued Values, used for
// rollMultiplier := ceil(targetDays / pickedDays).
func CeilDiv(a, b Value) Value {
	if b.IsZero() {
		return Zero
	}
	q := a.d.Div(b.d)
	rounded := q.Ceil()
	return Value{d: rounded}
}
