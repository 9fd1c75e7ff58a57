package runtime

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/rivo/uniseg"
	"github.com/shopspring/decimal"
)

// f64Epsilon is the float64 machine epsilon, the tolerance for
// cross-kind Decimal/Fast equality on their f64 projections.
const f64Epsilon = 2.220446049250313e-16

// Graphemes splits a Text into its extended grapheme clusters, e.g. a
// flag emoji made of two regional-indicator code points counts as one.
func Graphemes(s string) []string {
	var out []string
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		out = append(out, gr.Str())
	}
	return out
}

// Len counts graphemes for Text, elements for Seq/Vector, and entries
// for Dict.
func Len(v Value) (int, error) {
	switch x := v.(type) {
	case Text:
		return len(Graphemes(x.S)), nil
	case Seq:
		return x.Len(), nil
	case Dict:
		return x.Len(), nil
	case Vector:
		return len(x.Values), nil
	}
	return 0, NewError(KindValidation, "NoLength", fmt.Sprintf("%s has no length", v.Kind()))
}

// TextIndex implements grapheme-addressed, 1-based Text indexing with
// negative-from-end support.
func TextIndex(t Text, i int) (Value, error) {
	gs := Graphemes(t.S)
	n := len(gs)
	idx := i
	if idx < 0 {
		idx = n + idx + 1
	}
	if idx == 0 {
		return nil, NewError(KindLookup, "IndexZero", "string index 0 is invalid: indices are 1-based")
	}
	if idx < 1 || idx > n {
		return nil, NewError(KindLookup, "OutOfRange", fmt.Sprintf("string index %d out of range (length %d)", i, n))
	}
	return Text{S: gs[idx-1]}, nil
}

// DictIndex implements Dict[k]; k must be a Text key.
func DictIndex(d Dict, key Value) (Value, error) {
	t, ok := key.(Text)
	if !ok {
		return nil, NewError(KindValidation, "WrongKeyType", "dict key must be Text")
	}
	v, ok := d.Get(t.S)
	if !ok {
		return nil, NewError(KindLookup, "MissingKey", fmt.Sprintf("dict has no key %q", t.S))
	}
	return v, nil
}

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case Decimal:
		f, _ := x.D.Float64()
		return f, true
	case Fast:
		return x.F, true
	}
	return 0, false
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case Decimal, Fast:
		return true
	}
	return false
}

// Add covers numeric+numeric (exact when both are Decimal), string
// concatenation, string+printable formatted concatenation, and
// sequence+sequence concatenation into a fresh handle.
func Add(l, r Value) (Value, error) {
	switch lv := l.(type) {
	case Decimal:
		switch rv := r.(type) {
		case Decimal:
			return Decimal{D: lv.D.Add(rv.D)}, nil
		case Fast:
			lf, _ := lv.D.Float64()
			return Fast{F: lf + rv.F}, nil
		}
	case Fast:
		if rf, ok := asFloat(r); ok {
			return Fast{F: lv.F + rf}, nil
		}
	case Text:
		return Text{S: lv.S + displayForConcat(r)}, nil
	case Seq:
		if rs, ok := r.(Seq); ok {
			items := append(append([]Value{}, lv.Items()...), rs.Items()...)
			return NewSeq(items), nil
		}
	case Vector:
		if rv, ok := r.(Vector); ok {
			return vectorOp(lv, rv, func(a, b float64) float64 { return a + b })
		}
	}
	if rt, ok := r.(Text); ok {
		return Text{S: displayForConcat(l) + rt.S}, nil
	}
	return nil, NewError(KindValidation, "BadAdd", fmt.Sprintf("cannot add %s and %s", l.Kind(), r.Kind()))
}

func displayForConcat(v Value) string { return v.String() }

func vectorOp(a, b Vector, f func(x, y float64) float64) (Value, error) {
	if len(a.Values) != len(b.Values) {
		return nil, NewError(KindValidation, "VectorLengthMismatch", "vector operands must have equal length")
	}
	out := make([]float64, len(a.Values))
	for i := range out {
		out[i] = f(a.Values[i], b.Values[i])
	}
	return Vector{Values: out}, nil
}

// Sub/Mul/Div/Mod are numeric-only.
func Sub(l, r Value) (Value, error) { return numericOp(l, r, "Sub", func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Sub(b), nil }, func(a, b float64) (float64, error) { return a - b, nil }) }
func Mul(l, r Value) (Value, error) { return numericOp(l, r, "Mul", func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Mul(b), nil }, func(a, b float64) (float64, error) { return a * b, nil }) }

func Div(l, r Value) (Value, error) {
	return numericOp(l, r, "Div",
		func(a, b decimal.Decimal) (decimal.Decimal, error) {
			if b.IsZero() {
				return decimal.Zero, NewError(KindLogic, "DivideByZero", "division by zero")
			}
			return a.DivRound(b, 20), nil
		},
		func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, NewError(KindLogic, "DivideByZero", "division by zero")
			}
			return a / b, nil
		})
}

func Mod(l, r Value) (Value, error) {
	return numericOp(l, r, "Mod",
		func(a, b decimal.Decimal) (decimal.Decimal, error) {
			if b.IsZero() {
				return decimal.Zero, NewError(KindLogic, "DivideByZero", "modulo by zero")
			}
			return a.Mod(b), nil
		},
		func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, NewError(KindLogic, "DivideByZero", "modulo by zero")
			}
			return math.Mod(a, b), nil
		})
}

// numericOp dispatches Decimal+Decimal down the exact path and any other
// numeric combination (or Vector for Sub) down the Fast path: mixing a
// Decimal with a Fast always produces a Fast.
func numericOp(l, r Value, name string, dec func(a, b decimal.Decimal) (decimal.Decimal, error), fast func(a, b float64) (float64, error)) (Value, error) {
	if lv, ok := l.(Vector); ok {
		if rv, ok := r.(Vector); ok && name == "Sub" {
			return vectorOp(lv, rv, func(a, b float64) float64 { return a - b })
		}
	}
	if !isNumeric(l) || !isNumeric(r) {
		return nil, NewError(KindValidation, "NotNumeric", fmt.Sprintf("%s requires numeric operands, got %s and %s", name, l.Kind(), r.Kind()))
	}
	if ld, lok := l.(Decimal); lok {
		if rd, rok := r.(Decimal); rok {
			d, err := dec(ld.D, rd.D)
			if err != nil {
				return nil, err
			}
			return Decimal{D: d}, nil
		}
	}
	lf, _ := asFloat(l)
	rf, _ := asFloat(r)
	f, err := fast(lf, rf)
	if err != nil {
		return nil, err
	}
	return Fast{F: f}, nil
}

// Equals compares numerics by magnitude (cross-kind within machine
// epsilon), shared values by handle identity, Options recursively, and
// error values structurally.
func Equals(l, r Value) (bool, error) {
	if isNumeric(l) && isNumeric(r) {
		if ld, ok := l.(Decimal); ok {
			if rd, ok := r.(Decimal); ok {
				return ld.D.Equal(rd.D), nil
			}
		}
		lf, _ := asFloat(l)
		rf, _ := asFloat(r)
		return math.Abs(lf-rf) < f64Epsilon, nil
	}
	switch lv := l.(type) {
	case Text:
		rv, ok := r.(Text)
		return ok && lv.S == rv.S, nil
	case Bool:
		rv, ok := r.(Bool)
		return ok && lv.B == rv.B, nil
	case Seq:
		rv, ok := r.(Seq)
		return ok && lv.SameHandle(rv), nil
	case Dict:
		rv, ok := r.(Dict)
		return ok && lv.SameHandle(rv), nil
	case Native:
		rv, ok := r.(Native)
		if !ok || lv.Fn == nil || rv.Fn == nil {
			return false, nil
		}
		// By-handle identity: a Native's handle is its function value, so
		// compare the underlying code pointers.
		return reflect.ValueOf(lv.Fn).Pointer() == reflect.ValueOf(rv.Fn).Pointer(), nil
	case TaskHandle:
		rv, ok := r.(TaskHandle)
		return ok && lv.h == rv.h, nil
	case Option:
		rv, ok := r.(Option)
		if !ok || lv.IsSome() != rv.IsSome() {
			return false, nil
		}
		if lv.IsNone() {
			return true, nil
		}
		return Equals(lv.val, rv.val)
	case ErrorVal:
		rv, ok := r.(ErrorVal)
		return ok && lv == rv, nil
	}
	return false, nil
}

// Compare is a total order on Decimal, partial on Fast (NaN comparison
// is an error), and lexicographic on Text.
func Compare(l, r Value) (int, error) {
	if ld, ok := l.(Decimal); ok {
		if rd, ok := r.(Decimal); ok {
			return ld.D.Cmp(rd.D), nil
		}
	}
	if isNumeric(l) && isNumeric(r) {
		lf, _ := asFloat(l)
		rf, _ := asFloat(r)
		if math.IsNaN(lf) || math.IsNaN(rf) {
			return 0, NewError(KindLogic, "NaNCompare", "cannot compare NaN")
		}
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if lt, ok := l.(Text); ok {
		if rt, ok := r.(Text); ok {
			return strings.Compare(lt.S, rt.S), nil
		}
	}
	return 0, NewError(KindValidation, "NotComparable", fmt.Sprintf("cannot compare %s and %s", l.Kind(), r.Kind()))
}

// Truthy: numerics are truthy when nonzero, containers when non-empty,
// Options when Some; callables, task handles, and errors always are.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case Decimal:
		return !x.D.IsZero()
	case Fast:
		return x.F != 0
	case Bool:
		return x.B
	case Text:
		return len(x.S) > 0
	case Seq:
		return x.Len() > 0
	case Dict:
		return x.Len() > 0
	case Option:
		return x.IsSome()
	case Native, TaskHandle, ErrorVal:
		return true
	case Vector:
		return len(x.Values) > 0
	}
	return false
}

// DefaultNumeric is the zero-value Decimal used to initialize Concept
// fields on Create.
func DefaultNumeric() Value { return Decimal{D: decimal.Zero} }

// ParseDecimal parses a numeric literal's original source text into a
// Decimal value.
func ParseDecimal(lit string) (Value, error) {
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return nil, NewError(KindValidation, "MalformedNumber", fmt.Sprintf("malformed number literal %q", lit))
	}
	return Decimal{D: d}, nil
}
