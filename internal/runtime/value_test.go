package runtime

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) Decimal {
	t.Helper()
	v, err := ParseDecimal(s)
	require.NoError(t, err)
	return v.(Decimal)
}

func TestDecimalArithmeticIsExact(t *testing.T) {
	sum, err := Add(dec(t, "0.1"), dec(t, "0.2"))
	require.NoError(t, err)
	eq, err := Equals(sum, dec(t, "0.3"))
	require.NoError(t, err)
	require.True(t, eq, "0.1 + 0.2 must equal 0.3 exactly")
	require.Equal(t, "0.3", sum.String())
}

func TestMixedDecimalFastProducesFast(t *testing.T) {
	sum, err := Add(dec(t, "1.5"), Fast{F: 2.5})
	require.NoError(t, err)
	require.Equal(t, KindFast, sum.Kind())
	require.Equal(t, 4.0, sum.(Fast).F)
}

func TestDivisionByZero(t *testing.T) {
	_, err := Div(dec(t, "1"), dec(t, "0"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "division by zero")

	_, err = Mod(dec(t, "1"), dec(t, "0"))
	require.Error(t, err)
}

func TestSeqIndexingIsOneBased(t *testing.T) {
	s := NewSeq([]Value{Text{S: "a"}, Text{S: "b"}, Text{S: "c"}})

	first, err := s.Get(1)
	require.NoError(t, err)
	require.Equal(t, "a", first.String())

	_, err = s.Get(0)
	require.Error(t, err, "index 0 must be rejected")

	_, err = s.Get(4)
	require.Error(t, err, "out-of-range index must be rejected")

	_, err = s.Get(-1)
	require.Error(t, err, "negative sequence indices are unsupported")
}

func TestTextIndexingIsGraphemeAware(t *testing.T) {
	flag := Text{S: "\U0001F1FA\U0001F1F8"} // two regional indicators, one grapheme

	n, err := Len(flag)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	v, err := TextIndex(flag, 1)
	require.NoError(t, err)
	require.Equal(t, flag.S, v.String())

	_, err = TextIndex(flag, 0)
	require.Error(t, err)
}

func TestTextNegativeIndexAddressesFromEnd(t *testing.T) {
	s := Text{S: "abc"}
	v, err := TextIndex(s, -1)
	require.NoError(t, err)
	require.Equal(t, "c", v.String())

	v, err = TextIndex(s, -3)
	require.NoError(t, err)
	require.Equal(t, "a", v.String())

	_, err = TextIndex(s, -4)
	require.Error(t, err)
}

func TestDeepCloneIsolatesSharedContainers(t *testing.T) {
	inner := NewSeq([]Value{dec(t, "1")})
	d := NewDict()
	d.Set("items", inner)

	clone := DeepClone(d).(Dict)
	clonedInner, _ := clone.Get("items")
	clonedInner.(Seq).Append(dec(t, "2"))

	require.Equal(t, 1, inner.Len(), "mutating the clone must not observe in the original")
	require.Equal(t, 2, clonedInner.(Seq).Len())
}

func TestDeepCloneSharesNativeAndTaskHandles(t *testing.T) {
	n := Native{Name: "f", Fn: func([]Value) (Value, error) { return Bool{B: true}, nil }}
	h := NewTaskHandle()
	s := NewSeq([]Value{n, h})

	clone := DeepClone(s).(Seq)
	items := clone.Items()
	require.Equal(t, KindNative, items[0].Kind())
	require.Equal(t, KindTaskHandle, items[1].Kind())
	eq, err := Equals(items[0], n)
	require.NoError(t, err)
	require.True(t, eq, "natives share their function handle through a deep clone")
	eq, err = Equals(items[1], h)
	require.NoError(t, err)
	require.True(t, eq, "task handles share their handle through a deep clone")
}

func TestNativeEqualityIsByHandle(t *testing.T) {
	shared := func([]Value) (Value, error) { return Bool{B: true}, nil }
	a := Native{Name: "a", Fn: shared}
	b := Native{Name: "b", Fn: shared}
	eq, err := Equals(a, b)
	require.NoError(t, err)
	require.True(t, eq, "natives wrapping the same function are the same handle")

	other := Native{Name: "other", Fn: func([]Value) (Value, error) { return Bool{B: false}, nil }}
	eq, err = Equals(a, other)
	require.NoError(t, err)
	require.False(t, eq, "natives wrapping distinct functions are unequal")
}

func TestCrossKindNumericEquality(t *testing.T) {
	// A Decimal and a Fast are equal when their f64 projections differ
	// by less than machine epsilon.
	eq, err := Equals(dec(t, "1.5"), Fast{F: 1.5})
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = Equals(dec(t, "1.5"), Fast{F: 1.5000001})
	require.NoError(t, err)
	require.False(t, eq, "a 1e-7 difference is far beyond machine epsilon")
}

func TestSharedHandleEquality(t *testing.T) {
	a := NewSeq([]Value{dec(t, "1")})
	b := NewSeq([]Value{dec(t, "1")})
	eq, err := Equals(a, a)
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = Equals(a, b)
	require.NoError(t, err)
	require.False(t, eq, "distinct handles are unequal even with equal contents")
}

func TestOptionSemantics(t *testing.T) {
	some := Some(dec(t, "5"))
	require.True(t, some.IsSome())
	require.Equal(t, "Some(5)", some.String())

	v, err := some.Unwrap()
	require.NoError(t, err)
	require.Equal(t, "5", v.String())

	none := None()
	require.True(t, none.IsNone())
	require.Equal(t, "None", none.String())
	_, err = none.Unwrap()
	require.Error(t, err)
	require.Equal(t, "7", none.UnwrapOr(dec(t, "7")).String())

	eq, err := Equals(Some(dec(t, "1")), Some(dec(t, "1")))
	require.NoError(t, err)
	require.True(t, eq, "option equality recurses on contents")
}

func TestWeakReferences(t *testing.T) {
	d := NewDict()
	d.Set("x", dec(t, "1"))
	w, err := ToWeak(d)
	require.NoError(t, err)
	wd := w.(WeakDict)
	require.True(t, wd.IsValid())

	got, err := wd.Get()
	require.NoError(t, err)
	require.True(t, got.(Dict).SameHandle(d))

	_, err = ToWeak(Text{S: "nope"})
	require.Error(t, err, "to_weak is defined only on Seq/Dict")
}

func TestCompareLaws(t *testing.T) {
	c, err := Compare(dec(t, "1"), dec(t, "2"))
	require.NoError(t, err)
	require.Equal(t, -1, c)

	c, err = Compare(Text{S: "abc"}, Text{S: "abd"})
	require.NoError(t, err)
	require.Equal(t, -1, c)

	nan := Fast{F: nanFloat()}
	_, err = Compare(nan, Fast{F: 1})
	require.Error(t, err, "NaN comparison is an error")

	_, err = Compare(Text{S: "a"}, dec(t, "1"))
	require.Error(t, err)
}

func nanFloat() float64 {
	f := 0.0
	return f / f
}

func TestTruthiness(t *testing.T) {
	require.True(t, Truthy(dec(t, "1")))
	require.False(t, Truthy(dec(t, "0")))
	require.True(t, Truthy(Text{S: "x"}))
	require.False(t, Truthy(Text{S: ""}))
	require.False(t, Truthy(NewSeq(nil)))
	require.True(t, Truthy(Some(Bool{B: false})))
	require.False(t, Truthy(None()))
	require.True(t, Truthy(ErrorVal{Category: "Logic", Subtype: "X", Message: "m"}))
}

func TestDisplayForms(t *testing.T) {
	require.Equal(t, "True", Bool{B: true}.String())
	require.Equal(t, "False", Bool{B: false}.String())
	require.Equal(t, "Error.Lookup.MissingKey: no such key",
		ErrorVal{Category: "Lookup", Subtype: "MissingKey", Message: "no such key"}.String())

	// Decimal display trims to at most ten fractional digits.
	d := Decimal{D: decimal.RequireFromString("1.23456789012345")}
	require.Equal(t, "1.2345678901", d.String())
	require.Equal(t, "5", Decimal{D: decimal.RequireFromString("5.000")}.String())
}

func TestVectorArithmeticRequiresEqualLength(t *testing.T) {
	a := Vector{Values: []float64{1, 2}}
	b := Vector{Values: []float64{3, 4}}
	sum, err := Add(a, b)
	require.NoError(t, err)
	require.Equal(t, []float64{4, 6}, sum.(Vector).Values)

	_, err = Add(a, Vector{Values: []float64{1}})
	require.Error(t, err)

	diff, err := Sub(a, b)
	require.NoError(t, err)
	require.Equal(t, []float64{-2, -2}, diff.(Vector).Values)
}

func TestSeqConcatenationProducesFreshHandle(t *testing.T) {
	a := NewSeq([]Value{dec(t, "1")})
	b := NewSeq([]Value{dec(t, "2")})
	sum, err := Add(a, b)
	require.NoError(t, err)
	out := sum.(Seq)
	require.Equal(t, 2, out.Len())
	require.False(t, out.SameHandle(a))
	out.Append(dec(t, "3"))
	require.Equal(t, 1, a.Len())
}

func TestTaskHandleSingleAward(t *testing.T) {
	h := NewTaskHandle()
	go h.Resolve(Bool{B: true}, nil)

	v, err := h.Await()
	require.NoError(t, err)
	require.Equal(t, "True", v.String())

	_, err = h.Await()
	require.Error(t, err, "a task handle's awaitable is single-consumption")
}

func TestTaskHandleCancellationFlag(t *testing.T) {
	h := NewTaskHandle()
	require.False(t, h.IsCancelled())
	h.Cancel()
	require.True(t, h.IsCancelled())
}

func TestStringConcatenationWithPrintable(t *testing.T) {
	out, err := Add(Text{S: "n = "}, dec(t, "42"))
	require.NoError(t, err)
	require.Equal(t, "n = 42", out.String())

	out, err = Add(dec(t, "42"), Text{S: " is n"})
	require.NoError(t, err)
	require.Equal(t, "42 is n", out.String())
}
