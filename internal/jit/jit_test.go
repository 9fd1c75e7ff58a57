package jit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/lexer"
	"github.com/storylang/storylang/internal/parser"
	"github.com/storylang/storylang/internal/runtime"
)

// methodFromSource parses a one-concept program and returns the named
// method plus a helper-lookup over the concept's other methods.
func methodFromSource(t *testing.T, src, name string) (*ast.MethodDecl, func(string) (*ast.MethodDecl, bool)) {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	for _, err := range p.Errors() {
		t.Fatalf("parse error: %v", err)
	}
	require.Len(t, prog.Concepts, 1)
	c := prog.Concepts[0]
	lookup := func(n string) (*ast.MethodDecl, bool) {
		for _, m := range c.Methods {
			if m.Name == n {
				return m, true
			}
		}
		return nil, false
	}
	m, ok := lookup(name)
	require.True(t, ok)
	return m, lookup
}

func compileFromSource(t *testing.T, src, name string) *CompiledMethod {
	t.Helper()
	m, lookup := methodFromSource(t, src, name)
	cm, err := Compile("C", name, m, lookup)
	require.NoError(t, err)
	return cm
}

func noFields(string) float64 { return 0 }

func TestCompileSimpleArithmetic(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    To Square with X:
        Return X * X
`, "Square")

	require.Equal(t, []string{"X"}, cm.Params)
	require.Empty(t, cm.FieldReads)
	require.False(t, cm.HasWrites)
	require.Equal(t, 1, cm.Arity())

	v, err := cm.Run(noFields, []float64{7}, nil)
	require.NoError(t, err)
	require.Equal(t, 49.0, v.(runtime.Fast).F)
}

func TestFieldReadsAreLexicographic(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    To Sum:
        Return This.Zeta + This.Alpha + This.Mid
`, "Sum")

	require.Equal(t, []string{"Alpha", "Mid", "Zeta"}, cm.FieldReads)

	fields := map[string]float64{"Alpha": 1, "Mid": 2, "Zeta": 3}
	v, err := cm.Run(func(n string) float64 { return fields[n] }, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 6.0, v.(runtime.Fast).F)
}

func TestSetRequiresReceiverSlot(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    Total
    To Add with X:
        Set This.Total to This.Total + X
`, "Add")

	require.True(t, cm.HasWrites)
	// receiver + 1 field read + 1 param
	require.Equal(t, 3, cm.Arity())

	total := 10.0
	_, err := cm.Run(
		func(string) float64 { return total },
		[]float64{5},
		func(name string, f float64) {
			require.Equal(t, "Total", name)
			total = f
		},
	)
	require.NoError(t, err)
	require.Equal(t, 15.0, total)
}

func TestInlinedZeroArgHelper(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    Base
    To Doubled:
        Return This.Twice() + 1
    To Twice:
        Return This.Base + This.Base
`, "Doubled")

	// The helper's field read surfaces in the outer method's layout.
	require.Equal(t, []string{"Base"}, cm.FieldReads)

	v, err := cm.Run(func(string) float64 { return 4 }, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 9.0, v.(runtime.Fast).F)
}

func TestControlFlowSubset(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    To Clamp with X:
        If X > 10:
            Return 10
        Return X
`, "Clamp")

	v, err := cm.Run(noFields, []float64{42}, nil)
	require.NoError(t, err)
	require.Equal(t, 10.0, v.(runtime.Fast).F)

	v, err = cm.Run(noFields, []float64{3}, nil)
	require.NoError(t, err)
	require.Equal(t, 3.0, v.(runtime.Fast).F)
}

func TestRepeatTimesWithoutCounterCompiles(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    Total
    To Spin with N:
        Acc is 0
        Repeat N times:
            Acc is Acc + 2
        Return Acc
`, "Spin")

	v, err := cm.Run(noFields, []float64{5}, nil)
	require.NoError(t, err)
	require.Equal(t, 10.0, v.(runtime.Fast).F)
}

func TestIneligibleConstructsFailCompilation(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"string literal", `Concept: C
    To M:
        Return "text"
`},
		{"modulo", `Concept: C
    To M with X:
        Return X % 2
`},
		{"counter-bound repeat", `Concept: C
    To M:
        Repeat 3 times called I:
            Return 1
        Return 0
`},
		{"for-each", `Concept: C
    To M:
        For each X in [1]:
            Return X
        Return 0
`},
		{"method call with arguments", `Concept: C
    To M:
        Return This.Helper with 1
    To Helper with X:
        Return X
`},
		{"recursive helper", `Concept: C
    To M:
        Return This.M()
`},
		{"mutually recursive helpers", `Concept: C
    To M:
        Return This.A()
    To A:
        Return This.B()
    To B:
        Return This.A()
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, lookup := methodFromSource(t, tt.src, "M")
			_, err := Compile("C", "M", m, lookup)
			require.Error(t, err)
		})
	}
}

func TestNonFiniteResultBecomesZero(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    To Inv with X:
        Return 1 / X
`, "Inv")

	v, err := cm.Run(noFields, []float64{0}, nil)
	require.NoError(t, err)
	require.Equal(t, 0.0, v.(runtime.Fast).F)
}

func TestIRModuleCarriesNativeSignature(t *testing.T) {
	cm := compileFromSource(t, `Concept: C
    To Scale with F:
        Return This.Base * F
`, "Scale")

	require.NotNil(t, cm.IR)
	ir := cm.IR.String()
	require.True(t, strings.Contains(ir, "C__Scale"))
	require.True(t, strings.Contains(ir, "double"))
}

func TestBridgeKeysOnMethodIdentity(t *testing.T) {
	b := NewBridge()
	m1, lookup := methodFromSource(t, `Concept: C
    To M:
        Return 1
`, "M")
	cm, err := Compile("C", "M", m1, lookup)
	require.NoError(t, err)

	b.Store(m1, cm)
	got, ok := b.Get(m1)
	require.True(t, ok)
	require.Equal(t, cm, got)

	m2 := &ast.MethodDecl{Name: "M"}
	_, ok = b.Get(m2)
	require.False(t, ok, "a distinct body of the same name is a distinct compilation")
}
