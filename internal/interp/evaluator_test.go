package interp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/interp"
	"github.com/storylang/storylang/internal/jit"
	"github.com/storylang/storylang/internal/lexer"
	"github.com/storylang/storylang/internal/parser"
	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
	"github.com/storylang/storylang/internal/stdlib"
)

type fixture struct {
	out  strings.Builder
	prof *profiler.Profiler
	ev   *interp.Evaluator
}

func newFixture() *fixture {
	f := &fixture{prof: profiler.New()}
	env := runtime.NewEnvironment()
	ex := concurrency.New()
	stdlib.Register(env, stdlib.Options{Executor: ex, Profiler: f.prof})
	f.ev = interp.New(env, ex, f.prof, jit.NewBridge(), nil, &f.out)
	return f
}

func (f *fixture) run(t *testing.T, src string) error {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	for _, err := range p.Errors() {
		t.Fatalf("parse error: %v", err)
	}
	return f.ev.Run(prog)
}

func run(t *testing.T, src string) string {
	t.Helper()
	f := newFixture()
	require.NoError(t, f.run(t, src))
	return f.out.String()
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	f := newFixture()
	err := f.run(t, src)
	require.Error(t, err)
	return err
}

func TestConceptMethodMutatesFields(t *testing.T) {
	// Two method calls mutate the receiver field through This.
	out := run(t, `Concept: Counter
    Count
    To Bump:
        Set This.Count to This.Count + 1
Story:
    Create Counter called C
    C.Bump
    C.Bump
    Print C.Count
`)
	require.Equal(t, "2\n", out)
}

func TestSituationLayeringWithProceed(t *testing.T) {
	// An active Situation layers over the base method, and Proceed
	// reaches it.
	out := run(t, `Concept: Greeter
    To Greet:
        Return "hello"
Situation: Loud
    Adjust Greeter:
        To Greet:
            Return Proceed() + "!"
Story:
    Create Greeter called G
    Switch on Loud
    Print G.Greet
`)
	require.Equal(t, "hello!\n", out)
}

func TestTwoLayersProceedChainAndBaseProceedFails(t *testing.T) {
	// Layer order is outermost -> next-outer -> base; Proceed in the
	// base layer errors.
	out := run(t, `Concept: Greeter
    To Greet:
        Return "base"
Situation: A
    Adjust Greeter:
        To Greet:
            Return Proceed() + "+a"
Situation: B
    Adjust Greeter:
        To Greet:
            Return Proceed() + "+b"
Story:
    Create Greeter called G
    Switch on A
    Switch on B
    Print G.Greet
`)
	require.Equal(t, "base+a+b\n", out)

	err := runErr(t, `Concept: Greeter
    To Greet:
        Return Proceed()
Story:
    Create Greeter called G
    Print G.Greet
`)
	require.Contains(t, err.Error(), "Proceed")
}

func TestSwitchOffRemovesLayer(t *testing.T) {
	out := run(t, `Concept: Greeter
    To Greet:
        Return "hello"
Situation: Loud
    Adjust Greeter:
        To Greet:
            Return Proceed() + "!"
Story:
    Create Greeter called G
    Switch on Loud
    Switch off Loud
    Print G.Greet
`)
	require.Equal(t, "hello\n", out)
}

func TestWhenObserverFiresOnEveryFieldWrite(t *testing.T) {
	// The observer fires once per assignment, after the write lands.
	out := run(t, `Concept: Account
    Balance
    When Balance changes:
        Print "changed to " + This.Balance
Story:
    Create Account called A
    Set A.Balance to 10
    Set A.Balance to 20
`)
	require.Equal(t, "changed to 10\nchanged to 20\n", out)
}

func TestObserverReentrancyIsBounded(t *testing.T) {
	// A self-writing observer trips the depth bound instead of
	// recursing forever.
	err := runErr(t, `Concept: Looper
    F
    When F changes:
        Set This.F to This.F + 1
Story:
    Create Looper called L
    Set L.F to 1
`)
	require.Contains(t, err.Error(), "observer recursion")
}

func TestTryCatchAlways(t *testing.T) {
	// The catch body replaces the failed try body; always runs after.
	out := run(t, `Story:
    Try:
        Print 1 / 0
    Catch e:
        Print "caught"
    Always:
        Print "done"
`)
	require.Equal(t, "caught\ndone\n", out)
}

func TestCatchBindsErrorDict(t *testing.T) {
	out := run(t, `Story:
    Try:
        Print 1 / 0
    Catch e:
        Print e.type
        Print e.line
`)
	require.Equal(t, "Logic.DivideByZero\n3\n", out)
}

func TestAlwaysErrorSupersedes(t *testing.T) {
	err := runErr(t, `Story:
    Try:
        Print 1 / 0
    Catch e:
        Print "caught"
    Always:
        Print Missing
`)
	require.Contains(t, err.Error(), "Missing")
}

func TestBackgroundTaskAwait(t *testing.T) {
	// Await blocks the spawner until the background body returns.
	out := run(t, `Story:
    T is Do in background:
        Return 40 + 2
    Print T.Await()
`)
	require.Equal(t, "42\n", out)
}

func TestBackgroundErrorMaterializesOnAwait(t *testing.T) {
	out := run(t, `Story:
    T is Do in background:
        Print 1 / 0
    Print T.Await()
`)
	require.Contains(t, out, "Error.Logic.DivideByZero")
}

func TestBackgroundTaskOwnsDeepClonedEnvironment(t *testing.T) {
	out := run(t, `Story:
    L is [1, 2]
    T is Do in background:
        Return L.Length
    Print T.Await()
    Print L.Length
`)
	require.Equal(t, "2\n2\n", out)
}

func TestJITSemanticEquivalence(t *testing.T) {
	// After the 100th call the method is compiled; the result stays
	// identical to the interpreted path.
	src := `Concept: Sq
    To Square with X:
        Return X * X
Story:
    Create Sq called S
    Repeat 200 times:
        S.Square with 3
    Print S.Square with 3
`
	f := newFixture()
	require.NoError(t, f.run(t, src))
	require.Equal(t, "9\n", f.out.String())
	require.True(t, f.prof.IsCompiled(profiler.Key{Concept: "Sq", Method: "Square"}),
		"200 calls must cross the hot threshold")
}

func TestJITFieldWritebackMatchesInterpreter(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.run(t, `Concept: Acc
    Total
    To Add with X:
        Set This.Total to This.Total + X
Story:
    Create Acc called A
    Repeat 150 times:
        A.Add with 2
    Print A.Total
`))
	require.Equal(t, "300\n", f.out.String())
}

func TestMatchStatementSelectsFirstEqualArm(t *testing.T) {
	out := run(t, `Story:
    X is 2
    When X:
        Is 1:
            Print "one"
        Is 2:
            Print "two"
        Otherwise:
            Print "many"
`)
	require.Equal(t, "two\n", out)
}

func TestMatchOtherwise(t *testing.T) {
	out := run(t, `Story:
    When 9:
        Is 1:
            Print "one"
        Otherwise:
            Print "many"
`)
	require.Equal(t, "many\n", out)
}

func TestRepeatTimesBindsOneBasedCounter(t *testing.T) {
	out := run(t, `Story:
    Repeat 3 times called I:
        Print I
`)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestBreakAndContinue(t *testing.T) {
	out := run(t, `Story:
    Repeat 5 times called I:
        If I = 2:
            Continue
        If I = 4:
            Break
        Print I
`)
	require.Equal(t, "1\n3\n", out)
}

func TestRepeatWhile(t *testing.T) {
	out := run(t, `Story:
    N is 0
    Repeat while N < 3:
        Set N to N + 1
        Print N
`)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestForEachOverSeq(t *testing.T) {
	out := run(t, `Story:
    For each X in ["a", "b"]:
        Print X
`)
	require.Equal(t, "a\nb\n", out)
}

func TestForEachOverStream(t *testing.T) {
	// ForEach drains any Next/HasMore stream to exhaustion.
	out := run(t, `Story:
    S is Stream.FromList([1, 2, 3])
    For each X in S:
        Print X
`)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestStreamCombinatorsAreLazyAndCompose(t *testing.T) {
	out := run(t, `Story:
    S is Stream.FromList([1, 2, 3, 4, 5])
    T is S.Skip(1)
    U is T.Take(2)
    For each X in U:
        Print X
`)
	require.Equal(t, "2\n3\n", out)
}

func TestStringInterpolationEvaluates(t *testing.T) {
	out := run(t, `Concept: User
    Name
Story:
    Create User called U with Name "Ada"
    Print "Hello {U.Name}"
`)
	require.Equal(t, "Hello Ada\n", out)
}

func TestPropertyAccessFallbackOrder(t *testing.T) {
	out := run(t, `Story:
    L is [10, 20, 30]
    Print L.Length
    O is Some(5)
    Print O.IsSome
    Print O.Unwrap()
    Print None.IsNone
`)
	require.Equal(t, "3\nTrue\n5\nTrue\n", out)
}

func TestUndefinedVariableIsLookupError(t *testing.T) {
	err := runErr(t, `Story:
    Print Missing
`)
	require.Contains(t, err.Error(), "undefined variable")
	require.Contains(t, err.Error(), "line 2")
}

func TestUnknownMethodErrors(t *testing.T) {
	err := runErr(t, `Concept: Empty
    F
Story:
    Create Empty called E
    E.Nothing
`)
	require.Contains(t, err.Error(), "no method")
}

func TestSetFallsBackToThisField(t *testing.T) {
	out := run(t, `Concept: Box
    V
    To Fill:
        Set V to 7
Story:
    Create Box called B
    B.Fill
    Print B.V
`)
	require.Equal(t, "7\n", out)
}

func TestCreateInitializesFieldsToZero(t *testing.T) {
	out := run(t, `Concept: Pair
    A
    B
Story:
    Create Pair called P with B 9
    Print P.A
    Print P.B
`)
	require.Equal(t, "0\n9\n", out)
}

func TestWeakRefThroughEvaluator(t *testing.T) {
	out := run(t, `Concept: Node
    V
Story:
    Create Node called N
    W is WeakRef(N)
    Print W.IsValid
    G is W.Get()
    Set G.V to 3
    Print N.V
`)
	require.Equal(t, "True\n3\n", out)
}

func TestTaskWaitAll(t *testing.T) {
	out := run(t, `Story:
    A is Do in background:
        Return 1
    B is Do in background:
        Return 2
    R is Task.WaitAll([A, B])
    Print R[1]
    Print R[2]
`)
	require.Equal(t, "1\n2\n", out)
}

func TestChannelRoundTrip(t *testing.T) {
	out := run(t, `Story:
    C is Channel.New(4)
    T is Do in background:
        C.Send with "ping"
        Return 0
    Print C.Receive()
    T.Await()
`)
	require.Equal(t, "ping\n", out)
}

func TestChannelTryReceiveTimeout(t *testing.T) {
	out := run(t, `Story:
    C is Channel.New(1)
    R is C.TryReceive(0.05)
    Print R.IsNone
`)
	require.Equal(t, "True\n", out)
}

func TestDoubleAwaitErrors(t *testing.T) {
	// A task handle may be awaited at most once.
	err := runErr(t, `Story:
    T is Do in background:
        Return 1
    T.Await()
    T.Await()
`)
	require.Contains(t, err.Error(), "Await called twice")
}
