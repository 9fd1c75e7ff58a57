// Package interp implements the tree-walking evaluator: the
// Concept/Situation dispatch algorithm with the Proceed chain, When
// observer reentrancy control, try/catch/always reshaping, loops,
// streams, and the background-task bridge into the concurrency runtime.
package interp

import (
	"fmt"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/jit"
	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
)

// maxObserverDepth bounds When-observer reentrancy.
const maxObserverDepth = 10

// Resolver resolves a dotted Use path (e.g. ["models","User"]) to parsed
// Concepts/Situations/Story to merge into the evaluator's registries.
// The concrete implementation lives in internal/manifest so this package
// has no filesystem dependency.
type Resolver interface {
	Resolve(path []string) (*ast.Program, error)
}

// Evaluator executes one Program (or one Use-merged set of them) against
// a shared Environment, Concept/Situation registry, and the process-wide
// concurrency/profiler/JIT services.
type Evaluator struct {
	Env *runtime.Environment

	Concepts   map[string]*ast.ConceptDecl
	Situations map[string]*ast.SituationDecl
	active     []string // ordered list of switched-on Situation names

	Executor *concurrency.Executor
	Profiler *profiler.Profiler
	JIT      *jit.Bridge
	Resolver Resolver

	observerDepth int
	proceedStack  []proceedFrame
	usedModules   map[string]bool

	Stdout interface {
		WriteString(string) (int, error)
	}
}

// proceedFrame is one entry of the Proceed stack:
// it exists only while a layered method body is executing and names the
// lower dispatch stack a Proceed(args) call should re-enter.
type proceedFrame struct {
	lower    []*ast.MethodDecl
	receiver runtime.Dict
	args     []runtime.Value
}

// New constructs an Evaluator sharing the given process-wide services.
func New(env *runtime.Environment, ex *concurrency.Executor, prof *profiler.Profiler, jb *jit.Bridge, resolver Resolver, stdout interface {
	WriteString(string) (int, error)
}) *Evaluator {
	return &Evaluator{
		Env:         env,
		Concepts:    make(map[string]*ast.ConceptDecl),
		Situations:  make(map[string]*ast.SituationDecl),
		Executor:    ex,
		Profiler:    prof,
		JIT:         jb,
		Resolver:    resolver,
		usedModules: make(map[string]bool),
		Stdout:      stdout,
	}
}

// ctrlKind is the non-local-exit signal threaded back up through
// statement execution for Break/Continue/Return.
type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

// ctrl carries a non-local-exit signal plus, for ctrlReturn, its value.
type ctrl struct {
	kind  ctrlKind
	value runtime.Value
}

var noCtrl = ctrl{kind: ctrlNone}

// runtimeErr wraps a HostError with the line it was first raised on, so
// repeated wrapping up the call stack does not re-prefix the message.
type runtimeErr struct {
	inner error
	line  int
}

func (e *runtimeErr) Error() string { return fmt.Sprintf("line %d: %s", e.line, e.inner.Error()) }
func (e *runtimeErr) Unwrap() error { return e.inner }

func wrapLine(err error, line int) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*runtimeErr); ok {
		return err
	}
	return &runtimeErr{inner: err, line: line}
}

// RegisterProgram merges prog's Concepts and Situations into the
// registries. Later registrations of the same name overwrite earlier
// ones, matching how a Use'd module may extend the same Concept name
// across files.
func (e *Evaluator) RegisterProgram(prog *ast.Program) {
	for _, c := range prog.Concepts {
		e.Concepts[c.Name] = c
	}
	for _, s := range prog.Situations {
		e.Situations[s.Name] = s
	}
}

// Run registers prog's Concepts/Situations then executes its Story body
// in the current (global) scope.
func (e *Evaluator) Run(prog *ast.Program) error {
	e.RegisterProgram(prog)
	c, err := e.execBlock(prog.Story)
	if err != nil {
		return err
	}
	if c.kind == ctrlReturn || c.kind == ctrlBreak || c.kind == ctrlContinue {
		return runtime.NewError(runtime.KindLogic, "ControlFlowEscaped", "Break/Continue/Return outside of any loop or method")
	}
	return nil
}

// execBlock runs stmts in the current scope (no new frame: callers that
// want lexical scoping push/pop around the call).
func (e *Evaluator) execBlock(stmts []ast.Statement) (ctrl, error) {
	for _, s := range stmts {
		c, err := e.execStatement(s)
		if err != nil {
			return noCtrl, err
		}
		if c.kind != ctrlNone {
			return c, nil
		}
	}
	return noCtrl, nil
}

// execScopedBlock pushes a fresh scope frame, runs stmts, and pops it.
func (e *Evaluator) execScopedBlock(stmts []ast.Statement) (ctrl, error) {
	e.Env.Push()
	defer e.Env.Pop()
	return e.execBlock(stmts)
}
