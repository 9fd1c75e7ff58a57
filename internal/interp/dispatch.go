package interp

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/jit"
	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
)

// decimalFromFloat converts a JIT-computed f64 back to an exact Decimal
// via its shortest round-tripping decimal text, the same boundary
// conversion the field-write callback applies.
func decimalFromFloat(f float64) decimal.Decimal {
	d, err := decimal.NewFromString(strconv.FormatFloat(f, 'g', -1, 64))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// dispatchStack builds the ordered dispatch stack for (concept,method):
// the base method first, then each currently-active Situation's
// adjustment for that Concept, in activation order. The last element is the "top" — the most recently
// activated override, i.e. the outermost layer.
func (e *Evaluator) dispatchStack(concept, method string) []*ast.MethodDecl {
	var stack []*ast.MethodDecl
	if decl, ok := e.Concepts[concept]; ok {
		if m := findMethod(decl.Methods, method); m != nil {
			stack = append(stack, m)
		}
	}
	for _, sitName := range e.active {
		sit, ok := e.Situations[sitName]
		if !ok {
			continue
		}
		for _, adj := range sit.Adjustments {
			if adj.ConceptName != concept {
				continue
			}
			if m := findMethod(adj.Methods, method); m != nil {
				stack = append(stack, m)
			}
		}
	}
	return stack
}

func findMethod(methods []*ast.MethodDecl, name string) *ast.MethodDecl {
	for _, m := range methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// dispatchMethod is the core dispatch algorithm: it looks up the
// receiver's dispatch stack, records the call with the
// profiler, attempts (or reuses) a JIT compilation of the top layer, and
// otherwise executes it in a fresh scope with the Proceed stack primed
// for a lower re-entry.
func (e *Evaluator) dispatchMethod(receiver runtime.Dict, methodName string, args []runtime.Value) (runtime.Value, error) {
	conceptName := receiver.ConceptName()
	if conceptName == "" {
		return nil, runtime.NewError(runtime.KindValidation, "NotAConceptInstance", "receiver is not a Concept instance")
	}
	stack := e.dispatchStack(conceptName, methodName)
	if len(stack) == 0 {
		return nil, runtime.NewError(runtime.KindLookup, "MethodNotFound", fmt.Sprintf("%s has no method %q", conceptName, methodName))
	}
	top := stack[len(stack)-1]
	lower := stack[:len(stack)-1]

	key := profiler.Key{Concept: conceptName, Method: methodName}
	e.Profiler.RecordCall(key)

	if cm, ok := e.JIT.Get(top); ok {
		if v, ok, err := e.tryRunCompiled(cm, receiver, args); ok {
			return v, err
		}
	} else if e.Profiler.ShouldJIT(key) {
		e.attemptCompile(top, conceptName, methodName)
		if cm, ok := e.JIT.Get(top); ok {
			if v, ok, err := e.tryRunCompiled(cm, receiver, args); ok {
				return v, err
			}
		}
	}

	return e.invokeLayer(top, lower, receiver, args)
}

// attemptCompile performs eligibility analysis + compilation for
// (concept,method)'s top layer and caches the result (success or
// permanent failure) so ShouldJIT never re-attempts it.
func (e *Evaluator) attemptCompile(method *ast.MethodDecl, conceptName, methodName string) {
	lookupHelper := func(name string) (*ast.MethodDecl, bool) {
		decl, ok := e.Concepts[conceptName]
		if !ok {
			return nil, false
		}
		m := findMethod(decl.Methods, name)
		return m, m != nil
	}
	cm, err := jit.Compile(conceptName, methodName, method, lookupHelper)
	key := profiler.Key{Concept: conceptName, Method: methodName}
	if err != nil {
		e.Profiler.MarkCompiled(key) // permanent fallback; avoid retry thrash
		e.Profiler.RecordMiss(key)
		return
	}
	e.JIT.Store(method, cm)
	e.Profiler.MarkCompiled(key)
}

// tryRunCompiled invokes cm if its fixed arity fits the invocation table
// and the argument count matches. The
// second return reports whether the compiled path was actually taken.
func (e *Evaluator) tryRunCompiled(cm *jit.CompiledMethod, receiver runtime.Dict, args []runtime.Value) (runtime.Value, bool, error) {
	if cm.Arity() > 10 || len(args) != len(cm.Params) {
		return nil, false, nil
	}
	floatArgs := make([]float64, 0, len(args))
	for _, a := range args {
		f, ok := toFloatArg(a)
		if !ok {
			return nil, false, nil
		}
		floatArgs = append(floatArgs, f)
	}
	fieldGet := func(name string) float64 {
		v, ok := receiver.Get(name)
		if !ok {
			return 0
		}
		f, _ := toFloatArg(v)
		return f
	}
	fieldSet := func(name string, f float64) {
		receiver.Set(name, runtime.Decimal{D: decimalFromFloat(f)})
	}
	v, err := cm.Run(fieldGet, floatArgs, fieldSet)
	if err != nil {
		return nil, true, err
	}
	if f, ok := v.(runtime.Fast); ok {
		v = runtime.Decimal{D: decimalFromFloat(f.F)}
	}
	return v, true, nil
}

func toFloatArg(v runtime.Value) (float64, bool) {
	switch x := v.(type) {
	case runtime.Decimal:
		f, _ := x.D.Float64()
		return f, true
	case runtime.Fast:
		return x.F, true
	case runtime.Bool:
		if x.B {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// invokeLayer executes method in a fresh scope with This=receiver and
// params bound to args, pushing a Proceed-stack entry for the duration
// so a Proceed(args') inside the body can re-enter the lower layers.
func (e *Evaluator) invokeLayer(method *ast.MethodDecl, lower []*ast.MethodDecl, receiver runtime.Dict, args []runtime.Value) (runtime.Value, error) {
	e.Env.Push()
	defer e.Env.Pop()
	e.Env.Define("This", receiver)
	for i, p := range method.Params {
		if i < len(args) {
			e.Env.Define(p, args[i])
		} else {
			e.Env.Define(p, runtime.DefaultNumeric())
		}
	}

	e.proceedStack = append(e.proceedStack, proceedFrame{lower: lower, receiver: receiver, args: args})
	defer func() { e.proceedStack = e.proceedStack[:len(e.proceedStack)-1] }()

	c, err := e.execBlock(method.Body)
	if err != nil {
		return nil, err
	}
	if c.kind == ctrlReturn {
		return c.value, nil
	}
	return runtime.None(), nil
}

// evalProceed implements "Proceed()" / "Proceed with a and b …": it
// re-enters the dispatch recursion
// against the current Proceed frame's lower layers, optionally with
// overriding arguments. Calling Proceed with no lower layer (i.e. inside
// the base method) is an error.
func (e *Evaluator) evalProceed(ex *ast.ProceedExpression) (runtime.Value, error) {
	if len(e.proceedStack) == 0 {
		return nil, runtime.NewError(runtime.KindLogic, "ProceedOutsideMethod", "Proceed used outside of a dispatched method body")
	}
	frame := e.proceedStack[len(e.proceedStack)-1]
	if len(frame.lower) == 0 {
		return nil, runtime.NewError(runtime.KindLogic, "ProceedHasNoLowerLayer", "Proceed called with no remaining layer below")
	}

	args := frame.args
	if len(ex.Arguments) > 0 {
		args = make([]runtime.Value, len(ex.Arguments))
		for i, a := range ex.Arguments {
			v, err := e.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
	}

	next := frame.lower[len(frame.lower)-1]
	nextLower := frame.lower[:len(frame.lower)-1]
	return e.invokeLayer(next, nextLower, frame.receiver, args)
}
