package interp

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/runtime"
)

// execStatement executes one statement, returning a non-none ctrl for
// Break/Continue/Return.
func (e *Evaluator) execStatement(s ast.Statement) (ctrl, error) {
	switch st := s.(type) {
	case *ast.UseStatement:
		return noCtrl, e.execUse(st)
	case *ast.ConceptDecl, *ast.SituationDecl:
		return noCtrl, nil // already registered by RegisterProgram
	case *ast.AssignmentStatement:
		v, err := e.eval(st.Value)
		if err != nil {
			return noCtrl, wrapLine(err, st.Pos().Line)
		}
		e.Env.Define(st.Name, v)
		return noCtrl, nil
	case *ast.CreateStatement:
		return noCtrl, e.execCreate(st)
	case *ast.SetStatement:
		return noCtrl, e.execSet(st)
	case *ast.PrintStatement:
		v, err := e.eval(st.Value)
		if err != nil {
			return noCtrl, wrapLine(err, st.Pos().Line)
		}
		e.Stdout.WriteString(v.String() + "\n")
		return noCtrl, nil
	case *ast.SwitchStatement:
		e.execSwitch(st)
		return noCtrl, nil
	case *ast.IfStatement:
		return e.execIf(st)
	case *ast.MatchStatement:
		return e.execMatch(st)
	case *ast.TryStatement:
		return e.execTry(st)
	case *ast.RepeatTimesStatement:
		return e.execRepeatTimes(st)
	case *ast.RepeatWhileStatement:
		return e.execRepeatWhile(st)
	case *ast.ForEachStatement:
		return e.execForEach(st)
	case *ast.ReturnStatement:
		if st.Value == nil {
			return ctrl{kind: ctrlReturn, value: runtime.None()}, nil
		}
		v, err := e.eval(st.Value)
		if err != nil {
			return noCtrl, wrapLine(err, st.Pos().Line)
		}
		return ctrl{kind: ctrlReturn, value: v}, nil
	case *ast.BreakStatement:
		return ctrl{kind: ctrlBreak}, nil
	case *ast.ContinueStatement:
		return ctrl{kind: ctrlContinue}, nil
	case *ast.ExpressionStatement:
		_, err := e.eval(st.Value)
		return noCtrl, wrapLine(err, st.Pos().Line)
	}
	return noCtrl, runtime.NewError(runtime.KindLogic, "NotImplemented", fmt.Sprintf("statement kind %T not implemented", s))
}

// execUse resolves and merges a module, then runs its Story once. A
// module is only run once per evaluator even if Use'd
// from more than one place, since its Concepts/Situations are already
// shared process state by the time a second Use is reached.
func (e *Evaluator) execUse(st *ast.UseStatement) error {
	path := fmt.Sprintf("%v", st.Path)
	if e.usedModules[path] {
		return nil
	}
	e.usedModules[path] = true
	if e.Resolver == nil {
		return wrapLine(runtime.NewError(runtime.KindSystem, "NoResolver", "Use requires a module resolver"), st.Pos().Line)
	}
	prog, err := e.Resolver.Resolve(st.Path)
	if err != nil {
		return wrapLine(err, st.Pos().Line)
	}
	e.RegisterProgram(prog)
	c, err := e.execBlock(prog.Story)
	if err != nil {
		return err
	}
	_ = c
	return nil
}

// execCreate instantiates a Concept: a fresh Dict with _concept set and
// every declared field at its default, published into scope, then the
// optional "with" initializers applied in order.
func (e *Evaluator) execCreate(st *ast.CreateStatement) error {
	decl, ok := e.Concepts[st.ConceptName]
	if !ok {
		return wrapLine(runtime.NewError(runtime.KindLookup, "UndefinedConcept", fmt.Sprintf("undefined concept %q", st.ConceptName)), st.Pos().Line)
	}
	inst := runtime.NewDict()
	inst.Set("_concept", runtime.Text{S: decl.Name})
	for _, f := range decl.Fields {
		inst.Set(f, runtime.DefaultNumeric())
	}
	e.Env.Define(st.InstName, inst)
	for _, fi := range st.With {
		v, err := e.eval(fi.Value)
		if err != nil {
			return wrapLine(err, st.Pos().Line)
		}
		inst.Set(fi.Field, v)
	}
	return nil
}

// execSet handles assignment to both identifier and
// Obj.Field targets, firing a registered When-observer on a field write.
// The observer depth counter unwinds with fireObserver's deferred
// decrement, so it is back at zero after each top-level Set —
// a Set nested inside an observer body must NOT reset it, or the
// reentrancy bound could never trip.
func (e *Evaluator) execSet(st *ast.SetStatement) error {
	err := e.setTarget(st.Target, st.Value)
	return wrapLine(err, st.Pos().Line)
}

func (e *Evaluator) setTarget(target ast.Expression, valueExpr ast.Expression) error {
	v, err := e.eval(valueExpr)
	if err != nil {
		return err
	}
	switch t := target.(type) {
	case *ast.Identifier:
		if e.Env.Assign(t.Value, v) {
			return nil
		}
		if this, ok := e.Env.Get("This"); ok {
			if d, ok := this.(runtime.Dict); ok && d.Has(t.Value) {
				d.Set(t.Value, v)
				return nil
			}
		}
		return runtime.NewError(runtime.KindLookup, "UndefinedVariable", fmt.Sprintf("undefined variable %q", t.Value))
	case *ast.MemberAccessExpression:
		objV, err := e.eval(t.Object)
		if err != nil {
			return err
		}
		d, ok := objV.(runtime.Dict)
		if !ok {
			return runtime.NewError(runtime.KindValidation, "NotADict", "member assignment target is not a Concept instance")
		}
		d.Set(t.Member, v)
		return e.fireObserver(d, t.Member)
	case *ast.IndexExpression:
		objV, err := e.eval(t.Left)
		if err != nil {
			return err
		}
		idxV, err := e.eval(t.Index)
		if err != nil {
			return err
		}
		return e.setIndexed(objV, idxV, v)
	}
	return runtime.NewError(runtime.KindValidation, "BadSetTarget", "Set target must be an identifier, member access, or index expression")
}

func (e *Evaluator) setIndexed(obj, idx, v runtime.Value) error {
	switch o := obj.(type) {
	case runtime.Seq:
		d, ok := idx.(runtime.Decimal)
		if !ok {
			return runtime.NewError(runtime.KindValidation, "WrongIndexType", "sequence index must be numeric")
		}
		return o.Set(int(d.D.IntPart()), v)
	case runtime.Dict:
		t, ok := idx.(runtime.Text)
		if !ok {
			return runtime.NewError(runtime.KindValidation, "WrongKeyType", "dict key must be Text")
		}
		o.Set(t.S, v)
		return nil
	}
	return runtime.NewError(runtime.KindValidation, "NotIndexable", fmt.Sprintf("%s is not indexable for assignment", obj.Kind()))
}

// fireObserver runs the Concept's registered When-observer for field, if
// any, under the bounded recursion depth.
func (e *Evaluator) fireObserver(d runtime.Dict, field string) error {
	conceptName := d.ConceptName()
	if conceptName == "" {
		return nil
	}
	decl, ok := e.Concepts[conceptName]
	if !ok {
		return nil
	}
	body, ok := decl.Observers[field]
	if !ok {
		return nil
	}
	if e.observerDepth >= maxObserverDepth {
		return runtime.NewError(runtime.KindLogic, "ObserverDepthExceeded", fmt.Sprintf("When %s changes observer recursion exceeded depth %d", field, maxObserverDepth))
	}
	e.observerDepth++
	defer func() { e.observerDepth-- }()

	e.Env.Push()
	e.Env.Define("This", d)
	c, err := e.execBlock(body)
	e.Env.Pop()
	if err != nil {
		return err
	}
	_ = c
	return nil
}

func (e *Evaluator) execSwitch(st *ast.SwitchStatement) {
	idx := -1
	for i, n := range e.active {
		if n == st.SituationName {
			idx = i
			break
		}
	}
	if st.On {
		if idx < 0 {
			e.active = append(e.active, st.SituationName)
		}
	} else if idx >= 0 {
		e.active = append(e.active[:idx], e.active[idx+1:]...)
	}
}

func (e *Evaluator) execIf(st *ast.IfStatement) (ctrl, error) {
	cond, err := e.eval(st.Condition)
	if err != nil {
		return noCtrl, wrapLine(err, st.Pos().Line)
	}
	if runtime.Truthy(cond) {
		return e.execScopedBlock(st.Consequence)
	}
	return e.execScopedBlock(st.Alternative)
}

// execMatch implements the "When <expr>: Is ... Otherwise ..." match
// form, distinct from a Concept's When-observer.
func (e *Evaluator) execMatch(st *ast.MatchStatement) (ctrl, error) {
	scrutinee, err := e.eval(st.Scrutinee)
	if err != nil {
		return noCtrl, wrapLine(err, st.Pos().Line)
	}
	for _, arm := range st.Arms {
		val, err := e.eval(arm.Value)
		if err != nil {
			return noCtrl, wrapLine(err, st.Pos().Line)
		}
		eq, err := runtime.Equals(scrutinee, val)
		if err != nil {
			return noCtrl, wrapLine(err, st.Pos().Line)
		}
		if eq {
			return e.execScopedBlock(arm.Body)
		}
	}
	return e.execScopedBlock(st.Otherwise)
}

// execTry implements try/catch/always reshaping: a
// runtime error from the try body is bound as an error Dict in the catch
// scope; always always runs and its own error supersedes; otherwise the
// try-or-catch result propagates.
func (e *Evaluator) execTry(st *ast.TryStatement) (ctrl, error) {
	bodyCtrl, bodyErr := e.execScopedBlock(st.Body)

	if bodyErr != nil && st.HasCatch {
		errDict := runtime.NewDict()
		line := st.Pos().Line
		cat, sub, msg := "Logic", "Internal", bodyErr.Error()
		if re, ok := bodyErr.(*runtimeErr); ok {
			line = re.line
			if he, ok := re.inner.(*runtime.HostError); ok {
				cat, sub, msg = string(he.Category), he.Subtype, he.Message
			} else {
				msg = re.inner.Error()
			}
		} else if he, ok := bodyErr.(*runtime.HostError); ok {
			cat, sub, msg = string(he.Category), he.Subtype, he.Message
		}
		errDict.Set("type", runtime.Text{S: cat + "." + sub})
		errDict.Set("message", runtime.Text{S: msg})
		errDict.Set("line", runtime.Decimal{D: decimal.NewFromInt(int64(line))})

		e.Env.Push()
		if st.CatchName != "" {
			e.Env.Define(st.CatchName, errDict)
		}
		bodyCtrl, bodyErr = e.execBlock(st.Catch)
		e.Env.Pop()
	}

	if st.HasAlways {
		alwaysCtrl, alwaysErr := e.execScopedBlock(st.Always)
		if alwaysErr != nil {
			return noCtrl, alwaysErr
		}
		if alwaysCtrl.kind != ctrlNone {
			return alwaysCtrl, nil
		}
	}
	return bodyCtrl, bodyErr
}

// execRepeatTimes implements "Repeat N times [called C]: …".
func (e *Evaluator) execRepeatTimes(st *ast.RepeatTimesStatement) (ctrl, error) {
	countV, err := e.eval(st.Count)
	if err != nil {
		return noCtrl, wrapLine(err, st.Pos().Line)
	}
	n, err := toInt(countV)
	if err != nil {
		return noCtrl, wrapLine(err, st.Pos().Line)
	}
	for i := 1; i <= n; i++ {
		e.Env.Push()
		if st.Counter != "" {
			e.Env.Define(st.Counter, runtime.Decimal{D: decimal.NewFromInt(int64(i))})
		}
		c, err := e.execBlock(st.Body)
		e.Env.Pop()
		if err != nil {
			return noCtrl, err
		}
		if c.kind == ctrlBreak {
			break
		}
		if c.kind == ctrlReturn {
			return c, nil
		}
	}
	return noCtrl, nil
}

func (e *Evaluator) execRepeatWhile(st *ast.RepeatWhileStatement) (ctrl, error) {
	for {
		condV, err := e.eval(st.Condition)
		if err != nil {
			return noCtrl, wrapLine(err, st.Pos().Line)
		}
		if !runtime.Truthy(condV) {
			break
		}
		c, err := e.execScopedBlock(st.Body)
		if err != nil {
			return noCtrl, err
		}
		if c.kind == ctrlBreak {
			break
		}
		if c.kind == ctrlReturn {
			return c, nil
		}
	}
	return noCtrl, nil
}

// execForEach recognizes stream values (Dicts with Next/HasMore natives)
// and iterates by polling Next() until None; otherwise the iterable must
// be a Seq.
func (e *Evaluator) execForEach(st *ast.ForEachStatement) (ctrl, error) {
	iterV, err := e.eval(st.Iterable)
	if err != nil {
		return noCtrl, wrapLine(err, st.Pos().Line)
	}

	runBody := func(item runtime.Value) (ctrl, error) {
		e.Env.Push()
		e.Env.Define(st.VarName, item)
		c, err := e.execBlock(st.Body)
		e.Env.Pop()
		return c, err
	}

	if d, ok := iterV.(runtime.Dict); ok && concurrency.IsStream(d) {
		nextFn, _ := d.Get("Next")
		native := nextFn.(runtime.Native)
		for {
			res, err := native.Fn(nil)
			if err != nil {
				return noCtrl, wrapLine(err, st.Pos().Line)
			}
			opt, ok := res.(runtime.Option)
			if !ok || opt.IsNone() {
				break
			}
			item, _ := opt.Unwrap()
			c, err := runBody(item)
			if err != nil {
				return noCtrl, err
			}
			if c.kind == ctrlBreak {
				break
			}
			if c.kind == ctrlReturn {
				return c, nil
			}
		}
		return noCtrl, nil
	}

	seq, ok := iterV.(runtime.Seq)
	if !ok {
		return noCtrl, wrapLine(runtime.NewError(runtime.KindValidation, "NotIterable", fmt.Sprintf("%s is not iterable", iterV.Kind())), st.Pos().Line)
	}
	for _, item := range seq.Items() {
		c, err := runBody(item)
		if err != nil {
			return noCtrl, err
		}
		if c.kind == ctrlBreak {
			break
		}
		if c.kind == ctrlReturn {
			return c, nil
		}
	}
	return noCtrl, nil
}

func toInt(v runtime.Value) (int, error) {
	switch x := v.(type) {
	case runtime.Decimal:
		return int(x.D.IntPart()), nil
	case runtime.Fast:
		return int(x.F), nil
	}
	return 0, runtime.NewError(runtime.KindValidation, "NotNumeric", "expected a numeric value")
}
