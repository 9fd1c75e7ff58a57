package interp

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/runtime"
)

// eval evaluates an expression to a Value.
func (e *Evaluator) eval(expr ast.Expression) (runtime.Value, error) {
	switch ex := expr.(type) {
	case *ast.NumberLiteral:
		return runtime.ParseDecimal(ex.Lit)
	case *ast.StringLiteral:
		return runtime.Text{S: ex.Val}, nil
	case *ast.BooleanLiteral:
		return runtime.Bool{B: ex.Val}, nil
	case *ast.Identifier:
		if v, ok := e.Env.Get(ex.Value); ok {
			return v, nil
		}
		return nil, runtime.NewError(runtime.KindLookup, "UndefinedVariable", fmt.Sprintf("undefined variable %q", ex.Value))
	case *ast.SeqLiteral:
		items := make([]runtime.Value, len(ex.Elements))
		for i, el := range ex.Elements {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return runtime.NewSeq(items), nil
	case *ast.DictLiteral:
		d := runtime.NewDict()
		for _, entry := range ex.Entries {
			kv, err := e.eval(entry.Key)
			if err != nil {
				return nil, err
			}
			key, ok := kv.(runtime.Text)
			if !ok {
				return nil, runtime.NewError(runtime.KindValidation, "WrongKeyType", "dict literal keys must be Text")
			}
			vv, err := e.eval(entry.Value)
			if err != nil {
				return nil, err
			}
			d.Set(key.S, vv)
		}
		return d, nil
	case *ast.BinaryExpression:
		return e.evalBinary(ex)
	case *ast.UnaryExpression:
		return e.evalUnary(ex)
	case *ast.IndexExpression:
		return e.evalIndex(ex)
	case *ast.MemberAccessExpression:
		return e.evalMemberAccess(ex)
	case *ast.MethodCallExpression:
		return e.evalMethodCall(ex)
	case *ast.FunctionCallExpression:
		return e.evalFunctionCall(ex)
	case *ast.DoInBackgroundExpression:
		return e.evalDoInBackground(ex)
	case *ast.ProceedExpression:
		return e.evalProceed(ex)
	}
	return nil, runtime.NewError(runtime.KindLogic, "NotImplemented", fmt.Sprintf("expression kind %T not implemented", expr))
}

func (e *Evaluator) evalBinary(ex *ast.BinaryExpression) (runtime.Value, error) {
	// Short-circuit And/Or before evaluating the right operand.
	switch ex.Operator {
	case "And":
		l, err := e.eval(ex.Left)
		if err != nil {
			return nil, err
		}
		if !runtime.Truthy(l) {
			return runtime.Bool{B: false}, nil
		}
		r, err := e.eval(ex.Right)
		if err != nil {
			return nil, err
		}
		return runtime.Bool{B: runtime.Truthy(r)}, nil
	case "Or":
		l, err := e.eval(ex.Left)
		if err != nil {
			return nil, err
		}
		if runtime.Truthy(l) {
			return runtime.Bool{B: true}, nil
		}
		r, err := e.eval(ex.Right)
		if err != nil {
			return nil, err
		}
		return runtime.Bool{B: runtime.Truthy(r)}, nil
	}

	l, err := e.eval(ex.Left)
	if err != nil {
		return nil, err
	}
	r, err := e.eval(ex.Right)
	if err != nil {
		return nil, err
	}

	switch ex.Operator {
	case "+":
		return runtime.Add(l, r)
	case "-":
		return runtime.Sub(l, r)
	case "*":
		return runtime.Mul(l, r)
	case "/":
		return runtime.Div(l, r)
	case "%":
		return runtime.Mod(l, r)
	case "=":
		eq, err := runtime.Equals(l, r)
		return runtime.Bool{B: eq}, err
	case "!=":
		eq, err := runtime.Equals(l, r)
		return runtime.Bool{B: !eq}, err
	case ">", "<", ">=", "<=":
		cmp, err := runtime.Compare(l, r)
		if err != nil {
			return nil, err
		}
		switch ex.Operator {
		case ">":
			return runtime.Bool{B: cmp > 0}, nil
		case "<":
			return runtime.Bool{B: cmp < 0}, nil
		case ">=":
			return runtime.Bool{B: cmp >= 0}, nil
		case "<=":
			return runtime.Bool{B: cmp <= 0}, nil
		}
	}
	return nil, runtime.NewError(runtime.KindValidation, "UnknownOperator", fmt.Sprintf("unknown binary operator %q", ex.Operator))
}

func (e *Evaluator) evalUnary(ex *ast.UnaryExpression) (runtime.Value, error) {
	v, err := e.eval(ex.Operand)
	if err != nil {
		return nil, err
	}
	switch ex.Operator {
	case "-":
		switch x := v.(type) {
		case runtime.Decimal:
			return runtime.Decimal{D: x.D.Neg()}, nil
		case runtime.Fast:
			return runtime.Fast{F: -x.F}, nil
		}
		return nil, runtime.NewError(runtime.KindValidation, "NotNumeric", "unary '-' requires a numeric operand")
	case "Not":
		return runtime.Bool{B: !runtime.Truthy(v)}, nil
	}
	return nil, runtime.NewError(runtime.KindValidation, "UnknownOperator", fmt.Sprintf("unknown unary operator %q", ex.Operator))
}

func (e *Evaluator) evalIndex(ex *ast.IndexExpression) (runtime.Value, error) {
	obj, err := e.eval(ex.Left)
	if err != nil {
		return nil, err
	}
	idx, err := e.eval(ex.Index)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case runtime.Seq:
		i, err := indexInt(idx)
		if err != nil {
			return nil, err
		}
		return o.Get(i)
	case runtime.Text:
		i, err := indexInt(idx)
		if err != nil {
			return nil, err
		}
		return runtime.TextIndex(o, i)
	case runtime.Dict:
		return runtime.DictIndex(o, idx)
	}
	return nil, runtime.NewError(runtime.KindValidation, "NotIndexable", fmt.Sprintf("%s is not indexable", obj.Kind()))
}

func indexInt(v runtime.Value) (int, error) {
	d, ok := v.(runtime.Decimal)
	if !ok {
		return 0, runtime.NewError(runtime.KindValidation, "WrongIndexType", "index must be a numeric value")
	}
	return int(d.D.IntPart()), nil
}

// evalMemberAccess resolves obj.name through the property-access
// fallback order: reserved names, then Dict keys, then dispatch.
func (e *Evaluator) evalMemberAccess(ex *ast.MemberAccessExpression) (runtime.Value, error) {
	obj, err := e.eval(ex.Object)
	if err != nil {
		return nil, err
	}
	return e.propertyAccess(obj, ex.Member)
}

func (e *Evaluator) propertyAccess(obj runtime.Value, name string) (runtime.Value, error) {
	switch name {
	case "Length", "Size":
		n, err := runtime.Len(obj)
		if err == nil {
			return runtime.Decimal{D: intToDecimal(n)}, nil
		}
	case "IsValid":
		switch o := obj.(type) {
		case runtime.WeakSeq:
			return runtime.Bool{B: o.IsValid()}, nil
		case runtime.WeakDict:
			return runtime.Bool{B: o.IsValid()}, nil
		}
	case "Get":
		switch o := obj.(type) {
		case runtime.WeakSeq:
			return boundNative("Get", func([]runtime.Value) (runtime.Value, error) { return o.Get() }), nil
		case runtime.WeakDict:
			return boundNative("Get", func([]runtime.Value) (runtime.Value, error) { return o.Get() }), nil
		}
	case "IsSome":
		if o, ok := obj.(runtime.Option); ok {
			return runtime.Bool{B: o.IsSome()}, nil
		}
	case "IsNone":
		if o, ok := obj.(runtime.Option); ok {
			return runtime.Bool{B: o.IsNone()}, nil
		}
	case "Unwrap":
		if o, ok := obj.(runtime.Option); ok {
			return boundNative("Unwrap", func([]runtime.Value) (runtime.Value, error) { return o.Unwrap() }), nil
		}
	case "UnwrapOr":
		if o, ok := obj.(runtime.Option); ok {
			return boundNative("UnwrapOr", func(args []runtime.Value) (runtime.Value, error) {
				if len(args) != 1 {
					return nil, runtime.NewError(runtime.KindValidation, "ArityMismatch", "UnwrapOr expects one argument")
				}
				return o.UnwrapOr(args[0]), nil
			}), nil
		}
	case "Await":
		if o, ok := obj.(runtime.TaskHandle); ok {
			return boundNative("Await", func([]runtime.Value) (runtime.Value, error) { return o.Await() }), nil
		}
	}

	if d, ok := obj.(runtime.Dict); ok {
		if v, ok := d.Get(name); ok {
			return v, nil
		}
		return e.dispatchMethod(d, name, nil)
	}
	return nil, runtime.NewError(runtime.KindLookup, "UnknownMember", fmt.Sprintf("%s has no member %q", obj.Kind(), name))
}

func boundNative(name string, fn func([]runtime.Value) (runtime.Value, error)) runtime.Native {
	return runtime.Native{Name: name, Fn: fn}
}

func (e *Evaluator) evalMethodCall(ex *ast.MethodCallExpression) (runtime.Value, error) {
	obj, err := e.eval(ex.Object)
	if err != nil {
		return nil, err
	}
	args := make([]runtime.Value, len(ex.Arguments))
	for i, a := range ex.Arguments {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if d, ok := obj.(runtime.Dict); ok {
		if _, hasField := d.Get(ex.Method); !hasField {
			return e.dispatchMethod(d, ex.Method, args)
		}
	}
	// Reserved-name / native-callable member accessed then invoked, e.g.
	// weak.Get() via postfix chain landing here when parsed as a method
	// call with empty args; property access already binds a Native for
	// these, so route through it.
	bound, err := e.propertyAccess(obj, ex.Method)
	if err != nil {
		return nil, err
	}
	if n, ok := bound.(runtime.Native); ok {
		return n.Fn(args)
	}
	return bound, nil
}

func (e *Evaluator) evalFunctionCall(ex *ast.FunctionCallExpression) (runtime.Value, error) {
	callee, err := e.eval(ex.Callee)
	if err != nil {
		return nil, err
	}
	n, ok := callee.(runtime.Native)
	if !ok {
		return nil, runtime.NewError(runtime.KindValidation, "NotCallable", fmt.Sprintf("%s is not callable", callee.Kind()))
	}
	args := make([]runtime.Value, len(ex.Arguments))
	for i, a := range ex.Arguments {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return n.Fn(args)
}

func intToDecimal(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }
