package jit

import (
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/runtime"
)

// maxArity is the largest native calling-convention arity the evaluator
// supports dispatching through.
const maxArity = 10

// CompiledMethod is the artifact produced for one (Concept,Method) pair:
// the deterministic argument layout plus a native-style execution
// closure.
type CompiledMethod struct {
	Concept    string
	Method     string
	FieldReads []string // lexicographic order step 2
	Params     []string // declaration order step 3
	HasWrites  bool      // true => receiver occupies argument slot 0
	IR         *ir.Module

	run func(fieldGet func(string) float64, args []float64, fieldSet func(string, float64)) (float64, error)
}

// Arity returns the total native argument count (receiver slot, if any,
// plus field reads plus params), used by the evaluator to decide whether
// the fixed-arity invocation table can still dispatch it.
func (c *CompiledMethod) Arity() int {
	n := len(c.FieldReads) + len(c.Params)
	if c.HasWrites {
		n++
	}
	return n
}

// Compile performs eligibility analysis on method and, if eligible,
// builds a CompiledMethod. The caller (the evaluator) is responsible for
// marking the (concept,method) pair compiled in the profiler on success
// OR on failure.
func Compile(concept, methodName string, method *ast.MethodDecl, lookupHelper func(name string) (*ast.MethodDecl, bool)) (*CompiledMethod, error) {
	a, err := analyze(method, lookupHelper)
	if err != nil {
		return nil, err
	}
	fields := a.FieldLayout()
	cm := &CompiledMethod{
		Concept:    concept,
		Method:     methodName,
		FieldReads: fields,
		Params:     append([]string{}, method.Params...),
		HasWrites:  a.hasWrites,
	}
	if cm.Arity() > maxArity {
		return nil, &eligibilityError{"compiled arity exceeds the fixed invocation table"}
	}
	cm.IR = buildIR(cm, method)
	cm.run = buildRunner(method, lookupHelper)
	return cm, nil
}

// Run executes the compiled method: fieldGet supplies This.<field> as
// f64 for each name in FieldReads, args supplies the declared parameters
// in order, and fieldSet is the host upcall a "Set This.Field = expr"
// invokes. The return value matches the interpreter's (as a Fast number,
// within one ULP); non-finite results are treated as 0.
func (c *CompiledMethod) Run(fieldGet func(string) float64, args []float64, fieldSet func(string, float64)) (runtime.Value, error) {
	f, err := c.run(fieldGet, args, fieldSet)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	return runtime.Fast{F: f}, nil
}

// buildIR lowers the method's native signature (and, for straight-line
// bodies with no control flow, its expression tree) into an LLVM IR
// function via github.com/llir/llvm. The IR is retained for caching and
// inspection; the Run closure above (not this IR) is what the evaluator
// invokes, since generated machine code cannot execute in-process
// without cgo — see DESIGN.md.
func buildIR(cm *CompiledMethod, method *ast.MethodDecl) *ir.Module {
	m := ir.NewModule()
	var params []*ir.Param
	if cm.HasWrites {
		params = append(params, ir.NewParam("self", types.Double))
	}
	for _, f := range cm.FieldReads {
		params = append(params, ir.NewParam("field_"+f, types.Double))
	}
	for _, p := range cm.Params {
		params = append(params, ir.NewParam("arg_"+p, types.Double))
	}
	fn := m.NewFunc(irName(cm.Concept, cm.Method), types.Double, params...)
	entry := fn.NewBlock("entry")

	locals := map[string]value.Value{}
	idx := 0
	if cm.HasWrites {
		locals["self"] = fn.Params[idx]
		idx++
	}
	for _, f := range cm.FieldReads {
		locals["field_"+f] = fn.Params[idx]
		idx++
	}
	for _, p := range cm.Params {
		locals["arg_"+p] = fn.Params[idx]
		idx++
	}

	if val, ok := lowerStraightLine(method.Body, entry, fieldLocalNames(cm), argLocalNames(cm), locals); ok {
		entry.NewRet(val)
	} else {
		// Control flow present: the real execution path is the Run
		// closure; the IR function body is left as a documented stub
		// returning zero so the module still verifies structurally.
		entry.NewRet(constant.NewFloat(types.Double, 0))
	}
	return m
}

func irName(concept, method string) string { return concept + "__" + method }

func fieldLocalNames(cm *CompiledMethod) map[string]string {
	out := map[string]string{}
	for _, f := range cm.FieldReads {
		out[f] = "field_" + f
	}
	return out
}

func argLocalNames(cm *CompiledMethod) map[string]string {
	out := map[string]string{}
	for _, p := range cm.Params {
		out[p] = "arg_" + p
	}
	return out
}

// lowerStraightLine attempts to lower a body with no If/RepeatTimes/Set
// into a single IR expression (a Return of a numeric expression). It
// returns ok=false for anything else, leaving buildIR to emit a stub.
func lowerStraightLine(body []ast.Statement, blk *ir.Block, fieldNames, argNames map[string]string, locals map[string]value.Value) (value.Value, bool) {
	if len(body) != 1 {
		return nil, false
	}
	ret, ok := body[0].(*ast.ReturnStatement)
	if !ok || ret.Value == nil {
		return nil, false
	}
	return lowerExpr(ret.Value, blk, fieldNames, argNames, locals)
}

func lowerExpr(e ast.Expression, blk *ir.Block, fieldNames, argNames map[string]string, locals map[string]value.Value) (value.Value, bool) {
	switch ex := e.(type) {
	case *ast.NumberLiteral:
		d, err := runtime.ParseDecimal(ex.Lit)
		if err != nil {
			return nil, false
		}
		f, _ := d.(runtime.Decimal)
		v, _ := f.D.Float64()
		return constant.NewFloat(types.Double, v), true
	case *ast.Identifier:
		if v, ok := locals[argNames[ex.Value]]; ok {
			return v, true
		}
		return nil, false
	case *ast.MemberAccessExpression:
		if id, ok := ex.Object.(*ast.Identifier); ok && id.Value == "This" {
			if v, ok := locals[fieldNames[ex.Member]]; ok {
				return v, true
			}
		}
		return nil, false
	case *ast.UnaryExpression:
		v, ok := lowerExpr(ex.Operand, blk, fieldNames, argNames, locals)
		if !ok {
			return nil, false
		}
		if ex.Operator == "-" {
			return blk.NewFNeg(v), true
		}
		return nil, false
	case *ast.BinaryExpression:
		l, ok := lowerExpr(ex.Left, blk, fieldNames, argNames, locals)
		if !ok {
			return nil, false
		}
		r, ok := lowerExpr(ex.Right, blk, fieldNames, argNames, locals)
		if !ok {
			return nil, false
		}
		switch ex.Operator {
		case "+":
			return blk.NewFAdd(l, r), true
		case "-":
			return blk.NewFSub(l, r), true
		case "*":
			return blk.NewFMul(l, r), true
		case "/":
			return blk.NewFDiv(l, r), true
		case ">":
			return selectBool(blk, blk.NewFCmp(enum.FPredOGT, l, r)), true
		case "<":
			return selectBool(blk, blk.NewFCmp(enum.FPredOLT, l, r)), true
		case ">=":
			return selectBool(blk, blk.NewFCmp(enum.FPredOGE, l, r)), true
		case "<=":
			return selectBool(blk, blk.NewFCmp(enum.FPredOLE, l, r)), true
		case "=":
			return selectBool(blk, blk.NewFCmp(enum.FPredOEQ, l, r)), true
		case "!=":
			return selectBool(blk, blk.NewFCmp(enum.FPredONE, l, r)), true
		}
	}
	return nil, false
}

func selectBool(blk *ir.Block, cond value.Value) value.Value {
	return blk.NewSelect(cond, constant.NewFloat(types.Double, 1), constant.NewFloat(types.Double, 0))
}
