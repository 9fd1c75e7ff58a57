package jit

import (
	"strconv"

	"github.com/storylang/storylang/internal/ast"
)

// buildRunner closes over method (and the helper lookup needed to
// re-inline This.Helper() calls) to produce the float64-only execution
// closure invoked by CompiledMethod.Run.
func buildRunner(method *ast.MethodDecl, lookupHelper func(name string) (*ast.MethodDecl, bool)) func(fieldGet func(string) float64, args []float64, fieldSet func(string, float64)) (float64, error) {
	return func(fieldGet func(string) float64, args []float64, fieldSet func(string, float64)) (float64, error) {
		locals := map[string]float64{}
		for i, p := range method.Params {
			if i < len(args) {
				locals[p] = args[i]
			}
		}
		rc := &runCtx{fieldGet: fieldGet, fieldSet: fieldSet, lookupHelper: lookupHelper}
		result, returned, err := rc.execBody(method.Body, locals)
		if err != nil {
			return 0, err
		}
		if !returned {
			return 0, nil
		}
		return result, nil
	}
}

// runCtx threads the host field-read/write upcalls and helper-inlining
// lookup through one compiled-method invocation.
type runCtx struct {
	fieldGet     func(string) float64
	fieldSet     func(string, float64)
	lookupHelper func(name string) (*ast.MethodDecl, bool)
}

// execBody runs stmts against locals, returning (value, returned, err).
// returned is true once a Return statement executes; callers propagate
// it upward so an early Return inside an If/RepeatTimes short-circuits
// the rest of the compiled body, matching interpreter semantics.
func (rc *runCtx) execBody(stmts []ast.Statement, locals map[string]float64) (float64, bool, error) {
	for _, s := range stmts {
		switch st := s.(type) {
		case *ast.ReturnStatement:
			if st.Value == nil {
				return 0, true, nil
			}
			v, err := rc.eval(st.Value, locals)
			if err != nil {
				return 0, false, err
			}
			return v, true, nil
		case *ast.AssignmentStatement:
			v, err := rc.eval(st.Value, locals)
			if err != nil {
				return 0, false, err
			}
			locals[st.Name] = v
		case *ast.SetStatement:
			member := st.Target.(*ast.MemberAccessExpression)
			v, err := rc.eval(st.Value, locals)
			if err != nil {
				return 0, false, err
			}
			rc.fieldSet(member.Member, v)
		case *ast.IfStatement:
			cond, err := rc.eval(st.Condition, locals)
			if err != nil {
				return 0, false, err
			}
			body := st.Alternative
			if cond != 0 {
				body = st.Consequence
			}
			v, returned, err := rc.execBody(body, locals)
			if err != nil || returned {
				return v, returned, err
			}
		case *ast.RepeatTimesStatement:
			countF, err := rc.eval(st.Count, locals)
			if err != nil {
				return 0, false, err
			}
			for i := 0; i < int(countF); i++ {
				v, returned, err := rc.execBody(st.Body, locals)
				if err != nil || returned {
					return v, returned, err
				}
			}
		case *ast.ExpressionStatement:
			if _, err := rc.eval(st.Value, locals); err != nil {
				return 0, false, err
			}
		}
	}
	return 0, false, nil
}

func (rc *runCtx) eval(e ast.Expression, locals map[string]float64) (float64, error) {
	switch ex := e.(type) {
	case *ast.NumberLiteral:
		return parseFloat(ex.Lit)
	case *ast.BooleanLiteral:
		if ex.Val {
			return 1, nil
		}
		return 0, nil
	case *ast.Identifier:
		if v, ok := locals[ex.Value]; ok {
			return v, nil
		}
		return 0, nil
	case *ast.MemberAccessExpression:
		return rc.fieldGet(ex.Member), nil
	case *ast.UnaryExpression:
		v, err := rc.eval(ex.Operand, locals)
		if err != nil {
			return 0, err
		}
		switch ex.Operator {
		case "-":
			return -v, nil
		case "Not":
			if v == 0 {
				return 1, nil
			}
			return 0, nil
		}
		return 0, nil
	case *ast.BinaryExpression:
		l, err := rc.eval(ex.Left, locals)
		if err != nil {
			return 0, err
		}
		r, err := rc.eval(ex.Right, locals)
		if err != nil {
			return 0, err
		}
		return evalBinaryFloat(ex.Operator, l, r)
	case *ast.MethodCallExpression:
		helper, _ := rc.lookupHelper(ex.Method)
		sub := map[string]float64{}
		v, _, err := rc.execBody(helper.Body, sub)
		return v, err
	}
	return 0, nil
}

func evalBinaryFloat(op string, l, r float64) (float64, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	case ">":
		return boolF(l > r), nil
	case "<":
		return boolF(l < r), nil
	case ">=":
		return boolF(l >= r), nil
	case "<=":
		return boolF(l <= r), nil
	case "=":
		return boolF(l == r), nil
	case "!=":
		return boolF(l != r), nil
	}
	return 0, nil
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func parseFloat(lit string) (float64, error) {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, err
	}
	return f, nil
}
