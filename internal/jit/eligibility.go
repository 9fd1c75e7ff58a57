// Package jit implements the hot-method compilation bridge: eligibility
// analysis over the compilable statement subset, the deterministic f64
// calling convention, and the host field-write callback. Eligible bodies
// lower to LLVM IR via github.com/llir/llvm for the native signature and
// field layout, while the invocation path is a specialized float64
// closure; see DESIGN.md for the execution-path note.
package jit

import (
	"fmt"
	"sort"

	"github.com/storylang/storylang/internal/ast"
)

// maxInlineStatements bounds an inlinable zero-arg helper body.
const maxInlineStatements = 10

// eligibilityError reports why a method body could not be compiled.
type eligibilityError struct{ reason string }

func (e *eligibilityError) Error() string { return e.reason }

// analysis accumulates the field-read set and whether any Set statement
// appears, while walking a method body for compilability.
type analysis struct {
	method     *ast.MethodDecl
	reads      map[string]bool
	hasWrites  bool
	lookupHelp func(name string) (*ast.MethodDecl, bool)
	inlining   map[string]bool // helper names on the current inline path
}

// analyze walks method's body, returning an error for the first
// unsupported construct encountered.
func analyze(method *ast.MethodDecl, lookupHelper func(name string) (*ast.MethodDecl, bool)) (*analysis, error) {
	a := &analysis{
		method:     method,
		reads:      map[string]bool{},
		lookupHelp: lookupHelper,
		inlining:   map[string]bool{method.Name: true},
	}
	if err := a.walkStatements(method.Body, true); err != nil {
		return nil, err
	}
	return a, nil
}

// walkStatements checks each statement is one of: Return, Assignment
// (local float var), Set on This.Field, If, RepeatTimes without a
// counter, and expression statements built from the numeric/boolean
// subset. topLevel distinguishes the outer method body (where all of the
// above are legal) from an inlined helper body (where Set is not, since
// inlinable helpers are read-only).
func (a *analysis) walkStatements(stmts []ast.Statement, topLevel bool) error {
	for _, s := range stmts {
		if err := a.walkStatement(s, topLevel); err != nil {
			return err
		}
	}
	return nil
}

func (a *analysis) walkStatement(s ast.Statement, topLevel bool) error {
	switch st := s.(type) {
	case *ast.ReturnStatement:
		if st.Value != nil {
			return a.walkExpr(st.Value)
		}
		return nil
	case *ast.AssignmentStatement:
		return a.walkExpr(st.Value)
	case *ast.SetStatement:
		if !topLevel {
			return &eligibilityError{"Set is not allowed inside an inlined helper"}
		}
		member, ok := st.Target.(*ast.MemberAccessExpression)
		if !ok {
			return &eligibilityError{"Set target must be This.Field"}
		}
		if id, ok := member.Object.(*ast.Identifier); !ok || id.Value != "This" {
			return &eligibilityError{"Set target must be This.Field"}
		}
		a.hasWrites = true
		return a.walkExpr(st.Value)
	case *ast.IfStatement:
		if err := a.walkExpr(st.Condition); err != nil {
			return err
		}
		if err := a.walkStatements(st.Consequence, topLevel); err != nil {
			return err
		}
		return a.walkStatements(st.Alternative, topLevel)
	case *ast.RepeatTimesStatement:
		if st.Counter != "" {
			return &eligibilityError{"RepeatTimes with a bound counter is not compilable"}
		}
		if err := a.walkExpr(st.Count); err != nil {
			return err
		}
		return a.walkStatements(st.Body, topLevel)
	case *ast.ExpressionStatement:
		return a.walkExpr(st.Value)
	default:
		return &eligibilityError{fmt.Sprintf("statement kind %T is not compilable", s)}
	}
}

func (a *analysis) walkExpr(e ast.Expression) error {
	switch ex := e.(type) {
	case *ast.NumberLiteral, *ast.BooleanLiteral, *ast.Identifier:
		return nil
	case *ast.BinaryExpression:
		if ex.Operator == "%" {
			return &eligibilityError{"modulo is not part of the compilable expression subset"}
		}
		if err := a.walkExpr(ex.Left); err != nil {
			return err
		}
		return a.walkExpr(ex.Right)
	case *ast.UnaryExpression:
		return a.walkExpr(ex.Operand)
	case *ast.MemberAccessExpression:
		if id, ok := ex.Object.(*ast.Identifier); ok && id.Value == "This" {
			a.reads[ex.Member] = true
			return nil
		}
		return &eligibilityError{"member access is only compilable on This"}
	case *ast.MethodCallExpression:
		if id, ok := ex.Object.(*ast.Identifier); ok && id.Value == "This" && len(ex.Arguments) == 0 {
			helper, ok := a.lookupHelp(ex.Method)
			if !ok {
				return &eligibilityError{fmt.Sprintf("unknown helper method %s", ex.Method)}
			}
			return a.inlineHelper(helper)
		}
		return &eligibilityError{"method calls with arguments are not compilable"}
	default:
		return &eligibilityError{fmt.Sprintf("expression kind %T is not compilable", e)}
	}
}

// inlineHelper validates and merges field reads from a zero-arg
// read-only helper body. A helper already on the
// current inline path means direct or mutual recursion back into the
// method being compiled, which is not inlinable.
func (a *analysis) inlineHelper(helper *ast.MethodDecl) error {
	if a.inlining[helper.Name] {
		return &eligibilityError{"helper recursion is not inlinable"}
	}
	a.inlining[helper.Name] = true
	defer delete(a.inlining, helper.Name)
	if len(helper.Params) != 0 {
		return &eligibilityError{"inlined helper must be zero-arg"}
	}
	if len(helper.Body) > maxInlineStatements {
		return &eligibilityError{"inlined helper body exceeds 10 statements"}
	}
	for _, s := range helper.Body {
		switch s.(type) {
		case *ast.IfStatement, *ast.RepeatTimesStatement, *ast.RepeatWhileStatement,
			*ast.ForEachStatement, *ast.TryStatement, *ast.MatchStatement, *ast.BreakStatement, *ast.ContinueStatement:
			return &eligibilityError{"inlined helper may not contain control flow"}
		}
	}
	return a.walkStatements(helper.Body, false)
}

// FieldLayout returns the sorted field-read list.
func (a *analysis) FieldLayout() []string {
	names := make([]string, 0, len(a.reads))
	for k := range a.reads {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
