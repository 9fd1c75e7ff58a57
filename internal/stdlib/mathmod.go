package stdlib

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/storylang/storylang/internal/runtime"
)

// mathModule's helpers are kind-preserving: a Decimal argument comes
// back as a Decimal (rebuilt from the f64 result's shortest round-trip
// text), a Fast argument comes back Fast.
func mathModule() runtime.Dict {
	unary := func(name string, f func(float64) float64) runtime.Native {
		return native(name, func(args []runtime.Value) (runtime.Value, error) {
			x, err := floatArg(args, 0, name)
			if err != nil {
				return nil, err
			}
			out := f(x)
			if math.IsNaN(out) {
				return nil, runtime.NewError(runtime.KindLogic, "InvalidOperation", name+": result is undefined for this input")
			}
			return sameKind(args[0], out), nil
		})
	}
	binary := func(name string, f func(a, b float64) float64) runtime.Native {
		return native(name, func(args []runtime.Value) (runtime.Value, error) {
			a, err := floatArg(args, 0, name)
			if err != nil {
				return nil, err
			}
			b, err := floatArg(args, 1, name)
			if err != nil {
				return nil, err
			}
			out := f(a, b)
			if math.IsNaN(out) {
				return nil, runtime.NewError(runtime.KindLogic, "InvalidOperation", name+": result is undefined for these inputs")
			}
			return sameKind(args[0], out), nil
		})
	}
	return module(map[string]runtime.Value{
		"Sqrt":  unary("Math.Sqrt", math.Sqrt),
		"Abs":   unary("Math.Abs", math.Abs),
		"Floor": unary("Math.Floor", math.Floor),
		"Ceil":  unary("Math.Ceil", math.Ceil),
		"Round": unary("Math.Round", math.Round),
		"Log":   unary("Math.Log", math.Log),
		"Sin":   unary("Math.Sin", math.Sin),
		"Cos":   unary("Math.Cos", math.Cos),
		"Pow":   binary("Math.Pow", math.Pow),
		"Min":   binary("Math.Min", math.Min),
		"Max":   binary("Math.Max", math.Max),
		"Pi":    runtime.Fast{F: math.Pi},
	})
}

// sameKind rebuilds an f64 result in the kind of the operand it came
// from: exact Decimal callers stay Decimal, Fast callers stay Fast.
func sameKind(in runtime.Value, f float64) runtime.Value {
	if _, ok := in.(runtime.Decimal); ok {
		d, err := decimal.NewFromString(strconv.FormatFloat(f, 'g', -1, 64))
		if err != nil {
			d = decimal.Zero
		}
		return runtime.Decimal{D: d}
	}
	return runtime.Fast{F: f}
}
