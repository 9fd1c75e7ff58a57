package stdlib

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/storylang/storylang/internal/runtime"
)

// fromGo lifts a decoded Go value (the shape encoding/json, BurntSushi
// toml, and gjson all produce) into a runtime Value. Numbers become
// Decimal so user code stays on the exact path by default.
func fromGo(v any) runtime.Value {
	switch x := v.(type) {
	case nil:
		return runtime.None()
	case bool:
		return runtime.Bool{B: x}
	case string:
		return runtime.Text{S: x}
	case float64:
		return runtime.Decimal{D: decimal.NewFromFloat(x)}
	case int64:
		return runtime.Decimal{D: decimal.NewFromInt(x)}
	case int:
		return runtime.Decimal{D: decimal.NewFromInt(int64(x))}
	case []any:
		items := make([]runtime.Value, len(x))
		for i, it := range x {
			items[i] = fromGo(it)
		}
		return runtime.NewSeq(items)
	case map[string]any:
		d := runtime.NewDict()
		for _, k := range sortedAnyKeys(x) {
			d.Set(k, fromGo(x[k]))
		}
		return d
	}
	return runtime.Text{S: fmt.Sprintf("%v", v)}
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// toGo lowers a runtime Value into the plain Go shape the encoders
// accept. Shared containers are materialized by value.
func toGo(v runtime.Value) (any, error) {
	switch x := v.(type) {
	case runtime.Decimal:
		if x.D.IsInteger() {
			return x.D.IntPart(), nil
		}
		f, _ := x.D.Float64()
		return f, nil
	case runtime.Fast:
		return x.F, nil
	case runtime.Text:
		return x.S, nil
	case runtime.Bool:
		return x.B, nil
	case runtime.Option:
		if x.IsNone() {
			return nil, nil
		}
		inner, _ := x.Unwrap()
		return toGo(inner)
	case runtime.Seq:
		items := x.Items()
		out := make([]any, len(items))
		for i, it := range items {
			g, err := toGo(it)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	case runtime.Dict:
		out := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			g, err := toGo(val)
			if err != nil {
				return nil, err
			}
			out[k] = g
		}
		return out, nil
	}
	return nil, runtime.NewError(runtime.KindValidation, "NotEncodable", fmt.Sprintf("%s cannot be encoded", v.Kind()))
}
