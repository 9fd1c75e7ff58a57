package stdlib

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/storylang/storylang/internal/runtime"
)

// jsonModule reads JSON through gjson and writes through sjson.
func jsonModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Parse": native("JSON.Parse", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "JSON.Parse")
			if err != nil {
				return nil, err
			}
			if !gjson.Valid(text) {
				return nil, runtime.NewError(runtime.KindValidation, "MalformedFormat", "JSON.Parse: invalid JSON document")
			}
			return fromGo(gjson.Parse(text).Value()), nil
		}),
		"Get": native("JSON.Get", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "JSON.Get")
			if err != nil {
				return nil, err
			}
			path, err := textArg(args, 1, "JSON.Get")
			if err != nil {
				return nil, err
			}
			res := gjson.Get(text, path)
			if !res.Exists() {
				return runtime.None(), nil
			}
			return runtime.Some(fromGo(res.Value())), nil
		}),
		"Set": native("JSON.Set", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "JSON.Set")
			if err != nil {
				return nil, err
			}
			path, err := textArg(args, 1, "JSON.Set")
			if err != nil {
				return nil, err
			}
			if len(args) < 3 {
				return nil, runtime.NewError(runtime.KindValidation, "ArityMismatch", "JSON.Set expects document, path, and value")
			}
			goVal, err := toGo(args[2])
			if err != nil {
				return nil, err
			}
			out, err := sjson.Set(text, path, goVal)
			if err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "MalformedFormat", "JSON.Set: "+err.Error(), err)
			}
			return runtime.Text{S: out}, nil
		}),
		"Delete": native("JSON.Delete", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "JSON.Delete")
			if err != nil {
				return nil, err
			}
			path, err := textArg(args, 1, "JSON.Delete")
			if err != nil {
				return nil, err
			}
			out, err := sjson.Delete(text, path)
			if err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "MalformedFormat", "JSON.Delete: "+err.Error(), err)
			}
			return runtime.Text{S: out}, nil
		}),
		"Stringify": native("JSON.Stringify", func(args []runtime.Value) (runtime.Value, error) {
			if err := need(args, 1, "JSON.Stringify"); err != nil {
				return nil, err
			}
			goVal, err := toGo(args[0])
			if err != nil {
				return nil, err
			}
			// sjson modifies documents in place but has no whole-root
			// encode, so marshalling the lowered value goes through
			// encoding/json.
			out, err := json.Marshal(goVal)
			if err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "NotEncodable", "JSON.Stringify: "+err.Error(), err)
			}
			return runtime.Text{S: string(out)}, nil
		}),
	})
}
