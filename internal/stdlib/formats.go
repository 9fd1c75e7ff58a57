package stdlib

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"html"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/storylang/storylang/internal/runtime"
)

// tomlModule parses and emits TOML via BurntSushi/toml, the same decoder
// the project-manifest reader uses.
func tomlModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Parse": native("TOML.Parse", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "TOML.Parse")
			if err != nil {
				return nil, err
			}
			var out map[string]any
			if _, err := toml.Decode(text, &out); err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "MalformedFormat", "TOML.Parse: "+err.Error(), err)
			}
			return fromGo(normalizeAny(out)), nil
		}),
		"Stringify": native("TOML.Stringify", func(args []runtime.Value) (runtime.Value, error) {
			d, err := dictArg(args, 0, "TOML.Stringify")
			if err != nil {
				return nil, err
			}
			goVal, err := toGo(d)
			if err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(goVal); err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "NotEncodable", "TOML.Stringify: "+err.Error(), err)
			}
			return runtime.Text{S: buf.String()}, nil
		}),
	})
}

// normalizeAny walks the toml decoder's output, rewriting arrays of
// tables ([]map[string]any) into []any so fromGo sees one slice shape;
// leaves such as int64 are passed through unchanged.
func normalizeAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeAny(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeAny(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeAny(val)
		}
		return out
	default:
		return v
	}
}

// csvModule parses CSV text into a Seq of row-Seqs and back.
func csvModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Parse": native("CSV.Parse", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "CSV.Parse")
			if err != nil {
				return nil, err
			}
			records, err := csv.NewReader(strings.NewReader(text)).ReadAll()
			if err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "MalformedFormat", "CSV.Parse: "+err.Error(), err)
			}
			rows := make([]runtime.Value, len(records))
			for i, rec := range records {
				cells := make([]runtime.Value, len(rec))
				for j, c := range rec {
					cells[j] = runtime.Text{S: c}
				}
				rows[i] = runtime.NewSeq(cells)
			}
			return runtime.NewSeq(rows), nil
		}),
		"Stringify": native("CSV.Stringify", func(args []runtime.Value) (runtime.Value, error) {
			rows, err := seqArg(args, 0, "CSV.Stringify")
			if err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			w := csv.NewWriter(&buf)
			for _, rowV := range rows.Items() {
				row, ok := rowV.(runtime.Seq)
				if !ok {
					return nil, runtime.NewError(runtime.KindValidation, "WrongType", "CSV.Stringify expects a Seq of row Seqs")
				}
				cells := row.Items()
				rec := make([]string, len(cells))
				for j, c := range cells {
					rec[j] = c.String()
				}
				if err := w.Write(rec); err != nil {
					return nil, runtime.WrapError(runtime.KindSystem, "IOError", "CSV.Stringify: "+err.Error(), err)
				}
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return nil, runtime.WrapError(runtime.KindSystem, "IOError", "CSV.Stringify: "+err.Error(), err)
			}
			return runtime.Text{S: buf.String()}, nil
		}),
	})
}

// xmlModule escapes text for XML content and decodes escaped character
// data back.
func xmlModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Escape": native("XML.Escape", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "XML.Escape")
			if err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			if err := xml.EscapeText(&buf, []byte(text)); err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "MalformedFormat", "XML.Escape: "+err.Error(), err)
			}
			return runtime.Text{S: buf.String()}, nil
		}),
		"Unescape": native("XML.Unescape", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "XML.Unescape")
			if err != nil {
				return nil, err
			}
			var out string
			wrapped := "<x>" + text + "</x>"
			if err := xml.Unmarshal([]byte(wrapped), &out); err != nil {
				return nil, runtime.WrapError(runtime.KindValidation, "MalformedFormat", "XML.Unescape: "+err.Error(), err)
			}
			return runtime.Text{S: out}, nil
		}),
	})
}

// htmlModule escapes and unescapes HTML entities.
func htmlModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Escape": native("HTML.Escape", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "HTML.Escape")
			if err != nil {
				return nil, err
			}
			return runtime.Text{S: html.EscapeString(text)}, nil
		}),
		"Unescape": native("HTML.Unescape", func(args []runtime.Value) (runtime.Value, error) {
			text, err := textArg(args, 0, "HTML.Unescape")
			if err != nil {
				return nil, err
			}
			return runtime.Text{S: html.UnescapeString(text)}, nil
		}),
	})
}
