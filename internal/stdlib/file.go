package stdlib

import (
	"os"

	"github.com/storylang/storylang/internal/runtime"
)

// fileModule exposes filesystem helpers. Errors surface under the System
// category.
func fileModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Read": native("File.Read", func(args []runtime.Value) (runtime.Value, error) {
			path, err := textArg(args, 0, "File.Read")
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fsError("File.Read", err)
			}
			return runtime.Text{S: string(data)}, nil
		}),
		"Write": native("File.Write", func(args []runtime.Value) (runtime.Value, error) {
			path, err := textArg(args, 0, "File.Write")
			if err != nil {
				return nil, err
			}
			content, err := textArg(args, 1, "File.Write")
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, fsError("File.Write", err)
			}
			return runtime.Bool{B: true}, nil
		}),
		"Append": native("File.Append", func(args []runtime.Value) (runtime.Value, error) {
			path, err := textArg(args, 0, "File.Append")
			if err != nil {
				return nil, err
			}
			content, err := textArg(args, 1, "File.Append")
			if err != nil {
				return nil, err
			}
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fsError("File.Append", err)
			}
			defer f.Close()
			if _, err := f.WriteString(content); err != nil {
				return nil, fsError("File.Append", err)
			}
			return runtime.Bool{B: true}, nil
		}),
		"Exists": native("File.Exists", func(args []runtime.Value) (runtime.Value, error) {
			path, err := textArg(args, 0, "File.Exists")
			if err != nil {
				return nil, err
			}
			_, statErr := os.Stat(path)
			return runtime.Bool{B: statErr == nil}, nil
		}),
		"Delete": native("File.Delete", func(args []runtime.Value) (runtime.Value, error) {
			path, err := textArg(args, 0, "File.Delete")
			if err != nil {
				return nil, err
			}
			if err := os.Remove(path); err != nil {
				return nil, fsError("File.Delete", err)
			}
			return runtime.Bool{B: true}, nil
		}),
		"List": native("File.List", func(args []runtime.Value) (runtime.Value, error) {
			dir, err := textArg(args, 0, "File.List")
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, fsError("File.List", err)
			}
			items := make([]runtime.Value, len(entries))
			for i, e := range entries {
				items[i] = runtime.Text{S: e.Name()}
			}
			return runtime.NewSeq(items), nil
		}),
	})
}

func fsError(op string, err error) error {
	sub := "IOError"
	switch {
	case os.IsNotExist(err):
		sub = "FileNotFound"
	case os.IsPermission(err):
		sub = "PermissionDenied"
	}
	return runtime.WrapError(runtime.KindSystem, sub, op+": "+err.Error(), err)
}
