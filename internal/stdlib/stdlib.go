// Package stdlib populates the interpreter's global scope with the
// standard-library module Dicts: each global is a Dict of
// Native callables registered at startup, plus the constructor callables
// FastNumber, WeakRef, Some, and the None singleton.
package stdlib

import (
	"fmt"
	"strconv"

	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
)

// Options carries the process-wide services some modules close over.
type Options struct {
	Executor *concurrency.Executor
	Profiler *profiler.Profiler
}

// Register installs every standard-library global into env's global
// frame. It must be called before the Story body starts executing.
func Register(env *runtime.Environment, opts Options) {
	env.Define("File", fileModule())
	env.Define("JSON", jsonModule())
	env.Define("HTML", htmlModule())
	env.Define("XML", xmlModule())
	env.Define("TOML", tomlModule())
	env.Define("CSV", csvModule())
	env.Define("HTTP", httpModule())
	env.Define("WebSocket", websocketModule())
	env.Define("TCP", tcpModule())
	env.Define("UDP", udpModule())
	env.Define("Env", envModule())
	env.Define("Data", dataModule())
	env.Define("System", systemModule(opts.Profiler))
	env.Define("Time", timeModule())
	env.Define("LLM", llmModule())
	env.Define("Stream", streamModule())
	env.Define("Task", taskModule())
	env.Define("Channel", channelModule())
	env.Define("Error", errorModule())
	env.Define("Math", mathModule())

	env.Define("FastNumber", runtime.Native{Name: "FastNumber", Fn: fastNumber})
	env.Define("WeakRef", runtime.Native{Name: "WeakRef", Fn: weakRef})
	env.Define("Some", runtime.Native{Name: "Some", Fn: someCtor})
	env.Define("None", runtime.None())
}

// fastNumber is the opt-in Fast constructor: it accepts a
// numeric value or a numeric Text.
func fastNumber(args []runtime.Value) (runtime.Value, error) {
	if err := need(args, 1, "FastNumber"); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case runtime.Decimal:
		f, _ := x.D.Float64()
		return runtime.Fast{F: f}, nil
	case runtime.Fast:
		return x, nil
	case runtime.Text:
		f, err := strconv.ParseFloat(x.S, 64)
		if err != nil {
			return nil, runtime.NewError(runtime.KindValidation, "MalformedNumber", fmt.Sprintf("FastNumber cannot parse %q", x.S))
		}
		return runtime.Fast{F: f}, nil
	}
	return nil, runtime.NewError(runtime.KindValidation, "WrongType", "FastNumber expects a number or numeric text")
}

func weakRef(args []runtime.Value) (runtime.Value, error) {
	if err := need(args, 1, "WeakRef"); err != nil {
		return nil, err
	}
	return runtime.ToWeak(args[0])
}

func someCtor(args []runtime.Value) (runtime.Value, error) {
	if err := need(args, 1, "Some"); err != nil {
		return nil, err
	}
	return runtime.Some(args[0]), nil
}

func need(args []runtime.Value, n int, fn string) error {
	if len(args) != n {
		return runtime.NewError(runtime.KindValidation, "ArityMismatch", fmt.Sprintf("%s expects %d argument(s), got %d", fn, n, len(args)))
	}
	return nil
}

func textArg(args []runtime.Value, i int, fn string) (string, error) {
	if i >= len(args) {
		return "", runtime.NewError(runtime.KindValidation, "ArityMismatch", fmt.Sprintf("%s is missing argument %d", fn, i+1))
	}
	t, ok := args[i].(runtime.Text)
	if !ok {
		return "", runtime.NewError(runtime.KindValidation, "WrongType", fmt.Sprintf("%s expects Text for argument %d, got %s", fn, i+1, args[i].Kind()))
	}
	return t.S, nil
}

func floatArg(args []runtime.Value, i int, fn string) (float64, error) {
	if i >= len(args) {
		return 0, runtime.NewError(runtime.KindValidation, "ArityMismatch", fmt.Sprintf("%s is missing argument %d", fn, i+1))
	}
	switch x := args[i].(type) {
	case runtime.Decimal:
		f, _ := x.D.Float64()
		return f, nil
	case runtime.Fast:
		return x.F, nil
	}
	return 0, runtime.NewError(runtime.KindValidation, "WrongType", fmt.Sprintf("%s expects a number for argument %d, got %s", fn, i+1, args[i].Kind()))
}

func intArg(args []runtime.Value, i int, fn string) (int, error) {
	f, err := floatArg(args, i, fn)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func seqArg(args []runtime.Value, i int, fn string) (runtime.Seq, error) {
	if i >= len(args) {
		return runtime.Seq{}, runtime.NewError(runtime.KindValidation, "ArityMismatch", fmt.Sprintf("%s is missing argument %d", fn, i+1))
	}
	s, ok := args[i].(runtime.Seq)
	if !ok {
		return runtime.Seq{}, runtime.NewError(runtime.KindValidation, "WrongType", fmt.Sprintf("%s expects a Seq for argument %d, got %s", fn, i+1, args[i].Kind()))
	}
	return s, nil
}

func dictArg(args []runtime.Value, i int, fn string) (runtime.Dict, error) {
	if i >= len(args) {
		return runtime.Dict{}, runtime.NewError(runtime.KindValidation, "ArityMismatch", fmt.Sprintf("%s is missing argument %d", fn, i+1))
	}
	d, ok := args[i].(runtime.Dict)
	if !ok {
		return runtime.Dict{}, runtime.NewError(runtime.KindValidation, "WrongType", fmt.Sprintf("%s expects a Dict for argument %d, got %s", fn, i+1, args[i].Kind()))
	}
	return d, nil
}

func taskArg(args []runtime.Value, i int, fn string) (runtime.TaskHandle, error) {
	if i >= len(args) {
		return runtime.TaskHandle{}, runtime.NewError(runtime.KindValidation, "ArityMismatch", fmt.Sprintf("%s is missing argument %d", fn, i+1))
	}
	h, ok := args[i].(runtime.TaskHandle)
	if !ok {
		return runtime.TaskHandle{}, runtime.NewError(runtime.KindValidation, "WrongType", fmt.Sprintf("%s expects a task handle for argument %d, got %s", fn, i+1, args[i].Kind()))
	}
	return h, nil
}

func native(name string, fn func([]runtime.Value) (runtime.Value, error)) runtime.Native {
	return runtime.Native{Name: name, Fn: fn}
}

func module(entries map[string]runtime.Value) runtime.Dict {
	d := runtime.NewDict()
	for _, k := range sortedKeys(entries) {
		d.Set(k, entries[k])
	}
	return d
}

func sortedKeys(m map[string]runtime.Value) []string {
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
