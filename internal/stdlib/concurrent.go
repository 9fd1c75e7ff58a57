package stdlib

import (
	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/runtime"
)

// taskModule wraps the concurrency runtime's task-handle operations that
// are not already reserved member names on TaskHandle itself.
func taskModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"WaitAll": native("Task.WaitAll", func(args []runtime.Value) (runtime.Value, error) {
			handles, err := taskHandles(args, "Task.WaitAll")
			if err != nil {
				return nil, err
			}
			results, err := concurrency.WaitAll(handles)
			if err != nil {
				return nil, err
			}
			return runtime.NewSeq(results), nil
		}),
		"WaitAny": native("Task.WaitAny", func(args []runtime.Value) (runtime.Value, error) {
			handles, err := taskHandles(args, "Task.WaitAny")
			if err != nil {
				return nil, err
			}
			if len(handles) == 0 {
				return nil, runtime.NewError(runtime.KindValidation, "ConstraintViolation", "Task.WaitAny requires at least one task handle")
			}
			_, v, err := concurrency.WaitAny(handles)
			if err != nil {
				return nil, err
			}
			return v, nil
		}),
		"Cancel": native("Task.Cancel", func(args []runtime.Value) (runtime.Value, error) {
			h, err := taskArg(args, 0, "Task.Cancel")
			if err != nil {
				return nil, err
			}
			h.Cancel()
			return runtime.Bool{B: true}, nil
		}),
		"IsCancelled": native("Task.IsCancelled", func(args []runtime.Value) (runtime.Value, error) {
			h, err := taskArg(args, 0, "Task.IsCancelled")
			if err != nil {
				return nil, err
			}
			return runtime.Bool{B: h.IsCancelled()}, nil
		}),
	})
}

// taskHandles accepts either a Seq of handles or the handles spread as
// direct arguments.
func taskHandles(args []runtime.Value, fn string) ([]runtime.TaskHandle, error) {
	vals := args
	if len(args) == 1 {
		if s, ok := args[0].(runtime.Seq); ok {
			vals = s.Items()
		}
	}
	handles := make([]runtime.TaskHandle, len(vals))
	for i, v := range vals {
		h, ok := v.(runtime.TaskHandle)
		if !ok {
			return nil, runtime.NewError(runtime.KindValidation, "WrongType", fn+" expects task handles")
		}
		handles[i] = h
	}
	return handles, nil
}

// channelModule constructs bounded channels; each channel is a Dict of
// natives closing over the shared *concurrency.Channel.
func channelModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"New": native("Channel.New", func(args []runtime.Value) (runtime.Value, error) {
			capacity := 0
			if len(args) > 0 {
				n, err := intArg(args, 0, "Channel.New")
				if err != nil {
					return nil, err
				}
				capacity = n
			}
			return channelDict(concurrency.NewChannel(capacity)), nil
		}),
	})
}

func channelDict(ch *concurrency.Channel) runtime.Dict {
	d := runtime.NewDict()
	d.Set("Send", native("Channel.Send", func(args []runtime.Value) (runtime.Value, error) {
		if err := need(args, 1, "Channel.Send"); err != nil {
			return nil, err
		}
		if err := ch.Send(args[0]); err != nil {
			return nil, err
		}
		return runtime.Bool{B: true}, nil
	}))
	d.Set("Receive", native("Channel.Receive", func([]runtime.Value) (runtime.Value, error) {
		return ch.Receive()
	}))
	d.Set("TryReceive", native("Channel.TryReceive", func(args []runtime.Value) (runtime.Value, error) {
		secs, err := floatArg(args, 0, "Channel.TryReceive")
		if err != nil {
			return nil, err
		}
		return ch.TryReceive(secs)
	}))
	d.Set("Close", native("Channel.Close", func([]runtime.Value) (runtime.Value, error) {
		ch.Close()
		return runtime.Bool{B: true}, nil
	}))
	d.Set("ToStream", native("Channel.ToStream", func([]runtime.Value) (runtime.Value, error) {
		return concurrency.NewStreamDict(concurrency.NewChannelSource(ch)), nil
	}))
	return d
}

// streamModule constructs streams and the module-level combinators that
// need two streams at once (Zip, Chain).
func streamModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"FromList": native("Stream.FromList", func(args []runtime.Value) (runtime.Value, error) {
			seq, err := seqArg(args, 0, "Stream.FromList")
			if err != nil {
				return nil, err
			}
			return concurrency.NewStreamDict(concurrency.NewListSource(seq.Items())), nil
		}),
		"Zip": native("Stream.Zip", func(args []runtime.Value) (runtime.Value, error) {
			a, err := streamSource(args, 0, "Stream.Zip")
			if err != nil {
				return nil, err
			}
			b, err := streamSource(args, 1, "Stream.Zip")
			if err != nil {
				return nil, err
			}
			return concurrency.NewStreamDict(concurrency.ZipSource(a, b)), nil
		}),
		"Chain": native("Stream.Chain", func(args []runtime.Value) (runtime.Value, error) {
			a, err := streamSource(args, 0, "Stream.Chain")
			if err != nil {
				return nil, err
			}
			b, err := streamSource(args, 1, "Stream.Chain")
			if err != nil {
				return nil, err
			}
			return concurrency.NewStreamDict(concurrency.ChainSource(a, b)), nil
		}),
	})
}

// dictSource adapts a user-visible stream Dict back into a Source by
// polling its Next native, so module-level combinators can compose
// streams that were already wrapped.
type dictSource struct {
	next  func([]runtime.Value) (runtime.Value, error)
	reset func([]runtime.Value) (runtime.Value, error)
	close func([]runtime.Value) (runtime.Value, error)
}

func (s *dictSource) Next() (runtime.Value, bool) {
	v, err := s.next(nil)
	if err != nil {
		return nil, false
	}
	opt, ok := v.(runtime.Option)
	if !ok || opt.IsNone() {
		return nil, false
	}
	item, _ := opt.Unwrap()
	return item, true
}

func (s *dictSource) Reset() bool {
	if s.reset == nil {
		return false
	}
	v, err := s.reset(nil)
	if err != nil {
		return false
	}
	return runtime.Truthy(v)
}

func (s *dictSource) Close() {
	if s.close != nil {
		s.close(nil)
	}
}

func streamSource(args []runtime.Value, i int, fn string) (concurrency.Source, error) {
	d, err := dictArg(args, i, fn)
	if err != nil {
		return nil, err
	}
	if !concurrency.IsStream(d) {
		return nil, runtime.NewError(runtime.KindValidation, "WrongType", fn+" expects stream values")
	}
	src := &dictSource{}
	if v, ok := d.Get("Next"); ok {
		if n, ok := v.(runtime.Native); ok {
			src.next = n.Fn
		}
	}
	if v, ok := d.Get("Reset"); ok {
		if n, ok := v.(runtime.Native); ok {
			src.reset = n.Fn
		}
	}
	if v, ok := d.Get("Close"); ok {
		if n, ok := v.(runtime.Native); ok {
			src.close = n.Fn
		}
	}
	if src.next == nil {
		return nil, runtime.NewError(runtime.KindValidation, "WrongType", fn+" expects stream values")
	}
	return src, nil
}

// errorModule constructs and raises structured errors from user code.
func errorModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"New": native("Error.New", func(args []runtime.Value) (runtime.Value, error) {
			cat, err := textArg(args, 0, "Error.New")
			if err != nil {
				return nil, err
			}
			sub, err := textArg(args, 1, "Error.New")
			if err != nil {
				return nil, err
			}
			msg, err := textArg(args, 2, "Error.New")
			if err != nil {
				return nil, err
			}
			return runtime.ErrorVal{Category: cat, Subtype: sub, Message: msg}, nil
		}),
		"Throw": native("Error.Throw", func(args []runtime.Value) (runtime.Value, error) {
			cat, err := textArg(args, 0, "Error.Throw")
			if err != nil {
				return nil, err
			}
			sub, err := textArg(args, 1, "Error.Throw")
			if err != nil {
				return nil, err
			}
			msg, err := textArg(args, 2, "Error.Throw")
			if err != nil {
				return nil, err
			}
			return nil, runtime.NewError(runtime.Category(cat), sub, msg)
		}),
		"Category": native("Error.Category", func(args []runtime.Value) (runtime.Value, error) {
			e, err := errorArg(args, "Error.Category")
			if err != nil {
				return nil, err
			}
			return runtime.Text{S: e.Category}, nil
		}),
		"Subtype": native("Error.Subtype", func(args []runtime.Value) (runtime.Value, error) {
			e, err := errorArg(args, "Error.Subtype")
			if err != nil {
				return nil, err
			}
			return runtime.Text{S: e.Subtype}, nil
		}),
		"Message": native("Error.Message", func(args []runtime.Value) (runtime.Value, error) {
			e, err := errorArg(args, "Error.Message")
			if err != nil {
				return nil, err
			}
			return runtime.Text{S: e.Message}, nil
		}),
	})
}

func errorArg(args []runtime.Value, fn string) (runtime.ErrorVal, error) {
	if len(args) != 1 {
		return runtime.ErrorVal{}, runtime.NewError(runtime.KindValidation, "ArityMismatch", fn+" expects one error value")
	}
	e, ok := args[0].(runtime.ErrorVal)
	if !ok {
		return runtime.ErrorVal{}, runtime.NewError(runtime.KindValidation, "WrongType", fn+" expects an error value")
	}
	return e, nil
}
