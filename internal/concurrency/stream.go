package concurrency

import "github.com/storylang/storylang/internal/runtime"

// Source is the internal pull-based iterator a Stream Dict wraps. Next
// returns (value, true) while elements remain, or (nil, false) once
// exhausted — the evaluator's ForEach rule instead sees the Dict-level
// Next()/HasMore() native-callable protocol.
type Source interface {
	Next() (runtime.Value, bool)
	Reset() bool // true if resettable; false leaves the source unchanged
	Close()
}

// listSource iterates a fixed, already-materialized slice.
type listSource struct {
	items []runtime.Value
	pos   int
}

func (s *listSource) Next() (runtime.Value, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}
func (s *listSource) Reset() bool { s.pos = 0; return true }
func (s *listSource) Close()      {}

// NewListSource builds a Source over a fixed slice (backs Stream.FromList
// and Seq iteration fallbacks).
func NewListSource(items []runtime.Value) Source { return &listSource{items: items} }

// channelSource drains a Channel lazily; not resettable.
type channelSource struct{ ch *Channel }

func (s *channelSource) Next() (runtime.Value, bool) {
	v, err := s.ch.Receive()
	if err != nil {
		return nil, false
	}
	return v, true
}
func (s *channelSource) Reset() bool { return false }
func (s *channelSource) Close()      { s.ch.Close() }

// NewChannelSource adapts a Channel into a Source (backs Channel-to-Stream
// conversion in the Stream stdlib module).
func NewChannelSource(ch *Channel) Source { return &channelSource{ch: ch} }

// mapSource lazily applies f to each upstream element.
type mapSource struct {
	upstream Source
	f        func(runtime.Value) (runtime.Value, error)
	err      error
}

func (s *mapSource) Next() (runtime.Value, bool) {
	v, ok := s.upstream.Next()
	if !ok {
		return nil, false
	}
	out, err := s.f(v)
	if err != nil {
		s.err = err
		return nil, false
	}
	return out, true
}
func (s *mapSource) Reset() bool { return s.upstream.Reset() }
func (s *mapSource) Close()      { s.upstream.Close() }

// MapSource wraps upstream with a lazy transform (Stream.Map).
func MapSource(upstream Source, f func(runtime.Value) (runtime.Value, error)) Source {
	return &mapSource{upstream: upstream, f: f}
}

// filterSource lazily keeps only elements where pred is true.
type filterSource struct {
	upstream Source
	pred     func(runtime.Value) (bool, error)
}

func (s *filterSource) Next() (runtime.Value, bool) {
	for {
		v, ok := s.upstream.Next()
		if !ok {
			return nil, false
		}
		keep, err := s.pred(v)
		if err != nil {
			return nil, false
		}
		if keep {
			return v, true
		}
	}
}
func (s *filterSource) Reset() bool { return s.upstream.Reset() }
func (s *filterSource) Close()      { s.upstream.Close() }

// FilterSource wraps upstream with a lazy predicate (Stream.Filter).
func FilterSource(upstream Source, pred func(runtime.Value) (bool, error)) Source {
	return &filterSource{upstream: upstream, pred: pred}
}

// takeSource yields at most n elements.
type takeSource struct {
	upstream Source
	n, taken int
}

func (s *takeSource) Next() (runtime.Value, bool) {
	if s.taken >= s.n {
		return nil, false
	}
	v, ok := s.upstream.Next()
	if !ok {
		return nil, false
	}
	s.taken++
	return v, true
}
func (s *takeSource) Reset() bool {
	s.taken = 0
	return s.upstream.Reset()
}
func (s *takeSource) Close() { s.upstream.Close() }

// TakeSource wraps upstream, stopping after n elements (Stream.Take).
func TakeSource(upstream Source, n int) Source { return &takeSource{upstream: upstream, n: n} }

// skipSource discards the first n elements, lazily, on first pull.
type skipSource struct {
	upstream  Source
	n         int
	skipped   bool
}

func (s *skipSource) Next() (runtime.Value, bool) {
	if !s.skipped {
		for i := 0; i < s.n; i++ {
			if _, ok := s.upstream.Next(); !ok {
				break
			}
		}
		s.skipped = true
	}
	return s.upstream.Next()
}
func (s *skipSource) Reset() bool {
	s.skipped = false
	return s.upstream.Reset()
}
func (s *skipSource) Close() { s.upstream.Close() }

// SkipSource wraps upstream, discarding its first n elements (Stream.Skip).
func SkipSource(upstream Source, n int) Source { return &skipSource{upstream: upstream, n: n} }

// zipSource pairs elements from two upstreams into 2-element Seqs,
// ending when either is exhausted.
type zipSource struct{ a, b Source }

func (s *zipSource) Next() (runtime.Value, bool) {
	av, aok := s.a.Next()
	bv, bok := s.b.Next()
	if !aok || !bok {
		return nil, false
	}
	return runtime.NewSeq([]runtime.Value{av, bv}), true
}
func (s *zipSource) Reset() bool { return s.a.Reset() && s.b.Reset() }
func (s *zipSource) Close()      { s.a.Close(); s.b.Close() }

// ZipSource pairs two sources (Stream.Zip).
func ZipSource(a, b Source) Source { return &zipSource{a: a, b: b} }

// chainSource exhausts a then b.
type chainSource struct {
	a, b   Source
	onB    bool
}

func (s *chainSource) Next() (runtime.Value, bool) {
	if !s.onB {
		if v, ok := s.a.Next(); ok {
			return v, true
		}
		s.onB = true
	}
	return s.b.Next()
}
func (s *chainSource) Reset() bool {
	s.onB = false
	return s.a.Reset() && s.b.Reset()
}
func (s *chainSource) Close() { s.a.Close(); s.b.Close() }

// ChainSource concatenates two sources lazily (Stream.Chain).
func ChainSource(a, b Source) Source { return &chainSource{a: a, b: b} }

// NewStreamDict builds the uniform Stream value: a Dict carrying Next,
// HasMore, ToList, Close, Map, Filter, Take, Skip, and Reset native
// callables (Reset returns False and leaves the stream unchanged when src
// is not resettable), so the evaluator's ForEach rule
// and any user code see the same polymorphic protocol
// regardless of what produced the source.
func NewStreamDict(src Source) runtime.Dict {
	d := runtime.NewDict()
	var lookahead runtime.Value
	var hasLookahead bool
	var exhausted bool

	pull := func() {
		if hasLookahead || exhausted {
			return
		}
		v, ok := src.Next()
		if !ok {
			exhausted = true
			return
		}
		lookahead = v
		hasLookahead = true
	}

	d.Set("Next", runtime.Native{Name: "Stream.Next", Fn: func(args []runtime.Value) (runtime.Value, error) {
		pull()
		if !hasLookahead {
			return runtime.None(), nil
		}
		v := lookahead
		hasLookahead = false
		return runtime.Some(v), nil
	}})
	d.Set("HasMore", runtime.Native{Name: "Stream.HasMore", Fn: func(args []runtime.Value) (runtime.Value, error) {
		pull()
		return runtime.Bool{B: hasLookahead}, nil
	}})
	d.Set("ToList", runtime.Native{Name: "Stream.ToList", Fn: func(args []runtime.Value) (runtime.Value, error) {
		var out []runtime.Value
		pull()
		for hasLookahead {
			out = append(out, lookahead)
			hasLookahead = false
			pull()
		}
		return runtime.NewSeq(out), nil
	}})
	d.Set("Close", runtime.Native{Name: "Stream.Close", Fn: func(args []runtime.Value) (runtime.Value, error) {
		src.Close()
		return runtime.Bool{B: true}, nil
	}})
	d.Set("Reset", runtime.Native{Name: "Stream.Reset", Fn: func(args []runtime.Value) (runtime.Value, error) {
		ok := src.Reset()
		if ok {
			hasLookahead = false
			exhausted = false
		}
		return runtime.Bool{B: ok}, nil
	}})
	d.Set("Map", runtime.Native{Name: "Stream.Map", Fn: func(args []runtime.Value) (runtime.Value, error) {
		if len(args) != 1 {
			return nil, runtime.NewError(runtime.KindValidation, "ArityMismatch", "Stream.Map expects one function argument")
		}
		fn, err := callable(args[0])
		if err != nil {
			return nil, err
		}
		return NewStreamDict(MapSource(src, func(v runtime.Value) (runtime.Value, error) { return fn([]runtime.Value{v}) })), nil
	}})
	d.Set("Filter", runtime.Native{Name: "Stream.Filter", Fn: func(args []runtime.Value) (runtime.Value, error) {
		if len(args) != 1 {
			return nil, runtime.NewError(runtime.KindValidation, "ArityMismatch", "Stream.Filter expects one function argument")
		}
		fn, err := callable(args[0])
		if err != nil {
			return nil, err
		}
		return NewStreamDict(FilterSource(src, func(v runtime.Value) (bool, error) {
			out, err := fn([]runtime.Value{v})
			if err != nil {
				return false, err
			}
			return runtime.Truthy(out), nil
		})), nil
	}})
	d.Set("Take", runtime.Native{Name: "Stream.Take", Fn: func(args []runtime.Value) (runtime.Value, error) {
		n, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		return NewStreamDict(TakeSource(src, n)), nil
	}})
	d.Set("Skip", runtime.Native{Name: "Stream.Skip", Fn: func(args []runtime.Value) (runtime.Value, error) {
		n, err := intArg(args, 0)
		if err != nil {
			return nil, err
		}
		return NewStreamDict(SkipSource(src, n)), nil
	}})
	return d
}

func callable(v runtime.Value) (func([]runtime.Value) (runtime.Value, error), error) {
	n, ok := v.(runtime.Native)
	if !ok {
		return nil, runtime.NewError(runtime.KindValidation, "NotCallable", "expected a callable argument")
	}
	return n.Fn, nil
}

func intArg(args []runtime.Value, i int) (int, error) {
	if i >= len(args) {
		return 0, runtime.NewError(runtime.KindValidation, "ArityMismatch", "missing argument")
	}
	d, ok := args[i].(runtime.Decimal)
	if !ok {
		return 0, runtime.NewError(runtime.KindValidation, "WrongType", "expected a numeric argument")
	}
	return int(d.D.IntPart()), nil
}

// IsStream reports whether d obeys the Next/HasMore stream protocol.
func IsStream(d runtime.Dict) bool {
	_, hasNext := d.Get("Next")
	_, hasMore := d.Get("HasMore")
	return hasNext && hasMore
}
