// Package runtime implements the Value model: a tagged
// sum of runtime values with arithmetic, comparison, indexing, deep
// clone, weak references, and the shared-handle containers.
package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Kind identifies a Value's variant.
type Kind int

const (
	KindDecimal Kind = iota
	KindFast
	KindText
	KindBool
	KindSeq
	KindDict
	KindWeakSeq
	KindWeakDict
	KindOption
	KindNative
	KindTaskHandle
	KindError
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindDecimal:
		return "Decimal"
	case KindFast:
		return "Fast"
	case KindText:
		return "Text"
	case KindBool:
		return "Bool"
	case KindSeq:
		return "Seq"
	case KindDict:
		return "Dict"
	case KindWeakSeq:
		return "WeakSeq"
	case KindWeakDict:
		return "WeakDict"
	case KindOption:
		return "Option"
	case KindNative:
		return "Native"
	case KindTaskHandle:
		return "TaskHandle"
	case KindError:
		return "Error"
	case KindVector:
		return "Vector"
	}
	return "Unknown"
}

// Value is a runtime value. Every variant below implements it; there is
// no null value.
type Value interface {
	Kind() Kind
	String() string
}

// Decimal is the default, exact-arithmetic numeric variant.
type Decimal struct{ D decimal.Decimal }

func NewDecimal(d decimal.Decimal) Decimal { return Decimal{D: d} }

func (Decimal) Kind() Kind { return KindDecimal }
func (d Decimal) String() string {
	s := d.D.Truncate(10).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// Fast is the opt-in 64-bit binary float variant.
type Fast struct{ F float64 }

func (Fast) Kind() Kind { return KindFast }
func (f Fast) String() string {
	return fmt.Sprintf("%g", f.F)
}

// Text is a Unicode string; length/indexing are grapheme-based.
type Text struct{ S string }

func (Text) Kind() Kind  { return KindText }
func (t Text) String() string { return t.S }

// Bool is the two-valued boolean variant.
type Bool struct{ B bool }

func (Bool) Kind() Kind { return KindBool }
func (b Bool) String() string {
	if b.B {
		return "True"
	}
	return "False"
}

// seqHandle is the shared, mutable backing store of a Seq value.
type seqHandle struct {
	mu    sync.RWMutex
	items []Value
	weak  int
}

// Seq is a shared ordered sequence of Value, reference counted by its
// handle.
type Seq struct{ h *seqHandle }

func NewSeq(items []Value) Seq {
	return Seq{h: &seqHandle{items: items}}
}

func (Seq) Kind() Kind { return KindSeq }
func (s Seq) String() string {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()
	parts := make([]string, len(s.h.items))
	for i, v := range s.h.items {
		parts[i] = displayQuoted(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s Seq) Len() int {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()
	return len(s.h.items)
}

// Get returns the element at 1-based index i.
func (s Seq) Get(i int) (Value, error) {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()
	if i == 0 {
		return nil, NewError(KindLookup, "IndexZero", "sequence index 0 is invalid: indices are 1-based")
	}
	if i < 0 {
		return nil, NewError(KindLookup, "NegativeIndex", "negative sequence indices are not supported")
	}
	if i < 1 || i > len(s.h.items) {
		return nil, NewError(KindLookup, "OutOfRange", fmt.Sprintf("sequence index %d out of range (length %d)", i, len(s.h.items)))
	}
	return s.h.items[i-1], nil
}

// Set mutates the element at 1-based index i through the shared handle.
func (s Seq) Set(i int, v Value) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	if i < 1 || i > len(s.h.items) {
		return NewError(KindLookup, "OutOfRange", fmt.Sprintf("sequence index %d out of range (length %d)", i, len(s.h.items)))
	}
	s.h.items[i-1] = v
	return nil
}

func (s Seq) Append(v Value) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.items = append(s.h.items, v)
}

// Items returns a snapshot copy of the backing slice.
func (s Seq) Items() []Value {
	s.h.mu.RLock()
	defer s.h.mu.RUnlock()
	out := make([]Value, len(s.h.items))
	copy(out, s.h.items)
	return out
}

func (s Seq) SameHandle(o Seq) bool { return s.h == o.h }

// dictHandle is the shared, mutable backing store of a Dict value.
type dictHandle struct {
	mu    sync.RWMutex
	order []string
	items map[string]Value
	weak  int
}

// Dict is a shared unordered keyed map (Text -> Value); Concept instances
// are Dicts carrying a reserved "_concept" entry.
type Dict struct{ h *dictHandle }

func NewDict() Dict {
	return Dict{h: &dictHandle{items: make(map[string]Value)}}
}

func (Dict) Kind() Kind { return KindDict }
func (d Dict) String() string {
	d.h.mu.RLock()
	defer d.h.mu.RUnlock()
	parts := make([]string, 0, len(d.h.order))
	for _, k := range d.h.order {
		parts = append(parts, k+": "+displayQuoted(d.h.items[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (d Dict) Get(key string) (Value, bool) {
	d.h.mu.RLock()
	defer d.h.mu.RUnlock()
	v, ok := d.h.items[key]
	return v, ok
}

func (d Dict) Set(key string, v Value) {
	d.h.mu.Lock()
	defer d.h.mu.Unlock()
	if _, exists := d.h.items[key]; !exists {
		d.h.order = append(d.h.order, key)
	}
	d.h.items[key] = v
}

func (d Dict) Has(key string) bool {
	d.h.mu.RLock()
	defer d.h.mu.RUnlock()
	_, ok := d.h.items[key]
	return ok
}

func (d Dict) Len() int {
	d.h.mu.RLock()
	defer d.h.mu.RUnlock()
	return len(d.h.order)
}

func (d Dict) Keys() []string {
	d.h.mu.RLock()
	defer d.h.mu.RUnlock()
	out := make([]string, len(d.h.order))
	copy(out, d.h.order)
	return out
}

func (d Dict) SameHandle(o Dict) bool { return d.h == o.h }

// ConceptName returns the Dict's reserved "_concept" binding, or "" if
// this Dict is not a Concept instance.
func (d Dict) ConceptName() string {
	if v, ok := d.Get("_concept"); ok {
		if t, ok := v.(Text); ok {
			return t.S
		}
	}
	return ""
}

// WeakSeq is a non-owning reference to a Seq handle.
type WeakSeq struct{ h *seqHandle }

func (WeakSeq) Kind() Kind   { return KindWeakSeq }
func (WeakSeq) String() string { return "WeakSeq" }
func (w WeakSeq) IsValid() bool { return w.h != nil }
func (w WeakSeq) Get() (Value, error) {
	if w.h == nil {
		return nil, NewError(KindLogic, "InvalidWeakRef", "weak reference target is no longer valid")
	}
	return Seq{h: w.h}, nil
}

// WeakDict is a non-owning reference to a Dict handle.
type WeakDict struct{ h *dictHandle }

func (WeakDict) Kind() Kind     { return KindWeakDict }
func (WeakDict) String() string { return "WeakDict" }
func (w WeakDict) IsValid() bool { return w.h != nil }
func (w WeakDict) Get() (Value, error) {
	if w.h == nil {
		return nil, NewError(KindLogic, "InvalidWeakRef", "weak reference target is no longer valid")
	}
	return Dict{h: w.h}, nil
}

// ToWeak builds the non-owning form of a shared container; only Seq and
// Dict have one.
func ToWeak(v Value) (Value, error) {
	switch x := v.(type) {
	case Seq:
		x.h.mu.Lock()
		x.h.weak++
		x.h.mu.Unlock()
		return WeakSeq{h: x.h}, nil
	case Dict:
		x.h.mu.Lock()
		x.h.weak++
		x.h.mu.Unlock()
		return WeakDict{h: x.h}, nil
	}
	return nil, NewError(KindValidation, "NotWeakable", fmt.Sprintf("%s has no weak reference form", v.Kind()))
}

// Option holds either one Value (Some) or nothing (None).
type Option struct {
	some bool
	val  Value
}

func Some(v Value) Option { return Option{some: true, val: v} }
func None() Option         { return Option{} }

func (Option) Kind() Kind { return KindOption }
func (o Option) String() string {
	if !o.some {
		return "None"
	}
	return "Some(" + o.val.String() + ")"
}
func (o Option) IsSome() bool { return o.some }
func (o Option) IsNone() bool { return !o.some }
func (o Option) Unwrap() (Value, error) {
	if !o.some {
		return nil, NewError(KindLogic, "UnwrapNone", "called Unwrap on a None option")
	}
	return o.val, nil
}
func (o Option) UnwrapOr(fallback Value) Value {
	if o.some {
		return o.val
	}
	return fallback
}

// Native is an opaque host-provided callable.
type Native struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

func (Native) Kind() Kind     { return KindNative }
func (n Native) String() string { return "<native " + n.Name + ">" }

// taskHandle is the shared join-future backing a TaskHandle:
// a done channel the spawner closes on completion, the landed
// result/error, a single-consumption awaited guard, and
// an advisory cancellation flag.
type taskHandle struct {
	mu        sync.Mutex
	done      chan struct{}
	result    Value
	err       error
	awaited   bool
	cancelled int32
}

// TaskHandle pairs a single-await join future with a shared cancellation
// flag.
type TaskHandle struct{ h *taskHandle }

// NewTaskHandle constructs an unresolved TaskHandle; the spawner calls
// Resolve once the background evaluator returns.
func NewTaskHandle() TaskHandle {
	return TaskHandle{h: &taskHandle{done: make(chan struct{})}}
}

func (TaskHandle) Kind() Kind     { return KindTaskHandle }
func (TaskHandle) String() string { return "<task>" }

// Resolve lands the background result and unblocks Await. Safe to call
// exactly once from the spawning goroutine.
func (t TaskHandle) Resolve(v Value, err error) {
	t.h.mu.Lock()
	t.h.result, t.h.err = v, err
	t.h.mu.Unlock()
	close(t.h.done)
}

// Await blocks until the task completes and returns its result, erroring
// on a second call.
func (t TaskHandle) Await() (Value, error) {
	t.h.mu.Lock()
	if t.h.awaited {
		t.h.mu.Unlock()
		return nil, NewError(KindLogic, "DoubleAwait", "Await called twice on the same task handle")
	}
	t.h.awaited = true
	t.h.mu.Unlock()

	<-t.h.done
	return t.h.result, t.h.err
}

// Cancel sets the advisory cancellation flag.
func (t TaskHandle) Cancel() { atomic.StoreInt32(&t.h.cancelled, 1) }

// IsCancelled reports whether Cancel has been called.
func (t TaskHandle) IsCancelled() bool { return atomic.LoadInt32(&t.h.cancelled) != 0 }

// ErrorVal is a structured error value (category, subtype, message).
type ErrorVal struct {
	Category string
	Subtype  string
	Message  string
}

func (ErrorVal) Kind() Kind { return KindError }
func (e ErrorVal) String() string {
	return fmt.Sprintf("Error.%s.%s: %s", e.Category, e.Subtype, e.Message)
}

// Vector is a fixed homogeneous float sequence used by the numeric
// stdlib; additive/subtractive ops require equal length.
type Vector struct{ Values []float64 }

func (Vector) Kind() Kind { return KindVector }
func (v Vector) String() string {
	parts := make([]string, len(v.Values))
	for i, f := range v.Values {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

func displayQuoted(v Value) string {
	if t, ok := v.(Text); ok {
		return "\"" + t.S + "\""
	}
	return v.String()
}

// DeepClone recursively duplicates shared containers and copies scalars.
// Option contents clone recursively, weak handles copy as-weak, and
// Native/TaskHandle share their handle.
func DeepClone(v Value) Value {
	switch x := v.(type) {
	case Seq:
		items := x.Items()
		cloned := make([]Value, len(items))
		for i, it := range items {
			cloned[i] = DeepClone(it)
		}
		return NewSeq(cloned)
	case Dict:
		out := NewDict()
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			out.Set(k, DeepClone(val))
		}
		return out
	case Option:
		if x.IsNone() {
			return None()
		}
		return Some(DeepClone(x.val))
	default:
		return v
	}
}

// sortStrings is a small helper kept next to Dict.Keys for callers that
// want a stable, sorted key order (e.g. the JIT's field layout).
func sortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}

// SortedKeys returns d's keys in lexicographic order.
func (d Dict) SortedKeys() []string { return sortStrings(d.Keys()) }
