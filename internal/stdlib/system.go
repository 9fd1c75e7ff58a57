package stdlib

import (
	goruntime "runtime"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
)

func intDecimal(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

func envModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Get": native("Env.Get", func(args []runtime.Value) (runtime.Value, error) {
			name, err := textArg(args, 0, "Env.Get")
			if err != nil {
				return nil, err
			}
			if v, ok := os.LookupEnv(name); ok {
				return runtime.Some(runtime.Text{S: v}), nil
			}
			return runtime.None(), nil
		}),
		"Set": native("Env.Set", func(args []runtime.Value) (runtime.Value, error) {
			name, err := textArg(args, 0, "Env.Set")
			if err != nil {
				return nil, err
			}
			val, err := textArg(args, 1, "Env.Set")
			if err != nil {
				return nil, err
			}
			if err := os.Setenv(name, val); err != nil {
				return nil, runtime.WrapError(runtime.KindSystem, "IOError", "Env.Set: "+err.Error(), err)
			}
			return runtime.Bool{B: true}, nil
		}),
		"All": native("Env.All", func([]runtime.Value) (runtime.Value, error) {
			d := runtime.NewDict()
			vars := os.Environ()
			sort.Strings(vars)
			for _, kv := range vars {
				if i := strings.IndexByte(kv, '='); i > 0 {
					d.Set(kv[:i], runtime.Text{S: kv[i+1:]})
				}
			}
			return d, nil
		}),
	})
}

// systemModule exposes host facts plus the profiler's per-method stats
// snapshot.
func systemModule(prof *profiler.Profiler) runtime.Dict {
	entries := map[string]runtime.Value{
		"NewID": native("System.NewID", func([]runtime.Value) (runtime.Value, error) {
			return runtime.Text{S: uuid.NewString()}, nil
		}),
		"Platform": native("System.Platform", func([]runtime.Value) (runtime.Value, error) {
			return runtime.Text{S: goruntime.GOOS}, nil
		}),
		"Args": native("System.Args", func([]runtime.Value) (runtime.Value, error) {
			items := make([]runtime.Value, len(os.Args))
			for i, a := range os.Args {
				items[i] = runtime.Text{S: a}
			}
			return runtime.NewSeq(items), nil
		}),
		"WorkingDir": native("System.WorkingDir", func([]runtime.Value) (runtime.Value, error) {
			dir, err := os.Getwd()
			if err != nil {
				return nil, runtime.WrapError(runtime.KindSystem, "IOError", "System.WorkingDir: "+err.Error(), err)
			}
			return runtime.Text{S: dir}, nil
		}),
	}
	if prof != nil {
		entries["ProfilerStats"] = native("System.ProfilerStats", func([]runtime.Value) (runtime.Value, error) {
			out := runtime.NewDict()
			all := prof.All()
			keys := make([]profiler.Key, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].Concept != keys[j].Concept {
					return keys[i].Concept < keys[j].Concept
				}
				return keys[i].Method < keys[j].Method
			})
			for _, k := range keys {
				s := all[k]
				entry := runtime.NewDict()
				entry.Set("calls", runtime.Decimal{D: intDecimal(s.Calls)})
				entry.Set("compiled", runtime.Bool{B: s.Compiled})
				entry.Set("misses", runtime.Decimal{D: intDecimal(s.Misses)})
				out.Set(k.Concept+"."+k.Method, entry)
			}
			return out, nil
		})
	}
	return module(entries)
}

func timeModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Now": native("Time.Now", func([]runtime.Value) (runtime.Value, error) {
			return runtime.Decimal{D: decimal.NewFromInt(time.Now().Unix())}, nil
		}),
		"Millis": native("Time.Millis", func([]runtime.Value) (runtime.Value, error) {
			return runtime.Decimal{D: decimal.NewFromInt(time.Now().UnixMilli())}, nil
		}),
		"Sleep": native("Time.Sleep", func(args []runtime.Value) (runtime.Value, error) {
			secs, err := floatArg(args, 0, "Time.Sleep")
			if err != nil {
				return nil, err
			}
			time.Sleep(time.Duration(secs * float64(time.Second)))
			return runtime.Bool{B: true}, nil
		}),
		"Format": native("Time.Format", func(args []runtime.Value) (runtime.Value, error) {
			unix, err := floatArg(args, 0, "Time.Format")
			if err != nil {
				return nil, err
			}
			layout := time.RFC3339
			if len(args) > 1 {
				if l, err := textArg(args, 1, "Time.Format"); err == nil {
					layout = l
				}
			}
			return runtime.Text{S: time.Unix(int64(unix), 0).UTC().Format(layout)}, nil
		}),
	})
}

// dataModule holds the sequence and vector helpers the numeric stdlib
// builds on.
func dataModule() runtime.Dict {
	return module(map[string]runtime.Value{
		"Range": native("Data.Range", func(args []runtime.Value) (runtime.Value, error) {
			from, err := intArg(args, 0, "Data.Range")
			if err != nil {
				return nil, err
			}
			to, err := intArg(args, 1, "Data.Range")
			if err != nil {
				return nil, err
			}
			var items []runtime.Value
			for i := from; i <= to; i++ {
				items = append(items, runtime.Decimal{D: intDecimal(i)})
			}
			return runtime.NewSeq(items), nil
		}),
		"Sum": native("Data.Sum", func(args []runtime.Value) (runtime.Value, error) {
			seq, err := seqArg(args, 0, "Data.Sum")
			if err != nil {
				return nil, err
			}
			sum := decimal.Zero
			for _, v := range seq.Items() {
				d, ok := v.(runtime.Decimal)
				if !ok {
					return nil, runtime.NewError(runtime.KindValidation, "WrongType", "Data.Sum expects a Seq of numbers")
				}
				sum = sum.Add(d.D)
			}
			return runtime.Decimal{D: sum}, nil
		}),
		"Sort": native("Data.Sort", func(args []runtime.Value) (runtime.Value, error) {
			seq, err := seqArg(args, 0, "Data.Sort")
			if err != nil {
				return nil, err
			}
			items := seq.Items()
			var sortErr error
			sort.SliceStable(items, func(i, j int) bool {
				c, err := runtime.Compare(items[i], items[j])
				if err != nil && sortErr == nil {
					sortErr = err
				}
				return c < 0
			})
			if sortErr != nil {
				return nil, sortErr
			}
			return runtime.NewSeq(items), nil
		}),
		"Reverse": native("Data.Reverse", func(args []runtime.Value) (runtime.Value, error) {
			seq, err := seqArg(args, 0, "Data.Reverse")
			if err != nil {
				return nil, err
			}
			items := seq.Items()
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			return runtime.NewSeq(items), nil
		}),
		"Vector": native("Data.Vector", func(args []runtime.Value) (runtime.Value, error) {
			seq, err := seqArg(args, 0, "Data.Vector")
			if err != nil {
				return nil, err
			}
			items := seq.Items()
			floats := make([]float64, len(items))
			for i, v := range items {
				f, err := floatArg([]runtime.Value{v}, 0, "Data.Vector")
				if err != nil {
					return nil, err
				}
				floats[i] = f
			}
			return runtime.Vector{Values: floats}, nil
		}),
	})
}
