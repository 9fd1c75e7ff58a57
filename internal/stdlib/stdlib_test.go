package stdlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storylang/storylang/internal/concurrency"
	"github.com/storylang/storylang/internal/profiler"
	"github.com/storylang/storylang/internal/runtime"
)

func testEnv(t *testing.T) *runtime.Environment {
	t.Helper()
	env := runtime.NewEnvironment()
	Register(env, Options{Executor: concurrency.New(), Profiler: profiler.New()})
	return env
}

func lookup(t *testing.T, env *runtime.Environment, modName, fnName string) runtime.Native {
	t.Helper()
	mod, ok := env.Get(modName)
	require.True(t, ok, "module %s must be registered", modName)
	d, ok := mod.(runtime.Dict)
	require.True(t, ok)
	fn, ok := d.Get(fnName)
	require.True(t, ok, "%s.%s must exist", modName, fnName)
	n, ok := fn.(runtime.Native)
	require.True(t, ok)
	return n
}

func text(s string) runtime.Value { return runtime.Text{S: s} }

func num(t *testing.T, s string) runtime.Value {
	t.Helper()
	v, err := runtime.ParseDecimal(s)
	require.NoError(t, err)
	return v
}

func TestAllSpecModulesAreRegistered(t *testing.T) {
	env := testEnv(t)
	for _, name := range []string{
		"File", "JSON", "HTML", "XML", "TOML", "CSV", "HTTP", "WebSocket",
		"TCP", "UDP", "Env", "Data", "System", "Time", "LLM", "Stream",
		"Task", "Channel", "Error", "Math",
	} {
		v, ok := env.Get(name)
		require.True(t, ok, "global %s missing", name)
		require.Equal(t, runtime.KindDict, v.Kind(), "global %s must be a module Dict", name)
	}
	for _, name := range []string{"FastNumber", "WeakRef", "Some"} {
		v, ok := env.Get(name)
		require.True(t, ok)
		require.Equal(t, runtime.KindNative, v.Kind())
	}
	none, ok := env.Get("None")
	require.True(t, ok)
	require.Equal(t, runtime.KindOption, none.Kind())
	require.True(t, none.(runtime.Option).IsNone())
}

func TestFastNumberConstructor(t *testing.T) {
	env := testEnv(t)
	fn, _ := env.Get("FastNumber")

	v, err := fn.(runtime.Native).Fn([]runtime.Value{num(t, "1.5")})
	require.NoError(t, err)
	require.Equal(t, runtime.KindFast, v.Kind())
	require.Equal(t, 1.5, v.(runtime.Fast).F)

	v, err = fn.(runtime.Native).Fn([]runtime.Value{text("2.25")})
	require.NoError(t, err)
	require.Equal(t, 2.25, v.(runtime.Fast).F)

	_, err = fn.(runtime.Native).Fn([]runtime.Value{text("nope")})
	require.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	env := testEnv(t)
	parse := lookup(t, env, "JSON", "Parse")

	v, err := parse.Fn([]runtime.Value{text(`{"name": "Ada", "tags": ["a", "b"], "n": 3}`)})
	require.NoError(t, err)
	d := v.(runtime.Dict)
	name, _ := d.Get("name")
	require.Equal(t, "Ada", name.String())
	tags, _ := d.Get("tags")
	require.Equal(t, 2, tags.(runtime.Seq).Len())

	stringify := lookup(t, env, "JSON", "Stringify")
	out, err := stringify.Fn([]runtime.Value{d})
	require.NoError(t, err)

	back, err := parse.Fn([]runtime.Value{out})
	require.NoError(t, err)
	n, _ := back.(runtime.Dict).Get("n")
	require.Equal(t, "3", n.String())
}

func TestJSONGetReturnsOption(t *testing.T) {
	env := testEnv(t)
	get := lookup(t, env, "JSON", "Get")

	v, err := get.Fn([]runtime.Value{text(`{"a": {"b": 7}}`), text("a.b")})
	require.NoError(t, err)
	opt := v.(runtime.Option)
	require.True(t, opt.IsSome())
	inner, _ := opt.Unwrap()
	require.Equal(t, "7", inner.String())

	v, err = get.Fn([]runtime.Value{text(`{}`), text("missing")})
	require.NoError(t, err)
	require.True(t, v.(runtime.Option).IsNone())
}

func TestJSONParseRejectsInvalid(t *testing.T) {
	env := testEnv(t)
	parse := lookup(t, env, "JSON", "Parse")
	_, err := parse.Fn([]runtime.Value{text(`{"broken`)})
	require.Error(t, err)
}

func TestTOMLRoundTrip(t *testing.T) {
	env := testEnv(t)
	parse := lookup(t, env, "TOML", "Parse")

	v, err := parse.Fn([]runtime.Value{text("[package]\nname = \"demo\"\ncount = 3\n")})
	require.NoError(t, err)
	pkg, _ := v.(runtime.Dict).Get("package")
	name, _ := pkg.(runtime.Dict).Get("name")
	require.Equal(t, "demo", name.String())
	count, _ := pkg.(runtime.Dict).Get("count")
	require.Equal(t, "3", count.String())
}

func TestCSVRoundTrip(t *testing.T) {
	env := testEnv(t)
	parse := lookup(t, env, "CSV", "Parse")
	stringify := lookup(t, env, "CSV", "Stringify")

	v, err := parse.Fn([]runtime.Value{text("a,b\n1,2\n")})
	require.NoError(t, err)
	rows := v.(runtime.Seq)
	require.Equal(t, 2, rows.Len())
	row1, err := rows.Get(1)
	require.NoError(t, err)
	cell, err := row1.(runtime.Seq).Get(2)
	require.NoError(t, err)
	require.Equal(t, "b", cell.String())

	out, err := stringify.Fn([]runtime.Value{rows})
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", out.String())
}

func TestHTMLAndXMLEscaping(t *testing.T) {
	env := testEnv(t)
	esc := lookup(t, env, "HTML", "Escape")
	v, err := esc.Fn([]runtime.Value{text(`<b>&</b>`)})
	require.NoError(t, err)
	require.Equal(t, "&lt;b&gt;&amp;&lt;/b&gt;", v.String())

	unesc := lookup(t, env, "HTML", "Unescape")
	v, err = unesc.Fn([]runtime.Value{v})
	require.NoError(t, err)
	require.Equal(t, "<b>&</b>", v.String())

	xesc := lookup(t, env, "XML", "Escape")
	v, err = xesc.Fn([]runtime.Value{text("a<b")})
	require.NoError(t, err)
	require.Equal(t, "a&lt;b", v.String())

	xunesc := lookup(t, env, "XML", "Unescape")
	v, err = xunesc.Fn([]runtime.Value{v})
	require.NoError(t, err)
	require.Equal(t, "a<b", v.String())
}

func TestFileReadWrite(t *testing.T) {
	env := testEnv(t)
	path := filepath.Join(t.TempDir(), "out.txt")

	write := lookup(t, env, "File", "Write")
	_, err := write.Fn([]runtime.Value{text(path), text("hello")})
	require.NoError(t, err)

	appendFn := lookup(t, env, "File", "Append")
	_, err = appendFn.Fn([]runtime.Value{text(path), text(" world")})
	require.NoError(t, err)

	read := lookup(t, env, "File", "Read")
	v, err := read.Fn([]runtime.Value{text(path)})
	require.NoError(t, err)
	require.Equal(t, "hello world", v.String())

	exists := lookup(t, env, "File", "Exists")
	v, err = exists.Fn([]runtime.Value{text(path)})
	require.NoError(t, err)
	require.Equal(t, "True", v.String())

	del := lookup(t, env, "File", "Delete")
	_, err = del.Fn([]runtime.Value{text(path)})
	require.NoError(t, err)
	v, _ = exists.Fn([]runtime.Value{text(path)})
	require.Equal(t, "False", v.String())
}

func TestFileReadMissingIsSystemError(t *testing.T) {
	env := testEnv(t)
	read := lookup(t, env, "File", "Read")
	_, err := read.Fn([]runtime.Value{text(filepath.Join(t.TempDir(), "missing"))})
	require.Error(t, err)
	he, ok := err.(*runtime.HostError)
	require.True(t, ok)
	require.Equal(t, runtime.KindSystem, he.Category)
	require.Equal(t, "FileNotFound", he.Subtype)
}

func TestEnvModule(t *testing.T) {
	env := testEnv(t)
	t.Setenv("STORYLANG_TEST_VAR", "on")

	get := lookup(t, env, "Env", "Get")
	v, err := get.Fn([]runtime.Value{text("STORYLANG_TEST_VAR")})
	require.NoError(t, err)
	opt := v.(runtime.Option)
	require.True(t, opt.IsSome())

	v, err = get.Fn([]runtime.Value{text("STORYLANG_DEFINITELY_UNSET")})
	require.NoError(t, err)
	require.True(t, v.(runtime.Option).IsNone())
}

func TestMathPreservesNumericKind(t *testing.T) {
	env := testEnv(t)
	sqrt := lookup(t, env, "Math", "Sqrt")

	v, err := sqrt.Fn([]runtime.Value{num(t, "4")})
	require.NoError(t, err)
	require.Equal(t, runtime.KindDecimal, v.Kind())
	require.Equal(t, "2", v.String())

	v, err = sqrt.Fn([]runtime.Value{runtime.Fast{F: 9}})
	require.NoError(t, err)
	require.Equal(t, runtime.KindFast, v.Kind())
	require.Equal(t, 3.0, v.(runtime.Fast).F)

	_, err = sqrt.Fn([]runtime.Value{num(t, "-1")})
	require.Error(t, err, "imaginary results are rejected")
}

func TestMathPow(t *testing.T) {
	env := testEnv(t)
	pow := lookup(t, env, "Math", "Pow")
	v, err := pow.Fn([]runtime.Value{num(t, "2"), num(t, "10")})
	require.NoError(t, err)
	require.Equal(t, "1024", v.String())
}

func TestDataHelpers(t *testing.T) {
	env := testEnv(t)

	rng := lookup(t, env, "Data", "Range")
	v, err := rng.Fn([]runtime.Value{num(t, "1"), num(t, "4")})
	require.NoError(t, err)
	require.Equal(t, 4, v.(runtime.Seq).Len())

	sum := lookup(t, env, "Data", "Sum")
	v, err = sum.Fn([]runtime.Value{v})
	require.NoError(t, err)
	require.Equal(t, "10", v.String())

	sortFn := lookup(t, env, "Data", "Sort")
	unsorted := runtime.NewSeq([]runtime.Value{num(t, "3"), num(t, "1"), num(t, "2")})
	v, err = sortFn.Fn([]runtime.Value{unsorted})
	require.NoError(t, err)
	first, err := v.(runtime.Seq).Get(1)
	require.NoError(t, err)
	require.Equal(t, "1", first.String())

	vec := lookup(t, env, "Data", "Vector")
	v, err = vec.Fn([]runtime.Value{runtime.NewSeq([]runtime.Value{num(t, "1"), num(t, "2")})})
	require.NoError(t, err)
	require.Equal(t, runtime.KindVector, v.Kind())
}

func TestErrorModule(t *testing.T) {
	env := testEnv(t)

	newFn := lookup(t, env, "Error", "New")
	v, err := newFn.Fn([]runtime.Value{text("Lookup"), text("MissingKey"), text("gone")})
	require.NoError(t, err)
	ev, ok := v.(runtime.ErrorVal)
	require.True(t, ok)
	require.Equal(t, "Lookup", ev.Category)

	catFn := lookup(t, env, "Error", "Category")
	c, err := catFn.Fn([]runtime.Value{ev})
	require.NoError(t, err)
	require.Equal(t, "Lookup", c.String())

	throwFn := lookup(t, env, "Error", "Throw")
	_, err = throwFn.Fn([]runtime.Value{text("Logic"), text("Custom"), text("boom")})
	require.Error(t, err)
	he, ok := err.(*runtime.HostError)
	require.True(t, ok)
	require.Equal(t, "Custom", he.Subtype)
}

func TestChannelModuleDict(t *testing.T) {
	env := testEnv(t)
	newCh := lookup(t, env, "Channel", "New")
	v, err := newCh.Fn([]runtime.Value{num(t, "2")})
	require.NoError(t, err)
	ch := v.(runtime.Dict)

	send, _ := ch.Get("Send")
	_, err = send.(runtime.Native).Fn([]runtime.Value{text("hi")})
	require.NoError(t, err)

	recv, _ := ch.Get("Receive")
	got, err := recv.(runtime.Native).Fn(nil)
	require.NoError(t, err)
	require.Equal(t, "hi", got.String())
}

func TestStreamModuleFromListAndZip(t *testing.T) {
	env := testEnv(t)
	fromList := lookup(t, env, "Stream", "FromList")
	a, err := fromList.Fn([]runtime.Value{runtime.NewSeq([]runtime.Value{num(t, "1"), num(t, "2")})})
	require.NoError(t, err)
	b, err := fromList.Fn([]runtime.Value{runtime.NewSeq([]runtime.Value{num(t, "10"), num(t, "20")})})
	require.NoError(t, err)

	zip := lookup(t, env, "Stream", "Zip")
	z, err := zip.Fn([]runtime.Value{a, b})
	require.NoError(t, err)

	toList, _ := z.(runtime.Dict).Get("ToList")
	v, err := toList.(runtime.Native).Fn(nil)
	require.NoError(t, err)
	pairs := v.(runtime.Seq)
	require.Equal(t, 2, pairs.Len())
	p1, err := pairs.Get(1)
	require.NoError(t, err)
	require.Equal(t, "[1, 10]", p1.String())
}

func TestTaskModuleWaitAll(t *testing.T) {
	env := testEnv(t)
	ex := concurrency.New()
	one, two := num(t, "1"), num(t, "2")
	h1 := ex.Spawn(func(func() bool) (runtime.Value, error) { return one, nil })
	h2 := ex.Spawn(func(func() bool) (runtime.Value, error) { return two, nil })

	waitAll := lookup(t, env, "Task", "WaitAll")
	v, err := waitAll.Fn([]runtime.Value{runtime.NewSeq([]runtime.Value{h1, h2})})
	require.NoError(t, err)
	require.Equal(t, 2, v.(runtime.Seq).Len())
	ex.Wait()
}

func TestSystemModule(t *testing.T) {
	env := testEnv(t)
	newID := lookup(t, env, "System", "NewID")
	a, err := newID.Fn(nil)
	require.NoError(t, err)
	b, err := newID.Fn(nil)
	require.NoError(t, err)
	require.NotEqual(t, a.String(), b.String())
	require.Len(t, a.String(), 36)

	stats := lookup(t, env, "System", "ProfilerStats")
	v, err := stats.Fn(nil)
	require.NoError(t, err)
	require.Equal(t, runtime.KindDict, v.Kind())
}

func TestLLMRequiresEndpoint(t *testing.T) {
	env := testEnv(t)
	os.Unsetenv("STORYLANG_LLM_URL")
	complete := lookup(t, env, "LLM", "Complete")
	_, err := complete.Fn([]runtime.Value{text("hi")})
	require.Error(t, err)
}
