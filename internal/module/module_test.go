package module

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	First string
	Last  string
}

func newPerson(first, last string) *person {
	if first == "" {
		first = "Bob"
	}
	if last == "" {
		last = "Smith"
	}
	return &person{First: first, Last: last}
}

type static struct {
	Initialized       bool
	CustomInitialized bool
	Args              []any
}

func (s *static) Initialize(args ...any) {
	s.Initialized = true
	s.Args = args
}

func (s *static) CustomInitialize() {
	s.CustomInitialized = true
}

type disposable struct {
	disposed int
}

func (d *disposable) Dispose() { d.disposed++ }

type inline struct {
	Template string
	name     string
}

func (i *inline) TemplateFunction() string {
	return "<b>" + i.name + "</b>"
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Factory, Classify(newPerson).Kind)
	assert.Equal(t, Factory, Classify(Func(func(args ...any) (any, error) { return nil, nil })).Kind)
	assert.Equal(t, Record, Classify(&static{}).Kind)
	assert.Equal(t, Record, Classify(map[string]any{}).Kind)
	assert.Equal(t, Record, Classify(nil).Kind)
	assert.Equal(t, "factory", Factory.String())
}

func TestInstantiateFactory(t *testing.T) {
	v, err := Instantiate(newPerson, []any{"Stan", "Vance"}, "initialize")
	require.NoError(t, err)
	assert.Equal(t, &person{First: "Stan", Last: "Vance"}, v)

	v, err = Instantiate(newPerson, nil, "initialize")
	require.NoError(t, err)
	assert.Equal(t, &person{First: "Bob", Last: "Smith"}, v)
}

func TestInstantiateInitializerPrecedence(t *testing.T) {
	rec := &static{}
	v, err := Instantiate(rec, []any{"a", 1}, "initialize")
	require.NoError(t, err)
	assert.Same(t, rec, v)
	assert.True(t, rec.Initialized)
	assert.False(t, rec.CustomInitialized)
	assert.Equal(t, []any{"a", 1}, rec.Args)

	custom := &static{}
	_, err = Instantiate(custom, nil, "customInitialize")
	require.NoError(t, err)
	assert.True(t, custom.CustomInitialized)
	assert.False(t, custom.Initialized)
}

func TestInstantiateInitializerReturnReplaces(t *testing.T) {
	original := map[string]any{
		"initialize": func(first string) map[string]any {
			return map[string]any{"first": first}
		},
	}
	v, err := Instantiate(original, []any{"Ted"}, "initialize")
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]any{"first": "Ted"}, v); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}
	_, hasInit := LookupMethod(v, "initialize")
	assert.False(t, hasInit)
}

func TestInstantiateEmptyReturnKeepsRecord(t *testing.T) {
	called := false
	original := map[string]any{
		"initialize": Func(func(args ...any) (any, error) {
			called = true
			return nil, nil
		}),
		"name": "kept",
	}
	v, err := Instantiate(original, nil, "initialize")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "kept", v.(map[string]any)["name"])
}

func TestInstantiateWithoutInitializer(t *testing.T) {
	rec := map[string]any{"initialize": "not a function"}
	v, err := Instantiate(rec, []any{1}, "initialize")
	require.NoError(t, err)
	assert.Equal(t, rec, v)
}

func TestInstantiateInitializerError(t *testing.T) {
	boom := errors.New("boom")
	rec := map[string]any{"initialize": func() error { return boom }}
	_, err := Instantiate(rec, nil, "initialize")
	assert.ErrorIs(t, err, boom)
}

func TestDispose(t *testing.T) {
	d := &disposable{}
	found, err := Dispose(d, "dispose")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, d.disposed)

	found, err = Dispose(d, "cleanup")
	require.NoError(t, err)
	assert.False(t, found)

	found, _ = Dispose(nil, "dispose")
	assert.False(t, found)
}

func TestTemplateText(t *testing.T) {
	i := &inline{Template: "<i>static</i>", name: "fn"}

	text, ok, err := TemplateText(i, "template")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<i>static</i>", text)

	text, ok, err = TemplateText(i, "templateFunction")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<b>fn</b>", text)

	_, ok, _ = TemplateText(i, "missing")
	assert.False(t, ok)

	_, ok, _ = TemplateText(map[string]any{"template": 3}, "template")
	assert.False(t, ok)
}

func TestCallConversions(t *testing.T) {
	add := func(a int, b float64) float64 { return float64(a) + b }
	v, err := Call(add, 2.0, 3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	_, err = Call(add, "x", 1)
	assert.Error(t, err)

	v, err = Call(func(s string, n int) string { return s }, nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	_, err = Call("not a func")
	assert.Error(t, err)

	_, err = Call(func() { panic("bad") })
	assert.ErrorContains(t, err, "panicked")
}

func TestLookupProperty(t *testing.T) {
	p := &person{First: "Ann"}
	v, ok := LookupProperty(p, "first")
	require.True(t, ok)
	assert.Equal(t, "Ann", v)

	_, ok = LookupProperty(p, "middle")
	assert.False(t, ok)

	v, ok = LookupProperty(map[string]any{"x": 1}, "x")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestIsEmpty(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *person
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(nilMap))
	assert.True(t, IsEmpty(nilPtr))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(0))
	assert.True(t, IsEmpty(false))
	assert.True(t, IsEmpty((func())(nil)))
	assert.False(t, IsEmpty(map[string]any{}))
	assert.False(t, IsEmpty([]any{}))
	assert.False(t, IsEmpty(&person{}))
	assert.False(t, IsEmpty(person{}))
	assert.False(t, IsEmpty([2]int{}))
}

func TestInstantiateZeroStructReturnReplaces(t *testing.T) {
	original := map[string]any{
		"initialize": func() person { return person{} },
	}
	v, err := Instantiate(original, nil, "initialize")
	require.NoError(t, err)
	assert.Equal(t, person{}, v)
}
