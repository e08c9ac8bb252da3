// Package module decides how a loaded module value becomes a bound instance and
// provides the capability helpers used to call named methods on instances.
//
// A loaded value is either a factory (something callable that constructs an
// instance) or a record (an object that is the instance, optionally initialized
// through a named method). Records expose methods through MethodSet, through
// function values in a map[string]any, or through exported Go methods whose name
// is the capitalized method name ("initialize" finds Initialize).
package module

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Func is a method or factory bound to its receiver.
type Func func(args ...any) (any, error)

// MethodSet is implemented by values that resolve their own methods, such as Lua tables.
type MethodSet interface {
	Method(name string) (Func, bool)
}

// PropertySet is implemented by values that resolve their own properties.
type PropertySet interface {
	Property(name string) (any, bool)
}

// Constructor is implemented by factories that are not Go funcs, such as Lua functions.
type Constructor interface {
	Construct(args ...any) (any, error)
}

// Templated is implemented by instances that supply their own template data.
type Templated interface {
	TemplateData() any
}

// Kind tells factories from records.
type Kind int

const (
	Record Kind = iota
	Factory
)

func (k Kind) String() string {
	if k == Factory {
		return "factory"
	}
	return "record"
}

// Loaded is a classified module value.
type Loaded struct {
	Kind  Kind
	Value any
}

// Classify tags a loaded value as a factory or a record.
func Classify(v any) Loaded {
	if _, ok := v.(Constructor); ok {
		return Loaded{Kind: Factory, Value: v}
	}
	if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
		return Loaded{Kind: Factory, Value: v}
	}
	return Loaded{Kind: Record, Value: v}
}

// Instantiate produces the bound instance from a loaded value. Factories are
// called with args. Records have their initializer called with args when they
// expose it; a non-empty result replaces the record.
func Instantiate(v any, args []any, initializer string) (any, error) {
	if args == nil {
		args = []any{}
	}
	loaded := Classify(v)
	if loaded.Kind == Factory {
		return construct(loaded.Value, args)
	}
	fn, ok := LookupMethod(loaded.Value, initializer)
	if !ok {
		return loaded.Value, nil
	}
	result, err := fn(args...)
	if err != nil {
		return loaded.Value, fmt.Errorf("%s: %w", initializer, err)
	}
	if !IsEmpty(result) {
		return result, nil
	}
	return loaded.Value, nil
}

func construct(factory any, args []any) (any, error) {
	if c, ok := factory.(Constructor); ok {
		return c.Construct(args...)
	}
	return Call(factory, args...)
}

// Dispose calls the named method on instance if it exists. It reports whether
// a method was found.
func Dispose(instance any, method string) (bool, error) {
	if instance == nil || method == "" {
		return false, nil
	}
	fn, ok := LookupMethod(instance, method)
	if !ok {
		return false, nil
	}
	_, err := fn()
	return true, err
}

// LookupMethod finds a callable member of v.
func LookupMethod(v any, name string) (Func, bool) {
	if v == nil || name == "" {
		return nil, false
	}
	if ms, ok := v.(MethodSet); ok {
		return ms.Method(name)
	}
	if m, ok := v.(map[string]any); ok {
		member, ok := m[name]
		if !ok || !isCallable(member) {
			return nil, false
		}
		return bind(member), true
	}
	method := reflect.ValueOf(v).MethodByName(exportedName(name))
	if !method.IsValid() {
		return nil, false
	}
	return bind(method.Interface()), true
}

// LookupProperty finds a member of v. Struct fields are found by their
// capitalized name, then methods, which are returned as a Func.
func LookupProperty(v any, name string) (any, bool) {
	if v == nil || name == "" {
		return nil, false
	}
	if ps, ok := v.(PropertySet); ok {
		return ps.Property(name)
	}
	if m, ok := v.(map[string]any); ok {
		member, ok := m[name]
		return member, ok
	}
	rv := reflect.ValueOf(v)
	goName := exportedName(name)
	if s := reflect.Indirect(rv); s.Kind() == reflect.Struct {
		if f, ok := s.Type().FieldByName(goName); ok && f.IsExported() {
			return s.FieldByIndex(f.Index).Interface(), true
		}
	}
	if method := rv.MethodByName(goName); method.IsValid() {
		return bind(method.Interface()), true
	}
	return nil, false
}

// TemplateText reads an inline template from the named property of instance.
// The property may hold a string or a callable returning one.
func TemplateText(instance any, property string) (string, bool, error) {
	value, ok := LookupProperty(instance, property)
	if !ok || value == nil {
		return "", false, nil
	}
	if s, ok := value.(string); ok {
		return s, true, nil
	}
	if !isCallable(value) {
		return "", false, nil
	}
	result, err := bind(value)()
	if err != nil {
		return "", false, fmt.Errorf("template property %s: %w", property, err)
	}
	s, ok := result.(string)
	return s, ok, nil
}

// IsEmpty reports whether v stands for no instance: nil, a nil reference or a
// zero scalar. Structs and arrays are never empty.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	case reflect.Struct, reflect.Array:
		return false
	}
	return rv.IsZero()
}

func isCallable(v any) bool {
	if _, ok := v.(Func); ok {
		return true
	}
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}

func bind(fn any) Func {
	if f, ok := fn.(Func); ok {
		return f
	}
	if f, ok := fn.(func(args ...any) (any, error)); ok {
		return f
	}
	return func(args ...any) (any, error) {
		return Call(fn, args...)
	}
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
