package module

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Call invokes any Go func with positional arguments. Missing arguments are
// passed as zero values and extra arguments are dropped. Numeric arguments are
// converted to the parameter type. A trailing error result is returned as the
// error; the first other result is the value. Panics become errors.
func Call(fn any, args ...any) (result any, err error) {
	if f, ok := fn.(Func); ok {
		return f(args...)
	}
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not callable", fn)
	}
	in, err := callArgs(rv.Type(), args)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("call panicked: %v", r)
		}
	}()

	return callResults(rv.Type(), rv.Call(in))
}

func callArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	fixed := n
	if t.IsVariadic() {
		fixed = n - 1
	}
	in := make([]reflect.Value, 0, max(n, len(args)))
	for i := 0; i < fixed; i++ {
		var arg any
		if i < len(args) {
			arg = args[i]
		}
		v, err := convertArg(arg, t.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in = append(in, v)
	}
	if t.IsVariadic() {
		elem := t.In(n - 1).Elem()
		for i := fixed; i < len(args); i++ {
			v, err := convertArg(args[i], elem)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			in = append(in, v)
		}
	}
	return in, nil
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(want), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		if want.Kind() == reflect.Interface {
			out := reflect.New(want).Elem()
			out.Set(v)
			return out, nil
		}
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(want.Kind()) {
		return v.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, want)
}

func callResults(t reflect.Type, out []reflect.Value) (any, error) {
	var value any
	var err error
	haveValue := false
	for i, o := range out {
		if t.Out(i) == errorType {
			if !o.IsNil() {
				err = o.Interface().(error)
			}
			continue
		}
		if !haveValue {
			value = o.Interface()
			haveValue = true
		}
	}
	return value, err
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
