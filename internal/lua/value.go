package lua

import (
	"fmt"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/zot/modbind/internal/module"
	"github.com/zot/modbind/internal/reactive"
)

// Table is a Lua table seen from Go. Its methods are called with the table as self.
type Table struct {
	rt    *Runtime
	table *lua.LTable
}

// Function is a Lua function used as a module factory.
type Function struct {
	rt *Runtime
	fn *lua.LFunction
}

var (
	_ module.MethodSet   = (*Table)(nil)
	_ module.PropertySet = (*Table)(nil)
	_ module.Templated   = (*Table)(nil)
	_ module.Constructor = (*Function)(nil)
)

// wrap must run on the executor.
func (r *Runtime) wrap(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LTable:
		return &Table{rt: r, table: val}
	case *lua.LFunction:
		return &Function{rt: r, fn: val}
	default:
		return LuaToGo(v)
	}
}

// LTable returns the underlying table.
func (t *Table) LTable() *lua.LTable {
	return t.table
}

// Method implements module.MethodSet.
func (t *Table) Method(name string) (module.Func, bool) {
	v, _ := t.rt.execute(func() (interface{}, error) {
		fn, ok := t.rt.State.GetField(t.table, name).(*lua.LFunction)
		if !ok {
			return nil, nil
		}
		return fn, nil
	})
	fn, ok := v.(*lua.LFunction)
	if !ok {
		return nil, false
	}
	return func(args ...any) (any, error) {
		return t.rt.call(fn, t.table, args)
	}, true
}

// Property implements module.PropertySet. Functions come back as module.Func
// bound to the table.
func (t *Table) Property(name string) (any, bool) {
	type found struct {
		value any
		ok    bool
	}
	v, _ := t.rt.execute(func() (interface{}, error) {
		field := t.rt.State.GetField(t.table, name)
		if field == lua.LNil {
			return found{}, nil
		}
		if fn, ok := field.(*lua.LFunction); ok {
			return found{value: module.Func(func(args ...any) (any, error) {
				return t.rt.call(fn, t.table, args)
			}), ok: true}, nil
		}
		return found{value: t.rt.wrap(field), ok: true}, nil
	})
	f, _ := v.(found)
	return f.value, f.ok
}

// Get returns a field converted to plain Go values.
func (t *Table) Get(name string) any {
	v, _ := t.rt.execute(func() (interface{}, error) {
		return LuaToGo(t.rt.State.GetField(t.table, name)), nil
	})
	return v
}

// Set stores a Go value in a field.
func (t *Table) Set(name string, value any) {
	t.rt.execute(func() (interface{}, error) {
		t.rt.State.SetField(t.table, name, t.rt.GoToLua(value))
		return nil, nil
	})
}

// TemplateData implements module.Templated.
func (t *Table) TemplateData() any {
	v, _ := t.rt.execute(func() (interface{}, error) {
		return LuaToGo(t.table), nil
	})
	if v == nil {
		return map[string]interface{}{}
	}
	return v
}

// Construct implements module.Constructor. A table result is the instance;
// no result yields an empty table.
func (f *Function) Construct(args ...any) (any, error) {
	return f.rt.execute(func() (interface{}, error) {
		L := f.rt.State
		L.Push(f.fn)
		for _, arg := range args {
			L.Push(f.rt.GoToLua(arg))
		}
		if err := L.PCall(len(args), 1, nil); err != nil {
			return nil, err
		}
		result := L.Get(-1)
		L.Pop(1)
		if result == lua.LNil {
			result = L.NewTable()
		}
		return f.rt.wrap(result), nil
	})
}

// call invokes fn with self and args via the executor.
func (r *Runtime) call(fn *lua.LFunction, self *lua.LTable, args []any) (any, error) {
	return r.execute(func() (interface{}, error) {
		L := r.State

		// Push function and self
		L.Push(fn)
		L.Push(self)
		for _, arg := range args {
			L.Push(r.GoToLua(arg))
		}

		if err := L.PCall(len(args)+1, 1, nil); err != nil {
			return nil, err
		}

		result := L.Get(-1)
		L.Pop(1)
		if result == lua.LNil {
			return nil, nil
		}
		return r.wrap(result), nil
	})
}

// GoToLua converts a Go value to Lua. Observables are converted through their
// current value.
func (r *Runtime) GoToLua(val any) lua.LValue {
	if val == nil {
		return lua.LNil
	}

	switch v := val.(type) {
	case lua.LValue:
		return v
	case *Table:
		return v.table
	case *Function:
		return v.fn
	case reactive.Readable:
		return r.GoToLua(v.Peek())
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(float64(v))
	case int64:
		return lua.LNumber(float64(v))
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		tbl := r.State.NewTable()
		for i, item := range v {
			r.State.RawSetInt(tbl, i+1, r.GoToLua(item))
		}
		return tbl
	case map[string]interface{}:
		tbl := r.State.NewTable()
		for k, item := range v {
			r.State.SetField(tbl, k, r.GoToLua(item))
		}
		return tbl
	default:
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint, reflect.Uint8,
			reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32:
			return lua.LNumber(rv.Convert(reflect.TypeOf(float64(0))).Float())
		}
		r.Log(3, "lua: converting %T to string", val)
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// LuaToGo converts a Lua value to Go.
// Fields prefixed with "_" are skipped (internal/private fields).
func LuaToGo(val lua.LValue) interface{} {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		// Count numeric and string keys to determine if array or map
		hasNumericKeys := false
		hasStringKeys := false
		maxN := 0
		v.ForEach(func(key, _ lua.LValue) {
			if n, ok := key.(lua.LNumber); ok {
				hasNumericKeys = true
				if int(n) > maxN {
					maxN = int(n)
				}
			} else if ks, ok := key.(lua.LString); ok {
				if !strings.HasPrefix(string(ks), "_") {
					hasStringKeys = true
				}
			}
		})

		// Pure array (only numeric keys)
		if hasNumericKeys && !hasStringKeys && maxN > 0 {
			arr := make([]interface{}, maxN)
			for i := 1; i <= maxN; i++ {
				arr[i-1] = LuaToGo(v.RawGetInt(i))
			}
			return arr
		}

		m := make(map[string]interface{})
		v.ForEach(func(key, value lua.LValue) {
			if ks, ok := key.(lua.LString); ok {
				keyStr := string(ks)
				if strings.HasPrefix(keyStr, "_") {
					return
				}
				if _, isFn := value.(*lua.LFunction); isFn {
					return
				}
				m[keyStr] = LuaToGo(value)
			}
		})
		return m
	default:
		return nil
	}
}
