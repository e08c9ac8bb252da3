// Package lua loads binding modules written in Lua.
//
// A Runtime owns one Lua VM and the executor goroutine that serializes every
// call into it. A module file returning a table is a record; a module file
// returning a function is a factory.
package lua

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/zot/modbind/internal/config"
)

// WorkItem represents a unit of work for the executor.
type WorkItem struct {
	fn     func() (interface{}, error)
	result chan WorkResult
}

// WorkResult holds the result of a work item.
type WorkResult struct {
	Value interface{}
	Err   error
}

// Runtime is a Lua VM reached only through its executor goroutine.
type Runtime struct {
	State     *lua.LState
	loaded    *lua.LTable // module values keyed by slash-separated path, without ".lua"
	fsys      fs.FS
	config    *config.Config
	work      chan WorkItem
	done      chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a VM that loads module files from fsys and starts its executor.
func NewRuntime(cfg *config.Config, fsys fs.FS) *Runtime {
	L := lua.NewState()

	r := &Runtime{
		State:  L,
		loaded: L.NewTable(),
		fsys:   fsys,
		config: cfg,
		work:   make(chan WorkItem, 100),
		done:   make(chan struct{}),
	}

	r.registerRequire()
	r.registerLog()
	r.startExecutor()
	return r
}

// Log logs a message via the config.
func (r *Runtime) Log(level int, format string, args ...interface{}) {
	r.config.Log(level, format, args...)
}

// startExecutor creates the goroutine that processes work items.
func (r *Runtime) startExecutor() {
	go func() {
		for {
			select {
			case <-r.done:
				return
			case work := <-r.work:
				result, err := work.fn()
				work.result <- WorkResult{Value: result, Err: err}
			}
		}
	}()
}

// execute queues a function on the executor and blocks until complete.
func (r *Runtime) execute(fn func() (interface{}, error)) (interface{}, error) {
	result := make(chan WorkResult, 1)
	select {
	case <-r.done:
		return nil, fmt.Errorf("lua runtime shut down")
	case r.work <- WorkItem{fn: fn, result: result}:
	}
	select {
	case <-r.done:
		return nil, fmt.Errorf("lua runtime shut down")
	case res := <-result:
		return res.Value, res.Err
	}
}

// registerRequire replaces require() with one that reads modules from the
// runtime's file system and shares the module cache with Load.
// Modules are marked loaded before executing so circular requires terminate.
func (r *Runtime) registerRequire() {
	L := r.State
	loaded := r.loaded

	requireFn := L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)
		path := strings.ReplaceAll(modName, ".", "/")

		result, err := r.requireDirect(path)
		if err != nil {
			L.RaiseError("error loading module '%s': %v", modName, err)
			return 0
		}
		L.Push(result)
		return 1
	})

	L.SetGlobal("require", requireFn)

	pkg := L.NewTable()
	L.SetField(pkg, "loaded", loaded)
	L.SetGlobal("package", pkg)
}

// registerLog adds log(level, message) for module code.
func (r *Runtime) registerLog() {
	r.State.SetGlobal("log", r.State.NewFunction(func(L *lua.LState) int {
		level := L.CheckInt(1)
		msg := L.CheckString(2)
		r.Log(level, "lua: %s", msg)
		return 0
	}))
}

// Require loads the module at path (no ".lua" suffix) via the executor.
func (r *Runtime) Require(path string) (lua.LValue, error) {
	v, err := r.execute(func() (interface{}, error) {
		return r.requireDirect(path)
	})
	if err != nil {
		return lua.LNil, err
	}
	return v.(lua.LValue), nil
}

// requireDirect must run on the executor.
func (r *Runtime) requireDirect(path string) (lua.LValue, error) {
	L := r.State
	loaded := r.loaded
	path = strings.TrimPrefix(path, "/")

	if cached := L.GetField(loaded, path); cached != lua.LNil {
		return cached, nil
	}

	code, err := fs.ReadFile(r.fsys, path+".lua")
	if err != nil {
		return lua.LNil, fmt.Errorf("read %s.lua: %w", path, err)
	}

	// Mark as loaded BEFORE executing (handles circular dependencies)
	L.SetField(loaded, path, lua.LTrue)

	fn, err := L.LoadString(string(code))
	if err == nil {
		L.Push(fn)
		err = L.PCall(0, 1, nil)
	}
	if err != nil {
		// Unmark on error (allows retry)
		L.SetField(loaded, path, lua.LNil)
		return lua.LNil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	result := L.Get(-1)
	L.Pop(1)
	if result == lua.LNil {
		result = lua.LTrue
	}
	L.SetField(loaded, path, result)
	r.Log(1, "lua: loaded %s", path)
	return result, nil
}

// Unload drops a module from the cache so the next load reads the file again.
func (r *Runtime) Unload(path string) {
	r.execute(func() (interface{}, error) {
		r.State.SetField(r.loaded, strings.TrimPrefix(path, "/"), lua.LNil)
		return nil, nil
	})
}

// IsLoaded reports whether path is in the module cache.
func (r *Runtime) IsLoaded(path string) bool {
	v, _ := r.execute(func() (interface{}, error) {
		return r.State.GetField(r.loaded, strings.TrimPrefix(path, "/")) != lua.LNil, nil
	})
	loaded, _ := v.(bool)
	return loaded
}

// Load implements loader.ModuleLoader. The module is required on the executor
// and done is called from a separate goroutine with the wrapped value.
// Failed loads are logged and never call done.
func (r *Runtime) Load(path string, done func(any)) {
	go func() {
		v, err := r.execute(func() (interface{}, error) {
			value, err := r.requireDirect(path)
			if err != nil {
				return nil, err
			}
			return r.wrap(value), nil
		})
		if err != nil {
			r.Log(0, "lua: load %s: %v", path, err)
			return
		}
		done(v)
	}()
}

// Eval runs a chunk of Lua code and returns its first result, wrapped.
func (r *Runtime) Eval(code string) (any, error) {
	return r.execute(func() (interface{}, error) {
		L := r.State
		fn, err := L.LoadString(code)
		if err != nil {
			return nil, err
		}
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			return nil, err
		}
		result := L.Get(-1)
		L.Pop(1)
		return r.wrap(result), nil
	})
}

// Shutdown stops the executor and closes the VM.
func (r *Runtime) Shutdown() {
	r.closeOnce.Do(func() {
		r.execute(func() (interface{}, error) {
			r.State.Close()
			return nil, nil
		})
		close(r.done)
	})
}
