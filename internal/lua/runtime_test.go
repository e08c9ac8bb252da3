package lua

import (
	"testing"
	"testing/fstest"
	"time"

	golua "github.com/yuin/gopher-lua"
	"github.com/zot/modbind/internal/config"
	"github.com/zot/modbind/internal/module"
)

func newTestRuntime(t *testing.T, files map[string]string) *Runtime {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, code := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(code)}
	}
	rt := NewRuntime(config.DefaultConfig(), fsys)
	t.Cleanup(rt.Shutdown)
	return rt
}

func loadSync(t *testing.T, rt *Runtime, path string) any {
	t.Helper()
	got := make(chan any, 1)
	rt.Load(path, func(v any) { got <- v })
	select {
	case v := <-got:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("load %s did not complete", path)
		return nil
	}
}

func TestFactoryModule(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/person.lua": `
			return function(first, last)
				return { first = first or "Bob", last = last or "Smith" }
			end`,
	})

	factory := loadSync(t, rt, "modules/person")
	if module.Classify(factory).Kind != module.Factory {
		t.Fatalf("expected factory, got %T", factory)
	}

	inst, err := module.Instantiate(factory, []any{"Stan", "Vance"}, "initialize")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	tbl, ok := inst.(*Table)
	if !ok {
		t.Fatalf("expected *Table, got %T", inst)
	}
	if tbl.Get("first") != "Stan" || tbl.Get("last") != "Vance" {
		t.Errorf("unexpected instance %v", tbl.TemplateData())
	}

	inst, err = module.Instantiate(factory, nil, "initialize")
	if err != nil {
		t.Fatalf("instantiate defaults: %v", err)
	}
	if got := inst.(*Table).Get("first"); got != "Bob" {
		t.Errorf("expected default first name Bob, got %v", got)
	}
}

func TestRecordModuleInitializers(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/static.lua": `
			return {
				initialized = false,
				custom = false,
				initialize = function(self, a, b)
					self.initialized = true
					self.sum = (a or 0) + (b or 0)
				end,
				customInitialize = function(self)
					self.custom = true
				end,
			}`,
	})

	rec := loadSync(t, rt, "modules/static")
	inst, err := module.Instantiate(rec, []any{1, 2}, "customInitialize")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	tbl := inst.(*Table)
	if tbl.LTable() != rec.(*Table).LTable() {
		t.Fatalf("record should be its own instance")
	}
	if tbl.Get("custom") != true || tbl.Get("initialized") != false {
		t.Errorf("customInitialize should run alone: %v", tbl.TemplateData())
	}

	if _, err := module.Instantiate(rec, []any{1, 2}, "initialize"); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if tbl.Get("sum") != float64(3) {
		t.Errorf("expected sum 3, got %v", tbl.Get("sum"))
	}
}

func TestInitializerReturnReplacesRecord(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/returns.lua": `
			return {
				initialize = function(self, first)
					return { first = first }
				end,
			}`,
	})

	rec := loadSync(t, rt, "modules/returns")
	inst, err := module.Instantiate(rec, []any{"Ted"}, "initialize")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	tbl := inst.(*Table)
	if tbl.Get("first") != "Ted" {
		t.Errorf("expected returned table, got %v", tbl.TemplateData())
	}
	if _, ok := tbl.Method("initialize"); ok {
		t.Errorf("returned table should not carry initialize")
	}
}

func TestRequireCachesAndResolvesDots(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/util.lua": `
			counter = (counter or 0) + 1
			return { greet = function(self, name) return "hi " .. name end }`,
		"modules/user.lua": `
			local util = require("modules.util")
			local again = require("modules.util")
			return { greeting = util:greet("ann"), same = util == again }`,
	})

	user := loadSync(t, rt, "modules/user").(*Table)
	if user.Get("greeting") != "hi ann" {
		t.Errorf("unexpected greeting %v", user.Get("greeting"))
	}
	if user.Get("same") != true {
		t.Errorf("require should return the cached module")
	}
	if !rt.IsLoaded("modules/util") {
		t.Errorf("util should be cached")
	}

	rt.Unload("modules/util")
	if rt.IsLoaded("modules/util") {
		t.Errorf("util should be unloaded")
	}
}

func TestLoadFailureNeverCallsBack(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/broken.lua": `return {`,
	})

	called := make(chan any, 2)
	rt.Load("modules/broken", func(v any) { called <- v })
	rt.Load("modules/missing", func(v any) { called <- v })

	select {
	case v := <-called:
		t.Fatalf("failed load called back with %v", v)
	case <-time.After(50 * time.Millisecond):
	}
	if rt.IsLoaded("modules/broken") {
		t.Errorf("broken module should be unmarked for retry")
	}
}

func TestPropertyAndTemplateText(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/inline.lua": `
			return {
				name = "inline",
				template = "<p>static</p>",
				templateFunction = function(self) return "<b>" .. self.name .. "</b>" end,
			}`,
	})

	inst := loadSync(t, rt, "modules/inline")
	text, ok, err := module.TemplateText(inst, "template")
	if err != nil || !ok || text != "<p>static</p>" {
		t.Fatalf("template property: %q %v %v", text, ok, err)
	}
	text, ok, err = module.TemplateText(inst, "templateFunction")
	if err != nil || !ok || text != "<b>inline</b>" {
		t.Fatalf("template function: %q %v %v", text, ok, err)
	}

	data := inst.(*Table).TemplateData().(map[string]interface{})
	if _, hasFn := data["templateFunction"]; hasFn {
		t.Errorf("functions should not appear in template data")
	}
	if data["name"] != "inline" {
		t.Errorf("expected name in template data, got %v", data)
	}
}

func TestDisposeMethod(t *testing.T) {
	rt := newTestRuntime(t, map[string]string{
		"modules/disposable.lua": `
			return { disposed = 0, dispose = function(self) self.disposed = self.disposed + 1 end }`,
	})

	inst := loadSync(t, rt, "modules/disposable")
	found, err := module.Dispose(inst, "dispose")
	if err != nil || !found {
		t.Fatalf("dispose: %v %v", found, err)
	}
	if inst.(*Table).Get("disposed") != float64(1) {
		t.Errorf("dispose should run once")
	}
}

func TestGoToLuaRoundTrip(t *testing.T) {
	rt := newTestRuntime(t, nil)
	v, err := rt.execute(func() (interface{}, error) {
		lv := rt.GoToLua(map[string]interface{}{
			"name":  "x",
			"list":  []any{1, "two"},
			"_priv": true,
		})
		return LuaToGo(lv), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	m := v.(map[string]interface{})
	if m["name"] != "x" {
		t.Errorf("name: %v", m["name"])
	}
	list := m["list"].([]interface{})
	if list[0] != float64(1) || list[1] != "two" {
		t.Errorf("list: %v", list)
	}
	if _, ok := m["_priv"]; ok {
		t.Errorf("private fields should be skipped")
	}
	if LuaToGo(golua.LNil) != nil {
		t.Errorf("nil should convert to nil")
	}
}

func TestEval(t *testing.T) {
	rt := newTestRuntime(t, nil)
	v, err := rt.Eval(`return 1 + 2`)
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(3) {
		t.Errorf("expected 3, got %v", v)
	}
}
