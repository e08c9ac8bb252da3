// Package app wires a site into a running binding: the dispatcher that owns
// all reactive state, module and template loaders, the engine, the binder and
// the bound page.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/zot/modbind/internal/binding"
	"github.com/zot/modbind/internal/config"
	"github.com/zot/modbind/internal/dom"
	"github.com/zot/modbind/internal/engine"
	"github.com/zot/modbind/internal/loader"
	"github.com/zot/modbind/internal/lua"
	"github.com/zot/modbind/internal/reactive"
)

// ErrUnknownValue is returned by Set for names that are not root values.
var ErrUnknownValue = errors.New("unknown value")

// App is a bound page. Every method may be called from any goroutine.
type App struct {
	Config     *config.Config
	Dispatcher *reactive.Dispatcher
	Engine     *engine.Engine
	Binder     *binding.Binder
	Modules    *loader.Registry
	Lua        *lua.Runtime // nil when the Lua loader is disabled
	Pending    *loader.Pending
	LoaderName string

	site   fs.FS
	dir    string
	doc    *dom.Node
	values map[string]*reactive.Observable[any]

	templateHot *engine.HotLoader
	luaHot      *lua.HotLoader
}

// TemplateInfo describes a cached template source.
type TemplateInfo struct {
	Key       string `json:"key"`
	Requested bool   `json:"requested"`
	Retrieved bool   `json:"retrieved"`
}

// New binds the page of site. dir is the site's directory on disk, or empty
// for an embedded site; hot loading needs a directory. modules are native
// modules keyed by name, registered below the module base directory.
func New(cfg *config.Config, site fs.FS, dir string, modules map[string]any) (*App, error) {
	a := &App{
		Config:     cfg,
		Dispatcher: reactive.NewDispatcher(),
		Pending:    &loader.Pending{},
		site:       site,
		dir:        dir,
		values:     map[string]*reactive.Observable[any]{},
	}

	a.Modules = loader.NewRegistry(cfg.Log)
	for name, value := range modules {
		a.Modules.Register(engine.AddTrailingSlash(cfg.Module.BaseDir)+name, value)
	}
	env := map[string]loader.ModuleLoader{"native": a.Modules}
	if cfg.Lua.Enabled {
		a.Lua = lua.NewRuntime(cfg, site)
		env["lua"] = a.Lua
	}
	name, modLoader, err := loader.Select(env)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.LoaderName = name
	cfg.Log(1, "app: using %s module loader", name)

	a.Engine = engine.New(cfg)
	a.Engine.DefaultPath = cfg.Template.Path
	a.Engine.DefaultSuffix = cfg.Template.Suffix
	a.Engine.TextPluginName = cfg.Template.TextPlugin
	a.Engine.Plugins[cfg.Template.TextPlugin] = loader.TrackedText(loader.NewFSText(site, cfg.Log), a.Pending, a.Dispatcher.Post)

	settings := &binding.Settings{
		BaseDir:          cfg.Module.BaseDir,
		Initializer:      cfg.Module.Initializer,
		DisposeMethod:    cfg.Module.DisposeMethod,
		TemplateProperty: cfg.Module.TemplateProperty,
	}
	a.Binder = binding.NewBinder(cfg, a.Engine, loader.Tracked(modLoader, a.Pending, a.Dispatcher.Post), settings)

	if err := a.bindPage(); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Template.HotLoad {
		if err := a.startHotLoading(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) bindPage() error {
	index := a.Config.Page.Index
	data, err := fs.ReadFile(a.site, index)
	if err != nil {
		return fmt.Errorf("page %s: %w", index, err)
	}
	doc, err := dom.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("page %s: %w", index, err)
	}
	a.doc = doc

	model := make(map[string]any, len(a.Config.Page.Values))
	for name, v := range a.Config.Page.Values {
		obs := reactive.NewObservable[any](v)
		a.values[name] = obs
		model[name] = obs
	}

	_, err = a.Dispatcher.Do(func() (any, error) {
		_, err := a.Binder.ApplyBindings(doc, model)
		return nil, err
	})
	if err != nil {
		// malformed bindings are reported, the rest of the page stays bound
		a.Config.Log(0, "app: %s: %v", index, err)
	}
	return nil
}

func (a *App) startHotLoading() error {
	if a.dir == "" {
		a.Config.Log(0, "app: hot loading needs a site directory, disabled")
		return nil
	}

	th, err := engine.NewHotLoader(a.Config, a.Engine, a.dir, a.Dispatcher.Post)
	if err != nil {
		return fmt.Errorf("template hot loader: %w", err)
	}
	if err := th.Start(); err != nil {
		th.Stop()
		return fmt.Errorf("template hot loader: %w", err)
	}
	a.templateHot = th

	if a.Lua == nil {
		return nil
	}
	lh, err := lua.NewHotLoader(a.Config, a.dir, a.Lua, func(path string) {
		a.Dispatcher.Post(func() { a.reloadModule(path) })
	})
	if err != nil {
		return fmt.Errorf("module hot loader: %w", err)
	}
	if err := lh.Start(a.Config.Module.BaseDir); err != nil {
		lh.Stop()
		return fmt.Errorf("module hot loader: %w", err)
	}
	a.luaHot = lh
	return nil
}

// reloadModule runs on the dispatcher.
func (a *App) reloadModule(path string) {
	for _, c := range a.Binder.Controllers() {
		if c.Path() == path {
			a.Config.Log(1, "app: reloading %s", path)
			c.Reload()
		}
	}
}

// Set replaces a root value. Bindings that read it update.
func (a *App) Set(name string, value any) error {
	obs, ok := a.values[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValue, name)
	}
	_, err := a.Dispatcher.Do(func() (any, error) {
		obs.Set(value)
		return nil, nil
	})
	return err
}

// Values returns the current root values.
func (a *App) Values() (map[string]any, error) {
	v, err := a.Dispatcher.Do(func() (any, error) {
		out := make(map[string]any, len(a.values))
		for name, obs := range a.values {
			out[name] = obs.Peek()
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// HTML renders the whole bound document.
func (a *App) HTML() (string, error) {
	v, err := a.Dispatcher.Do(func() (any, error) {
		var buf bytes.Buffer
		if err := dom.Render(&buf, a.doc); err != nil {
			return nil, err
		}
		return buf.String(), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// BodyHTML renders the children of the bound document's body.
func (a *App) BodyHTML() (string, error) {
	v, err := a.Dispatcher.Do(func() (any, error) {
		body := dom.Body(a.doc)
		if body == nil {
			return "", nil
		}
		return dom.InnerHTML(body), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Bindings lists the live module bindings.
func (a *App) Bindings() ([]binding.BindingInfo, error) {
	v, err := a.Dispatcher.Do(func() (any, error) {
		return a.Binder.Bindings(), nil
	})
	if err != nil {
		return nil, err
	}
	infos, _ := v.([]binding.BindingInfo)
	return infos, nil
}

// Templates lists the cached template sources, sorted by key.
func (a *App) Templates() ([]TemplateInfo, error) {
	v, err := a.Dispatcher.Do(func() (any, error) {
		var out []TemplateInfo
		for _, src := range a.Engine.Sources() {
			out = append(out, TemplateInfo{Key: src.Key(), Requested: src.Requested(), Retrieved: src.Retrieved()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	infos, _ := v.([]TemplateInfo)
	return infos, nil
}

// Wait blocks until no module or template loads are in flight. Loads that
// fail never complete, so callers should bound ctx.
func (a *App) Wait(ctx context.Context) error {
	return a.Pending.Wait(ctx)
}

// OnChange sets a function called on the dispatcher after every unit of work.
func (a *App) OnChange(fn func()) {
	a.Dispatcher.SetAfterEach(fn)
}

// Close stops hot loading, tears the page down and releases the Lua VM.
func (a *App) Close() {
	if a.templateHot != nil {
		a.templateHot.Stop()
	}
	if a.luaHot != nil {
		a.luaHot.Stop()
	}
	if a.doc != nil {
		a.Dispatcher.Do(func() (any, error) {
			dom.CleanNode(a.doc)
			return nil, nil
		})
	}
	a.Dispatcher.Close()
	if a.Lua != nil {
		a.Lua.Shutdown()
	}
}
