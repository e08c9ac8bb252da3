package binding

import (
	"github.com/zot/modbind/internal/config"
	"github.com/zot/modbind/internal/engine"
	"github.com/zot/modbind/internal/loader"
	"github.com/zot/modbind/internal/module"
	"github.com/zot/modbind/internal/reactive"
)

// State is the lifecycle state of a module binding.
type State int

const (
	Empty State = iota
	Loading
	Bound
	Disposed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Bound:
		return "bound"
	case Disposed:
		return "disposed"
	default:
		return "empty"
	}
}

// Controller owns the module instance of one bound element.
//
// Every change to an observable read while evaluating the binding value starts
// a transition: resolve, clear the published instance, dispose the previous
// instance, then load the new module. A load that completes after a later
// transition has started, or after teardown, is ignored.
type Controller struct {
	value    func() any
	settings *Settings
	loader   loader.ModuleLoader
	config   *config.Config

	data   *reactive.Observable[any] // render data, also the render gate
	module *reactive.Observable[any] // $module
	reload *reactive.Observable[int]

	state         State
	name          string
	path          string
	instance      any
	disposeMethod string // resolved in the instance's own transition
	generation    int
	comp          *reactive.Computation
}

// NewController starts a controller. value is evaluated inside the
// controller's computation. A nil settings means Defaults, read at each
// transition.
func NewController(cfg *config.Config, value func() any, settings *Settings, l loader.ModuleLoader) *Controller {
	c := &Controller{
		value:    value,
		settings: settings,
		loader:   l,
		config:   cfg,
		data:     reactive.NewObservable[any](nil),
		module:   reactive.NewObservable[any](nil),
		reload:   reactive.NewObservable(0),
	}
	c.comp = reactive.NewComputation(c.transition, c.teardown)
	return c
}

func (c *Controller) currentSettings() *Settings {
	if c.settings != nil {
		return c.settings
	}
	return Defaults
}

func (c *Controller) transition() {
	c.reload.Get()
	s := c.currentSettings()
	r := Resolve(c.value(), s)

	// go dark before anything else
	c.data.Set(nil)
	c.module.Set(nil)

	c.disposeInstance()

	c.generation++
	gen := c.generation
	c.name = r.ModuleName
	if r.ModuleName == "" {
		c.state = Empty
		c.path = ""
		c.config.Log(2, "module: binding empty")
		return
	}

	c.state = Loading
	c.path = engine.AddTrailingSlash(s.BaseDir) + r.ModuleName
	c.config.Log(2, "module: loading %s (generation %d)", c.path, gen)

	args, initializer, disposeMethod, path := r.Args, r.Initializer, r.DisposeMethod, c.path
	c.loader.Load(path, func(value any) {
		reactive.Ignore(func() {
			c.complete(gen, path, value, args, initializer, disposeMethod)
		})
	})
}

func (c *Controller) complete(gen int, path string, value any, args []any, initializer, disposeMethod string) {
	if c.state == Disposed || gen != c.generation {
		c.config.Log(2, "module: ignoring stale load of %s (generation %d, current %d)", path, gen, c.generation)
		return
	}

	instance, err := module.Instantiate(value, args, initializer)
	if err != nil {
		c.config.Log(0, "module: instantiate %s: %v", path, err)
		return
	}

	c.instance = instance
	c.disposeMethod = disposeMethod
	c.state = Bound
	c.config.Log(2, "module: bound %s as %s", path, module.Classify(value).Kind)

	c.module.Set(instance)
	c.data.Set(instance)
}

func (c *Controller) disposeInstance() {
	instance := c.instance
	if instance == nil {
		return
	}
	c.instance = nil
	reactive.Ignore(func() {
		if _, err := module.Dispose(instance, c.disposeMethod); err != nil {
			c.config.Log(0, "module: %s %s: %v", c.disposeMethod, c.name, err)
		}
	})
}

func (c *Controller) teardown() {
	c.state = Disposed
	c.generation++
	c.disposeInstance()
	c.config.Log(2, "module: disposed binding for %s", c.name)
}

// Dispose tears the binding down. It is called when the bound node is removed.
func (c *Controller) Dispose() {
	c.comp.Dispose()
}

// Reload runs the transition again with the current binding value, loading
// the module afresh.
func (c *Controller) Reload() {
	if c.state == Disposed {
		return
	}
	c.reload.Set(c.reload.Value() + 1)
}

// Data is the render-data observable: the instance, or nil while empty or loading.
func (c *Controller) Data() *reactive.Observable[any] { return c.data }

// Module is the observable published to descendants as $module.
func (c *Controller) Module() *reactive.Observable[any] { return c.module }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Name returns the module name of the current transition.
func (c *Controller) Name() string { return c.name }

// Path returns the loader path of the current transition.
func (c *Controller) Path() string { return c.path }

// Instance returns the live instance, if any.
func (c *Controller) Instance() any { return c.instance }

// Generation counts transitions.
func (c *Controller) Generation() int { return c.generation }
