package reactive

// frame collects the dependencies read during one evaluation.
type frame struct {
	seen map[Dependency]struct{}
	deps []Dependency
}

// frames is the dependency-detection stack. A nil entry suspends tracking.
var frames []*frame

func track(dep Dependency) {
	if len(frames) == 0 {
		return
	}
	f := frames[len(frames)-1]
	if f == nil {
		return
	}
	if _, ok := f.seen[dep]; ok {
		return
	}
	f.seen[dep] = struct{}{}
	f.deps = append(f.deps, dep)
}

func capture(fn func()) []Dependency {
	f := &frame{seen: make(map[Dependency]struct{})}
	frames = append(frames, f)
	defer func() { frames = frames[:len(frames)-1] }()
	fn()
	return f.deps
}

// Ignore runs fn without registering dependencies with the running computation.
func Ignore(fn func()) {
	frames = append(frames, nil)
	defer func() { frames = frames[:len(frames)-1] }()
	fn()
}

// Computation runs a read function and re-runs it whenever an observable read
// during the previous run changes.
type Computation struct {
	read     func()
	teardown func()
	subs     []*Subscription
	deps     int
	running  bool
	dirty    bool
	disposed bool
	runs     int
}

// NewComputation creates a computation and runs read once immediately.
// teardown (optional) runs once when the computation is disposed.
func NewComputation(read func(), teardown func()) *Computation {
	c := &Computation{read: read, teardown: teardown}
	c.evaluate()
	return c
}

func (c *Computation) evaluate() {
	if c.disposed {
		return
	}
	if c.running {
		c.dirty = true
		return
	}
	c.running = true
	defer func() { c.running = false }()

	for {
		c.dirty = false
		c.runs++
		deps := capture(c.read)
		if c.disposed {
			return
		}
		c.resubscribe(deps)
		if !c.dirty {
			return
		}
	}
}

func (c *Computation) resubscribe(deps []Dependency) {
	for _, sub := range c.subs {
		sub.Dispose()
	}
	c.subs = c.subs[:0]
	for _, dep := range deps {
		c.subs = append(c.subs, dep.Subscribe(c.evaluate))
	}
	c.deps = len(deps)
}

// Dispose unsubscribes from every dependency and runs the teardown callback.
// Only the first call has any effect.
func (c *Computation) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	for _, sub := range c.subs {
		sub.Dispose()
	}
	c.subs = nil
	if c.teardown != nil {
		Ignore(c.teardown)
	}
}

// Disposed reports whether Dispose has been called.
func (c *Computation) Disposed() bool {
	return c.disposed
}

// DependencyCount returns the number of dependencies found by the last run.
func (c *Computation) DependencyCount() int {
	return c.deps
}

// Runs returns how many times the read function has run.
func (c *Computation) Runs() int {
	return c.runs
}
