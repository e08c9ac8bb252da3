// Package loader defines the asynchronous module and text loaders the binding
// engine consumes, plus the native implementations.
//
// Loaders have no error channel: a load that fails never calls its callback.
// Failures are logged through the configured Logf.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is reported when no module is registered under a path.
var ErrNotFound = errors.New("module not found")

// ModuleLoader loads the module at path and calls done with its value.
// done may be called on any goroutine.
type ModuleLoader interface {
	Load(path string, done func(value any))
}

// TextLoader loads text at path and calls done with it.
// done may be called on any goroutine.
type TextLoader interface {
	LoadText(path string, done func(text string))
}

// LoaderFunc adapts a function to ModuleLoader.
type LoaderFunc func(path string, done func(value any))

// Load implements ModuleLoader.
func (f LoaderFunc) Load(path string, done func(value any)) {
	f(path, done)
}

// TextFunc adapts a function to TextLoader.
type TextFunc func(path string, done func(text string))

// LoadText implements TextLoader.
func (f TextFunc) LoadText(path string, done func(text string)) {
	f(path, done)
}

// Logf receives loader failures.
type Logf func(level int, format string, args ...any)

// Preference is the order in which Select tries loaders.
var Preference = []string{"lua", "native"}

// Select returns the first loader in Preference that env provides.
func Select(env map[string]ModuleLoader) (string, ModuleLoader, error) {
	for _, name := range Preference {
		if l, ok := env[name]; ok && l != nil {
			return name, l, nil
		}
	}
	return "", nil, fmt.Errorf("no module loader available (tried %v)", Preference)
}

// Pending counts loads in flight so one-shot renders can wait for quiescence.
type Pending struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

// Begin records the start of a load.
func (p *Pending) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
}

// Done records the end of a load.
func (p *Pending) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count > 0 {
		p.count--
	}
	if p.count == 0 {
		for _, w := range p.waiters {
			close(w)
		}
		p.waiters = nil
	}
}

// Count returns the number of loads in flight.
func (p *Pending) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Wait blocks until no loads are in flight or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	p.mu.Lock()
	if p.count == 0 {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post runs a callback somewhere other than the loading goroutine, usually a
// reactive.Dispatcher.
type Post func(fn func())

// Tracked wraps a loader so each load is counted by pending and its callback
// is delivered through post. Loads that never complete stay counted.
func Tracked(l ModuleLoader, pending *Pending, post Post) ModuleLoader {
	return LoaderFunc(func(path string, done func(any)) {
		pending.Begin()
		l.Load(path, func(v any) {
			post(func() {
				defer pending.Done()
				done(v)
			})
		})
	})
}

// TrackedText is Tracked for text loaders.
func TrackedText(l TextLoader, pending *Pending, post Post) TextLoader {
	return TextFunc(func(path string, done func(string)) {
		pending.Begin()
		l.LoadText(path, func(text string) {
			post(func() {
				defer pending.Done()
				done(text)
			})
		})
	})
}
