package reactive

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Do after the dispatcher has been closed.
var ErrClosed = errors.New("dispatcher closed")

// turn is held while a dispatcher runs a work item. The dependency-tracking
// stack is shared by the process, so dispatchers take turns with it.
var turn sync.Mutex

// WorkItem is a unit of work for the dispatcher.
type WorkItem struct {
	fn     func() (any, error)
	result chan WorkResult
}

// WorkResult holds the result of a work item.
type WorkResult struct {
	Value any
	Err   error
}

// Dispatcher owns the goroutine that runs all reactive work.
// Loaders complete on their own goroutines and Post their callbacks here, so
// observables, computations and the DOM are only touched by one goroutine.
type Dispatcher struct {
	work      chan WorkItem
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	afterEach func()
}

// NewDispatcher creates a dispatcher and starts its goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		work: make(chan WorkItem, 100),
		done: make(chan struct{}),
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	go func() {
		for {
			select {
			case <-d.done:
				return
			case item := <-d.work:
				value, err := d.run(item)
				if item.result != nil {
					item.result <- WorkResult{Value: value, Err: err}
				}
			}
		}
	}()
}

func (d *Dispatcher) run(item WorkItem) (any, error) {
	turn.Lock()
	defer turn.Unlock()
	value, err := item.fn()
	d.mu.RLock()
	after := d.afterEach
	d.mu.RUnlock()
	if after != nil {
		after()
	}
	return value, err
}

// Post queues fn without waiting for it. Work posted after Close is dropped.
func (d *Dispatcher) Post(fn func()) {
	item := WorkItem{fn: func() (any, error) {
		fn()
		return nil, nil
	}}
	select {
	case <-d.done:
	case d.work <- item:
	}
}

// Do queues fn and blocks until it has run. It must not be called from work
// already running on this or any other dispatcher.
func (d *Dispatcher) Do(fn func() (any, error)) (any, error) {
	result := make(chan WorkResult, 1)
	select {
	case <-d.done:
		return nil, ErrClosed
	case d.work <- WorkItem{fn: fn, result: result}:
	}
	select {
	case <-d.done:
		return nil, ErrClosed
	case res := <-result:
		return res.Value, res.Err
	}
}

// SetAfterEach installs a hook that runs on the dispatcher after every work item.
func (d *Dispatcher) SetAfterEach(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.afterEach = fn
}

// Close stops the dispatcher goroutine. Queued work that has not started is dropped.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
