package depthfx

import (
	"context"
	"sync"
)

// State is the lifecycle phase of a host-managed effect instance.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Instance is what a Controller manages: anything with a teardown.
// *Parallax, *RackFocus and *Portal all qualify.
type Instance interface {
	Dispose()
}

// BuildFunc constructs and initializes one effect instance. It runs on
// the controller's goroutine, never concurrently with itself or with
// an attribute apply, and should honor ctx cancellation (device open
// and model download both do).
type BuildFunc func(ctx context.Context) (Instance, error)

// Controller owns the connect/disconnect/attribute-change lifecycle of
// one effect slot, the way an embedding host (a CLI watching a config
// file, a GUI shell) needs it driven.
//
// It holds the state machine Uninitialized -> Initializing -> Ready,
// with cancellation and failure edges back to Uninitialized. At most
// one build is ever in flight. Attribute changes while a build runs do
// not spawn a second build: the applies queue up, and when the running
// attempt completes its instance is discarded, the queued applies run,
// and one rebuild starts with the final values. A change while Ready
// tears the instance down and rebuilds, never patches in place.
//
// OnConnect, OnDisconnect and OnAttributeChange are meant to be called
// from one host goroutine, in the order the host observes the events.
// State and Instance may be read from anywhere.
type Controller struct {
	mu      sync.Mutex
	build   BuildFunc
	onError func(error)

	state   State
	inst    Instance
	session context.Context
	cancel  context.CancelFunc
	pending []func()
	wg      sync.WaitGroup
}

// NewController wires a build function and an optional error callback.
// onError fires when a build attempt fails; the controller is back in
// StateUninitialized by then and OnConnect may be called again.
func NewController(build BuildFunc, onError func(error)) *Controller {
	if onError == nil {
		onError = func(error) {}
	}
	return &Controller{build: build, onError: onError}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Instance returns the managed instance, nil unless StateReady.
func (c *Controller) Instance() Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return nil
	}
	return c.inst
}

// OnConnect starts building. A no-op unless currently uninitialized.
func (c *Controller) OnConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.session, c.cancel = ctx, cancel
	c.state = StateInitializing
	c.wg.Add(1)
	go c.run(ctx)
}

// OnAttributeChange records a configuration mutation. apply always
// runs exactly once, on the controller's lock, never concurrently
// with a build:
//
//   - Uninitialized: applied immediately; the next OnConnect sees it.
//   - Initializing: queued; the in-flight attempt's result is
//     discarded and one rebuild runs after all queued applies.
//   - Ready: applied immediately, then full teardown and rebuild.
func (c *Controller) OnAttributeChange(apply func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateInitializing:
		c.pending = append(c.pending, apply)
	case StateReady:
		apply()
		old := c.inst
		c.inst = nil
		c.state = StateInitializing
		ctx := c.ctx()
		c.wg.Add(1)
		go func() {
			old.Dispose()
			c.run(ctx)
		}()
	default:
		apply()
	}
}

// OnDisconnect cancels any in-flight build, tears down the instance
// and returns to StateUninitialized. Queued attribute applies still
// run, so the configuration is current for the next OnConnect.
func (c *Controller) OnDisconnect() {
	c.mu.Lock()
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return
	}
	c.state = StateUninitialized
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.session = nil
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for _, apply := range c.pending {
		apply()
	}
	c.pending = nil
	inst := c.inst
	c.inst = nil
	c.mu.Unlock()

	if inst != nil {
		inst.Dispose()
	}
}

// ctx rebuilds the session context when a rebuild is scheduled after
// the original OnConnect. Caller holds mu.
func (c *Controller) ctx() context.Context {
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.session, c.cancel = ctx, cancel
	return ctx
}

// run executes build attempts until one lands with no newer attribute
// values queued behind it. Runs on its own goroutine; wg tracks it.
func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		inst, err := c.build(ctx)

		c.mu.Lock()
		if ctx.Err() != nil || c.session != ctx {
			// Disconnected or superseded mid-build. Whoever replaced
			// the session owns the state.
			c.mu.Unlock()
			if err == nil && inst != nil {
				inst.Dispose()
			}
			return
		}
		if len(c.pending) > 0 {
			applies := c.pending
			c.pending = nil
			for _, apply := range applies {
				apply()
			}
			c.mu.Unlock()
			if err == nil && inst != nil {
				inst.Dispose()
			}
			continue
		}
		if err != nil {
			c.state = StateUninitialized
			c.mu.Unlock()
			c.onError(err)
			return
		}
		c.inst = inst
		c.state = StateReady
		c.mu.Unlock()
		return
	}
}
