package depthfx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeInstance records its configuration value at build time and
// whether Dispose ran.
type fakeInstance struct {
	val      int
	disposed atomic.Bool
}

func (f *fakeInstance) Dispose() { f.disposed.Store(true) }

// buildHarness drives a Controller with a gateable build function.
type buildHarness struct {
	mu    sync.Mutex
	insts []*fakeInstance

	val     int
	started chan struct{}
	gate    chan struct{}
	builds  atomic.Int32
	err     error
}

func newBuildHarness() *buildHarness {
	return &buildHarness{
		started: make(chan struct{}, 16),
		gate:    make(chan struct{}, 16),
	}
}

func (h *buildHarness) build(ctx context.Context) (Instance, error) {
	h.builds.Add(1)
	h.started <- struct{}{}
	select {
	case <-h.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if h.err != nil {
		return nil, h.err
	}
	inst := &fakeInstance{val: h.val}
	h.mu.Lock()
	h.insts = append(h.insts, inst)
	h.mu.Unlock()
	return inst, nil
}

func (h *buildHarness) instances() []*fakeInstance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*fakeInstance(nil), h.insts...)
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("controller stuck in %v, want %v", c.State(), want)
}

func TestControllerConnectBuilds(t *testing.T) {
	h := newBuildHarness()
	h.val = 7
	c := NewController(h.build, nil)

	if c.State() != StateUninitialized {
		t.Fatalf("initial state = %v", c.State())
	}
	c.OnConnect()
	<-h.started
	if got := c.State(); got != StateInitializing {
		t.Fatalf("state during build = %v", got)
	}
	h.gate <- struct{}{}
	waitState(t, c, StateReady)

	inst, ok := c.Instance().(*fakeInstance)
	if !ok || inst.val != 7 {
		t.Fatalf("instance = %#v, want val 7", c.Instance())
	}
	if n := h.builds.Load(); n != 1 {
		t.Fatalf("builds = %d, want 1", n)
	}

	// A second connect while ready changes nothing.
	c.OnConnect()
	if n := h.builds.Load(); n != 1 {
		t.Fatalf("builds after redundant connect = %d", n)
	}
	c.OnDisconnect()
}

func TestControllerCoalescesChangesDuringBuild(t *testing.T) {
	h := newBuildHarness()
	c := NewController(h.build, nil)

	c.OnConnect()
	<-h.started

	// Three changes land while the first build is in flight. None may
	// spawn a concurrent build; together they must produce exactly one
	// rebuild carrying the final value.
	c.OnAttributeChange(func() { h.val = 1 })
	c.OnAttributeChange(func() { h.val = 2 })
	c.OnAttributeChange(func() { h.val = 3 })

	h.gate <- struct{}{} // first build completes, result discarded
	<-h.started          // the single rebuild
	h.gate <- struct{}{}
	waitState(t, c, StateReady)

	if n := h.builds.Load(); n != 2 {
		t.Fatalf("builds = %d, want 2 (original + one coalesced rebuild)", n)
	}
	inst, ok := c.Instance().(*fakeInstance)
	if !ok || inst.val != 3 {
		t.Fatalf("ready instance val = %#v, want 3", c.Instance())
	}
	insts := h.instances()
	if len(insts) != 2 {
		t.Fatalf("instances built = %d, want 2", len(insts))
	}
	if !insts[0].disposed.Load() {
		t.Fatal("superseded instance not disposed")
	}
	if insts[1].disposed.Load() {
		t.Fatal("live instance disposed")
	}
	c.OnDisconnect()
	if !insts[1].disposed.Load() {
		t.Fatal("disconnect did not dispose the live instance")
	}
}

func TestControllerDisconnectCancelsBuild(t *testing.T) {
	h := newBuildHarness()
	c := NewController(h.build, func(err error) {
		t.Errorf("onError fired for a canceled build: %v", err)
	})

	c.OnConnect()
	<-h.started
	c.OnDisconnect() // blocks until the build goroutine exits

	if got := c.State(); got != StateUninitialized {
		t.Fatalf("state after disconnect = %v", got)
	}
	if c.Instance() != nil {
		t.Fatal("instance survived disconnect")
	}
}

func TestControllerBuildFailure(t *testing.T) {
	boom := errors.New("no adapter")
	h := newBuildHarness()
	h.err = boom

	var reported atomic.Pointer[error]
	c := NewController(h.build, func(err error) { reported.Store(&err) })

	c.OnConnect()
	<-h.started
	h.gate <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for reported.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	errp := reported.Load()
	if errp == nil || !errors.Is(*errp, boom) {
		t.Fatalf("onError got %v, want %v", errp, boom)
	}
	if got := c.State(); got != StateUninitialized {
		t.Fatalf("state after failed build = %v", got)
	}

	// The failure edge leaves the controller reconnectable.
	h.err = nil
	h.val = 9
	c.OnConnect()
	<-h.started
	h.gate <- struct{}{}
	waitState(t, c, StateReady)
	if inst := c.Instance().(*fakeInstance); inst.val != 9 {
		t.Fatalf("retry built val %d, want 9", inst.val)
	}
	c.OnDisconnect()
}

func TestControllerChangeWhileReadyRebuilds(t *testing.T) {
	h := newBuildHarness()
	h.val = 1
	c := NewController(h.build, nil)

	c.OnConnect()
	<-h.started
	h.gate <- struct{}{}
	waitState(t, c, StateReady)
	first := c.Instance().(*fakeInstance)

	c.OnAttributeChange(func() { h.val = 2 })
	<-h.started
	h.gate <- struct{}{}
	waitState(t, c, StateReady)

	if !first.disposed.Load() {
		t.Fatal("previous instance not torn down")
	}
	second := c.Instance().(*fakeInstance)
	if second == first || second.val != 2 {
		t.Fatalf("rebuild produced %+v, want fresh instance with val 2", second)
	}
	c.OnDisconnect()
}

func TestControllerChangeWhileUninitializedAppliesOnly(t *testing.T) {
	h := newBuildHarness()
	c := NewController(h.build, nil)

	c.OnAttributeChange(func() { h.val = 5 })
	if n := h.builds.Load(); n != 0 {
		t.Fatalf("change before connect spawned %d builds", n)
	}
	if c.State() != StateUninitialized {
		t.Fatalf("state = %v", c.State())
	}

	c.OnConnect()
	<-h.started
	h.gate <- struct{}{}
	waitState(t, c, StateReady)
	if inst := c.Instance().(*fakeInstance); inst.val != 5 {
		t.Fatalf("connect after change built val %d, want 5", inst.val)
	}
	c.OnDisconnect()
}
