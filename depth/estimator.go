package depth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gogpu/depthfx/internal/plane"
)

var (
	// ErrEstimatorBusy is returned by SubmitFrameAndWait while a
	// previous inference is still in flight.
	ErrEstimatorBusy = errors.New("depth: estimation in flight")
	// ErrEstimatorClosed is returned after Close.
	ErrEstimatorClosed = errors.New("depth: estimator closed")
)

// Model produces a relative depth map from a tightly packed RGBA
// frame. Higher output values are nearer. Estimate may take tens of
// milliseconds; the Estimator never runs two calls at once.
type Model interface {
	Estimate(ctx context.Context, rgba []byte, w, h int) (data []float32, dw, dh int, err error)
	Close() error
}

// EstimatorStats counts inference outcomes.
type EstimatorStats struct {
	Completed uint64
	Dropped   uint64
}

// Estimator bridges an asynchronous depth model to the renderer. It
// implements Reader: DepthAt returns the latest completed estimate
// regardless of the queried time.
//
// SubmitFrame is non-blocking and drops the request when an inference
// is still running, which throttles inference to its own completion
// rate instead of building a backlog. Completed estimates are resized
// to the target resolution, normalized to the full byte range using
// the batch's own min and max, and published through a DoubleBuffer.
type Estimator struct {
	model Model
	db    *DoubleBuffer

	inflight atomic.Bool
	closed   atomic.Bool
	wg       sync.WaitGroup

	completed atomic.Uint64
	dropped   atomic.Uint64

	submit  []byte
	scratch []float32

	onUpdate func()
	onError  func(error)
}

// NewEstimator creates an estimator publishing w x h depth maps.
func NewEstimator(model Model, w, h int) *Estimator {
	return &Estimator{model: model, db: NewDoubleBuffer(w, h)}
}

// OnUpdate registers a callback fired after each published estimate.
// Set it before the first submit.
func (e *Estimator) OnUpdate(fn func()) { e.onUpdate = fn }

// OnError registers a callback for failed inferences. Set it before
// the first submit.
func (e *Estimator) OnError(fn func(error)) { e.onError = fn }

// Size returns the published depth map dimensions.
func (e *Estimator) Size() (int, int) { return e.db.Size() }

// DepthAt returns the latest estimate: the flat mid-depth buffer
// until the first inference completes, the most recent result after.
func (e *Estimator) DepthAt(float64) []byte { return e.db.Front() }

// SubmitFrame schedules an inference unless one is already in flight.
// The frame is copied before return, so the caller may reuse its
// buffer. Reports whether the frame was accepted.
func (e *Estimator) SubmitFrame(rgba []byte, w, h int) bool {
	if !e.inflight.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		return false
	}
	if e.closed.Load() {
		e.inflight.Store(false)
		e.dropped.Add(1)
		return false
	}

	if cap(e.submit) < len(rgba) {
		e.submit = make([]byte, len(rgba))
	}
	buf := e.submit[:len(rgba)]
	copy(buf, rgba)

	e.wg.Add(1)
	go func() {
		defer e.inflight.Store(false)
		defer e.wg.Done()
		data, dw, dh, err := e.model.Estimate(context.Background(), buf, w, h)
		if err != nil {
			if e.onError != nil && !e.closed.Load() {
				e.onError(err)
			}
			return
		}
		e.complete(data, dw, dh)
	}()
	return true
}

// SubmitFrameAndWait runs one inference synchronously and publishes
// the result before returning. Static sources use it to have a real
// depth map in place of the flat initial buffer before first render.
func (e *Estimator) SubmitFrameAndWait(ctx context.Context, rgba []byte, w, h int) error {
	if e.closed.Load() {
		return ErrEstimatorClosed
	}
	if !e.inflight.CompareAndSwap(false, true) {
		return ErrEstimatorBusy
	}
	defer e.inflight.Store(false)

	data, dw, dh, err := e.model.Estimate(ctx, rgba, w, h)
	if err != nil {
		return err
	}
	e.complete(data, dw, dh)
	return nil
}

// Stats returns a snapshot of the inference counters.
func (e *Estimator) Stats() EstimatorStats {
	return EstimatorStats{Completed: e.completed.Load(), Dropped: e.dropped.Load()}
}

// Close waits for any in-flight inference and releases the model. A
// completion racing Close publishes nowhere and fires no callbacks.
func (e *Estimator) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.wg.Wait()
	return e.model.Close()
}

func (e *Estimator) complete(data []float32, dw, dh int) {
	if e.closed.Load() || dw <= 0 || dh <= 0 || len(data) < dw*dh {
		return
	}
	tw, th := e.db.Size()
	if cap(e.scratch) < tw*th {
		e.scratch = make([]float32, tw*th)
	}
	resized := e.scratch[:tw*th]
	plane.ResizeBilinearF32(resized, tw, th, data, dw, dh)
	plane.Normalize(e.db.Back(), resized)
	e.db.Publish()
	e.completed.Add(1)
	if e.onUpdate != nil {
		e.onUpdate()
	}
}
