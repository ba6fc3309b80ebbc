package depth

import "sync/atomic"

// DoubleBuffer hands depth frames from the estimation path to the
// renderer. Front is readable at any time and always holds a fully
// written frame; Back is the write target of the in-flight inference.
// The initial front is flat mid-depth so rendering can start before
// the first inference lands.
//
// One writer fills Back and calls Publish; any goroutine may call
// Front. A frame returned by Front stays intact until the writer
// publishes twice more, which at inference cadence is far longer than
// the display tick that consumes it.
type DoubleBuffer struct {
	w, h  int
	front atomic.Pointer[[]byte]
	back  []byte
}

// NewDoubleBuffer allocates both buffers for w x h maps.
func NewDoubleBuffer(w, h int) *DoubleBuffer {
	front := make([]byte, w*h)
	for i := range front {
		front[i] = 128
	}
	db := &DoubleBuffer{w: w, h: h, back: make([]byte, w*h)}
	db.front.Store(&front)
	return db
}

// Size returns the buffer dimensions.
func (db *DoubleBuffer) Size() (int, int) { return db.w, db.h }

// Front returns the most recently published frame.
func (db *DoubleBuffer) Front() []byte { return *db.front.Load() }

// Back returns the write target for the next estimate. Only the
// estimation completion path may touch it.
func (db *DoubleBuffer) Back() []byte { return db.back }

// Publish swaps the freshly written back buffer to the front.
func (db *DoubleBuffer) Publish() {
	b := db.back
	db.back = *db.front.Swap(&b)
}
