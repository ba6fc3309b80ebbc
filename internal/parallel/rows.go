package parallel

import "sync"

// sharedPool is created on first use and reused by every row-parallel
// pass in the process. Image filters run per frame, so paying the
// worker startup cost once matters more than pool isolation.
var (
	sharedOnce sync.Once
	shared     *WorkerPool
)

// Shared returns the process-wide worker pool, creating it on first use.
func Shared() *WorkerPool {
	sharedOnce.Do(func() {
		shared = NewWorkerPool(0)
	})
	return shared
}

// Rows splits [0, height) into one band per worker and runs fn for each
// band on the shared pool. fn receives the half-open row range
// [y0, y1). Heights smaller than the worker count run serially.
func Rows(height int, fn func(y0, y1 int)) {
	RowsOn(Shared(), height, fn)
}

// RowsOn is Rows against an explicit pool. A nil pool runs serially.
func RowsOn(p *WorkerPool, height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	if p == nil || !p.IsRunning() || height < p.Workers()*2 {
		fn(0, height)
		return
	}

	bands := p.Workers()
	bandH := (height + bands - 1) / bands

	work := make([]func(), 0, bands)
	for y0 := 0; y0 < height; y0 += bandH {
		y1 := y0 + bandH
		if y1 > height {
			y1 = height
		}
		start, end := y0, y1
		work = append(work, func() { fn(start, end) })
	}
	p.ExecuteAll(work)
}
