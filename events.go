package depthfx

import (
	"github.com/gogpu/depthfx/depth"
)

// EventKind identifies a lifecycle notification.
type EventKind int

const (
	// EventReady fires once when initialization completes, carrying
	// the source dimensions, duration and derived effect defaults.
	EventReady EventKind = iota
	// EventPlay and EventPause report timeline control on seekable
	// sources.
	EventPlay
	EventPause
	// EventLoop fires when a looping source wraps to its first frame.
	EventLoop
	// EventFrame fires once per presented source frame.
	EventFrame
	// EventFocusChange reports focal depth movement during a rack;
	// EventFocusSettled fires once when the spring comes to rest.
	EventFocusChange
	EventFocusSettled
	// EventDownloadProgress reports model download progress during
	// initialization.
	EventDownloadProgress
	// EventError carries a frame-loop or device error. Device loss is
	// terminal: the renderer halts and must be reconstructed.
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventLoop:
		return "loop"
	case EventFrame:
		return "frame"
	case EventFocusChange:
		return "focus-change"
	case EventFocusSettled:
		return "focus-settled"
	case EventDownloadProgress:
		return "download-progress"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one notification from the renderer to its host. Only the
// fields of the reporting kind are populated.
//
// Events are delivered on a buffered channel; a host that stops
// draining loses the oldest notifications rather than blocking the
// render loops.
type Event struct {
	Kind EventKind

	// EventReady.
	SourceW, SourceH int
	Duration         float64 // seconds, 0 for unbounded or static sources
	Derived          depth.DerivedParams

	// EventFrame, EventLoop.
	FrameIndex uint64
	SourceTime float64

	// EventFocusChange, EventFocusSettled.
	FocalDepth float64

	// EventDownloadProgress. BytesTotal is 0 when the server does not
	// report a length.
	BytesReceived int64
	BytesTotal    int64

	// EventError.
	Err error
}
