// Package source provides the media inputs an effect renders: still
// images, frame-sequence video, live camera capture, and a synthetic
// test pattern.
//
// All sources deliver tightly packed RGBA frames either by push (a
// frame callback) or by pull (ReadFrame). Live sources produce frames
// on their own timeline; static sources present a single frame. The
// renderer holds a source only between start and stop; creation and
// Close belong to the host.
package source
