// Package shape turns outline descriptions into triangulated meshes.
//
// The portal effect renders video through a logo- or text-shaped
// window. This package supplies the geometry side of that: it parses
// path data or shapes a text string into outlines, flattens curves to
// polylines within a flatness tolerance, classifies nested contours
// into solids and holes, and ear-clips each solid with its holes into
// an indexed triangle mesh normalized to the [-1, 1] square.
//
// Meshes are immutable once built and safe to share between backends.
package shape
