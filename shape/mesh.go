package shape

import "errors"

// ErrEmptyShape is returned when an outline produces no triangles:
// empty path data, contours below three vertices, or holes without
// any enclosing solid.
var ErrEmptyShape = errors.New("shape: outline produces no triangles")

// Mesh is a triangulated outline, normalized to the [-1, 1] square
// with aspect ratio preserved and Y up. Vertices are interleaved x,y
// pairs. A Mesh is immutable after Build and safe to share.
//
// Edges keeps the flattened contour polylines for rim and bevel
// rendering: contour i spans the vertex pairs
// [ContourOffsets[i], ContourOffsets[i+1]) and repeats its first
// vertex at the end, so consumers walk closed loops without wrapping.
// ContourHole[i] tags contour i as a hole boundary.
type Mesh struct {
	Vertices       []float32
	Indices        []uint32
	Edges          []float32
	ContourOffsets []int
	ContourHole    []bool
	Bounds         Rect
	Aspect         float64
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 2 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// ContourCount returns the number of retained edge polylines.
func (m *Mesh) ContourCount() int {
	if len(m.ContourOffsets) < 2 {
		return 0
	}
	return len(m.ContourOffsets) - 1
}

// Contour returns the closed polyline of contour i as interleaved
// x,y pairs, aliasing the mesh's edge buffer.
func (m *Mesh) Contour(i int) []float32 {
	return m.Edges[m.ContourOffsets[i]*2 : m.ContourOffsets[i+1]*2]
}

// Area returns the summed area of all triangles in normalized units.
func (m *Mesh) Area() float64 {
	var sum float64
	for t := 0; t+2 < len(m.Indices); t += 3 {
		ax := float64(m.Vertices[m.Indices[t]*2])
		ay := float64(m.Vertices[m.Indices[t]*2+1])
		bx := float64(m.Vertices[m.Indices[t+1]*2])
		by := float64(m.Vertices[m.Indices[t+1]*2+1])
		cx := float64(m.Vertices[m.Indices[t+2]*2])
		cy := float64(m.Vertices[m.Indices[t+2]*2+1])
		a := (bx-ax)*(cy-ay) - (cx-ax)*(by-ay)
		if a < 0 {
			a = -a
		}
		sum += a / 2
	}
	return sum
}

// FromPathData parses SVG path data and triangulates it with the
// default flatness tolerance.
func FromPathData(data string) (*Mesh, error) {
	p, err := ParsePath(data)
	if err != nil {
		return nil, err
	}
	return FromPath(p, DefaultTolerance)
}

// FromPath triangulates a path. The tolerance bounds the distance
// between curves and their polyline approximation in the path's own
// units; zero or negative selects DefaultTolerance.
func FromPath(p *Path, tolerance float64) (*Mesh, error) {
	contours, aspect := normalizeContours(Flatten(p, tolerance))
	if len(contours) == 0 {
		return nil, ErrEmptyShape
	}
	return buildMesh(contours, aspect)
}

// buildMesh classifies normalized contours into solids and holes,
// groups each hole with its innermost enclosing solid, and ear-clips
// every group. Edge polylines are retained per group so a hole whose
// enclosing solid failed to triangulate does not render a rim either.
func buildMesh(contours []Contour, aspect float64) (*Mesh, error) {
	cl := classifyContours(contours)
	if len(cl.solids) == 0 {
		return nil, ErrEmptyShape
	}
	groups := groupHoles(cl.solids, cl.holes)

	mesh := &Mesh{Aspect: aspect, ContourOffsets: []int{0}}
	for _, group := range groups {
		verts, tris := triangulate(group[0], group[1:])
		if len(tris) == 0 {
			continue
		}
		base := uint32(len(mesh.Vertices) / 2)
		for _, v := range verts {
			mesh.Vertices = append(mesh.Vertices, float32(v.X), float32(v.Y))
		}
		for _, idx := range tris {
			mesh.Indices = append(mesh.Indices, base+idx)
		}
		for gi, c := range group {
			mesh.appendContour(c, gi > 0)
		}
	}
	if len(mesh.Indices) == 0 {
		return nil, ErrEmptyShape
	}

	mesh.Bounds = meshBounds(mesh.Vertices)
	return mesh, nil
}

// appendContour adds one closed polyline to the edge buffer.
func (m *Mesh) appendContour(c Contour, hole bool) {
	for _, p := range c {
		m.Edges = append(m.Edges, float32(p.X), float32(p.Y))
	}
	m.Edges = append(m.Edges, float32(c[0].X), float32(c[0].Y))
	m.ContourOffsets = append(m.ContourOffsets, len(m.Edges)/2)
	m.ContourHole = append(m.ContourHole, hole)
}

func meshBounds(verts []float32) Rect {
	if len(verts) < 2 {
		return Rect{}
	}
	r := Rect{
		MinX: float64(verts[0]), MinY: float64(verts[1]),
		MaxX: float64(verts[0]), MaxY: float64(verts[1]),
	}
	for i := 2; i+1 < len(verts); i += 2 {
		x, y := float64(verts[i]), float64(verts[i+1])
		if x < r.MinX {
			r.MinX = x
		}
		if y < r.MinY {
			r.MinY = y
		}
		if x > r.MaxX {
			r.MaxX = x
		}
		if y > r.MaxY {
			r.MaxY = y
		}
	}
	return r
}
