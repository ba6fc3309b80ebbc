package shape

import "math"

// Contour is a closed polygon; the edge from the last vertex back to
// the first is implicit.
type Contour []Point

// Rect is an axis-aligned bounding rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the rectangle width.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the rectangle height.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// SignedArea returns the polygon area with the shoelace formula.
// Positive means counterclockwise in a Y-up coordinate system.
func (c Contour) SignedArea() float64 {
	var sum float64
	n := len(c)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return sum / 2
}

// Area returns the absolute polygon area.
func (c Contour) Area() float64 {
	return math.Abs(c.SignedArea())
}

// Bounds returns the bounding rectangle of the contour.
func (c Contour) Bounds() Rect {
	if len(c) == 0 {
		return Rect{}
	}
	r := Rect{MinX: c[0].X, MinY: c[0].Y, MaxX: c[0].X, MaxY: c[0].Y}
	for _, p := range c[1:] {
		if p.X < r.MinX {
			r.MinX = p.X
		}
		if p.Y < r.MinY {
			r.MinY = p.Y
		}
		if p.X > r.MaxX {
			r.MaxX = p.X
		}
		if p.Y > r.MaxY {
			r.MaxY = p.Y
		}
	}
	return r
}

// ContainsPoint reports whether p is inside the contour using the
// even-odd crossing rule. The result does not depend on the winding
// direction of the contour, so authoring tools may emit either.
func (c Contour) ContainsPoint(p Point) bool {
	inside := false
	n := len(c)
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := c[i], c[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xCross := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// classified splits contours into solids and holes by nesting parity:
// a contour contained in an even number of other contours is a solid,
// in an odd number a hole. Parity rather than winding keeps hand-
// written and tool-generated paths equivalent.
type classified struct {
	solids []Contour
	holes  []Contour
}

func classifyContours(contours []Contour) classified {
	var out classified
	for i, c := range contours {
		depth := 0
		// Test an actual vertex of c against every other contour: the
		// vertex average of a crescent can fall outside the shape.
		probe := c[0]
		for j, other := range contours {
			if i == j {
				continue
			}
			if other.ContainsPoint(probe) {
				depth++
			}
		}
		if depth%2 == 0 {
			out.solids = append(out.solids, c)
		} else {
			out.holes = append(out.holes, c)
		}
	}
	return out
}

// groupHoles assigns each hole to its innermost enclosing solid: the
// containing solid with the smallest area. Holes with no enclosing
// solid are dropped.
func groupHoles(solids, holes []Contour) [][]Contour {
	groups := make([][]Contour, len(solids))
	for i, s := range solids {
		groups[i] = []Contour{s}
	}

	for _, h := range holes {
		probe := h[0]
		best := -1
		bestArea := math.Inf(1)
		for i, s := range solids {
			if !s.ContainsPoint(probe) {
				continue
			}
			if a := s.Area(); a < bestArea {
				bestArea = a
				best = i
			}
		}
		if best >= 0 {
			groups[best] = append(groups[best], h)
		}
	}
	return groups
}

// normalizeContours maps all contours into the [-1, 1] square,
// preserving aspect ratio: the longer side of the joint bounding box
// spans exactly [-1, 1] and the shorter side is centered. Y is
// flipped so the output is Y-up regardless of the input convention.
// The second return is the width/height ratio of the joint bounds
// before normalization.
func normalizeContours(contours []Contour) ([]Contour, float64) {
	if len(contours) == 0 {
		return nil, 0
	}

	bounds := contours[0].Bounds()
	for _, c := range contours[1:] {
		b := c.Bounds()
		if b.MinX < bounds.MinX {
			bounds.MinX = b.MinX
		}
		if b.MinY < bounds.MinY {
			bounds.MinY = b.MinY
		}
		if b.MaxX > bounds.MaxX {
			bounds.MaxX = b.MaxX
		}
		if b.MaxY > bounds.MaxY {
			bounds.MaxY = b.MaxY
		}
	}

	maxDim := math.Max(bounds.Width(), bounds.Height())
	if maxDim <= 0 {
		return nil, 0
	}
	aspect := 1.0
	if bounds.Height() > 0 {
		aspect = bounds.Width() / bounds.Height()
	}
	scale := 2 / maxDim
	cx := (bounds.MinX + bounds.MaxX) / 2
	cy := (bounds.MinY + bounds.MaxY) / 2

	out := make([]Contour, len(contours))
	for i, c := range contours {
		nc := make(Contour, len(c))
		for j, p := range c {
			nc[j] = Pt((p.X-cx)*scale, -(p.Y-cy)*scale)
		}
		out[i] = nc
	}
	return out, aspect
}
