package shape

import "math"

// DefaultTolerance is the maximum distance between a curve and its
// polyline approximation, in the path's own units.
const DefaultTolerance = 0.1

// Flatten converts a path into closed polygonal contours, one per
// subpath. Quadratic curves are raised to cubics first so a single
// flatness test drives all subdivision. The final point of a contour
// is not repeated; consumers treat contours as implicitly closed.
//
// Contours with fewer than three vertices are dropped.
func Flatten(p *Path, tolerance float64) []Contour {
	if p == nil || p.Empty() {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var contours []Contour
	var cur Contour
	var pen Point

	flush := func() {
		if c := finishContour(cur); c != nil {
			contours = append(contours, c)
		}
		cur = nil
	}

	for _, elem := range p.Elements() {
		switch e := elem.(type) {
		case MoveTo:
			flush()
			pen = e.Point
			cur = append(cur, pen)

		case LineTo:
			cur = append(cur, e.Point)
			pen = e.Point

		case QuadTo:
			c1, c2 := raiseQuad(pen, e.Control, e.Point)
			flattenCubicRec(pen, c1, c2, e.Point, tolerance, &cur, 0)
			pen = e.Point

		case CubicTo:
			flattenCubicRec(pen, e.Control1, e.Control2, e.Point, tolerance, &cur, 0)
			pen = e.Point

		case Close:
			flush()
			// A new subpath after Close without MoveTo starts at the
			// subpath origin, which MoveTo handling will reset anyway.
		}
	}
	flush()
	return contours
}

// finishContour strips a duplicated closing point and rejects
// degenerate contours.
func finishContour(c Contour) Contour {
	if len(c) > 1 && c[0].Distance(c[len(c)-1]) < 1e-12 {
		c = c[:len(c)-1]
	}
	if len(c) < 3 {
		return nil
	}
	return c
}

// raiseQuad converts a quadratic Bezier to the equivalent cubic:
// the cubic control points sit two thirds of the way from each
// endpoint to the quadratic control point.
func raiseQuad(p0, ctrl, p1 Point) (c1, c2 Point) {
	c1 = p0.Lerp(ctrl, 2.0/3.0)
	c2 = p1.Lerp(ctrl, 2.0/3.0)
	return c1, c2
}

const maxFlattenDepth = 24

// flattenCubicRec recursively subdivides a cubic Bezier until both
// control points sit within tolerance of the chord, then emits the
// endpoint.
func flattenCubicRec(p0, p1, p2, p3 Point, tolerance float64, out *Contour, depth int) {
	d1 := distanceToLine(p1, p0, p3)
	d2 := distanceToLine(p2, p0, p3)

	if math.Max(d1, d2) < tolerance || depth >= maxFlattenDepth {
		*out = append(*out, p3)
		return
	}

	// de Casteljau split at t = 0.5.
	q0 := p0.Lerp(p1, 0.5)
	q1 := p1.Lerp(p2, 0.5)
	q2 := p2.Lerp(p3, 0.5)
	r0 := q0.Lerp(q1, 0.5)
	r1 := q1.Lerp(q2, 0.5)
	s := r0.Lerp(r1, 0.5)

	flattenCubicRec(p0, q0, r0, s, tolerance, out, depth+1)
	flattenCubicRec(s, r1, q2, p3, tolerance, out, depth+1)
}

// distanceToLine is the distance from p to the segment (a, b).
func distanceToLine(p, a, b Point) float64 {
	ab := b.Sub(a)
	abLen := ab.Length()
	if abLen < 1e-10 {
		return p.Distance(a)
	}

	ap := p.Sub(a)
	t := ap.Dot(ab) / (abLen * abLen)
	if t < 0 {
		return p.Distance(a)
	}
	if t > 1 {
		return p.Distance(b)
	}
	return p.Distance(a.Add(ab.Mul(t)))
}
