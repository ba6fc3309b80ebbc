package shape

import (
	"math"
	"strings"
	"testing"
)

func TestParsePathBasicCommands(t *testing.T) {
	p, err := ParsePath("M 1 2 L 3 4 Z")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	elems := p.Elements()
	if len(elems) != 3 {
		t.Fatalf("element count = %v, want 3", len(elems))
	}
	if m, ok := elems[0].(MoveTo); !ok || m.Point != Pt(1, 2) {
		t.Errorf("elems[0] = %+v, want MoveTo(1, 2)", elems[0])
	}
	if l, ok := elems[1].(LineTo); !ok || l.Point != Pt(3, 4) {
		t.Errorf("elems[1] = %+v, want LineTo(3, 4)", elems[1])
	}
	if _, ok := elems[2].(Close); !ok {
		t.Errorf("elems[2] = %+v, want Close", elems[2])
	}
}

func TestParsePathRelativeCommands(t *testing.T) {
	p, err := ParsePath("m 1 1 l 2 0 l 0 2 z")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	elems := p.Elements()
	if l, ok := elems[1].(LineTo); !ok || l.Point != Pt(3, 1) {
		t.Errorf("elems[1] = %+v, want LineTo(3, 1)", elems[1])
	}
	if l, ok := elems[2].(LineTo); !ok || l.Point != Pt(3, 3) {
		t.Errorf("elems[2] = %+v, want LineTo(3, 3)", elems[2])
	}
}

func TestParsePathImplicitRepeat(t *testing.T) {
	// Coordinates after the M pair continue as implicit lineto.
	p, err := ParsePath("M 0 0 10 0 10 10")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	elems := p.Elements()
	if len(elems) != 3 {
		t.Fatalf("element count = %v, want 3", len(elems))
	}
	if _, ok := elems[1].(LineTo); !ok {
		t.Errorf("elems[1] = %+v, want LineTo", elems[1])
	}
}

func TestParsePathHorizontalVertical(t *testing.T) {
	p, err := ParsePath("M 1 2 H 5 V 7 h -2 v -3")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	elems := p.Elements()
	wants := []Point{{5, 2}, {5, 7}, {3, 7}, {3, 4}}
	for i, want := range wants {
		l, ok := elems[i+1].(LineTo)
		if !ok || l.Point != want {
			t.Errorf("elems[%d] = %+v, want LineTo%v", i+1, elems[i+1], want)
		}
	}
}

func TestParsePathSmoothQuadReflection(t *testing.T) {
	p, err := ParsePath("M 0 0 Q 1 1 2 0 T 4 0")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	elems := p.Elements()
	q, ok := elems[2].(QuadTo)
	if !ok {
		t.Fatalf("elems[2] = %+v, want QuadTo", elems[2])
	}
	// The control point reflects (1, 1) around (2, 0).
	if q.Control != Pt(3, -1) {
		t.Errorf("reflected control = %v, want (3, -1)", q.Control)
	}
	if q.Point != Pt(4, 0) {
		t.Errorf("endpoint = %v, want (4, 0)", q.Point)
	}
}

func TestParsePathSmoothCubicReflection(t *testing.T) {
	p, err := ParsePath("M 0 0 C 0 1 1 1 1 0 S 2 -1 2 0")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	elems := p.Elements()
	c, ok := elems[2].(CubicTo)
	if !ok {
		t.Fatalf("elems[2] = %+v, want CubicTo", elems[2])
	}
	// First control reflects (1, 1) around (1, 0).
	if c.Control1 != Pt(1, -1) {
		t.Errorf("reflected control = %v, want (1, -1)", c.Control1)
	}
}

func TestParsePathSmoothWithoutPriorCurve(t *testing.T) {
	// With no previous curve the reflected control collapses to the
	// current point.
	p, err := ParsePath("M 1 1 T 3 3")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	q, ok := p.Elements()[1].(QuadTo)
	if !ok {
		t.Fatalf("elems[1] = %+v, want QuadTo", p.Elements()[1])
	}
	if q.Control != Pt(1, 1) {
		t.Errorf("control = %v, want (1, 1)", q.Control)
	}
}

func TestParsePathArcEndpoint(t *testing.T) {
	p, err := ParsePath("M 0 0 A 1 1 0 0 1 2 0")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}

	// A semicircle of radius 1 around (1, 0): two cubic segments
	// ending exactly at (2, 0), every flattened point one radius from
	// the center.
	var cubics int
	for _, e := range p.Elements() {
		if _, ok := e.(CubicTo); ok {
			cubics++
		}
	}
	if cubics != 2 {
		t.Errorf("cubic segments = %v, want 2", cubics)
	}

	contoursEnd := p.current
	if contoursEnd.Distance(Pt(2, 0)) > 1e-9 {
		t.Errorf("endpoint = %v, want (2, 0)", contoursEnd)
	}

	pts := Contour{}
	for _, e := range p.Elements() {
		switch el := e.(type) {
		case MoveTo:
			pts = append(pts, el.Point)
		case CubicTo:
			flattenCubicRec(pts[len(pts)-1], el.Control1, el.Control2, el.Point, 0.001, &pts, 0)
		}
	}
	center := Pt(1, 0)
	for _, pt := range pts {
		if d := pt.Distance(center); math.Abs(d-1) > 0.01 {
			t.Fatalf("arc point %v at distance %v from center, want 1", pt, d)
		}
	}
}

func TestParsePathArcDegenerateRadius(t *testing.T) {
	p, err := ParsePath("M 0 0 A 0 5 0 0 1 4 4")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	if _, ok := p.Elements()[1].(LineTo); !ok {
		t.Errorf("zero-radius arc should degrade to a line, got %+v", p.Elements()[1])
	}
}

func TestParsePathArcFlagsRunTogether(t *testing.T) {
	// "11" parses as two flags; the coordinates follow immediately.
	if _, err := ParsePath("M 0 0 a 1 1 0 11 2 0"); err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
}

func TestParsePathScientificNotation(t *testing.T) {
	p, err := ParsePath("M 1e1 -2.5e-1 L 3E2 4")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	m := p.Elements()[0].(MoveTo)
	if m.Point != Pt(10, -0.25) {
		t.Errorf("MoveTo = %v, want (10, -0.25)", m.Point)
	}
	l := p.Elements()[1].(LineTo)
	if l.Point != Pt(300, 4) {
		t.Errorf("LineTo = %v, want (300, 4)", l.Point)
	}
}

func TestParsePathErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"junk command", "M 0 0 X 1 1"},
		{"missing number", "M 0"},
		{"draw before moveto", "L 1 1"},
		{"bad arc flag", "M 0 0 A 1 1 0 5 0 2 0"},
		{"bare junk", "@#!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePath(tt.data)
			if err == nil {
				t.Fatalf("ParsePath(%q) succeeded, want error", tt.data)
			}
			if !strings.Contains(err.Error(), "shape:") {
				t.Errorf("error %q lacks package prefix", err)
			}
		})
	}
}

func TestPathBuilders(t *testing.T) {
	p := NewPath()
	p.Rectangle(0, 0, 2, 1)
	if len(p.Elements()) != 5 {
		t.Errorf("rectangle elements = %v, want 5", len(p.Elements()))
	}

	c := NewPath()
	c.Circle(0, 0, 1)
	var cubics int
	for _, e := range c.Elements() {
		if _, ok := e.(CubicTo); ok {
			cubics++
		}
	}
	if cubics != 4 {
		t.Errorf("circle cubics = %v, want 4", cubics)
	}
}
