package shape

import (
	"fmt"
	"math"
	"strconv"
)

// Point represents a 2D point.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Lerp linearly interpolates between p and q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Mul returns p scaled by s.
func (p Point) Mul(s float64) Point { return Point{X: p.X * s, Y: p.Y * s} }

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Length returns the Euclidean length of p as a vector.
func (p Point) Length() float64 { return math.Sqrt(p.X*p.X + p.Y*p.Y) }

// Distance returns the distance between p and q.
func (p Point) Distance(q Point) float64 { return p.Sub(q).Length() }

// PathElement represents a single element in a path.
type PathElement interface {
	isPathElement()
}

// MoveTo starts a new subpath at a point.
type MoveTo struct {
	Point Point
}

func (MoveTo) isPathElement() {}

// LineTo draws a line to a point.
type LineTo struct {
	Point Point
}

func (LineTo) isPathElement() {}

// QuadTo draws a quadratic Bezier curve.
type QuadTo struct {
	Control Point
	Point   Point
}

func (QuadTo) isPathElement() {}

// CubicTo draws a cubic Bezier curve.
type CubicTo struct {
	Control1 Point
	Control2 Point
	Point    Point
}

func (CubicTo) isPathElement() {}

// Close closes the current subpath.
type Close struct{}

func (Close) isPathElement() {}

// Path is an outline made of subpaths of lines and Bezier curves.
type Path struct {
	elements []PathElement
	start    Point
	current  Point
}

// NewPath creates a new empty path.
func NewPath() *Path {
	return &Path{elements: make([]PathElement, 0, 16)}
}

// MoveTo starts a new subpath at (x, y).
func (p *Path) MoveTo(x, y float64) {
	pt := Pt(x, y)
	p.elements = append(p.elements, MoveTo{Point: pt})
	p.start = pt
	p.current = pt
}

// LineTo draws a line to (x, y).
func (p *Path) LineTo(x, y float64) {
	pt := Pt(x, y)
	p.elements = append(p.elements, LineTo{Point: pt})
	p.current = pt
}

// QuadraticTo draws a quadratic Bezier curve.
func (p *Path) QuadraticTo(cx, cy, x, y float64) {
	p.elements = append(p.elements, QuadTo{Control: Pt(cx, cy), Point: Pt(x, y)})
	p.current = Pt(x, y)
}

// CubicTo draws a cubic Bezier curve.
func (p *Path) CubicTo(c1x, c1y, c2x, c2y, x, y float64) {
	p.elements = append(p.elements, CubicTo{
		Control1: Pt(c1x, c1y),
		Control2: Pt(c2x, c2y),
		Point:    Pt(x, y),
	})
	p.current = Pt(x, y)
}

// Close closes the current subpath.
func (p *Path) Close() {
	p.elements = append(p.elements, Close{})
	p.current = p.start
}

// Elements returns the path elements.
func (p *Path) Elements() []PathElement {
	return p.elements
}

// Empty reports whether the path has no elements.
func (p *Path) Empty() bool {
	return len(p.elements) == 0
}

// Rectangle adds an axis-aligned rectangle subpath.
func (p *Path) Rectangle(x, y, w, h float64) {
	p.MoveTo(x, y)
	p.LineTo(x+w, y)
	p.LineTo(x+w, y+h)
	p.LineTo(x, y+h)
	p.Close()
}

// Circle adds a circle subpath using cubic Bezier curves.
func (p *Path) Circle(cx, cy, r float64) {
	// Magic constant for circle approximation with cubic Beziers
	const k = 0.5522847498307936 // 4/3 * (sqrt(2) - 1)
	offset := r * k

	p.MoveTo(cx+r, cy)
	p.CubicTo(cx+r, cy+offset, cx+offset, cy+r, cx, cy+r)
	p.CubicTo(cx-offset, cy+r, cx-r, cy+offset, cx-r, cy)
	p.CubicTo(cx-r, cy-offset, cx-offset, cy-r, cx, cy-r)
	p.CubicTo(cx+offset, cy-r, cx+r, cy-offset, cx+r, cy)
	p.Close()
}

// Ellipse adds an ellipse subpath.
func (p *Path) Ellipse(cx, cy, rx, ry float64) {
	const k = 0.5522847498307936
	ox := rx * k
	oy := ry * k

	p.MoveTo(cx+rx, cy)
	p.CubicTo(cx+rx, cy+oy, cx+ox, cy+ry, cx, cy+ry)
	p.CubicTo(cx-ox, cy+ry, cx-rx, cy+oy, cx-rx, cy)
	p.CubicTo(cx-rx, cy-oy, cx-ox, cy-ry, cx, cy-ry)
	p.CubicTo(cx+ox, cy-ry, cx+rx, cy-oy, cx+rx, cy)
	p.Close()
}

// RoundedRectangle adds a rectangle subpath with rounded corners.
func (p *Path) RoundedRectangle(x, y, w, h, r float64) {
	maxR := math.Min(w, h) / 2
	if r > maxR {
		r = maxR
	}
	if r <= 0 {
		p.Rectangle(x, y, w, h)
		return
	}

	const k = 0.5522847498307936
	o := r * k

	p.MoveTo(x+r, y)
	p.LineTo(x+w-r, y)
	p.CubicTo(x+w-r+o, y, x+w, y+r-o, x+w, y+r)
	p.LineTo(x+w, y+h-r)
	p.CubicTo(x+w, y+h-r+o, x+w-r+o, y+h, x+w-r, y+h)
	p.LineTo(x+r, y+h)
	p.CubicTo(x+r-o, y+h, x, y+h-r+o, x, y+h-r)
	p.LineTo(x, y+r)
	p.CubicTo(x, y+r-o, x+r-o, y, x+r, y)
	p.Close()
}

// ParsePath parses SVG path data ("M 0 0 L 10 0 ... Z") into a Path.
// The full command set is supported: moveto, lineto, horizontal and
// vertical lineto, quadratic and cubic curves with their smooth
// variants, elliptical arcs and closepath, in absolute and relative
// forms. Elliptical arcs are converted to cubic segments on the fly.
func ParsePath(data string) (*Path, error) {
	p := &pathParser{data: data, path: NewPath()}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.path, nil
}

type pathParser struct {
	data string
	pos  int
	path *Path

	// lastCmd is the previous command letter for implicit repeats and
	// smooth control-point reflection.
	lastCmd byte

	// lastCtrl is the last control point of the previous curve, used
	// by the S and T smooth commands.
	lastCtrl Point

	started bool
}

func (p *pathParser) run() error {
	for {
		p.skipSeparators()
		if p.pos >= len(p.data) {
			return nil
		}

		c := p.data[p.pos]
		if isCommand(c) {
			p.pos++
			p.lastCmd = c
		} else if p.lastCmd == 0 {
			return p.errorf("expected command, got %q", c)
		} else {
			// Implicit repeat. After M the implicit command is L.
			switch p.lastCmd {
			case 'M':
				p.lastCmd = 'L'
			case 'm':
				p.lastCmd = 'l'
			}
		}

		if err := p.command(p.lastCmd); err != nil {
			return err
		}
	}
}

func (p *pathParser) command(cmd byte) error {
	rel := cmd >= 'a'
	cur := p.path.current

	rx := func(x float64) float64 {
		if rel {
			return cur.X + x
		}
		return x
	}
	ry := func(y float64) float64 {
		if rel {
			return cur.Y + y
		}
		return y
	}

	switch cmd {
	case 'M', 'm':
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		p.path.MoveTo(rx(x), ry(y))
		p.started = true
		p.lastCtrl = p.path.current

	case 'Z', 'z':
		if p.started {
			p.path.Close()
		}
		p.lastCtrl = p.path.current

	case 'L', 'l':
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		p.path.LineTo(rx(x), ry(y))
		p.lastCtrl = p.path.current

	case 'H', 'h':
		x, err := p.number()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		p.path.LineTo(rx(x), cur.Y)
		p.lastCtrl = p.path.current

	case 'V', 'v':
		y, err := p.number()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		p.path.LineTo(cur.X, ry(y))
		p.lastCtrl = p.path.current

	case 'Q', 'q':
		cx, cy, err := p.coordPair()
		if err != nil {
			return err
		}
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		p.path.QuadraticTo(rx(cx), ry(cy), rx(x), ry(y))
		p.lastCtrl = Pt(rx(cx), ry(cy))

	case 'T', 't':
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		ctrl := p.reflectedControl(cur, 'Q')
		p.path.QuadraticTo(ctrl.X, ctrl.Y, rx(x), ry(y))
		p.lastCtrl = ctrl

	case 'C', 'c':
		c1x, c1y, err := p.coordPair()
		if err != nil {
			return err
		}
		c2x, c2y, err := p.coordPair()
		if err != nil {
			return err
		}
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		p.path.CubicTo(rx(c1x), ry(c1y), rx(c2x), ry(c2y), rx(x), ry(y))
		p.lastCtrl = Pt(rx(c2x), ry(c2y))

	case 'S', 's':
		c2x, c2y, err := p.coordPair()
		if err != nil {
			return err
		}
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		c1 := p.reflectedControl(cur, 'C')
		p.path.CubicTo(c1.X, c1.Y, rx(c2x), ry(c2y), rx(x), ry(y))
		p.lastCtrl = Pt(rx(c2x), ry(c2y))

	case 'A', 'a':
		radX, err := p.number()
		if err != nil {
			return err
		}
		radY, err := p.number()
		if err != nil {
			return err
		}
		rot, err := p.number()
		if err != nil {
			return err
		}
		largeArc, err := p.flag()
		if err != nil {
			return err
		}
		sweep, err := p.flag()
		if err != nil {
			return err
		}
		x, y, err := p.coordPair()
		if err != nil {
			return err
		}
		if err := p.requireStart(); err != nil {
			return err
		}
		arcToCubics(p.path, cur, radX, radY, rot, largeArc, sweep, Pt(rx(x), ry(y)))
		p.lastCtrl = p.path.current

	default:
		return p.errorf("unknown command %q", cmd)
	}
	return nil
}

// reflectedControl returns the control point for smooth curve
// commands: the previous control point mirrored around the current
// point, or the current point when the previous command was not a
// curve of the matching kind.
func (p *pathParser) reflectedControl(cur Point, kind byte) Point {
	prev := upper(p.lastCmdForReflection())
	match := prev == kind || (kind == 'C' && prev == 'S') || (kind == 'Q' && prev == 'T')
	if !match {
		return cur
	}
	return Pt(2*cur.X-p.lastCtrl.X, 2*cur.Y-p.lastCtrl.Y)
}

// lastCmdForReflection is the command that produced lastCtrl. The
// parser overwrites lastCmd before dispatching, so the reflection
// decision uses the element stream instead.
func (p *pathParser) lastCmdForReflection() byte {
	if len(p.path.elements) == 0 {
		return 0
	}
	switch p.path.elements[len(p.path.elements)-1].(type) {
	case QuadTo:
		return 'Q'
	case CubicTo:
		return 'C'
	}
	return 0
}

func (p *pathParser) requireStart() error {
	if !p.started {
		return p.errorf("drawing command before moveto")
	}
	return nil
}

func (p *pathParser) coordPair() (x, y float64, err error) {
	x, err = p.number()
	if err != nil {
		return 0, 0, err
	}
	y, err = p.number()
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// number scans one floating point number, permitting leading
// separators, signs and exponents.
func (p *pathParser) number() (float64, error) {
	p.skipSeparators()
	start := p.pos

	if p.pos < len(p.data) && (p.data[p.pos] == '+' || p.data[p.pos] == '-') {
		p.pos++
	}
	digits := false
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
		digits = true
	}
	if p.pos < len(p.data) && p.data[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
			p.pos++
			digits = true
		}
	}
	if !digits {
		return 0, p.errorf("expected number")
	}
	if p.pos < len(p.data) && (p.data[p.pos] == 'e' || p.data[p.pos] == 'E') {
		mark := p.pos
		p.pos++
		if p.pos < len(p.data) && (p.data[p.pos] == '+' || p.data[p.pos] == '-') {
			p.pos++
		}
		expDigits := false
		for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
			p.pos++
			expDigits = true
		}
		if !expDigits {
			p.pos = mark
		}
	}

	v, err := strconv.ParseFloat(p.data[start:p.pos], 64)
	if err != nil {
		return 0, p.errorf("bad number %q", p.data[start:p.pos])
	}
	return v, nil
}

// flag scans an arc flag, which the grammar allows to run together
// with the next number ("1 1" and "11" both mean two set flags).
func (p *pathParser) flag() (bool, error) {
	p.skipSeparators()
	if p.pos >= len(p.data) {
		return false, p.errorf("expected arc flag")
	}
	switch p.data[p.pos] {
	case '0':
		p.pos++
		return false, nil
	case '1':
		p.pos++
		return true, nil
	}
	return false, p.errorf("arc flag must be 0 or 1, got %q", p.data[p.pos])
}

func (p *pathParser) skipSeparators() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r', ',':
			p.pos++
		default:
			return
		}
	}
}

func (p *pathParser) errorf(format string, args ...any) error {
	return fmt.Errorf("shape: path data at byte %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func isCommand(c byte) bool {
	switch upper(c) {
	case 'M', 'L', 'H', 'V', 'Q', 'T', 'C', 'S', 'A', 'Z':
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// arcToCubics appends an elliptical arc as cubic Bezier segments.
// The endpoint parameterization (radii, rotation, flags) is converted
// to a center and sweep, then each span of at most 90 degrees becomes
// one cubic.
func arcToCubics(path *Path, from Point, radX, radY, rotDeg float64, largeArc, sweep bool, to Point) {
	if from == to {
		return
	}
	radX, radY = math.Abs(radX), math.Abs(radY)
	if radX == 0 || radY == 0 {
		path.LineTo(to.X, to.Y)
		return
	}

	phi := rotDeg * math.Pi / 180
	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)

	// Rotate into the ellipse frame.
	dx := (from.X - to.X) / 2
	dy := (from.Y - to.Y) / 2
	x1p := cosPhi*dx + sinPhi*dy
	y1p := -sinPhi*dx + cosPhi*dy

	// Scale radii up when the endpoints cannot be connected.
	lambda := (x1p*x1p)/(radX*radX) + (y1p*y1p)/(radY*radY)
	if lambda > 1 {
		s := math.Sqrt(lambda)
		radX *= s
		radY *= s
	}

	// Center in the ellipse frame.
	num := radX*radX*radY*radY - radX*radX*y1p*y1p - radY*radY*x1p*x1p
	den := radX*radX*y1p*y1p + radY*radY*x1p*x1p
	ratio := num / den
	if ratio < 0 {
		ratio = 0
	}
	coef := math.Sqrt(ratio)
	if largeArc == sweep {
		coef = -coef
	}
	cxp := coef * radX * y1p / radY
	cyp := -coef * radY * x1p / radX

	// Center in user space.
	cx := cosPhi*cxp - sinPhi*cyp + (from.X+to.X)/2
	cy := sinPhi*cxp + cosPhi*cyp + (from.Y+to.Y)/2

	theta1 := math.Atan2((y1p-cyp)/radY, (x1p-cxp)/radX)
	theta2 := math.Atan2((-y1p-cyp)/radY, (-x1p-cxp)/radX)
	dTheta := theta2 - theta1
	if sweep && dTheta < 0 {
		dTheta += 2 * math.Pi
	} else if !sweep && dTheta > 0 {
		dTheta -= 2 * math.Pi
	}

	segments := int(math.Ceil(math.Abs(dTheta) / (math.Pi / 2)))
	if segments < 1 {
		segments = 1
	}
	step := dTheta / float64(segments)

	ellipsePoint := func(theta float64) Point {
		ex := radX * math.Cos(theta)
		ey := radY * math.Sin(theta)
		return Pt(cosPhi*ex-sinPhi*ey+cx, sinPhi*ex+cosPhi*ey+cy)
	}
	ellipseTangent := func(theta float64) Point {
		ex := -radX * math.Sin(theta)
		ey := radY * math.Cos(theta)
		return Pt(cosPhi*ex-sinPhi*ey, sinPhi*ex+cosPhi*ey)
	}

	for i := 0; i < segments; i++ {
		a1 := theta1 + float64(i)*step
		a2 := a1 + step

		alpha := math.Sin(a2-a1) * (math.Sqrt(4+3*math.Tan((a2-a1)/2)*math.Tan((a2-a1)/2)) - 1) / 3

		p1 := ellipsePoint(a1)
		p2 := ellipsePoint(a2)
		t1 := ellipseTangent(a1)
		t2 := ellipseTangent(a2)

		path.CubicTo(
			p1.X+alpha*t1.X, p1.Y+alpha*t1.Y,
			p2.X-alpha*t2.X, p2.Y-alpha*t2.Y,
			p2.X, p2.Y,
		)
	}
}
