package shape

import "math"

// Ear-clipping triangulation for a solid contour with holes.
//
// Nodes of the working polygon live in a flat arena and reference
// each other by index. Splitting the polygon or bridging a hole only
// appends to the arena, so a whole triangulation performs a handful
// of allocations regardless of how often the polygon is cut.

const nilNode = int32(-1)

type earNode struct {
	// i is the vertex index the node refers to.
	i int32

	x, y float64

	prev, next int32

	// z is the node's position on the z-order curve; prevZ/nextZ link
	// the list sorted by z for hashed ear checks.
	z            uint32
	prevZ, nextZ int32

	// steiner marks bridge duplicates created while eliminating holes.
	steiner bool
}

type earcut struct {
	nodes []earNode
	verts []Point

	// hashing window for large polygons
	hashing    bool
	minX, minY float64
	invSize    float64
	triangles  []uint32
}

// triangulate ear-clips a solid contour with its holes. It returns
// the combined vertex list (outer vertices first, hole vertices
// after) and triangle indices into that list.
func triangulate(outer Contour, holes []Contour) ([]Point, []uint32) {
	total := len(outer)
	for _, h := range holes {
		total += len(h)
	}

	e := &earcut{
		nodes:     make([]earNode, 0, total+8*len(holes)),
		verts:     make([]Point, 0, total),
		triangles: make([]uint32, 0, 3*total),
	}

	e.verts = append(e.verts, outer...)
	holeStarts := make([]int, len(holes))
	for i, h := range holes {
		holeStarts[i] = len(e.verts)
		e.verts = append(e.verts, h...)
	}

	// Outer ring wound counterclockwise, holes clockwise.
	last := e.linkedList(0, len(outer), true)
	if last == nilNode || e.nodes[last].next == e.nodes[last].prev {
		return e.verts, nil
	}

	last = e.eliminateHoles(holeStarts, holes, last)

	// Switch to z-order hashed ear checks for large inputs.
	if total > 80 {
		e.hashing = true
		e.minX, e.minY = e.verts[0].X, e.verts[0].Y
		maxX, maxY := e.minX, e.minY
		for _, p := range e.verts[1:] {
			if p.X < e.minX {
				e.minX = p.X
			}
			if p.Y < e.minY {
				e.minY = p.Y
			}
			if p.X > maxX {
				maxX = p.X
			}
			if p.Y > maxY {
				maxY = p.Y
			}
		}
		size := math.Max(maxX-e.minX, maxY-e.minY)
		if size != 0 {
			e.invSize = 32767 / size
		}
	}

	e.earcutLinked(last, 0)
	return e.verts, e.triangles
}

// linkedList builds a circular doubly linked list over verts
// [start, end), enforcing the requested winding, and returns the last
// node index.
func (e *earcut) linkedList(start, end int, ccw bool) int32 {
	if end-start < 3 {
		return nilNode
	}

	var sum float64
	for i := start; i < end; i++ {
		j := i + 1
		if j == end {
			j = start
		}
		sum += (e.verts[j].X - e.verts[i].X) * (e.verts[j].Y + e.verts[i].Y)
	}
	// sum < 0 is counterclockwise in Y-up coordinates.
	forward := (sum < 0) == ccw

	last := nilNode
	if forward {
		for i := start; i < end; i++ {
			last = e.insertNode(int32(i), e.verts[i], last)
		}
	} else {
		for i := end - 1; i >= start; i-- {
			last = e.insertNode(int32(i), e.verts[i], last)
		}
	}

	if last != nilNode && e.equalNodes(last, e.nodes[last].next) {
		next := e.nodes[last].next
		e.removeNode(last)
		last = next
	}
	return e.filterPoints(last, nilNode)
}

// insertNode appends a node to the arena and links it after last.
func (e *earcut) insertNode(i int32, p Point, last int32) int32 {
	idx := int32(len(e.nodes))
	n := earNode{i: i, x: p.X, y: p.Y, prevZ: nilNode, nextZ: nilNode}

	if last == nilNode {
		n.prev = idx
		n.next = idx
	} else {
		n.next = e.nodes[last].next
		n.prev = last
		e.nodes[e.nodes[last].next].prev = idx
		e.nodes[last].next = idx
	}
	e.nodes = append(e.nodes, n)
	return idx
}

func (e *earcut) removeNode(p int32) {
	n := &e.nodes[p]
	e.nodes[n.next].prev = n.prev
	e.nodes[n.prev].next = n.next
	if n.prevZ != nilNode {
		e.nodes[n.prevZ].nextZ = n.nextZ
	}
	if n.nextZ != nilNode {
		e.nodes[n.nextZ].prevZ = n.prevZ
	}
}

// filterPoints removes collinear and duplicate points around start.
func (e *earcut) filterPoints(start, end int32) int32 {
	if start == nilNode {
		return start
	}
	if end == nilNode {
		end = start
	}

	p := start
	for {
		again := false
		n := &e.nodes[p]
		if !n.steiner && (e.equalNodes(p, n.next) || e.area(n.prev, p, n.next) == 0) {
			e.removeNode(p)
			p = n.prev
			end = p
			if p == e.nodes[p].next {
				break
			}
			again = true
		} else {
			p = n.next
		}
		if !again && p == end {
			break
		}
	}
	return end
}

// earcutLinked is the main loop: cut off ears one by one, falling
// back to local intersection cures and polygon splitting when stuck.
func (e *earcut) earcutLinked(ear int32, pass int) {
	if ear == nilNode {
		return
	}

	if pass == 0 && e.hashing {
		e.indexCurve(ear)
	}

	stop := ear
	for e.nodes[ear].prev != e.nodes[ear].next {
		prev := e.nodes[ear].prev
		next := e.nodes[ear].next

		var isEar bool
		if e.hashing {
			isEar = e.isEarHashed(ear)
		} else {
			isEar = e.isEar(ear)
		}
		if isEar {
			e.triangles = append(e.triangles,
				uint32(e.nodes[prev].i),
				uint32(e.nodes[ear].i),
				uint32(e.nodes[next].i),
			)
			e.removeNode(ear)

			// Skipping the next vertex leads to less sliver triangles.
			ear = e.nodes[next].next
			stop = ear
			continue
		}

		ear = next
		if ear == stop {
			switch pass {
			case 0:
				e.earcutLinked(e.filterPoints(ear, nilNode), 1)
			case 1:
				ear = e.cureLocalIntersections(e.filterPoints(ear, nilNode))
				e.earcutLinked(ear, 2)
			case 2:
				e.splitEarcut(ear)
			}
			return
		}
	}
}

func (e *earcut) isEar(ear int32) bool {
	a := e.nodes[ear].prev
	b := ear
	c := e.nodes[ear].next

	if e.area(a, b, c) >= 0 {
		return false // reflex
	}

	na, nb, nc := &e.nodes[a], &e.nodes[b], &e.nodes[c]
	p := e.nodes[c].next
	for p != a {
		np := &e.nodes[p]
		if pointInTriangle(na.x, na.y, nb.x, nb.y, nc.x, nc.y, np.x, np.y) &&
			e.area(np.prev, p, np.next) >= 0 {
			return false
		}
		p = np.next
	}
	return true
}

func (e *earcut) isEarHashed(ear int32) bool {
	a := e.nodes[ear].prev
	b := ear
	c := e.nodes[ear].next

	if e.area(a, b, c) >= 0 {
		return false
	}

	na, nb, nc := &e.nodes[a], &e.nodes[b], &e.nodes[c]

	minTX := math.Min(na.x, math.Min(nb.x, nc.x))
	minTY := math.Min(na.y, math.Min(nb.y, nc.y))
	maxTX := math.Max(na.x, math.Max(nb.x, nc.x))
	maxTY := math.Max(na.y, math.Max(nb.y, nc.y))

	minZ := e.zOrder(minTX, minTY)
	maxZ := e.zOrder(maxTX, maxTY)

	p := e.nodes[ear].prevZ
	n := e.nodes[ear].nextZ

	for p != nilNode && e.nodes[p].z >= minZ && n != nilNode && e.nodes[n].z <= maxZ {
		if e.hashedBlocker(p, a, b, c, na, nb, nc) {
			return false
		}
		p = e.nodes[p].prevZ
		if e.hashedBlocker(n, a, b, c, na, nb, nc) {
			return false
		}
		n = e.nodes[n].nextZ
	}
	for p != nilNode && e.nodes[p].z >= minZ {
		if e.hashedBlocker(p, a, b, c, na, nb, nc) {
			return false
		}
		p = e.nodes[p].prevZ
	}
	for n != nilNode && e.nodes[n].z <= maxZ {
		if e.hashedBlocker(n, a, b, c, na, nb, nc) {
			return false
		}
		n = e.nodes[n].nextZ
	}
	return true
}

func (e *earcut) hashedBlocker(p, a, b, c int32, na, nb, nc *earNode) bool {
	if p == a || p == b || p == c {
		return false
	}
	np := &e.nodes[p]
	return pointInTriangle(na.x, na.y, nb.x, nb.y, nc.x, nc.y, np.x, np.y) &&
		e.area(np.prev, p, np.next) >= 0
}

// cureLocalIntersections fixes cases where two edges of the remaining
// polygon intersect each other.
func (e *earcut) cureLocalIntersections(start int32) int32 {
	p := start
	for {
		a := e.nodes[p].prev
		b := e.nodes[e.nodes[p].next].next

		if !e.equalNodes(a, b) && e.intersects(a, p, e.nodes[p].next, b) &&
			e.locallyInside(a, b) && e.locallyInside(b, a) {
			e.triangles = append(e.triangles,
				uint32(e.nodes[a].i),
				uint32(e.nodes[p].i),
				uint32(e.nodes[b].i),
			)
			e.removeNode(p)
			e.removeNode(e.nodes[p].next)
			p = b
			start = b
		}
		p = e.nodes[p].next
		if p == start {
			break
		}
	}
	return e.filterPoints(p, nilNode)
}

// splitEarcut cuts the polygon along a valid diagonal and triangulates
// the two halves independently.
func (e *earcut) splitEarcut(start int32) {
	a := start
	for {
		b := e.nodes[e.nodes[a].next].next
		for b != e.nodes[a].prev {
			if e.nodes[a].i != e.nodes[b].i && e.isValidDiagonal(a, b) {
				c := e.splitPolygon(a, b)

				a = e.filterPoints(a, e.nodes[a].next)
				c = e.filterPoints(c, e.nodes[c].next)

				e.earcutLinked(a, 0)
				e.earcutLinked(c, 0)
				return
			}
			b = e.nodes[b].next
		}
		a = e.nodes[a].next
		if a == start {
			break
		}
	}
}

// eliminateHoles bridges every hole into the outer ring, most
// leftward hole first.
func (e *earcut) eliminateHoles(holeStarts []int, holes []Contour, outer int32) int32 {
	var queue []int32
	for i, start := range holeStarts {
		list := e.linkedList(start, start+len(holes[i]), false)
		if list == nilNode {
			continue
		}
		if list == e.nodes[list].next {
			e.nodes[list].steiner = true
		}
		queue = append(queue, e.getLeftmost(list))
	}

	// Sort bridges left to right.
	for i := 1; i < len(queue); i++ {
		for j := i; j > 0 && e.nodes[queue[j]].x < e.nodes[queue[j-1]].x; j-- {
			queue[j], queue[j-1] = queue[j-1], queue[j]
		}
	}

	for _, h := range queue {
		outer = e.eliminateHole(h, outer)
	}
	return outer
}

func (e *earcut) eliminateHole(hole, outer int32) int32 {
	bridge := e.findHoleBridge(hole, outer)
	if bridge == nilNode {
		return outer
	}

	bridgeReverse := e.splitPolygon(bridge, hole)

	e.filterPoints(bridgeReverse, e.nodes[bridgeReverse].next)
	return e.filterPoints(bridge, e.nodes[bridge].next)
}

// findHoleBridge locates an outer-ring vertex that the hole's
// leftmost vertex can see, David Eberly style.
func (e *earcut) findHoleBridge(hole, outer int32) int32 {
	p := outer
	hx := e.nodes[hole].x
	hy := e.nodes[hole].y
	qx := math.Inf(-1)
	m := nilNode

	// Find the closest edge intersection with a leftward horizontal ray.
	for {
		np := &e.nodes[p]
		next := np.next
		nn := &e.nodes[next]
		if hy <= np.y && hy >= nn.y && nn.y != np.y {
			x := np.x + (hy-np.y)*(nn.x-np.x)/(nn.y-np.y)
			if x <= hx && x > qx {
				qx = x
				if np.x < nn.x {
					m = p
				} else {
					m = next
				}
				if x == hx {
					// Ray lands exactly on the vertex.
					return m
				}
			}
		}
		p = next
		if p == outer {
			break
		}
	}

	if m == nilNode {
		return nilNode
	}

	// Check that no other polygon vertex lies inside the triangle of
	// the ray endpoint; pick the one minimizing the bridge angle.
	stop := m
	mx := e.nodes[m].x
	my := e.nodes[m].y
	tanMin := math.Inf(1)

	p = m
	for {
		np := &e.nodes[p]
		inTri := false
		if hx >= np.x && np.x >= mx && hx != np.x {
			if hy < my {
				inTri = pointInTriangle(hx, hy, mx, my, qx, hy, np.x, np.y)
			} else {
				inTri = pointInTriangle(qx, hy, mx, my, hx, hy, np.x, np.y)
			}
		}
		if inTri {
			tan := math.Abs(hy-np.y) / (hx - np.x)
			if e.locallyInside(p, hole) &&
				(tan < tanMin || (tan == tanMin && (np.x > e.nodes[m].x ||
					(np.x == e.nodes[m].x && e.sectorContainsSector(m, p))))) {
				m = p
				tanMin = tan
			}
		}
		p = np.next
		if p == stop {
			break
		}
	}
	return m
}

// sectorContainsSector reports whether the sector in vertex m
// contains the sector in vertex p in the same coordinates.
func (e *earcut) sectorContainsSector(m, p int32) bool {
	return e.area(e.nodes[m].prev, m, e.nodes[p].prev) < 0 &&
		e.area(e.nodes[p].next, m, e.nodes[m].next) < 0
}

// indexCurve assigns z-order values and merge-sorts the z list.
func (e *earcut) indexCurve(start int32) {
	p := start
	for {
		np := &e.nodes[p]
		if np.z == 0 {
			np.z = e.zOrder(np.x, np.y)
		}
		np.prevZ = np.prev
		np.nextZ = np.next
		p = np.next
		if p == start {
			break
		}
	}
	e.nodes[e.nodes[start].prevZ].nextZ = nilNode
	e.nodes[start].prevZ = nilNode

	e.sortLinked(start)
}

// sortLinked sorts the z list with Simon Tatham's linked list merge
// sort.
func (e *earcut) sortLinked(list int32) {
	inSize := 1
	for {
		p := list
		list = nilNode
		tail := nilNode
		numMerges := 0

		for p != nilNode {
			numMerges++
			q := p
			pSize := 0
			for i := 0; i < inSize; i++ {
				pSize++
				q = e.nodes[q].nextZ
				if q == nilNode {
					break
				}
			}
			qSize := inSize

			for pSize > 0 || (qSize > 0 && q != nilNode) {
				var en int32
				if pSize != 0 && (qSize == 0 || q == nilNode || e.nodes[p].z <= e.nodes[q].z) {
					en = p
					p = e.nodes[p].nextZ
					pSize--
				} else {
					en = q
					q = e.nodes[q].nextZ
					qSize--
				}

				if tail != nilNode {
					e.nodes[tail].nextZ = en
				} else {
					list = en
				}
				e.nodes[en].prevZ = tail
				tail = en
			}
			p = q
		}
		e.nodes[tail].nextZ = nilNode

		if numMerges <= 1 {
			return
		}
		inSize *= 2
	}
}

// zOrder interleaves the 15-bit normalized coordinates into a z-order
// curve value.
func (e *earcut) zOrder(x, y float64) uint32 {
	ix := uint32((x - e.minX) * e.invSize)
	iy := uint32((y - e.minY) * e.invSize)

	ix = (ix | (ix << 8)) & 0x00FF00FF
	ix = (ix | (ix << 4)) & 0x0F0F0F0F
	ix = (ix | (ix << 2)) & 0x33333333
	ix = (ix | (ix << 1)) & 0x55555555

	iy = (iy | (iy << 8)) & 0x00FF00FF
	iy = (iy | (iy << 4)) & 0x0F0F0F0F
	iy = (iy | (iy << 2)) & 0x33333333
	iy = (iy | (iy << 1)) & 0x55555555

	return ix | (iy << 1)
}

func (e *earcut) getLeftmost(start int32) int32 {
	p := start
	leftmost := start
	for {
		np := &e.nodes[p]
		nl := &e.nodes[leftmost]
		if np.x < nl.x || (np.x == nl.x && np.y < nl.y) {
			leftmost = p
		}
		p = np.next
		if p == start {
			break
		}
	}
	return leftmost
}

// isValidDiagonal reports whether (a, b) is a chord fully inside the
// polygon that intersects no edges.
func (e *earcut) isValidDiagonal(a, b int32) bool {
	na, nb := &e.nodes[a], &e.nodes[b]
	if e.nodes[na.next].i == nb.i || e.nodes[na.prev].i == nb.i {
		return false
	}
	if e.intersectsPolygon(a, b) {
		return false
	}

	locally := e.locallyInside(a, b) && e.locallyInside(b, a) && e.middleInside(a, b) &&
		(e.area(na.prev, a, nb.prev) != 0 || e.area(a, nb.prev, b) != 0)
	zeroLen := e.equalNodes(a, b) && e.area(na.prev, a, na.next) > 0 && e.area(nb.prev, b, nb.next) > 0
	return locally || zeroLen
}

// area is twice the signed triangle area; positive when r is to the
// right of pq (clockwise turn in Y-up coordinates).
func (e *earcut) area(p, q, r int32) float64 {
	np, nq, nr := &e.nodes[p], &e.nodes[q], &e.nodes[r]
	return (nq.y-np.y)*(nr.x-nq.x) - (nq.x-np.x)*(nr.y-nq.y)
}

func (e *earcut) equalNodes(a, b int32) bool {
	return e.nodes[a].x == e.nodes[b].x && e.nodes[a].y == e.nodes[b].y
}

func (e *earcut) intersects(p1, q1, p2, q2 int32) bool {
	o1 := sign(e.area(p1, q1, p2))
	o2 := sign(e.area(p1, q1, q2))
	o3 := sign(e.area(p2, q2, p1))
	o4 := sign(e.area(p2, q2, q1))

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && e.onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && e.onSegment(p1, q2, q1) {
		return true
	}
	if o3 == 0 && e.onSegment(p2, p1, q2) {
		return true
	}
	if o4 == 0 && e.onSegment(p2, q1, q2) {
		return true
	}
	return false
}

func (e *earcut) onSegment(p, q, r int32) bool {
	np, nq, nr := &e.nodes[p], &e.nodes[q], &e.nodes[r]
	return nq.x <= math.Max(np.x, nr.x) && nq.x >= math.Min(np.x, nr.x) &&
		nq.y <= math.Max(np.y, nr.y) && nq.y >= math.Min(np.y, nr.y)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func (e *earcut) intersectsPolygon(a, b int32) bool {
	p := a
	for {
		np := &e.nodes[p]
		next := np.next
		if np.i != e.nodes[a].i && e.nodes[next].i != e.nodes[a].i &&
			np.i != e.nodes[b].i && e.nodes[next].i != e.nodes[b].i &&
			e.intersects(p, next, a, b) {
			return true
		}
		p = next
		if p == a {
			break
		}
	}
	return false
}

func (e *earcut) locallyInside(a, b int32) bool {
	na := &e.nodes[a]
	if e.area(na.prev, a, na.next) < 0 {
		return e.area(a, b, na.next) >= 0 && e.area(a, na.prev, b) >= 0
	}
	return e.area(a, b, na.prev) < 0 || e.area(a, na.next, b) < 0
}

func (e *earcut) middleInside(a, b int32) bool {
	na, nb := &e.nodes[a], &e.nodes[b]
	px := (na.x + nb.x) / 2
	py := (na.y + nb.y) / 2

	inside := false
	p := a
	for {
		np := &e.nodes[p]
		nn := &e.nodes[np.next]
		if (np.y > py) != (nn.y > py) && nn.y != np.y {
			if px < (nn.x-np.x)*(py-np.y)/(nn.y-np.y)+np.x {
				inside = !inside
			}
		}
		p = np.next
		if p == a {
			break
		}
	}
	return inside
}

// splitPolygon cuts the polygon in two along the diagonal (a, b) by
// appending duplicate nodes to the arena, and returns the new node on
// b's side of the cut.
func (e *earcut) splitPolygon(a, b int32) int32 {
	a2 := int32(len(e.nodes))
	e.nodes = append(e.nodes, earNode{
		i: e.nodes[a].i, x: e.nodes[a].x, y: e.nodes[a].y,
		prevZ: nilNode, nextZ: nilNode,
	})
	b2 := int32(len(e.nodes))
	e.nodes = append(e.nodes, earNode{
		i: e.nodes[b].i, x: e.nodes[b].x, y: e.nodes[b].y,
		prevZ: nilNode, nextZ: nilNode,
	})

	an := e.nodes[a].next
	bp := e.nodes[b].prev

	e.nodes[a].next = b
	e.nodes[b].prev = a

	e.nodes[a2].next = an
	e.nodes[an].prev = a2

	e.nodes[b2].next = a2
	e.nodes[a2].prev = b2

	e.nodes[bp].next = b2
	e.nodes[b2].prev = bp

	return b2
}

// pointInTriangle reports whether (px, py) lies inside or on the
// triangle (ax, ay)-(bx, by)-(cx, cy).
func pointInTriangle(ax, ay, bx, by, cx, cy, px, py float64) bool {
	return (cx-px)*(ay-py) >= (ax-px)*(cy-py) &&
		(ax-px)*(by-py) >= (bx-px)*(ay-py) &&
		(bx-px)*(cy-py) >= (cx-px)*(by-py)
}
