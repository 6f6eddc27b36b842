package geom

import (
	"math"
	"sort"
)

// Edge connects two input points by index, A < B
type Edge struct {
	A int `json:"a" msgpack:"a"`
	B int `json:"b" msgpack:"b"`
}

func newEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// triangle holds vertex indices into the working vertex list
type triangle struct {
	a, b, c int
}

func (t triangle) edges() [3][2]int {
	return [3][2]int{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}}
}

// circumcircleContains is the in-circle determinant test. The sign of the
// determinant depends on winding, so it is flipped for clockwise triangles.
func circumcircleContains(v []Point, t triangle, p Point) bool {
	a, b, c := v[t.a], v[t.b], v[t.c]
	ax, ay := a.X-p.X, a.Y-p.Y
	bx, by := b.X-p.X, b.Y-p.Y
	cx, cy := c.X-p.X, c.Y-p.Y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)

	if Orient(a, b, c) > 0 {
		return det > 0
	}
	return det < 0
}

// sameEdge compares two edges by coordinates, in either direction
func sameEdge(v []Point, e, o [2]int) bool {
	return (Near(v[e[0]], v[o[0]]) && Near(v[e[1]], v[o[1]])) ||
		(Near(v[e[0]], v[o[1]]) && Near(v[e[1]], v[o[0]]))
}

func superTriangle(points []Point) [3]Point {
	bb := BoundingBox(points)
	dmax := math.Max(bb.MaxX-bb.MinX, bb.MaxY-bb.MinY) * 2
	if dmax < Epsilon {
		dmax = 1
	}
	midX := (bb.MinX + bb.MaxX) / 2
	midY := (bb.MinY + bb.MaxY) / 2
	return [3]Point{
		{X: midX - dmax*2, Y: midY - dmax},
		{X: midX, Y: midY + dmax*2},
		{X: midX + dmax*2, Y: midY - dmax},
	}
}

// Triangulate computes the Delaunay triangulation of points with the
// Bowyer-Watson algorithm and returns the undirected edge set as index pairs,
// sorted by (A, B). Fewer than two points yield no edges; exactly two points
// yield the single edge between them.
//
// The super-triangle is finite, its vertices a few bounding-box extents out.
// Where a convex-hull triangle is so flat that its circumcircle reaches a
// super-triangle vertex, that triangle never forms and its hull edge is
// missing from the result. Interior edges are unaffected and no extra edges
// appear, so the result is a subset of the exact triangulation.
func Triangulate(points []Point) []Edge {
	n := len(points)
	if n < 2 {
		return nil
	}
	if n == 2 {
		return []Edge{{A: 0, B: 1}}
	}

	st := superTriangle(points)
	verts := make([]Point, 0, n+3)
	verts = append(verts, points...)
	verts = append(verts, st[0], st[1], st[2])

	triangles := []triangle{{a: n, b: n + 1, c: n + 2}}

	for pi := 0; pi < n; pi++ {
		p := verts[pi]

		var bad []int
		for ti, t := range triangles {
			if circumcircleContains(verts, t, p) {
				bad = append(bad, ti)
			}
		}

		// Boundary of the polygonal hole: edges owned by exactly one bad triangle
		var polygon [][2]int
		for _, bi := range bad {
			for _, e := range triangles[bi].edges() {
				shared := false
				for _, oi := range bad {
					if oi == bi {
						continue
					}
					for _, o := range triangles[oi].edges() {
						if sameEdge(verts, e, o) {
							shared = true
							break
						}
					}
					if shared {
						break
					}
				}
				if !shared {
					polygon = append(polygon, e)
				}
			}
		}

		kept := triangles[:0:0]
		bi := 0
		for ti, t := range triangles {
			if bi < len(bad) && bad[bi] == ti {
				bi++
				continue
			}
			kept = append(kept, t)
		}
		for _, e := range polygon {
			kept = append(kept, triangle{a: e[0], b: e[1], c: pi})
		}
		triangles = kept
	}

	touchesSuper := func(t triangle) bool {
		for _, vi := range [3]int{t.a, t.b, t.c} {
			for _, s := range st {
				if Near(verts[vi], s) {
					return true
				}
			}
		}
		return false
	}

	var edges []Edge
	var seen [][2]int
	for _, t := range triangles {
		if touchesSuper(t) {
			continue
		}
		for _, e := range t.edges() {
			if Near(verts[e[0]], verts[e[1]]) {
				continue
			}
			dup := false
			for _, s := range seen {
				if sameEdge(verts, e, s) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			seen = append(seen, e)
			edges = append(edges, newEdge(e[0], e[1]))
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
	return edges
}
