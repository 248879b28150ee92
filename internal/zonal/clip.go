package zonal

import (
	"math"

	"github.com/paulmach/orb"
)

// pixelRect is one pixel's footprint in native-CRS coordinates.
type pixelRect struct {
	x0, y0, x1, y1 float64
}

func (r pixelRect) area() float64 {
	return (r.x1 - r.x0) * (r.y1 - r.y0)
}

// coverage returns the area of poly inside r, computed by clipping each ring
// against the rectangle (Sutherland-Hodgman; the clip window is convex, so
// the clipped area is exact even for concave subjects) and differencing hole
// areas. The result is clamped to [0, r.area()].
func coverage(poly orb.Polygon, r pixelRect) float64 {
	if len(poly) == 0 {
		return 0
	}
	covered := clippedArea(poly[0], r)
	for _, hole := range poly[1:] {
		covered -= clippedArea(hole, r)
	}
	if covered < 0 {
		return 0
	}
	if a := r.area(); covered > a {
		return a
	}
	return covered
}

func clippedArea(ring orb.Ring, r pixelRect) float64 {
	pts := []orb.Point(ring)
	pts = clipHalf(pts, func(p orb.Point) bool { return p[0] >= r.x0 },
		func(a, b orb.Point) orb.Point { return intersectX(a, b, r.x0) })
	pts = clipHalf(pts, func(p orb.Point) bool { return p[0] <= r.x1 },
		func(a, b orb.Point) orb.Point { return intersectX(a, b, r.x1) })
	pts = clipHalf(pts, func(p orb.Point) bool { return p[1] >= r.y0 },
		func(a, b orb.Point) orb.Point { return intersectY(a, b, r.y0) })
	pts = clipHalf(pts, func(p orb.Point) bool { return p[1] <= r.y1 },
		func(a, b orb.Point) orb.Point { return intersectY(a, b, r.y1) })
	return math.Abs(shoelace(pts))
}

// clipHalf clips a ring against one half-plane.
func clipHalf(in []orb.Point, inside func(orb.Point) bool,
	cross func(a, b orb.Point) orb.Point) []orb.Point {
	if len(in) == 0 {
		return nil
	}
	out := make([]orb.Point, 0, len(in)+4)
	prev := in[len(in)-1]
	prevIn := inside(prev)
	for _, cur := range in {
		curIn := inside(cur)
		switch {
		case curIn && prevIn:
			out = append(out, cur)
		case curIn && !prevIn:
			out = append(out, cross(prev, cur), cur)
		case !curIn && prevIn:
			out = append(out, cross(prev, cur))
		}
		prev, prevIn = cur, curIn
	}
	return out
}

func intersectX(a, b orb.Point, x float64) orb.Point {
	t := (x - a[0]) / (b[0] - a[0])
	return orb.Point{x, a[1] + t*(b[1]-a[1])}
}

func intersectY(a, b orb.Point, y float64) orb.Point {
	t := (y - a[1]) / (b[1] - a[1])
	return orb.Point{a[0] + t*(b[0]-a[0]), y}
}

// shoelace is the signed area of a closed or implicitly closed vertex list.
func shoelace(pts []orb.Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum / 2
}
