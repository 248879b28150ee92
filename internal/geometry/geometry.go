// Package geometry builds the geodesic query shapes (circle, annulus,
// rectangle) as orb polygons in WGS84 coordinates.
//
// Shapes crossing the antimeridian or a pole are not handled: rings come out
// with discontinuous longitudes and downstream bounding boxes are taken
// literally. This mirrors the upstream tool's behavior.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"

	"geoanalyzer/internal/geodesy"
	"geoanalyzer/internal/model"
)

// DefaultVertices is the number of distinct vertices on a circle ring.
const DefaultVertices = 360

// minRadiusM replaces non-positive radii so a degenerate request still
// yields a valid (minimal-area) ring instead of a point.
const minRadiusM = 0.01

// Circle returns a closed ring of n vertices (plus the closing duplicate)
// approximating the geodesic circle of radius radiusM around the center.
// A radius <= 0 is clamped to 1 cm.
func Circle(lon, lat, radiusM float64, n int) orb.Polygon {
	if n <= 0 {
		n = DefaultVertices
	}
	if radiusM <= 0 {
		radiusM = minRadiusM
	}
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		az := 360.0 * float64(i) / float64(n)
		x, y := geodesy.Forward(lon, lat, az, radiusM)
		ring = append(ring, orb.Point{x, y})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Annulus returns the ring-shaped region between two concentric geodesic
// circles as a polygon with one hole. innerM <= 0 degenerates to a full
// circle with no hole. Callers must ensure innerM < outerM.
func Annulus(lon, lat, innerM, outerM float64, n int) orb.Polygon {
	outer := Circle(lon, lat, outerM, n)
	if innerM <= 0 {
		return outer
	}
	inner := Circle(lon, lat, innerM, n)
	hole := inner[0].Clone()
	hole.Reverse()
	return orb.Polygon{outer[0], hole}
}

// RectFromCenter returns an axis-aligned rectangle whose edges pass through
// the geodesic destinations at bearings 0/90/180/270 from the center. True
// geodesic rectangles are not axis-aligned in lon/lat; the approximation is
// only reasonable while the half-dimensions stay small relative to the earth
// radius.
func RectFromCenter(lon, lat, halfWidthM, halfHeightM float64) orb.Polygon {
	if halfWidthM <= 0 {
		halfWidthM = minRadiusM
	}
	if halfHeightM <= 0 {
		halfHeightM = minRadiusM
	}
	_, north := geodesy.Forward(lon, lat, 0, halfHeightM)
	_, south := geodesy.Forward(lon, lat, 180, halfHeightM)
	east, _ := geodesy.Forward(lon, lat, 90, halfWidthM)
	west, _ := geodesy.Forward(lon, lat, 270, halfWidthM)

	ring := orb.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}
	return orb.Polygon{ring}
}

// Validate rejects centers outside the WGS84 coordinate domain.
func Validate(lon, lat float64) error {
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180,180]", model.ErrValidation, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90,90]", model.ErrValidation, lat)
	}
	return nil
}
