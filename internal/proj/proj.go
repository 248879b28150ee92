// Package proj resolves coordinate transformers between WGS84 and a raster's
// native CRS. Geographic rasters get the identity transform and Web-Mercator
// gets a closed-form projection; anything else is served by a registered
// factory (the GDAL-backed opener registers one at init).
package proj

import (
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"geoanalyzer/internal/model"
)

// Transformer converts coordinates between WGS84 and one native CRS.
// Implementations must be safe for concurrent use.
type Transformer interface {
	// Forward maps WGS84 (lon,lat) points into the native CRS.
	Forward(pts []orb.Point) ([]orb.Point, error)
	// Inverse maps native-CRS points back to WGS84.
	Inverse(pts []orb.Point) ([]orb.Point, error)
}

// Factory builds a Transformer for a CRS identifier, reporting false when it
// does not handle that CRS.
type Factory func(crs string) (Transformer, bool)

var (
	mu        sync.RWMutex
	factories []Factory
)

// Register adds a fallback transformer factory. Later registrations are
// consulted first.
func Register(f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories = append([]Factory{f}, factories...)
}

// ForCRS returns a transformer from WGS84 to the named CRS. geographic marks
// CRSes already in lon/lat degrees (identity transform).
func ForCRS(crs string, geographic bool) (Transformer, error) {
	if geographic {
		return identity{}, nil
	}
	switch normalize(crs) {
	case "EPSG:4326", "OGC:CRS84", "WGS84", "":
		return identity{}, nil
	case "EPSG:3857", "EPSG:900913":
		return mercator{}, nil
	}

	mu.RLock()
	defer mu.RUnlock()
	for _, f := range factories {
		if tr, ok := f(crs); ok {
			return tr, nil
		}
	}
	return nil, fmt.Errorf("%w: no transformer for CRS %q", model.ErrGeometry, crs)
}

func normalize(crs string) string {
	return strings.ToUpper(strings.TrimSpace(crs))
}

type identity struct{}

func (identity) Forward(pts []orb.Point) ([]orb.Point, error) { return pts, nil }
func (identity) Inverse(pts []orb.Point) ([]orb.Point, error) { return pts, nil }

// mercator wraps orb/project's spherical Web-Mercator.
type mercator struct{}

func (mercator) Forward(pts []orb.Point) ([]orb.Point, error) {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = project.WGS84.ToMercator(p)
	}
	return out, nil
}

func (mercator) Inverse(pts []orb.Point) ([]orb.Point, error) {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = project.Mercator.ToWGS84(p)
	}
	return out, nil
}

// ForwardRing transforms a ring through t, preserving closure.
func ForwardRing(t Transformer, r orb.Ring) (orb.Ring, error) {
	pts, err := t.Forward([]orb.Point(r))
	if err != nil {
		return nil, err
	}
	return orb.Ring(pts), nil
}

// ForwardPolygon transforms every ring of p through t.
func ForwardPolygon(t Transformer, p orb.Polygon) (orb.Polygon, error) {
	out := make(orb.Polygon, 0, len(p))
	for _, r := range p {
		tr, err := ForwardRing(t, r)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}
