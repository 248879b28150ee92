// Package query composes geometry construction and zonal statistics into the
// four query operations. Each result pairs a label, the shape's GeoJSON
// polygon and the computed statistics, in a defined order.
package query

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/geojson"

	"geoanalyzer/internal/geometry"
	"geoanalyzer/internal/model"
	"geoanalyzer/internal/zonal"
)

// Runner drives the four orchestrators against one statistics engine.
type Runner struct {
	engine   *zonal.Engine
	vertices int
}

func NewRunner(engine *zonal.Engine, circleVertices int) *Runner {
	if circleVertices <= 0 {
		circleVertices = geometry.DefaultVertices
	}
	return &Runner{engine: engine, vertices: circleVertices}
}

// Circle runs one circle query per radius, sorted ascending. Labels are
// "<radius> km".
func (r *Runner) Circle(path string, lon, lat float64, radiiKM []float64, stats []model.Stat, band int) ([]model.QueryResult, error) {
	if err := geometry.Validate(lon, lat); err != nil {
		return nil, err
	}
	if len(radiiKM) == 0 {
		return nil, fmt.Errorf("%w: no radii provided", model.ErrValidation)
	}
	radii := append([]float64(nil), radiiKM...)
	sort.Float64s(radii)

	results := make([]model.QueryResult, 0, len(radii))
	for _, km := range radii {
		poly := geometry.Circle(lon, lat, km*1000, r.vertices)
		vals, err := r.engine.Compute(path, poly, stats, band)
		if err != nil {
			return nil, fmt.Errorf("circle %g km: %w", km, err)
		}
		results = append(results, model.QueryResult{
			Label:    fmt.Sprintf("%g km", km),
			Geometry: geojson.NewGeometry(poly),
			Stats:    vals,
		})
	}
	return results, nil
}

// Band runs one annulus query per consecutive pair of distance edges. Edges
// are deduplicated and sorted; fewer than two distinct edges is a validation
// error. Labels are "<inner>–<outer> km".
func (r *Runner) Band(path string, lon, lat float64, edgesKM []float64, stats []model.Stat, band int) ([]model.QueryResult, error) {
	if err := geometry.Validate(lon, lat); err != nil {
		return nil, err
	}
	edges := dedupSorted(edgesKM)
	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct edges, got %d", model.ErrValidation, len(edges))
	}

	results := make([]model.QueryResult, 0, len(edges)-1)
	for i := 0; i < len(edges)-1; i++ {
		inner, outer := edges[i], edges[i+1]
		poly := geometry.Annulus(lon, lat, inner*1000, outer*1000, r.vertices)
		vals, err := r.engine.Compute(path, poly, stats, band)
		if err != nil {
			return nil, fmt.Errorf("band %g–%g km: %w", inner, outer, err)
		}
		results = append(results, model.QueryResult{
			Label:    fmt.Sprintf("%g–%g km", inner, outer),
			Geometry: geojson.NewGeometry(poly),
			Stats:    vals,
		})
	}
	return results, nil
}

// Rect runs a single rectangle query. The label names the full width and
// height: "<w>×<h> km".
func (r *Runner) Rect(path string, lon, lat, halfWKM, halfHKM float64, stats []model.Stat, band int) ([]model.QueryResult, error) {
	if err := geometry.Validate(lon, lat); err != nil {
		return nil, err
	}
	if halfWKM <= 0 || halfHKM <= 0 {
		return nil, fmt.Errorf("%w: rectangle half-dimensions must be positive", model.ErrValidation)
	}
	poly := geometry.RectFromCenter(lon, lat, halfWKM*1000, halfHKM*1000)
	vals, err := r.engine.Compute(path, poly, stats, band)
	if err != nil {
		return nil, fmt.Errorf("rect query: %w", err)
	}
	return []model.QueryResult{{
		Label:    fmt.Sprintf("%g×%g km", halfWKM*2, halfHKM*2),
		Geometry: geojson.NewGeometry(poly),
		Stats:    vals,
	}}, nil
}

// Compare runs one fixed-radius circle query per named point, preserving
// input order. Each result's stats carry the originating point's coordinates
// under the reserved _lat/_lon keys.
func (r *Runner) Compare(path string, points []model.NamedPoint, radiusKM float64, stats []model.Stat, band int) ([]model.QueryResult, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no comparison points provided", model.ErrValidation)
	}
	results := make([]model.QueryResult, 0, len(points))
	for _, pt := range points {
		if err := geometry.Validate(pt.Lon, pt.Lat); err != nil {
			return nil, fmt.Errorf("point %q: %w", pt.Name, err)
		}
		poly := geometry.Circle(pt.Lon, pt.Lat, radiusKM*1000, r.vertices)
		vals, err := r.engine.Compute(path, poly, stats, band)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pt.Name, err)
		}
		vals[model.MetaLat] = pt.Lat
		vals[model.MetaLon] = pt.Lon
		results = append(results, model.QueryResult{
			Label:    pt.Name,
			Geometry: geojson.NewGeometry(poly),
			Stats:    vals,
		})
	}
	return results, nil
}

func dedupSorted(in []float64) []float64 {
	out := append([]float64(nil), in...)
	sort.Float64s(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
