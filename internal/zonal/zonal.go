// Package zonal computes summary statistics of raster pixels covered by a
// geographic polygon.
//
// Two strategies sit behind the same contract, selected once at process
// start. The exact strategy weights every pixel by the fraction of its area
// the polygon covers, so results vary continuously as the boundary moves.
// The masked fallback includes any pixel the polygon touches at all
// (all-touched, binary inclusion), matching the coarser behavior of
// mask-based raster tooling.
package zonal

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"geoanalyzer/internal/model"
	"geoanalyzer/internal/proj"
	"geoanalyzer/internal/raster"
)

// Strategy names one aggregation strategy.
type Strategy string

const (
	StrategyExact  Strategy = "exact"
	StrategyMasked Strategy = "masked"
)

// ParseStrategy maps a config value to a strategy, defaulting to exact.
func ParseStrategy(s string) Strategy {
	if strings.EqualFold(strings.TrimSpace(s), string(StrategyMasked)) {
		return StrategyMasked
	}
	return StrategyExact
}

// Engine computes zonal statistics. It opens its own dataset handle per
// computation and holds no mutable state across calls, so one Engine may be
// shared by concurrent requests.
type Engine struct {
	open     raster.OpenFunc
	strategy Strategy
}

func New(open raster.OpenFunc, s Strategy) *Engine {
	if s != StrategyMasked {
		s = StrategyExact
	}
	return &Engine{open: open, strategy: s}
}

func (e *Engine) Strategy() Strategy { return e.strategy }

// Compute returns a mapping of statistic name to value for the pixels of one
// band covered by the WGS84 polygon. Zero coverage is not an error: sum and
// count come back 0 and the value statistics NaN.
func (e *Engine) Compute(path string, poly orb.Polygon, stats []model.Stat, band int) (model.StatMap, error) {
	ds, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer func() { _ = ds.Close() }()

	info := ds.Info()
	if band == 0 {
		band = 1
	}
	if err := raster.ValidateBand(info, band); err != nil {
		return nil, err
	}

	native, err := toNative(poly, info)
	if err != nil {
		return nil, err
	}

	win, ok := pixelWindow(native, info)
	if !ok {
		return aggregate(stats, nil), nil
	}

	vals, err := ds.Read(band, win)
	if err != nil {
		return nil, fmt.Errorf("%w: read pixel block: %w", model.ErrComputation, err)
	}

	contrib := e.collect(native, info, win, vals)
	return aggregate(stats, contrib), nil
}

// toNative reprojects the WGS84 polygon into the raster's CRS and rejects
// shapes that degenerate under the transform.
func toNative(poly orb.Polygon, info raster.Info) (orb.Polygon, error) {
	if len(poly) == 0 || len(poly[0]) < 4 {
		return nil, fmt.Errorf("%w: polygon has no usable outer ring", model.ErrGeometry)
	}
	tr, err := proj.ForCRS(info.CRS, info.Geographic)
	if err != nil {
		return nil, err
	}
	native, err := proj.ForwardPolygon(tr, poly)
	if err != nil {
		return nil, fmt.Errorf("%w: reproject polygon: %v", model.ErrGeometry, err)
	}
	b := native.Bound()
	if !finite(b.Min) || !finite(b.Max) {
		return nil, fmt.Errorf("%w: polygon reprojected to non-finite coordinates", model.ErrGeometry)
	}
	if b.Min[0] >= b.Max[0] || b.Min[1] >= b.Max[1] {
		return nil, fmt.Errorf("%w: polygon is empty after reprojection", model.ErrGeometry)
	}
	return native, nil
}

// pixelWindow is the raster window spanned by the polygon's bbox.
func pixelWindow(native orb.Polygon, info raster.Info) (raster.Window, bool) {
	b := native.Bound()
	c1, r1 := info.WorldToPixel(b.Min[0], b.Min[1])
	c2, r2 := info.WorldToPixel(b.Max[0], b.Max[1])

	col0 := int(math.Floor(math.Min(c1, c2)))
	row0 := int(math.Floor(math.Min(r1, r2)))
	col1 := int(math.Ceil(math.Max(c1, c2)))
	row1 := int(math.Ceil(math.Max(r1, r2)))

	return raster.Window{
		Col: col0, Row: row0,
		Width: col1 - col0, Height: row1 - row0,
	}.Clip(info.Width, info.Height)
}

// collect walks the window and produces per-pixel contributions. Nodata and
// NaN pixels never contribute regardless of coverage.
func (e *Engine) collect(native orb.Polygon, info raster.Info, win raster.Window, vals []float64) []contribution {
	contrib := make([]contribution, 0, len(vals))
	for r := 0; r < win.Height; r++ {
		for c := 0; c < win.Width; c++ {
			v := vals[r*win.Width+c]
			if math.IsNaN(v) {
				continue
			}
			if info.NoData != nil && v == *info.NoData {
				continue
			}

			px := rectFor(info, win.Col+c, win.Row+r)
			frac := coverage(native, px)
			if frac <= 0 {
				continue
			}
			w := 1.0
			if e.strategy == StrategyExact {
				w = frac / px.area()
			}
			contrib = append(contrib, contribution{value: v, weight: w})
		}
	}
	return contrib
}

func rectFor(info raster.Info, col, row int) pixelRect {
	xa, ya := info.PixelToWorld(float64(col), float64(row))
	xb, yb := info.PixelToWorld(float64(col+1), float64(row+1))
	return pixelRect{
		x0: math.Min(xa, xb), y0: math.Min(ya, yb),
		x1: math.Max(xa, xb), y1: math.Max(ya, yb),
	}
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) &&
		!math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}
