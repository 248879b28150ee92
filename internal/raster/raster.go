// Package raster abstracts read-only access to single-file gridded datasets
// and tracks loaded rasters by identifier. The GDAL-backed implementation
// lives in the gtiff subpackage behind the cgo boundary; a pure in-memory
// implementation backs tests and synthetic data.
package raster

import (
	"fmt"
	"math"

	"geoanalyzer/internal/model"
)

// Info is the header-level description of an open dataset.
type Info struct {
	CRS        string
	Geographic bool
	Width      int
	Height     int
	// Transform is the GDAL-style affine geotransform:
	// x = t[0] + col*t[1] + row*t[2]; y = t[3] + col*t[4] + row*t[5].
	// Rotated/skewed grids (t[2] or t[4] != 0) are rejected at open time.
	Transform [6]float64
	Bands     int
	NoData    *float64
}

// Res returns the per-axis ground resolution (absolute values).
func (i Info) Res() (x, y float64) {
	return math.Abs(i.Transform[1]), math.Abs(i.Transform[5])
}

// PixelToWorld maps fractional pixel coordinates to native-CRS coordinates.
// (0,0) is the outer corner of the top-left pixel.
func (i Info) PixelToWorld(col, row float64) (x, y float64) {
	t := i.Transform
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// WorldToPixel maps native-CRS coordinates to fractional pixel coordinates.
func (i Info) WorldToPixel(x, y float64) (col, row float64) {
	t := i.Transform
	return (x - t[0]) / t[1], (y - t[3]) / t[5]
}

// Window is a rectangular pixel region.
type Window struct {
	Col, Row      int
	Width, Height int
}

// Clip intersects w with the raster extent. The second return is false when
// nothing remains.
func (w Window) Clip(rasterW, rasterH int) (Window, bool) {
	c0 := max(w.Col, 0)
	r0 := max(w.Row, 0)
	c1 := min(w.Col+w.Width, rasterW)
	r1 := min(w.Row+w.Height, rasterH)
	if c1 <= c0 || r1 <= r0 {
		return Window{}, false
	}
	return Window{Col: c0, Row: r0, Width: c1 - c0, Height: r1 - r0}, true
}

// Dataset is one open raster handle. Implementations are not required to be
// safe for concurrent use; callers open their own handle per computation.
type Dataset interface {
	Info() Info
	// Read returns the pixel values of one band inside w, row-major,
	// len = w.Width*w.Height. Bands are 1-based.
	Read(band int, w Window) ([]float64, error)
	Close() error
}

// OpenFunc opens the raster at path. The default is the GDAL opener; tests
// inject in-memory datasets.
type OpenFunc func(path string) (Dataset, error)

// ValidateBand checks a requested band number against the dataset header.
func ValidateBand(info Info, band int) error {
	if band < 1 || band > info.Bands {
		return fmt.Errorf("%w: band %d out of range [1,%d]", model.ErrValidation, band, info.Bands)
	}
	return nil
}
