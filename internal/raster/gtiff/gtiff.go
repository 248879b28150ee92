// Package gtiff opens GeoTIFF files through GDAL (godal). It is the only
// package that links against the GDAL C library; everything above it works
// with the raster.Dataset interface.
package gtiff

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"geoanalyzer/internal/model"
	"geoanalyzer/internal/proj"
	"geoanalyzer/internal/raster"
)

var registerOnce sync.Once

func init() {
	// serve any EPSG-coded CRS the built-in transforms don't cover
	proj.Register(func(crs string) (proj.Transformer, bool) {
		code, ok := epsgCode(crs)
		if !ok {
			return nil, false
		}
		tr, err := newTransformer(code)
		if err != nil {
			return nil, false
		}
		return tr, true
	})
}

// Open opens a raster file read-only and validates its georeferencing. The
// returned dataset holds a GDAL handle until Close.
func Open(path string) (raster.Dataset, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrRasterAccess, path, err)
	}

	info, err := describe(ds)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}
	return &dataset{ds: ds, info: info}, nil
}

type dataset struct {
	ds   *godal.Dataset
	info raster.Info

	mu     sync.Mutex
	closed bool
}

func (d *dataset) Info() raster.Info { return d.info }

func (d *dataset) Read(band int, w raster.Window) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: dataset closed", model.ErrRasterAccess)
	}
	if band < 1 || band > d.info.Bands {
		return nil, fmt.Errorf("%w: band %d out of range [1,%d]", model.ErrValidation, band, d.info.Bands)
	}
	if w.Width <= 0 || w.Height <= 0 {
		return nil, nil
	}

	buf := make([]float64, w.Width*w.Height)
	b := d.ds.Bands()[band-1]
	if err := b.Read(w.Col, w.Row, buf, w.Width, w.Height); err != nil {
		return nil, fmt.Errorf("%w: read window %dx%d at (%d,%d): %w",
			model.ErrRasterAccess, w.Width, w.Height, w.Col, w.Row, err)
	}
	return buf, nil
}

func (d *dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.ds.Close()
}

func describe(ds *godal.Dataset) (raster.Info, error) {
	st := ds.Structure()
	if st.SizeX <= 0 || st.SizeY <= 0 {
		return raster.Info{}, fmt.Errorf("%w: empty raster", model.ErrRasterAccess)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return raster.Info{}, fmt.Errorf("%w: no raster bands", model.ErrRasterAccess)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Info{}, fmt.Errorf("%w: no geotransform: %w", model.ErrRasterAccess, err)
	}
	// north-up grids only: rotation terms must be zero
	if gt[2] != 0 || gt[4] != 0 {
		return raster.Info{}, fmt.Errorf("%w: rotated or skewed grid not supported", model.ErrRasterAccess)
	}
	if gt[1] == 0 || gt[5] == 0 {
		return raster.Info{}, fmt.Errorf("%w: degenerate pixel size", model.ErrRasterAccess)
	}

	info := raster.Info{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Transform: gt,
		Bands:     len(bands),
	}
	if nd, ok := bands[0].NoData(); ok {
		info.NoData = &nd
	}

	sr := ds.SpatialRef()
	if sr != nil {
		info.Geographic = sr.Geographic()
		info.CRS = crsName(sr)
	}
	return info, nil
}

// crsName prefers the compact AUTHORITY:CODE form and falls back to WKT.
func crsName(sr *godal.SpatialRef) string {
	auth, code := sr.AuthorityName(""), sr.AuthorityCode("")
	if auth != "" && code != "" {
		return auth + ":" + code
	}
	if wkt, err := sr.WKT(); err == nil {
		return wkt
	}
	return ""
}

// transformer projects between WGS84 and one EPSG CRS through GDAL. A mutex
// serializes TransformEx calls; GDAL transform handles are not thread safe.
type transformer struct {
	mu  sync.Mutex
	fwd *godal.Transform
	inv *godal.Transform
}

func newTransformer(epsg int) (*transformer, error) {
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer wgs84.Close()
	native, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, err
	}
	defer native.Close()

	fwd, err := godal.NewTransform(wgs84, native)
	if err != nil {
		return nil, err
	}
	inv, err := godal.NewTransform(native, wgs84)
	if err != nil {
		fwd.Close()
		return nil, err
	}
	return &transformer{fwd: fwd, inv: inv}, nil
}

func (t *transformer) Forward(pts []orb.Point) ([]orb.Point, error) {
	return t.apply(t.fwd, pts)
}

func (t *transformer) Inverse(pts []orb.Point) ([]orb.Point, error) {
	return t.apply(t.inv, pts)
}

func (t *transformer) apply(tr *godal.Transform, pts []orb.Point) ([]orb.Point, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p[0], p[1]
	}
	ok := make([]bool, len(pts))
	if err := tr.TransformEx(xs, ys, nil, ok); err != nil {
		return nil, fmt.Errorf("%w: transform: %w", model.ErrGeometry, err)
	}
	out := make([]orb.Point, len(pts))
	for i := range pts {
		if !ok[i] {
			return nil, fmt.Errorf("%w: point %d not transformable", model.ErrGeometry, i)
		}
		out[i] = orb.Point{xs[i], ys[i]}
	}
	return out, nil
}

// epsgCode extracts the numeric code from identifiers like "EPSG:32633".
func epsgCode(crs string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(crs))
	if !strings.HasPrefix(s, "EPSG:") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "EPSG:"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
