package raster

import (
	"fmt"
	"sync"

	"geoanalyzer/internal/model"
)

// MemDataset is an in-memory single-band raster. It backs tests and the
// synthetic rasters used to exercise the statistics engine without GDAL.
type MemDataset struct {
	Meta Info
	// Pix is row-major, row 0 at the top, len = Width*Height.
	Pix []float64
}

var _ Dataset = (*MemDataset)(nil)

// NewMem builds a geographic in-memory raster covering the given WGS84
// bounds with the given grid size and constant fill value.
func NewMem(b model.Bounds, width, height int, fill float64) *MemDataset {
	resX := (b.East - b.West) / float64(width)
	resY := (b.North - b.South) / float64(height)
	pix := make([]float64, width*height)
	for i := range pix {
		pix[i] = fill
	}
	return &MemDataset{
		Meta: Info{
			CRS:        "EPSG:4326",
			Geographic: true,
			Width:      width,
			Height:     height,
			Transform:  [6]float64{b.West, resX, 0, b.North, 0, -resY},
			Bands:      1,
		},
		Pix: pix,
	}
}

func (d *MemDataset) Info() Info { return d.Meta }

func (d *MemDataset) Read(band int, w Window) ([]float64, error) {
	if err := ValidateBand(d.Meta, band); err != nil {
		return nil, err
	}
	cw, ok := Window{Col: w.Col, Row: w.Row, Width: w.Width, Height: w.Height}.Clip(d.Meta.Width, d.Meta.Height)
	if !ok || cw != w {
		return nil, fmt.Errorf("%w: window %+v outside raster %dx%d",
			model.ErrRasterAccess, w, d.Meta.Width, d.Meta.Height)
	}
	out := make([]float64, w.Width*w.Height)
	for r := 0; r < w.Height; r++ {
		src := (w.Row+r)*d.Meta.Width + w.Col
		copy(out[r*w.Width:(r+1)*w.Width], d.Pix[src:src+w.Width])
	}
	return out, nil
}

func (d *MemDataset) Close() error { return nil }

// Set writes one pixel value (row 0 at the top).
func (d *MemDataset) Set(col, row int, v float64) {
	d.Pix[row*d.Meta.Width+col] = v
}

// MemOpener maps paths to in-memory datasets; its Open satisfies OpenFunc.
type MemOpener struct {
	mu sync.RWMutex
	m  map[string]*MemDataset
}

func NewMemOpener() *MemOpener {
	return &MemOpener{m: make(map[string]*MemDataset)}
}

func (o *MemOpener) Add(path string, d *MemDataset) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[path] = d
}

func (o *MemOpener) Open(path string) (Dataset, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	d, ok := o.m[path]
	if !ok {
		return nil, fmt.Errorf("%w: no dataset at %q", model.ErrRasterAccess, path)
	}
	return d, nil
}
