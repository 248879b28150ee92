package raster

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"

	"geoanalyzer/internal/model"
	"geoanalyzer/internal/proj"
)

// Registry tracks uploaded rasters by an opaque identifier. It owns the
// backing temp files: Remove and CleanupAll delete them. Lookups, loads and
// unloads may interleave from concurrent requests.
type Registry struct {
	open OpenFunc
	dir  string

	mu      sync.RWMutex
	rasters map[string]model.RasterInfo
}

// NewRegistry creates a registry storing uploads under a fresh temp
// directory inside baseDir ("" means the OS default).
func NewRegistry(open OpenFunc, baseDir string) (*Registry, error) {
	dir, err := os.MkdirTemp(baseDir, "geoanalyzer_")
	if err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Registry{open: open, dir: dir, rasters: make(map[string]model.RasterInfo)}, nil
}

// Load stores the uploaded bytes, reads the raster header and registers the
// dataset under a fresh identifier.
func (r *Registry) Load(filename string, data []byte) (string, model.RasterInfo, error) {
	if len(data) == 0 {
		return "", model.RasterInfo{}, fmt.Errorf("%w: empty file", model.ErrValidation)
	}
	id := newID()
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".tif"
	}
	path := filepath.Join(r.dir, id+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", model.RasterInfo{}, fmt.Errorf("%w: write %s: %v", model.ErrRasterAccess, path, err)
	}

	info, err := Describe(r.open, path)
	if err != nil {
		_ = os.Remove(path)
		return "", model.RasterInfo{}, err
	}

	r.mu.Lock()
	r.rasters[id] = info
	r.mu.Unlock()
	return id, info, nil
}

// Get returns the metadata for a loaded raster.
func (r *Registry) Get(id string) (model.RasterInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.rasters[id]
	return info, ok
}

// Remove unloads a raster and deletes its backing file. Unknown identifiers
// are a no-op, matching the idempotent unload endpoint.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	info, ok := r.rasters[id]
	delete(r.rasters, id)
	r.mu.Unlock()
	if ok {
		_ = os.Remove(info.Path)
	}
	return ok
}

// CleanupAll unloads everything and removes the upload directory.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	infos := make([]model.RasterInfo, 0, len(r.rasters))
	for id, info := range r.rasters {
		infos = append(infos, info)
		delete(r.rasters, id)
	}
	r.mu.Unlock()
	for _, info := range infos {
		_ = os.Remove(info.Path)
	}
	_ = os.Remove(r.dir)
}

// Describe opens the raster at path and assembles its metadata, including
// the WGS84 bounds and exact corner ring (reprojected when the native CRS is
// not geographic).
func Describe(open OpenFunc, path string) (model.RasterInfo, error) {
	ds, err := open(path)
	if err != nil {
		return model.RasterInfo{}, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	hdr := ds.Info()
	tr, err := proj.ForCRS(hdr.CRS, hdr.Geographic)
	if err != nil {
		return model.RasterInfo{}, fmt.Errorf("raster CRS: %w", err)
	}

	w, h := float64(hdr.Width), float64(hdr.Height)
	corners := make([]orb.Point, 4)
	for i, px := range [4][2]float64{{0, h}, {w, h}, {w, 0}, {0, 0}} {
		x, y := hdr.PixelToWorld(px[0], px[1])
		corners[i] = orb.Point{x, y}
	}
	geo, err := tr.Inverse(corners)
	if err != nil {
		return model.RasterInfo{}, fmt.Errorf("%w: reproject raster corners: %v", model.ErrGeometry, err)
	}

	b := model.Bounds{West: geo[0][0], South: geo[0][1], East: geo[0][0], North: geo[0][1]}
	ring := make(orb.Ring, 0, 5)
	for _, p := range geo {
		b.West = min(b.West, p[0])
		b.East = max(b.East, p[0])
		b.South = min(b.South, p[1])
		b.North = max(b.North, p[1])
		ring = append(ring, p)
	}
	ring = append(ring, ring[0])

	resX, resY := hdr.Res()
	return model.RasterInfo{
		Path:       path,
		CRS:        hdr.CRS,
		Geographic: hdr.Geographic,
		Width:      hdr.Width,
		Height:     hdr.Height,
		ResX:       resX,
		ResY:       resY,
		Bands:      hdr.Bands,
		NoData:     hdr.NoData,
		Bounds:     b,
		BoundsRing: ring,
	}, nil
}

func newID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
