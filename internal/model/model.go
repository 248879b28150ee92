// Package model defines core domain types shared across the service.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Error kinds surfaced by the core. Wrapped with fmt.Errorf("...: %w", ...)
// so callers can classify with errors.Is.
var (
	ErrValidation   = errors.New("invalid input")
	ErrRasterAccess = errors.New("raster access failed")
	ErrGeometry     = errors.New("invalid geometry")
	ErrComputation  = errors.New("computation failed")
)

// Bounds is a WGS84 bounding box.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (b Bounds) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

// RasterInfo describes one loaded raster. Bounds and BoundsRing are always in
// WGS84 regardless of the raster's native CRS. Immutable after load.
type RasterInfo struct {
	Path       string
	CRS        string
	Geographic bool
	Width      int
	Height     int
	ResX       float64
	ResY       float64
	Bands      int
	NoData     *float64
	Bounds     Bounds
	BoundsRing orb.Ring
}

// QueryResult is one labeled output unit of an orchestrator. Stats keys are
// exactly the requested stat names, plus reserved "_"-prefixed metadata
// fields (display-only, excluded from tabular export).
type QueryResult struct {
	Label    string            `json:"label"`
	Geometry *geojson.Geometry `json:"geometry"`
	Stats    StatMap           `json:"stats"`
}

// StatMap holds computed statistic values keyed by name. JSON has no NaN
// literal, so NaN and the infinities encode as null and decode back to NaN.
type StatMap map[string]float64

func (m StatMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		v := m[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteString("null")
		} else {
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (m *StatMap) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StatMap, len(raw))
	for k, v := range raw {
		if v == nil {
			out[k] = math.NaN()
		} else {
			out[k] = *v
		}
	}
	*m = out
	return nil
}

// NamedPoint is one comparison location for the compare query.
type NamedPoint struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Reserved metadata keys attached by the compare orchestrator. The leading
// underscore marks them as non-statistic fields.
const (
	MetaLat = "_lat"
	MetaLon = "_lon"
)

// Stat is one recognized zonal statistic.
type Stat string

const (
	StatSum    Stat = "sum"
	StatMean   Stat = "mean"
	StatMax    Stat = "max"
	StatMin    Stat = "min"
	StatCount  Stat = "count"
	StatStdev  Stat = "stdev"
	StatMedian Stat = "median"
)

// Stats is the closed statistic vocabulary, in canonical order.
var Stats = []Stat{StatSum, StatMean, StatMax, StatMin, StatCount, StatStdev, StatMedian}

// Known reports whether s names a recognized statistic.
func (s Stat) Known() bool {
	for _, k := range Stats {
		if s == k {
			return true
		}
	}
	return false
}

// FilterStats drops unrecognized names and defaults to [sum] when nothing
// recognized remains. The engine itself never rejects a name; dropping
// happens here at the boundary.
func FilterStats(names []string) []Stat {
	out := make([]Stat, 0, len(names))
	for _, n := range names {
		if s := Stat(n); s.Known() {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = []Stat{StatSum}
	}
	return out
}
