// Package api implements the HTTP handlers for raster management, zonal
// statistics queries, and CSV export.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	h3 "github.com/uber/h3-go/v4"

	"geoanalyzer/internal/hotness"
	"geoanalyzer/internal/logger"
	"geoanalyzer/internal/model"
	"geoanalyzer/internal/observability"
	"geoanalyzer/internal/query"
	"geoanalyzer/internal/raster"
	"geoanalyzer/internal/resultcache"
	"geoanalyzer/internal/zonal"
)

// TTLPolicy maps query hotness to a cache TTL.
type TTLPolicy struct {
	Default   time.Duration
	Cold      time.Duration
	Warm      time.Duration
	Hot       time.Duration
	Threshold float64
	H3Res     int
}

func (p TTLPolicy) ttlFor(score float64) time.Duration {
	switch hotness.Classify(score, p.Threshold) {
	case hotness.Hot:
		if p.Hot > 0 {
			return p.Hot
		}
	case hotness.Warm:
		if p.Warm > 0 {
			return p.Warm
		}
	default:
		if p.Cold > 0 {
			return p.Cold
		}
	}
	return p.Default
}

type Handlers struct {
	log            *slog.Logger
	reg            *raster.Registry
	runner         *query.Runner
	engine         *zonal.Engine
	cache          resultcache.Interface
	hot            hotness.Tracker
	ttl            TTLPolicy
	maxUploadBytes int64
}

func New(log *slog.Logger, reg *raster.Registry, runner *query.Runner, engine *zonal.Engine,
	cache resultcache.Interface, hot hotness.Tracker, ttl TTLPolicy, maxUploadBytes int64) *Handlers {
	if cache == nil {
		cache = resultcache.Disabled{}
	}
	if hot == nil {
		hot = hotness.Nop{}
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 512 << 20
	}
	return &Handlers{
		log:            log,
		reg:            reg,
		runner:         runner,
		engine:         engine,
		cache:          cache,
		hot:            hot,
		ttl:            ttl,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes mounts all /api endpoints on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/api/status", h.Status)
	r.Post("/api/upload", h.Upload)
	r.Delete("/api/unload/{rasterID}", h.Unload)
	r.Post("/api/query/circle", h.QueryCircle)
	r.Post("/api/query/band", h.QueryBand)
	r.Post("/api/query/rect", h.QueryRect)
	r.Post("/api/query/compare", h.QueryCompare)
	r.Post("/api/export/csv", h.ExportCSV)
}

func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"strategy": string(h.engine.Strategy()),
	})
}

type uploadResponse struct {
	RasterID      string       `json:"raster_id"`
	Filename      string       `json:"filename"`
	CRS           string       `json:"crs"`
	Width         int          `json:"width"`
	Height        int          `json:"height"`
	Res           [2]float64   `json:"res"`
	Bands         int          `json:"bands"`
	NoData        *float64     `json:"nodata"`
	Bounds        model.Bounds `json:"bounds"`
	BoundsPolygon [][2]float64 `json:"bounds_polygon"`
}

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer func() { _ = f.Close() }()
	if hdr.Filename == "" {
		writeError(w, http.StatusBadRequest, "empty filename")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	id, info, err := h.reg.Load(hdr.Filename, data)
	observability.RasterLoaded(err)
	if err != nil {
		h.log.Error("raster load failed", "filename", hdr.Filename, "err", err)
		writeError(w, http.StatusBadRequest, "failed to load raster: "+err.Error())
		return
	}

	ring := make([][2]float64, len(info.BoundsRing))
	for i, p := range info.BoundsRing {
		ring[i] = [2]float64{p[0], p[1]}
	}

	h.log.InfoContext(logger.WithRasterID(r.Context(), id), "raster loaded",
		"filename", hdr.Filename, "crs", info.CRS,
		"width", info.Width, "height", info.Height, "bands", info.Bands)

	writeJSON(w, http.StatusOK, uploadResponse{
		RasterID:      id,
		Filename:      hdr.Filename,
		CRS:           info.CRS,
		Width:         info.Width,
		Height:        info.Height,
		Res:           [2]float64{info.ResX, info.ResY},
		Bands:         info.Bands,
		NoData:        info.NoData,
		Bounds:        info.Bounds,
		BoundsPolygon: ring,
	})
}

func (h *Handlers) Unload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rasterID")
	if h.reg.Remove(id) {
		observability.RasterUnloaded()
	}
	h.cache.InvalidateRaster(r.Context(), id)
	h.log.InfoContext(logger.WithRasterID(r.Context(), id), "raster unloaded")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// common fields shared by every query request body
type queryCommon struct {
	RasterID string   `json:"raster_id"`
	Stats    []string `json:"stats"`
	Band     int      `json:"band"`
}

func (h *Handlers) resolve(c queryCommon) (model.RasterInfo, []model.Stat, error) {
	if c.RasterID == "" {
		return model.RasterInfo{}, nil, errors.New("missing raster_id")
	}
	info, ok := h.reg.Get(c.RasterID)
	if !ok {
		return model.RasterInfo{}, nil, errors.New("raster not found; upload first")
	}
	return info, model.FilterStats(c.Stats), nil
}

type resultsResponse struct {
	Results []model.QueryResult `json:"results"`
}

// runCached answers a query from the result cache or computes it, storing the
// response with a TTL scaled by how hot the query's area is. payload must
// deterministically encode every parameter the result depends on.
func (h *Handlers) runCached(w http.ResponseWriter, r *http.Request, shape, rasterID string,
	payload []byte, hotKey string, run func() ([]model.QueryResult, error)) {
	start := time.Now()
	key := resultcache.Key(rasterID, shape, payload)
	score := h.hot.Touch(hotKey)

	if body, ok := h.cache.Get(r.Context(), key); ok {
		observability.IncCacheHit()
		observability.ObserveQuery(shape, string(h.engine.Strategy()), nil, time.Since(start).Seconds())
		writeBody(w, body)
		return
	}
	observability.IncCacheMiss()

	results, err := run()
	observability.ObserveQuery(shape, string(h.engine.Strategy()), err, time.Since(start).Seconds())
	if err != nil {
		h.log.Error("query failed", "shape", shape, "raster_id", rasterID, "err", err)
		writeErr(w, err)
		return
	}

	body, err := json.Marshal(resultsResponse{Results: results})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cache.Set(r.Context(), key, body, h.ttl.ttlFor(score))
	writeBody(w, body)
}

// hotKey buckets a query center into an H3 cell so nearby queries share one
// hotness counter.
func (h *Handlers) hotKey(lon, lat float64) string {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, h.ttl.H3Res)
	if err != nil {
		return "invalid"
	}
	return cell.String()
}

type circleRequest struct {
	queryCommon
	Lon     float64   `json:"lon"`
	Lat     float64   `json:"lat"`
	RadiiKM []float64 `json:"radii_km"`
}

func (h *Handlers) QueryCircle(w http.ResponseWriter, r *http.Request) {
	var req circleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, stats, err := h.resolve(req.queryCommon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Stats = statNames(stats)
	payload, _ := json.Marshal(req)
	h.runCached(w, r, "circle", req.RasterID, payload, h.hotKey(req.Lon, req.Lat),
		func() ([]model.QueryResult, error) {
			return h.runner.Circle(info.Path, req.Lon, req.Lat, req.RadiiKM, stats, req.Band)
		})
}

type bandRequest struct {
	queryCommon
	Lon     float64   `json:"lon"`
	Lat     float64   `json:"lat"`
	EdgesKM []float64 `json:"edges_km"`
}

func (h *Handlers) QueryBand(w http.ResponseWriter, r *http.Request) {
	var req bandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, stats, err := h.resolve(req.queryCommon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Stats = statNames(stats)
	payload, _ := json.Marshal(req)
	h.runCached(w, r, "band", req.RasterID, payload, h.hotKey(req.Lon, req.Lat),
		func() ([]model.QueryResult, error) {
			return h.runner.Band(info.Path, req.Lon, req.Lat, req.EdgesKM, stats, req.Band)
		})
}

type rectRequest struct {
	queryCommon
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	HalfWKM float64 `json:"half_w_km"`
	HalfHKM float64 `json:"half_h_km"`
}

func (h *Handlers) QueryRect(w http.ResponseWriter, r *http.Request) {
	var req rectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, stats, err := h.resolve(req.queryCommon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Stats = statNames(stats)
	payload, _ := json.Marshal(req)
	h.runCached(w, r, "rect", req.RasterID, payload, h.hotKey(req.Lon, req.Lat),
		func() ([]model.QueryResult, error) {
			return h.runner.Rect(info.Path, req.Lon, req.Lat, req.HalfWKM, req.HalfHKM, stats, req.Band)
		})
}

type compareRequest struct {
	queryCommon
	Points   []model.NamedPoint `json:"points"`
	RadiusKM float64            `json:"radius_km"`
}

func (h *Handlers) QueryCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, stats, err := h.resolve(req.queryCommon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Points) == 0 {
		writeError(w, http.StatusBadRequest, "no points provided")
		return
	}
	req.Stats = statNames(stats)
	payload, _ := json.Marshal(req)
	// hotness keyed on the first point; the cache key covers the full list
	h.runCached(w, r, "compare", req.RasterID, payload, h.hotKey(req.Points[0].Lon, req.Points[0].Lat),
		func() ([]model.QueryResult, error) {
			return h.runner.Compare(info.Path, req.Points, req.RadiusKM, stats, req.Band)
		})
}

func statNames(stats []model.Stat) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = string(s)
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps domain error kinds to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrRasterAccess):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrGeometry):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
