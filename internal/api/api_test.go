package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"geoanalyzer/internal/api"
	"geoanalyzer/internal/hotness"
	"geoanalyzer/internal/logger"
	"geoanalyzer/internal/model"
	"geoanalyzer/internal/query"
	"geoanalyzer/internal/raster"
	"geoanalyzer/internal/resultcache"
	"geoanalyzer/internal/zonal"
)

type testEnv struct {
	router *chi.Mux
	reg    *raster.Registry
}

// newEnv wires the full handler stack against an in-memory dataset that the
// opener serves for any path the registry writes.
func newEnv(t *testing.T) *testEnv {
	t.Helper()

	d := raster.NewMem(model.Bounds{West: 0, South: 0, East: 1, North: 1}, 8, 8, 10)
	open := func(path string) (raster.Dataset, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRasterAccess, err)
		}
		return d, nil
	}

	reg, err := raster.NewRegistry(open, t.TempDir())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(reg.CleanupAll)

	engine := zonal.New(open, zonal.StrategyExact)
	runner := query.NewRunner(engine, 64)
	zl := logger.Build(logger.Config{Level: "error"}, io.Discard)
	cache := resultcache.NewMemory(64)

	h := api.New(logger.NewSlog(&zl), reg, runner, engine, cache, hotness.NewDecay(time.Minute),
		api.TTLPolicy{Default: time.Minute, Threshold: 10, H3Res: 5}, 0)

	r := chi.NewRouter()
	h.Routes(r)
	return &testEnv{router: r, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "dem.tif")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("not-a-real-tif")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RasterID string       `json:"raster_id"`
		Width    int          `json:"width"`
		Height   int          `json:"height"`
		Bounds   model.Bounds `json:"bounds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if len(resp.RasterID) != 12 {
		t.Fatalf("raster_id %q, want 12 hex chars", resp.RasterID)
	}
	if resp.Width != 8 || resp.Height != 8 {
		t.Fatalf("dimensions %dx%d, want 8x8", resp.Width, resp.Height)
	}
	return resp.RasterID
}

type results struct {
	Results []model.QueryResult `json:"results"`
}

func decodeResults(t *testing.T, w *httptest.ResponseRecorder) []model.QueryResult {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var r results
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	return r.Results
}

func TestStatus(t *testing.T) {
	env := newEnv(t)
	w := env.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		OK       bool   `json:"ok"`
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Strategy != "exact" {
		t.Fatalf("unexpected status body: %s", w.Body.String())
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	env := newEnv(t)
	w := env.do(t, http.MethodPost, "/api/upload", map[string]string{"not": "a file"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestQueryCircle(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/api/query/circle", map[string]any{
		"raster_id": id,
		"lon":       0.5,
		"lat":       0.5,
		"radii_km":  []float64{5},
		"stats":     []string{"sum", "count"},
	})
	res := decodeResults(t, w)
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if res[0].Label != "5 km" {
		t.Fatalf("label %q, want %q", res[0].Label, "5 km")
	}
	if res[0].Stats["sum"] <= 0 {
		t.Fatalf("sum %v, want > 0", res[0].Stats["sum"])
	}
	if res[0].Geometry == nil {
		t.Fatal("missing geometry")
	}
}

func TestQueryCircleServedFromCache(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	body := map[string]any{
		"raster_id": id,
		"lon":       0.5,
		"lat":       0.5,
		"radii_km":  []float64{5},
		"stats":     []string{"sum"},
	}
	first := decodeResults(t, env.do(t, http.MethodPost, "/api/query/circle", body))

	// break the backing file; a second identical query must still succeed
	info, ok := env.reg.Get(id)
	if !ok {
		t.Fatal("raster disappeared from registry")
	}
	if err := os.Remove(info.Path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	second := decodeResults(t, env.do(t, http.MethodPost, "/api/query/circle", body))
	if second[0].Stats["sum"] != first[0].Stats["sum"] {
		t.Fatalf("cached sum %v != original %v", second[0].Stats["sum"], first[0].Stats["sum"])
	}
}

func TestQueryValidation(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing raster_id", map[string]any{"lon": 0.5, "lat": 0.5, "radii_km": []float64{1}}},
		{"unknown raster_id", map[string]any{"raster_id": "ffffffffffff", "lon": 0.5, "lat": 0.5, "radii_km": []float64{1}}},
		{"empty radii", map[string]any{"raster_id": id, "lon": 0.5, "lat": 0.5, "radii_km": []float64{}}},
		{"bad band", map[string]any{"raster_id": id, "lon": 0.5, "lat": 0.5, "radii_km": []float64{1}, "band": 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/query/circle", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestQueryBand(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/api/query/band", map[string]any{
		"raster_id": id,
		"lon":       0.5,
		"lat":       0.5,
		"edges_km":  []float64{0, 5, 10},
		"stats":     []string{"sum"},
	})
	res := decodeResults(t, w)
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
	if res[0].Label != "0–5 km" || res[1].Label != "5–10 km" {
		t.Fatalf("labels %q, %q", res[0].Label, res[1].Label)
	}
}

func TestQueryRect(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/api/query/rect", map[string]any{
		"raster_id": id,
		"lon":       0.5,
		"lat":       0.5,
		"half_w_km": 5,
		"half_h_km": 10,
		"stats":     []string{"sum"},
	})
	res := decodeResults(t, w)
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if res[0].Label != "10×20 km" {
		t.Fatalf("label %q", res[0].Label)
	}
}

func TestQueryCompare(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/api/query/compare", map[string]any{
		"raster_id": id,
		"radius_km": 5,
		"points": []map[string]any{
			{"name": "alpha", "lat": 0.25, "lon": 0.25},
			{"name": "beta", "lat": 0.75, "lon": 0.75},
		},
		"stats": []string{"sum"},
	})
	res := decodeResults(t, w)
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
	if res[0].Label != "alpha" || res[1].Label != "beta" {
		t.Fatalf("labels %q, %q", res[0].Label, res[1].Label)
	}
	if res[0].Stats[model.MetaLat] != 0.25 || res[0].Stats[model.MetaLon] != 0.25 {
		t.Fatalf("missing point metadata: %v", res[0].Stats)
	}

	w = env.do(t, http.MethodPost, "/api/query/compare", map[string]any{
		"raster_id": id,
		"radius_km": 5,
		"points":    []map[string]any{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty points: status %d, want 400", w.Code)
	}
}

func TestUnload(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	w := env.do(t, http.MethodDelete, "/api/unload/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unload status %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/query/circle", map[string]any{
		"raster_id": id,
		"lon":       0.5,
		"lat":       0.5,
		"radii_km":  []float64{1},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("query after unload: status %d, want 400", w.Code)
	}

	// unloading an unknown id is not an error
	w = env.do(t, http.MethodDelete, "/api/unload/nosuchraster", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unload unknown: status %d", w.Code)
	}
}

func TestExportCSV(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/export/csv", map[string]any{
		"results": []map[string]any{
			{"label": "alpha", "stats": map[string]float64{"sum": 12.5, "count": 3, "_lat": 0.25}},
			{"label": "beta", "stats": map[string]float64{"sum": 7}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		CSV string `json:"csv"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(resp.CSV), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), resp.CSV)
	}
	if lines[0] != "label,count,sum" {
		t.Fatalf("header %q", lines[0])
	}
	if lines[1] != "alpha,3,12.5" {
		t.Fatalf("row %q", lines[1])
	}
	if lines[2] != "beta,,7" {
		t.Fatalf("row %q", lines[2])
	}
	if strings.Contains(resp.CSV, "_lat") {
		t.Fatal("metadata column leaked into CSV")
	}
}

func TestExportCSVEmpty(t *testing.T) {
	env := newEnv(t)
	w := env.do(t, http.MethodPost, "/api/export/csv", map[string]any{"results": []any{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestStatsDefaultToSum(t *testing.T) {
	env := newEnv(t)
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/api/query/circle", map[string]any{
		"raster_id": id,
		"lon":       0.5,
		"lat":       0.5,
		"radii_km":  []float64{5},
		"stats":     []string{"nonsense"},
	})
	res := decodeResults(t, w)
	if _, ok := res[0].Stats["sum"]; !ok {
		t.Fatalf("expected default sum stat, got %v", res[0].Stats)
	}
	// unrecognized names are dropped at the boundary, never computed
	if _, ok := res[0].Stats["nonsense"]; ok {
		t.Fatalf("unrecognized stat leaked: %v", res[0].Stats)
	}
}
