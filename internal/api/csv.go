package api

import (
	"bytes"
	"encoding/csv"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"geoanalyzer/internal/model"
)

type exportRequest struct {
	Results []model.QueryResult `json:"results"`
}

// ExportCSV flattens query results into a CSV table. Metadata keys (leading
// underscore) are skipped; columns are the union of stat keys, sorted, with
// the label first.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, "no results")
		return
	}

	seen := map[string]bool{}
	for _, res := range req.Results {
		for k := range res.Stats {
			if !strings.HasPrefix(k, "_") {
				seen[k] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(append([]string{"label"}, keys...))
	for _, res := range req.Results {
		row := make([]string, 0, len(keys)+1)
		row = append(row, res.Label)
		for _, k := range keys {
			v, ok := res.Stats[k]
			if !ok || math.IsNaN(v) {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"csv": buf.String()})
}
