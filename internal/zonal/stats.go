package zonal

import (
	"math"
	"sort"

	"geoanalyzer/internal/model"
)

// contribution is one pixel's value and its coverage weight (1 for the mask
// strategy, a fraction for the exact strategy). Only weights > 0 are kept.
type contribution struct {
	value  float64
	weight float64
}

// aggregate computes the requested statistics over the contributing pixels.
// The key set of the result is exactly the requested names; unrecognized
// names map to NaN. Zero contributions yield sum=0, count=0 and NaN for the
// value-shaped statistics.
func aggregate(stats []model.Stat, contrib []contribution) model.StatMap {
	var (
		sumW, sumWV, sumWV2 float64
		minV                = math.Inf(1)
		maxV                = math.Inf(-1)
	)
	for _, c := range contrib {
		sumW += c.weight
		sumWV += c.weight * c.value
		sumWV2 += c.weight * c.value * c.value
		minV = math.Min(minV, c.value)
		maxV = math.Max(maxV, c.value)
	}

	empty := len(contrib) == 0 || sumW <= 0
	out := make(model.StatMap, len(stats))
	for _, s := range stats {
		switch s {
		case model.StatSum:
			out[string(s)] = sumWV
		case model.StatCount:
			// contributing pixels, not pixel-area
			out[string(s)] = float64(len(contrib))
		case model.StatMean:
			if empty {
				out[string(s)] = math.NaN()
			} else {
				out[string(s)] = sumWV / sumW
			}
		case model.StatMin:
			if empty {
				out[string(s)] = math.NaN()
			} else {
				out[string(s)] = minV
			}
		case model.StatMax:
			if empty {
				out[string(s)] = math.NaN()
			} else {
				out[string(s)] = maxV
			}
		case model.StatStdev:
			if empty {
				out[string(s)] = math.NaN()
			} else {
				mean := sumWV / sumW
				variance := sumWV2/sumW - mean*mean
				if variance < 0 {
					variance = 0
				}
				out[string(s)] = math.Sqrt(variance)
			}
		case model.StatMedian:
			if empty {
				out[string(s)] = math.NaN()
			} else {
				out[string(s)] = weightedMedian(contrib, sumW)
			}
		default:
			out[string(s)] = math.NaN()
		}
	}
	return out
}

// weightedMedian returns the smallest value whose cumulative weight exceeds
// half the total. When the cumulative weight lands exactly on half, the value
// is averaged with the next one; with unit weights (the mask strategy) that
// is the ordinary interpolated median of an even-sized set.
func weightedMedian(contrib []contribution, sumW float64) float64 {
	sorted := make([]contribution, len(contrib))
	copy(sorted, contrib)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].value < sorted[j].value })

	half := sumW / 2
	acc := 0.0
	for i, c := range sorted {
		acc += c.weight
		if acc == half && i+1 < len(sorted) {
			return (c.value + sorted[i+1].value) / 2
		}
		if acc >= half {
			return c.value
		}
	}
	return sorted[len(sorted)-1].value
}
