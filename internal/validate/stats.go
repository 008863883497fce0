package validate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentile probabilities reported in the stats summary, matching
// the nnU-Net-style fingerprint percentiles.
var statPercentiles = []float64{0.005, 0.10, 0.90, 0.995}

const statRound = 6

// Percentiles holds the fixed percentile set for one quantity.
type Percentiles struct {
	P0_5  *float64 `json:"p0_5"`
	P10   *float64 `json:"p10"`
	P90   *float64 `json:"p90"`
	P99_5 *float64 `json:"p99_5"`
}

// ScalarStats summarizes one scalar quantity across the dataset.
// Fields are nil when no finite samples exist.
type ScalarStats struct {
	Min         *float64    `json:"min"`
	Max         *float64    `json:"max"`
	Mean        *float64    `json:"mean"`
	Median      *float64    `json:"median"`
	Stdev       *float64    `json:"stdev"`
	Percentiles Percentiles `json:"percentiles"`
}

// VectorStats summarizes a per-axis quantity; each field carries one
// value per axis.
type VectorStats struct {
	Min         []float64          `json:"min"`
	Max         []float64          `json:"max"`
	Mean        []float64          `json:"mean"`
	Median      []float64          `json:"median"`
	Stdev       []float64          `json:"stdev"`
	Percentiles VectorPercentiles  `json:"percentiles"`
}

// VectorPercentiles is the per-axis percentile set.
type VectorPercentiles struct {
	P0_5  []float64 `json:"p0_5"`
	P10   []float64 `json:"p10"`
	P90   []float64 `json:"p90"`
	P99_5 []float64 `json:"p99_5"`
}

// ImageStats aggregates geometry and intensity statistics over the
// readable images of a dataset.
type ImageStats struct {
	Shape     VectorStats `json:"shape"`
	Channels  ScalarStats `json:"channels"`
	Spacing   VectorStats `json:"spacing"`
	SizeMM    VectorStats `json:"size_mm"`
	Intensity ScalarStats `json:"intensity"`
}

// StatsSummary is the dataset statistics block of the report.
type StatsSummary struct {
	NCases     int        `json:"n_cases"`
	ImageStats ImageStats `json:"image_stats"`
}

// BuildStatsSummary computes the statistics block from checked
// records. Unreadable images and label-only entries are skipped;
// intensity pools every finite voxel across images.
func BuildStatsSummary(records []*FileRecord) *StatsSummary {
	var shapes, spacings, sizes [][3]float64
	var channels []float64
	var intensity []float64
	nCases := 0

	for _, rec := range records {
		img := rec.Image
		if img == nil {
			continue
		}
		nCases++
		if !img.Readable || len(img.Shape) < 3 || rec.HasIssue(IssueShapeInvalid) {
			continue
		}

		sh := img.SpatialShape()
		shape := [3]float64{float64(sh[0]), float64(sh[1]), float64(sh[2])}
		shapes = append(shapes, shape)
		spacings = append(spacings, img.Spacing)
		sizes = append(sizes, [3]float64{
			shape[0] * img.Spacing[0],
			shape[1] * img.Spacing[1],
			shape[2] * img.Spacing[2],
		})
		channels = append(channels, float64(img.Channels()))

		if data, err := img.Data(); err == nil {
			for _, v := range data {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					intensity = append(intensity, v)
				}
			}
		}
	}

	return &StatsSummary{
		NCases: nCases,
		ImageStats: ImageStats{
			Shape:     vectorStats(shapes),
			Channels:  scalarStats(channels),
			Spacing:   vectorStats(spacings),
			SizeMM:    vectorStats(sizes),
			Intensity: scalarStats(intensity),
		},
	}
}

func scalarStats(values []float64) ScalarStats {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return ScalarStats{}
	}
	sorted := append([]float64(nil), finite...)
	sort.Float64s(sorted)

	qs := make([]float64, len(statPercentiles))
	for i, p := range statPercentiles {
		qs[i] = stat.Quantile(p, stat.LinInterp, sorted, nil)
	}
	return ScalarStats{
		Min:    roundPtr(sorted[0]),
		Max:    roundPtr(sorted[len(sorted)-1]),
		Mean:   roundPtr(stat.Mean(sorted, nil)),
		Median: roundPtr(stat.Quantile(0.5, stat.LinInterp, sorted, nil)),
		Stdev:  roundPtr(stat.PopStdDev(sorted, nil)),
		Percentiles: Percentiles{
			P0_5:  roundPtr(qs[0]),
			P10:   roundPtr(qs[1]),
			P90:   roundPtr(qs[2]),
			P99_5: roundPtr(qs[3]),
		},
	}
}

func vectorStats(values [][3]float64) VectorStats {
	if len(values) == 0 {
		return VectorStats{}
	}
	perAxis := make([]ScalarStats, 3)
	for axis := 0; axis < 3; axis++ {
		col := make([]float64, len(values))
		for i, v := range values {
			col[i] = v[axis]
		}
		perAxis[axis] = scalarStats(col)
	}

	pick := func(f func(ScalarStats) *float64) []float64 {
		out := make([]float64, 3)
		for i := range perAxis {
			if p := f(perAxis[i]); p != nil {
				out[i] = *p
			}
		}
		return out
	}
	return VectorStats{
		Min:    pick(func(s ScalarStats) *float64 { return s.Min }),
		Max:    pick(func(s ScalarStats) *float64 { return s.Max }),
		Mean:   pick(func(s ScalarStats) *float64 { return s.Mean }),
		Median: pick(func(s ScalarStats) *float64 { return s.Median }),
		Stdev:  pick(func(s ScalarStats) *float64 { return s.Stdev }),
		Percentiles: VectorPercentiles{
			P0_5:  pick(func(s ScalarStats) *float64 { return s.Percentiles.P0_5 }),
			P10:   pick(func(s ScalarStats) *float64 { return s.Percentiles.P10 }),
			P90:   pick(func(s ScalarStats) *float64 { return s.Percentiles.P90 }),
			P99_5: pick(func(s ScalarStats) *float64 { return s.Percentiles.P99_5 }),
		},
	}
}

func roundPtr(v float64) *float64 {
	scale := math.Pow(10, statRound)
	r := math.Round(v*scale) / scale
	return &r
}
