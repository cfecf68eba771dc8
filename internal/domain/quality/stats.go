package quality

import (
	"math"
	"sort"
)

// madScale makes the median absolute deviation a consistent estimator of
// the standard deviation for normally distributed data.
const madScale = 1.4826

func mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// stddev is the sample standard deviation.
func stddev(data []float64) float64 {
	if len(data) <= 1 {
		return math.NaN()
	}
	m := mean(data)
	sumSquares := 0.0
	for _, v := range data {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(data)-1))
}

func median(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// mad returns the median absolute deviation around the median.
func mad(data []float64) float64 {
	med := median(data)
	dev := make([]float64, len(data))
	for i, v := range data {
		dev[i] = math.Abs(v - med)
	}
	return median(dev)
}

// OutlierMethod names the detector used for a series.
type OutlierMethod string

const (
	OutlierMAD    OutlierMethod = "mad"
	OutlierZScore OutlierMethod = "zscore"
	OutlierNone   OutlierMethod = "none"
)

// detectOutliers flags indexes of outlying values. Small samples use the
// scaled MAD, which is not dragged by a single extreme point; larger samples
// use the z-score.
func detectOutliers(values []float64, cfg Config) ([]int, OutlierMethod) {
	if len(values) < 3 {
		return nil, OutlierNone
	}
	var out []int
	if len(values) <= cfg.SmallSampleMax {
		med := median(values)
		scaled := madScale * mad(values)
		if scaled == 0 {
			return nil, OutlierMAD
		}
		for i, v := range values {
			if math.Abs(v-med)/scaled > cfg.MADThreshold {
				out = append(out, i)
			}
		}
		return out, OutlierMAD
	}

	m := mean(values)
	sd := stddev(values)
	if sd == 0 || math.IsNaN(sd) {
		return nil, OutlierZScore
	}
	for i, v := range values {
		if math.Abs(v-m)/sd > cfg.ZThreshold {
			out = append(out, i)
		}
	}
	return out, OutlierZScore
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
