package progression

import (
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
)

// Interval is the change between two adjacent measurements.
type Interval struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Days            float64   `json:"days"`
	DepthDeltaMM    *float64  `json:"depth_delta_mm,omitempty"`
	DepthRateMMWeek *float64  `json:"depth_rate_mm_per_week,omitempty"`
	AreaDeltaPct    *float64  `json:"area_delta_pct,omitempty"`
	VolumeDeltaPct  *float64  `json:"volume_delta_pct,omitempty"`
}

// Intervals returns the adjacent-pair changes of a time-ordered series.
// Fields are nil where either side lacks the value.
func Intervals(series measurement.Series) []Interval {
	out := make([]Interval, 0, len(series))
	for i := 1; i < len(series); i++ {
		prev, next := series[i-1], series[i]
		iv := Interval{From: prev.Timestamp, To: next.Timestamp}
		iv.Days = next.Timestamp.Sub(prev.Timestamp).Hours() / 24

		if prev.DepthMM != nil && next.DepthMM != nil {
			d := *next.DepthMM - *prev.DepthMM
			iv.DepthDeltaMM = &d
			if iv.Days > 0 {
				r := d / (iv.Days / 7)
				iv.DepthRateMMWeek = &r
			}
		}
		if prev.AreaCM2 > 0 {
			p := (next.AreaCM2 - prev.AreaCM2) / prev.AreaCM2 * 100
			iv.AreaDeltaPct = &p
		}
		if prev.Volume != nil && next.Volume != nil && prev.Volume.CM3 > 0 {
			p := (next.Volume.CM3 - prev.Volume.CM3) / prev.Volume.CM3 * 100
			iv.VolumeDeltaPct = &p
		}
		out = append(out, iv)
	}
	return out
}

type volumePoint struct {
	at  time.Time
	cm3 float64
}

func volumes(series measurement.Series) []volumePoint {
	out := make([]volumePoint, 0, len(series))
	for _, n := range series {
		if n.Volume != nil {
			out = append(out, volumePoint{at: n.Timestamp, cm3: n.Volume.CM3})
		}
	}
	return out
}

// MaxChangeWithin returns the largest increase of value between any two
// points no more than days apart. Points must be time-ordered.
func MaxChangeWithin(times []time.Time, values []float64, days float64) float64 {
	best := 0.0
	for i := range values {
		for j := i + 1; j < len(values); j++ {
			if times[j].Sub(times[i]).Hours()/24 > days {
				break
			}
			if d := values[j] - values[i]; d > best {
				best = d
			}
		}
	}
	return best
}

// MaxPctIncreaseWithin is MaxChangeWithin expressed relative to the earlier
// point, in percent. Non-positive starting values are skipped.
func MaxPctIncreaseWithin(times []time.Time, values []float64, days float64) float64 {
	best := 0.0
	for i := range values {
		if values[i] <= 0 {
			continue
		}
		for j := i + 1; j < len(values); j++ {
			if times[j].Sub(times[i]).Hours()/24 > days {
				break
			}
			if p := (values[j] - values[i]) / values[i] * 100; p > best {
				best = p
			}
		}
	}
	return best
}

// DepthPoints returns the timestamps and depths (mm) of the series entries
// that carry a depth.
func DepthPoints(series measurement.Series) ([]time.Time, []float64) {
	var ts []time.Time
	var vs []float64
	for _, n := range series {
		if n.DepthMM != nil {
			ts = append(ts, n.Timestamp)
			vs = append(vs, *n.DepthMM)
		}
	}
	return ts, vs
}

// VolumePoints returns the timestamps and volumes (cm³) of the series entries
// that carry a volume estimate.
func VolumePoints(series measurement.Series) ([]time.Time, []float64) {
	vols := volumes(series)
	ts := make([]time.Time, len(vols))
	vs := make([]float64, len(vols))
	for i, v := range vols {
		ts[i], vs[i] = v.at, v.cm3
	}
	return ts, vs
}

// RecordedVolumePoints is VolumePoints restricted to volumes measured by the
// clinician. Estimated volumes are derived from depth and would count a
// depth change twice.
func RecordedVolumePoints(series measurement.Series) ([]time.Time, []float64) {
	var ts []time.Time
	var vs []float64
	for _, n := range series {
		if n.Volume != nil && n.Volume.Method == measurement.VolumeRecorded {
			ts = append(ts, n.Timestamp)
			vs = append(vs, n.Volume.CM3)
		}
	}
	return ts, vs
}
