package measurement

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ehr/woundcare/internal/platform/audit"
)

// NormalizeMeasurement converts a raw measurement to standard units, selects
// its authoritative area and estimates volume. Unsupported units and negative
// or non-finite dimensions are returned as errors; implausible values are kept
// and flagged.
func NormalizeMeasurement(m Measurement, location string) (Normalized, error) {
	if m.Timestamp.IsZero() {
		return Normalized{}, fmt.Errorf("%w: missing timestamp", ErrInvalidMeasurement)
	}

	n := Normalized{
		Timestamp:        m.Timestamp,
		Method:           m.Method,
		RecordedBy:       m.RecordedBy,
		ValidationStatus: m.ValidationStatus,
		Plausibility:     1.0,
	}
	if n.ValidationStatus == "" {
		n.ValidationStatus = StatusPending
	}

	absorb := func(kind Kind, r Result) error {
		for _, f := range r.Flags {
			if f == "negative_value" || f == "non_finite_value" {
				return fmt.Errorf("%w: %s %s", ErrInvalidMeasurement, kind, f)
			}
			n.Flags = append(n.Flags, string(kind)+":"+f)
		}
		if r.PlausibilityScore < n.Plausibility {
			n.Plausibility = r.PlausibilityScore
		}
		return nil
	}

	length, err := Normalize(m.Length, m.Unit, KindLength, location)
	if err != nil {
		return Normalized{}, err
	}
	if err := absorb(KindLength, length); err != nil {
		return Normalized{}, err
	}
	width, err := Normalize(m.Width, m.Unit, KindWidth, location)
	if err != nil {
		return Normalized{}, err
	}
	if err := absorb(KindWidth, width); err != nil {
		return Normalized{}, err
	}
	n.LengthCM = length.NormalizedValue
	n.WidthCM = width.NormalizedValue

	if m.Depth != nil {
		unit := m.DepthUnit
		if unit == "" {
			unit = m.Unit
		}
		depth, err := Normalize(*m.Depth, unit, KindDepth, location)
		if err != nil {
			return Normalized{}, err
		}
		if err := absorb(KindDepth, depth); err != nil {
			return Normalized{}, err
		}
		d := depth.NormalizedValue
		n.DepthMM = &d
	}

	var stored *float64
	if m.Area != nil {
		area, err := Normalize(*m.Area, m.Unit, KindArea, location)
		if err != nil {
			return Normalized{}, err
		}
		if err := absorb(KindArea, area); err != nil {
			return Normalized{}, err
		}
		a := area.NormalizedValue
		stored = &a
	}

	var outline []Point
	if len(m.Outline) > 0 {
		f, err := Factor(m.Unit, KindLength)
		if err != nil {
			return Normalized{}, err
		}
		outline = make([]Point, len(m.Outline))
		for i, p := range m.Outline {
			outline[i] = Point{X: p.X * f, Y: p.Y * f}
		}
		if res, err := PolygonArea(outline); err == nil && res.SelfIntersecting {
			n.Flags = append(n.Flags, "outline:self_intersecting")
		}
	}
	n.AreaCM2, n.AreaSource = SelectArea(stored, outline, m.Method, n.LengthCM, n.WidthCM)

	switch {
	case m.Volume != nil:
		vol, err := Normalize(*m.Volume, m.Unit, KindVolume, location)
		if err != nil {
			return Normalized{}, err
		}
		if err := absorb(KindVolume, vol); err != nil {
			return Normalized{}, err
		}
		n.Volume = &VolumeEstimate{CM3: vol.NormalizedValue, Method: VolumeRecorded, NonAuthoritative: true, Label: VolumeDisclaimer}
	case n.DepthMM != nil:
		v := TruncatedEllipsoidVolume(n.LengthCM, n.WidthCM, *n.DepthMM/10)
		n.Volume = &v
	}

	return n, nil
}

// Series is a time-ordered sequence of normalized measurements for one episode.
type Series []Normalized

// NormalizeSeries sorts, normalizes and de-duplicates raw measurements.
// Unusable records are skipped with an input-error audit entry. When several
// records share a timestamp the last one supplied supersedes the others.
func NormalizeSeries(raw []Measurement, location string) (Series, audit.Trail) {
	var trail audit.Trail

	type indexed struct {
		idx int
		m   Measurement
	}
	ordered := make([]indexed, len(raw))
	for i, m := range raw {
		ordered[i] = indexed{idx: i, m: m}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].m.Timestamp.Before(ordered[j].m.Timestamp)
	})

	out := make(Series, 0, len(raw))
	for _, o := range ordered {
		n, err := NormalizeMeasurement(o.m, location)
		if err != nil {
			code := "measurement_invalid"
			if errors.Is(err, ErrUnsupportedUnit) {
				code = "unsupported_unit"
			}
			trail.Input(code, "measurement %d skipped: %v", o.idx, err)
			continue
		}
		if len(n.Flags) > 0 {
			trail.Info("measurement_flagged", "measurement %d at %s flagged: %v", o.idx, n.Timestamp.Format(time.RFC3339), n.Flags)
		}
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(n.Timestamp) {
			trail.Info("measurement_superseded", "measurement at %s superseded by record %d", n.Timestamp.Format(time.RFC3339), o.idx)
			out[len(out)-1] = n
			continue
		}
		out = append(out, n)
	}
	return out, trail
}

// Len returns the number of measurements.
func (s Series) Len() int { return len(s) }

// First returns the earliest measurement.
func (s Series) First() (Normalized, bool) {
	if len(s) == 0 {
		return Normalized{}, false
	}
	return s[0], true
}

// Last returns the latest measurement.
func (s Series) Last() (Normalized, bool) {
	if len(s) == 0 {
		return Normalized{}, false
	}
	return s[len(s)-1], true
}

// WithDepth returns only the measurements carrying a depth value.
func (s Series) WithDepth() Series {
	out := make(Series, 0, len(s))
	for _, n := range s {
		if n.DepthMM != nil {
			out = append(out, n)
		}
	}
	return out
}

// SpanDays is the number of days between first and last measurement.
func (s Series) SpanDays() float64 {
	if len(s) < 2 {
		return 0
	}
	return s[len(s)-1].Timestamp.Sub(s[0].Timestamp).Hours() / 24
}
