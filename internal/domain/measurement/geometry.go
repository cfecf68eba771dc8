package measurement

import (
	"fmt"
	"math"
)

// TruncatedEllipsoidCorrection is the empirical factor applied to
// area·depth for wounds that taper toward the base.
const TruncatedEllipsoidCorrection = 0.524

// VolumeDisclaimer labels every volume estimate.
const VolumeDisclaimer = "informational estimate only; not used for coverage determination"

// RectangularArea returns length × width.
func RectangularArea(length, width float64) float64 {
	return length * width
}

// EllipticalArea returns π·(length/2)·(width/2).
func EllipticalArea(length, width float64) float64 {
	return math.Pi * (length / 2) * (width / 2)
}

// Orientation of a traced outline.
type Orientation string

const (
	Clockwise        Orientation = "clockwise"
	CounterClockwise Orientation = "counter_clockwise"
	Degenerate       Orientation = "degenerate"
)

// PolygonResult describes a shoelace-area computation.
type PolygonResult struct {
	Area             float64     `json:"area"`
	SignedArea       float64     `json:"signed_area"`
	Orientation      Orientation `json:"orientation"`
	SelfIntersecting bool        `json:"self_intersecting"`
}

// PolygonArea computes the area of an ordered outline using the shoelace
// formula. The absolute value is returned so orientation does not change the
// result; self-intersecting outlines are flagged but still measured.
func PolygonArea(pts []Point) (PolygonResult, error) {
	if len(pts) < 3 {
		return PolygonResult{}, fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidMeasurement, len(pts))
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	signed := sum / 2

	res := PolygonResult{
		Area:             math.Abs(signed),
		SignedArea:       signed,
		SelfIntersecting: selfIntersecting(pts),
	}
	switch {
	case signed > 0:
		res.Orientation = CounterClockwise
	case signed < 0:
		res.Orientation = Clockwise
	default:
		res.Orientation = Degenerate
	}
	return res, nil
}

// selfIntersecting tests every pair of non-adjacent edges.
func selfIntersecting(pts []Point) bool {
	n := len(pts)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Adjacent edges share a vertex and always "touch".
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := pts[j], pts[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(p, q, r Point) bool {
	return math.Min(p.X, r.X) <= q.X && q.X <= math.Max(p.X, r.X) &&
		math.Min(p.Y, r.Y) <= q.Y && q.Y <= math.Max(p.Y, r.Y)
}

func sign(v float64) int {
	const eps = 1e-12
	switch {
	case v > eps:
		return 1
	case v < -eps:
		return -1
	}
	return 0
}

func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := sign(cross(p3, p4, p1))
	d2 := sign(cross(p3, p4, p2))
	d3 := sign(cross(p1, p2, p3))
	d4 := sign(cross(p1, p2, p4))

	if d1 != d2 && d3 != d4 && d1 != 0 && d2 != 0 && d3 != 0 && d4 != 0 {
		return true
	}
	if d1 == 0 && onSegment(p3, p1, p4) {
		return true
	}
	if d2 == 0 && onSegment(p3, p2, p4) {
		return true
	}
	if d3 == 0 && onSegment(p1, p3, p2) {
		return true
	}
	if d4 == 0 && onSegment(p1, p4, p2) {
		return true
	}
	return false
}

// VolumeMethod names the volume approximation used.
type VolumeMethod string

const (
	VolumeEllipsoid          VolumeMethod = "ellipsoid"
	VolumeTruncatedEllipsoid VolumeMethod = "truncated_ellipsoid"
	VolumeRecorded           VolumeMethod = "recorded"
)

// VolumeEstimate is a wound volume in cm³. It is never authoritative.
type VolumeEstimate struct {
	CM3              float64      `json:"cm3"`
	Method           VolumeMethod `json:"method"`
	NonAuthoritative bool         `json:"non_authoritative"`
	Label            string       `json:"label"`
}

// EllipsoidVolume returns (4/3)·π·(l/2)·(w/2)·(d/2). All inputs share one unit.
func EllipsoidVolume(length, width, depth float64) VolumeEstimate {
	v := (4.0 / 3.0) * math.Pi * (length / 2) * (width / 2) * (depth / 2)
	return VolumeEstimate{CM3: v, Method: VolumeEllipsoid, NonAuthoritative: true, Label: VolumeDisclaimer}
}

// TruncatedEllipsoidVolume returns ellipticalArea·depth·0.524.
func TruncatedEllipsoidVolume(length, width, depth float64) VolumeEstimate {
	v := EllipticalArea(length, width) * depth * TruncatedEllipsoidCorrection
	return VolumeEstimate{CM3: v, Method: VolumeTruncatedEllipsoid, NonAuthoritative: true, Label: VolumeDisclaimer}
}

// SelectArea applies the smart-area precedence: stored area, then traced
// polygon, then the declared method (elliptical unless rectangular was declared).
// Inputs are already in cm / cm².
func SelectArea(storedCM2 *float64, outlineCM []Point, method Method, lengthCM, widthCM float64) (float64, AreaSource) {
	if storedCM2 != nil && *storedCM2 > 0 {
		return *storedCM2, AreaStored
	}
	if len(outlineCM) >= 3 {
		if res, err := PolygonArea(outlineCM); err == nil && res.Area > 0 {
			return res.Area, AreaPolygon
		}
	}
	if method == MethodRectangular {
		return RectangularArea(lengthCM, widthCM), AreaRectangular
	}
	if lengthCM > 0 && widthCM > 0 {
		return EllipticalArea(lengthCM, widthCM), AreaElliptical
	}
	return RectangularArea(lengthCM, widthCM), AreaRectangular
}
