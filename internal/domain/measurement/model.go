package measurement

import (
	"errors"
	"time"
)

var (
	// ErrUnsupportedUnit is returned when a unit string cannot be resolved,
	// even through substring fallback.
	ErrUnsupportedUnit = errors.New("unsupported unit")
	// ErrInvalidMeasurement is returned for structurally unusable measurements.
	ErrInvalidMeasurement = errors.New("invalid measurement")
)

// ValidationStatus is the clinician validation state of a recorded measurement.
type ValidationStatus string

const (
	StatusPending   ValidationStatus = "pending"
	StatusValidated ValidationStatus = "validated"
	StatusFlagged   ValidationStatus = "flagged"
)

// Method is the declared technique used to obtain the wound area.
type Method string

const (
	MethodRectangular Method = "rectangular"
	MethodElliptical  Method = "elliptical"
	MethodTracing     Method = "tracing"
	MethodDigital     Method = "digital"
)

// Point is a vertex of a traced wound outline, in the measurement's linear unit.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Measurement is one recorded wound measurement. Records are immutable;
// corrections are appended as new records with the same or later timestamp.
type Measurement struct {
	Length           float64          `json:"length"`
	Width            float64          `json:"width"`
	Depth            *float64         `json:"depth,omitempty"`
	Area             *float64         `json:"area,omitempty"`
	Volume           *float64         `json:"volume,omitempty"`
	Unit             string           `json:"unit"`
	DepthUnit        string           `json:"depth_unit,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
	Method           Method           `json:"method,omitempty"`
	Outline          []Point          `json:"outline,omitempty"`
	RecordedBy       string           `json:"recorded_by,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status,omitempty"`
}

// AreaSource records which rule of the smart-area precedence produced an area.
type AreaSource string

const (
	AreaStored      AreaSource = "stored"
	AreaPolygon     AreaSource = "polygon"
	AreaElliptical  AreaSource = "elliptical"
	AreaRectangular AreaSource = "rectangular"
)

// Normalized is a measurement converted to standard units: cm for length and
// width, mm for depth, cm² for area, cm³ for volume.
type Normalized struct {
	Timestamp        time.Time        `json:"timestamp"`
	LengthCM         float64          `json:"length_cm"`
	WidthCM          float64          `json:"width_cm"`
	DepthMM          *float64         `json:"depth_mm,omitempty"`
	AreaCM2          float64          `json:"area_cm2"`
	AreaSource       AreaSource       `json:"area_source"`
	Volume           *VolumeEstimate  `json:"volume,omitempty"`
	Method           Method           `json:"method,omitempty"`
	RecordedBy       string           `json:"recorded_by,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	Plausibility     float64          `json:"plausibility"`
	Flags            []string         `json:"flags,omitempty"`
}

// HasDepth reports whether a depth value was recorded.
func (n Normalized) HasDepth() bool { return n.DepthMM != nil }

// Complete reports whether the record carries every field the quality scorer
// rewards: depth, a declared method and an author.
func (n Normalized) Complete() bool {
	return n.DepthMM != nil && n.Method != "" && n.RecordedBy != ""
}
