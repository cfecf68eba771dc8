package coverage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/platform/audit"
)

// AreaPoints projects raw measurements onto the area-only shape. Depth and
// volume are removed before normalization, so no depth or volume value can
// influence which records survive or what area they carry.
func AreaPoints(raw []measurement.Measurement, location string) ([]AreaPoint, audit.Trail) {
	stripped := make([]measurement.Measurement, len(raw))
	for i, m := range raw {
		m.Depth = nil
		m.DepthUnit = ""
		m.Volume = nil
		stripped[i] = m
	}
	series, trail := measurement.NormalizeSeries(stripped, location)
	out := make([]AreaPoint, len(series))
	for i, n := range series {
		out[i] = AreaPoint{Timestamp: n.Timestamp, Area: n.AreaCM2}
	}
	return out, trail
}

// forbiddenKeys are measurement fields that must never reach the engine.
var forbiddenKeys = []string{"depth", "volume"}

type wireRequest struct {
	Phase        string            `json:"phase"`
	ProductStart *time.Time        `json:"product_start_date,omitempty"`
	AsOf         *time.Time        `json:"as_of,omitempty"`
	Measurements []json.RawMessage `json:"measurements"`
}

// DecodeRequest parses a compliance request. A measurement carrying a depth
// or volume field is a caller bug and is returned as an invariant violation;
// every other decoding problem is an ordinary input error.
func DecodeRequest(data []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return Request{}, fmt.Errorf("decode compliance request: %w", err)
	}
	phase, err := ParsePhase(w.Phase)
	if err != nil {
		return Request{}, err
	}

	req := Request{Phase: phase, ProductStart: w.ProductStart}
	if w.AsOf != nil {
		req.AsOf = *w.AsOf
	}
	for i, raw := range w.Measurements {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Request{}, fmt.Errorf("decode measurement %d: %w", i, err)
		}
		for key := range fields {
			lk := strings.ToLower(key)
			for _, f := range forbiddenKeys {
				if strings.HasPrefix(lk, f) {
					return Request{}, audit.Violation("non_area_input",
						fmt.Sprintf("measurement %d carries %q; coverage accepts timestamp and area only", i, key))
				}
			}
		}
		var p AreaPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return Request{}, fmt.Errorf("decode measurement %d: %w", i, err)
		}
		req.Points = append(req.Points, p)
	}
	return req, nil
}
