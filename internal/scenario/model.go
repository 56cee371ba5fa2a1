// Package scenario builds Scenarios: per-unit indicator tables joined to the
// reference geography, optionally diffed against a baseline, and enriched
// with deprivation scores and region names.
package scenario

import (
	"github.com/twpayne/go-geom"

	"github.com/urbangrammar/demoland-assistant/internal/geo"
)

// Indicators holds the four modelled scenario indicators for one unit.
type Indicators struct {
	AirQuality              float64 `json:"air_quality"`
	HousePrice              float64 `json:"house_price"`
	JobAccessibility        float64 `json:"job_accessibility"`
	GreenspaceAccessibility float64 `json:"greenspace_accessibility"`
}

// Sub returns the per-indicator difference a - b.
func (a Indicators) Sub(b Indicators) Indicators {
	return Indicators{
		AirQuality:              a.AirQuality - b.AirQuality,
		HousePrice:              a.HousePrice - b.HousePrice,
		JobAccessibility:        a.JobAccessibility - b.JobAccessibility,
		GreenspaceAccessibility: a.GreenspaceAccessibility - b.GreenspaceAccessibility,
	}
}

// IndicatorNames lists the indicators in column order.
var IndicatorNames = []string{"air_quality", "house_price", "job_accessibility", "greenspace_accessibility"}

func (a Indicators) values() []float64 {
	return []float64{a.AirQuality, a.HousePrice, a.JobAccessibility, a.GreenspaceAccessibility}
}

// Column names beyond the indicators.
const (
	ColCode        = "code"
	ColSignature   = "signature_type"
	ColDeprivation = "deprivation_score"
	ColRegion      = "region"
	changePrefix   = "change_in_"
)

// ChangeColumn returns the delta column name for an indicator.
func ChangeColumn(indicator string) string { return changePrefix + indicator }

// Unit is one areal unit of a Scenario. Units are never modified after the
// Scenario is returned by the Loader.
type Unit struct {
	Code        string
	Signature   string
	Values      Indicators
	Change      *Indicators
	Deprivation *float64
	Region      string
	Geometry    *geom.MultiPolygon
}

// Scenario is an immutable table of units keyed by unit code.
type Scenario struct {
	source   string
	baseline string
	units    []*Unit
	byCode   map[string]*Unit
	index    *geo.Layer
}

// Source returns the identity of the file the scenario was built from.
func (s *Scenario) Source() string { return s.source }

// BaselineSource returns the baseline's source identity, or "" if the
// scenario was built without a baseline.
func (s *Scenario) BaselineSource() string { return s.baseline }

// HasBaseline reports whether change columns were computed.
func (s *Scenario) HasBaseline() bool { return s.baseline != "" }

// Len returns the number of units.
func (s *Scenario) Len() int { return len(s.units) }

// Units returns the units ordered by code. The slice must not be modified.
func (s *Scenario) Units() []*Unit { return s.units }

// Lookup returns the unit with the given code.
func (s *Scenario) Lookup(code string) (*Unit, bool) {
	u, ok := s.byCode[code]
	return u, ok
}

// UnitAt returns the unit whose polygon contains c. Overlapping unit polygons
// resolve to the smallest; the second result is the number of matches.
func (s *Scenario) UnitAt(c geom.Coord) (*Unit, int) {
	f, n := s.index.SmallestContaining(c)
	if f == nil {
		return nil, 0
	}
	return s.units[f.Index], n
}

// Columns returns every non-geometry column in output order.
func (s *Scenario) Columns() []string {
	cols := []string{ColCode, ColSignature}
	cols = append(cols, IndicatorNames...)
	if s.HasBaseline() {
		for _, n := range IndicatorNames {
			cols = append(cols, ChangeColumn(n))
		}
	}
	return append(cols, ColDeprivation, ColRegion)
}

// Row returns the unit's non-geometry columns. Missing optional values are
// nil.
func (u *Unit) Row() map[string]any {
	row := map[string]any{
		ColCode:      u.Code,
		ColSignature: u.Signature,
		ColRegion:    nil,
	}
	for i, v := range u.Values.values() {
		row[IndicatorNames[i]] = v
	}
	if u.Change != nil {
		for i, v := range u.Change.values() {
			row[ChangeColumn(IndicatorNames[i])] = v
		}
	}
	if u.Deprivation != nil {
		row[ColDeprivation] = *u.Deprivation
	} else {
		row[ColDeprivation] = nil
	}
	if u.Region != "" {
		row[ColRegion] = u.Region
	}
	return row
}
