// Package testhelpers writes small synthetic DemoLand datasets for tests.
//
// The layout, in lon/lat degrees around central Newcastle:
//
//	units (0.01° squares)      E00042852 | E00042865   lat 54.97..54.98
//	                           E00042911 | E00042915   lat 54.96..54.97
//	                           lon -1.62..-1.61 | -1.61..-1.60
//
// Signatures: a large "Dense urban neighbourhoods" polygon covering all four
// units, a small overlapping "Local urbanity" polygon around (-1.61, 54.97),
// an "Open sprawl" polygon in Gateshead and a second "Dense urban
// neighbourhoods" polygon in the north-west of Newcastle.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dataset holds the paths of a written fixture.
type Dataset struct {
	Dir          string
	Signatures   string
	Regions      string
	Deprivation  string
	Geography    string
	PenPortraits string
	Baseline     string
	Scenario     string
}

// Unit codes used by the fixture.
const (
	UnitNW = "E00042852"
	UnitNE = "E00042865"
	UnitSW = "E00042911"
	UnitSE = "E00042915"
)

// SignatureNames lists all sixteen names, used for the pen portrait fixture.
var SignatureNames = []string{
	"Wild countryside", "Countryside agriculture", "Urban buffer", "Warehouse/Park land",
	"Open sprawl", "Disconnected suburbia", "Accessible suburbia", "Connected residential neighbourhoods",
	"Dense residential neighbourhoods", "Gridded residential quarters", "Dense urban neighbourhoods", "Local urbanity",
	"Regional urbanity", "Metropolitan urbanity", "Concentrated urbanity", "Hyper concentrated urbanity",
}

// Box renders a closed rectangular GeoJSON polygon geometry.
func Box(minLon, minLat, maxLon, maxLat float64) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		minLon, minLat, maxLon, minLat, maxLon, maxLat, minLon, maxLat, minLon, minLat)
}

// Feature renders a GeoJSON feature with the given geometry and properties.
func Feature(geometry string, props map[string]any) string {
	p, _ := json.Marshal(props)
	return fmt.Sprintf(`{"type":"Feature","properties":%s,"geometry":%s}`, p, geometry)
}

// Collection renders a GeoJSON FeatureCollection.
func Collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

// Values renders a scenario source file body.
func Values(units map[string]map[string]any) string {
	b, _ := json.Marshal(map[string]any{"values": units})
	return string(b)
}

// UnitValues builds one record of a scenario source.
func UnitValues(sig int, air, house, jobs, green float64) map[string]any {
	return map[string]any{
		"signature_type":           sig,
		"air_quality":              air,
		"house_price":              house,
		"job_accessibility":        jobs,
		"greenspace_accessibility": green,
	}
}

// Write writes the fixture into dir and returns the paths.
func Write(dir string) (Dataset, error) {
	ds := Dataset{
		Dir:          dir,
		Signatures:   filepath.Join(dir, "signatures.geojson"),
		Regions:      filepath.Join(dir, "regions.geojson"),
		Deprivation:  filepath.Join(dir, "imd.geojson"),
		Geography:    filepath.Join(dir, "geography.geojson"),
		PenPortraits: filepath.Join(dir, "pen_portraits.json"),
		Baseline:     filepath.Join(dir, "baseline.json"),
		Scenario:     filepath.Join(dir, "scenario1.json"),
	}

	files := map[string]string{
		ds.Signatures: Collection(
			Feature(Box(-1.63, 54.955, -1.59, 54.99), map[string]any{"type": "Dense urban neighbourhoods"}),
			Feature(Box(-1.615, 54.965, -1.605, 54.975), map[string]any{"type": "Local urbanity"}),
			Feature(Box(-1.50, 54.90, -1.48, 54.92), map[string]any{"type": "Open sprawl"}),
			Feature(Box(-1.70, 55.00, -1.69, 55.01), map[string]any{"type": "Dense urban neighbourhoods"}),
		),
		ds.Regions: Collection(
			Feature(Box(-1.8, 54.95, -1.55, 55.05), map[string]any{"name": "Newcastle upon Tyne"}),
			Feature(Box(-1.8, 54.85, -1.4, 54.95), map[string]any{"name": "Gateshead"}),
		),
		ds.Deprivation: Collection(
			Feature(Box(-1.63, 54.955, -1.6075, 54.985), map[string]any{"imd_score": 20.5}),
			Feature(Box(-1.6075, 54.955, -1.59, 54.985), map[string]any{"imd_score": 42.0}),
		),
		ds.Geography: Collection(
			Feature(Box(-1.62, 54.97, -1.61, 54.98), map[string]any{"OA11CD": UnitNW, "id": 1}),
			Feature(Box(-1.61, 54.97, -1.60, 54.98), map[string]any{"OA11CD": UnitNE, "id": 2}),
			Feature(Box(-1.62, 54.96, -1.61, 54.97), map[string]any{"OA11CD": UnitSW, "id": 3}),
			Feature(Box(-1.61, 54.96, -1.60, 54.97), map[string]any{"OA11CD": UnitSE, "id": 4}),
		),
		ds.Baseline: Values(map[string]map[string]any{
			UnitNW: UnitValues(10, 10, 200000, 1000, 50),
			UnitNE: UnitValues(10, 11, 210000, 1100, 40),
			UnitSW: UnitValues(8, 9, 180000, 900, 60),
			UnitSE: UnitValues(8, 9.5, 185000, 950, 55),
		}),
		ds.Scenario: Values(map[string]map[string]any{
			UnitNW: UnitValues(5, 12, 195000, 1000, 65),
			UnitNE: UnitValues(10, 11, 210000, 1100, 40),
			UnitSW: UnitValues(8, 9, 180000, 900, 60),
			UnitSE: UnitValues(8, 9.5, 185000, 950, 55),
		}),
	}

	portraits := make(map[string]string, len(SignatureNames))
	for _, n := range SignatureNames {
		portraits[n] = n + " is a spatial signature of the DemoLand study area."
	}
	pp, err := json.Marshal(portraits)
	if err != nil {
		return Dataset{}, err
	}
	files[ds.PenPortraits] = string(pp)

	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return Dataset{}, err
		}
	}
	return ds, nil
}
