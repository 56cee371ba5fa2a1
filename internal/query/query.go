// Package query answers point-in-polygon and per-region aggregation questions
// against the reference layers and one active scenario.
package query

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/urbangrammar/demoland-assistant/internal/geo"
	"github.com/urbangrammar/demoland-assistant/internal/layers"
	"github.com/urbangrammar/demoland-assistant/internal/scenario"
	"github.com/urbangrammar/demoland-assistant/internal/signature"
	"github.com/urbangrammar/demoland-assistant/pkg/overpass"
)

// POISource finds amenities inside a bounding box.
type POISource interface {
	Find(ctx context.Context, amenity string, box overpass.BBox) ([]overpass.POI, error)
}

// Options holds the optional collaborators of a Service.
type Options struct {
	POI  POISource
	Area overpass.BBox
}

// Service answers spatial queries. It only reads its layers and scenario, so
// one Service may serve many sessions concurrently.
type Service struct {
	layers   *layers.Cache
	scenario *scenario.Scenario
	poi      POISource
	area     overpass.BBox
}

// New creates a Service over the reference layers and the active scenario.
// active may be nil when no scenario has been run.
func New(c *layers.Cache, active *scenario.Scenario, opts Options) *Service {
	return &Service{
		layers:   c,
		scenario: active,
		poi:      opts.POI,
		area:     opts.Area,
	}
}

// ErrNoScenario is returned by scenario queries when no scenario is active.
var ErrNoScenario = errors.New("query: no active scenario")

// NamedPoint is a query location. Lat and Lon are pointers so that an
// omitted coordinate is distinguishable from zero.
type NamedPoint struct {
	Name string   `json:"name" mapstructure:"name"`
	Lat  *float64 `json:"lat" mapstructure:"lat" validate:"required,latitude"`
	Lon  *float64 `json:"lon" mapstructure:"lon" validate:"required,longitude"`
}

// Point builds a NamedPoint.
func Point(name string, lat, lon float64) NamedPoint {
	return NamedPoint{Name: name, Lat: &lat, Lon: &lon}
}

// coord returns the point as lon/lat, or false when either is missing.
func (p NamedPoint) coord() (lon, lat float64, ok bool) {
	if p.Lat == nil || p.Lon == nil {
		return 0, 0, false
	}
	return *p.Lon, *p.Lat, true
}

// SignatureMatch is the signature found at one query point.
type SignatureMatch struct {
	Point     string  `json:"point"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Signature string  `json:"signature"`
}

// SignatureCount is the number of signature features of one type.
type SignatureCount struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
}

// SignatureDescription is one entry of the signature catalog.
type SignatureDescription struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SignatureAtPoints returns the signature of the polygon containing each
// point of a GeoJSON point collection. Overlapping signature polygons resolve
// to the smallest; points outside every polygon are omitted.
func (s *Service) SignatureAtPoints(ctx context.Context, points []byte) ([]SignatureMatch, error) {
	pts, err := geo.ParsePoints(points)
	if err != nil {
		return nil, &InvalidGeometryInputError{Err: err}
	}
	sigs, err := s.layers.SignatureLayer(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SignatureMatch, 0, len(pts))
	for _, p := range pts {
		f, _ := sigs.SmallestContaining(p.Coord())
		if f == nil {
			continue
		}
		name, _ := f.Properties[layers.PropSignature].(string)
		out = append(out, SignatureMatch{Point: p.Name, Lon: p.Lon, Lat: p.Lat, Signature: name})
	}
	return out, nil
}

// ScenarioChangeAtPoint returns the active scenario's columns for the unit
// containing each point, tagged with the point's name. Points outside every
// unit are omitted.
func (s *Service) ScenarioChangeAtPoint(ctx context.Context, points []NamedPoint) ([]map[string]any, error) {
	if s.scenario == nil {
		return nil, ErrNoScenario
	}
	coords := make([]geom.Coord, len(points))
	for i, p := range points {
		lon, lat, ok := p.coord()
		if !ok {
			return nil, &InvalidGeometryInputError{Err: eris.Errorf("point %d (%q) is missing a coordinate", i, p.Name)}
		}
		if !geo.ValidLonLat(lon, lat) {
			return nil, &InvalidGeometryInputError{Err: eris.Errorf("point %d (%q) has invalid coordinates (%g, %g)", i, p.Name, lon, lat)}
		}
		coords[i] = geom.Coord{lon, lat}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(points))
	for i, p := range points {
		u, n := s.scenario.UnitAt(coords[i])
		if u == nil {
			continue
		}
		if n > 1 {
			zap.L().Debug("point in overlapping units",
				zap.String("component", "query"), zap.String("point", p.Name), zap.Int("matches", n))
		}
		row := u.Row()
		row["name"] = p.Name
		out = append(out, row)
	}
	return out, nil
}

// RegionSummary counts the signature features intersecting the named
// region, by signature type, most frequent first. A feature that crosses a
// region boundary counts in every region it touches.
func (s *Service) RegionSummary(ctx context.Context, name string) ([]SignatureCount, error) {
	regions, err := s.layers.RegionLayer(ctx)
	if err != nil {
		return nil, err
	}
	var parts []*geo.Feature
	for i := range regions.Features {
		if n, _ := regions.Features[i].Properties[layers.PropName].(string); n == name {
			parts = append(parts, &regions.Features[i])
		}
	}
	if len(parts) == 0 {
		return nil, &UnknownRegionError{Name: name, Suggestions: suggest(name, regionNames(regions))}
	}

	sigs, err := s.layers.SignatureLayer(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for i := range sigs.Features {
		f := &sigs.Features[i]
		for _, r := range parts {
			if f.Intersects(r) {
				sig, _ := f.Properties[layers.PropSignature].(string)
				counts[sig]++
				break
			}
		}
	}

	out := make([]SignatureCount, 0, len(counts))
	for sig, n := range counts {
		out = append(out, SignatureCount{Signature: sig, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Signature < out[j].Signature
	})
	return out, nil
}

// SignatureCatalog lists all sixteen signatures in code order with their
// pen portraits.
func (s *Service) SignatureCatalog(ctx context.Context) ([]SignatureDescription, error) {
	portraits, err := s.layers.PenPortraitMap(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SignatureDescription, 0, signature.Count)
	for code, name := range signature.Names() {
		out = append(out, SignatureDescription{Code: code, Name: name, Description: portraits[name]})
	}
	return out, nil
}

// RegionCatalog lists the distinct region names in layer order.
func (s *Service) RegionCatalog(ctx context.Context) ([]string, error) {
	regions, err := s.layers.RegionLayer(ctx)
	if err != nil {
		return nil, err
	}
	return regionNames(regions), nil
}

// SignatureCounts counts signature features by type over the whole layer.
// All sixteen types are listed in code order, including zero counts.
func (s *Service) SignatureCounts(ctx context.Context) ([]SignatureCount, error) {
	sigs, err := s.layers.SignatureLayer(ctx)
	if err != nil {
		return nil, err
	}
	counts := make([]int, signature.Count)
	for i := range sigs.Features {
		name, _ := sigs.Features[i].Properties[layers.PropSignature].(string)
		if code, ok := signature.Code(name); ok {
			counts[code]++
		}
	}
	out := make([]SignatureCount, signature.Count)
	for code, name := range signature.Names() {
		out[code] = SignatureCount{Signature: name, Count: counts[code]}
	}
	return out, nil
}

// FindPointsOfInterest lists amenities of one OSM type in the study area.
func (s *Service) FindPointsOfInterest(ctx context.Context, amenity string) ([]overpass.POI, error) {
	if s.poi == nil {
		return nil, &overpass.UnavailableError{Err: errors.New("no points-of-interest source configured")}
	}
	return s.poi.Find(ctx, amenity, s.area)
}

func regionNames(regions *geo.Layer) []string {
	seen := make(map[string]bool, regions.Len())
	var names []string
	for i := range regions.Features {
		n, _ := regions.Features[i].Properties[layers.PropName].(string)
		if seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

// suggest returns candidates equal to, containing, or contained in name
// after case folding.
func suggest(name string, candidates []string) []string {
	fold := cases.Fold()
	want := strings.TrimSpace(fold.String(name))
	if want == "" {
		return nil
	}
	var out []string
	for _, c := range candidates {
		have := fold.String(c)
		if have == want || strings.Contains(have, want) || strings.Contains(want, have) {
			out = append(out, c)
		}
	}
	return out
}
