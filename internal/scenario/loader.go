package scenario

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/urbangrammar/demoland-assistant/internal/geo"
	"github.com/urbangrammar/demoland-assistant/internal/layers"
	"github.com/urbangrammar/demoland-assistant/internal/signature"
)

// Loader builds Scenarios and caches them by source identity for its own
// lifetime. A Loader is safe for concurrent use.
type Loader struct {
	layers *layers.Cache

	mu    sync.RWMutex
	built map[string]*Scenario
	group singleflight.Group

	// onBuild is invoked at the start of every uncached build.
	onBuild func(source string)
}

// NewLoader creates a Loader reading reference layers from c.
func NewLoader(c *layers.Cache) *Loader {
	return &Loader{
		layers: c,
		built:  make(map[string]*Scenario),
	}
}

// rawUnit mirrors one record of a scenario source's "values" object.
// Pointers distinguish absent fields from zero values.
type rawUnit struct {
	SignatureType           *float64 `json:"signature_type"`
	AirQuality              *float64 `json:"air_quality"`
	HousePrice              *float64 `json:"house_price"`
	JobAccessibility        *float64 `json:"job_accessibility"`
	GreenspaceAccessibility *float64 `json:"greenspace_accessibility"`
}

type rawSource struct {
	Values map[string]rawUnit `json:"values"`
}

// Identity returns the cache identity of a source path.
func Identity(source string) string {
	if abs, err := filepath.Abs(source); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(source)
}

func cacheKey(source string, baseline *Scenario) string {
	key := Identity(source)
	if baseline != nil {
		key += "|" + baseline.Source()
	}
	return key
}

// Load returns the Scenario for source, diffed against baseline when one is
// given. Repeated loads of the same source and baseline return the same
// *Scenario. A build, once started, runs to completion even if the caller's
// ctx ends, so the cache only ever holds complete Scenarios.
func (l *Loader) Load(ctx context.Context, source string, baseline *Scenario) (*Scenario, error) {
	key := cacheKey(source, baseline)

	l.mu.RLock()
	s, ok := l.built[key]
	l.mu.RUnlock()
	if ok {
		return s, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		l.mu.RLock()
		s, ok := l.built[key]
		l.mu.RUnlock()
		if ok {
			return s, nil
		}

		s, err := l.build(buildCtx, source, baseline)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.built[key] = s
		l.mu.Unlock()
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Scenario), nil
	}
}

func (l *Loader) build(ctx context.Context, source string, baseline *Scenario) (*Scenario, error) {
	if l.onBuild != nil {
		l.onBuild(source)
	}
	log := zap.L().With(zap.String("component", "scenario"), zap.String("source", source))

	units, err := parseSource(source)
	if err != nil {
		return nil, err
	}

	s := &Scenario{
		source: Identity(source),
		units:  units,
		byCode: make(map[string]*Unit, len(units)),
	}
	for _, u := range units {
		s.byCode[u.Code] = u
	}

	if baseline != nil {
		s.baseline = baseline.Source()
		missing := applyBaseline(units, baseline)
		if missing > 0 {
			log.Warn("units missing from baseline carry no change columns",
				zap.String("baseline", baseline.Source()),
				zap.Int("units", missing),
			)
		}
	}

	geography, err := l.layers.GeographyLayer(ctx)
	if err != nil {
		return nil, err
	}
	if err := joinGeometry(units, geography); err != nil {
		return nil, err
	}

	if l.layers.Configured(layers.Deprivation) {
		imd, err := l.layers.DeprivationLayer(ctx)
		if err != nil {
			return nil, err
		}
		unmatched, ambiguous := joinContaining(units, imd, func(u *Unit, f *geo.Feature) {
			if v, ok := f.Properties[layers.PropScore].(float64); ok {
				u.Deprivation = &v
			}
		})
		log.Debug("deprivation join", zap.Int("unmatched", unmatched), zap.Int("ambiguous", ambiguous))
	}

	if l.layers.Configured(layers.Regions) {
		regions, err := l.layers.RegionLayer(ctx)
		if err != nil {
			return nil, err
		}
		unmatched, ambiguous := joinContaining(units, regions, func(u *Unit, f *geo.Feature) {
			u.Region, _ = f.Properties[layers.PropName].(string)
		})
		log.Debug("region join", zap.Int("unmatched", unmatched), zap.Int("ambiguous", ambiguous))
	}

	s.index = &geo.Layer{Name: s.source, Features: make([]geo.Feature, len(units))}
	for i, u := range units {
		s.index.Features[i] = geo.NewFeature(i, u.Geometry, map[string]any{ColCode: u.Code})
	}

	log.Info("scenario built", zap.Int("units", len(units)), zap.Bool("baseline", baseline != nil))
	return s, nil
}

// parseSource reads the values table and translates signature codes. Units
// are returned ordered by code.
func parseSource(source string) ([]*Unit, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read %s", source)
	}
	var raw rawSource
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "scenario: decode %s", source)
	}
	if raw.Values == nil {
		return nil, eris.Errorf("scenario: %s has no values", source)
	}

	codes := make([]string, 0, len(raw.Values))
	for code := range raw.Values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	units := make([]*Unit, 0, len(codes))
	for _, code := range codes {
		r := raw.Values[code]
		if r.SignatureType == nil || r.AirQuality == nil || r.HousePrice == nil ||
			r.JobAccessibility == nil || r.GreenspaceAccessibility == nil {
			return nil, eris.Errorf("scenario: unit %s is missing signature_type or an indicator", code)
		}
		name, err := signature.FromValue(*r.SignatureType)
		if err != nil {
			return nil, &signature.UnknownSignatureCodeError{Unit: code, Code: *r.SignatureType}
		}
		units = append(units, &Unit{
			Code:      code,
			Signature: name,
			Values: Indicators{
				AirQuality:              *r.AirQuality,
				HousePrice:              *r.HousePrice,
				JobAccessibility:        *r.JobAccessibility,
				GreenspaceAccessibility: *r.GreenspaceAccessibility,
			},
		})
	}
	return units, nil
}

// applyBaseline fills Change for every unit also present in the baseline and
// returns the number of units without a baseline counterpart.
func applyBaseline(units []*Unit, baseline *Scenario) int {
	var missing int
	for _, u := range units {
		b, ok := baseline.Lookup(u.Code)
		if !ok {
			missing++
			continue
		}
		d := u.Values.Sub(b.Values)
		u.Change = &d
	}
	return missing
}

// joinGeometry attaches geometry one-to-one on unit code.
func joinGeometry(units []*Unit, geography *geo.Layer) error {
	byCode := make(map[string][]int, geography.Len())
	for i, f := range geography.Features {
		code, _ := f.Properties[layers.PropCode].(string)
		byCode[code] = append(byCode[code], i)
	}
	for _, u := range units {
		matches := byCode[u.Code]
		if len(matches) != 1 {
			return &GeometryJoinError{Unit: u.Code, Matches: len(matches)}
		}
		u.Geometry = geography.Features[matches[0]].Geometry
	}
	return nil
}

// joinContaining assigns each unit the first feature, in layer order, that
// contains the unit's representative point. It returns the number of units
// with no match and with more than one match.
func joinContaining(units []*Unit, layer *geo.Layer, assign func(*Unit, *geo.Feature)) (unmatched, ambiguous int) {
	for _, u := range units {
		pt, ok := geo.RepresentativePoint(u.Geometry)
		if !ok {
			unmatched++
			continue
		}
		f, n := layer.FirstContaining(pt)
		switch {
		case f == nil:
			unmatched++
			continue
		case n > 1:
			ambiguous++
		}
		assign(u, f)
	}
	return unmatched, ambiguous
}
