// Package geo holds the in-memory geometry model used for the reference
// layers and scenarios: MultiPolygon features in lon/lat degrees, readers for
// GeoJSON and shapefile sources, and the containment primitives the spatial
// joins are built from.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Feature is a single polygonal record of a layer.
type Feature struct {
	Index      int
	Geometry   *geom.MultiPolygon
	Properties map[string]any

	bounds *geom.Bounds
	area   float64
}

// NewFeature builds a Feature and precomputes its bounds and area.
func NewFeature(index int, g *geom.MultiPolygon, props map[string]any) Feature {
	if props == nil {
		props = map[string]any{}
	}
	return Feature{
		Index:      index,
		Geometry:   g,
		Properties: props,
		bounds:     g.Bounds(),
		area:       g.Area(),
	}
}

// Area returns the planar area of the feature in squared degrees. It is only
// meaningful for ordering features against each other.
func (f Feature) Area() float64 { return f.area }

// Bounds returns the feature's bounding box.
func (f Feature) Bounds() *geom.Bounds { return f.bounds }

// Contains reports whether the feature's geometry contains c.
func (f Feature) Contains(c geom.Coord) bool {
	if f.bounds == nil || !f.bounds.OverlapsPoint(geom.XY, c) {
		return false
	}
	return MultiPolygonContains(f.Geometry, c)
}

// Intersects reports whether the two features' geometries share any point.
func (f Feature) Intersects(other *Feature) bool {
	if f.bounds == nil || other.bounds == nil || !f.bounds.Overlaps(geom.XY, other.bounds) {
		return false
	}
	return MultiPolygonsIntersect(f.Geometry, other.Geometry)
}

// Prop returns a property by name. Shapefile attribute names are often upper
// case, so a case-insensitive match is tried when the exact name is absent.
func (f Feature) Prop(name string) (any, bool) {
	if v, ok := f.Properties[name]; ok {
		return v, true
	}
	for k, v := range f.Properties {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// StringProp returns a property rendered as a trimmed string.
func (f Feature) StringProp(name string) (string, bool) {
	v, ok := f.Prop(name)
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case []any:
		// Some exports wrap single values in an array.
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return strings.TrimSpace(s), true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// FloatProp returns a numeric property. String values are parsed because
// shapefile attributes are always text.
func (f Feature) FloatProp(name string) (float64, bool) {
	v, ok := f.Prop(name)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case int:
		return float64(t), true
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(p) {
			return 0, false
		}
		return p, true
	default:
		return 0, false
	}
}

// Layer is an immutable, ordered set of features read from one source.
type Layer struct {
	Name     string
	CRS      CRS
	Features []Feature
}

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.Features) }

// Containing returns the indices of every feature containing c, in layer order.
func (l *Layer) Containing(c geom.Coord) []int {
	var out []int
	for i := range l.Features {
		if l.Features[i].Contains(c) {
			out = append(out, i)
		}
	}
	return out
}

// FirstContaining returns the first feature in layer order that contains c.
func (l *Layer) FirstContaining(c geom.Coord) (*Feature, int) {
	matches := l.Containing(c)
	if len(matches) == 0 {
		return nil, 0
	}
	return &l.Features[matches[0]], len(matches)
}

// SmallestContaining returns the containing feature with the smallest area,
// breaking ties by layer order. Overlapping polygons resolve to the most
// specific one.
func (l *Layer) SmallestContaining(c geom.Coord) (*Feature, int) {
	matches := l.Containing(c)
	if len(matches) == 0 {
		return nil, 0
	}
	best := matches[0]
	for _, i := range matches[1:] {
		if l.Features[i].area < l.Features[best].area {
			best = i
		}
	}
	return &l.Features[best], len(matches)
}
