package geo

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// crsMember is the legacy GeoJSON 2008 "crs" object. RFC 7946 dropped it but
// many exports still carry one.
type crsMember struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// ReadGeoJSON parses a FeatureCollection of polygonal features into a Layer,
// normalising coordinates to lon/lat.
func ReadGeoJSON(name string, data []byte) (*Layer, error) {
	var header crsMember
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, eris.Wrapf(err, "geo: decode %s", name)
	}
	crs := CRSLonLat
	if header.CRS != nil {
		c, err := ParseCRSName(header.CRS.Properties.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: %s", name)
		}
		crs = c
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geo: decode feature collection %s", name)
	}

	layer := &Layer{Name: name, CRS: crs, Features: make([]Feature, 0, len(fc.Features))}
	for i, f := range fc.Features {
		mp, err := normalise(f.Geometry, crs)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: %s feature %d", name, i)
		}
		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		if f.ID != "" {
			if _, ok := props["id"]; !ok {
				props["id"] = f.ID
			}
		}
		layer.Features = append(layer.Features, NewFeature(i, mp, props))
	}
	return layer, nil
}

// Point is a named lon/lat query location.
type Point struct {
	Name string
	Lon  float64
	Lat  float64
}

// Coord returns the point as an XY coordinate.
func (p Point) Coord() geom.Coord { return geom.Coord{p.Lon, p.Lat} }

// ParsePoints decodes a GeoJSON FeatureCollection, Feature, or bare Point
// geometry into named points. Features are named from their "name" property,
// falling back to the feature ID and then the feature's position.
func ParsePoints(data []byte) ([]Point, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "geo: decode points")
	}

	var features []*geojson.Feature
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "geo: decode point collection")
		}
		features = fc.Features
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "geo: decode point feature")
		}
		features = []*geojson.Feature{&f}
	case "Point":
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "geo: decode point geometry")
		}
		features = []*geojson.Feature{{Geometry: g}}
	default:
		return nil, eris.Errorf("geo: unsupported GeoJSON type %q", head.Type)
	}

	points := make([]Point, 0, len(features))
	for i, f := range features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok || len(pt.FlatCoords()) < 2 {
			return nil, eris.Errorf("geo: feature %d is not a point", i)
		}
		lon, lat := pt.X(), pt.Y()
		if !ValidLonLat(lon, lat) {
			return nil, eris.Errorf("geo: feature %d has invalid coordinates (%g, %g)", i, lon, lat)
		}
		name := strconv.Itoa(i)
		if f.ID != "" {
			name = f.ID
		}
		if n, ok := f.Properties["name"].(string); ok && n != "" {
			name = n
		}
		points = append(points, Point{Name: name, Lon: lon, Lat: lat})
	}
	return points, nil
}
