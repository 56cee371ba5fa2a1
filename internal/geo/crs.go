package geo

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// CRS identifies the coordinate reference system of a source layer.
type CRS int

const (
	// CRSLonLat is EPSG:4326 / OGC CRS84 in longitude, latitude order.
	CRSLonLat CRS = iota
	// CRSWebMercator is EPSG:3857.
	CRSWebMercator
)

func (c CRS) String() string {
	switch c {
	case CRSLonLat:
		return "EPSG:4326"
	case CRSWebMercator:
		return "EPSG:3857"
	default:
		return "unknown"
	}
}

const earthRadius = 6378137.0

var epsgCode = regexp.MustCompile(`(?i)EPSG:{1,2}(?:[0-9.]*:)?(\d+)$`)

// ParseCRSName parses a GeoJSON "crs" name such as "EPSG:4326",
// "urn:ogc:def:crs:EPSG::3857" or "urn:ogc:def:crs:OGC:1.3:CRS84".
func ParseCRSName(name string) (CRS, error) {
	n := strings.TrimSpace(name)
	if n == "" || strings.HasSuffix(strings.ToUpper(n), "CRS84") {
		return CRSLonLat, nil
	}
	m := epsgCode.FindStringSubmatch(n)
	if m == nil {
		return 0, eris.Errorf("geo: unrecognised crs %q", name)
	}
	code, _ := strconv.Atoi(m[1])
	return crsFromEPSG(code, name)
}

func crsFromEPSG(code int, raw string) (CRS, error) {
	switch code {
	case 4326:
		return CRSLonLat, nil
	case 3857, 900913, 3785, 102100:
		return CRSWebMercator, nil
	default:
		return 0, eris.Errorf("geo: unsupported crs %q, reproject to EPSG:4326", raw)
	}
}

// ParsePRJ detects the CRS from the WKT in a shapefile .prj sidecar.
func ParsePRJ(wkt string) (CRS, error) {
	w := strings.TrimSpace(wkt)
	upper := strings.ToUpper(w)
	switch {
	case w == "":
		return CRSLonLat, nil
	case strings.Contains(upper, "WEB_MERCATOR") || strings.Contains(upper, "PSEUDO-MERCATOR") ||
		strings.Contains(upper, "POPULAR VISUALISATION"):
		return CRSWebMercator, nil
	case strings.HasPrefix(upper, "PROJCS") || strings.HasPrefix(upper, "PROJCRS"):
		name := w
		if i := strings.Index(w, ","); i > 0 {
			name = w[:i] + "]"
		}
		return 0, eris.Errorf("geo: unsupported projected crs %s, reproject to EPSG:4326", name)
	case strings.HasPrefix(upper, "GEOGCS") || strings.HasPrefix(upper, "GEOGCRS"):
		if strings.Contains(upper, "WGS_1984") || strings.Contains(upper, "WGS 84") || strings.Contains(upper, "WGS84") {
			return CRSLonLat, nil
		}
		return 0, eris.New("geo: unsupported geographic datum, expected WGS 84")
	default:
		return 0, eris.New("geo: unrecognised .prj contents")
	}
}

// MercatorToLonLat inverse-projects a Web Mercator coordinate.
func MercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x / earthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// normalise converts a polygonal geometry into an XY MultiPolygon in lon/lat.
// Z and M ordinates are dropped.
func normalise(g geom.T, crs CRS) (*geom.MultiPolygon, error) {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	case nil:
		return nil, eris.New("geo: feature has no geometry")
	default:
		return nil, eris.Errorf("geo: unsupported geometry type %T, expected polygon", g)
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, p := range polys {
		xyPoly, err := toXY(p, crs)
		if err != nil {
			return nil, err
		}
		if err := mp.Push(xyPoly); err != nil {
			return nil, eris.Wrap(err, "geo: push polygon")
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.New("geo: empty polygon geometry")
	}
	return mp, nil
}

func toXY(p *geom.Polygon, crs CRS) (*geom.Polygon, error) {
	stride := p.Stride()
	src := p.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		x, y := src[i], src[i+1]
		if crs == CRSWebMercator {
			x, y = MercatorToLonLat(x, y)
		}
		if !ValidLonLat(x, y) {
			return nil, eris.Errorf("geo: coordinate (%g, %g) outside lon/lat range", x, y)
		}
		flat = append(flat, x, y)
	}
	ends := make([]int, len(p.Ends()))
	for i, e := range p.Ends() {
		ends[i] = e / stride * 2
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends), nil
}
