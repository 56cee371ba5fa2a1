package geo

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// PolygonContains reports whether c lies inside p's exterior ring and outside
// all of its holes. Points on the exterior boundary count as inside.
func PolygonContains(p *geom.Polygon, c geom.Coord) bool {
	n := p.NumLinearRings()
	if n == 0 {
		return false
	}
	layout := p.Layout()
	if !xy.IsPointInRing(layout, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < n; i++ {
		if xy.IsPointInRing(layout, c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// MultiPolygonContains reports whether any polygon of mp contains c.
func MultiPolygonContains(mp *geom.MultiPolygon, c geom.Coord) bool {
	if mp == nil {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		if PolygonContains(mp.Polygon(i), c) {
			return true
		}
	}
	return false
}

// PolygonsIntersect reports whether p and q share at least one point,
// boundaries included.
func PolygonsIntersect(p, q *geom.Polygon) bool {
	if p.NumLinearRings() == 0 || q.NumLinearRings() == 0 {
		return false
	}
	if !p.Bounds().Overlaps(geom.XY, q.Bounds()) {
		return false
	}
	if anyVertexInside(p, q) || anyVertexInside(q, p) {
		return true
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		for j := 0; j < q.NumLinearRings(); j++ {
			if ringsCross(p.LinearRing(i), q.LinearRing(j)) {
				return true
			}
		}
	}
	return false
}

// MultiPolygonsIntersect reports whether any polygon of a intersects any
// polygon of b.
func MultiPolygonsIntersect(a, b *geom.MultiPolygon) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bounds().Overlaps(geom.XY, b.Bounds()) {
		return false
	}
	for i := 0; i < a.NumPolygons(); i++ {
		for j := 0; j < b.NumPolygons(); j++ {
			if PolygonsIntersect(a.Polygon(i), b.Polygon(j)) {
				return true
			}
		}
	}
	return false
}

func anyVertexInside(p, q *geom.Polygon) bool {
	r := p.LinearRing(0)
	for i := 0; i < r.NumCoords(); i++ {
		if PolygonContains(q, r.Coord(i)) {
			return true
		}
	}
	return false
}

func ringsCross(a, b *geom.LinearRing) bool {
	for i := 0; i+1 < a.NumCoords(); i++ {
		a0, a1 := a.Coord(i), a.Coord(i+1)
		for j := 0; j+1 < b.NumCoords(); j++ {
			res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{}, a0, a1, b.Coord(j), b.Coord(j+1))
			if res.HasIntersection() {
				return true
			}
		}
	}
	return false
}

// RepresentativePoint returns a point guaranteed to lie inside mp (for
// non-degenerate input). The ring centroid of the largest polygon is used when
// it falls inside; otherwise a horizontal scanline through the polygon's
// vertical middle picks the midpoint of the widest interior span.
func RepresentativePoint(mp *geom.MultiPolygon) (geom.Coord, bool) {
	if mp == nil || mp.NumPolygons() == 0 {
		return nil, false
	}
	largest := mp.Polygon(0)
	for i := 1; i < mp.NumPolygons(); i++ {
		if p := mp.Polygon(i); p.Area() > largest.Area() {
			largest = p
		}
	}
	if largest.NumLinearRings() == 0 {
		return nil, false
	}

	if c, ok := ringCentroid(largest.LinearRing(0)); ok && PolygonContains(largest, c) {
		return c, true
	}

	b := largest.Bounds()
	y := (b.Min(1) + b.Max(1)) / 2
	if c, ok := scanlinePoint(largest, y); ok {
		return c, true
	}
	return nil, false
}

// ringCentroid computes the area-weighted centroid of a ring.
func ringCentroid(r *geom.LinearRing) (geom.Coord, bool) {
	flat := r.FlatCoords()
	stride := r.Stride()
	n := len(flat) / stride
	if n < 3 {
		return nil, false
	}
	var a, cx, cy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x0, y0 := flat[i*stride], flat[i*stride+1]
		x1, y1 := flat[j*stride], flat[j*stride+1]
		cross := x0*y1 - x1*y0
		a += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	if a == 0 {
		return nil, false
	}
	a /= 2
	return geom.Coord{cx / (6 * a), cy / (6 * a)}, true
}

// scanlinePoint intersects the horizontal line at y with every ring edge and
// returns the midpoint of the widest span between consecutive crossings.
func scanlinePoint(p *geom.Polygon, y float64) (geom.Coord, bool) {
	var xs []float64
	for i := 0; i < p.NumLinearRings(); i++ {
		r := p.LinearRing(i)
		flat := r.FlatCoords()
		stride := r.Stride()
		n := len(flat) / stride
		for k := 0; k+1 < n; k++ {
			x0, y0 := flat[k*stride], flat[k*stride+1]
			x1, y1 := flat[(k+1)*stride], flat[(k+1)*stride+1]
			if (y0 <= y && y < y1) || (y1 <= y && y < y0) {
				xs = append(xs, x0+(y-y0)*(x1-x0)/(y1-y0))
			}
		}
	}
	if len(xs) < 2 {
		return nil, false
	}
	sort.Float64s(xs)
	best, width := -1, 0.0
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > width {
			best, width = i, w
		}
	}
	if best < 0 {
		return nil, false
	}
	return geom.Coord{(xs[best] + xs[best+1]) / 2, y}, true
}

// ValidLonLat reports whether c is a finite longitude/latitude pair.
func ValidLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
