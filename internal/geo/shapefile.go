package geo

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefile reads a polygon shapefile into a Layer. Attributes become
// string properties keyed by the DBF field name. The CRS is taken from the
// .prj sidecar; a missing .prj is treated as lon/lat.
func ReadShapefile(name, shpPath string) (*Layer, error) {
	crs := CRSLonLat
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	if wkt, err := os.ReadFile(prjPath); err == nil {
		c, perr := ParsePRJ(string(wkt))
		if perr != nil {
			return nil, eris.Wrapf(perr, "geo: %s", prjPath)
		}
		crs = c
	} else {
		zap.L().Debug("geo: no .prj sidecar, assuming lon/lat", zap.String("path", shpPath))
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = strings.TrimRight(f.String(), "\x00")
	}

	layer := &Layer{Name: name, CRS: crs}
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			return nil, eris.Errorf("geo: %s record %d is %T, expected polygon", shpPath, n, shape)
		}
		raw := polygonToMultiPolygon(poly)
		if raw == nil {
			skipped++
			continue
		}
		mp, err := normalise(raw, crs)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: %s record %d", shpPath, n)
		}

		props := make(map[string]any, len(fieldNames))
		for i, fn := range fieldNames {
			props[fn] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}
		layer.Features = append(layer.Features, NewFeature(len(layer.Features), mp, props))
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped empty shapefile records",
			zap.String("layer", name),
			zap.Int("skipped", skipped),
		)
	}
	return layer, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile outer rings wind clockwise and holes counter-clockwise; each hole
// is attached to the outer ring preceding it.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current != nil {
			if err := mp.Push(current); err != nil {
				zap.L().Debug("geo: skipping malformed polygon part", zap.Error(err))
			}
		}
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if signedArea(flat) <= 0 || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
			if err := current.Push(ring); err != nil {
				zap.L().Debug("geo: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
				current = nil
			}
			continue
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("geo: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var a float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return a / 2
}
