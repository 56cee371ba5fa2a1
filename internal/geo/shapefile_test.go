package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestPolygonToMultiPolygon_HoleAttachedToShell(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			// Shell, clockwise.
			{X: 0, Y: 0}, {X: 0, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 0}, {X: 0, Y: 0},
			// Hole, counter-clockwise.
			{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}, {X: 1, Y: 1},
		},
	}

	mp := polygonToMultiPolygon(poly)
	require.NotNil(t, mp)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.False(t, MultiPolygonContains(mp, geom.Coord{2, 2}))
	assert.True(t, MultiPolygonContains(mp, geom.Coord{0.5, 0.5}))
}

func TestPolygonToMultiPolygon_TwoShells(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
			{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}, {X: 5, Y: 5},
		},
	}

	mp := polygonToMultiPolygon(poly)
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestPolygonToMultiPolygon_Empty(t *testing.T) {
	assert.Nil(t, polygonToMultiPolygon(nil))
	assert.Nil(t, polygonToMultiPolygon(&shp.Polygon{}))
}

func writeTestShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "zones.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ZONE", 20),
		shp.StringField("IMD_SCORE", 12),
	}))

	zones := []struct {
		name  string
		score string
		pts   []shp.Point
	}{
		{"north", "12.5", []shp.Point{{X: -1.7, Y: 55.0}, {X: -1.7, Y: 55.1}, {X: -1.5, Y: 55.1}, {X: -1.5, Y: 55.0}, {X: -1.7, Y: 55.0}}},
		{"south", "31.25", []shp.Point{{X: -1.7, Y: 54.9}, {X: -1.7, Y: 55.0}, {X: -1.5, Y: 55.0}, {X: -1.5, Y: 54.9}, {X: -1.7, Y: 54.9}}},
	}
	for _, z := range zones {
		pg := shp.Polygon(*shp.NewPolyLine([][]shp.Point{z.pts}))
		n := w.Write(&pg)
		require.NoError(t, w.WriteAttribute(int(n), 0, z.name))
		require.NoError(t, w.WriteAttribute(int(n), 1, z.score))
	}
	w.Close()
	return path
}

func TestReadShapefile(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir())

	layer, err := ReadShapefile("deprivation", path)
	require.NoError(t, err)
	require.Equal(t, 2, layer.Len())
	assert.Equal(t, CRSLonLat, layer.CRS)

	f, _ := layer.FirstContaining(geom.Coord{-1.6, 54.95})
	require.NotNil(t, f)
	name, _ := f.StringProp("zone")
	assert.Equal(t, "south", name)
	score, ok := f.FloatProp("imd_score")
	require.True(t, ok)
	assert.InDelta(t, 31.25, score, 1e-9)
}

func TestReadShapefile_ProjectedPRJ(t *testing.T) {
	dir := t.TempDir()
	path := writeTestShapefile(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zones.prj"),
		[]byte(`PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936"]]`), 0o644))

	_, err := ReadShapefile("deprivation", path)
	require.Error(t, err)
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile("missing", filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
}
