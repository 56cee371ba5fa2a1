package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
}

func squareWithHole() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 4, 0, 4, 4, 0, 4, 0, 0,
		1, 1, 1, 3, 3, 3, 3, 1, 1, 1,
	}, []int{10, 20})
}

func TestPolygonContains(t *testing.T) {
	tests := []struct {
		name string
		poly *geom.Polygon
		pt   geom.Coord
		want bool
	}{
		{name: "inside", poly: square(0, 0, 1, 1), pt: geom.Coord{0.5, 0.5}, want: true},
		{name: "outside", poly: square(0, 0, 1, 1), pt: geom.Coord{1.5, 0.5}, want: false},
		{name: "on boundary", poly: square(0, 0, 1, 1), pt: geom.Coord{0, 0.5}, want: true},
		{name: "inside shell outside hole", poly: squareWithHole(), pt: geom.Coord{0.5, 0.5}, want: true},
		{name: "inside hole", poly: squareWithHole(), pt: geom.Coord{2, 2}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PolygonContains(tt.poly, tt.pt))
		})
	}
}

func TestMultiPolygonContains(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1, 1)))
	require.NoError(t, mp.Push(square(5, 5, 6, 6)))

	assert.True(t, MultiPolygonContains(mp, geom.Coord{5.5, 5.5}))
	assert.False(t, MultiPolygonContains(mp, geom.Coord{3, 3}))
	assert.False(t, MultiPolygonContains(nil, geom.Coord{0.5, 0.5}))
}

func TestPolygonsIntersect(t *testing.T) {
	tests := []struct {
		name string
		p, q *geom.Polygon
		want bool
	}{
		{name: "overlapping", p: square(0, 0, 2, 2), q: square(1, 1, 3, 3), want: true},
		{name: "disjoint", p: square(0, 0, 1, 1), q: square(2, 2, 3, 3), want: false},
		{name: "shared edge", p: square(0, 0, 1, 1), q: square(1, 0, 2, 1), want: true},
		{name: "contained", p: square(1, 1, 2, 2), q: square(0, 0, 4, 4), want: true},
		{name: "containing", p: square(0, 0, 4, 4), q: square(1, 1, 2, 2), want: true},
		{name: "crossing without vertices inside", p: square(0, 1, 4, 2), q: square(1, 0, 2, 3), want: true},
		{name: "inside hole", p: square(1.5, 1.5, 2.5, 2.5), q: squareWithHole(), want: false},
		{name: "bounds overlap only", p: square(0, 0, 1, 1), q: geom.NewPolygonFlat(geom.XY, []float64{
			0.9, 1.5, 2, 0.2, 2, 1.5, 0.9, 1.5,
		}, []int{8}), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PolygonsIntersect(tt.p, tt.q))
		})
	}
}

func TestMultiPolygonsIntersect(t *testing.T) {
	a := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, a.Push(square(0, 0, 1, 1)))
	require.NoError(t, a.Push(square(5, 5, 6, 6)))
	b := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, b.Push(square(5.5, 5.5, 7, 7)))
	c := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, c.Push(square(2, 2, 4, 4)))

	assert.True(t, MultiPolygonsIntersect(a, b))
	assert.False(t, MultiPolygonsIntersect(a, c))
	assert.False(t, MultiPolygonsIntersect(a, nil))
}

func TestRepresentativePoint_Convex(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 2, 2)))

	c, ok := RepresentativePoint(mp)
	require.True(t, ok)
	assert.InDelta(t, 1.0, c[0], 1e-9)
	assert.InDelta(t, 1.0, c[1], 1e-9)
}

func TestRepresentativePoint_CentroidInHole(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(squareWithHole()))

	c, ok := RepresentativePoint(mp)
	require.True(t, ok)
	assert.True(t, MultiPolygonContains(mp, c), "representative point %v must be inside", c)
}

func TestRepresentativePoint_UsesLargestPart(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1, 1)))
	require.NoError(t, mp.Push(square(10, 10, 14, 14)))

	c, ok := RepresentativePoint(mp)
	require.True(t, ok)
	assert.InDelta(t, 12.0, c[0], 1e-9)
	assert.InDelta(t, 12.0, c[1], 1e-9)
}

func TestValidLonLat(t *testing.T) {
	assert.True(t, ValidLonLat(-1.6, 54.97))
	assert.False(t, ValidLonLat(200, 0))
	assert.False(t, ValidLonLat(0, -91))
	assert.False(t, ValidLonLat(430000, 560000))
}

func TestLayerSmallestContaining(t *testing.T) {
	big := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, big.Push(square(0, 0, 10, 10)))
	small := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, small.Push(square(4, 4, 6, 6)))

	layer := &Layer{Features: []Feature{
		NewFeature(0, big, map[string]any{"type": "big"}),
		NewFeature(1, small, map[string]any{"type": "small"}),
	}}

	f, n := layer.SmallestContaining(geom.Coord{5, 5})
	require.NotNil(t, f)
	assert.Equal(t, 2, n)
	assert.Equal(t, "small", f.Properties["type"])

	first, n := layer.FirstContaining(geom.Coord{5, 5})
	require.NotNil(t, first)
	assert.Equal(t, 2, n)
	assert.Equal(t, "big", first.Properties["type"])

	none, n := layer.SmallestContaining(geom.Coord{50, 50})
	assert.Nil(t, none)
	assert.Zero(t, n)
}

func TestFeatureProps(t *testing.T) {
	f := NewFeature(0, geom.NewMultiPolygon(geom.XY), map[string]any{
		"NAME":  " Newcastle upon Tyne ",
		"score": "23.5",
		"num":   12.0,
		"wrap":  []any{"Gateshead"},
	})

	s, ok := f.StringProp("name")
	require.True(t, ok)
	assert.Equal(t, "Newcastle upon Tyne", s)

	v, ok := f.FloatProp("score")
	require.True(t, ok)
	assert.InDelta(t, 23.5, v, 1e-9)

	v, ok = f.FloatProp("num")
	require.True(t, ok)
	assert.InDelta(t, 12.0, v, 1e-9)

	s, ok = f.StringProp("wrap")
	require.True(t, ok)
	assert.Equal(t, "Gateshead", s)

	_, ok = f.FloatProp("missing")
	assert.False(t, ok)
}
