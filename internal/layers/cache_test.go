package layers

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbangrammar/demoland-assistant/internal/testhelpers"
)

func newTestCache(t *testing.T) (*Cache, testhelpers.Dataset) {
	t.Helper()
	ds, err := testhelpers.Write(t.TempDir())
	require.NoError(t, err)
	return New(SourcesFor(ds)), ds
}

// SourcesFor maps a fixture onto layer sources with default field names.
func SourcesFor(ds testhelpers.Dataset) Sources {
	return Sources{
		Signatures:   Source{Path: ds.Signatures},
		Regions:      Source{Path: ds.Regions},
		Deprivation:  Source{Path: ds.Deprivation},
		Geography:    Source{Path: ds.Geography},
		PenPortraits: ds.PenPortraits,
	}
}

func TestGet_LoadsAndCanonicalises(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sigs, err := c.SignatureLayer(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, sigs.Len())
	assert.Equal(t, "Dense urban neighbourhoods", sigs.Features[0].Properties[PropSignature])

	regions, err := c.RegionLayer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Gateshead", regions.Features[1].Properties[PropName])

	imd, err := c.DeprivationLayer(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, imd.Features[1].Properties[PropScore], 1e-9)

	geog, err := c.GeographyLayer(ctx)
	require.NoError(t, err)
	assert.Equal(t, testhelpers.UnitNW, geog.Features[0].Properties[PropCode])

	pp, err := c.PenPortraitMap(ctx)
	require.NoError(t, err)
	assert.Len(t, pp, 16)
}

func TestGet_ReturnsSameInstance(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	a, err := c.Get(ctx, Regions)
	require.NoError(t, err)
	b, err := c.Get(ctx, Regions)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGet_ConcurrentFirstAccessLoadsOnce(t *testing.T) {
	c, _ := newTestCache(t)

	var loads atomic.Int32
	release := make(chan struct{})
	c.onLoad = func(string) {
		loads.Add(1)
		<-release
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := c.Get(context.Background(), Geography)
			assert.NoError(t, err)
			results[i] = l
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestGet_NoRereadAfterCorruption(t *testing.T) {
	c, ds := newTestCache(t)
	ctx := context.Background()

	first, err := c.SignatureLayer(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ds.Signatures, []byte("{corrupt"), 0o644))

	again, err := c.SignatureLayer(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	// A cold cache over the corrupt file fails.
	cold := New(SourcesFor(ds))
	_, err = cold.SignatureLayer(ctx)
	require.Error(t, err)
	assert.True(t, IsLayerLoadError(err))
}

func TestGet_MissingFile(t *testing.T) {
	c := New(Sources{Regions: Source{Path: filepath.Join(t.TempDir(), "absent.geojson")}})

	_, err := c.RegionLayer(context.Background())
	require.Error(t, err)

	var lle *LayerLoadError
	require.ErrorAs(t, err, &lle)
	assert.Equal(t, Regions, lle.Layer)
}

func TestGet_FailedLoadIsNotCached(t *testing.T) {
	c, ds := newTestCache(t)
	ctx := context.Background()

	good, err := os.ReadFile(ds.Regions)
	require.NoError(t, err)
	require.NoError(t, os.Remove(ds.Regions))

	_, err = c.RegionLayer(ctx)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(ds.Regions, good, 0o644))
	l, err := c.RegionLayer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
}

func TestGet_UnconfiguredLayer(t *testing.T) {
	c := New(Sources{})
	assert.False(t, c.Configured(Deprivation))

	_, err := c.DeprivationLayer(context.Background())
	require.Error(t, err)
	assert.True(t, IsLayerLoadError(err))
}

func TestGet_CancelledWaiterDoesNotPoisonCache(t *testing.T) {
	c, _ := newTestCache(t)

	release := make(chan struct{})
	c.onLoad = func(string) { <-release }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, Signatures)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	l, err := c.Get(context.Background(), Signatures)
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())
}

func TestGet_UnknownSignatureTypeIsLoadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sigs.geojson")
	body := testhelpers.Collection(
		testhelpers.Feature(testhelpers.Box(0, 0, 1, 1), map[string]any{"type": "Lunar base"}),
	)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c := New(Sources{Signatures: Source{Path: path}})
	_, err := c.SignatureLayer(context.Background())
	require.Error(t, err)
	assert.True(t, IsLayerLoadError(err))
}

func TestGet_CustomField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counties.geojson")
	body := testhelpers.Collection(
		testhelpers.Feature(testhelpers.Box(0, 0, 1, 1), map[string]any{"ctyua_name": []any{"Sunderland"}}),
	)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c := New(Sources{Regions: Source{Path: path, Field: "ctyua_name"}})
	l, err := c.RegionLayer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sunderland", l.Features[0].Properties[PropName])
}

func TestPenPortraits_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portraits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Urban buffer: Fringe of the city.\nOpen sprawl: Low density.\n"), 0o644))

	c := New(Sources{PenPortraits: path})
	m, err := c.PenPortraitMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fringe of the city.", m["Urban buffer"])
}

func TestGet_PenPortraitsIsNotGeometry(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.Get(context.Background(), PenPortraits)
	require.Error(t, err)
}

func TestWarmAndLoaded(t *testing.T) {
	c, _ := newTestCache(t)

	for _, st := range c.Loaded() {
		assert.False(t, st.Loaded, st.Name)
	}

	require.NoError(t, c.Warm(context.Background()))

	statuses := c.Loaded()
	require.Len(t, statuses, 5)
	for _, st := range statuses {
		assert.True(t, st.Loaded, st.Name)
		assert.Positive(t, st.Features, st.Name)
	}
}

func TestWarm_ReportsFailure(t *testing.T) {
	_, ds := newTestCache(t)
	src := SourcesFor(ds)
	src.Geography.Path = filepath.Join(ds.Dir, "missing.geojson")

	err := New(src).Warm(context.Background())
	require.Error(t, err)
	assert.True(t, IsLayerLoadError(err))
}
