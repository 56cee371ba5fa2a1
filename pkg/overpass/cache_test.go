package overpass

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, err := OpenCache(ctx, filepath.Join(t.TempDir(), "poi.db"), time.Hour)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	_, ok, err := c.Get(ctx, "pub", newcastle)
	require.NoError(t, err)
	assert.False(t, ok)

	want := []POI{{Lon: -1.61, Lat: 54.97, Name: "The Crown Posada"}}
	require.NoError(t, c.Put(ctx, "pub", newcastle, want))

	got, ok, err := c.Get(ctx, "pub", newcastle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	other := newcastle
	other.MaxLat = 55.1
	_, ok, err = c.Get(ctx, "pub", other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, err := OpenCache(ctx, filepath.Join(t.TempDir(), "poi.db"), time.Minute)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Put(ctx, "cafe", newcastle, []POI{{Lon: -1.6, Lat: 54.9}}))

	_, ok, err := c.Get(ctx, "cafe", newcastle)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "cafe", newcastle)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "cafe", newcastle, nil))
	got, ok, err := c.Get(ctx, "cafe", newcastle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}
