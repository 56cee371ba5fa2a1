// Package layers provides the process-wide reference layer cache: spatial
// signatures, regions, deprivation zones, base geography and signature pen
// portraits. Each layer is read from disk at most once per Cache and is
// immutable afterwards.
package layers

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/urbangrammar/demoland-assistant/internal/geo"
)

// Layer names.
const (
	Signatures   = "signatures"
	Regions      = "regions"
	Deprivation  = "deprivation"
	Geography    = "geography"
	PenPortraits = "pen_portraits"
)

// Canonical property keys written onto features during load, independent of
// the source file's attribute names.
const (
	PropSignature = "signature_type"
	PropName      = "name"
	PropScore     = "score"
	PropCode      = "code"
)

// Source points at a layer's backing file and the attribute that carries the
// layer's key value (signature type, region name, score, or unit code).
type Source struct {
	Path  string
	Field string
}

// Sources configures every reference layer.
type Sources struct {
	Signatures   Source
	Regions      Source
	Deprivation  Source
	Geography    Source
	PenPortraits string
}

// Status describes a layer's residency for diagnostics.
type Status struct {
	Name     string
	Path     string
	Loaded   bool
	Features int
}

// Cache memoises reference layers. A Cache is safe for concurrent use.
type Cache struct {
	sources Sources

	mu       sync.RWMutex
	resident map[string]any
	group    singleflight.Group

	// onLoad is invoked at the start of every backing-file read.
	onLoad func(name string)
}

// New creates an empty cache over the given sources. Nothing is read until
// the first Get.
func New(sources Sources) *Cache {
	return &Cache{
		sources:  sources,
		resident: make(map[string]any),
	}
}

// Names returns every layer name in a stable order.
func Names() []string {
	return []string{Signatures, Regions, Deprivation, Geography, PenPortraits}
}

// Configured reports whether a backing file is configured for the layer.
func (c *Cache) Configured(name string) bool {
	return c.path(name) != ""
}

func (c *Cache) path(name string) string {
	switch name {
	case Signatures:
		return c.sources.Signatures.Path
	case Regions:
		return c.sources.Regions.Path
	case Deprivation:
		return c.sources.Deprivation.Path
	case Geography:
		return c.sources.Geography.Path
	case PenPortraits:
		return c.sources.PenPortraits
	default:
		return ""
	}
}

// Get returns the geometry layer with the given name, loading it on first
// access. Concurrent first callers share a single load. A caller whose ctx
// ends stops waiting, but the load itself runs to completion and is cached
// only if it succeeds.
func (c *Cache) Get(ctx context.Context, name string) (*geo.Layer, error) {
	if name == PenPortraits {
		return nil, eris.Errorf("layers: %s is not a geometry layer", name)
	}
	v, err := c.get(ctx, name)
	if err != nil {
		return nil, err
	}
	return v.(*geo.Layer), nil
}

// PenPortraitMap returns the signature name to description mapping.
func (c *Cache) PenPortraitMap(ctx context.Context) (map[string]string, error) {
	v, err := c.get(ctx, PenPortraits)
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

// SignatureLayer returns the spatial signatures layer.
func (c *Cache) SignatureLayer(ctx context.Context) (*geo.Layer, error) {
	return c.Get(ctx, Signatures)
}

// RegionLayer returns the administrative regions layer.
func (c *Cache) RegionLayer(ctx context.Context) (*geo.Layer, error) {
	return c.Get(ctx, Regions)
}

// DeprivationLayer returns the deprivation zones layer.
func (c *Cache) DeprivationLayer(ctx context.Context) (*geo.Layer, error) {
	return c.Get(ctx, Deprivation)
}

// GeographyLayer returns the areal unit geometry layer.
func (c *Cache) GeographyLayer(ctx context.Context) (*geo.Layer, error) {
	return c.Get(ctx, Geography)
}

func (c *Cache) lookup(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.resident[name]
	return v, ok
}

func (c *Cache) get(ctx context.Context, name string) (any, error) {
	if v, ok := c.lookup(name); ok {
		return v, nil
	}

	ch := c.group.DoChan(name, func() (any, error) {
		if v, ok := c.lookup(name); ok {
			return v, nil
		}
		v, err := c.load(name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.resident[name] = v
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

func (c *Cache) load(name string) (any, error) {
	path := c.path(name)
	if path == "" {
		return nil, &LayerLoadError{Layer: name, Err: eris.New("no source configured")}
	}
	if c.onLoad != nil {
		c.onLoad(name)
	}

	log := zap.L().With(zap.String("component", "layers"), zap.String("layer", name))
	start := time.Now()

	var (
		v   any
		n   int
		err error
	)
	if name == PenPortraits {
		var m map[string]string
		m, err = readPenPortraits(path)
		v, n = m, len(m)
	} else {
		var l *geo.Layer
		l, err = c.readLayer(name)
		if l != nil {
			v, n = l, l.Len()
		}
	}
	if err != nil {
		log.Error("layer load failed", zap.String("path", path), zap.Error(err))
		return nil, &LayerLoadError{Layer: name, Path: path, Err: err}
	}

	log.Info("layer loaded",
		zap.String("path", path),
		zap.Int("records", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return v, nil
}

// Warm loads every configured layer concurrently. The first failure is
// returned once all loads have finished.
func (c *Cache) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range Names() {
		if !c.Configured(name) {
			continue
		}
		g.Go(func() error {
			_, err := c.get(gctx, name)
			return err
		})
	}
	return g.Wait()
}

// Loaded reports the residency of every layer.
func (c *Cache) Loaded() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(Names()))
	for _, name := range Names() {
		st := Status{Name: name, Path: c.path(name)}
		switch v := c.resident[name].(type) {
		case *geo.Layer:
			st.Loaded, st.Features = true, v.Len()
		case map[string]string:
			st.Loaded, st.Features = true, len(v)
		}
		out = append(out, st)
	}
	return out
}
