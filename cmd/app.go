package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbangrammar/demoland-assistant/internal/config"
	"github.com/urbangrammar/demoland-assistant/internal/layers"
	"github.com/urbangrammar/demoland-assistant/internal/query"
	"github.com/urbangrammar/demoland-assistant/internal/scenario"
	"github.com/urbangrammar/demoland-assistant/internal/toolkit"
	"github.com/urbangrammar/demoland-assistant/pkg/overpass"
)

// appEnv holds the components shared by the serve, tool and export commands.
type appEnv struct {
	Layers   *layers.Cache
	Loader   *scenario.Loader
	Baseline *scenario.Scenario
	Scenario *scenario.Scenario
	Query    *query.Service
	Tools    *toolkit.Registry

	poiCache *overpass.Cache
}

// initApp builds the layer cache, loads the configured baseline and scenario,
// and registers the tools. Layers are loaded eagerly when data.warm is set.
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	log := zap.L().With(zap.String("component", "app"))
	env := &appEnv{Layers: layers.New(c.Data.Sources())}
	env.Loader = scenario.NewLoader(env.Layers)

	if c.Data.Warm {
		if err := env.Layers.Warm(ctx); err != nil {
			return nil, eris.Wrap(err, "app: warm layers")
		}
		log.Info("reference layers loaded")
	}

	if err := env.loadScenario(ctx, c.Data); err != nil {
		return nil, err
	}

	poi, err := env.newPOIClient(ctx, c.Overpass)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Query = query.New(env.Layers, env.Scenario, query.Options{POI: poi, Area: c.Overpass.Area()})
	env.Tools = toolkit.Build(env.Query)
	return env, nil
}

func (e *appEnv) loadScenario(ctx context.Context, d config.DataConfig) error {
	log := zap.L().With(zap.String("component", "app"))
	if d.Baseline != "" {
		base, err := e.Loader.Load(ctx, d.Baseline, nil)
		if err != nil {
			return eris.Wrap(err, "app: load baseline")
		}
		e.Baseline = base
	}
	if d.Scenario == "" {
		log.Warn("no scenario configured; scenario tools will report no_active_scenario")
		return nil
	}
	s, err := e.Loader.Load(ctx, d.Scenario, e.Baseline)
	if err != nil {
		return eris.Wrap(err, "app: load scenario")
	}
	e.Scenario = s
	log.Info("scenario loaded",
		zap.String("source", s.Source()),
		zap.Int("units", s.Len()),
		zap.Bool("baseline", s.HasBaseline()),
	)
	return nil
}

func (e *appEnv) newPOIClient(ctx context.Context, o config.OverpassConfig) (*overpass.Client, error) {
	opts := []overpass.Option{
		overpass.WithURL(o.URL),
		overpass.WithHTTPClient(&http.Client{Timeout: o.Timeout()}),
		overpass.WithRateLimit(o.RateLimit),
	}
	if o.CachePath != "" {
		cache, err := overpass.OpenCache(ctx, o.CachePath, o.CacheTTL())
		if err != nil {
			return nil, eris.Wrap(err, "app: open poi cache")
		}
		e.poiCache = cache
		opts = append(opts, overpass.WithCache(cache))
	}
	return overpass.NewClient(opts...), nil
}

// Close releases the points-of-interest cache.
func (e *appEnv) Close() {
	if e.poiCache != nil {
		if err := e.poiCache.Close(); err != nil {
			zap.L().Warn("close poi cache", zap.Error(err))
		}
	}
}
