package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rnpdno/internal/cache"
	"github.com/ppiankov/rnpdno/internal/logger"
	"github.com/ppiankov/rnpdno/internal/metrics"
	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/persist"
	"github.com/ppiankov/rnpdno/internal/registry"
	"github.com/ppiankov/rnpdno/internal/util"
	"github.com/ppiankov/rnpdno/internal/walker"
	"github.com/ppiankov/rnpdno/internal/worker"
)

// NewFromConfig wires a registry client, rate limiter, optional page cache and robots
// checker, walker and persister into an Extractor
func NewFromConfig(cfg *model.Config, log zerolog.Logger, m *metrics.Metrics) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := []registry.Option{
		registry.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
		registry.WithMetrics(m),
		registry.WithLogger(logger.Component(log, "registry")),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, registry.WithCache(cache.NewLayeredCache(cfg.Cache), cfg.Cache.DiskTTL))
	}
	if cfg.HTTP.RespectRobots {
		robotsClient, err := util.NewHTTPClient(cfg.HTTP, 1)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout, robotsClient)))
	}

	client, err := registry.NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}

	var enumerator registry.StateEnumerator
	switch {
	case cfg.Registry.StatesFile != "":
		enumerator = &registry.FileEnumerator{Path: cfg.Registry.StatesFile}
	case cfg.Registry.DiscoverStates:
		enumerator = &registry.DiscoveryEnumerator{Lister: client}
	default:
		enumerator = registry.NewCatalogEnumerator()
	}

	w := walker.New(client,
		walker.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		walker.WithMetrics(m),
		walker.WithLogger(logger.Component(log, "walker")),
	)

	return New(enumerator, w, persist.New(cfg.Output.Pretty, logger.Component(log, "persist")),
		WithPreflight(client),
		WithWorkers(cfg.Concurrency.Workers),
		WithReportPath(cfg.Output.ReportPath),
		WithMetrics(m),
		WithLogger(logger.Component(log, "extractor")),
	), nil
}

// Extract validates params, then runs one extraction with cfg. Invalid filters are
// rejected before any network activity.
func Extract(ctx context.Context, params model.FilterParams, cfg *model.Config, log zerolog.Logger) (*model.RunOutcome, error) {
	spec, err := model.NewFilterSpec(params)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	e, err := NewFromConfig(cfg, log, m)
	if err != nil {
		return nil, err
	}

	outcome, runErr := e.Run(ctx, spec, cfg.Output.Path)
	if err := m.WriteTextfile(cfg.Metrics.File); err != nil {
		log.Warn().Err(err).Str("path", cfg.Metrics.File).Msg("metrics textfile not written")
	}
	return outcome, runErr
}
