package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/fetch"
	"github.com/joseph-ayodele/datares-tracker/internal/server"
)

// buildFetcher stacks cache -> retry -> HTTP. With downloads disabled the
// cache is skipped and documents only live in memory.
func buildFetcher(ctx context.Context, cfg common.FetchConfig, logger *slog.Logger) (fetch.Fetcher, error) {
	httpFetcher := fetch.NewHTTPFetcher(fetch.HTTPConfig{
		Timeout:       cfg.Timeout,
		UserAgent:     cfg.UserAgent,
		Referer:       cfg.Referer,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	}, logger)

	policy := fetch.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	policy.Jitter = nil
	if cfg.Jitter > 0 {
		policy.Jitter = fetch.ProportionalJitter(cfg.Jitter)
	}
	var f fetch.Fetcher = fetch.NewRetrying(httpFetcher, policy, logger)

	if !cfg.Download {
		return f, nil
	}
	tiers := fetch.Tiered{fetch.NewDiskCache(cfg.CacheDir, logger)}
	if cfg.ObjectStore.Enabled() {
		oc, err := fetch.NewObjectCache(ctx, cfg.ObjectStore, logger)
		if err != nil {
			return nil, common.FatalConfigError("object store", err)
		}
		tiers = append(tiers, oc)
	}
	return fetch.NewCaching(f, tiers, logger), nil
}

type runningServers struct {
	wg sync.WaitGroup
}

func (r *runningServers) wait() { r.wg.Wait() }

// startServers launches the optional status listeners; they stop when ctx ends.
func startServers(ctx context.Context, cfg common.ServerConfig, tracker *server.Tracker, logger *slog.Logger) *runningServers {
	r := &runningServers{}
	if cfg.HTTPAddr != "" {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := server.ServeHTTP(ctx, cfg.HTTPAddr, server.NewRouter(tracker, logger), logger); err != nil {
				logger.Error("run.http.failed", "addr", cfg.HTTPAddr, "error", err)
			}
		}()
	}
	if cfg.GRPCAddr != "" {
		health := server.NewHealth(logger)
		health.SetRunning(true)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := health.ListenAndServe(ctx, cfg.GRPCAddr); err != nil {
				logger.Error("run.grpc.failed", "addr", cfg.GRPCAddr, "error", err)
			}
		}()
	}
	return r
}
