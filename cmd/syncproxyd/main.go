// syncproxyd is the offline-first request cache and synchronization engine
// for the checklist application. Every outgoing request the application
// makes is routed through this worker, which serves it live, cached, or
// background-refreshed, queues mutations that cannot reach the network,
// and replays them once connectivity returns.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/linecheck/syncproxy/internal/config"
	"github.com/linecheck/syncproxy/internal/draft"
	"github.com/linecheck/syncproxy/internal/names"
	"github.com/linecheck/syncproxy/internal/queue"
	"github.com/linecheck/syncproxy/internal/store"
	"github.com/linecheck/syncproxy/internal/strategy"
	"github.com/linecheck/syncproxy/internal/syncer"
	"github.com/linecheck/syncproxy/internal/worker"
)

func main() {
	var rulesPath string
	flag.StringVar(&rulesPath, "rules", "", "path to rules.yaml (overrides SYNCPROXY_RULES)")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if !cfg.Debug {
		logger = logger.Level(zerolog.InfoLevel)
	}
	if rulesPath == "" {
		rulesPath = cfg.RulesPath
	}
	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		logger.Fatal().Str("path", rulesPath).Err(err).Msg("load rules")
	}
	origin, err := url.Parse(rules.AppOrigin)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse app origin")
	}

	cacheStore, err := store.Open(filepath.Join(cfg.DataDir, "cache"), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open cache store")
	}
	defer cacheStore.Close()

	actionQueue, err := queue.Open(filepath.Join(cfg.DataDir, "queue"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open action queue")
	}
	defer actionQueue.Close()

	draftStore, err := draft.OpenStore(filepath.Join(cfg.DataDir, "drafts"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open draft store")
	}
	defer draftStore.Close()

	nameStore, err := names.Open(filepath.Join(cfg.DataDir, "names"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open name store")
	}
	defer nameStore.Close()

	staticNS, err := cacheStore.Namespace(rules.Generations.Static)
	if err != nil {
		logger.Fatal().Err(err).Msg("open static namespace")
	}
	runtimeNS, err := cacheStore.Namespace(rules.Generations.Runtime)
	if err != nil {
		logger.Fatal().Err(err).Msg("open runtime namespace")
	}

	httpClient := &http.Client{
		Timeout: 20 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}

	router := strategy.New(strategy.Config{
		AppHost:    origin.Host,
		AllowHosts: rules.API.Hosts,
		DenyHosts:  rules.DenyHosts,
		APIPrefix:  rules.API.Prefix,
		StaticExts: rules.StaticExts,
	}, strategy.Options{
		Fetcher: strategy.FetchFunc(func(ctx context.Context, req *strategy.Request) (*strategy.Response, error) {
			return forward(ctx, httpClient, req)
		}),
		Runtime: runtimeNS,
		Static:  staticNS,
		Enqueue: func(_ context.Context, req *strategy.Request) error {
			act := queue.FromRequest(req.Method, req.URL.Path, rules.API.Prefix, req.Body)
			_, err := actionQueue.Enqueue(act)
			return err
		},
		Log: logger,
	})

	hub := syncer.NewHub()
	orch := syncer.NewOrchestrator(actionQueue, rules.API.SyncEndpoint, httpClient, hub, logger)
	monitor := syncer.NewMonitor(rules.API.ProbeURL, rules.ProbeEvery(), nil, logger)
	monitor.Register("sync-submissions", orch.Replay)

	w, err := worker.New(rules.AppOrigin, worker.Handlers{
		Install: func(ctx context.Context) error {
			store.Seed(ctx, staticNS, httpClient, rules.Seeds, logger)
			return nil
		},
		Activate: func(context.Context) error {
			return cacheStore.Collect(rules.Generations.Static, rules.Generations.Runtime)
		},
		HandleRequest: router.Handle,
		Triggers: map[string]func(ctx context.Context) error{
			"sync-submissions": orch.Replay,
		},
	}, hub, logger,
		worker.WithDraftStore(draftStore),
		worker.WithNameStore(nameStore),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("build worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Startup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker startup")
	}
	go monitor.Run(ctx)
	go statsLoop(ctx, cacheStore, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("origin", rules.AppOrigin).Msg("syncproxy listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	router.Drain()
}

// statsLoop periodically logs cumulative cache hit/miss counters.
func statsLoop(ctx context.Context, s *store.Store, log zerolog.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hits, misses := s.Stats()
			log.Debug().Uint64("hits", hits).Uint64("misses", misses).Msg("cache stats")
		}
	}
}

// forward performs the real network request for the strategy router.
func forward(ctx context.Context, client *http.Client, req *strategy.Request) (*strategy.Response, error) {
	hreq, err := newOutboundRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	header := resp.Header.Clone()
	header.Del("Content-Length")
	return &strategy.Response{Status: resp.StatusCode, Header: header, Body: body}, nil
}
