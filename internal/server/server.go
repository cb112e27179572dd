package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"batchread/internal/batcher"
	"batchread/internal/blockwatch"
	"batchread/internal/cache"
	"batchread/internal/config"
	"batchread/internal/contract"
	"batchread/internal/provider"
	"batchread/internal/reader"
	"batchread/internal/transform"
)

// Server wires the provider pool, result cache, block watcher and
// configured readers together
type Server struct {
	cfg        *config.Config
	pool       *provider.Pool
	cache      *cache.ResultCache
	watcher    *blockwatch.Watcher
	batch      *batcher.CallBatcher
	transforms *transform.Manager
	readers    []*reader.Reader
	feeds      []*blockwatch.WSFeed
	poller     *blockwatch.Poller
	metricsSrv *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     zerolog.Logger
}

// New creates a Server from configuration
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	endpoints := make([]*provider.Endpoint, 0, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		endpoints = append(endpoints, provider.NewEndpoint(provider.EndpointConfig{
			Name:           ec.Name,
			RPCURL:         ec.RPCURL,
			WSURL:          ec.WSURL,
			Role:           provider.Role(ec.Role),
			RequestTimeout: cfg.GetRequestTimeoutDuration(),
			Breaker:        breakerConfig(cfg.Breaker),
		}, logger))
	}
	pool := provider.NewPool(endpoints, provider.Config{
		ChainID:          cfg.ChainID,
		RetryEnabled:     cfg.RetryEnabled,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
	}, logger)

	staleTime, hasStaleness := cfg.Cache.GetStaleTimeDuration()
	if !hasStaleness {
		staleTime = cache.StaleForever
	}
	resultCache, err := cache.New(cache.Config{
		Size:      cfg.Cache.Size,
		CacheTime: cfg.Cache.GetCacheTimeDuration(),
		StaleTime: staleTime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info().
		Int("size", cfg.Cache.Size).
		Int("cacheTime", cfg.Cache.CacheTime).
		Int("staleTime", cfg.Cache.StaleTime).
		Msg("result cache configured")

	watcher, err := blockwatch.NewWatcher(cfg.Watcher.DedupSize, logger)
	if err != nil {
		resultCache.Close()
		return nil, fmt.Errorf("failed to create block watcher: %w", err)
	}

	var transforms *transform.Manager
	if cfg.IsTransformsEnabled() {
		transforms = transform.NewManager(logger)
		transforms.SetTimeout(cfg.GetTransformTimeoutDuration())
		if err := transforms.LoadDir(cfg.Transforms.Directory); err != nil {
			resultCache.Close()
			return nil, fmt.Errorf("failed to load transforms: %w", err)
		}
	} else {
		logger.Info().Msg("transforms disabled")
	}

	return &Server{
		cfg:        cfg,
		pool:       pool,
		cache:      resultCache,
		watcher:    watcher,
		transforms: transforms,
		logger:     logger.With().Str("component", "server").Logger(),
	}, nil
}

// Start verifies the endpoints, starts the block feeds and brings up
// the configured readers
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start provider pool: %w", err)
	}
	s.batch = batcher.New(s.pool, s.logger)

	// Block-scoped entries go away on every new head
	s.watcher.Subscribe(blockwatch.NewFuncSubscriber("cache-invalidator", func(blockwatch.Head) {
		s.cache.InvalidateBlockScoped()
	}))

	s.startFeeds()

	if err := s.startReaders(runCtx); err != nil {
		return err
	}

	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{
			Addr:         s.cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			s.logger.Info().Str("addr", s.cfg.MetricsAddr).Msg("starting metrics server")
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	return nil
}

// startFeeds subscribes to newHeads over WebSocket where an endpoint
// offers one, and falls back to HTTP polling otherwise
func (s *Server) startFeeds() {
	feedCfg := blockwatch.FeedConfig{
		MessageTimeout:    s.cfg.Watcher.GetMessageTimeoutDuration(),
		ReconnectInterval: s.cfg.Watcher.GetReconnectIntervalDuration(),
	}
	for _, e := range s.pool.WSEndpoints() {
		feed := blockwatch.NewWSFeed(e.WSURL(), s.watcher, feedCfg, s.logger)
		feed.Start()
		s.feeds = append(s.feeds, feed)
	}
	if len(s.feeds) > 0 {
		s.logger.Info().Int("feeds", len(s.feeds)).Msg("watching heads over WebSocket")
		return
	}
	s.poller = blockwatch.NewPoller(s.pool, s.watcher, s.cfg.Watcher.GetPollIntervalDuration(), s.logger)
	s.poller.Start()
	s.logger.Info().
		Int("pollInterval", s.cfg.Watcher.PollInterval).
		Msg("no WebSocket endpoints, polling for heads")
}

func (s *Server) startReaders(ctx context.Context) error {
	for _, rc := range s.cfg.Readers {
		r, err := s.buildReader(rc)
		if err != nil {
			return fmt.Errorf("reader %q: %w", rc.Name, err)
		}
		s.readers = append(s.readers, r)

		s.wg.Add(1)
		go s.drainUpdates(ctx, r)

		if rc.Disabled {
			s.logger.Info().Str("reader", rc.Name).Msg("reader disabled")
			continue
		}
		s.wg.Add(1)
		go s.runReader(ctx, r, rc.GetIntervalDuration())
	}
	s.logger.Info().Int("readers", len(s.readers)).Msg("readers started")
	return nil
}

func (s *Server) buildReader(rc config.ReaderConfig) (*reader.Reader, error) {
	calls := make([]contract.CallDescriptor, 0, len(rc.Calls))
	for i, cc := range rc.Calls {
		desc, err := contract.ParseCall(cc.Address, cc.ABI, cc.Method)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		args, err := contract.CoerceArgs(desc.ABI, cc.Method, cc.Args)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		desc.Args = args
		chainID := cc.ChainID
		if chainID == 0 {
			chainID = s.pool.ChainID()
		}
		calls = append(calls, desc.OnChain(chainID))
	}

	var sel reader.SelectFunc
	if rc.Select != "" {
		if s.transforms == nil || !s.transforms.Has(rc.Select) {
			return nil, contract.NewConfigError("unknown transform %q", rc.Select)
		}
		sel = s.transforms.SelectFunc(rc.Select)
	}

	staleTime := rc.GetStaleTimeDuration()
	if staleTime != nil && *staleTime < 0 {
		forever := cache.StaleForever
		staleTime = &forever
	}

	return reader.New(rc.Name, s.batch, s.cache, s.watcher, reader.Options{
		Contracts:    calls,
		AllowFailure: rc.AllowFailure,
		CacheOnBlock: rc.CacheOnBlock,
		Watch:        rc.Watch,
		Disabled:     rc.Disabled,
		StaleTime:    staleTime,
		CacheTime:    rc.GetCacheTimeDuration(),
		Select:       sel,
	}, s.logger)
}

// runReader performs the initial read and then rereads on the
// configured interval. Watch-driven refetches arrive through the
// update channel independently.
func (s *Server) runReader(ctx context.Context, r *reader.Reader, interval time.Duration) {
	defer s.wg.Done()

	read := func() {
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.GetRequestTimeoutDuration())
		defer cancel()
		if _, err := r.Read(readCtx); err != nil {
			s.logger.Warn().Err(err).Str("reader", r.Name()).Msg("read failed")
		}
	}
	read()

	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			read()
		}
	}
}

func (s *Server) drainUpdates(ctx context.Context, r *reader.Reader) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-r.Updates():
			if !ok {
				return
			}
			if u.Err != nil {
				s.logger.Warn().Err(u.Err).Str("reader", r.Name()).Msg("reader update failed")
				continue
			}
			s.logger.Debug().
				Str("reader", r.Name()).
				Int("calls", len(u.Result.Batch)).
				Time("at", u.Result.At).
				Msg("reader updated")
		}
	}
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down...")

	if s.cancel != nil {
		s.cancel()
	}
	for _, f := range s.feeds {
		f.Close()
	}
	if s.poller != nil {
		s.poller.Close()
	}
	for _, r := range s.readers {
		r.Close()
	}

	var metricsErr error
	if s.metricsSrv != nil {
		metricsErr = s.metricsSrv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("shutdown deadline hit while waiting for readers")
	}

	s.cache.Close()

	if metricsErr != nil {
		return fmt.Errorf("metrics server shutdown error: %w", metricsErr)
	}
	s.logger.Info().Msg("stopped")
	return nil
}

// Readers returns the configured readers by construction order
func (s *Server) Readers() []*reader.Reader {
	return s.readers
}

func breakerConfig(bc *config.BreakerConfig) provider.BreakerConfig {
	if bc == nil {
		return provider.BreakerConfig{}
	}
	return provider.BreakerConfig{
		Enabled:          bc.Enabled,
		FailureThreshold: bc.FailureThreshold,
		RecoveryTimeout:  time.Duration(bc.RecoveryTimeout) * time.Millisecond,
		ProbeRequests:    bc.ProbeRequests,
	}
}
