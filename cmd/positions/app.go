package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"positionScope/internal/adapter"
	"positionScope/internal/adapter/univ3"
	"positionScope/internal/chain"
	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/storage"
)

// app is the state shared by every subcommand run.
type app struct {
	ctx      context.Context
	stop     context.CancelFunc
	cfg      config.Config
	logger   *zap.Logger
	registry *adapter.Registry
	metrics  *adapter.Metrics
	server   *http.Server
	out      *storage.JSONLWriter

	mu      sync.Mutex
	clients []*chain.Client
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	out, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{
		ctx:     ctx,
		stop:    stop,
		cfg:     cfg,
		logger:  logger,
		metrics: adapter.NewMetrics(prometheus.NewRegistry()),
		out:     out,
	}
	a.registry = adapter.NewRegistry(cfg.Deployments, a.dialReader,
		adapter.WithLogger(logger),
		adapter.WithMetrics(a.metrics),
		adapter.WithTimeout(cfg.Timeout),
		adapter.WithConcurrency(cfg.Concurrency),
		adapter.WithGasBufferPercent(cfg.GasBufferPercent),
	)
	univ3.Register(a.registry)
	a.serveMetrics()
	return a, nil
}

func (a *app) serveMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	a.server = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           a.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
}

func (a *app) dumpMetrics() error {
	switch a.cfg.MetricsOut {
	case "":
		return nil
	case "-":
		return a.metrics.WriteText(os.Stderr)
	}
	f, err := os.Create(a.cfg.MetricsOut)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := a.metrics.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// dialReader connects to the RPC endpoint of chainID and checks that it serves that chain.
func (a *app) dialReader(chainID uint64) (adapter.ChainReader, error) {
	url, err := a.cfg.RPCFor(chainID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Timeout)
	defer cancel()

	client, err := chain.NewClient(ctx, url, chain.RetryConfig{
		MaxRetries: a.cfg.MaxRetries,
		Backoff:    a.cfg.RetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	remote, err := client.GetChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if !remote.IsUint64() || remote.Uint64() != chainID {
		client.Close()
		return nil, fmt.Errorf("rpc serves chain %s, expected %d", remote.String(), chainID)
	}

	a.mu.Lock()
	a.clients = append(a.clients, client)
	a.mu.Unlock()

	a.logger.Debug("rpc connected", zap.Uint64("chain_id", chainID))
	return dex.NewReader(client, dex.NewTokenMetaCache(), a.logger.With(zap.Uint64("chain_id", chainID))), nil
}

// resolveOne returns the adapter of the single platform selected by --platform, or of the
// only enabled platform when none is given.
func (a *app) resolveOne() (adapter.Adapter, error) {
	platforms := a.cfg.Platforms
	if len(platforms) == 0 {
		platforms = a.registry.Platforms(a.cfg.ChainID)
	}
	if len(platforms) != 1 {
		return nil, fmt.Errorf("exactly one platform required on chain %d, have %v", a.cfg.ChainID, platforms)
	}
	return a.registry.Resolve(platforms[0], a.cfg.ChainID)
}

// resolveSelected resolves the platforms selected by --platform, or every enabled one.
func (a *app) resolveSelected() adapter.Resolution {
	if len(a.cfg.Platforms) == 0 {
		return a.registry.ResolveAll(a.cfg.ChainID)
	}
	var res adapter.Resolution
	for _, platform := range a.cfg.Platforms {
		ad, err := a.registry.Resolve(platform, a.cfg.ChainID)
		if err != nil {
			res.Failures = append(res.Failures, adapter.PlatformFailure{Platform: platform, Err: err})
			continue
		}
		res.Adapters = append(res.Adapters, ad)
	}
	return res
}

func (a *app) close() {
	if err := a.out.Close(); err != nil {
		a.logger.Warn("close output", zap.Error(err))
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	if err := a.dumpMetrics(); err != nil {
		a.logger.Warn("write metrics", zap.Error(err))
	}
	a.mu.Lock()
	for _, client := range a.clients {
		client.Close()
	}
	a.mu.Unlock()
	a.stop()
	a.logger.Sync()
}

// run wraps a subcommand body with app setup and teardown.
func run(fn func(a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(a, args)
	}
}
