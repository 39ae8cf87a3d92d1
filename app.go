package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"bybit-autotrader/internal/engine"
	"bybit-autotrader/internal/market"
	"bybit-autotrader/internal/monitor"
	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/cache"
	"bybit-autotrader/pkg/config"
	"bybit-autotrader/pkg/crypto"
	"bybit-autotrader/pkg/exchanges/bybit"
	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/i18n"
	"bybit-autotrader/pkg/logging"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.FileStore
	ledger   store.Ledger
	codec    *crypto.CredentialCodec
	registry *prometheus.Registry
	metrics  *monitor.Metrics
	cache    cache.Cache
	monitor  *monitor.AuthMonitor
	clocks   map[bool]*common.TimeSync // by testnet
	closers  []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg(i18n.M().Starting)

	a := &app{cfg: cfg, log: log}

	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		l, err := store.NewSQLiteLedger(cfg.LedgerDBPath, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		a.ledger = l
		a.closers = append(a.closers, l.Close)
	default:
		l, err := store.NewJSONLedger(cfg.TradesFile, log)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.ledger = l
	}

	a.store = store.NewFileStore(cfg.UsersFile, a.ledger, log)
	if err := a.store.Open(); err != nil {
		a.Close()
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	log.Info().Msgf(i18n.M().ConfigLoaded, cfg.UsersFile, cfg.TradesFile, cfg.LedgerBackend)

	if a.codec, err = crypto.NewCredentialCodec(cfg.SecretsKey); err != nil {
		a.Close()
		return nil, fmt.Errorf("secrets key: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = monitor.NewMetrics(a.registry)

	switch {
	case cfg.RedisAddr != "":
		rc := cache.NewRedisCache(cache.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, log)
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
	case cfg.MarketCacheTTL > 0:
		a.cache = cache.NewShardedCache()
	}

	a.clocks = make(map[bool]*common.TimeSync, 2)
	for _, testnet := range []bool{false, true} {
		a.clocks[testnet] = bybit.NewTimeSync(bybit.Config{
			Testnet: testnet,
			Timeout: cfg.HTTPTimeout,
			Logger:  log,
		})
	}

	a.monitor = monitor.NewAuthMonitor(a.store, a.newGateway, a.codec, a.metrics, log)
	return a, nil
}

// newGateway is the monitor's client factory.
func (a *app) newGateway(creds monitor.Credentials, testnet bool) common.Gateway {
	return bybit.NewClient(bybit.Config{
		APIKey:     creds.APIKey,
		APISecret:  creds.APISecret,
		Testnet:    testnet,
		RecvWindow: a.cfg.RecvWindow,
		Timeout:    a.cfg.HTTPTimeout,
		RPS:        a.cfg.ExchangeRPS,
		Cache:      a.cache,
		CacheTTL:   a.cfg.MarketCacheTTL,
		TimeSync:   a.clocks[testnet],
		Observe:    a.metrics.ObserveRequest,
		Logger:     a.log,
	})
}

func (a *app) engine() *engine.Engine {
	if a.cfg.DryRun {
		a.log.Info().Msg(i18n.M().DryRunMode)
	}
	return engine.New(engine.Config{
		Profiles: a.store,
		Monitor:  a.monitor,
		Feed:     market.NewFeed(a.cfg.Timeframe, a.cfg.CandleLimit, a.log),
		Executor: engine.NewExecutor(a.store, a.cfg.DryRun, a.metrics, a.log),
		Metrics:  a.metrics,
		Workers:  a.cfg.Workers,
		Logger:   a.log,
	})
}

// sweepCache drops expired in-process cache entries until ctx is done.
func (a *app) sweepCache(ctx context.Context) {
	sc, ok := a.cache.(*cache.ShardedCache)
	if !ok {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sc.Cleanup(); n > 0 {
				a.log.Debug().Int("evicted", n).Msg("market cache sweep")
			}
		}
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
