package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexto0/dip-arbiter/config"
	"github.com/nexto0/dip-arbiter/internal/adapters/chain"
	"github.com/nexto0/dip-arbiter/internal/adapters/clob"
	"github.com/nexto0/dip-arbiter/internal/adapters/notify"
	"github.com/nexto0/dip-arbiter/internal/adapters/storage"
	"github.com/nexto0/dip-arbiter/internal/discovery"
	"github.com/nexto0/dip-arbiter/internal/domain"
	"github.com/nexto0/dip-arbiter/internal/engine"
	"github.com/nexto0/dip-arbiter/internal/metrics"
	"github.com/nexto0/dip-arbiter/internal/orderbook"
	"github.com/nexto0/dip-arbiter/internal/rotation"
	"github.com/nexto0/dip-arbiter/internal/transport"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print a recent-rounds table alongside the event log")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("dip-arbiter starting", "config", *configPath, "underlyings", cfg.Rotation.Underlyings)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient := clob.NewClient(cfg.CLOB.Base)
	gamma := clob.NewGammaClient(httpClient, cfg.CLOB.GammaBase)
	books := clob.NewBookSnapshotter(httpClient)

	authClient, err := clob.NewAuthClient(httpClient, cfg.CLOB.PrivateKeyHex)
	if err != nil {
		slog.Error("failed to build CLOB auth client", "err", err)
		os.Exit(1)
	}
	execClient := clob.NewExecutionClient(authClient)

	settleClient, err := chain.NewSettlementClient(cfg.Chain.RPCURL, cfg.Chain.PrivateKeyHex)
	if err != nil {
		slog.Error("failed to build chain settlement client", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewRedemptionStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open redemption store", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewEventConsole(*table)
	collector := metrics.New(prometheus.DefaultRegisterer)

	tr := transport.New(cfg.Transport.WSURL)
	go tr.Run(ctx)

	discoverySvc := discovery.New(gamma)
	obSvc := orderbook.New(books)

	eng := engine.New(tr, execClient, settleClient)
	eng.Configure(cfg.Engine)

	sup := rotation.New(eng, discoverySvc, settleClient, execClient, store)

	eng.On(domain.EventStarted, forward(notifier, collector, eng))
	eng.On(domain.EventStopped, forward(notifier, collector, eng))
	eng.On(domain.EventNewRound, forward(notifier, collector, eng))
	eng.On(domain.EventSignal, forward(notifier, collector, eng))
	eng.On(domain.EventExecution, forward(notifier, collector, eng))
	eng.On(domain.EventRoundComplete, forward(notifier, collector, eng))
	eng.On(domain.EventPriceUpdate, forward(notifier, collector, eng))
	eng.On(domain.EventError, forward(notifier, collector, eng))

	sup.On(domain.EventRotate, func(ev domain.Event) {
		collector.ObserveRotation(ev.RotateReason)
		_ = notifier.Notify(ctx, ev)
	})
	sup.On(domain.EventSettled, func(ev domain.Event) {
		_ = notifier.Notify(ctx, ev)
	})

	initial, err := pickStartingMarket(ctx, discoverySvc, cfg.Rotation)
	if err != nil {
		slog.Error("no starting market found", "err", err)
		os.Exit(1)
	}

	if err := eng.Start(ctx, initial); err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}
	sup.EnableRotation(ctx, cfg.Rotation, initial)

	go reportArbitrage(ctx, obSvc, eng)
	go servePendingGauge(ctx, store, collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	sup.DisableRotation()
	eng.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	slog.Info("dip-arbiter stopped cleanly")
}

// forward bridges engine events to both the console notifier and the
// Prometheus mirror, refreshing the monotonic counters on every event.
func forward(notifier *notify.EventConsole, collector *metrics.Collector, eng *engine.Engine) func(domain.Event) {
	return func(ev domain.Event) {
		if err := notifier.Notify(context.Background(), ev); err != nil {
			slog.Warn("notifier error", "err", err)
		}
		collector.Refresh(eng.Statistics())
	}
}

// pickStartingMarket runs one discovery scan across the configured
// underlyings/duration and returns the soonest-ending candidate.
func pickStartingMarket(ctx context.Context, svc *discovery.Service, cfg domain.RotationConfig) (domain.Market, error) {
	q := domain.DiscoveryQuery{
		Coins:              cfg.Underlyings,
		Durations:          []domain.Duration{cfg.Duration},
		MinMinutesUntilEnd: 1,
		MaxMinutesUntilEnd: 30,
		SortBy:             domain.SortByEndDate,
		Limit:              1,
	}
	candidates, err := svc.ScanCryptoShortTermMarkets(ctx, q)
	if err != nil {
		return domain.Market{}, err
	}
	if len(candidates) == 0 {
		return domain.Market{}, errNoMarket
	}
	return candidates[0], nil
}

var errNoMarket = errors.New("discovery: no candidate market found")

// reportArbitrage periodically logs the Orderbook Service's derived
// metrics for the engine's current market, independent of the engine's
// own state machine (§4.3 is a read-only wrapper, not a new operation).
func reportArbitrage(ctx context.Context, obSvc *orderbook.Service, eng *engine.Engine) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			market := eng.CurrentMarket()
			if market.ConditionID == "" {
				continue
			}
			result, err := obSvc.Analyze(ctx, market)
			if err != nil {
				slog.Debug("arbitrage analysis failed", "market", market.ConditionID, "err", err)
				continue
			}
			if result.Category != domain.ArbitrageNone {
				slog.Info("arbitrage opportunity observed",
					"market", market.ConditionID, "category", result.Category, "action", result.Action)
			}
		}
	}
}

func servePendingGauge(ctx context.Context, store *storage.RedemptionStore, collector *metrics.Collector) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			list, err := store.List(ctx)
			if err != nil {
				continue
			}
			collector.SetPendingRedemptions(len(list))
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
