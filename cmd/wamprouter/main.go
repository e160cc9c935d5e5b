// Command wamprouter runs a standalone router process: realm routing on the
// configured runtime, Prometheus metrics, an optional meta-event journal and
// an optional HTTP bridge into one realm. Configuration is read from WAMP_*
// environment variables (see package config).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/wamp-router-go/config"
	"github.com/ggoodman/wamp-router-go/future"
	"github.com/ggoodman/wamp-router-go/future/callback"
	"github.com/ggoodman/wamp-router-go/future/cooperative"
	"github.com/ggoodman/wamp-router-go/httpbridge"
	"github.com/ggoodman/wamp-router-go/internal/logctx"
	"github.com/ggoodman/wamp-router-go/journal"
	journalmemory "github.com/ggoodman/wamp-router-go/journal/memory"
	journalredis "github.com/ggoodman/wamp-router-go/journal/redis"
	"github.com/ggoodman/wamp-router-go/metrics"
	"github.com/ggoodman/wamp-router-go/realmconfig"
	"github.com/ggoodman/wamp-router-go/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wamprouter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lvl, _ := cfg.Level()
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// The runtime outlives gctx so that shutdown can still detach sessions.
	rt, runRuntime, closeRuntime := newRuntime(cfg.Runtime, log)
	if runRuntime != nil {
		g.Go(func() error { return runRuntime(context.Background()) })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(reg)
	if err != nil {
		closeRuntime()
		return fmt.Errorf("register metrics: %w", err)
	}
	observers := []router.Observer{collector}

	var j journal.Journal
	switch {
	case cfg.JournalRedisAddr != "":
		rj, err := journalredis.New(journalredis.Config{Addr: cfg.JournalRedisAddr, KeyPrefix: cfg.JournalKeyPrefix})
		if err != nil {
			closeRuntime()
			return fmt.Errorf("journal: %w", err)
		}
		defer func() { _ = rj.Close() }()
		j = rj
	case cfg.JournalMemory:
		j = journalmemory.New()
	}
	if j != nil {
		rec := journal.NewRecorder(j, journal.WithLogger(log))
		observers = append(observers, rec)
		g.Go(func() error { return ignoreCanceled(rec.Run(gctx)) })
	}

	opts := []router.FactoryOption{
		router.WithLogger(log),
		router.WithObservers(observers...),
		router.WithAutoCreate(cfg.AutoCreateRealms),
		router.WithStrictURIs(cfg.StrictURIs),
		router.WithIdleRealmCache(cfg.IdleRealmCache),
	}
	if cfg.RealmsFile != "" {
		catalog, err := realmconfig.Load(cfg.RealmsFile, realmconfig.WithLogger(log))
		if err != nil {
			closeRuntime()
			return err
		}
		opts = append(opts, router.WithRealmCatalog(catalog))
		g.Go(func() error { return ignoreCanceled(catalog.Watch(gctx)) })
	}
	sf := router.NewSessionFactory(router.NewFactory(rt, opts...))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if cfg.BridgeRealm != "" {
		bridge, err := httpbridge.New(gctx, sf, cfg.BridgeRealm, httpbridge.WithLogger(log))
		if err != nil {
			closeRuntime()
			return err
		}
		mux.Handle("/bridge/", http.StripPrefix("/bridge", bridge))
	}
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		log.Info("http.listening", slog.String("addr", cfg.HTTPAddr), slog.String("runtime", cfg.Runtime))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown.started")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := multierr.Combine(
			srv.Shutdown(shutdownCtx),
			sf.Close(shutdownCtx),
		)
		closeRuntime()
		return err
	})

	return g.Wait()
}

// newRuntime is the one place the execution model is chosen. run is nil for
// runtimes that need no driving goroutine.
func newRuntime(kind string, log *slog.Logger) (rt future.Runtime, run func(context.Context) error, closeFn func()) {
	switch kind {
	case config.RuntimeCallback:
		r := callback.New(callback.WithLogger(log))
		return r, nil, r.Close
	default:
		l := cooperative.New(cooperative.WithLogger(log))
		return l, l.Run, l.Close
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
