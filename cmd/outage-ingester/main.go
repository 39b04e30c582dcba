package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"outage-ingester/internal/api"
	"outage-ingester/internal/clock"
	"outage-ingester/internal/config"
	"outage-ingester/internal/coordinator"
	"outage-ingester/internal/metrics"
	"outage-ingester/internal/sink"
	"outage-ingester/internal/source"
	"outage-ingester/internal/store"
	"outage-ingester/internal/translate"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	var (
		cfgPath = flag.String("config", "/config.yml", "path to YAML config")
		once    = flag.Bool("once", false, "run a single cycle then exit")
		verbose = flag.Bool("verbose", false, "enable development logging")
	)
	flag.Parse()

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(*cfgPath, *once, log); err != nil {
		log.Fatal("exiting", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfgPath string, once bool, log *zap.Logger) error {
	log.Info("outage-ingester starting", zap.String("version", Version))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return fmt.Errorf("location: %w", err)
	}
	clk := clock.System{Location: loc}
	m := metrics.New(prometheus.DefaultRegisterer)

	// Build sinks
	bus := sink.NewBus(log)
	bus.OnPush = m.SinkPush
	recent := sink.NewMemory(200)
	bus.Attach(recent)
	if strings.TrimSpace(cfg.Sinks.Loki.URL) != "" {
		bus.Attach(sink.NewLoki(cfg.Sinks.Loki))
		log.Info("loki sink enabled", zap.String("url", cfg.Sinks.Loki.URL))
	}
	if strings.TrimSpace(cfg.Sinks.Victoria.URL) != "" {
		bus.Attach(sink.NewVictoria(cfg.Sinks.Victoria))
		log.Info("victoria sink enabled", zap.String("url", cfg.Sinks.Victoria.URL))
	}

	coord := coordinator.New(coordinator.Options{
		Log:       log,
		Clock:     clk,
		Location:  loc,
		Lookahead: cfg.Lookahead,
		Bus:       bus,
		Metrics:   m,
		Names:     translate.New(cfg.Translations, log),
	})

	// Build providers; yasno zones share one region catalogue
	deps := source.Deps{Log: log, Clock: clk, Location: loc, Regions: store.NewRegionCache(cfg.RegionsTTL, clk)}
	for _, z := range cfg.Zones {
		p, err := source.NewFromConfig(z, deps)
		if err != nil {
			return fmt.Errorf("zone %q: %w", z.ID, err)
		}
		if err := coord.Add(z.ID, p); err != nil {
			return err
		}
		log.Info("configured zone", zap.String("zone", z.ID), zap.String("type", z.Type), zap.String("group", z.Group))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runOnce := func() {
		if err := coord.RunOnce(ctx); err != nil {
			log.Warn("cycle finished with errors", zap.Error(err))
		}
	}

	log.Info("polling", zap.Int("zones", len(cfg.Zones)), zap.Duration("interval", cfg.Interval))
	runOnce()
	if once {
		return nil
	}

	srv := api.New(api.Options{
		Server:        cfg.Server,
		Coordinator:   coord,
		Clock:         clk,
		Notifications: recent,
		Gatherer:      prometheus.DefaultGatherer,
		Log:           log,
		Window:        cfg.Lookahead,
	})
	go func() {
		log.Info("serving api", zap.String("addr", cfg.Server.ListenAddress))
		if err := srv.Serve(); err != nil {
			log.Error("http server", zap.Error(err))
			cancel()
		}
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping", zap.Error(ctx.Err()))
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		case <-ticker.C:
			runOnce()
		}
	}
}
