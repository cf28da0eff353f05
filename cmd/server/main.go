package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tunitrip/internal/api"
	"tunitrip/internal/catalog"
	"tunitrip/internal/config"
	"tunitrip/internal/db"
	"tunitrip/internal/locations"
	"tunitrip/internal/metrics"
	"tunitrip/internal/projection"
	"tunitrip/internal/publisher"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := cfg.DatabaseURL
	if cfg.DBName != "" {
		dsn, err = db.WithDBName(dsn, cfg.DBName)
		if err != nil {
			log.Fatalf("compose DSN: %v", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	store := db.NewStore(sqlDB)

	ref := locations.Default()
	if cfg.LocationsFile != "" {
		ref, err = locations.Load(cfg.LocationsFile)
		if err != nil {
			log.Fatalf("locations error: %v", err)
		}
	}

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickInterval, cfg.TripsRefreshInterval)
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	cat := catalog.New(store, catalogMetrics(mcol))
	if err := cat.Refresh(ctx); err != nil {
		log.Fatalf("initial catalog load: %v", err)
	}
	snap := cat.Snapshot()
	log.Printf("catalog loaded: %d trips, %d stations", len(snap.Trips), snap.Stations.Len())
	go cat.Run(ctx, cfg.TripsRefreshInterval)

	srv := api.New(store, cat, ref, api.Options{
		Location:       cfg.Location,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        apiMetrics(mcol),
	})
	defer srv.Close()

	sinks := []projection.Sink{srv.Hub()}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	} else {
		log.Printf("NATS_URL not set, live positions stay local")
	}

	runner := projection.NewRunner(cat, cfg.TickInterval, cfg.Location, tickMetrics(mcol), sinks...)
	runner.Start(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	// Websocket connections are hijacked, so Shutdown does not wait for them.
	srv.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	runner.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}

// The helpers below keep a nil Collector from turning into a non-nil
// interface value.

func catalogMetrics(c *metrics.Collector) catalog.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func tickMetrics(c *metrics.Collector) projection.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func apiMetrics(c *metrics.Collector) api.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
