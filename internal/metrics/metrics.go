package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	LiveMarkers    prometheus.Gauge
	MarkersCreated prometheus.Counter
	MarkersRemoved prometheus.Counter
	TickDuration   prometheus.Histogram

	Searches *prometheus.CounterVec // type label: louage|bus|transporter|none

	CatalogRefreshes *prometheus.CounterVec // result label: ok|error
	CatalogTrips     prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	WSClients prometheus.Gauge

	TickInterval    prometheus.Gauge // seconds
	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(tickInterval, refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LiveMarkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tunitrip_live_markers",
			Help: "Number of markers on the live map.",
		}),
		MarkersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tunitrip_markers_created_total",
			Help: "Total markers added to the live map.",
		}),
		MarkersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tunitrip_markers_removed_total",
			Help: "Total markers removed from the live map.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tunitrip_tick_duration_seconds",
			Help:    "Duration of route projection ticks.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tunitrip_searches_total",
			Help: "Searches served, by trip type.",
		}, []string{"type"}),
		CatalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tunitrip_catalog_refresh_total",
			Help: "Catalog reloads from the database, by result.",
		}, []string{"result"}),
		CatalogTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tunitrip_catalog_trips",
			Help: "Trips in the current catalog snapshot.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tunitrip_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tunitrip_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tunitrip_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tunitrip_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tunitrip_ws_clients",
			Help: "Connected live map websocket clients.",
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tunitrip_tick_interval_seconds",
			Help: "Projection tick interval in seconds.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tunitrip_refresh_interval_seconds",
			Help: "Catalog refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.LiveMarkers, c.MarkersCreated, c.MarkersRemoved, c.TickDuration,
		c.Searches, c.CatalogRefreshes, c.CatalogTrips,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.WSClients, c.TickInterval, c.RefreshInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())
	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

// TickObserved records one projection tick.
func (c *Collector) TickObserved(d time.Duration, markers, created, removed int) {
	c.TickDuration.Observe(d.Seconds())
	c.LiveMarkers.Set(float64(markers))
	c.MarkersCreated.Add(float64(created))
	c.MarkersRemoved.Add(float64(removed))
}

// RefreshObserved records one catalog reload.
func (c *Collector) RefreshObserved(ok bool, tripCount int) {
	if !ok {
		c.CatalogRefreshes.WithLabelValues("error").Inc()
		return
	}
	c.CatalogRefreshes.WithLabelValues("ok").Inc()
	c.CatalogTrips.Set(float64(tripCount))
}

func (c *Collector) SearchObserved(kind string) {
	if kind == "" {
		kind = "none"
	}
	c.Searches.WithLabelValues(kind).Inc()
}

func (c *Collector) WSClientsAdd(delta int) { c.WSClients.Add(float64(delta)) }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
