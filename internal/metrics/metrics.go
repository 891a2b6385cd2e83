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

	Cycles        *prometheus.CounterVec   // feed, result: success|error
	CycleDuration *prometheus.HistogramVec // feed
	CycleSkipped  *prometheus.CounterVec   // feed

	VehiclesCorrelated prometheus.Gauge
	VehiclesWithStatus prometheus.Gauge

	RowsWritten *prometheus.CounterVec // table

	StoreConnectAttempts *prometheus.CounterVec // result: success|error
	StoreReady           prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	TrimetInterval  prometheus.Gauge // seconds
	WeatherInterval prometheus.Gauge // seconds
}

func NewCollector(trimetInterval, weatherInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_cycles_total",
			Help: "Observation cycles by feed and result.",
		}, []string{"feed", "result"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "observer_cycle_duration_seconds",
			Help:    "Duration of observation cycles from fetch to last write.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"feed"}),
		CycleSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_cycles_skipped_total",
			Help: "Cycles skipped because the previous cycle of the same feed was still running.",
		}, []string{"feed"}),
		VehiclesCorrelated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observer_vehicles_correlated",
			Help: "Vehicles in the last correlated transit snapshot.",
		}),
		VehiclesWithStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observer_vehicles_with_status",
			Help: "Vehicles in the last snapshot with a matched stop-time update.",
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_rows_written_total",
			Help: "Rows written by table.",
		}, []string{"table"}),
		StoreConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_store_connect_attempts_total",
			Help: "Store connection attempts by result.",
		}, []string{"result"}),
		StoreReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observer_store_ready",
			Help: "1 once the store is connected and its schema checked, 0 otherwise.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "observer_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "observer_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observer_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "observer_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TrimetInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observer_trimet_interval_seconds",
			Help: "Transit observation interval in seconds.",
		}),
		WeatherInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "observer_weather_interval_seconds",
			Help: "Weather observation interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Cycles, c.CycleDuration, c.CycleSkipped,
		c.VehiclesCorrelated, c.VehiclesWithStatus,
		c.RowsWritten,
		c.StoreConnectAttempts, c.StoreReady,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.TrimetInterval, c.WeatherInterval,
	)

	c.TrimetInterval.Set(trimetInterval.Seconds())
	c.WeatherInterval.Set(weatherInterval.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

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
