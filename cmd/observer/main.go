package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/config"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/db"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/feed"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/metrics"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/observe"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/publisher"
)

func main() {
	InitLogging()

	// Load configuration from .env, OBSERVER_CONFIG and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TrimetInterval, cfg.WeatherInterval)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Optional NATS fan-out of every persisted cycle
	var opts []observe.Option
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		opts = append(opts, observe.WithPublisher(pub))
	}
	opts = append(opts, observe.WithWriteConcurrency(cfg.WriteConcurrency))
	if cm := wrapCycleMetrics(mcol); cm != nil {
		opts = append(opts, observe.WithMetrics(cm))
	}

	storeOpts := []db.Option{db.WithRetryInterval(cfg.DBRetryInterval)}
	if sm := wrapStoreMetrics(mcol); sm != nil {
		storeOpts = append(storeOpts, db.WithMetrics(sm))
	}
	store := db.New(db.PostgresOpener(cfg.DatabaseURL), storeOpts...)
	defer store.Close()

	client := feed.NewClient(cfg.FetchTimeout)
	vpURL, tuURL := feed.TriMetURLs(cfg.TrimetAppID)
	cycle := observe.NewCycle(
		feed.NewTransitFeeds(client, vpURL, tuURL),
		feed.NewWeatherFeed(client, feed.WeatherURL(cfg.WeatherAPIKey, cfg.WeatherLat, cfg.WeatherLon, cfg.WeatherUnits)),
		store,
		opts...,
	)

	// Blocks until the store is connected and its schema checked
	sched, err := observe.Run(ctx, store, cycle, observe.Intervals{
		Trimet:  cfg.TrimetInterval,
		Weather: cfg.WeatherInterval,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("shutdown before store became ready")
		} else {
			log.Printf("bootstrap error: %v", err)
		}
		if metricsSrvCancel != nil {
			metricsSrvCancel()
		}
		return
	}

	// Block until context cancelled
	<-ctx.Done()
	sched.Stop()
	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("shutdown complete")
}

// InitLogging writes timestamped log lines to stdout.
func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
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
func (p *pubMetrics) NATSSetConnected(b bool)        { p.c.NATSConnected.Set(boolGauge(b)) }

func wrapStoreMetrics(c *metrics.Collector) db.Metrics {
	if c == nil {
		return nil
	}
	return &storeMetrics{c: c}
}

type storeMetrics struct{ c *metrics.Collector }

func (s *storeMetrics) ConnectAttempt(ok bool) {
	s.c.StoreConnectAttempts.WithLabelValues(result(ok)).Inc()
}
func (s *storeMetrics) SetReady(ready bool) { s.c.StoreReady.Set(boolGauge(ready)) }
func (s *storeMetrics) RowsWritten(table string, n int) {
	s.c.RowsWritten.WithLabelValues(table).Add(float64(n))
}

func wrapCycleMetrics(c *metrics.Collector) observe.Metrics {
	if c == nil {
		return nil
	}
	return &cycleMetrics{c: c}
}

type cycleMetrics struct{ c *metrics.Collector }

func (m *cycleMetrics) CycleDone(feed string, d time.Duration, err error) {
	m.c.Cycles.WithLabelValues(feed, result(err == nil)).Inc()
	m.c.CycleDuration.WithLabelValues(feed).Observe(d.Seconds())
}
func (m *cycleMetrics) CycleSkipped(feed string) { m.c.CycleSkipped.WithLabelValues(feed).Inc() }
func (m *cycleMetrics) Correlated(vehicles, withStatus int) {
	m.c.VehiclesCorrelated.Set(float64(vehicles))
	m.c.VehiclesWithStatus.Set(float64(withStatus))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
