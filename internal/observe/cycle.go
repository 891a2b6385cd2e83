// Package observe runs the two observation cycles (transit and weather) and
// schedules them once the store is ready.
package observe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/gtfs"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/weather"
)

const (
	FeedTrimet  = "trimet"
	FeedWeather = "weather"
)

const DefaultWriteConcurrency = 8

// ErrCycleInFlight is returned when a cycle is invoked while the previous
// cycle of the same feed has not finished.
var ErrCycleInFlight = errors.New("observation cycle already in flight")

type State int

const (
	StateIdle State = iota
	StateFetching
	StateCorrelating
	StateNormalizing
	StatePersisting
	// StateFailed holds until the next invocation of the same feed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateCorrelating:
		return "correlating"
	case StateNormalizing:
		return "normalizing"
	case StatePersisting:
		return "persisting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type TransitSource interface {
	VehiclePositions(ctx context.Context) ([]gtfs.VehiclePosition, error)
	TripUpdates(ctx context.Context) ([]gtfs.TripUpdate, error)
}

type WeatherSource interface {
	Current(ctx context.Context) (*weather.Payload, error)
}

// Store is the write side of db.Store used by the cycles.
type Store interface {
	BeginObservationBatch(ctx context.Context) (uuid.UUID, error)
	UpsertRouteDescription(ctx context.Context, routeID string, label *string) error
	WriteTripUpdate(ctx context.Context, observationID uuid.UUID, vehicleID string, vs *gtfs.VehicleStatus) error
	UpsertWeatherDescription(ctx context.Context, code int32, text string) error
	WriteWeatherObservation(ctx context.Context, obs weather.Observation) error
}

type Publisher interface {
	PublishVehicleStatuses(observationID uuid.UUID, statuses map[string]*gtfs.VehicleStatus) error
	PublishWeather(obs weather.Observation) error
}

type Metrics interface {
	CycleDone(feed string, d time.Duration, err error)
	CycleSkipped(feed string)
	Correlated(vehicles, withStatus int)
}

type Cycle struct {
	transit          TransitSource
	weather          WeatherSource
	store            Store
	publisher        Publisher
	metrics          Metrics
	writeConcurrency int

	trimetRunning  sync.Mutex
	weatherRunning sync.Mutex

	mu     sync.Mutex
	states map[string]State
}

type Option func(*Cycle)

func WithPublisher(p Publisher) Option {
	return func(c *Cycle) { c.publisher = p }
}

func WithMetrics(m Metrics) Option {
	return func(c *Cycle) { c.metrics = m }
}

func WithWriteConcurrency(n int) Option {
	return func(c *Cycle) {
		if n > 0 {
			c.writeConcurrency = n
		}
	}
}

func NewCycle(transit TransitSource, ws WeatherSource, store Store, opts ...Option) *Cycle {
	c := &Cycle{
		transit:          transit,
		weather:          ws,
		store:            store,
		writeConcurrency: DefaultWriteConcurrency,
		states:           map[string]State{FeedTrimet: StateIdle, FeedWeather: StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports where the given feed's cycle currently is.
func (c *Cycle) State(feed string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[feed]
}

func (c *Cycle) setState(feed string, s State) {
	c.mu.Lock()
	c.states[feed] = s
	c.mu.Unlock()
}

// begin claims the feed's single-flight slot. The returned func releases it
// and records the outcome.
func (c *Cycle) begin(feed string, slot *sync.Mutex) (func(err error), error) {
	if !slot.TryLock() {
		log.Printf("%s cycle skipped: previous cycle still running", feed)
		if c.metrics != nil {
			c.metrics.CycleSkipped(feed)
		}
		return nil, ErrCycleInFlight
	}
	start := time.Now()
	c.setState(feed, StateFetching)
	return func(err error) {
		if err != nil {
			c.setState(feed, StateFailed)
		} else {
			c.setState(feed, StateIdle)
		}
		if c.metrics != nil {
			c.metrics.CycleDone(feed, time.Since(start), err)
		}
		slot.Unlock()
	}, nil
}

// ObserveTrimet fetches both transit feeds, correlates them and persists one
// observation batch. Any fetch or decode failure aborts before anything is
// written. The first failed write cancels the remaining ones.
func (c *Cycle) ObserveTrimet(ctx context.Context) (err error) {
	done, err := c.begin(FeedTrimet, &c.trimetRunning)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	var (
		positions []gtfs.VehiclePosition
		updates   []gtfs.TripUpdate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if positions, err = c.transit.VehiclePositions(gctx); err != nil {
			return fmt.Errorf("vehicle positions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if updates, err = c.transit.TripUpdates(gctx); err != nil {
			return fmt.Errorf("trip updates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.setState(FeedTrimet, StateCorrelating)
	statuses := gtfs.Correlate(positions, updates)
	withStatus := 0
	for _, vs := range statuses {
		if vs.Status != nil {
			withStatus++
		}
	}
	if c.metrics != nil {
		c.metrics.Correlated(len(statuses), withStatus)
	}

	c.setState(FeedTrimet, StatePersisting)
	observationID, err := c.store.BeginObservationBatch(ctx)
	if err != nil {
		return fmt.Errorf("begin observation batch: %w", err)
	}

	var written atomic.Int64
	w, wctx := errgroup.WithContext(ctx)
	w.SetLimit(c.writeConcurrency)
	for vehicleID, vs := range statuses {
		vehicleID, vs := vehicleID, vs
		w.Go(func() error {
			if err := wctx.Err(); err != nil {
				return err
			}
			if vs.RouteID != nil {
				if err := c.store.UpsertRouteDescription(wctx, *vs.RouteID, vs.RouteLabel); err != nil {
					return err
				}
			}
			if err := c.store.WriteTripUpdate(wctx, observationID, vehicleID, vs); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}
	if err := w.Wait(); err != nil {
		return fmt.Errorf("observation %s: wrote %d of %d vehicles: %w", observationID, written.Load(), len(statuses), err)
	}
	log.Printf("observation %s: wrote %d vehicles (%d with stop status)", observationID, len(statuses), withStatus)

	if c.publisher != nil {
		if err := c.publisher.PublishVehicleStatuses(observationID, statuses); err != nil {
			log.Printf("publish observation %s: %v", observationID, err)
		}
	}
	return nil
}

// ObserveWeather fetches current conditions and writes one weather sample.
func (c *Cycle) ObserveWeather(ctx context.Context) (err error) {
	done, err := c.begin(FeedWeather, &c.weatherRunning)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	payload, err := c.weather.Current(ctx)
	if err != nil {
		return fmt.Errorf("current weather: %w", err)
	}

	c.setState(FeedWeather, StateNormalizing)
	obs, err := weather.Normalize(payload)
	if err != nil {
		return err
	}

	c.setState(FeedWeather, StatePersisting)
	if err := c.store.UpsertWeatherDescription(ctx, obs.WeatherCode, obs.Description); err != nil {
		return err
	}
	if err := c.store.WriteWeatherObservation(ctx, obs); err != nil {
		return err
	}
	log.Printf("weather: %.1f (feels %.1f), code %d %q", obs.Temperature, obs.FeelsLike, obs.WeatherCode, obs.Description)

	if c.publisher != nil {
		if err := c.publisher.PublishWeather(obs); err != nil {
			log.Printf("publish weather: %v", err)
		}
	}
	return nil
}
