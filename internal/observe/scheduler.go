package observe

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	DefaultTrimetInterval  = time.Minute
	DefaultWeatherInterval = 30 * time.Minute
)

type Task func(ctx context.Context) error

type task struct {
	name   string
	period time.Duration
	fn     Task
}

// Scheduler runs named periodic tasks. Each task runs once on Start and then
// on every tick; a tick that fires while the task is still running is dropped.
type Scheduler struct {
	tasks  []task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler() *Scheduler { return &Scheduler{} }

// Every registers fn to run every period. It must be called before Start.
func (s *Scheduler) Every(name string, period time.Duration, fn Task) {
	s.tasks = append(s.tasks, task{name: name, period: period, fn: fn})
}

func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, t := range s.tasks {
		if t.period <= 0 {
			log.Printf("task %s has no period, not scheduled", t.name)
			continue
		}
		t := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, t)
		}()
	}
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	// immediate run on start
	s.run(ctx, t)
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, t)
			// drop a tick that queued up during a long run
			select {
			case <-ticker.C:
				log.Printf("task %s overran its %s period, tick dropped", t.name, t.period)
			default:
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t task) {
	if ctx.Err() != nil {
		return
	}
	if err := t.fn(ctx); err != nil && !errors.Is(err, ErrCycleInFlight) {
		log.Printf("%s task error: %v", t.name, err)
	}
}

// Stop cancels the task loops and waits for running tasks to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

type Bootstrapper interface {
	Bootstrap(ctx context.Context) (created bool, err error)
}

type Intervals struct {
	Trimet  time.Duration
	Weather time.Duration
}

// Run bootstraps the store and only then schedules both cycles, so the first
// cycles fire right after bootstrap and never before it. It blocks until the
// store is ready or ctx is done.
func Run(ctx context.Context, boot Bootstrapper, c *Cycle, iv Intervals) (*Scheduler, error) {
	if _, err := boot.Bootstrap(ctx); err != nil {
		return nil, err
	}

	if iv.Trimet <= 0 {
		iv.Trimet = DefaultTrimetInterval
	}
	if iv.Weather <= 0 {
		iv.Weather = DefaultWeatherInterval
	}
	s := NewScheduler()
	s.Every(FeedTrimet, iv.Trimet, c.ObserveTrimet)
	s.Every(FeedWeather, iv.Weather, c.ObserveWeather)
	s.Start(ctx)
	log.Printf("observing trimet every %s, weather every %s", iv.Trimet, iv.Weather)
	return s, nil
}
