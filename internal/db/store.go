package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrConnection = errors.New("store connection error")
	ErrSchema     = errors.New("store schema error")
	ErrQuery      = errors.New("store query error")
	ErrEmptyBatch = errors.New("no observation batch id returned")
	ErrNotReady   = errors.New("store is not ready")
)

const DefaultRetryInterval = 2 * time.Second

// State is the store lifecycle: Disconnected -> Connecting -> Ready.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Opener opens and verifies a connection pool.
type Opener func(ctx context.Context) (*sql.DB, error)

// SchemaFunc makes sure every table exists and reports whether it had to
// create any.
type SchemaFunc func(ctx context.Context, db *sql.DB) (created bool, err error)

// Metrics receives store lifecycle and write events. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ConnectAttempt(ok bool)
	SetReady(ready bool)
	RowsWritten(table string, n int)
}

// Store owns the connection pool and every persisted row.
type Store struct {
	open          Opener
	ensureSchema  SchemaFunc
	retryInterval time.Duration
	metrics       Metrics

	mu    sync.RWMutex
	db    *sql.DB
	state State
}

// Option configures the store.
type Option func(*Store)

// WithRetryInterval overrides the fixed connection retry interval.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// WithSchemaFunc overrides the schema bootstrap step.
func WithSchemaFunc(fn SchemaFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.ensureSchema = fn
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func New(open Opener, opts ...Option) *Store {
	s := &Store{
		open:          open,
		ensureSchema:  EnsureSchema,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ConnectWithRetry attempts to open the pool every retry interval until it
// succeeds or ctx is done. The interval is flat; there is no attempt limit.
func (s *Store) ConnectWithRetry(ctx context.Context) (*sql.DB, error) {
	s.setState(StateConnecting)
	b := backoff.WithContext(backoff.NewConstantBackOff(s.retryInterval), ctx)
	db, err := backoff.RetryNotifyWithData(
		func() (*sql.DB, error) {
			db, err := s.open(ctx)
			if s.metrics != nil {
				s.metrics.ConnectAttempt(err == nil)
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConnection, err)
			}
			return db, nil
		},
		b,
		func(err error, d time.Duration) {
			log.Printf("store connect failed, retrying in %s: %v", d, err)
		},
	)
	if err != nil {
		s.setState(StateDisconnected)
		return nil, err
	}
	return db, nil
}

// Bootstrap connects (retrying forever) and then runs the schema step exactly
// once. A schema failure is logged and the store is treated as provisioned.
// The store is Ready when Bootstrap returns without error.
func (s *Store) Bootstrap(ctx context.Context) (created bool, err error) {
	if s.State() == StateReady {
		return false, nil
	}
	db, err := s.ConnectWithRetry(ctx)
	if err != nil {
		return false, err
	}
	log.Printf("store connected")

	created, err = s.ensureSchema(ctx, db)
	switch {
	case err != nil:
		log.Printf("schema bootstrap failed, assuming it is already provisioned: %v", err)
		created = false
	case created:
		log.Printf("schema created")
	default:
		log.Printf("schema already provisioned")
	}

	s.mu.Lock()
	s.db = db
	s.state = StateReady
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetReady(true)
	}
	return created, nil
}

// DB returns the pool once the store is ready.
func (s *Store) DB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady || s.db == nil {
		return nil, ErrNotReady
	}
	return s.db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetReady(false)
	}
	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *Store) rowsWritten(table string) {
	if s.metrics != nil {
		s.metrics.RowsWritten(table, 1)
	}
}
