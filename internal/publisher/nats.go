package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/gtfs"
	"github.com/stassinopoulosari/data503-trimet-weather/internal/weather"
)

const DefaultSubjectPrefix = "observer"

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          conn
	raw         *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("trimet-weather-observer"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m)
	p.raw = nc
	return p, nil
}

func newPublisher(nc conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.raw != nil {
		p.raw.Drain()
		p.raw.Close()
	}
}

type VehicleStatusMessage struct {
	ObservationID  uuid.UUID    `json:"observationId"`
	VehicleID      string       `json:"vehicleId"`
	ObservedAt     time.Time    `json:"observedAt"`
	StopInSequence *uint32      `json:"stopInSequence,omitempty"`
	TripID         *string      `json:"tripId,omitempty"`
	RouteID        *string      `json:"routeId,omitempty"`
	RouteLabel     *string      `json:"routeLabel,omitempty"`
	Status         *gtfs.Status `json:"status,omitempty"`
}

type WeatherMessage struct {
	ObservedAt time.Time `json:"observedAt"`
	weather.Observation
}

// PublishVehicleStatuses sends one message per vehicle on
// <prefix>.trimet.<route>.<vehicle>. Vehicles without a route go under "_".
// Every vehicle is attempted; the first error is returned.
func (p *NATSPublisher) PublishVehicleStatuses(observationID uuid.UUID, statuses map[string]*gtfs.VehicleStatus) error {
	now := time.Now().UTC()
	var firstErr error
	for vehicleID, vs := range statuses {
		if vs == nil {
			vs = &gtfs.VehicleStatus{}
		}
		route := ""
		if vs.RouteID != nil {
			route = *vs.RouteID
		}
		msg := VehicleStatusMessage{
			ObservationID:  observationID,
			VehicleID:      vehicleID,
			ObservedAt:     now,
			StopInSequence: vs.StopInSequence,
			TripID:         vs.TripID,
			RouteID:        vs.RouteID,
			RouteLabel:     vs.RouteLabel,
			Status:         vs.Status,
		}
		subject := p.subject("trimet", subjectToken(route), subjectToken(vehicleID))
		if err := p.publish(subject, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *NATSPublisher) PublishWeather(obs weather.Observation) error {
	return p.publish(p.subject("weather"), WeatherMessage{ObservedAt: time.Now().UTC(), Observation: obs})
}

func (p *NATSPublisher) subject(tokens ...string) string {
	return p.prefix + "." + strings.Join(tokens, ".")
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
