package publisher

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"tunitrip/internal/projection"

	"github.com/nats-io/nats.go"
)

// RemovedToken is the subject token used for markers leaving the map.
const RemovedToken = "removed"

// NATSPublisher streams projection frames to NATS, one message per
// created or moved marker and one per removed trip.
type NATSPublisher struct {
	nc          *nats.Conn
	conn        conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type conn interface {
	Publish(subject string, data []byte) error
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tunitrip"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
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
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "live"
	}
	return &NATSPublisher{conn: c, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	TripID    string    `json:"tripId"`
	Type      string    `json:"type"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	Progress  float64   `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
}

type RemovedMessage struct {
	TripID    string    `json:"tripId"`
	Timestamp time.Time `json:"timestamp"`
}

// Consume publishes the diff of a projection frame. Errors are logged
// and counted; the next frame is published regardless.
func (p *NATSPublisher) Consume(f projection.Frame) {
	for _, set := range [][]projection.Marker{f.Diff.Created, f.Diff.Moved} {
		for _, m := range set {
			if err := p.PublishPosition(m, f.At); err != nil {
				log.Printf("publish position trip=%s: %v", m.TripID, err)
			}
		}
	}
	for _, id := range f.Diff.Removed {
		if err := p.publish(p.subject(RemovedToken, id), RemovedMessage{TripID: id, Timestamp: f.At}); err != nil {
			log.Printf("publish removal trip=%s: %v", id, err)
		}
	}
}

func (p *NATSPublisher) PublishPosition(m projection.Marker, at time.Time) error {
	msg := PositionMessage{
		TripID:    m.TripID,
		Type:      string(m.Type),
		Lat:       m.Position.Lat,
		Lng:       m.Position.Lng,
		Heading:   m.Heading,
		Progress:  m.Progress,
		Timestamp: at,
	}
	return p.publish(p.subject(string(m.Type), m.TripID), msg)
}

func (p *NATSPublisher) subject(kind, tripID string) string {
	return p.prefix + "." + subjectToken(kind) + "." + subjectToken(tripID)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
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
