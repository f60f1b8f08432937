package telemetry

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject samples are published on.
const DefaultSubject = "spg.samples"

// Publisher is the subset of *nats.Conn the publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes each line of the stream as one message. The
// header and records go to Subject; diagnostics go to Subject + ".debug".
type NATSPublisher struct {
	pub     Publisher
	Subject string
}

// NewNATSPublisher returns a publisher on subject. An empty subject selects
// DefaultSubject.
func NewNATSPublisher(pub Publisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{pub: pub, Subject: subject}
}

// WriteHeader implements Emitter.
func (p *NATSPublisher) WriteHeader() error {
	return p.publish(p.Subject, Header)
}

// WriteRecord implements Emitter.
func (p *NATSPublisher) WriteRecord(r Record) error {
	s, err := FormatRecord(r)
	if err != nil {
		return err
	}
	return p.publish(p.Subject, s)
}

// WriteDiagnostic implements Emitter.
func (p *NATSPublisher) WriteDiagnostic(d Diagnostic) error {
	return p.publish(p.Subject+".debug", FormatDiagnostic(d))
}

func (p *NATSPublisher) publish(subject, line string) error {
	if err := p.pub.Publish(subject, []byte(line)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
