package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Invoice event types.
const (
	EventInvoiceCreated = "invoice_created"
	EventInvoiceUpdated = "invoice_updated"
)

// Publisher is the part of *nats.Conn the publisher uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes invoicing events to NATS for the
// notifications service.
//
// Subject convention: notifications.ar.<event_type>
//
// Publishing is best effort. Errors are logged and never returned, so a
// notification outage does not fail an invoice that Xero already accepted.
type NotificationPublisher struct {
	conn Publisher
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	TenantID     string         `json:"tenant_id"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Severity     string         `json:"severity"`
	Category     string         `json:"category"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil conn disables it.
func NewNotificationPublisher(conn Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// ConnectNATS dials NATS with reconnect logging.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// PublishInvoiceEvent publishes an invoice event.
func (p *NotificationPublisher) PublishInvoiceEvent(eventType, invoiceID, tenantID string, payload map[string]any) {
	if p == nil || p.conn == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		TenantID:     tenantID,
		ResourceType: "invoice",
		ResourceID:   invoiceID,
		Severity:     "info",
		Category:     "ar_invoicing",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := "notifications.ar." + eventType
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("invoice_id", invoiceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("invoice_id", invoiceID).
		Msg("notification: event published")
}
