package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/avms/gatepass/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// NopBus satisfies EventBus when no broker is configured (dev mode).
type NopBus struct{}

func (NopBus) Publish(context.Context, string, interface{}) error      { return nil }
func (NopBus) Subscribe(string, func(msg *Message)) error              { return nil }
func (NopBus) QueueSubscribe(string, string, func(msg *Message)) error { return nil }
func (NopBus) Close() error                                            { return nil }

// Subjects
const (
	PassIssued  = "pass.issued"
	PassArrived = "pass.arrived"
	PassDenied  = "pass.denied"
	PassExpired = "pass.expired"

	AlertRaised       = "alert.raised"
	AlertAcknowledged = "alert.acknowledged"
)

// Event payloads
type PassIssuedEvent struct {
	PassID        string    `json:"pass_id"`
	HostFlat      string    `json:"host_flat"`
	VisitorName   string    `json:"visitor_name"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	CreatedAt     time.Time `json:"created_at"`
}

type PassDecidedEvent struct {
	PassID    string    `json:"pass_id"`
	HostFlat  string    `json:"host_flat"`
	Status    string    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
}

type PassExpiredEvent struct {
	PassID     string    `json:"pass_id"`
	HostFlat   string    `json:"host_flat"`
	ObservedAt time.Time `json:"observed_at"`
}

type AlertRaisedEvent struct {
	AlertID  string    `json:"alert_id"`
	Flat     string    `json:"flat"`
	RaisedAt time.Time `json:"raised_at"`
}

type AlertAcknowledgedEvent struct {
	AlertID        string    `json:"alert_id"`
	AcknowledgedBy string    `json:"acknowledged_by"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}
