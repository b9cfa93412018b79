package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

// Unsubscribe cancels a subscription.
type Unsubscribe func() error

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) (Unsubscribe, error)
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
	conn, err := nats.Connect(url,
		nats.Name("ukrbe-market"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
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

	logger.DebugContext(ctx, "Publishing event", "subject", subject)

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) (Unsubscribe, error) {
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Nop drops every event. Used when NATS is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) error { return nil }
func (Nop) Close() error                                       { return nil }

// Listing change actions
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
)

// ListingSubject is the subject for one change action in a listing domain.
func ListingSubject(domain, action string) string {
	return "listings." + domain + "." + action
}

// ListingWildcard matches every change in a listing domain.
func ListingWildcard(domain string) string {
	return "listings." + domain + ".*"
}

// ParseListingSubject splits listings.<domain>.<action>.
func ParseListingSubject(subject string) (domain, action string, ok bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "listings" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type ListingChangedEvent struct {
	Domain    string    `json:"domain"`
	Action    string    `json:"action"`
	ListingID string    `json:"listing_id"`
	UserID    string    `json:"user_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
