// Package events publishes checkout lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	DefaultTopic = "checkout-completed"

	TypeCheckoutCompleted = "CheckoutCompleted"
)

// CheckoutCompleted is emitted once a paid session has cleared its cart.
type CheckoutCompleted struct {
	EventID     string            `json:"event_id"`
	SessionID   string            `json:"session_id"`
	UserID      string            `json:"user_id"`
	Items       []domain.CartItem `json:"items"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Currency    string            `json:"currency"`
	CompletedAt time.Time         `json:"completed_at"`
}

type Publisher interface {
	PublishCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes to topic on brokers. Messages are keyed by user id
// so events for one customer stay ordered.
func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}}
}

func (p *KafkaPublisher) PublishCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.CompletedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeCheckoutCompleted)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write checkout event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishCheckoutCompleted(context.Context, CheckoutCompleted) error { return nil }

func (NopPublisher) Close() error { return nil }

// ParseBrokers splits a comma separated broker list, skipping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// New returns a Kafka publisher, or a NopPublisher when brokers is empty.
func New(topic string, brokers []string) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return NewKafkaPublisher(topic, brokers...)
}
