package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/studio-reminders/internal/application"
)

// Publisher is the subset of *amqp.Channel the provider needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPProvider publishes rendered reminders to a topic exchange for an
// external mailer to consume.
type AMQPProvider struct {
	publisher   Publisher
	exchange    string
	idGenerator func() string
	now         func() time.Time
}

type reminderEnvelope struct {
	BookingID string `json:"booking_id"`
	Category  string `json:"category"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	Text      string `json:"text"`
}

// NewAMQPProvider wraps an open channel.
func NewAMQPProvider(publisher Publisher, exchange string) *AMQPProvider {
	return &AMQPProvider{
		publisher:   publisher,
		exchange:    exchange,
		idGenerator: uuid.NewString,
		now:         time.Now,
	}
}

// RoutingKey returns the key reminders of category are published under.
func RoutingKey(category application.Category) string {
	return "reminder." + string(category)
}

// Send publishes msg as persistent JSON and returns the message id.
func (p *AMQPProvider) Send(ctx context.Context, msg application.OutboundMessage) (string, error) {
	body, err := json.Marshal(reminderEnvelope{
		BookingID: msg.BookingID,
		Category:  string(msg.Category),
		To:        msg.To,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("encode reminder envelope: %w", err)
	}

	id := p.idGenerator()
	err = p.publisher.PublishWithContext(ctx, p.exchange, RoutingKey(msg.Category), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish reminder: %w", err)
	}
	return id, nil
}

// AMQPConnection owns the broker connection and channel behind an AMQPProvider.
type AMQPConnection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPConnection{conn: conn, ch: ch}, nil
}

// Channel returns the publishing channel.
func (c *AMQPConnection) Channel() *amqp.Channel {
	return c.ch
}

// Close releases the channel and connection.
func (c *AMQPConnection) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
