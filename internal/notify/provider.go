// Package notify delivers rendered reminders through an outbound provider.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/example/studio-reminders/internal/application"
)

// Provider kinds accepted in configuration.
const (
	KindLog  = "log"
	KindHTTP = "http"
	KindAMQP = "amqp"
)

// ErrRejected is returned when a provider refuses a message.
var ErrRejected = errors.New("notify: message rejected by provider")

// Provider hands one message to a delivery channel and returns the identifier
// the channel assigned to it.
type Provider interface {
	Send(ctx context.Context, msg application.OutboundMessage) (string, error)
}

// LogProvider writes messages to the log instead of delivering them. It is
// used for local runs and dry runs.
type LogProvider struct {
	logger      *slog.Logger
	idGenerator func() string
}

// NewLogProvider constructs a LogProvider. A nil logger uses slog.Default.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger, idGenerator: uuid.NewString}
}

// Send logs the message envelope and returns a fresh identifier.
func (p *LogProvider) Send(ctx context.Context, msg application.OutboundMessage) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", ErrRejected
	}
	id := p.idGenerator()
	p.logger.InfoContext(ctx, "reminder delivered to log",
		"provider", KindLog,
		"message_id", id,
		"booking_id", msg.BookingID,
		"category", string(msg.Category),
		"to", msg.To,
		"subject", msg.Subject,
		"text_bytes", len(msg.Text),
		"html_bytes", len(msg.HTML),
	)
	return id, nil
}
