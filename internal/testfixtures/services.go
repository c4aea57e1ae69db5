package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/studio-reminders/internal/application"
)

// TestBaseURL is the public origin used for rendered action links.
const TestBaseURL = "https://studio.example.com"

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the studio time zone used by selectors.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewSelector builds a selector over bookings using the factory clock and
// location with default window offsets.
func (f *ServiceFactory) NewSelector(bookings application.BookingReader) *application.Selector {
	return application.NewSelectorWithLogger(
		bookings,
		application.SelectorConfig{Location: f.Location},
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewTokenIssuer builds an issuer with the default lifetime.
func (f *ServiceFactory) NewTokenIssuer(tokens application.ActionTokenStore) *application.TokenIssuer {
	return application.NewTokenIssuerWithLogger(
		tokens,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		application.DefaultTokenTTL,
		f.Logger,
	)
}

// NewRenderer builds a renderer pointed at TestBaseURL.
func (f *ServiceFactory) NewRenderer() *application.Renderer {
	renderer, err := application.NewRenderer(application.RendererConfig{
		BaseURL:  TestBaseURL,
		TokenTTL: application.DefaultTokenTTL,
	})
	if err != nil {
		panic(err)
	}
	return renderer
}

// NewRedeemer builds a redeemer using the factory clock.
func (f *ServiceFactory) NewRedeemer(store application.RedemptionStore) *application.Redeemer {
	return application.NewRedeemerWithLogger(store, f.Clock.NowFunc(), f.Logger)
}

// NewDispatcher wires a dispatcher over the harness with sender as the
// delivery provider.
func (f *ServiceFactory) NewDispatcher(h *SQLiteHarness, sender application.NotificationSender, opts ...application.DispatcherOption) *application.Dispatcher {
	if f.Logger != nil {
		opts = append([]application.DispatcherOption{application.WithDispatchLogger(f.Logger)}, opts...)
	}
	return application.NewDispatcher(
		f.NewSelector(h.Bookings),
		f.NewTokenIssuer(h.ActionTokens),
		f.NewRenderer(),
		sender,
		opts...,
	)
}

// RecordingSender captures outbound messages and fails for configured
// recipients.
type RecordingSender struct {
	mu       sync.Mutex
	messages []application.OutboundMessage
	failFor  map[string]error
	ids      *IDGenerator
}

// NewRecordingSender constructs a sender that accepts every message.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{failFor: make(map[string]error), ids: NewIDGenerator("msg")}
}

// FailFor makes deliveries to address return err.
func (s *RecordingSender) FailFor(address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFor[address] = err
}

// Send implements application.NotificationSender.
func (s *RecordingSender) Send(_ context.Context, msg application.OutboundMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[msg.To]; ok {
		return "", err
	}
	s.messages = append(s.messages, msg)
	return s.ids.Next(), nil
}

// Messages returns the accepted messages.
func (s *RecordingSender) Messages() []application.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]application.OutboundMessage(nil), s.messages...)
}
