package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxConcurrency bounds the number of pipelines in flight per run.
	DefaultMaxConcurrency = 8

	tracerName = "github.com/example/studio-reminders/internal/application"

	spanDispatchRun      = "reminders.dispatch.run"
	spanDispatchPipeline = "reminders.dispatch.pipeline"

	attrCategory  = "reminders.category"
	attrBookingID = "reminders.booking_id"
	attrTotal     = "reminders.total"
	attrFailed    = "reminders.failed"
	attrSkipped   = "reminders.skipped"
)

// BookingSelector resolves and queries reminder windows.
type BookingSelector interface {
	Resolve(category Category) (Window, error)
	SelectWindow(ctx context.Context, window Window) ([]Booking, error)
}

// ActionTokenMinter issues raw action tokens.
type ActionTokenMinter interface {
	Issue(ctx context.Context, bookingID string, kind TokenKind) (string, error)
}

// NotificationRenderer turns a booking into notification content.
type NotificationRenderer interface {
	Render(category Category, booking Booking, links *ActionLinks) (Notification, error)
}

// NotificationSender hands a message to a delivery provider and returns the
// provider assigned message identifier.
type NotificationSender interface {
	Send(ctx context.Context, msg OutboundMessage) (string, error)
}

// ReminderLedger records which reminders were already sent for a window.
// A claim that is neither released nor completed is expected to lapse so a
// crashed run cannot suppress a reminder forever.
type ReminderLedger interface {
	Claim(ctx context.Context, claim ReminderClaim) (bool, error)
	Release(ctx context.Context, claim ReminderClaim) error
	Complete(ctx context.Context, claim ReminderClaim) error
}

// DispatchObserver receives run and pipeline telemetry.
type DispatchObserver interface {
	RecordRun(category Category, report Report, duration time.Duration, err error)
	RecordPipeline(category Category, success bool, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordRun(Category, Report, time.Duration, error) {}

func (nopObserver) RecordPipeline(Category, bool, time.Duration) {}

// Dispatcher fans reminders out to every booking selected for a category.
type Dispatcher struct {
	selector       BookingSelector
	issuer         ActionTokenMinter
	renderer       NotificationRenderer
	sender         NotificationSender
	ledger         ReminderLedger
	observer       DispatchObserver
	tracer         trace.Tracer
	maxConcurrency int
	logger         *slog.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithReminderLedger enables duplicate suppression across runs.
func WithReminderLedger(ledger ReminderLedger) DispatcherOption {
	return func(d *Dispatcher) {
		d.ledger = ledger
	}
}

// WithDispatchObserver installs a telemetry observer.
func WithDispatchObserver(observer DispatchObserver) DispatcherOption {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// WithMaxConcurrency bounds concurrent pipelines. Values below one are ignored.
func WithMaxConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrency = n
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithDispatchLogger sets the base logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = defaultLogger(logger)
	}
}

// NewDispatcher constructs a dispatcher with the provided dependencies.
func NewDispatcher(selector BookingSelector, issuer ActionTokenMinter, renderer NotificationRenderer, sender NotificationSender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		selector:       selector,
		issuer:         issuer,
		renderer:       renderer,
		sender:         sender,
		observer:       nopObserver{},
		tracer:         otel.Tracer(tracerName),
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run selects the bookings for category and delivers one reminder per booking.
// Selection failures and unknown categories abort the run; anything failing
// inside a single pipeline is recorded in the report. Pipelines are detached
// from ctx cancellation so a started run always completes.
func (d *Dispatcher) Run(ctx context.Context, category Category) (report Report, err error) {
	if d == nil {
		return Report{}, fmt.Errorf("Dispatcher is nil")
	}

	started := time.Now()
	ctx, span := d.tracer.Start(ctx, spanDispatchRun, trace.WithAttributes(
		attribute.String(attrCategory, string(category)),
	))
	logger := serviceLogger(ctx, d.logger, "Dispatcher", "Run", "category", string(category))
	defer func() {
		d.observer.RecordRun(category, report, time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			logger.ErrorContext(ctx, "reminder run failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		span.SetAttributes(
			attribute.Int(attrTotal, report.Total),
			attribute.Int(attrFailed, report.Failed),
			attribute.Int(attrSkipped, report.Skipped),
		)
		span.End()
		logger.InfoContext(ctx, "reminder run completed",
			"total", report.Total,
			"successful", report.Successful,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"duration", time.Since(started),
		)
	}()

	if _, err = ParseCategory(string(category)); err != nil {
		return Report{}, err
	}

	window, err := d.selector.Resolve(category)
	if err != nil {
		return Report{}, err
	}
	bookings, err := d.selector.SelectWindow(ctx, window)
	if err != nil {
		return Report{}, err
	}

	candidates, skipped, err := d.claim(ctx, window, bookings)
	if err != nil {
		return Report{}, err
	}

	details := make([]DeliveryDetail, len(candidates))
	pipelineCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)
	for i, booking := range candidates {
		g.Go(func() error {
			details[i] = d.runPipeline(pipelineCtx, window, booking)
			return nil
		})
	}
	_ = g.Wait()

	report = Report{
		Category: category,
		Total:    len(candidates),
		Skipped:  skipped,
		Details:  details,
	}
	for _, detail := range details {
		if detail.Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// claim takes a ledger claim for every booking before any pipeline starts.
// Bookings already claimed for this window are skipped.
func (d *Dispatcher) claim(ctx context.Context, window Window, bookings []Booking) ([]Booking, int, error) {
	if d.ledger == nil {
		return bookings, 0, nil
	}

	candidates := make([]Booking, 0, len(bookings))
	skipped := 0
	for _, booking := range bookings {
		claimed, err := d.ledger.Claim(ctx, reminderClaim(window, booking))
		if err != nil {
			for _, c := range candidates {
				_ = d.ledger.Release(context.WithoutCancel(ctx), reminderClaim(window, c))
			}
			return nil, 0, fmt.Errorf("claim reminder for booking %s: %w", booking.ID, err)
		}
		if !claimed {
			skipped++
			continue
		}
		candidates = append(candidates, booking)
	}
	return candidates, skipped, nil
}

func reminderClaim(window Window, booking Booking) ReminderClaim {
	return ReminderClaim{BookingID: booking.ID, Category: window.Category, WindowDate: window.Query.Date}
}

func (d *Dispatcher) runPipeline(ctx context.Context, window Window, booking Booking) (detail DeliveryDetail) {
	started := time.Now()
	ctx, span := d.tracer.Start(ctx, spanDispatchPipeline, trace.WithAttributes(
		attribute.String(attrCategory, string(window.Category)),
		attribute.String(attrBookingID, booking.ID),
	))
	logger := serviceLogger(ctx, d.logger, "Dispatcher", "Pipeline",
		"category", string(window.Category),
		"booking_id", booking.ID,
	)

	defer func() {
		if r := recover(); r != nil {
			detail = DeliveryDetail{BookingID: booking.ID, Error: fmt.Sprintf("pipeline panic: %v", r)}
		}
		if !detail.Success {
			span.SetStatus(codes.Error, detail.Error)
			logger.WarnContext(ctx, "reminder delivery failed", "error", detail.Error)
			if d.ledger != nil {
				if err := d.ledger.Release(ctx, reminderClaim(window, booking)); err != nil {
					logger.ErrorContext(ctx, "failed to release reminder claim", "error", err)
				}
			}
		} else {
			logger.DebugContext(ctx, "reminder delivered", "provider_message_id", detail.ProviderMessageID)
			if d.ledger != nil {
				if err := d.ledger.Complete(ctx, reminderClaim(window, booking)); err != nil {
					logger.ErrorContext(ctx, "failed to complete reminder claim", "error", err)
				}
			}
		}
		d.observer.RecordPipeline(window.Category, detail.Success, time.Since(started))
		span.End()
	}()

	messageID, err := d.deliver(ctx, window.Category, booking)
	if err != nil {
		span.RecordError(err)
		return DeliveryDetail{BookingID: booking.ID, Error: err.Error()}
	}
	return DeliveryDetail{BookingID: booking.ID, Success: true, ProviderMessageID: messageID}
}

func (d *Dispatcher) deliver(ctx context.Context, category Category, booking Booking) (string, error) {
	if vErr := validateDeliverable(booking); vErr.HasErrors() {
		return "", vErr
	}

	var links *ActionLinks
	if category.RequiresActionTokens() {
		cancelToken, err := d.issuer.Issue(ctx, booking.ID, TokenKindCancel)
		if err != nil {
			return "", fmt.Errorf("issue cancel token: %w", err)
		}
		modifyToken, err := d.issuer.Issue(ctx, booking.ID, TokenKindModify)
		if err != nil {
			return "", fmt.Errorf("issue modify token: %w", err)
		}
		links = &ActionLinks{CancelToken: cancelToken, ModifyToken: modifyToken}
	}

	notification, err := d.renderer.Render(category, booking, links)
	if err != nil {
		return "", fmt.Errorf("render notification: %w", err)
	}

	messageID, err := d.sender.Send(ctx, OutboundMessage{
		BookingID: booking.ID,
		Category:  category,
		To:        booking.ClientEmail,
		Subject:   notification.Subject,
		HTML:      notification.HTML,
		Text:      notification.Text,
	})
	if err != nil {
		return "", fmt.Errorf("deliver notification: %w", err)
	}
	return messageID, nil
}

// validateDeliverable rejects bookings missing the fields a reminder needs.
func validateDeliverable(booking Booking) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(booking.ClientEmail) == "" {
		vErr.Add("client_email", "contact address is required")
	}
	if strings.TrimSpace(booking.Date) == "" {
		vErr.Add("date", "date is required")
	}
	if strings.TrimSpace(booking.Time) == "" {
		vErr.Add("time", "time is required")
	}
	return vErr
}
