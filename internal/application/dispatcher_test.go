package application_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/storeadapter"
	"github.com/example/studio-reminders/internal/testfixtures"
)

var cancelLink = regexp.MustCompile(`/booking/cancel\?token=([0-9a-f]{64})`)

func tomorrowClock() *testfixtures.Clock {
	return testfixtures.NewStudioClock("2025-03-14", "09:00", time.UTC)
}

func assertReportInvariant(t *testing.T, report application.Report) {
	t.Helper()
	assert.Equal(t, report.Total, report.Successful+report.Failed)
	assert.Len(t, report.Details, report.Total)
	assert.NotNil(t, report.Details)
}

func TestDispatcherNextDaySingleBooking(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	booking := testfixtures.NewBookingFixture(testfixtures.WithSchedule("2025-03-15", "10:00"))
	h.SeedBookings(t, booking)

	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(tomorrowClock()))
	sender := testfixtures.NewRecordingSender()
	report, err := factory.NewDispatcher(h, sender).Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)

	assertReportInvariant(t, report)
	assert.Equal(t, application.CategoryNextDay, report.Category)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Details, 1)
	assert.Equal(t, booking.ID, report.Details[0].BookingID)
	assert.Equal(t, "msg-1", report.Details[0].ProviderMessageID)

	tokens, err := h.Storage.ListActionTokensForBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	kinds := map[string]int{}
	for _, token := range tokens {
		kinds[token.Kind]++
	}
	assert.Equal(t, map[string]int{"cancel": 1, "modify": 1}, kinds)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, booking.ClientEmail, messages[0].To)
	assert.Equal(t, application.CategoryNextDay, messages[0].Category)
	assert.Contains(t, messages[0].Text, "/booking/modify?token=")
	assert.Regexp(t, cancelLink, messages[0].Text)
}

func TestDispatcherLinksRedeemEndToEnd(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	booking := testfixtures.NewBookingFixture(testfixtures.WithSchedule("2025-03-15", "10:00"))
	h.SeedBookings(t, booking)

	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(tomorrowClock()))
	sender := testfixtures.NewRecordingSender()
	_, err := factory.NewDispatcher(h, sender).Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)

	match := cancelLink.FindStringSubmatch(sender.Messages()[0].Text)
	require.Len(t, match, 2)

	result, err := factory.NewRedeemer(h.Redemption).Redeem(context.Background(), match[1], application.TokenKindCancel)
	require.NoError(t, err)
	assert.Equal(t, application.StatusCancelled, result.Booking.Status)
}

func TestDispatcherPostSessionWithNoBookings(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(tomorrowClock()))
	sender := testfixtures.NewRecordingSender()

	report, err := factory.NewDispatcher(h, sender).Run(context.Background(), application.CategoryPostSession)
	require.NoError(t, err)

	assert.Equal(t, application.Report{Category: application.CategoryPostSession, Details: []application.DeliveryDetail{}}, report)
	assert.Empty(t, sender.Messages())
}

func TestDispatcherRejectsUnknownCategory(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	factory := testfixtures.NewServiceFactory()

	_, err := factory.NewDispatcher(h, testfixtures.NewRecordingSender()).Run(context.Background(), "weekly")
	require.ErrorIs(t, err, application.ErrUnknownCategory)
}

func TestDispatcherIsolatesDeliveryFailures(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ok1 := testfixtures.NewBookingFixture(testfixtures.WithBookingID("a"), testfixtures.WithSchedule("2025-03-15", "08:00"))
	bad := testfixtures.NewBookingFixture(testfixtures.WithBookingID("b"), testfixtures.WithSchedule("2025-03-15", "09:00"))
	ok2 := testfixtures.NewBookingFixture(testfixtures.WithBookingID("c"), testfixtures.WithSchedule("2025-03-15", "10:00"))
	h.SeedBookings(t, ok1, bad, ok2)

	sender := testfixtures.NewRecordingSender()
	sender.FailFor(bad.ClientEmail, errors.New("mailbox unavailable"))

	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(tomorrowClock()))
	report, err := factory.NewDispatcher(h, sender).Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)

	assertReportInvariant(t, report)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Details, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{report.Details[0].BookingID, report.Details[1].BookingID, report.Details[2].BookingID})
	assert.True(t, report.Details[0].Success)
	assert.False(t, report.Details[1].Success)
	assert.Contains(t, report.Details[1].Error, "mailbox unavailable")
	assert.Empty(t, report.Details[1].ProviderMessageID)
	assert.True(t, report.Details[2].Success)
}

type stubSelector struct {
	window   application.Window
	bookings []application.Booking
	err      error
}

func (s stubSelector) Resolve(category application.Category) (application.Window, error) {
	w := s.window
	w.Category = category
	return w, nil
}

func (s stubSelector) SelectWindow(context.Context, application.Window) ([]application.Booking, error) {
	return s.bookings, s.err
}

type flakyIssuer struct {
	failFor string
}

func (f flakyIssuer) Issue(_ context.Context, bookingID string, kind application.TokenKind) (string, error) {
	if bookingID == f.failFor {
		return "", errors.New("token store unavailable")
	}
	return string(kind) + "-" + bookingID, nil
}

type panickingRenderer struct {
	application.NotificationRenderer
	panicFor string
}

func (p panickingRenderer) Render(category application.Category, booking application.Booking, links *application.ActionLinks) (application.Notification, error) {
	if booking.ID == p.panicFor {
		panic("template exploded")
	}
	return p.NotificationRenderer.Render(category, booking, links)
}

func TestDispatcherContainsEveryPipelineFailureMode(t *testing.T) {
	bookings := []application.Booking{
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("fine")).Application(),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("no-contact"), testfixtures.WithClient("Nobody", " ")).Application(),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("token-fail")).Application(),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("render-panic")).Application(),
	}
	renderer := panickingRenderer{NotificationRenderer: newRenderer(t), panicFor: "render-panic"}
	sender := testfixtures.NewRecordingSender()
	dispatcher := application.NewDispatcher(
		stubSelector{bookings: bookings},
		flakyIssuer{failFor: "token-fail"},
		renderer,
		sender,
	)

	report, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)

	assertReportInvariant(t, report)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 3, report.Failed)

	assert.True(t, report.Details[0].Success)
	assert.Contains(t, report.Details[1].Error, "client_email")
	assert.Contains(t, report.Details[2].Error, "issue cancel token")
	assert.Contains(t, report.Details[3].Error, "pipeline panic: template exploded")
	assert.Len(t, sender.Messages(), 1)
}

func TestDispatcherSelectionFailureIsFatal(t *testing.T) {
	storeErr := errors.New("database locked")
	dispatcher := application.NewDispatcher(stubSelector{err: storeErr}, flakyIssuer{}, newRenderer(t), testfixtures.NewRecordingSender())

	report, err := dispatcher.Run(context.Background(), application.CategoryImminent)
	require.ErrorIs(t, err, storeErr)
	assert.Equal(t, application.Report{}, report)
}

type concurrencySender struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	sent     atomic.Int32
}

func (c *concurrencySender) Send(context.Context, application.OutboundMessage) (string, error) {
	current := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peak.Load()
		if current <= peak || c.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return fmt.Sprintf("m-%d", c.sent.Add(1)), nil
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	bookings := make([]application.Booking, 0, 24)
	for i := 0; i < 24; i++ {
		bookings = append(bookings, testfixtures.NewBookingFixture().Application())
	}
	sender := &concurrencySender{}
	dispatcher := application.NewDispatcher(
		stubSelector{bookings: bookings},
		flakyIssuer{},
		newRenderer(t),
		sender,
		application.WithMaxConcurrency(3),
	)

	report, err := dispatcher.Run(context.Background(), application.CategoryImminent)
	require.NoError(t, err)
	assert.Equal(t, 24, report.Successful)
	assert.LessOrEqual(t, sender.peak.Load(), int32(3))
	assert.EqualValues(t, 24, sender.sent.Load())
}

func TestDispatcherCompletesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := &gateSender{release: make(chan struct{}), cancel: cancel}
	bookings := []application.Booking{testfixtures.NewBookingFixture().Application()}
	dispatcher := application.NewDispatcher(stubSelector{bookings: bookings}, flakyIssuer{}, newRenderer(t), blocking)

	go func() {
		<-ctx.Done()
		close(blocking.release)
	}()

	report, err := dispatcher.Run(ctx, application.CategoryPostSession)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
}

type gateSender struct {
	release chan struct{}
	cancel  context.CancelFunc
}

func (g *gateSender) Send(ctx context.Context, _ application.OutboundMessage) (string, error) {
	g.cancel()
	<-g.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "gate-1", nil
}

func TestDispatcherLedgerSuppressesDuplicates(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	booking := testfixtures.NewBookingFixture(testfixtures.WithSchedule("2025-03-15", "10:00"))
	h.SeedBookings(t, booking)

	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(tomorrowClock()))
	sender := testfixtures.NewRecordingSender()
	dispatcher := factory.NewDispatcher(h, sender, application.WithReminderLedger(h.Ledger))

	first, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Successful)

	second, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assertReportInvariant(t, second)
	assert.Equal(t, 0, second.Total)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, sender.Messages(), 1)
}

func TestDispatcherLedgerReleasesFailedDeliveries(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	booking := testfixtures.NewBookingFixture(testfixtures.WithSchedule("2025-03-15", "10:00"))
	h.SeedBookings(t, booking)

	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(tomorrowClock()))
	failing := testfixtures.NewRecordingSender()
	failing.FailFor(booking.ClientEmail, errors.New("provider down"))

	report, err := factory.NewDispatcher(h, failing, application.WithReminderLedger(h.Ledger)).Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	retry, err := factory.NewDispatcher(h, testfixtures.NewRecordingSender(), application.WithReminderLedger(h.Ledger)).Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Successful)
	assert.Equal(t, 0, retry.Skipped)
}

func TestDispatcherLedgerRecoversAbandonedClaims(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	booking := testfixtures.NewBookingFixture(testfixtures.WithSchedule("2025-03-15", "10:00"))
	h.SeedBookings(t, booking)

	clock := tomorrowClock()
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock))
	ledger := storeadapter.NewLedger(h.Storage, nil, clock.NowFunc(), 30*time.Minute)

	// A run that died after claiming leaves an undelivered claim behind.
	claimed, err := ledger.Claim(context.Background(), application.ReminderClaim{
		BookingID: booking.ID, Category: application.CategoryNextDay, WindowDate: "2025-03-15",
	})
	require.NoError(t, err)
	require.True(t, claimed)

	sender := testfixtures.NewRecordingSender()
	dispatcher := factory.NewDispatcher(h, sender, application.WithReminderLedger(ledger))

	clock.Advance(10 * time.Minute)
	blocked, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, blocked.Skipped)
	assert.Empty(t, sender.Messages())

	clock.Advance(25 * time.Minute)
	recovered, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assertReportInvariant(t, recovered)
	assert.Equal(t, 1, recovered.Successful)
	assert.Equal(t, 0, recovered.Skipped)

	clock.Advance(2 * time.Hour)
	again, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped, "a delivered reminder stays claimed")
	assert.Len(t, sender.Messages(), 1)
}

type failingLedger struct {
	mu       sync.Mutex
	claims   int
	released []string
}

func (f *failingLedger) Claim(_ context.Context, claim application.ReminderClaim) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.claims == 2 {
		return false, errors.New("ledger unavailable")
	}
	return true, nil
}

func (f *failingLedger) Complete(context.Context, application.ReminderClaim) error { return nil }

func (f *failingLedger) Release(_ context.Context, claim application.ReminderClaim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, claim.BookingID)
	return nil
}

func TestDispatcherLedgerFailureAbortsBeforeDelivery(t *testing.T) {
	bookings := []application.Booking{
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("first")).Application(),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("second")).Application(),
	}
	ledger := &failingLedger{}
	sender := testfixtures.NewRecordingSender()
	dispatcher := application.NewDispatcher(stubSelector{bookings: bookings}, flakyIssuer{}, newRenderer(t), sender,
		application.WithReminderLedger(ledger))

	_, err := dispatcher.Run(context.Background(), application.CategoryImminent)
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, ledger.released)
	assert.Empty(t, sender.Messages())
}

type recordingObserver struct {
	mu        sync.Mutex
	runs      []application.Report
	runErrs   []error
	pipelines map[bool]int
}

func (r *recordingObserver) RecordRun(_ application.Category, report application.Report, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, report)
	r.runErrs = append(r.runErrs, err)
}

func (r *recordingObserver) RecordPipeline(_ application.Category, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipelines == nil {
		r.pipelines = map[bool]int{}
	}
	r.pipelines[success]++
}

func TestDispatcherReportsTelemetry(t *testing.T) {
	bookings := []application.Booking{
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("ok")).Application(),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("broken")).Application(),
	}
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	observer := &recordingObserver{}
	dispatcher := application.NewDispatcher(
		stubSelector{bookings: bookings},
		flakyIssuer{failFor: "broken"},
		newRenderer(t),
		testfixtures.NewRecordingSender(),
		application.WithDispatchObserver(observer),
		application.WithTracer(provider.Tracer("test")),
	)

	_, err := dispatcher.Run(context.Background(), application.CategoryNextDay)
	require.NoError(t, err)

	require.Len(t, observer.runs, 1)
	assert.NoError(t, observer.runErrs[0])
	assert.Equal(t, map[bool]int{true: 1, false: 1}, observer.pipelines)

	names := map[string]int{}
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	assert.Equal(t, map[string]int{"reminders.dispatch.run": 1, "reminders.dispatch.pipeline": 2}, names)
}
