package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/testfixtures"
)

type recordingReader struct {
	queries []application.BookingQuery
	result  []application.Booking
	err     error
}

func (r *recordingReader) ListBookings(_ context.Context, query application.BookingQuery) ([]application.Booking, error) {
	r.queries = append(r.queries, query)
	return r.result, r.err
}

func TestResolveWindow(t *testing.T) {
	t.Parallel()

	studio := time.FixedZone("studio", 10*60*60)
	cfg := application.SelectorConfig{Location: time.UTC}

	tests := []struct {
		name     string
		category application.Category
		now      time.Time
		config   application.SelectorConfig
		want     application.BookingQuery
		empty    bool
	}{
		{
			name:     "next day targets tomorrow confirmed",
			category: application.CategoryNextDay,
			now:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
			config:   cfg,
			want:     application.BookingQuery{Date: "2025-03-15", Status: application.StatusConfirmed},
		},
		{
			name:     "next day crosses month end",
			category: application.CategoryNextDay,
			now:      time.Date(2025, 2, 28, 22, 59, 0, 0, time.UTC),
			config:   cfg,
			want:     application.BookingQuery{Date: "2025-03-01", Status: application.StatusConfirmed},
		},
		{
			name:     "next day uses studio location",
			category: application.CategoryNextDay,
			now:      time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC),
			config:   application.SelectorConfig{Location: studio},
			want:     application.BookingQuery{Date: "2025-03-16", Status: application.StatusConfirmed},
		},
		{
			name:     "imminent band is lead plus tolerance",
			category: application.CategoryImminent,
			now:      time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
			config:   cfg,
			want: application.BookingQuery{
				Date: "2025-03-14", Status: application.StatusConfirmed, TimeFrom: "12:00", TimeTo: "12:30",
			},
		},
		{
			name:     "imminent truncates seconds",
			category: application.CategoryImminent,
			now:      time.Date(2025, 3, 14, 10, 0, 59, 999, time.UTC),
			config:   cfg,
			want: application.BookingQuery{
				Date: "2025-03-14", Status: application.StatusConfirmed, TimeFrom: "12:00", TimeTo: "12:30",
			},
		},
		{
			name:     "imminent honours custom offsets",
			category: application.CategoryImminent,
			now:      time.Date(2025, 3, 14, 6, 15, 0, 0, time.UTC),
			config:   application.SelectorConfig{ImminentLead: time.Hour, ImminentTolerance: 15 * time.Minute},
			want: application.BookingQuery{
				Date: "2025-03-14", Status: application.StatusConfirmed, TimeFrom: "07:15", TimeTo: "07:30",
			},
		},
		{
			name:     "imminent clamps at end of day",
			category: application.CategoryImminent,
			now:      time.Date(2025, 3, 14, 21, 45, 0, 0, time.UTC),
			config:   cfg,
			want: application.BookingQuery{
				Date: "2025-03-14", Status: application.StatusConfirmed, TimeFrom: "23:45", TimeTo: "23:59",
			},
		},
		{
			name:     "imminent after midnight is empty",
			category: application.CategoryImminent,
			now:      time.Date(2025, 3, 14, 22, 30, 0, 0, time.UTC),
			config:   cfg,
			want: application.BookingQuery{
				Date: "2025-03-14", Status: application.StatusConfirmed, TimeFrom: "00:30", TimeTo: "01:00",
			},
			empty: true,
		},
		{
			name:     "post session targets today completed",
			category: application.CategoryPostSession,
			now:      time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC),
			config:   cfg,
			want:     application.BookingQuery{Date: "2025-03-14", Status: application.StatusCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			window, err := application.ResolveWindow(tt.category, tt.now, tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.category, window.Category)
			assert.Equal(t, tt.want, window.Query)
			assert.Equal(t, tt.empty, window.Empty)
		})
	}
}

func TestResolveWindowRejectsUnknownCategory(t *testing.T) {
	_, err := application.ResolveWindow("weekly", testfixtures.ReferenceTime(), application.SelectorConfig{})
	require.ErrorIs(t, err, application.ErrUnknownCategory)
}

func TestSelectorSkipsStoreForEmptyWindow(t *testing.T) {
	reader := &recordingReader{}
	clock := testfixtures.NewClock(time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC))
	selector := application.NewSelector(reader, application.SelectorConfig{}, clock.NowFunc())

	bookings, err := selector.Select(context.Background(), application.CategoryImminent)
	require.NoError(t, err)
	assert.NotNil(t, bookings)
	assert.Empty(t, bookings)
	assert.Empty(t, reader.queries)
}

func TestSelectorWrapsStoreErrors(t *testing.T) {
	storeErr := errors.New("disk on fire")
	reader := &recordingReader{err: storeErr}
	selector := application.NewSelector(reader, application.SelectorConfig{}, testfixtures.NewClock(time.Time{}).NowFunc())

	_, err := selector.Select(context.Background(), application.CategoryNextDay)
	require.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), "select next_day bookings")
}

func TestSelectorNormalizesNilResult(t *testing.T) {
	selector := application.NewSelector(&recordingReader{}, application.SelectorConfig{}, testfixtures.NewClock(time.Time{}).NowFunc())

	bookings, err := selector.Select(context.Background(), application.CategoryPostSession)
	require.NoError(t, err)
	assert.NotNil(t, bookings)
}

func selectIDs(t *testing.T, selector *application.Selector, category application.Category) []string {
	t.Helper()
	bookings, err := selector.Select(context.Background(), category)
	require.NoError(t, err)
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestSelectorNextDayBoundaries(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	h.SeedBookings(t,
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("today-late"), testfixtures.WithSchedule("2025-03-14", "23:59")),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("tomorrow-first"), testfixtures.WithSchedule("2025-03-15", "00:00")),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("tomorrow-last"), testfixtures.WithSchedule("2025-03-15", "23:59")),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("day-after"), testfixtures.WithSchedule("2025-03-16", "00:00")),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("tomorrow-pending"), testfixtures.WithSchedule("2025-03-15", "12:00"),
			testfixtures.WithStatus(application.StatusPending)),
	)

	clock := testfixtures.NewStudioClock("2025-03-14", "00:00", time.UTC)
	selector := testfixtures.NewServiceFactory(testfixtures.WithClock(clock)).NewSelector(h.Bookings)

	assert.Equal(t, []string{"tomorrow-first", "tomorrow-last"}, selectIDs(t, selector, application.CategoryNextDay))

	// Late in the evening a booking 25h ahead is still tomorrow, 25h01m is not.
	clock.Set(testfixtures.StudioTime("2025-03-14", "22:59", time.UTC))
	assert.Equal(t, []string{"tomorrow-first", "tomorrow-last"}, selectIDs(t, selector, application.CategoryNextDay))
}

func TestSelectorImminentBoundaries(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	date := "2025-03-14"
	for _, clock := range []string{"11:59", "12:00", "12:15", "12:30", "12:31"} {
		h.SeedBookings(t, testfixtures.NewBookingFixture(
			testfixtures.WithBookingID("at-"+clock),
			testfixtures.WithSchedule(date, clock),
		))
	}
	for _, status := range []application.BookingStatus{application.StatusPending, application.StatusCancelled, application.StatusCompleted} {
		h.SeedBookings(t, testfixtures.NewBookingFixture(
			testfixtures.WithBookingID(string(status)),
			testfixtures.WithSchedule(date, "12:10"),
			testfixtures.WithStatus(status),
		))
	}

	clock := testfixtures.NewStudioClock(date, "10:00", time.UTC)
	selector := testfixtures.NewServiceFactory(testfixtures.WithClock(clock)).NewSelector(h.Bookings)

	assert.Equal(t, []string{"at-12:00", "at-12:15", "at-12:30"}, selectIDs(t, selector, application.CategoryImminent))
}

func TestSelectorImminentClampedWindowIncludesLateSessions(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	h.SeedBookings(t,
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("late"), testfixtures.WithSchedule("2025-03-14", "23:50")),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("next-morning"), testfixtures.WithSchedule("2025-03-15", "00:05")),
	)

	clock := testfixtures.NewStudioClock("2025-03-14", "21:45", time.UTC)
	selector := testfixtures.NewServiceFactory(testfixtures.WithClock(clock)).NewSelector(h.Bookings)

	assert.Equal(t, []string{"late"}, selectIDs(t, selector, application.CategoryImminent))
}

func TestSelectorPostSessionRequiresCompleted(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	h.SeedBookings(t,
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("done"), testfixtures.WithSchedule("2025-03-14", "08:00"),
			testfixtures.WithStatus(application.StatusCompleted)),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("still-confirmed"), testfixtures.WithSchedule("2025-03-14", "09:00")),
		testfixtures.NewBookingFixture(testfixtures.WithBookingID("yesterday"), testfixtures.WithSchedule("2025-03-13", "08:00"),
			testfixtures.WithStatus(application.StatusCompleted)),
	)

	clock := testfixtures.NewStudioClock("2025-03-14", "20:00", time.UTC)
	selector := testfixtures.NewServiceFactory(testfixtures.WithClock(clock)).NewSelector(h.Bookings)

	assert.Equal(t, []string{"done"}, selectIDs(t, selector, application.CategoryPostSession))
}
