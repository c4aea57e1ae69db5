package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/persistence"
	"github.com/example/studio-reminders/internal/storeadapter"
)

var bookingCounter uint64

var referenceTime = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// BookingFixture represents a deterministic booking that can be materialised
// for application or persistence tests.
type BookingFixture struct {
	ID              string
	ClientName      string
	ClientEmail     string
	ServiceType     string
	Date            string
	Time            string
	DurationMinutes int
	Status          application.BookingStatus
	CreatedAt       time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a confirmed personal training booking on the day
// after ReferenceTime, with optional overrides.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	id := fmt.Sprintf("booking-%03d", idx)
	fixture := BookingFixture{
		ID:              id,
		ClientName:      fmt.Sprintf("Client %03d", idx),
		ClientEmail:     fmt.Sprintf("client-%03d@example.com", idx),
		ServiceType:     "personal_training",
		Date:            referenceTime.AddDate(0, 0, 1).Format("2006-01-02"),
		Time:            "10:00",
		DurationMinutes: 60,
		Status:          application.StatusConfirmed,
		CreatedAt:       referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithSchedule overrides the stored date and start time.
func WithSchedule(date, clock string) BookingOption {
	return func(f *BookingFixture) {
		f.Date = date
		f.Time = clock
	}
}

// WithStatus overrides the booking status.
func WithStatus(status application.BookingStatus) BookingOption {
	return func(f *BookingFixture) {
		f.Status = status
	}
}

// WithService overrides the service type code.
func WithService(code string) BookingOption {
	return func(f *BookingFixture) {
		f.ServiceType = code
	}
}

// WithClient overrides the client name and contact address.
func WithClient(name, email string) BookingOption {
	return func(f *BookingFixture) {
		f.ClientName = name
		f.ClientEmail = email
	}
}

// WithDuration overrides the session length in minutes.
func WithDuration(minutes int) BookingOption {
	return func(f *BookingFixture) {
		f.DurationMinutes = minutes
	}
}

// Application converts the fixture into an application booking.
func (f BookingFixture) Application() application.Booking {
	return application.Booking{
		ID:              f.ID,
		ClientName:      f.ClientName,
		ClientEmail:     f.ClientEmail,
		ServiceType:     f.ServiceType,
		Date:            f.Date,
		Time:            f.Time,
		DurationMinutes: f.DurationMinutes,
		Status:          f.Status,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Persistence converts the fixture into a persistence booking.
func (f BookingFixture) Persistence() persistence.Booking {
	return storeadapter.ToPersistenceBooking(f.Application())
}
