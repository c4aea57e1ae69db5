package persistence

import (
	"context"
	"time"
)

// BookingFilter narrows booking queries. Empty fields are ignored.
type BookingFilter struct {
	Date     string
	Status   string
	TimeFrom string
	TimeTo   string
}

// BookingRepository stores studio bookings.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	UpdateBookingStatus(ctx context.Context, transition StatusTransition, updatedAt time.Time) error
}

// ActionTokenRepository stores hashed action tokens.
type ActionTokenRepository interface {
	CreateActionToken(ctx context.Context, token ActionToken) (ActionToken, error)
	GetActionTokenByHash(ctx context.Context, hash string) (ActionToken, error)
	ListActionTokensForBooking(ctx context.Context, bookingID string) ([]ActionToken, error)
	// ConsumeActionToken marks the token consumed and, when transition is
	// non-nil, applies the booking status change in the same transaction.
	ConsumeActionToken(ctx context.Context, id string, consumedAt time.Time, transition *StatusTransition) error
}

// ReminderDeliveryRepository stores the reminder dedupe ledger.
type ReminderDeliveryRepository interface {
	ClaimReminderDelivery(ctx context.Context, delivery ReminderDelivery) (bool, error)
	ReleaseReminderDelivery(ctx context.Context, bookingID, category, windowDate string) error
	CompleteReminderDelivery(ctx context.Context, bookingID, category, windowDate string, deliveredAt time.Time) error
}
