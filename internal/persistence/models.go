package persistence

import "time"

// Booking represents a scheduled studio appointment as stored.
//
// Date and Time hold the studio-local wall clock values ("2006-01-02" and
// "15:04") exactly as the booking system recorded them.
type Booking struct {
	ID              string
	ClientName      string
	ClientEmail     string
	ServiceType     string
	Date            string
	Time            string
	DurationMinutes int
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActionToken is the persisted half of a single-use booking capability.
// Only the digest of the secret is stored.
type ActionToken struct {
	ID         string
	BookingID  string
	Kind       string
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// ReminderDelivery records that a reminder for a booking was claimed for a
// given category and window date.
type ReminderDelivery struct {
	ID         string
	BookingID  string
	Category   string
	WindowDate string
	ClaimedAt  time.Time
	// ReclaimBefore lets this claim take over an undelivered claim made
	// before it. Zero never takes over.
	ReclaimBefore time.Time
}

// StatusTransition describes a guarded booking status change.
type StatusTransition struct {
	BookingID string
	From      string
	To        string
}
