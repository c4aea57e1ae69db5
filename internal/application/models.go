package application

import (
	"fmt"
	"time"
)

// Category identifies a reminder occasion.
type Category string

const (
	CategoryNextDay     Category = "next_day"
	CategoryImminent    Category = "imminent"
	CategoryPostSession Category = "post_session"
)

// Categories lists the supported reminder categories.
func Categories() []Category {
	return []Category{CategoryNextDay, CategoryImminent, CategoryPostSession}
}

// ParseCategory validates a category name received from a trigger.
func ParseCategory(value string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == value {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}

// RequiresActionTokens reports whether reminders of this category carry
// cancel and modify links.
func (c Category) RequiresActionTokens() bool {
	return c == CategoryNextDay
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

var allowedTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TokenKind is the action an ActionToken authorizes.
type TokenKind string

const (
	TokenKindCancel TokenKind = "cancel"
	TokenKindModify TokenKind = "modify"
)

// Valid reports whether k is a supported action kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindCancel || k == TokenKindModify
}

// Booking is a scheduled studio appointment. Date ("2006-01-02") and Time
// ("15:04") are the studio-local values as stored.
type Booking struct {
	ID              string
	ClientName      string
	ClientEmail     string
	ServiceType     string
	Date            string
	Time            string
	DurationMinutes int
	Status          BookingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActionToken is the persisted record of an issued capability. It never
// contains the raw secret.
type ActionToken struct {
	ID         string
	BookingID  string
	Kind       TokenKind
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// ActionLinks holds the raw secrets minted for one reminder.
type ActionLinks struct {
	CancelToken string
	ModifyToken string
}

// BookingQuery is the store predicate derived from a reminder window.
type BookingQuery struct {
	Date     string
	Status   BookingStatus
	TimeFrom string
	TimeTo   string
}

// Window is the resolved selection window for one category at one instant.
type Window struct {
	Category Category
	Query    BookingQuery
	// Empty is set when the window cannot contain any booking, for example
	// when the imminent band starts after midnight.
	Empty bool
}

// StatusChange is a guarded booking status transition.
type StatusChange struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
}

// Notification is the rendered content of a reminder.
type Notification struct {
	Subject string
	HTML    string
	Text    string
}

// OutboundMessage is what a delivery provider receives.
type OutboundMessage struct {
	BookingID string
	Category  Category
	To        string
	Subject   string
	HTML      string
	Text      string
}

// DeliveryDetail is the outcome of one dispatch pipeline.
type DeliveryDetail struct {
	BookingID         string
	Success           bool
	ProviderMessageID string
	Error             string
}

// Report aggregates one dispatch run. Successful+Failed == Total == len(Details).
// Skipped counts candidates already claimed by an earlier run and is not part of Total.
type Report struct {
	Category   Category
	Total      int
	Successful int
	Failed     int
	Skipped    int
	Details    []DeliveryDetail
}

// RedeemResult describes a successfully redeemed action token.
type RedeemResult struct {
	Kind    TokenKind
	Booking Booking
}

// ReminderClaim identifies a reminder in the dedupe ledger.
type ReminderClaim struct {
	BookingID  string
	Category   Category
	WindowDate string
}
