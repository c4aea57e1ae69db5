// Package storeadapter bridges the application ports to the persistence
// repositories, converting between the two model sets.
package storeadapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/persistence"
)

// Bookings adapts a persistence.BookingRepository to application.BookingReader.
type Bookings struct {
	repo persistence.BookingRepository
}

// NewBookings wraps repo.
func NewBookings(repo persistence.BookingRepository) *Bookings {
	return &Bookings{repo: repo}
}

func (a *Bookings) ListBookings(ctx context.Context, query application.BookingQuery) ([]application.Booking, error) {
	models, err := a.repo.ListBookings(ctx, persistence.BookingFilter{
		Date:     query.Date,
		Status:   string(query.Status),
		TimeFrom: query.TimeFrom,
		TimeTo:   query.TimeTo,
	})
	if err != nil {
		return nil, err
	}
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		bookings = append(bookings, ToApplicationBooking(model))
	}
	return bookings, nil
}

func (a *Bookings) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return ToApplicationBooking(stored), nil
}

// ActionTokens adapts a persistence.ActionTokenRepository to the issuer store.
type ActionTokens struct {
	repo persistence.ActionTokenRepository
}

// NewActionTokens wraps repo.
func NewActionTokens(repo persistence.ActionTokenRepository) *ActionTokens {
	return &ActionTokens{repo: repo}
}

func (a *ActionTokens) CreateActionToken(ctx context.Context, token application.ActionToken) (application.ActionToken, error) {
	stored, err := a.repo.CreateActionToken(ctx, toPersistenceToken(token))
	if err != nil {
		return application.ActionToken{}, err
	}
	return toApplicationToken(stored), nil
}

// Redemption adapts the booking and token repositories to application.RedemptionStore.
type Redemption struct {
	bookings persistence.BookingRepository
	tokens   persistence.ActionTokenRepository
}

// NewRedemption wraps the two repositories.
func NewRedemption(bookings persistence.BookingRepository, tokens persistence.ActionTokenRepository) *Redemption {
	return &Redemption{bookings: bookings, tokens: tokens}
}

func (a *Redemption) GetActionTokenByHash(ctx context.Context, hash string) (application.ActionToken, error) {
	stored, err := a.tokens.GetActionTokenByHash(ctx, hash)
	if err != nil {
		return application.ActionToken{}, err
	}
	return toApplicationToken(stored), nil
}

func (a *Redemption) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := a.bookings.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return ToApplicationBooking(stored), nil
}

func (a *Redemption) ConsumeActionToken(ctx context.Context, tokenID string, consumedAt time.Time, change *application.StatusChange) error {
	var transition *persistence.StatusTransition
	if change != nil {
		transition = &persistence.StatusTransition{
			BookingID: change.BookingID,
			From:      string(change.From),
			To:        string(change.To),
		}
	}
	return a.tokens.ConsumeActionToken(ctx, tokenID, consumedAt, transition)
}

// DefaultClaimTimeout is how long an undelivered claim blocks other runs.
const DefaultClaimTimeout = 30 * time.Minute

// Ledger adapts a persistence.ReminderDeliveryRepository to application.ReminderLedger.
type Ledger struct {
	repo         persistence.ReminderDeliveryRepository
	idGenerator  func() string
	now          func() time.Time
	claimTimeout time.Duration
}

// NewLedger wraps repo. Nil generators default to uuid and time.Now; a
// non-positive claimTimeout means DefaultClaimTimeout.
func NewLedger(repo persistence.ReminderDeliveryRepository, idGenerator func() string, now func() time.Time, claimTimeout time.Duration) *Ledger {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &Ledger{repo: repo, idGenerator: idGenerator, now: now, claimTimeout: claimTimeout}
}

func (a *Ledger) Claim(ctx context.Context, claim application.ReminderClaim) (bool, error) {
	now := a.now().UTC()
	return a.repo.ClaimReminderDelivery(ctx, persistence.ReminderDelivery{
		ID:            a.idGenerator(),
		BookingID:     claim.BookingID,
		Category:      string(claim.Category),
		WindowDate:    claim.WindowDate,
		ClaimedAt:     now,
		ReclaimBefore: now.Add(-a.claimTimeout),
	})
}

func (a *Ledger) Complete(ctx context.Context, claim application.ReminderClaim) error {
	return a.repo.CompleteReminderDelivery(ctx, claim.BookingID, string(claim.Category), claim.WindowDate, a.now().UTC())
}

func (a *Ledger) Release(ctx context.Context, claim application.ReminderClaim) error {
	return a.repo.ReleaseReminderDelivery(ctx, claim.BookingID, string(claim.Category), claim.WindowDate)
}

// ToApplicationBooking converts a stored booking.
func ToApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		ID:              model.ID,
		ClientName:      model.ClientName,
		ClientEmail:     model.ClientEmail,
		ServiceType:     model.ServiceType,
		Date:            model.Date,
		Time:            model.Time,
		DurationMinutes: model.DurationMinutes,
		Status:          application.BookingStatus(model.Status),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// ToPersistenceBooking converts an application booking for storage.
func ToPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:              booking.ID,
		ClientName:      booking.ClientName,
		ClientEmail:     booking.ClientEmail,
		ServiceType:     booking.ServiceType,
		Date:            booking.Date,
		Time:            booking.Time,
		DurationMinutes: booking.DurationMinutes,
		Status:          string(booking.Status),
		CreatedAt:       booking.CreatedAt,
		UpdatedAt:       booking.UpdatedAt,
	}
}

func toApplicationToken(model persistence.ActionToken) application.ActionToken {
	return application.ActionToken{
		ID:         model.ID,
		BookingID:  model.BookingID,
		Kind:       application.TokenKind(model.Kind),
		TokenHash:  model.TokenHash,
		ExpiresAt:  model.ExpiresAt,
		ConsumedAt: cloneTime(model.ConsumedAt),
		CreatedAt:  model.CreatedAt,
	}
}

func toPersistenceToken(token application.ActionToken) persistence.ActionToken {
	return persistence.ActionToken{
		ID:         token.ID,
		BookingID:  token.BookingID,
		Kind:       string(token.Kind),
		TokenHash:  token.TokenHash,
		ExpiresAt:  token.ExpiresAt,
		ConsumedAt: cloneTime(token.ConsumedAt),
		CreatedAt:  token.CreatedAt,
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
