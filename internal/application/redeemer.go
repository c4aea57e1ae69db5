package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/studio-reminders/internal/persistence"
)

// RedemptionStore captures the persistence operations needed to redeem tokens.
type RedemptionStore interface {
	GetActionTokenByHash(ctx context.Context, hash string) (ActionToken, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	// ConsumeActionToken marks the token used and applies change, when
	// non-nil, atomically. A token consumed concurrently yields ErrConflict.
	ConsumeActionToken(ctx context.Context, tokenID string, consumedAt time.Time, change *StatusChange) error
}

// Redeemer exchanges a raw action token for its one-time effect on a booking.
type Redeemer struct {
	store  RedemptionStore
	now    func() time.Time
	logger *slog.Logger
}

// NewRedeemer constructs a redeemer with the provided dependencies.
func NewRedeemer(store RedemptionStore, now func() time.Time) *Redeemer {
	return NewRedeemerWithLogger(store, now, nil)
}

// NewRedeemerWithLogger constructs a redeemer with a specified logger.
func NewRedeemerWithLogger(store RedemptionStore, now func() time.Time, logger *slog.Logger) *Redeemer {
	if now == nil {
		now = time.Now
	}
	return &Redeemer{store: store, now: now, logger: defaultLogger(logger)}
}

// Redeem validates raw against the stored digest and applies the action.
// cancel moves the booking to cancelled. modify only consumes the token and
// returns the booking for the caller's rescheduling flow.
func (r *Redeemer) Redeem(ctx context.Context, raw string, kind TokenKind) (result RedeemResult, err error) {
	if r == nil {
		return RedeemResult{}, fmt.Errorf("Redeemer is nil")
	}

	logger := serviceLogger(ctx, r.logger, "Redeemer", "Redeem", "kind", string(kind))
	var token ActionToken
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "action token rejected", "token_id", token.ID, "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "action token redeemed", "token_id", token.ID, "booking_id", result.Booking.ID)
	}()

	if !kind.Valid() {
		return RedeemResult{}, fmt.Errorf("%w: %q", ErrInvalidTokenKind, string(kind))
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		vErr := &ValidationError{}
		vErr.Add("token", "token is required")
		return RedeemResult{}, vErr
	}
	if r.store == nil {
		return RedeemResult{}, fmt.Errorf("redemption store not configured")
	}

	token, err = r.store.GetActionTokenByHash(ctx, HashToken(raw))
	if err != nil {
		return RedeemResult{}, mapRepoError(err)
	}

	now := r.now().UTC()
	if err = checkRedeemable(token, kind, now); err != nil {
		return RedeemResult{}, err
	}

	booking, err := r.store.GetBooking(ctx, token.BookingID)
	if err != nil {
		return RedeemResult{}, mapRepoError(err)
	}

	var change *StatusChange
	switch kind {
	case TokenKindCancel:
		if !CanTransition(booking.Status, StatusCancelled) {
			return RedeemResult{}, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, booking.Status)
		}
		change = &StatusChange{BookingID: booking.ID, From: booking.Status, To: StatusCancelled}
	case TokenKindModify:
		if booking.Status != StatusPending && booking.Status != StatusConfirmed {
			return RedeemResult{}, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, booking.Status)
		}
	}

	if err = r.store.ConsumeActionToken(ctx, token.ID, now, change); err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrConflict) {
			err = r.explainConflict(ctx, token)
		}
		return RedeemResult{}, err
	}

	if change != nil {
		booking.Status = change.To
		booking.UpdatedAt = now
	}
	return RedeemResult{Kind: kind, Booking: booking}, nil
}

// explainConflict decides whether a failed consume lost the token race or
// hit a booking whose status changed underneath it.
func (r *Redeemer) explainConflict(ctx context.Context, token ActionToken) error {
	current, err := r.store.GetActionTokenByHash(ctx, token.TokenHash)
	if err == nil && current.ConsumedAt != nil {
		return ErrTokenConsumed
	}
	return fmt.Errorf("%w: booking status changed", ErrInvalidTransition)
}

func checkRedeemable(token ActionToken, kind TokenKind, now time.Time) error {
	if token.Kind != kind {
		return fmt.Errorf("%w: token authorizes %s", ErrInvalidTokenKind, token.Kind)
	}
	if token.ConsumedAt != nil {
		return ErrTokenConsumed
	}
	if !now.Before(token.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	}
	return err
}
