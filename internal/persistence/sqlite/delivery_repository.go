package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/studio-reminders/internal/persistence"
)

// ReminderDeliveryRepository implements persistence.ReminderDeliveryRepository using SQLite
type ReminderDeliveryRepository struct {
	helper *QueryHelper
	retry  *RetryHelper
}

// NewReminderDeliveryRepository creates a new SQLite reminder ledger repository
func NewReminderDeliveryRepository(pool *ConnectionPool) *ReminderDeliveryRepository {
	return &ReminderDeliveryRepository{
		helper: NewQueryHelper(pool),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// ClaimReminderDelivery records the delivery unless the same booking, category
// and window date was already claimed. An undelivered claim older than
// delivery.ReclaimBefore is taken over. It reports whether this call won the claim.
func (r *ReminderDeliveryRepository) ClaimReminderDelivery(ctx context.Context, delivery persistence.ReminderDelivery) (bool, error) {
	if delivery.ID == "" || delivery.BookingID == "" {
		return false, persistence.ErrConstraintViolation
	}

	var claimed bool
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `
			INSERT INTO reminder_deliveries (id, booking_id, category, window_date, claimed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (booking_id, category, window_date) DO UPDATE
			SET id = excluded.id, claimed_at = excluded.claimed_at
			WHERE reminder_deliveries.delivered_at IS NULL
				AND ? != ''
				AND julianday(reminder_deliveries.claimed_at) < julianday(?)
		`, delivery.ID, delivery.BookingID, delivery.Category, delivery.WindowDate, formatTimestamp(delivery.ClaimedAt),
			reclaimBefore(delivery), reclaimBefore(delivery))
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		claimed = affected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// ReleaseReminderDelivery removes a claim so a later run may retry the reminder.
// Releasing an absent claim is not an error.
func (r *ReminderDeliveryRepository) ReleaseReminderDelivery(ctx context.Context, bookingID, category, windowDate string) error {
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, `
			DELETE FROM reminder_deliveries
			WHERE booking_id = ? AND category = ? AND window_date = ? AND delivered_at IS NULL
		`, bookingID, category, windowDate)
		return err
	})
}

// CompleteReminderDelivery marks a claim delivered. Delivered claims are never
// taken over or released.
func (r *ReminderDeliveryRepository) CompleteReminderDelivery(ctx context.Context, bookingID, category, windowDate string, deliveredAt time.Time) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `
			UPDATE reminder_deliveries SET delivered_at = ?
			WHERE booking_id = ? AND category = ? AND window_date = ?
		`, formatTimestamp(deliveredAt), bookingID, category, windowDate)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func reclaimBefore(delivery persistence.ReminderDelivery) string {
	if delivery.ReclaimBefore.IsZero() {
		return ""
	}
	return formatTimestamp(delivery.ReclaimBefore)
}
