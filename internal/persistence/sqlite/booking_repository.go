package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/studio-reminders/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const bookingColumns = `id, client_name, client_email, service_type, booking_date, booking_time,
	duration_minutes, status, created_at, updated_at`

// CreateBooking inserts a new booking. Zero timestamps are set to the current time.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		booking.ID,
		booking.ClientName,
		strings.TrimSpace(booking.ClientEmail),
		booking.ServiceType,
		booking.Date,
		NormalizeClock(booking.Time),
		booking.DurationMinutes,
		booking.Status,
		formatTimestamp(booking.CreatedAt),
		formatTimestamp(booking.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	return booking, nil
}

// ListBookings returns bookings matching the filter ordered by date, time and ID.
// TimeFrom and TimeTo are inclusive bounds on the stored "15:04" start time.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Date != "" {
		conditions = append(conditions, "booking_date = ?")
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.TimeFrom != "" {
		conditions = append(conditions, "booking_time >= ?")
		args = append(args, NormalizeClock(filter.TimeFrom))
	}
	if filter.TimeTo != "" {
		conditions = append(conditions, "booking_time <= ?")
		args = append(args, NormalizeClock(filter.TimeTo))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY booking_date, booking_time, id"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	bookings := []persistence.Booking{}
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingStatus applies the transition only when the booking is still in
// transition.From. A missing booking yields ErrNotFound and a booking in any
// other state yields ErrConflict.
func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, transition persistence.StatusTransition, updatedAt time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return applyStatusTransition(ctx, r.helper, r.mapper, tx, transition, updatedAt)
	})
}

func applyStatusTransition(ctx context.Context, helper *QueryHelper, mapper *ErrorMapper, tx *sql.Tx, transition persistence.StatusTransition, updatedAt time.Time) error {
	result, err := helper.ExecTx(ctx, tx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, transition.To, formatTimestamp(updatedAt), transition.BookingID, transition.From)
	if err != nil {
		return mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = helper.QueryRowTx(ctx, tx, `SELECT 1 FROM bookings WHERE id = ?`, transition.BookingID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return mapper.MapError(err)
	}
	return fmt.Errorf("%w: booking %s is not %s", persistence.ErrConflict, transition.BookingID, transition.From)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking              persistence.Booking
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&booking.ID,
		&booking.ClientName,
		&booking.ClientEmail,
		&booking.ServiceType,
		&booking.Date,
		&booking.Time,
		&booking.DurationMinutes,
		&booking.Status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, err
	}

	var err error
	if booking.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}

// NormalizeClock trims a stored start time such as "09:30:00" to "09:30" so
// lexical comparisons in SQL match chronological order.
func NormalizeClock(value string) string {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("15:04:05", value); err == nil {
		return t.Format("15:04")
	}
	if t, err := time.Parse("15:04", value); err == nil {
		return t.Format("15:04")
	}
	return value
}
