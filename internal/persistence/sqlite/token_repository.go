package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/studio-reminders/internal/persistence"
)

// ActionTokenRepository implements persistence.ActionTokenRepository using SQLite
type ActionTokenRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewActionTokenRepository creates a new SQLite action token repository
func NewActionTokenRepository(pool *ConnectionPool) *ActionTokenRepository {
	return &ActionTokenRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const actionTokenColumns = `id, booking_id, kind, token_hash, expires_at, consumed_at, created_at`

// CreateActionToken inserts a token digest. Dispatch pipelines insert
// concurrently, so lock contention is retried with backoff.
func (r *ActionTokenRepository) CreateActionToken(ctx context.Context, token persistence.ActionToken) (persistence.ActionToken, error) {
	if token.ID == "" || token.BookingID == "" || token.TokenHash == "" {
		return persistence.ActionToken{}, persistence.ErrConstraintViolation
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO action_tokens (` + actionTokenColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			token.ID,
			token.BookingID,
			token.Kind,
			token.TokenHash,
			formatTimestamp(token.ExpiresAt),
			nullableTimestamp(token.ConsumedAt),
			formatTimestamp(token.CreatedAt),
		)
		return err
	})
	if err != nil {
		return persistence.ActionToken{}, err
	}
	return token, nil
}

// GetActionTokenByHash looks up a token by the digest of its secret
func (r *ActionTokenRepository) GetActionTokenByHash(ctx context.Context, hash string) (persistence.ActionToken, error) {
	if hash == "" {
		return persistence.ActionToken{}, persistence.ErrNotFound
	}

	query := `SELECT ` + actionTokenColumns + ` FROM action_tokens WHERE token_hash = ?`
	token, err := scanActionToken(r.helper.QueryRow(ctx, query, hash))
	if err != nil {
		return persistence.ActionToken{}, r.mapper.MapError(err)
	}
	return token, nil
}

// ListActionTokensForBooking returns every token issued for a booking in issue order
func (r *ActionTokenRepository) ListActionTokensForBooking(ctx context.Context, bookingID string) ([]persistence.ActionToken, error) {
	query := `
		SELECT ` + actionTokenColumns + `
		FROM action_tokens
		WHERE booking_id = ?
		ORDER BY created_at, id
	`
	rows, err := r.helper.Query(ctx, query, bookingID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	tokens := []persistence.ActionToken{}
	for rows.Next() {
		token, err := scanActionToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action tokens: %w", err)
	}
	return tokens, nil
}

// ConsumeActionToken marks an unconsumed token as used and applies the
// optional booking transition in the same transaction. Only one caller can
// consume a token; later callers receive ErrConflict.
func (r *ActionTokenRepository) ConsumeActionToken(ctx context.Context, id string, consumedAt time.Time, transition *persistence.StatusTransition) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(ctx, tx, `
			UPDATE action_tokens SET consumed_at = ?
			WHERE id = ? AND consumed_at IS NULL
		`, formatTimestamp(consumedAt), id)
		if err != nil {
			return r.mapper.MapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			var exists int
			err := r.helper.QueryRowTx(ctx, tx, `SELECT 1 FROM action_tokens WHERE id = ?`, id).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			if err != nil {
				return r.mapper.MapError(err)
			}
			return fmt.Errorf("%w: action token already consumed", persistence.ErrConflict)
		}

		if transition == nil {
			return nil
		}
		return applyStatusTransition(ctx, r.helper, r.mapper, tx, *transition, consumedAt)
	})
}

func scanActionToken(row rowScanner) (persistence.ActionToken, error) {
	var (
		token                persistence.ActionToken
		expiresAt, createdAt string
		consumedAt           sql.NullString
	)
	if err := row.Scan(
		&token.ID,
		&token.BookingID,
		&token.Kind,
		&token.TokenHash,
		&expiresAt,
		&consumedAt,
		&createdAt,
	); err != nil {
		return persistence.ActionToken{}, err
	}

	var err error
	if token.ExpiresAt, err = parseTimestamp("expires_at", expiresAt); err != nil {
		return persistence.ActionToken{}, err
	}
	if token.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.ActionToken{}, err
	}
	if consumedAt.Valid {
		t, err := parseTimestamp("consumed_at", consumedAt.String)
		if err != nil {
			return persistence.ActionToken{}, err
		}
		token.ConsumedAt = &t
	}
	return token, nil
}

func nullableTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}
