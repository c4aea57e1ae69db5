package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studio-reminders/internal/persistence"
)

func TestErrorMapper_MapError(t *testing.T) {
	t.Parallel()

	mapper := NewErrorMapper()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, persistence.ErrNotFound},
		{"unique", errors.New("constraint failed: UNIQUE constraint failed: bookings.id (1555)"), persistence.ErrDuplicate},
		{"foreign key", errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), persistence.ErrForeignKeyViolation},
		{"check", errors.New("constraint failed: CHECK constraint failed: status (275)"), persistence.ErrConstraintViolation},
		{"not null", errors.New("NOT NULL constraint failed: bookings.client_name"), persistence.ErrConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mapper.MapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapper.MapError(nil))
	other := errors.New("disk I/O error")
	assert.Same(t, other, mapper.MapError(other))
}

func TestRetryHelper_WithRetry(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

	t.Run("retries lock errors until success", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := NewRetryHelper(cfg).WithRetry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("does not retry constraint errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := NewRetryHelper(cfg).WithRetry(context.Background(), func() error {
			attempts++
			return errors.New("UNIQUE constraint failed: action_tokens.token_hash")
		})
		assert.ErrorIs(t, err, persistence.ErrDuplicate)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after the configured retries", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := NewRetryHelper(cfg).WithRetry(context.Background(), func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, cfg.MaxRetries+1, attempts)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewRetryHelper(cfg).WithRetry(ctx, func() error {
			return errors.New("database is locked")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNormalizeClock(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "09:30", NormalizeClock("09:30:00"))
	assert.Equal(t, "09:30", NormalizeClock("9:30"))
	assert.Equal(t, "18:05", NormalizeClock(" 18:05 "))
	assert.Equal(t, "soon", NormalizeClock("soon"))
}
