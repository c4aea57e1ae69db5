package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/studio-reminders/internal/persistence/sqlite"
	"github.com/example/studio-reminders/internal/persistence/sqlite/migration"
	"github.com/example/studio-reminders/internal/storeadapter"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database together with the application-facing adapters.
type SQLiteHarness struct {
	Storage *sqlite.Storage

	Bookings     *storeadapter.Bookings
	ActionTokens *storeadapter.ActionTokens
	Redemption   *storeadapter.Redemption
	Ledger       *storeadapter.Ledger
}

// NewSQLiteHarness constructs a harness using a temporary file that is
// migrated automatically and closed when the test finishes.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "reminders.db")
	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Storage:      storage,
		Bookings:     storeadapter.NewBookings(storage),
		ActionTokens: storeadapter.NewActionTokens(storage),
		Redemption:   storeadapter.NewRedemption(storage, storage),
		Ledger:       storeadapter.NewLedger(storage, nil, nil, 0),
	}
}

// SeedBookings stores the given fixtures, failing the test on error.
func (h *SQLiteHarness) SeedBookings(tb testing.TB, fixtures ...BookingFixture) {
	tb.Helper()
	for _, f := range fixtures {
		if err := h.Storage.CreateBooking(context.Background(), f.Persistence()); err != nil {
			tb.Fatalf("failed to seed booking %s: %v", f.ID, err)
		}
	}
}
