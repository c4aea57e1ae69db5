package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is how long an issued action token stays redeemable.
	DefaultTokenTTL = 7 * 24 * time.Hour

	tokenSecretBytes = 32
)

// ActionTokenStore persists issued token digests.
type ActionTokenStore interface {
	CreateActionToken(ctx context.Context, token ActionToken) (ActionToken, error)
}

// TokenIssuer mints single-use action tokens. Only the SHA-256 digest of a
// secret is handed to the store; the raw value is returned to the caller.
type TokenIssuer struct {
	tokens      ActionTokenStore
	idGenerator func() string
	now         func() time.Time
	ttl         time.Duration
	random      io.Reader
	logger      *slog.Logger
}

// NewTokenIssuer constructs a token issuer with the provided dependencies.
func NewTokenIssuer(tokens ActionTokenStore, idGenerator func() string, now func() time.Time, ttl time.Duration) *TokenIssuer {
	return NewTokenIssuerWithLogger(tokens, idGenerator, now, ttl, nil)
}

// NewTokenIssuerWithLogger constructs a token issuer with a specified logger.
func NewTokenIssuerWithLogger(tokens ActionTokenStore, idGenerator func() string, now func() time.Time, ttl time.Duration, logger *slog.Logger) *TokenIssuer {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		tokens:      tokens,
		idGenerator: idGenerator,
		now:         now,
		ttl:         ttl,
		random:      rand.Reader,
		logger:      defaultLogger(logger),
	}
}

// Issue mints a token of the given kind for bookingID and returns the raw secret.
func (i *TokenIssuer) Issue(ctx context.Context, bookingID string, kind TokenKind) (raw string, err error) {
	if i == nil {
		return "", fmt.Errorf("TokenIssuer is nil")
	}

	logger := serviceLogger(ctx, i.logger, "TokenIssuer", "Issue",
		"booking_id", bookingID,
		"kind", string(kind),
	)
	var tokenID string
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to issue action token", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "action token issued", "token_id", tokenID)
	}()

	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTokenKind, string(kind))
	}
	if i.tokens == nil {
		return "", fmt.Errorf("action token store not configured")
	}

	raw, err = GenerateTokenSecret(i.random)
	if err != nil {
		return "", err
	}

	issuedAt := i.now().UTC()
	token := ActionToken{
		ID:        i.idGenerator(),
		BookingID: bookingID,
		Kind:      kind,
		TokenHash: HashToken(raw),
		ExpiresAt: issuedAt.Add(i.ttl),
		CreatedAt: issuedAt,
	}
	tokenID = token.ID

	if _, err = i.tokens.CreateActionToken(ctx, token); err != nil {
		return "", fmt.Errorf("store %s token: %w", kind, err)
	}
	return raw, nil
}

// GenerateTokenSecret reads 256 bits from r and hex-encodes them.
func GenerateTokenSecret(r io.Reader) (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of a raw token. Stored tokens are
// always looked up by this digest.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
