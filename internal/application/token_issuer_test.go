package application_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/testfixtures"
)

type memoryTokenStore struct {
	tokens []application.ActionToken
	err    error
}

func (m *memoryTokenStore) CreateActionToken(_ context.Context, token application.ActionToken) (application.ActionToken, error) {
	if m.err != nil {
		return application.ActionToken{}, m.err
	}
	m.tokens = append(m.tokens, token)
	return token, nil
}

func TestTokenIssuerPersistsOnlyDigest(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	booking := testfixtures.NewBookingFixture()
	h.SeedBookings(t, booking)

	factory := testfixtures.NewServiceFactory()
	issuer := factory.NewTokenIssuer(h.ActionTokens)

	raw, err := issuer.Issue(context.Background(), booking.ID, application.TokenKindCancel)
	require.NoError(t, err)
	require.Len(t, raw, 64)

	stored, err := h.Storage.ListActionTokensForBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	sum := sha256.Sum256([]byte(raw))
	assert.Equal(t, hex.EncodeToString(sum[:]), stored[0].TokenHash)
	assert.Equal(t, "cancel", stored[0].Kind)
	assert.Nil(t, stored[0].ConsumedAt)
	assert.True(t, stored[0].ExpiresAt.Equal(factory.Clock.Now().Add(application.DefaultTokenTTL)))

	for _, column := range []string{stored[0].ID, stored[0].BookingID, stored[0].Kind, stored[0].TokenHash} {
		assert.NotContains(t, column, raw)
	}
}

func TestTokenIssuerRejectsUnknownKind(t *testing.T) {
	store := &memoryTokenStore{}
	issuer := application.NewTokenIssuer(store, nil, nil, 0)

	_, err := issuer.Issue(context.Background(), "booking-1", application.TokenKind("delete"))
	require.ErrorIs(t, err, application.ErrInvalidTokenKind)
	assert.Empty(t, store.tokens)
}

func TestTokenIssuerWrapsStoreErrors(t *testing.T) {
	storeErr := errors.New("insert failed")
	issuer := application.NewTokenIssuer(&memoryTokenStore{err: storeErr}, nil, nil, time.Hour)

	raw, err := issuer.Issue(context.Background(), "booking-1", application.TokenKindModify)
	require.ErrorIs(t, err, storeErr)
	assert.Empty(t, raw)
}

func TestTokenIssuerUsesConfiguredTTL(t *testing.T) {
	store := &memoryTokenStore{}
	clock := testfixtures.NewClock(time.Time{})
	issuer := application.NewTokenIssuer(store, testfixtures.NewIDGenerator("tok").NextFunc(), clock.NowFunc(), 48*time.Hour)

	_, err := issuer.Issue(context.Background(), "booking-1", application.TokenKindModify)
	require.NoError(t, err)
	require.Len(t, store.tokens, 1)
	assert.Equal(t, "tok-1", store.tokens[0].ID)
	assert.True(t, store.tokens[0].ExpiresAt.Equal(clock.Now().Add(48*time.Hour)))
}

func TestTokenSecretsAreUnique(t *testing.T) {
	store := &memoryTokenStore{}
	issuer := application.NewTokenIssuer(store, nil, nil, 0)

	seen := make(map[string]struct{}, 10000)
	hashes := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		raw, err := issuer.Issue(context.Background(), "booking-1", application.TokenKindCancel)
		require.NoError(t, err)
		seen[raw] = struct{}{}
	}
	for _, token := range store.tokens {
		hashes[token.TokenHash] = struct{}{}
	}
	assert.Len(t, seen, 10000)
	assert.Len(t, hashes, 10000)
}

func TestGenerateTokenSecret(t *testing.T) {
	raw, err := application.GenerateTokenSecret(bytes.NewReader(bytes.Repeat([]byte{0xab}, 32)))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), raw)

	_, err = application.GenerateTokenSecret(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestHashTokenIsHexSHA256(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		application.HashToken("hello"),
	)
}
