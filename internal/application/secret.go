package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidSecretHash         = errors.New("invalid trigger secret hash format")
	ErrIncompatibleSecretVersion = errors.New("incompatible trigger secret hash version")
)

// Argon2idParams tunes the key derivation used for trigger secrets.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// CreateSecretHash derives a PHC-style argon2id string for the scheduler's
// shared trigger secret. Only this encoded form is kept in configuration.
func CreateSecretHash(secret string, params Argon2idParams) (string, error) {
	if secret == "" {
		return "", errors.New("trigger secret must not be empty")
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// $argon2id$v=19$m=...,t=...,p=...$salt$key
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// ParseSecretHash checks that encoded is a well formed argon2id string.
func ParseSecretHash(encoded string) error {
	_, _, _, err := decodeSecretHash(encoded)
	return err
}

// VerifySecret compares a presented trigger secret against its encoded hash
// in constant time. A mismatch yields ErrUnauthorized.
func VerifySecret(encoded, secret string) error {
	params, salt, key, err := decodeSecretHash(encoded)
	if err != nil {
		return err
	}

	candidate := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	if subtle.ConstantTimeCompare(key, candidate) == 1 {
		return nil
	}
	return ErrUnauthorized
}

func decodeSecretHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	var params Argon2idParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, ErrInvalidSecretHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}
	if version != argon2.Version {
		return params, nil, nil, ErrIncompatibleSecretVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}
	params.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrInvalidSecretHash, err)
	}
	if len(key) == 0 {
		return params, nil, nil, ErrInvalidSecretHash
	}
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}
