// Package crypto implements authenticated encryption of raw PII maps
// (AES-256-GCM, three-field wire format), PBKDF2 key derivation, and key
// provider abstractions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rehydra/rehydra/internal/models"
)

const (
	// KeyLength is the required key size in bytes (AES-256).
	KeyLength = 32
	// IVLength is the GCM nonce size in bytes.
	IVLength = 12
	// TagLength is the GCM authentication tag size in bytes (128 bits).
	TagLength = 16
	// SaltLength is the default salt size for key derivation.
	SaltLength = 16
	// DefaultIterations is the default PBKDF2 iteration count.
	DefaultIterations = 100000
)

var (
	// ErrInvalidKeyLength is returned before any cryptographic operation
	// when a key is not exactly KeyLength bytes.
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrAuthenticationFailed is returned when GCM authentication fails on
	// decrypt: a wrong key or tampered ciphertext/iv/tag. Distinguished from
	// plain decode errors so callers can tell "wrong key" from "corrupt data".
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// GenerateKey returns length cryptographically secure random bytes.
// Call with KeyLength for an encryption key.
func GenerateKey(length int) ([]byte, error) {
	key := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns length random bytes for key derivation.
func GenerateSalt(length int) ([]byte, error) {
	return GenerateKey(length)
}

// DeriveKey derives a 32-byte key from a password and salt using
// PBKDF2-SHA256. Pass iterations <= 0 for DefaultIterations.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
}

// Encrypt serializes rawMap to JSON and encrypts it under key with
// AES-256-GCM. A fresh random 12-byte IV is generated per call; the trailing
// 16 bytes of the sealed output are split off as the authentication tag, and
// the three fields are base64-encoded independently.
func Encrypt(rawMap models.RawMap, key []byte) (*models.EncryptedMap, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}
	if rawMap == nil {
		rawMap = models.RawMap{}
	}

	// JSON map encoding sorts keys, so the plaintext is deterministic.
	plaintext, err := json.Marshal(rawMap)
	if err != nil {
		return nil, fmt.Errorf("serialize map: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagLength
	return &models.EncryptedMap{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[split:]),
	}, nil
}

// Decrypt reverses Encrypt. Base64 or length problems in the three fields
// surface as plain decode errors; a wrong key or tampered data surfaces as
// ErrAuthenticationFailed.
func Decrypt(enc *models.EncryptedMap, key []byte) (models.RawMap, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	if len(iv) != IVLength {
		return nil, fmt.Errorf("decode iv: got %d bytes, want %d", len(iv), IVLength)
	}
	authTag, err := base64.StdEncoding.DecodeString(enc.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("decode auth tag: %w", err)
	}
	if len(authTag) != TagLength {
		return nil, fmt.Errorf("decode auth tag: got %d bytes, want %d", len(authTag), TagLength)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// GCM expects ciphertext||tag, so re-concatenate the split fields.
	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	var rawMap models.RawMap
	if err := json.Unmarshal(plaintext, &rawMap); err != nil {
		return nil, fmt.Errorf("deserialize map: %w", err)
	}
	if rawMap == nil {
		rawMap = models.RawMap{}
	}
	return rawMap, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SecureCompare reports whether a and b are equal in constant time. Buffers
// of unequal length compare false immediately; length is not secret.
func SecureCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
