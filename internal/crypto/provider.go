package crypto

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// KeyProvider supplies the symmetric key used for map encryption. The
// concrete provider is chosen once at construction and injected; nothing in
// the encrypt/decrypt path branches on provider kind.
type KeyProvider interface {
	GetKey() ([]byte, error)
}

// KeyRotator is the optional rotation capability. Providers that support
// rotation implement it explicitly, so callers can detect support with a
// type assertion instead of probing an optional method.
type KeyRotator interface {
	// RotateKey generates and installs a new key, returned for the caller
	// to persist. All subsequent GetKey calls return the new key.
	RotateKey() ([]byte, error)
}

// EphemeralProvider holds a key in memory with no persistence. It supports
// rotation. Sessions encrypted under an ephemeral key are unrecoverable once
// the process exits.
type EphemeralProvider struct {
	mu  sync.RWMutex
	key []byte
}

// NewEphemeralProvider creates a provider with a freshly generated key.
func NewEphemeralProvider() (*EphemeralProvider, error) {
	key, err := GenerateKey(KeyLength)
	if err != nil {
		return nil, err
	}
	return &EphemeralProvider{key: key}, nil
}

// NewEphemeralProviderWithKey creates a provider holding the supplied key.
func NewEphemeralProviderWithKey(key []byte) (*EphemeralProvider, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}
	return &EphemeralProvider{key: key}, nil
}

// GetKey returns the current key.
func (p *EphemeralProvider) GetKey() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key, nil
}

// RotateKey replaces the current key with a freshly generated one.
func (p *EphemeralProvider) RotateKey() ([]byte, error) {
	key, err := GenerateKey(KeyLength)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.key = key
	p.mu.Unlock()
	return key, nil
}

// StaticProvider holds a key supplied as a base64 string through
// configuration. The length is validated at construction, before any
// cryptographic operation; it never rotates.
type StaticProvider struct {
	key []byte
}

// NewStaticProvider decodes and validates a base64-encoded 32-byte key.
func NewStaticProvider(encoded string) (*StaticProvider, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}
	return &StaticProvider{key: key}, nil
}

// GetKey returns the configured key.
func (p *StaticProvider) GetKey() ([]byte, error) {
	return p.key, nil
}
