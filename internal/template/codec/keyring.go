package codec

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"veriprint/pkg/platform/sentinel"
)

// StaticKeyring derives versioned 32-byte keys from a master secret with
// HKDF. It satisfies KeyProvider for deployments without an external KMS;
// rotation bumps the current version while old versions stay resolvable so
// existing records keep decrypting.
type StaticKeyring struct {
	mu      sync.RWMutex
	secret  []byte
	current int
	derived map[int][]byte
}

// NewStaticKeyring builds a keyring anchored at the given current version.
func NewStaticKeyring(secret string, current int) (*StaticKeyring, error) {
	if secret == "" {
		return nil, fmt.Errorf("keyring secret is required")
	}
	if current < 1 {
		return nil, fmt.Errorf("keyring version must be >= 1")
	}
	return &StaticKeyring{
		secret:  []byte(secret),
		current: current,
		derived: make(map[int][]byte),
	}, nil
}

// CurrentID returns the id new encryptions are stamped with.
func (k *StaticKeyring) CurrentID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return keyID(k.current)
}

// Material resolves key bytes for a key id. Versions above the current one
// are unknown; versions at or below it derive deterministically.
func (k *StaticKeyring) Material(id string) ([]byte, error) {
	version, err := parseKeyID(id)
	if err != nil {
		return nil, err
	}

	k.mu.RLock()
	if version > k.current {
		k.mu.RUnlock()
		return nil, fmt.Errorf("key %s: %w", id, sentinel.ErrNotFound)
	}
	if key, ok := k.derived[version]; ok {
		k.mu.RUnlock()
		return key, nil
	}
	k.mu.RUnlock()

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, k.secret, nil, []byte(keyID(version)))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key %s: %w", id, err)
	}

	k.mu.Lock()
	k.derived[version] = key
	k.mu.Unlock()
	return key, nil
}

// Rotate advances the current version.
func (k *StaticKeyring) Rotate() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.current++
	return keyID(k.current)
}

func keyID(version int) string { return fmt.Sprintf("v%d", version) }

func parseKeyID(id string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(id, "v%d", &version); err != nil || version < 1 {
		return 0, fmt.Errorf("malformed key id %q", id)
	}
	return version, nil
}
