package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

var ErrKeyNotFound = errors.New("master key not configured")

// Keyring holds one Sealer per key version and seals with the newest.
// Values that are not sealed pass through Open unchanged, so records written
// before a master key was configured stay readable.
type Keyring struct {
	mu      sync.RWMutex
	current int
	sealers map[int]*Sealer
}

// NewKeyring loads MASTER_ENCRYPTION_KEY (version 1) and any
// MASTER_ENCRYPTION_KEY_V2..V10 through getenv.
func NewKeyring(getenv func(string) string) (*Keyring, error) {
	kr := &Keyring{sealers: make(map[int]*Sealer)}
	if err := kr.load(1, getenv("MASTER_ENCRYPTION_KEY")); err != nil {
		return nil, fmt.Errorf("load primary key: %w", err)
	}
	kr.current = 1
	for v := 2; v <= 10; v++ {
		if err := kr.load(v, getenv(fmt.Sprintf("MASTER_ENCRYPTION_KEY_V%d", v))); err == nil {
			kr.current = v
		}
	}
	return kr, nil
}

func (kr *Keyring) load(version int, keyBase64 string) error {
	if keyBase64 == "" {
		return ErrKeyNotFound
	}
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return fmt.Errorf("decode key v%d: %w", version, err)
	}
	s, err := NewSealer(key, version)
	if err != nil {
		return fmt.Errorf("create sealer v%d: %w", version, err)
	}
	kr.sealers[version] = s
	return nil
}

// Seal encrypts with the current key version.
func (kr *Keyring) Seal(plaintext string) (string, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	s, ok := kr.sealers[kr.current]
	if !ok {
		return "", ErrKeyNotFound
	}
	return s.Seal(plaintext)
}

// Open decrypts with the version stamped on the value.
func (kr *Keyring) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	version := ParseVersion(value)
	s, ok := kr.sealers[version]
	if !ok {
		return "", fmt.Errorf("key version %d not available", version)
	}
	return s.Open(value)
}

// CurrentVersion returns the version new values are sealed with.
func (kr *Keyring) CurrentVersion() int {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.current
}

// GenerateKey returns a random base64 master key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
