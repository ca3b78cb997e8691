// Package crypto seals exchange credentials before they are written to disk.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required size of a master key.
	KeySize = 32
	// sealedPrefix marks sealed values: SEALED[v1]:base64(nonce+ciphertext)
	sealedPrefix = "SEALED[v"
	sealedFormat = "SEALED[v%d]:"
)

var (
	ErrInvalidKey        = errors.New("invalid master key: must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid sealed value")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// hkdfInfo binds derived keys to credential storage.
var hkdfInfo = []byte("tradebot exchange credentials")

// Sealer encrypts short secrets with XChaCha20-Poly1305 under a key derived
// from a master key.
type Sealer struct {
	aead    cipherAEAD
	version int
}

type cipherAEAD interface {
	NonceSize() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewSealer derives the sealing key from master.
func NewSealer(master []byte, version int) (*Sealer, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return &Sealer{aead: aead, version: version}, nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf(sealedFormat, s.version) + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !IsSealed(sealed) {
		return "", ErrInvalidCiphertext
	}
	idx := strings.Index(sealed, "]:")
	if idx == -1 {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(sealed[idx+2:])
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := s.aead.NonceSize()
	if len(data) <= ns {
		return "", ErrInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// Version is the key version stamped on sealed values.
func (s *Sealer) Version() int { return s.version }

// IsSealed reports whether v looks like a sealed value.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}

// ParseVersion extracts the key version of a sealed value, or 0.
func ParseVersion(sealed string) int {
	if !IsSealed(sealed) {
		return 0
	}
	var version int
	if _, err := fmt.Sscanf(sealed, "SEALED[v%d]:", &version); err != nil {
		return 0
	}
	return version
}
