package credstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "mobile-session credstore v1"

// ErrNoMasterKey is returned by NewSealer when no secret is configured
var ErrNoMasterKey = errors.New("credential master key is empty")

// Sealer encrypts individual values with XChaCha20-Poly1305.
// The storage key is bound as additional data so a value cannot be moved between slots.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the AEAD key from secret with HKDF-SHA256
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrNoMasterKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext)
func (s *Sealer) Seal(slot, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(slot))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal for the same slot
func (s *Sealer) Open(slot, sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("sealed value is not base64: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errors.New("sealed value is truncated")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(slot))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plain), nil
}

// EncryptedBackend seals values before handing them to the wrapped backend
type EncryptedBackend struct {
	inner  Backend
	sealer *Sealer
}

// NewEncryptedBackend wraps inner with sealer
func NewEncryptedBackend(inner Backend, sealer *Sealer) *EncryptedBackend {
	return &EncryptedBackend{inner: inner, sealer: sealer}
}

func (e *EncryptedBackend) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	plain, err := e.sealer.Open(key, sealed)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (e *EncryptedBackend) Update(ctx context.Context, set map[string]string, del []string) error {
	sealed := make(map[string]string, len(set))
	for key, value := range set {
		v, err := e.sealer.Seal(key, value)
		if err != nil {
			return err
		}
		sealed[key] = v
	}
	return e.inner.Update(ctx, sealed, del)
}

func (e *EncryptedBackend) Name() string { return "encrypted+" + e.inner.Name() }
