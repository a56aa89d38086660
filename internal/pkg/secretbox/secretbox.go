package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// PurposeIntegrationTokens protects stored access/refresh token bundles.
	PurposeIntegrationTokens = "integration-tokens"
	// PurposePlatformCredentials protects operator-configured OAuth app credentials.
	PurposePlatformCredentials = "integration-platform-credentials"
	// PurposeStateFields protects sensitive sub-fields carried inside signed OAuth state.
	PurposeStateFields = "oauth-state-fields"
)

var (
	ErrEmptyRootSecret = errors.New("secretbox: root secret is empty")
	ErrInvalidPurpose  = errors.New("secretbox: purpose is empty")
	// ErrDecryptFailed covers tampered, truncated, and wrong-purpose ciphertext alike.
	ErrDecryptFailed = errors.New("secretbox: decryption failed")
)

// Box encrypts and decrypts small secrets with AES-256-GCM. Each purpose
// string gets its own key, derived from the root secret via HKDF-SHA256, so
// ciphertext created for one purpose can never be opened under another.
type Box struct {
	root []byte

	mu   sync.RWMutex
	keys map[string]cipher.AEAD
}

// New creates a Box from the root secret. The secret is injected here once;
// the box never reads the process environment itself.
func New(rootSecret string) (*Box, error) {
	if rootSecret == "" {
		return nil, ErrEmptyRootSecret
	}
	return &Box{
		root: []byte(rootSecret),
		keys: make(map[string]cipher.AEAD),
	}, nil
}

// Encrypt seals plaintext under the purpose-scoped key and returns
// base64url(nonce || ciphertext || tag), self-contained for Decrypt.
func (b *Box) Encrypt(plaintext []byte, purpose string) (string, error) {
	aead, err := b.aeadFor(purpose)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce generation failed: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt with the same purpose. It
// fails closed: any tampering, truncation or purpose mismatch returns
// ErrDecryptFailed, never garbage plaintext.
func (b *Box) Decrypt(encoded string, purpose string) ([]byte, error) {
	aead, err := b.aeadFor(purpose)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrDecryptFailed
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// DeriveKey expands the root secret into a 32-byte key bound to the purpose.
// Exposed so the state signer can derive its HMAC key from the same root.
func (b *Box) DeriveKey(purpose string) ([]byte, error) {
	if purpose == "" {
		return nil, ErrInvalidPurpose
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, b.root, nil, []byte("echoboard:"+purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secretbox: key derivation failed: %w", err)
	}
	return key, nil
}

func (b *Box) aeadFor(purpose string) (cipher.AEAD, error) {
	b.mu.RLock()
	aead, ok := b.keys[purpose]
	b.mu.RUnlock()
	if ok {
		return aead, nil
	}

	key, err := b.DeriveKey(purpose)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.keys[purpose] = aead
	b.mu.Unlock()
	return aead, nil
}
