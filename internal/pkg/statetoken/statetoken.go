package statetoken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/echoboardhq/echoboard/internal/pkg/secretbox"
)

// DefaultWindow bounds how long a signed state token stays valid.
const DefaultWindow = 5 * time.Minute

const (
	separator      = "."
	signingPurpose = "oauth-state-signing"
	noncePrefix    = "oauth_state_nonce:"
)

var (
	ErrInvalidToken = errors.New("statetoken: invalid token")
	ErrExpiredToken = errors.New("statetoken: token expired")
	ErrReplayed     = errors.New("statetoken: nonce already consumed")
)

// State is the OAuth handshake payload carried through the provider
// redirect. It is signed but not encrypted as a whole; CodeVerifier and
// OIDCConfig hold ciphertext produced by the field helpers below so they
// stay confidential even to someone who can read the redirect URL.
type State struct {
	Type         string `json:"type"`
	WorkspaceID  uint   `json:"workspace_id"`
	ReturnDomain string `json:"return_domain"`
	MemberID     uint   `json:"member_id"`
	Nonce        string `json:"nonce"`
	IssuedAt     int64  `json:"issued_at"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	OIDCConfig   string `json:"oidc_config,omitempty"`
}

// NonceStore consumes one-shot state nonces. *redis.Client satisfies it.
type NonceStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Signer produces and verifies tamper-evident, time-boxed state tokens.
// When a nonce store is supplied, verified nonces are consumed so a token
// cannot be replayed within its validity window.
type Signer struct {
	key    []byte
	box    *secretbox.Box
	window time.Duration
	nonces NonceStore
	now    func() time.Time
}

// NewSigner derives the HMAC key from the same root-backed box used for
// field encryption. nonces may be nil; replay protection is then limited
// to the expiry window.
func NewSigner(box *secretbox.Box, window time.Duration, nonces NonceStore) (*Signer, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	key, err := box.DeriveKey(signingPurpose)
	if err != nil {
		return nil, err
	}
	return &Signer{
		key:    key,
		box:    box,
		window: window,
		nonces: nonces,
		now:    time.Now,
	}, nil
}

// NewState fills in nonce and issue time for a handshake about to begin.
func (s *Signer) NewState(integrationType string, workspaceID, memberID uint, returnDomain string) State {
	return State{
		Type:         integrationType,
		WorkspaceID:  workspaceID,
		ReturnDomain: returnDomain,
		MemberID:     memberID,
		Nonce:        uuid.NewString(),
		IssuedAt:     s.now().Unix(),
	}
}

// Sign encodes the state as base64url(json) + "." + base64url(hmac) with
// the MAC computed over the raw JSON bytes.
func (s *Signer) Sign(state State) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("statetoken: marshal failed: %w", err)
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + separator +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify validates encoding, signature and age, then consumes the nonce.
// Every failure mode returns an error; a valid-looking payload with a bad
// signature is never returned to the caller.
func (s *Signer) Verify(ctx context.Context, token string) (*State, error) {
	payloadPart, sigPart, found := strings.Cut(token, separator)
	if !found {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	expected := mac.Sum(nil)
	if len(sig) != len(expected) || !hmac.Equal(sig, expected) {
		return nil, ErrInvalidToken
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, ErrInvalidToken
	}

	age := s.now().Sub(time.Unix(state.IssuedAt, 0))
	if age > s.window || age < -time.Minute {
		return nil, ErrExpiredToken
	}

	if err := s.consumeNonce(ctx, state.Nonce); err != nil {
		return nil, err
	}
	return &state, nil
}

// EncryptCodeVerifier protects a PKCE verifier for transport inside the
// signed state.
func (s *Signer) EncryptCodeVerifier(verifier string) (string, error) {
	return s.box.Encrypt([]byte(verifier), secretbox.PurposeStateFields)
}

func (s *Signer) DecryptCodeVerifier(ciphertext string) (string, error) {
	plain, err := s.box.Decrypt(ciphertext, secretbox.PurposeStateFields)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptOIDCConfig carries a portable identity-provider config through the
// redirect without exposing it in browser history or referrer headers.
func (s *Signer) EncryptOIDCConfig(cfg map[string]any) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("statetoken: marshal oidc config: %w", err)
	}
	return s.box.Encrypt(raw, secretbox.PurposeStateFields)
}

func (s *Signer) DecryptOIDCConfig(ciphertext string) (map[string]any, error) {
	raw, err := s.box.Decrypt(ciphertext, secretbox.PurposeStateFields)
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("statetoken: unmarshal oidc config: %w", err)
	}
	return cfg, nil
}

// consumeNonce marks the nonce used via SETNX. Redis being down does not
// fail verification; signature and expiry checks still hold.
func (s *Signer) consumeNonce(ctx context.Context, nonce string) error {
	if s.nonces == nil || nonce == "" {
		return nil
	}
	ok, err := s.nonces.SetNX(ctx, noncePrefix+nonce, 1, s.window+time.Minute).Result()
	if err != nil {
		return nil
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}
