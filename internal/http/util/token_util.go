package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("signing secret is not configured")
)

const (
	nonceSize = 8
	sigSize   = 16
)

// TokenSigner issues short HMAC tokens bound to a subject (a session id for
// CSRF tokens, a fixed label for OAuth state). Tokens from signers with
// different purposes never validate against each other.
type TokenSigner struct {
	secret  []byte
	purpose string
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenSigner returns a signer for one purpose.
func NewTokenSigner(secret []byte, purpose string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		secret:  secret,
		purpose: purpose,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue mints a token for subject: base64(expiry|nonce).base64(mac).
func (s *TokenSigner) Issue(subject string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload := make([]byte, 4+nonceSize)
	expires := uint32(s.now().Add(s.ttl).Unix())
	binary.BigEndian.PutUint32(payload[:4], expires)
	if _, err := rand.Read(payload[4:]); err != nil {
		return "", err
	}

	sig := s.sign(subject, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(sig[:sigSize]), nil
}

// Validate checks signature integrity and TTL of the token.
func (s *TokenSigner) Validate(subject, token string) error {
	if len(s.secret) == 0 {
		return ErrMissingSecret
	}

	payloadEnc, sigEnc, ok := strings.Cut(token, ".")
	if !ok {
		return ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadEnc)
	if err != nil || len(payload) != 4+nonceSize {
		return ErrInvalidToken
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(sigEnc)
	if err != nil || len(sigProvided) != sigSize {
		return ErrInvalidToken
	}

	expected := s.sign(subject, payload)
	if !hmac.Equal(sigProvided, expected[:sigSize]) {
		return ErrInvalidToken
	}

	expires := binary.BigEndian.Uint32(payload[:4])
	if s.now().Unix() > int64(expires) {
		return ErrInvalidToken
	}

	return nil
}

func (s *TokenSigner) sign(subject string, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(s.purpose))
	mac.Write([]byte("|"))
	mac.Write([]byte(subject))
	mac.Write([]byte("|"))
	mac.Write(payload)
	return mac.Sum(nil)
}
