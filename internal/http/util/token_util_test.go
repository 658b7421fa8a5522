package util

import (
	"errors"
	"testing"
	"time"
)

func TestTokenSigner_RoundTrip(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), "csrf", time.Minute)

	token, err := s.Issue("session-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if err := s.Validate("session-1", token); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestTokenSigner_Rejects(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), "csrf", time.Minute)
	token, err := s.Issue("session-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	other := NewTokenSigner([]byte("secret"), "login", time.Minute)
	rotated := NewTokenSigner([]byte("other-secret"), "csrf", time.Minute)

	cases := []struct {
		name    string
		signer  *TokenSigner
		subject string
		token   string
	}{
		{"other subject", s, "session-2", token},
		{"other purpose", other, "session-1", token},
		{"other secret", rotated, "session-1", token},
		{"no separator", s, "session-1", "abc"},
		{"garbage", s, "session-1", "!!.??"},
		{"truncated signature", s, "session-1", token[:len(token)-2]},
		{"empty", s, "session-1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.signer.Validate(tc.subject, tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenSigner_Expiry(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), "csrf", time.Minute)
	base := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return base }

	token, err := s.Issue("sid")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := s.Validate("sid", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestTokenSigner_MissingSecret(t *testing.T) {
	s := NewTokenSigner(nil, "csrf", time.Minute)
	if _, err := s.Issue("sid"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
