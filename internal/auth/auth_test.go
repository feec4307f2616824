package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager() *TokenManager {
	return NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager()

	token, err := m.CreateAccessToken()
	if err != nil {
		t.Fatalf("create access token: %v", err)
	}

	claims, err := m.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.Type != TokenAccess {
		t.Errorf("type = %q, want %q", claims.Type, TokenAccess)
	}
	if claims.ID == "" {
		t.Error("jti is empty")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Error("expiry missing or not in the future")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := newTestManager()

	token, err := m.CreateRefreshToken()
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}
	claims, err := m.VerifyRefreshToken(token)
	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}
	if claims.Type != TokenRefresh {
		t.Errorf("type = %q, want %q", claims.Type, TokenRefresh)
	}
}

func TestVerifyWrongType(t *testing.T) {
	m := newTestManager()

	refresh, err := m.CreateRefreshToken()
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}
	if _, err := m.VerifyAccessToken(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("verify refresh as access: err = %v, want ErrWrongTokenType", err)
	}

	access, err := m.CreateAccessToken()
	if err != nil {
		t.Fatalf("create access token: %v", err)
	}
	if _, err := m.VerifyRefreshToken(access); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("verify access as refresh: err = %v, want ErrWrongTokenType", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	// Negative TTL mints a token that is already expired.
	m := NewTokenManager(testSecret, -time.Minute, -time.Minute)

	token, err := m.CreateAccessToken()
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := m.VerifyAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyEmpty(t *testing.T) {
	m := newTestManager()
	if _, err := m.VerifyAccessToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("err = %v, want ErrEmptyToken", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newTestManager()
	for _, bad := range []string{"garbage", "a.b.c", "x.y"} {
		if _, err := m.VerifyAccessToken(bad); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("verify %q: err = %v, want ErrMalformedToken", bad, err)
		}
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	m := newTestManager()
	token, err := m.CreateAccessToken()
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	// Flip the last character of the signature.
	last := token[len(token)-1]
	repl := "A"
	if last == 'A' {
		repl = "B"
	}
	tampered := token[:len(token)-1] + repl

	if _, err := m.VerifyAccessToken(tampered); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("err = %v, want ErrMalformedToken", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	m := newTestManager()
	other := NewTokenManager(strings.Repeat("x", 32), 15*time.Minute, time.Hour)

	token, err := other.CreateAccessToken()
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := m.VerifyAccessToken(token); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("err = %v, want ErrMalformedToken", err)
	}
}

func TestVerifyConcurrent(t *testing.T) {
	m := newTestManager()
	token, err := m.CreateAccessToken()
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := m.VerifyAccessToken(token)
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent verify: %v", err)
		}
	}
}

func TestPassphraseHashing(t *testing.T) {
	hash, err := HashPassphrase("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash passphrase: %v", err)
	}
	if !CheckPassphrase("correct horse battery staple", hash) {
		t.Error("correct passphrase rejected")
	}
	if CheckPassphrase("wrong", hash) {
		t.Error("wrong passphrase accepted")
	}
	if CheckPassphrase("anything", "not-a-bcrypt-hash") {
		t.Error("garbage hash accepted")
	}
}
