package handlers

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ttygate/ttygate/internal/auth"
	"github.com/ttygate/ttygate/internal/config"
	"github.com/ttygate/ttygate/internal/database"
)

// Login rate limit: at most maxLoginAttempts per IP per window.
const (
	maxLoginAttempts = 5
	loginWindow      = time.Minute
)

// loginRateLimiter tracks recent login attempts per client IP.
type loginRateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

var loginLimiter = &loginRateLimiter{attempts: make(map[string][]time.Time)}

// allow records an attempt and reports whether the client is within the
// rate limit.
func (l *loginRateLimiter) allow(ip string) bool {
	now := time.Now()
	cutoff := now.Add(-loginWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.attempts[ip][:0]
	for _, t := range l.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= maxLoginAttempts {
		l.attempts[ip] = recent
		return false
	}
	l.attempts[ip] = append(recent, now)
	return true
}

// cleanup drops IPs whose attempts have all aged out of the window.
func (l *loginRateLimiter) cleanup() {
	cutoff := time.Now().Add(-loginWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, times := range l.attempts {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.attempts, ip)
		}
	}
}

// CleanupLoginAttempts prunes stale rate-limit state. Called periodically
// from the maintenance job.
func CleanupLoginAttempts() {
	loginLimiter.cleanup()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type loginRequest struct {
	Passphrase string `json:"passphrase"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Login handles POST /api/v1/auth/login: passphrase in, token pair out.
// Rate limited to 5 attempts per minute per IP.
func Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if !loginLimiter.allow(ip) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if config.Cfg.PassphraseHash == "" {
		writeError(w, http.StatusInternalServerError, "Authentication not configured (no passphrase hash set)")
		return
	}

	if !auth.CheckPassphrase(req.Passphrase, config.Cfg.PassphraseHash) {
		database.RecordAudit(database.AuditLoginFailure, "", ip)
		writeError(w, http.StatusUnauthorized, "Invalid passphrase")
		return
	}

	resp, err := mintTokenPair()
	if err != nil {
		log.Printf("login: mint tokens: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	database.RecordAudit(database.AuditLoginSuccess, "", ip)
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/v1/auth/refresh: a valid refresh token buys a
// fresh token pair.
func Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := Tokens.VerifyRefreshToken(req.RefreshToken); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	resp, err := mintTokenPair()
	if err != nil {
		log.Printf("refresh: mint tokens: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	database.RecordAudit(database.AuditTokenRefresh, "", clientIP(r))
	writeJSON(w, http.StatusOK, resp)
}

func mintTokenPair() (*tokenResponse, error) {
	access, err := Tokens.CreateAccessToken()
	if err != nil {
		return nil, err
	}
	refresh, err := Tokens.CreateRefreshToken()
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(Tokens.AccessTTL().Seconds()),
	}, nil
}
