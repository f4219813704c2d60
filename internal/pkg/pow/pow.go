/*
Package pow implements a hashcash-style Proof-of-Work gate for anonymous endpoints.

A client fetches a nonce, searches for a counter so that sha256(nonce+counter) in hex
starts with `difficulty` zeros, and trades the solution for a short-lived proof token.
Gated endpoints then require that token in the X-PoW-Token header.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/resp"
)

const (
	// TokenHeaderKey is the header carrying the proof token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is how long an issued proof token stays valid.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is how long a challenge nonce stays valid.
	NonceExpiryDuration = 5 * time.Minute
)

// Challenge is handed to clients by the challenge endpoint.
type Challenge struct {
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
}

// Manager tracks outstanding nonces and issued proof tokens.
type Manager struct {
	difficulty int

	mu     sync.Mutex
	nonces map[string]time.Time
	tokens map[string]time.Time

	now func() time.Time
}

// NewManager returns a Manager for the given difficulty. Expired entries are
// swept until ctx is cancelled. A difficulty of 0 disables the gate.
func NewManager(ctx context.Context, difficulty int) *Manager {
	m := &Manager{
		difficulty: difficulty,
		nonces:     make(map[string]time.Time),
		tokens:     make(map[string]time.Time),
		now:        time.Now,
	}

	go m.sweep(ctx)

	return m
}

// Enabled reports whether gated endpoints require a proof token.
func (m *Manager) Enabled() bool {
	return m.difficulty > 0
}

// NewChallenge issues a fresh nonce.
func (m *Manager) NewChallenge() Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.NewString()
	m.nonces[nonce] = m.now().Add(NonceExpiryDuration)

	return Challenge{Nonce: nonce, Difficulty: m.difficulty}
}

// Solve checks counter against nonce and, on success, consumes the nonce and
// returns a proof token. Failures are ErrPowChallengeInvalid.
func (m *Manager) Solve(nonce, counter string) (string, error) {
	if !meetsDifficulty(nonce, counter, m.difficulty) {
		return "", errs.NewError(errs.ErrPowChallengeInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.nonces[nonce]
	if !ok || m.now().After(expiry) {
		return "", errs.NewError(errs.ErrPowChallengeInvalid)
	}
	delete(m.nonces, nonce)

	token := uuid.NewString()
	m.tokens[token] = m.now().Add(ProofTokenDuration)
	return token, nil
}

// Redeem consumes the proof token carried by r. Each token admits one request.
func (m *Manager) Redeem(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)

	return !m.now().After(expiry)
}

// Require gates next behind a redeemed proof token while the manager is enabled.
func (m *Manager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Enabled() && !m.Redeem(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func meetsDifficulty(nonce, counter string, difficulty int) bool {
	sum := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(sum[:]), strings.Repeat("0", difficulty))
}

func (m *Manager) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.dropExpired()
		}
	}
}

func (m *Manager) dropExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}
	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}
