package store

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Tokens keeps refresh tokens by their hash.
type Tokens interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	// ValidateRefresh returns the owner of a live token or ErrNotFound.
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

type memToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

// MemoryTokens is an in-process Tokens.
type MemoryTokens struct {
	mu     sync.Mutex
	clock  clock.Clock
	tokens map[string]memToken
}

var _ Tokens = (*MemoryTokens)(nil)

func NewMemoryTokens(clk clock.Clock) *MemoryTokens {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryTokens{clock: clk, tokens: make(map[string]memToken)}
}

func (m *MemoryTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[hash]; ok {
		return ErrDuplicate
	}
	m.tokens[hash] = memToken{userID: userID, exp: exp}
	return nil
}

func (m *MemoryTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || t.revoked || m.clock.Now().After(t.exp) {
		return 0, ErrNotFound
	}
	return t.userID, nil
}

func (m *MemoryTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok {
		t.revoked = true
		m.tokens[hash] = t
	}
	return nil
}

func (m *MemoryTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, t := range m.tokens {
		if t.userID == userID {
			t.revoked = true
			m.tokens[h] = t
		}
	}
	return nil
}
