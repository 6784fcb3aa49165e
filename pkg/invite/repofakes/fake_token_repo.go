package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/tillgate/tillgate/pkg/invite"
)

// FakeTokenRepo is an in-memory invite.TokenRepository for tests.
type FakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]invite.Token
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{tokens: make(map[string]invite.Token)}
}

func (f *FakeTokenRepo) Insert(_ context.Context, t invite.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[t.ID] = t
	return nil
}

func (f *FakeTokenRepo) FindByDigest(_ context.Context, digest string) (*invite.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.TokenDigest == digest {
			copied := t
			return &copied, nil
		}
	}
	return nil, invite.ErrNotFound()
}

func (f *FakeTokenRepo) MarkUsed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	f.tokens[id] = t
	return true, nil
}

func (f *FakeTokenRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, id)
	return nil
}

func (f *FakeTokenRepo) DeleteStaleByEmail(_ context.Context, email string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.tokens {
		if t.Email == email && (t.Used || t.ExpiresAt.Before(now)) {
			delete(f.tokens, id)
		}
	}
	return nil
}

// Count returns the number of stored tokens.
func (f *FakeTokenRepo) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

// Seed stores a token directly, bypassing the service.
func (f *FakeTokenRepo) Seed(t invite.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[t.ID] = t
}
