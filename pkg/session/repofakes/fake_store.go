package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/session"
)

// FakeStore is an in-memory session.Store for tests. Unlike Redis it never
// reaps expired entries, which lets tests assert lazy-expiry behavior.
type FakeStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	failNext error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{sessions: make(map[string]session.Session)}
}

func (f *FakeStore) Put(_ context.Context, s session.Session, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}

func (f *FakeStore) Get(_ context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := s
	return &copied, nil
}

func (f *FakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *FakeStore) DeleteByAccount(_ context.Context, accountID kernel.AccountID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return 0, err
	}
	n := 0
	for id, s := range f.sessions {
		if s.AccountID == accountID {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// FailNextCleanup makes the next DeleteByAccount call return err.
func (f *FakeStore) FailNextCleanup(err error) {
	f.failNext = err
}

// Seed stores a session directly.
func (f *FakeStore) Seed(s session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

// Len returns the number of stored sessions.
func (f *FakeStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}
