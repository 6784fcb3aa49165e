package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/tillgate/tillgate/pkg/directory"
)

// FakeDirectory is an in-memory directory.Directory for tests.
type FakeDirectory struct {
	mu       sync.Mutex
	accounts map[string]directory.Account
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{accounts: make(map[string]directory.Account)}
}

func (f *FakeDirectory) Create(_ context.Context, acct directory.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[acct.UID]; ok {
		return directory.ErrAccountExists()
	}
	for _, existing := range f.accounts {
		if existing.LoginEmail == acct.LoginEmail {
			return directory.ErrAccountExists()
		}
	}
	acct.CreatedAt = time.Now()
	acct.UpdatedAt = acct.CreatedAt
	f.accounts[acct.UID] = acct
	return nil
}

func (f *FakeDirectory) Get(_ context.Context, uid string) (*directory.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[uid]
	if !ok {
		return nil, directory.ErrAccountNotFound()
	}
	copied := acct
	return &copied, nil
}

func (f *FakeDirectory) FindByLogin(_ context.Context, loginEmail string) (*directory.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.accounts {
		if acct.LoginEmail == loginEmail {
			copied := acct
			return &copied, nil
		}
	}
	return nil, directory.ErrAccountNotFound()
}

func (f *FakeDirectory) SetDisabled(_ context.Context, uid string, disabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[uid]
	if !ok {
		return nil
	}
	acct.Disabled = disabled
	acct.UpdatedAt = time.Now()
	f.accounts[uid] = acct
	return nil
}

func (f *FakeDirectory) ApplyClaims(_ context.Context, uid string, claims directory.Claims) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[uid]
	if !ok {
		return directory.ErrAccountNotFound()
	}
	acct.Claims = claims
	acct.UpdatedAt = time.Now()
	f.accounts[uid] = acct
	return nil
}

func (f *FakeDirectory) Delete(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, uid)
	return nil
}

// Len returns the number of stored accounts.
func (f *FakeDirectory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}
