package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// FakeProfileRepo is an in-memory identity.ProfileRepository for tests.
type FakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[kernel.AccountID]identity.Profile
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{profiles: make(map[kernel.AccountID]identity.Profile)}
}

func (f *FakeProfileRepo) Insert(_ context.Context, p identity.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[p.ID]; ok {
		return identity.ErrAccountExists()
	}
	for _, existing := range f.profiles {
		if p.Username != "" && existing.Username == p.Username {
			return identity.ErrAccountExists()
		}
	}
	f.profiles[p.ID] = p
	return nil
}

func (f *FakeProfileRepo) Get(_ context.Context, id kernel.AccountID) (*identity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, identity.ErrAccountNotFound()
	}
	copied := p
	return &copied, nil
}

func (f *FakeProfileRepo) FindByEmail(_ context.Context, email string, role kernel.Role) (*identity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.Email == email && p.Role == role {
			copied := p
			return &copied, nil
		}
	}
	return nil, identity.ErrAccountNotFound()
}

func (f *FakeProfileRepo) FindByUsername(_ context.Context, username string) (*identity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.Username == username {
			copied := p
			return &copied, nil
		}
	}
	return nil, identity.ErrAccountNotFound()
}

func (f *FakeProfileRepo) ExistsByEmail(ctx context.Context, email string, role kernel.Role) (bool, error) {
	_, err := f.FindByEmail(ctx, email, role)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (f *FakeProfileRepo) ListByBranch(_ context.Context, branchID kernel.BranchID, role kernel.Role) ([]identity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []identity.Profile
	for _, p := range f.profiles {
		if p.BranchID == branchID && p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *FakeProfileRepo) SetCredential(_ context.Context, id kernel.AccountID, hash, alg string, status identity.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	p.PinHash = hash
	p.HashAlg = alg
	p.Status = status
	p.UpdatedAt = time.Now()
	f.profiles[id] = p
	return nil
}

func (f *FakeProfileRepo) UpgradeCredential(_ context.Context, id kernel.AccountID, hash, alg string, upgradedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	p.PinHash = hash
	p.HashAlg = alg
	p.HashUpgradedAt = &upgradedAt
	p.UpdatedAt = upgradedAt
	f.profiles[id] = p
	return nil
}

func (f *FakeProfileRepo) SetClaimsVersion(_ context.Context, id kernel.AccountID, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	p.ClaimsVersion = version
	f.profiles[id] = p
	return nil
}

func (f *FakeProfileRepo) Delete(_ context.Context, id kernel.AccountID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.profiles, id)
	return nil
}

// Len returns the number of stored profiles.
func (f *FakeProfileRepo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

// Seed stores a profile directly, bypassing the provisioner.
func (f *FakeProfileRepo) Seed(p identity.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
}

// ============================================================================
// Transaction runner fake
// ============================================================================

// FakeTxRunner satisfies identity.TxRunner by handing the same in-memory
// fakes to fn. Tests that need transactional atomicity semantics exercise
// them at the repository level instead.
type FakeTxRunner struct {
	Profiles  identity.ProfileRepository
	Directory directory.Directory
	Invites   invite.TokenRepository
}

func (f *FakeTxRunner) WithinTx(_ context.Context, fn func(tx identity.TxPorts) error) error {
	return fn(identity.TxPorts{
		Profiles:  f.Profiles,
		Directory: f.Directory,
		Invites:   f.Invites,
	})
}
