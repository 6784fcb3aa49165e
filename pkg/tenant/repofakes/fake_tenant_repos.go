package repofakes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/tenant"
)

// FakeOrgRepo is an in-memory tenant.OrganizationRepository for tests.
type FakeOrgRepo struct {
	mu   sync.Mutex
	orgs map[kernel.OrgID]tenant.Organization
}

func NewFakeOrgRepo() *FakeOrgRepo {
	return &FakeOrgRepo{orgs: make(map[kernel.OrgID]tenant.Organization)}
}

func (f *FakeOrgRepo) Insert(_ context.Context, org tenant.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orgs {
		if existing.Slug == org.Slug {
			return tenant.ErrDuplicateSlug()
		}
	}
	f.orgs[org.ID] = org
	return nil
}

func (f *FakeOrgRepo) Get(_ context.Context, id kernel.OrgID) (*tenant.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, tenant.ErrOrgNotFound()
	}
	copied := org
	return &copied, nil
}

func (f *FakeOrgRepo) FindTakenSlugs(_ context.Context, prefix string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	taken := make(map[string]bool)
	for _, org := range f.orgs {
		if strings.HasPrefix(org.Slug, prefix) {
			taken[org.Slug] = true
		}
	}
	return taken, nil
}

func (f *FakeOrgRepo) AllocateBranchSeq(_ context.Context, id kernel.OrgID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return 0, tenant.ErrOrgNotFound()
	}
	seq := org.NextBranchSeq
	org.NextBranchSeq++
	f.orgs[id] = org
	return seq, nil
}

func (f *FakeOrgRepo) AdjustCounts(_ context.Context, id kernel.OrgID, branchDelta, cashierDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return tenant.ErrOrgNotFound()
	}
	org.BranchCount += branchDelta
	org.CashierCount += cashierDelta
	org.UpdatedAt = time.Now()
	f.orgs[id] = org
	return nil
}

// ============================================================================
// Branch repository fake
// ============================================================================

// FakeBranchRepo is an in-memory tenant.BranchRepository for tests.
type FakeBranchRepo struct {
	mu       sync.Mutex
	branches map[kernel.BranchID]tenant.Branch
}

func NewFakeBranchRepo() *FakeBranchRepo {
	return &FakeBranchRepo{branches: make(map[kernel.BranchID]tenant.Branch)}
}

func (f *FakeBranchRepo) Insert(_ context.Context, b tenant.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.branches {
		if existing.Username == b.Username {
			return tenant.ErrDuplicateSlug()
		}
		if existing.OrgID == b.OrgID && existing.Slug == b.Slug {
			return tenant.ErrDuplicateSlug()
		}
	}
	f.branches[b.ID] = b
	return nil
}

func (f *FakeBranchRepo) Get(_ context.Context, id kernel.BranchID) (*tenant.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return nil, tenant.ErrBranchNotFound()
	}
	copied := b
	return &copied, nil
}

func (f *FakeBranchRepo) ListByOrg(_ context.Context, orgID kernel.OrgID) ([]tenant.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tenant.Branch
	for _, b := range f.branches {
		if b.OrgID == orgID {
			out = append(out, b)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].BranchNo < out[i].BranchNo {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *FakeBranchRepo) FindTakenSlugs(_ context.Context, orgID kernel.OrgID, prefix string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	taken := make(map[string]bool)
	for _, b := range f.branches {
		if b.OrgID == orgID && strings.HasPrefix(b.Slug, prefix) {
			taken[b.Slug] = true
		}
	}
	return taken, nil
}

func (f *FakeBranchRepo) FindTakenUsernames(_ context.Context, prefix string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	taken := make(map[string]bool)
	for _, b := range f.branches {
		if strings.HasPrefix(b.Username, prefix) {
			taken[b.Username] = true
		}
	}
	return taken, nil
}

func (f *FakeBranchRepo) AllocateCashierSeq(_ context.Context, id kernel.BranchID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return 0, tenant.ErrBranchNotFound()
	}
	seq := b.NextCashierSeq
	b.NextCashierSeq++
	f.branches[id] = b
	return seq, nil
}

func (f *FakeBranchRepo) SetManager(_ context.Context, id kernel.BranchID, managerID *kernel.AccountID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return tenant.ErrBranchNotFound()
	}
	b.ManagerID = managerID
	b.UpdatedAt = time.Now()
	f.branches[id] = b
	return nil
}

func (f *FakeBranchRepo) ClearManagerRef(_ context.Context, accountID kernel.AccountID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.branches {
		if b.ManagerID != nil && *b.ManagerID == accountID {
			b.ManagerID = nil
			f.branches[id] = b
		}
	}
	return nil
}

func (f *FakeBranchRepo) Delete(_ context.Context, id kernel.BranchID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.branches, id)
	return nil
}

// Len returns the number of stored branches.
func (f *FakeBranchRepo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.branches)
}

// ============================================================================
// Transaction runner fake
// ============================================================================

// FakeTxRunner satisfies tenant.TxRunner by handing the same in-memory fakes
// to fn.
type FakeTxRunner struct {
	Orgs      tenant.OrganizationRepository
	Branches  tenant.BranchRepository
	Profiles  identity.ProfileRepository
	Directory directory.Directory
}

func (f *FakeTxRunner) WithinTx(_ context.Context, fn func(tx tenant.TxPorts) error) error {
	return fn(tenant.TxPorts{
		Orgs:      f.Orgs,
		Branches:  f.Branches,
		Profiles:  f.Profiles,
		Directory: f.Directory,
	})
}
