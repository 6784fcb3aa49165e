package tenant

import (
	"context"

	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// OrganizationRepository defines the persistence contract for organizations.
type OrganizationRepository interface {
	// Insert stores a new organization.
	Insert(ctx context.Context, org Organization) error

	// Get fetches an organization by id.
	Get(ctx context.Context, id kernel.OrgID) (*Organization, error)

	// FindTakenSlugs returns the set of existing organization slugs starting
	// with prefix, for collision-suffix derivation.
	FindTakenSlugs(ctx context.Context, prefix string) (map[string]bool, error)

	// AllocateBranchSeq returns the organization's current branch sequence and
	// advances the counter in the same statement. Allocated values are never
	// reused, even when the caller's operation later fails.
	AllocateBranchSeq(ctx context.Context, id kernel.OrgID) (int, error)

	// AdjustCounts applies deltas to the denormalized branch and cashier
	// counters.
	AdjustCounts(ctx context.Context, id kernel.OrgID, branchDelta, cashierDelta int) error
}

// BranchRepository defines the persistence contract for branches.
type BranchRepository interface {
	// Insert stores a new branch.
	Insert(ctx context.Context, b Branch) error

	// Get fetches a branch by id.
	Get(ctx context.Context, id kernel.BranchID) (*Branch, error)

	// ListByOrg returns all branches of an organization ordered by branch
	// number.
	ListByOrg(ctx context.Context, orgID kernel.OrgID) ([]Branch, error)

	// FindTakenSlugs returns the set of existing branch slugs within the
	// organization starting with prefix.
	FindTakenSlugs(ctx context.Context, orgID kernel.OrgID, prefix string) (map[string]bool, error)

	// FindTakenUsernames returns the set of existing branch usernames starting
	// with prefix. Branch usernames are globally unique.
	FindTakenUsernames(ctx context.Context, prefix string) (map[string]bool, error)

	// AllocateCashierSeq returns the branch's current cashier sequence and
	// advances the counter in the same statement.
	AllocateCashierSeq(ctx context.Context, id kernel.BranchID) (int, error)

	// SetManager stores the branch's manager slot. A nil managerID clears it.
	SetManager(ctx context.Context, id kernel.BranchID, managerID *kernel.AccountID) error

	// ClearManagerRef clears the manager slot of whichever branch references
	// accountID. No-op when no branch does. Satisfies identity.ManagerRefClearer.
	ClearManagerRef(ctx context.Context, accountID kernel.AccountID) error

	// Delete removes the branch row.
	Delete(ctx context.Context, id kernel.BranchID) error
}

// TxPorts bundles the repositories re-bound to one store transaction. Counter
// allocation, ownership re-reads and cascading deletes share it.
type TxPorts struct {
	Orgs      OrganizationRepository
	Branches  BranchRepository
	Profiles  identity.ProfileRepository
	Directory directory.Directory
}

// TxRunner runs fn inside a single serializable store transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx TxPorts) error) error
}
