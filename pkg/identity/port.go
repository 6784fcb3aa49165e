package identity

import (
	"context"
	"time"

	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// ProfileRepository defines the persistence contract for account profiles.
type ProfileRepository interface {
	// Insert stores a new profile.
	Insert(ctx context.Context, p Profile) error

	// Get fetches a profile by id.
	Get(ctx context.Context, id kernel.AccountID) (*Profile, error)

	// FindByEmail fetches a profile by real email within a role.
	FindByEmail(ctx context.Context, email string, role kernel.Role) (*Profile, error)

	// FindByUsername fetches a profile by derived username.
	FindByUsername(ctx context.Context, username string) (*Profile, error)

	// ExistsByEmail reports whether a profile with the email exists for the role.
	ExistsByEmail(ctx context.Context, email string, role kernel.Role) (bool, error)

	// ListByBranch returns all profiles with the role scoped to the branch.
	ListByBranch(ctx context.Context, branchID kernel.BranchID, role kernel.Role) ([]Profile, error)

	// SetCredential stores a new hash and flips status in one write.
	SetCredential(ctx context.Context, id kernel.AccountID, hash, alg string, status Status) error

	// UpgradeCredential replaces a legacy hash after a successful match,
	// recording the upgrade instant.
	UpgradeCredential(ctx context.Context, id kernel.AccountID, hash, alg string, upgradedAt time.Time) error

	// SetClaimsVersion records the claim-table version last applied to the
	// directory account.
	SetClaimsVersion(ctx context.Context, id kernel.AccountID, version int) error

	// Delete removes the profile. Missing profiles are not an error.
	Delete(ctx context.Context, id kernel.AccountID) error
}

// TxPorts bundles the repositories re-bound to one store transaction.
type TxPorts struct {
	Profiles  ProfileRepository
	Directory directory.Directory
	Invites   invite.TokenRepository
}

// TxRunner runs fn inside a single serializable store transaction across all
// three identity collections. Invite-token consumption and the credential
// mutation that depends on it must share one such transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx TxPorts) error) error
}

// ManagerRefClearer clears a parent record's back-reference to a manager
// identity when that identity is torn down.
type ManagerRefClearer interface {
	ClearManagerRef(ctx context.Context, accountID kernel.AccountID) error
}
