package directory

import "context"

// Directory is the auth-provider client. Implementations must keep Delete and
// SetDisabled idempotent on missing accounts so that identity teardown can be
// retried safely.
type Directory interface {
	// Create registers a new account under the given uid and login key.
	Create(ctx context.Context, acct Account) error

	// Get fetches an account by uid.
	Get(ctx context.Context, uid string) (*Account, error)

	// FindByLogin fetches an account by its login email (real or virtual).
	FindByLogin(ctx context.Context, loginEmail string) (*Account, error)

	// SetDisabled flips the enabled/disabled flag.
	SetDisabled(ctx context.Context, uid string, disabled bool) error

	// ApplyClaims replaces the account's permission claims.
	ApplyClaims(ctx context.Context, uid string, claims Claims) error

	// Delete removes the account. Missing accounts are not an error.
	Delete(ctx context.Context, uid string) error
}
