package invite

import (
	"context"
	"time"
)

// TokenRepository defines the persistence contract for invite tokens.
//
// MarkUsed must be an atomic unused→used flip so that exactly one of any
// number of concurrent Consume attempts wins; implementations bound to a
// transaction extend that guarantee over the credential mutation that
// depends on the token.
type TokenRepository interface {
	// Insert stores a new token record.
	Insert(ctx context.Context, t Token) error

	// FindByDigest looks a token up by the digest of the presented raw token.
	FindByDigest(ctx context.Context, digest string) (*Token, error)

	// MarkUsed flips the used flag. It returns false when the flag was
	// already set.
	MarkUsed(ctx context.Context, id string) (bool, error)

	// Delete removes a token record. Missing records are not an error.
	Delete(ctx context.Context, id string) error

	// DeleteStaleByEmail removes tokens for the email that are expired at
	// the given instant or already used.
	DeleteStaleByEmail(ctx context.Context, email string, now time.Time) error
}
