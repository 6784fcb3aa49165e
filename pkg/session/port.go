package session

import (
	"context"
	"time"

	"github.com/tillgate/tillgate/pkg/kernel"
)

// Store defines the persistence contract for sessions.
type Store interface {
	// Put writes the session with the given time-to-live.
	Put(ctx context.Context, s Session, ttl time.Duration) error

	// Get fetches a session by id. Missing sessions return nil, nil; the
	// caller decides how to treat absence.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by id. Missing sessions are not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByAccount removes every session belonging to the account and
	// returns how many were removed.
	DeleteByAccount(ctx context.Context, accountID kernel.AccountID) (int, error)
}
