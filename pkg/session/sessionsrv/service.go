package sessionsrv

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/session"
)

// Manager issues, validates and revokes sessions. Single-active-session is a
// soft guarantee: prior sessions are deleted before the new one is written,
// but the two steps are not atomic, so a brief window with zero or two live
// sessions can exist.
type Manager struct {
	store session.Store
}

func NewManager(store session.Store) *Manager {
	return &Manager{store: store}
}

// Create supersedes the account's existing sessions and writes a fresh one
// with an absolute 8h expiry. Cleanup of prior sessions is best effort and
// never blocks creation.
func (m *Manager) Create(ctx context.Context, accountID kernel.AccountID, role kernel.Role) (*session.Session, error) {
	if _, err := m.store.DeleteByAccount(ctx, accountID); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).
			Msg("session: prior-session cleanup failed")
	}

	id, err := session.NewID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := session.Session{
		ID:        id,
		AccountID: accountID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(session.TTL),
	}

	if err := m.store.Put(ctx, s, session.TTL); err != nil {
		return nil, err
	}

	return &s, nil
}

// Validate resolves a session id to its session. Missing or expired records
// are invalid; expired ones are left in place for lazy reaping.
func (m *Manager) Validate(ctx context.Context, id string) (*session.Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil || s.IsExpired() {
		return nil, session.ErrInvalid()
	}
	return s, nil
}

// Destroy removes the session. Unknown ids are a no-op.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
