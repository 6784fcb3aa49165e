package invitesrv

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// Manager issues and consumes one-time invite tokens.
type Manager struct {
	repo invite.TokenRepository
}

func NewManager(repo invite.TokenRepository) *Manager {
	return &Manager{repo: repo}
}

// Issue generates a random token, stores only its digest with the purpose's
// fixed expiry, and returns the raw token for out-of-band delivery. Stale
// tokens for the same email are cleaned up opportunistically first; a cleanup
// failure is logged and does not block issuance.
func (m *Manager) Issue(ctx context.Context, role kernel.Role, purpose invite.Purpose, email, nameHint string) (string, *invite.Token, error) {
	if err := m.repo.DeleteStaleByEmail(ctx, email, time.Now()); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("invite: stale token cleanup failed")
	}

	raw, digest, err := invite.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	token := invite.Token{
		ID:          uuid.NewString(),
		Email:       email,
		NameHint:    nameHint,
		Role:        role,
		Purpose:     purpose,
		TokenDigest: digest,
		ExpiresAt:   time.Now().Add(purpose.TTL()),
		Used:        false,
		CreatedAt:   time.Now(),
	}

	if err := m.repo.Insert(ctx, token); err != nil {
		return "", nil, errx.Wrap(err, "failed to store invite token", errx.TypeInternal)
	}

	return raw, &token, nil
}

// Consume looks the presented token up by digest and marks it used. Exactly
// one of any set of concurrent attempts succeeds; the rest observe
// AlreadyUsed (or NotFound once the record is gone). Expired tokens are
// reported as Expired and deleted best effort; inside an enclosing
// transaction that delete rolls back with it, and the durable reap is the
// stale cleanup on the next Issue for the same email.
//
// When the Manager is constructed over a transaction-bound repository, the
// used-flag flip commits or rolls back together with the caller's credential
// mutation.
func (m *Manager) Consume(ctx context.Context, rawToken string) (*invite.Token, error) {
	token, err := m.repo.FindByDigest(ctx, invite.Digest(rawToken))
	if err != nil {
		return nil, err
	}

	if token.Used {
		return nil, invite.ErrAlreadyUsed()
	}

	if token.IsExpired() {
		if err := m.repo.Delete(ctx, token.ID); err != nil {
			log.Warn().Err(err).Str("token_id", token.ID).Msg("invite: expired token delete failed")
		}
		return nil, invite.ErrExpired()
	}

	ok, err := m.repo.MarkUsed(ctx, token.ID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to consume invite token", errx.TypeInternal)
	}
	if !ok {
		// Lost the race against a concurrent consumer.
		return nil, invite.ErrAlreadyUsed()
	}

	token.Used = true
	return token, nil
}
