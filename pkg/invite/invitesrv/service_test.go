package invitesrv_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/invite/invitesrv"
	"github.com/tillgate/tillgate/pkg/invite/repofakes"
	"github.com/tillgate/tillgate/pkg/kernel"
)

func TestIssue_StoresDigestOnly(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	raw, token, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeOnboarding, "manager@example.com", "Jo Perera")
	require.NoError(t, err)

	assert.NotEmpty(t, raw)
	assert.NotEqual(t, raw, token.TokenDigest)
	assert.Equal(t, invite.Digest(raw), token.TokenDigest)
	assert.Equal(t, "manager@example.com", token.Email)
	assert.Equal(t, "Jo Perera", token.NameHint)
	assert.False(t, token.Used)
}

func TestIssue_ExpiryByPurpose(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	_, onboarding, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeOnboarding, "a@example.com", "")
	require.NoError(t, err)
	_, reset, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeReset, "b@example.com", "")
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(24*time.Hour), onboarding.ExpiresAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(1*time.Hour), reset.ExpiresAt, time.Minute)
}

func TestIssue_CleansStaleTokensForEmail(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	repo.Seed(invite.Token{ID: "used", Email: "x@example.com", Used: true, ExpiresAt: time.Now().Add(time.Hour)})
	repo.Seed(invite.Token{ID: "expired", Email: "x@example.com", ExpiresAt: time.Now().Add(-time.Hour)})
	repo.Seed(invite.Token{ID: "live", Email: "x@example.com", ExpiresAt: time.Now().Add(time.Hour)})
	repo.Seed(invite.Token{ID: "other", Email: "y@example.com", Used: true, ExpiresAt: time.Now().Add(-time.Hour)})

	_, _, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeOnboarding, "x@example.com", "")
	require.NoError(t, err)

	// stale tokens for x@ gone, live x@ token and y@ tokens untouched, new token added
	assert.Equal(t, 3, repo.Count())
}

func TestConsume_Success(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	raw, _, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeOnboarding, "manager@example.com", "Jo")
	require.NoError(t, err)

	token, err := mgr.Consume(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "manager@example.com", token.Email)
	assert.Equal(t, "Jo", token.NameHint)
	assert.True(t, token.Used)
}

func TestConsume_SecondAttemptAlreadyUsed(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	raw, _, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeOnboarding, "manager@example.com", "")
	require.NoError(t, err)

	_, err = mgr.Consume(context.Background(), raw)
	require.NoError(t, err)

	_, err = mgr.Consume(context.Background(), raw)
	requireErrCode(t, err, "INVITE_ALREADY_USED")
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *errx.Error
	require.Error(t, err)
	require.True(t, errx.As(err, &e), "expected *errx.Error, got %T", err)
	require.Equal(t, code, e.Code)
}

func TestConsume_UnknownToken(t *testing.T) {
	mgr := invitesrv.NewManager(repofakes.NewFakeTokenRepo())

	_, err := mgr.Consume(context.Background(), "no-such-token")
	requireErrCode(t, err, "INVITE_NOT_FOUND")
}

func TestConsume_ExpiredTokenDeleted(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	raw, digest, err := invite.GenerateToken()
	require.NoError(t, err)
	repo.Seed(invite.Token{
		ID:          "tok",
		Email:       "late@example.com",
		TokenDigest: digest,
		ExpiresAt:   time.Now().Add(-time.Minute),
	})

	_, err = mgr.Consume(context.Background(), raw)
	requireErrCode(t, err, "INVITE_EXPIRED")

	// record is reaped on lookup; the next attempt no longer finds it
	_, err = mgr.Consume(context.Background(), raw)
	requireErrCode(t, err, "INVITE_NOT_FOUND")
}

func TestConsume_ExactlyOneConcurrentWinner(t *testing.T) {
	repo := repofakes.NewFakeTokenRepo()
	mgr := invitesrv.NewManager(repo)

	raw, _, err := mgr.Issue(context.Background(), kernel.RoleManager, invite.PurposeOnboarding, "race@example.com", "")
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = mgr.Consume(context.Background(), raw)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent consume must succeed")
}
