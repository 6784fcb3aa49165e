package sessionsrv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/session"
	"github.com/tillgate/tillgate/pkg/session/repofakes"
	"github.com/tillgate/tillgate/pkg/session/sessionsrv"
)

const accountID = kernel.AccountID("acct-1")

func TestCreateAndValidate(t *testing.T) {
	store := repofakes.NewFakeStore()
	mgr := sessionsrv.NewManager(store)

	s, err := mgr.Create(context.Background(), accountID, kernel.RoleCashier)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.WithinDuration(t, time.Now().Add(session.TTL), s.ExpiresAt, 5*time.Second)

	got, err := mgr.Validate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, accountID, got.AccountID)
	assert.Equal(t, kernel.RoleCashier, got.Role)
}

func TestCreate_SupersedesPriorSessions(t *testing.T) {
	store := repofakes.NewFakeStore()
	mgr := sessionsrv.NewManager(store)

	old, err := mgr.Create(context.Background(), accountID, kernel.RoleCashier)
	require.NoError(t, err)

	fresh, err := mgr.Create(context.Background(), accountID, kernel.RoleCashier)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	_, err = mgr.Validate(context.Background(), old.ID)
	requireInvalid(t, err)

	got, err := mgr.Validate(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestCreate_CleanupFailureDoesNotBlockCreation(t *testing.T) {
	store := repofakes.NewFakeStore()
	mgr := sessionsrv.NewManager(store)
	store.FailNextCleanup(errors.New("store hiccup"))

	s, err := mgr.Create(context.Background(), accountID, kernel.RoleManager)
	require.NoError(t, err)

	_, err = mgr.Validate(context.Background(), s.ID)
	require.NoError(t, err)
}

func TestValidate_UnknownID(t *testing.T) {
	mgr := sessionsrv.NewManager(repofakes.NewFakeStore())

	_, err := mgr.Validate(context.Background(), "no-such-session")
	requireInvalid(t, err)
}

func TestValidate_ExpiredIsInvalidButNotDeleted(t *testing.T) {
	store := repofakes.NewFakeStore()
	mgr := sessionsrv.NewManager(store)

	store.Seed(session.Session{
		ID:        "stale",
		AccountID: accountID,
		Role:      kernel.RoleCashier,
		CreatedAt: time.Now().Add(-9 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})

	_, err := mgr.Validate(context.Background(), "stale")
	requireInvalid(t, err)

	// the record is left for lazy reaping
	assert.Equal(t, 1, store.Len())
}

func TestDestroy_Idempotent(t *testing.T) {
	store := repofakes.NewFakeStore()
	mgr := sessionsrv.NewManager(store)

	s, err := mgr.Create(context.Background(), accountID, kernel.RoleCashier)
	require.NoError(t, err)

	require.NoError(t, mgr.Destroy(context.Background(), s.ID))
	require.NoError(t, mgr.Destroy(context.Background(), s.ID))

	_, err = mgr.Validate(context.Background(), s.ID)
	requireInvalid(t, err)
}

func requireInvalid(t *testing.T, err error) {
	t.Helper()
	var e *errx.Error
	require.Error(t, err)
	require.True(t, errx.As(err, &e), "expected *errx.Error, got %T", err)
	require.Equal(t, "SESSION_INVALID", e.Code)
}
