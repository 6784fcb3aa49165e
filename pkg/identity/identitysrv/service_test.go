package identitysrv_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillgate/tillgate/pkg/directory"
	dirfakes "github.com/tillgate/tillgate/pkg/directory/repofakes"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/identity/identitysrv"
	"github.com/tillgate/tillgate/pkg/identity/repofakes"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/invite/invitesrv"
	invitefakes "github.com/tillgate/tillgate/pkg/invite/repofakes"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/pincred"
)

type sentInvite struct {
	Email    string
	NameHint string
	RawToken string
	Purpose  invite.Purpose
}

type fakeNotifier struct {
	sent chan sentInvite
	fail bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan sentInvite, 8)}
}

func (f *fakeNotifier) SendInvite(_ context.Context, email, nameHint, rawToken string, purpose invite.Purpose) error {
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent <- sentInvite{Email: email, NameHint: nameHint, RawToken: rawToken, Purpose: purpose}
	return nil
}

func (f *fakeNotifier) waitForInvite(t *testing.T) sentInvite {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invite delivery")
		return sentInvite{}
	}
}

type fixture struct {
	profiles *repofakes.FakeProfileRepo
	dir      *dirfakes.FakeDirectory
	invites  *invitefakes.FakeTokenRepo
	notifier *fakeNotifier
	hasher   *pincred.Hasher
	svc      *identitysrv.Provisioner
}

func setup(t *testing.T) *fixture {
	t.Helper()

	profiles := repofakes.NewFakeProfileRepo()
	dir := dirfakes.NewFakeDirectory()
	invites := invitefakes.NewFakeTokenRepo()
	notifier := newFakeNotifier()
	hasher := pincred.NewHasher("test-pepper")

	svc := identitysrv.NewProvisioner(
		profiles, dir, invitesrv.NewManager(invites),
		&repofakes.FakeTxRunner{Profiles: profiles, Directory: dir, Invites: invites},
		hasher, notifier, nil,
	)

	return &fixture{profiles: profiles, dir: dir, invites: invites, notifier: notifier, hasher: hasher, svc: svc}
}

func refs() kernel.TenantRefs {
	return kernel.TenantRefs{OrgID: "org-1", BranchID: "branch-1"}
}

func TestProvisionWithCredential(t *testing.T) {
	f := setup(t)

	profile, err := f.svc.ProvisionWithCredential(context.Background(), identitysrv.ProvisionParams{
		Role:        kernel.RoleCashier,
		Refs:        refs(),
		DisplayName: "Cashier One",
		Username:    "acme-colombo-1",
	}, "1234")
	require.NoError(t, err)

	assert.Equal(t, identity.StatusActive, profile.Status)
	assert.True(t, pincred.IsModernHash(profile.PinHash))
	assert.True(t, f.hasher.Verify("1234", profile.PinHash))

	acct, err := f.dir.Get(context.Background(), profile.ID.String())
	require.NoError(t, err)
	assert.Equal(t, profile.ID.String(), acct.UID)
	assert.Equal(t, "acme-colombo-1@pin.tillgate.internal", acct.LoginEmail)
	assert.True(t, acct.Virtual)
	assert.False(t, acct.Disabled)
	assert.Equal(t, "CASHIER", acct.Claims["role"])
	assert.Equal(t, "branch-1", acct.Claims["branch_id"])
}

func TestProvisionWithCredential_DirectoryFailureRollsBackProfile(t *testing.T) {
	f := setup(t)

	// an unrelated directory account already owns the virtual login
	require.NoError(t, f.dir.Create(context.Background(), directory.Account{
		UID:        "preexisting",
		LoginEmail: identity.VirtualEmail("acme-colombo-1"),
		Virtual:    true,
	}))

	_, err := f.svc.ProvisionWithCredential(context.Background(), identitysrv.ProvisionParams{
		Role:     kernel.RoleCashier,
		Refs:     refs(),
		Username: "acme-colombo-1",
	}, "1234")
	require.Error(t, err)

	assert.Equal(t, 0, f.profiles.Len(), "no half-provisioned profile may survive")
	assert.Equal(t, 1, f.dir.Len())
}

func TestProvisionDeferred(t *testing.T) {
	f := setup(t)

	profile, err := f.svc.ProvisionDeferred(context.Background(), identitysrv.ProvisionParams{
		Role:        kernel.RoleManager,
		Refs:        refs(),
		DisplayName: "Branch Manager",
		Email:       "mgr@example.com",
		Username:    "acme-colombo-mgr",
	})
	require.NoError(t, err)

	assert.Equal(t, identity.StatusPending, profile.Status)
	assert.Empty(t, profile.PinHash)

	acct, err := f.dir.Get(context.Background(), profile.ID.String())
	require.NoError(t, err)
	assert.True(t, acct.Disabled)
	assert.False(t, acct.Virtual)
	assert.Equal(t, "mgr@example.com", acct.LoginEmail)

	sent := f.notifier.waitForInvite(t)
	assert.Equal(t, "mgr@example.com", sent.Email)
	assert.Equal(t, invite.PurposeOnboarding, sent.Purpose)
	assert.NotEmpty(t, sent.RawToken)
}

func TestProvisionDeferred_DeliveryFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.notifier.fail = true

	profile, err := f.svc.ProvisionDeferred(context.Background(), identitysrv.ProvisionParams{
		Role:  kernel.RoleManager,
		Refs:  refs(),
		Email: "mgr@example.com",
	})
	require.NoError(t, err)

	// account and invite are durable regardless of delivery outcome
	assert.Equal(t, 1, f.profiles.Len())
	assert.Equal(t, 1, f.invites.Count())
	assert.Equal(t, identity.StatusPending, profile.Status)
}

func TestActivateFromInvite_FullFlow(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ProvisionDeferred(context.Background(), identitysrv.ProvisionParams{
		Role:        kernel.RoleManager,
		Refs:        refs(),
		DisplayName: "Branch Manager",
		Email:       "mgr@example.com",
		Username:    "acme-colombo-mgr",
	})
	require.NoError(t, err)
	sent := f.notifier.waitForInvite(t)

	profile, err := f.svc.ActivateFromInvite(context.Background(), sent.RawToken, "4321")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, profile.Status)

	acct, err := f.dir.Get(context.Background(), profile.ID.String())
	require.NoError(t, err)
	assert.False(t, acct.Disabled)

	// the chosen PIN now signs in
	authed, err := f.svc.Authenticate(context.Background(), kernel.RoleManager, "mgr@example.com", "4321")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, authed.ID)

	// replaying the token is terminal
	_, err = f.svc.ActivateFromInvite(context.Background(), sent.RawToken, "9999")
	requireErrCode(t, err, "INVITE_ALREADY_USED")
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ProvisionWithCredential(context.Background(), identitysrv.ProvisionParams{
		Role:     kernel.RoleCashier,
		Refs:     refs(),
		Username: "acme-colombo-1",
	}, "1234")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), kernel.RoleCashier, "acme-colombo-1", "4321")
	requireErrCode(t, err, "IDENTITY_INVALID_CREDENTIALS")
}

func TestAuthenticate_UnknownIdentifier(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Authenticate(context.Background(), kernel.RoleCashier, "ghost", "1234")
	requireErrCode(t, err, "IDENTITY_INVALID_CREDENTIALS")
}

func TestAuthenticate_PendingAccountRejected(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ProvisionDeferred(context.Background(), identitysrv.ProvisionParams{
		Role:  kernel.RoleManager,
		Refs:  refs(),
		Email: "mgr@example.com",
	})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), kernel.RoleManager, "mgr@example.com", "1234")
	requireErrCode(t, err, "IDENTITY_INVALID_CREDENTIALS")
}

func TestAuthenticate_DisabledAccount(t *testing.T) {
	f := setup(t)

	f.profiles.Seed(identity.Profile{
		ID:       "acct-1",
		Role:     kernel.RoleManager,
		OrgID:    "org-1",
		Email:    "mgr@example.com",
		Status:   identity.StatusDisabled,
		PinHash:  "irrelevant",
		Username: "acme-colombo-mgr",
	})

	_, err := f.svc.Authenticate(context.Background(), kernel.RoleManager, "mgr@example.com", "1234")
	requireErrCode(t, err, "IDENTITY_ACCOUNT_DISABLED")
}

func TestAuthenticate_LegacyHashMigratesOnSuccess(t *testing.T) {
	f := setup(t)

	sum := sha256.Sum256([]byte("1234"))
	legacy := hex.EncodeToString(sum[:])

	f.profiles.Seed(identity.Profile{
		ID:            "acct-legacy",
		Role:          kernel.RoleCashier,
		OrgID:         "org-1",
		BranchID:      "branch-1",
		Username:      "acme-colombo-1",
		Status:        identity.StatusActive,
		PinHash:       legacy,
		HashAlg:       pincred.HashAlgLegacy,
		ClaimsVersion: identity.ClaimsVersion,
	})

	authed, err := f.svc.Authenticate(context.Background(), kernel.RoleCashier, "acme-colombo-1", "1234")
	require.NoError(t, err)

	stored, err := f.profiles.Get(context.Background(), "acct-legacy")
	require.NoError(t, err)
	assert.True(t, pincred.IsModernHash(stored.PinHash), "stored hash must be upgraded after legacy match")
	assert.Equal(t, pincred.HashAlgModern, stored.HashAlg)
	require.NotNil(t, stored.HashUpgradedAt)
	assert.True(t, f.hasher.Verify("1234", stored.PinHash))
	assert.True(t, pincred.IsModernHash(authed.PinHash))

	// a legacy hash that does not match never migrates
	_, err = f.svc.Authenticate(context.Background(), kernel.RoleCashier, "acme-colombo-1", "9999")
	requireErrCode(t, err, "IDENTITY_INVALID_CREDENTIALS")
}

func TestAuthenticate_StaleClaimsReapplied(t *testing.T) {
	f := setup(t)

	profile, err := f.svc.ProvisionWithCredential(context.Background(), identitysrv.ProvisionParams{
		Role:     kernel.RoleCashier,
		Refs:     refs(),
		Username: "acme-colombo-1",
	}, "1234")
	require.NoError(t, err)

	require.NoError(t, f.profiles.SetClaimsVersion(context.Background(), profile.ID, identity.ClaimsVersion-1))
	require.NoError(t, f.dir.ApplyClaims(context.Background(), profile.ID.String(), directory.Claims{"version": identity.ClaimsVersion - 1}))

	_, err = f.svc.Authenticate(context.Background(), kernel.RoleCashier, "acme-colombo-1", "1234")
	require.NoError(t, err)

	acct, err := f.dir.Get(context.Background(), profile.ID.String())
	require.NoError(t, err)
	assert.Equal(t, identity.ClaimsVersion, acct.Claims["version"])

	stored, err := f.profiles.Get(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ClaimsVersion, stored.ClaimsVersion)
}

func TestDisable_Idempotent(t *testing.T) {
	f := setup(t)

	profile, err := f.svc.ProvisionWithCredential(context.Background(), identitysrv.ProvisionParams{
		Role:     kernel.RoleCashier,
		Refs:     refs(),
		Username: "acme-colombo-1",
	}, "1234")
	require.NoError(t, err)

	require.NoError(t, f.svc.Disable(context.Background(), profile.ID))
	assert.Equal(t, 0, f.profiles.Len())
	assert.Equal(t, 0, f.dir.Len())

	// second teardown of the same identity is a no-op
	require.NoError(t, f.svc.Disable(context.Background(), profile.ID))
}

func TestRequestReset_UnknownAccountDoesNotLeak(t *testing.T) {
	f := setup(t)

	err := f.svc.RequestReset(context.Background(), kernel.RoleManager, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, f.invites.Count(), "no token may be issued for unknown accounts")
}

func TestRequestReset_IssuesShortLivedToken(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ProvisionDeferred(context.Background(), identitysrv.ProvisionParams{
		Role:  kernel.RoleManager,
		Refs:  refs(),
		Email: "mgr@example.com",
	})
	require.NoError(t, err)
	f.notifier.waitForInvite(t)

	require.NoError(t, f.svc.RequestReset(context.Background(), kernel.RoleManager, "mgr@example.com"))

	sent := f.notifier.waitForInvite(t)
	assert.Equal(t, invite.PurposeReset, sent.Purpose)
}

func TestCheckExists(t *testing.T) {
	f := setup(t)

	exists, err := f.svc.CheckExists(context.Background(), kernel.RoleManager, "mgr@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.svc.ProvisionDeferred(context.Background(), identitysrv.ProvisionParams{
		Role:  kernel.RoleManager,
		Refs:  refs(),
		Email: "mgr@example.com",
	})
	require.NoError(t, err)

	exists, err = f.svc.CheckExists(context.Background(), kernel.RoleManager, "mgr@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *errx.Error
	require.Error(t, err)
	require.True(t, errx.As(err, &e), "expected *errx.Error, got %T", err)
	require.Equal(t, code, e.Code)
}
