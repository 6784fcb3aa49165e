package tenantsrv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dirfakes "github.com/tillgate/tillgate/pkg/directory/repofakes"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/identity/identitysrv"
	idfakes "github.com/tillgate/tillgate/pkg/identity/repofakes"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/invite/invitesrv"
	invitefakes "github.com/tillgate/tillgate/pkg/invite/repofakes"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/pincred"
	"github.com/tillgate/tillgate/pkg/tenant"
	"github.com/tillgate/tillgate/pkg/tenant/repofakes"
	"github.com/tillgate/tillgate/pkg/tenant/tenantsrv"
)

const ownerID = kernel.AccountID("owner-1")

type noopNotifier struct{}

func (noopNotifier) SendInvite(context.Context, string, string, string, invite.Purpose) error {
	return nil
}

type fixture struct {
	orgs        *repofakes.FakeOrgRepo
	branches    *repofakes.FakeBranchRepo
	profiles    *idfakes.FakeProfileRepo
	dir         *dirfakes.FakeDirectory
	invites     *invitefakes.FakeTokenRepo
	provisioner *identitysrv.Provisioner
	svc         *tenantsrv.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	orgs := repofakes.NewFakeOrgRepo()
	branches := repofakes.NewFakeBranchRepo()
	profiles := idfakes.NewFakeProfileRepo()
	dir := dirfakes.NewFakeDirectory()
	invites := invitefakes.NewFakeTokenRepo()

	provisioner := identitysrv.NewProvisioner(
		profiles, dir, invitesrv.NewManager(invites),
		&idfakes.FakeTxRunner{Profiles: profiles, Directory: dir, Invites: invites},
		pincred.NewHasher("test-pepper"), noopNotifier{}, branches,
	)

	svc := tenantsrv.NewService(orgs, branches, profiles, provisioner, &repofakes.FakeTxRunner{
		Orgs:      orgs,
		Branches:  branches,
		Profiles:  profiles,
		Directory: dir,
	})

	return &fixture{
		orgs: orgs, branches: branches, profiles: profiles, dir: dir,
		invites: invites, provisioner: provisioner, svc: svc,
	}
}

func (f *fixture) mustCreateOrg(t *testing.T, name string) *tenant.Organization {
	t.Helper()
	org, err := f.svc.CreateOrganization(context.Background(), tenantsrv.CreateOrganizationParams{
		Name:       name,
		OwnerID:    ownerID,
		OwnerName:  "Org Owner",
		OwnerEmail: "owner@example.com",
	})
	require.NoError(t, err)
	return org
}

func TestCreateOrganization(t *testing.T) {
	f := setup(t)

	org := f.mustCreateOrg(t, "Acme Payments")

	assert.Equal(t, "acme-payments", org.Slug)
	assert.Equal(t, 1, org.NextBranchSeq)
	assert.Equal(t, ownerID, org.OwnerID)

	profile, err := f.profiles.Get(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, kernel.RoleOwner, profile.Role)
	assert.Equal(t, org.ID, profile.OrgID)
	assert.Equal(t, identity.StatusActive, profile.Status)

	acct, err := f.dir.Get(context.Background(), ownerID.String())
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", acct.LoginEmail)
	assert.Equal(t, "OWNER", acct.Claims["role"])
}

func TestCreateOrganization_SlugCollisionSuffixed(t *testing.T) {
	f := setup(t)

	first := f.mustCreateOrg(t, "Acme")

	second, err := f.svc.CreateOrganization(context.Background(), tenantsrv.CreateOrganizationParams{
		Name:       "Acme",
		OwnerID:    kernel.AccountID("owner-2"),
		OwnerEmail: "owner2@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Slug)
	assert.Equal(t, "acme-2", second.Slug)
}

func TestCreateOrganization_EmptySlug(t *testing.T) {
	f := setup(t)

	_, err := f.svc.CreateOrganization(context.Background(), tenantsrv.CreateOrganizationParams{
		Name:    "!!!",
		OwnerID: ownerID,
	})
	requireErrCode(t, err, "TENANT_INVALID_NAME")
}

func TestCreateBranch_SequenceAndUsername(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")

	first, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.BranchNo)
	assert.Equal(t, "colombo", first.Slug)
	assert.Equal(t, "acme-colombo", first.Username)

	// a second branch with the identical name gets the next number and a
	// disambiguated username, never the taken one
	second, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.BranchNo)
	assert.NotEqual(t, "acme-colombo", second.Username)
	assert.Equal(t, "acme-colombo-2", second.Username)
}

func TestCreateBranch_NumbersHaveNoGaps(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")

	names := []string{"Colombo", "Kandy", "Galle", "Jaffna", "Matara"}
	for i, name := range names {
		b, err := f.svc.CreateBranch(context.Background(), org.ID, name, ownerID)
		require.NoError(t, err)
		assert.Equal(t, i+1, b.BranchNo)
	}

	stored, err := f.orgs.Get(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, len(names)+1, stored.NextBranchSeq)
	assert.Equal(t, len(names), stored.BranchCount)
}

func TestCreateBranch_NotOwner(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")

	_, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", kernel.AccountID("intruder"))
	requireErrCode(t, err, "TENANT_NOT_OWNER")
	assert.Equal(t, 0, f.branches.Len(), "authorization failure must leave no partial writes")
}

func TestUpsertBranchManager_InlinePin(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	mgr, err := f.svc.UpsertBranchManager(context.Background(), org.ID, branch.ID, ownerID, "First Manager", "", "2468")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, mgr.Status)
	assert.Equal(t, "acme-colombo-0", mgr.Username)

	stored, err := f.branches.Get(context.Background(), branch.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ManagerID)
	assert.Equal(t, mgr.ID, *stored.ManagerID)

	authed, err := f.provisioner.Authenticate(context.Background(), kernel.RoleManager, "acme-colombo-0", "2468")
	require.NoError(t, err)
	assert.Equal(t, mgr.ID, authed.ID)
}

func TestUpsertBranchManager_ReassignmentReusesSlot(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	first, err := f.svc.UpsertBranchManager(context.Background(), org.ID, branch.ID, ownerID, "First", "", "2468")
	require.NoError(t, err)

	second, err := f.svc.UpsertBranchManager(context.Background(), org.ID, branch.ID, ownerID, "Second", "", "1357")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "acme-colombo-0", second.Username)

	// first manager's identity is gone, both halves
	_, err = f.profiles.Get(context.Background(), first.ID)
	requireErrCode(t, err, "IDENTITY_ACCOUNT_NOT_FOUND")
	stored, err := f.branches.Get(context.Background(), branch.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ManagerID)
	assert.Equal(t, second.ID, *stored.ManagerID)
}

func TestUpsertBranchManager_DeferredInvite(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	mgr, err := f.svc.UpsertBranchManager(context.Background(), org.ID, branch.ID, ownerID, "Invited Manager", "mgr@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusPending, mgr.Status)
	assert.Equal(t, 1, f.invites.Count())
}

func TestUpsertBranchManager_RequiresPinOrEmail(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	_, err = f.svc.UpsertBranchManager(context.Background(), org.ID, branch.ID, ownerID, "Nameless", "", "")
	requireErrCode(t, err, "TENANT_MISSING_CONTACT")
}

func TestCreateCashier_SequencesWithinBranch(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	ownerRefs := kernel.TenantRefs{OrgID: org.ID}

	first, err := f.svc.CreateCashier(context.Background(), org.ID, branch.ID, kernel.RoleOwner, ownerRefs, "Cashier One", "1111")
	require.NoError(t, err)
	assert.Equal(t, "acme-colombo-1", first.Username)
	assert.Equal(t, identity.StatusActive, first.Status)

	second, err := f.svc.CreateCashier(context.Background(), org.ID, branch.ID, kernel.RoleOwner, ownerRefs, "Cashier Two", "2222")
	require.NoError(t, err)
	assert.Equal(t, "acme-colombo-2", second.Username)

	authed, err := f.provisioner.Authenticate(context.Background(), kernel.RoleCashier, "acme-colombo-1", "1111")
	require.NoError(t, err)
	assert.Equal(t, first.ID, authed.ID)

	stored, err := f.orgs.Get(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CashierCount)
}

func TestCreateCashier_ManagerScopedToOtherBranch(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	b1, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)
	b2, err := f.svc.CreateBranch(context.Background(), org.ID, "Kandy", ownerID)
	require.NoError(t, err)

	before := f.profiles.Len()
	managerRefs := kernel.TenantRefs{OrgID: org.ID, BranchID: b1.ID}

	_, err = f.svc.CreateCashier(context.Background(), org.ID, b2.ID, kernel.RoleManager, managerRefs, "Sneaky", "1234")
	requireErrCode(t, err, "TENANT_FORBIDDEN_SCOPE")
	assert.Equal(t, before, f.profiles.Len(), "no cashier record may be written")
}

func TestCreateCashier_ActorOutsideOrganization(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	foreignRefs := kernel.TenantRefs{OrgID: kernel.OrgID("other-org")}
	_, err = f.svc.CreateCashier(context.Background(), org.ID, branch.ID, kernel.RoleOwner, foreignRefs, "Outsider", "1234")
	requireErrCode(t, err, "TENANT_FORBIDDEN_SCOPE")
}

func TestDeleteCashier(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	ownerRefs := kernel.TenantRefs{OrgID: org.ID}
	cashier, err := f.svc.CreateCashier(context.Background(), org.ID, branch.ID, kernel.RoleOwner, ownerRefs, "Cashier", "1111")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteCashier(context.Background(), org.ID, branch.ID, cashier.ID, kernel.RoleOwner, ownerRefs))

	_, err = f.profiles.Get(context.Background(), cashier.ID)
	requireErrCode(t, err, "IDENTITY_ACCOUNT_NOT_FOUND")

	stored, err := f.orgs.Get(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CashierCount)
}

func TestDeleteBranch_Cascades(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	ownerRefs := kernel.TenantRefs{OrgID: org.ID}
	mgr, err := f.svc.UpsertBranchManager(context.Background(), org.ID, branch.ID, ownerID, "Manager", "", "2468")
	require.NoError(t, err)
	c1, err := f.svc.CreateCashier(context.Background(), org.ID, branch.ID, kernel.RoleOwner, ownerRefs, "Cashier One", "1111")
	require.NoError(t, err)
	c2, err := f.svc.CreateCashier(context.Background(), org.ID, branch.ID, kernel.RoleOwner, ownerRefs, "Cashier Two", "2222")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteBranch(context.Background(), org.ID, branch.ID, ownerID))

	for _, id := range []kernel.AccountID{mgr.ID, c1.ID, c2.ID} {
		_, err := f.profiles.Get(context.Background(), id)
		requireErrCode(t, err, "IDENTITY_ACCOUNT_NOT_FOUND")
	}
	_, err = f.branches.Get(context.Background(), branch.ID)
	requireErrCode(t, err, "TENANT_BRANCH_NOT_FOUND")

	stored, err := f.orgs.Get(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.BranchCount)
	assert.Equal(t, 0, stored.CashierCount)

	// owner's directory account survives
	assert.Equal(t, 1, f.dir.Len())
}

func TestDeleteBranch_NotOwner(t *testing.T) {
	f := setup(t)
	org := f.mustCreateOrg(t, "Acme")
	branch, err := f.svc.CreateBranch(context.Background(), org.ID, "Colombo", ownerID)
	require.NoError(t, err)

	err = f.svc.DeleteBranch(context.Background(), org.ID, branch.ID, kernel.AccountID("intruder"))
	requireErrCode(t, err, "TENANT_NOT_OWNER")
	assert.Equal(t, 1, f.branches.Len())
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *errx.Error
	require.Error(t, err)
	require.True(t, errx.As(err, &e), "expected *errx.Error, got %T", err)
	require.Equal(t, code, e.Code)
}
