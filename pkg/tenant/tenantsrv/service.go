package tenantsrv

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/identity/identitysrv"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/tenant"
)

// managerSlotSeq is the fixed sequence reserved for the branch manager's
// virtual identity. Cashier sequences start at 1, so the slot never collides.
const managerSlotSeq = 0

// Service owns the organization → branch → cashier hierarchy. All counter
// allocation happens inside serializable transactions; slug uniqueness is a
// pre-transaction lookup and intentionally fail-open under a simultaneous
// identical request.
type Service struct {
	orgs        tenant.OrganizationRepository
	branches    tenant.BranchRepository
	profiles    identity.ProfileRepository
	provisioner *identitysrv.Provisioner
	txRunner    tenant.TxRunner
}

func NewService(
	orgs tenant.OrganizationRepository,
	branches tenant.BranchRepository,
	profiles identity.ProfileRepository,
	provisioner *identitysrv.Provisioner,
	txRunner tenant.TxRunner,
) *Service {
	return &Service{
		orgs:        orgs,
		branches:    branches,
		profiles:    profiles,
		provisioner: provisioner,
		txRunner:    txRunner,
	}
}

// CreateOrganizationParams carries the owner identity alongside the new
// organization's name. OwnerID is the auth-provider uid of the signed-up
// owner.
type CreateOrganizationParams struct {
	Name       string
	OwnerID    kernel.AccountID
	OwnerName  string
	OwnerEmail string
}

// CreateOrganization derives a unique slug and writes the organization plus
// the owner's profile and directory records in one transaction.
func (s *Service) CreateOrganization(ctx context.Context, p CreateOrganizationParams) (*tenant.Organization, error) {
	base := tenant.Slugify(p.Name)
	if base == "" {
		return nil, tenant.ErrInvalidName().WithDetail("name", p.Name)
	}

	taken, err := s.orgs.FindTakenSlugs(ctx, base)
	if err != nil {
		return nil, err
	}
	slug := tenant.Disambiguate(base, taken)

	now := time.Now()
	org := tenant.Organization{
		ID:            kernel.NewOrgID(uuid.NewString()),
		Name:          p.Name,
		Slug:          slug,
		OwnerID:       p.OwnerID,
		NextBranchSeq: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.txRunner.WithinTx(ctx, func(tx tenant.TxPorts) error {
		if err := tx.Orgs.Insert(ctx, org); err != nil {
			return err
		}
		if err := tx.Profiles.Insert(ctx, identity.Profile{
			ID:            p.OwnerID,
			Role:          kernel.RoleOwner,
			OrgID:         org.ID,
			DisplayName:   p.OwnerName,
			Email:         p.OwnerEmail,
			Username:      slug,
			Status:        identity.StatusActive,
			ClaimsVersion: identity.ClaimsVersion,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}
		return tx.Directory.Create(ctx, directory.Account{
			UID:        p.OwnerID.String(),
			LoginEmail: p.OwnerEmail,
			Claims:     identity.ClaimsFor(kernel.RoleOwner, kernel.TenantRefs{OrgID: org.ID}),
		})
	})
	if err != nil {
		return nil, err
	}

	return &org, nil
}

// GetOrganization fetches an organization by id.
func (s *Service) GetOrganization(ctx context.Context, id kernel.OrgID) (*tenant.Organization, error) {
	return s.orgs.Get(ctx, id)
}

// ListBranches returns the organization's branches ordered by branch number.
func (s *Service) ListBranches(ctx context.Context, orgID kernel.OrgID) ([]tenant.Branch, error) {
	return s.branches.ListByOrg(ctx, orgID)
}

// CreateBranch allocates the next branch number and writes the branch in one
// transaction after re-verifying that actorID owns the organization. Slug and
// username derivation run on pre-transaction collision sets.
func (s *Service) CreateBranch(ctx context.Context, orgID kernel.OrgID, name string, actorID kernel.AccountID) (*tenant.Branch, error) {
	base := tenant.Slugify(name)
	if base == "" {
		return nil, tenant.ErrInvalidName().WithDetail("name", name)
	}

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	slugTaken, err := s.branches.FindTakenSlugs(ctx, orgID, base)
	if err != nil {
		return nil, err
	}
	slug := tenant.Disambiguate(base, slugTaken)

	unameBase := tenant.BranchUsername(org.Slug, slug)
	unameTaken, err := s.branches.FindTakenUsernames(ctx, unameBase)
	if err != nil {
		return nil, err
	}
	username := tenant.Disambiguate(unameBase, unameTaken)

	now := time.Now()
	branch := tenant.Branch{
		ID:             kernel.NewBranchID(uuid.NewString()),
		OrgID:          orgID,
		Name:           name,
		Slug:           slug,
		Username:       username,
		NextCashierSeq: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.txRunner.WithinTx(ctx, func(tx tenant.TxPorts) error {
		current, err := tx.Orgs.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if current.OwnerID != actorID {
			return tenant.ErrNotOwner().WithDetail("org_id", orgID.String())
		}

		seq, err := tx.Orgs.AllocateBranchSeq(ctx, orgID)
		if err != nil {
			return err
		}
		branch.BranchNo = seq

		return tx.Branches.Insert(ctx, branch)
	})
	if err != nil {
		return nil, err
	}

	s.adjustCounts(ctx, orgID, 1, 0)

	return &branch, nil
}

// DeleteBranch removes the branch, all its cashiers and its manager identity
// in one transaction, decrementing the organization counters.
func (s *Service) DeleteBranch(ctx context.Context, orgID kernel.OrgID, branchID kernel.BranchID, actorID kernel.AccountID) error {
	return s.txRunner.WithinTx(ctx, func(tx tenant.TxPorts) error {
		org, err := tx.Orgs.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if org.OwnerID != actorID {
			return tenant.ErrNotOwner().WithDetail("org_id", orgID.String())
		}

		branch, err := tx.Branches.Get(ctx, branchID)
		if err != nil {
			return err
		}
		if branch.OrgID != orgID {
			return tenant.ErrBranchNotFound().WithDetail("branch_id", branchID.String())
		}

		cashiers, err := tx.Profiles.ListByBranch(ctx, branchID, kernel.RoleCashier)
		if err != nil {
			return err
		}
		for _, c := range cashiers {
			if err := removeIdentity(ctx, tx, c.ID); err != nil {
				return err
			}
		}

		if branch.HasManager() {
			if err := removeIdentity(ctx, tx, *branch.ManagerID); err != nil {
				return err
			}
		}

		if err := tx.Branches.Delete(ctx, branchID); err != nil {
			return err
		}
		return tx.Orgs.AdjustCounts(ctx, orgID, -1, -len(cashiers))
	})
}

// UpsertBranchManager (re)fills the branch's single manager slot. A supplied
// PIN provisions an active account inline; otherwise the manager is invited to
// set their own credential via email. An existing manager identity is torn
// down first, never duplicated.
func (s *Service) UpsertBranchManager(ctx context.Context, orgID kernel.OrgID, branchID kernel.BranchID, actorID kernel.AccountID, displayName, email, secret string) (*identity.Profile, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.OwnerID != actorID {
		return nil, tenant.ErrNotOwner().WithDetail("org_id", orgID.String())
	}

	branch, err := s.branches.Get(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch.OrgID != orgID {
		return nil, tenant.ErrBranchNotFound().WithDetail("branch_id", branchID.String())
	}

	if secret == "" && email == "" {
		return nil, tenant.ErrMissingContact()
	}

	if branch.HasManager() {
		if err := s.provisioner.Disable(ctx, *branch.ManagerID); err != nil {
			return nil, err
		}
	}

	params := identitysrv.ProvisionParams{
		Role:        kernel.RoleManager,
		Refs:        kernel.TenantRefs{OrgID: orgID, BranchID: branchID},
		DisplayName: displayName,
		Email:       email,
		Username:    identity.DeriveVirtualUsername(branch.Username, managerSlotSeq),
	}

	var profile *identity.Profile
	if secret != "" {
		profile, err = s.provisioner.ProvisionWithCredential(ctx, params, secret)
	} else {
		profile, err = s.provisioner.ProvisionDeferred(ctx, params)
	}
	if err != nil {
		return nil, err
	}

	if err := s.branches.SetManager(ctx, branchID, &profile.ID); err != nil {
		return nil, err
	}

	return profile, nil
}

// CreateCashier allocates the branch's next cashier sequence and provisions
// the account with an inline PIN. Manager actors must be scoped to exactly
// this branch; every actor must be scoped to the organization.
func (s *Service) CreateCashier(ctx context.Context, orgID kernel.OrgID, branchID kernel.BranchID, actorRole kernel.Role, actorRefs kernel.TenantRefs, displayName, secret string) (*identity.Profile, error) {
	if err := checkCashierScope(orgID, branchID, actorRole, actorRefs); err != nil {
		return nil, err
	}

	var username string
	err := s.txRunner.WithinTx(ctx, func(tx tenant.TxPorts) error {
		branch, err := tx.Branches.Get(ctx, branchID)
		if err != nil {
			return err
		}
		if branch.OrgID != orgID {
			return tenant.ErrBranchNotFound().WithDetail("branch_id", branchID.String())
		}

		seq, err := tx.Branches.AllocateCashierSeq(ctx, branchID)
		if err != nil {
			return err
		}
		username = identity.DeriveVirtualUsername(branch.Username, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}

	profile, err := s.provisioner.ProvisionWithCredential(ctx, identitysrv.ProvisionParams{
		Role:        kernel.RoleCashier,
		Refs:        kernel.TenantRefs{OrgID: orgID, BranchID: branchID},
		DisplayName: displayName,
		Username:    username,
	}, secret)
	if err != nil {
		return nil, err
	}

	s.adjustCounts(ctx, orgID, 0, 1)

	return profile, nil
}

// DeleteCashier tears down a cashier identity and decrements the organization
// counter. Scope rules match CreateCashier.
func (s *Service) DeleteCashier(ctx context.Context, orgID kernel.OrgID, branchID kernel.BranchID, cashierID kernel.AccountID, actorRole kernel.Role, actorRefs kernel.TenantRefs) error {
	if err := checkCashierScope(orgID, branchID, actorRole, actorRefs); err != nil {
		return err
	}

	profile, err := s.profiles.Get(ctx, cashierID)
	if err != nil {
		return err
	}
	if profile.Role != kernel.RoleCashier || profile.BranchID != branchID {
		return identity.ErrAccountNotFound().WithDetail("account_id", cashierID.String())
	}

	if err := s.provisioner.Disable(ctx, cashierID); err != nil {
		return err
	}

	s.adjustCounts(ctx, orgID, 0, -1)

	return nil
}

// ----------------------------------------------------------------------------

// checkCashierScope enforces the actor rules for cashier mutations before any
// write happens.
func checkCashierScope(orgID kernel.OrgID, branchID kernel.BranchID, actorRole kernel.Role, actorRefs kernel.TenantRefs) error {
	if actorRole == kernel.RoleAdmin {
		return nil
	}
	if actorRole != kernel.RoleOwner && actorRole != kernel.RoleManager {
		return tenant.ErrForbiddenScope().WithDetail("role", actorRole.String())
	}
	if actorRefs.OrgID != orgID {
		return tenant.ErrForbiddenScope().WithDetail("org_id", orgID.String())
	}
	if actorRole == kernel.RoleManager && actorRefs.BranchID != branchID {
		return tenant.ErrForbiddenScope().WithDetail("branch_id", branchID.String())
	}
	return nil
}

// removeIdentity deletes both halves of an account record inside the caller's
// transaction.
func removeIdentity(ctx context.Context, tx tenant.TxPorts, id kernel.AccountID) error {
	if err := tx.Profiles.Delete(ctx, id); err != nil {
		return err
	}
	return tx.Directory.Delete(ctx, id.String())
}

// adjustCounts updates the denormalized counters off the critical path; a
// failure here leaves the counters stale, never the hierarchy.
func (s *Service) adjustCounts(ctx context.Context, orgID kernel.OrgID, branchDelta, cashierDelta int) {
	if err := s.orgs.AdjustCounts(ctx, orgID, branchDelta, cashierDelta); err != nil {
		log.Warn().Err(err).Str("org_id", orgID.String()).
			Int("branch_delta", branchDelta).Int("cashier_delta", cashierDelta).
			Msg("tenant: counter adjustment failed")
	}
}
