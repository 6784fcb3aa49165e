package identitysrv

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/asyncx"
	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/invite"
	"github.com/tillgate/tillgate/pkg/invite/invitesrv"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/pincred"
)

// Notifier delivers credential-setup links out of band. Delivery is always
// best effort: the account exists durably whether or not the message arrives.
type Notifier interface {
	SendInvite(ctx context.Context, email, nameHint, rawToken string, purpose invite.Purpose) error
}

// notifyTimeout bounds the fire-and-forget delivery goroutine.
const notifyTimeout = 15 * time.Second

// ProvisionParams describes the identity to materialize. Email is the real
// mailbox for roles that have one; Username is the derived login identifier
// for virtual-identity roles.
type ProvisionParams struct {
	Role        kernel.Role
	Refs        kernel.TenantRefs
	DisplayName string
	Email       string
	Username    string
}

// Provisioner owns the dual identity record: the profile row and the
// directory (auth-provider) account are only ever written together through
// it, so the two can never drift apart.
type Provisioner struct {
	profiles   identity.ProfileRepository
	dir        directory.Directory
	invites    *invitesrv.Manager
	txRunner   identity.TxRunner
	hasher     *pincred.Hasher
	notifier   Notifier
	refClearer identity.ManagerRefClearer
}

func NewProvisioner(
	profiles identity.ProfileRepository,
	dir directory.Directory,
	invites *invitesrv.Manager,
	txRunner identity.TxRunner,
	hasher *pincred.Hasher,
	notifier Notifier,
	refClearer identity.ManagerRefClearer,
) *Provisioner {
	return &Provisioner{
		profiles:   profiles,
		dir:        dir,
		invites:    invites,
		txRunner:   txRunner,
		hasher:     hasher,
		notifier:   notifier,
		refClearer: refClearer,
	}
}

// ProvisionWithCredential creates an active account with an inline secret.
// The secret is hashed before any store write so the argon2 work never holds
// a transaction open.
func (s *Provisioner) ProvisionWithCredential(ctx context.Context, p ProvisionParams, secret string) (*identity.Profile, error) {
	if !p.Role.IsValid() {
		return nil, identity.ErrInvalidRole().WithDetail("role", p.Role)
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	profile := s.newProfile(p)
	profile.Status = identity.StatusActive
	profile.PinHash = hash
	profile.HashAlg = pincred.HashAlgModern

	if err := s.materialize(ctx, profile, false); err != nil {
		return nil, err
	}
	return profile, nil
}

// ProvisionDeferred creates a pending account with no credential and a
// disabled directory record, then issues an onboarding invite. Invite
// delivery runs in the background; its failure is logged, never fatal. The
// invite stays valid and can be resent.
func (s *Provisioner) ProvisionDeferred(ctx context.Context, p ProvisionParams) (*identity.Profile, error) {
	if !p.Role.IsValid() {
		return nil, identity.ErrInvalidRole().WithDetail("role", p.Role)
	}

	profile := s.newProfile(p)
	profile.Status = identity.StatusPending

	if err := s.materialize(ctx, profile, true); err != nil {
		return nil, err
	}

	rawToken, _, err := s.invites.Issue(ctx, p.Role, invite.PurposeOnboarding, p.Email, p.DisplayName)
	if err != nil {
		// The account itself is durable; a fresh invite can be issued later.
		return nil, errx.Wrap(err, "account created but invite issuance failed", errx.TypeInternal).
			WithDetail("account_id", profile.ID)
	}

	s.notifyAsync(p.Email, p.DisplayName, rawToken, invite.PurposeOnboarding)

	return profile, nil
}

// ActivateFromInvite consumes the invite token and sets the first credential.
// Token consumption, the credential write and the directory enable commit in
// one store transaction, so a replayed token can never activate twice.
func (s *Provisioner) ActivateFromInvite(ctx context.Context, rawToken, secret string) (*identity.Profile, error) {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	var profile *identity.Profile
	err = s.txRunner.WithinTx(ctx, func(tx identity.TxPorts) error {
		token, err := invitesrv.NewManager(tx.Invites).Consume(ctx, rawToken)
		if err != nil {
			return err
		}

		profile, err = tx.Profiles.FindByEmail(ctx, token.Email, token.Role)
		if err != nil {
			return err
		}
		if profile.IsDisabled() {
			return identity.ErrAccountDisabled()
		}

		if err := tx.Profiles.SetCredential(ctx, profile.ID, hash, pincred.HashAlgModern, identity.StatusActive); err != nil {
			return err
		}
		return tx.Directory.SetDisabled(ctx, profile.ID.String(), false)
	})
	if err != nil {
		return nil, err
	}

	profile.Status = identity.StatusActive
	profile.PinHash = hash
	profile.HashAlg = pincred.HashAlgModern
	return profile, nil
}

// RequestReset issues a fresh short-lived invite for an existing account and
// triggers delivery. Unknown accounts are silently ignored so that callers
// cannot probe for account existence.
func (s *Provisioner) RequestReset(ctx context.Context, role kernel.Role, email string) error {
	exists, err := s.profiles.ExistsByEmail(ctx, email, role)
	if err != nil {
		return err
	}
	if !exists {
		log.Debug().Str("email", email).Str("role", role.String()).Msg("identity: reset requested for unknown account")
		return nil
	}

	rawToken, _, err := s.invites.Issue(ctx, role, invite.PurposeReset, email, "")
	if err != nil {
		return err
	}

	s.notifyAsync(email, "", rawToken, invite.PurposeReset)
	return nil
}

// Disable tears an identity down: parent back-references are cleared first,
// then the profile and directory records are deleted. Every step is
// idempotent on missing records.
func (s *Provisioner) Disable(ctx context.Context, accountID kernel.AccountID) error {
	if s.refClearer != nil {
		if err := s.refClearer.ClearManagerRef(ctx, accountID); err != nil {
			return err
		}
	}
	if err := s.profiles.Delete(ctx, accountID); err != nil {
		return err
	}
	return s.dir.Delete(ctx, accountID.String())
}

// CheckExists reports whether an account with the email exists for the role.
func (s *Provisioner) CheckExists(ctx context.Context, role kernel.Role, email string) (bool, error) {
	return s.profiles.ExistsByEmail(ctx, email, role)
}

// Authenticate verifies a credential for sign-in. Identifiers containing "@"
// are treated as real emails, anything else as a derived username. A matching
// legacy hash is upgraded to the modern scheme in place; stale claim sets are
// re-applied opportunistically on the same path.
func (s *Provisioner) Authenticate(ctx context.Context, role kernel.Role, identifier, secret string) (*identity.Profile, error) {
	profile, err := s.lookup(ctx, role, identifier)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, identity.ErrInvalidCredentials()
		}
		return nil, err
	}
	if profile.Role != role {
		return nil, identity.ErrInvalidCredentials()
	}
	if profile.IsDisabled() {
		return nil, identity.ErrAccountDisabled()
	}
	if !profile.IsActive() || profile.PinHash == "" {
		return nil, identity.ErrInvalidCredentials()
	}

	switch {
	case pincred.IsModernHash(profile.PinHash):
		if !s.hasher.Verify(secret, profile.PinHash) {
			return nil, identity.ErrInvalidCredentials()
		}
	case pincred.IsLegacyHash(profile.PinHash):
		if !s.hasher.VerifyLegacy(secret, profile.PinHash) {
			return nil, identity.ErrInvalidCredentials()
		}
		s.upgradeHash(ctx, profile, secret)
	default:
		return nil, identity.ErrInvalidCredentials()
	}

	if profile.ClaimsVersion != identity.ClaimsVersion {
		s.reapplyClaims(ctx, profile)
	}

	return profile, nil
}

// ReapplyClaims re-derives the permission claim set from the profile's role
// and tenant references and pushes it to the directory account.
func (s *Provisioner) ReapplyClaims(ctx context.Context, profile *identity.Profile) error {
	if err := s.dir.ApplyClaims(ctx, profile.ID.String(), identity.ClaimsFor(profile.Role, profile.Refs())); err != nil {
		return err
	}
	if err := s.profiles.SetClaimsVersion(ctx, profile.ID, identity.ClaimsVersion); err != nil {
		return err
	}
	profile.ClaimsVersion = identity.ClaimsVersion
	return nil
}

// ----------------------------------------------------------------------------

func (s *Provisioner) newProfile(p ProvisionParams) *identity.Profile {
	now := time.Now()
	return &identity.Profile{
		ID:            kernel.NewAccountID(uuid.NewString()),
		Role:          p.Role,
		OrgID:         p.Refs.OrgID,
		BranchID:      p.Refs.BranchID,
		DisplayName:   p.DisplayName,
		Email:         p.Email,
		Username:      p.Username,
		ClaimsVersion: identity.ClaimsVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// materialize writes both halves of the dual record. If the directory write
// fails the fresh profile row is rolled back so no half-identity survives.
func (s *Provisioner) materialize(ctx context.Context, profile *identity.Profile, disabled bool) error {
	loginEmail := profile.Email
	virtual := false
	if loginEmail == "" {
		loginEmail = identity.VirtualEmail(profile.Username)
		virtual = true
	}

	if err := s.profiles.Insert(ctx, *profile); err != nil {
		return err
	}

	acct := directory.Account{
		UID:        profile.ID.String(),
		LoginEmail: loginEmail,
		Virtual:    virtual,
		Disabled:   disabled,
		Claims:     identity.ClaimsFor(profile.Role, profile.Refs()),
	}
	if err := s.dir.Create(ctx, acct); err != nil {
		if delErr := s.profiles.Delete(ctx, profile.ID); delErr != nil {
			log.Error().Err(delErr).Str("account_id", profile.ID.String()).
				Msg("identity: orphaned profile after directory create failure")
		}
		return err
	}

	return nil
}

func (s *Provisioner) upgradeHash(ctx context.Context, profile *identity.Profile, secret string) {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		log.Warn().Err(err).Str("account_id", profile.ID.String()).Msg("identity: legacy hash upgrade failed")
		return
	}
	now := time.Now()
	if err := s.profiles.UpgradeCredential(ctx, profile.ID, hash, pincred.HashAlgModern, now); err != nil {
		log.Warn().Err(err).Str("account_id", profile.ID.String()).Msg("identity: legacy hash upgrade persist failed")
		return
	}
	profile.PinHash = hash
	profile.HashAlg = pincred.HashAlgModern
	profile.HashUpgradedAt = &now
}

func (s *Provisioner) reapplyClaims(ctx context.Context, profile *identity.Profile) {
	if err := s.ReapplyClaims(ctx, profile); err != nil {
		log.Warn().Err(err).Str("account_id", profile.ID.String()).Msg("identity: claims reapply failed")
	}
}

func (s *Provisioner) lookup(ctx context.Context, role kernel.Role, identifier string) (*identity.Profile, error) {
	if strings.Contains(identifier, "@") {
		return s.profiles.FindByEmail(ctx, identifier, role)
	}
	return s.profiles.FindByUsername(ctx, identifier)
}

func (s *Provisioner) notifyAsync(email, nameHint, rawToken string, purpose invite.Purpose) {
	asyncx.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.SendInvite(ctx, email, nameHint, rawToken, purpose); err != nil {
			log.Warn().Err(err).Str("email", email).Str("purpose", string(purpose)).
				Msg("identity: invite delivery failed (invite remains valid)")
		}
	})
}
