package identity

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// Status is the lifecycle state of an account profile.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

// VirtualDomain is the fixed internal domain for derived login addresses.
// Addresses under it are auth-provider login keys, never deliverable
// mailboxes.
const VirtualDomain = "pin.tillgate.internal"

// Profile is the account profile record. Its ID always equals the directory
// account's uid.
type Profile struct {
	ID          kernel.AccountID `db:"id" json:"id"`
	Role        kernel.Role      `db:"role" json:"role"`
	OrgID       kernel.OrgID     `db:"org_id" json:"org_id"`
	BranchID    kernel.BranchID  `db:"branch_id" json:"branch_id,omitempty"`
	DisplayName string           `db:"display_name" json:"display_name"`
	Email       string           `db:"email" json:"email,omitempty"`
	Username    string           `db:"username" json:"username"`
	Status      Status           `db:"status" json:"status"`

	// Credential fields. PinHash is empty until a credential is set.
	PinHash        string     `db:"pin_hash" json:"-"`
	HashAlg        string     `db:"hash_alg" json:"-"`
	HashUpgradedAt *time.Time `db:"hash_upgraded_at" json:"-"`

	ClaimsVersion int       `db:"claims_version" json:"claims_version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Profile) IsActive() bool   { return p.Status == StatusActive }
func (p *Profile) IsPending() bool  { return p.Status == StatusPending }
func (p *Profile) IsDisabled() bool { return p.Status == StatusDisabled }

// Refs returns the tenant references the profile is scoped to.
func (p *Profile) Refs() kernel.TenantRefs {
	return kernel.TenantRefs{OrgID: p.OrgID, BranchID: p.BranchID}
}

// VirtualEmail derives the synthetic login address for a username.
func VirtualEmail(username string) string {
	return fmt.Sprintf("%s@%s", username, VirtualDomain)
}

// DeriveVirtualUsername composes the deterministic identifier for roles
// without a real mailbox: parent username plus the allocated sequence.
func DeriveVirtualUsername(parentUsername string, seq int) string {
	return fmt.Sprintf("%s-%d", parentUsername, seq)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IDENTITY")

var (
	CodeAccountNotFound    = ErrRegistry.Register("ACCOUNT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Account not found")
	CodeAccountExists      = ErrRegistry.Register("ACCOUNT_EXISTS", errx.TypeConflict, http.StatusConflict, "Account already exists")
	CodeAccountDisabled    = ErrRegistry.Register("ACCOUNT_DISABLED", errx.TypeAuthorization, http.StatusForbidden, "Account is disabled")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeInvalidRole        = ErrRegistry.Register("INVALID_ROLE", errx.TypeValidation, http.StatusBadRequest, "Invalid role")
)

func ErrAccountNotFound() *errx.Error {
	return ErrRegistry.New(CodeAccountNotFound)
}

func ErrAccountExists() *errx.Error {
	return ErrRegistry.New(CodeAccountExists)
}

func ErrAccountDisabled() *errx.Error {
	return ErrRegistry.New(CodeAccountDisabled)
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}

func ErrInvalidRole() *errx.Error {
	return ErrRegistry.New(CodeInvalidRole)
}
