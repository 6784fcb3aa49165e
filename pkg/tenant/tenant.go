package tenant

import (
	"net/http"
	"time"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// Organization is the root of the tenant hierarchy. Organizations are never
// hard-deleted; counters only grow or shrink through the hierarchy service.
type Organization struct {
	ID            kernel.OrgID     `db:"id" json:"id"`
	Name          string           `db:"name" json:"name"`
	Slug          string           `db:"slug" json:"slug"`
	OwnerID       kernel.AccountID `db:"owner_id" json:"owner_id"`
	BranchCount   int              `db:"branch_count" json:"branch_count"`
	CashierCount  int              `db:"cashier_count" json:"cashier_count"`
	NextBranchSeq int              `db:"next_branch_seq" json:"-"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Branch lives under exactly one organization. BranchNo and Username are
// assigned once at creation and never change afterwards.
type Branch struct {
	ID             kernel.BranchID   `db:"id" json:"id"`
	OrgID          kernel.OrgID      `db:"org_id" json:"org_id"`
	Name           string            `db:"name" json:"name"`
	Slug           string            `db:"slug" json:"slug"`
	Username       string            `db:"username" json:"username"`
	BranchNo       int               `db:"branch_no" json:"branch_no"`
	ManagerID      *kernel.AccountID `db:"manager_id" json:"manager_id,omitempty"`
	NextCashierSeq int               `db:"next_cashier_seq" json:"-"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// HasManager reports whether the branch's manager slot is occupied.
func (b *Branch) HasManager() bool {
	return b.ManagerID != nil && !b.ManagerID.IsEmpty()
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeOrgNotFound    = ErrRegistry.Register("ORG_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Organization not found")
	CodeBranchNotFound = ErrRegistry.Register("BRANCH_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Branch not found")
	CodeNotOwner       = ErrRegistry.Register("NOT_OWNER", errx.TypeAuthorization, http.StatusUnauthorized, "Actor is not the organization owner")
	CodeForbiddenScope = ErrRegistry.Register("FORBIDDEN_SCOPE", errx.TypeAuthorization, http.StatusForbidden, "Actor is not scoped to this tenant")
	CodeInvalidName    = ErrRegistry.Register("INVALID_NAME", errx.TypeValidation, http.StatusBadRequest, "Name produces an empty slug")
	CodeDuplicateSlug  = ErrRegistry.Register("DUPLICATE_SLUG", errx.TypeConflict, http.StatusConflict, "Slug already taken")
	CodeMissingContact = ErrRegistry.Register("MISSING_CONTACT", errx.TypeValidation, http.StatusBadRequest, "Either a PIN or a contact email is required")
)

func ErrOrgNotFound() *errx.Error {
	return ErrRegistry.New(CodeOrgNotFound)
}

func ErrBranchNotFound() *errx.Error {
	return ErrRegistry.New(CodeBranchNotFound)
}

func ErrNotOwner() *errx.Error {
	return ErrRegistry.New(CodeNotOwner)
}

func ErrForbiddenScope() *errx.Error {
	return ErrRegistry.New(CodeForbiddenScope)
}

func ErrInvalidName() *errx.Error {
	return ErrRegistry.New(CodeInvalidName)
}

func ErrDuplicateSlug() *errx.Error {
	return ErrRegistry.New(CodeDuplicateSlug)
}

func ErrMissingContact() *errx.Error {
	return ErrRegistry.New(CodeMissingContact)
}
