package kernel

type AccountID string

func NewAccountID(id string) AccountID { return AccountID(id) }
func (a AccountID) String() string     { return string(a) }
func (a AccountID) IsEmpty() bool      { return string(a) == "" }

type OrgID string

func NewOrgID(id string) OrgID { return OrgID(id) }
func (o OrgID) String() string { return string(o) }
func (o OrgID) IsEmpty() bool  { return string(o) == "" }

type BranchID string

func NewBranchID(id string) BranchID { return BranchID(id) }
func (b BranchID) String() string    { return string(b) }
func (b BranchID) IsEmpty() bool     { return string(b) == "" }

// Role identifies the kind of account in the tenant hierarchy.
type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleManager Role = "MANAGER"
	RoleCashier Role = "CASHIER"
	RoleAdmin   Role = "ADMIN"
	RoleStaff   Role = "STAFF"
)

func (r Role) String() string { return string(r) }

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleCashier, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// UsesVirtualIdentity reports whether the role signs in with a derived
// username instead of a real mailbox.
func (r Role) UsesVirtualIdentity() bool {
	return r == RoleCashier || r == RoleManager
}

// TenantRefs locates an account inside the hierarchy. BranchID is empty for
// organization-level roles.
type TenantRefs struct {
	OrgID    OrgID    `json:"org_id"`
	BranchID BranchID `json:"branch_id,omitempty"`
}
