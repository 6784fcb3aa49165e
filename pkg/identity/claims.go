package identity

import (
	"github.com/tillgate/tillgate/pkg/directory"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// ClaimsVersion is bumped whenever the per-role scope table below changes, so
// stale claim sets can be detected and re-applied.
const ClaimsVersion = 2

// roleScopes is the enumerated permission table. The claim set of an account
// is fully determined by its role; it is re-derived and re-applied whenever a
// role-affecting identifier (org id, branch id) changes, never hand-edited
// per call site.
var roleScopes = map[kernel.Role][]string{
	kernel.RoleOwner:   {"org:*", "branch:*", "cashier:*", "txn:read", "report:*"},
	kernel.RoleManager: {"branch:read", "cashier:*", "txn:read"},
	kernel.RoleCashier: {"txn:capture", "txn:read"},
	kernel.RoleAdmin:   {"*"},
	kernel.RoleStaff:   {"org:read", "branch:read", "support:*"},
}

// ScopesFor returns the permission scopes for a role.
func ScopesFor(role kernel.Role) []string {
	scopes, ok := roleScopes[role]
	if !ok {
		return nil
	}
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out
}

// ClaimsFor derives the full directory claim set for a role scoped to the
// given tenant references.
func ClaimsFor(role kernel.Role, refs kernel.TenantRefs) directory.Claims {
	claims := directory.Claims{
		"role":    role.String(),
		"org_id":  refs.OrgID.String(),
		"scopes":  ScopesFor(role),
		"version": ClaimsVersion,
	}
	if !refs.BranchID.IsEmpty() {
		claims["branch_id"] = refs.BranchID.String()
	}
	return claims
}
