package kernel

// AuthContext is the authentication context injected into each request.
type AuthContext struct {
	AccountID AccountID `json:"account_id"`
	Role      Role      `json:"role"`
	OrgID     OrgID     `json:"org_id"`
	BranchID  BranchID  `json:"branch_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Scopes    []string  `json:"scopes"`
}

// IsValid verifies the AuthContext carries a subject and a role.
func (ac *AuthContext) IsValid() bool {
	return !ac.AccountID.IsEmpty() && ac.Role.IsValid()
}

// HasScope checks whether the context holds a specific scope. A trailing
// ":*" segment matches any action under the prefix.
func (ac *AuthContext) HasScope(scope string) bool {
	for _, s := range ac.Scopes {
		if s == scope || s == "*" {
			return true
		}
		if len(s) > 2 && s[len(s)-2:] == ":*" {
			prefix := s[:len(s)-2]
			if len(scope) > len(prefix) && scope[:len(prefix)] == prefix && scope[len(prefix)] == ':' {
				return true
			}
		}
	}
	return false
}

// HasAnyScope checks whether the context holds at least one of the scopes.
func (ac *AuthContext) HasAnyScope(scopes ...string) bool {
	for _, scope := range scopes {
		if ac.HasScope(scope) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the context has platform-admin permissions.
func (ac *AuthContext) IsAdmin() bool {
	return ac.Role == RoleAdmin || ac.HasScope("*")
}

// Refs returns the tenant references the context is scoped to.
func (ac *AuthContext) Refs() TenantRefs {
	return TenantRefs{OrgID: ac.OrgID, BranchID: ac.BranchID}
}

type ContextKey string

const (
	// AuthContextKey stores the AuthContext in fiber locals / context.Context
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the request ID
	RequestIDKey ContextKey = "request_id"
)
