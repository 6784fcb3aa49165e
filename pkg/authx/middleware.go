package authx

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tillgate/tillgate/pkg/identity"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/session/sessionsrv"
)

// Middleware authenticates requests either from a bearer token (owner/admin)
// or a role-scoped session cookie (manager/cashier) and injects the resulting
// kernel.AuthContext into fiber locals.
type Middleware struct {
	tokens   *JWTService
	sessions *sessionsrv.Manager
	profiles identity.ProfileRepository
}

func NewMiddleware(tokens *JWTService, sessions *sessionsrv.Manager, profiles identity.ProfileRepository) *Middleware {
	return &Middleware{
		tokens:   tokens,
		sessions: sessions,
		profiles: profiles,
	}
}

// Bearer validates an "Authorization: Bearer" token.
func (m *Middleware) Bearer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return ErrUnauthorized()
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return ErrTokenInvalid()
		}

		ac, err := m.tokens.Validate(parts[1])
		if err != nil {
			return err
		}

		c.Locals(kernel.AuthContextKey, ac)
		return c.Next()
	}
}

// SessionCookie resolves the named session cookie to its account and injects
// the account's auth context. The profile is re-read on every request so a
// disabled account loses access immediately, not at session expiry.
func (m *Middleware) SessionCookie(cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(cookieName)
		if id == "" {
			return ErrUnauthorized()
		}

		sess, err := m.sessions.Validate(c.UserContext(), id)
		if err != nil {
			return err
		}

		profile, err := m.profiles.Get(c.UserContext(), sess.AccountID)
		if err != nil {
			return ErrUnauthorized()
		}
		if profile.IsDisabled() {
			return identity.ErrAccountDisabled()
		}

		c.Locals(kernel.AuthContextKey, &kernel.AuthContext{
			AccountID: profile.ID,
			Role:      profile.Role,
			OrgID:     profile.OrgID,
			BranchID:  profile.BranchID,
			Email:     profile.Email,
			Name:      profile.DisplayName,
			Scopes:    identity.ScopesFor(profile.Role),
		})
		return c.Next()
	}
}

// BearerOrCookie authenticates with a bearer token when the Authorization
// header is present, otherwise with the named session cookie. Used on
// endpoints shared by owners (JWT) and branch managers (cookie).
func (m *Middleware) BearerOrCookie(cookieName string) fiber.Handler {
	bearer := m.Bearer()
	cookie := m.SessionCookie(cookieName)
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") != "" {
			return bearer(c)
		}
		return cookie(c)
	}
}

// RequireRole rejects authenticated requests whose role is not in roles.
// Platform admins always pass.
func (m *Middleware) RequireRole(roles ...kernel.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac := FromCtx(c)
		if ac == nil {
			return ErrUnauthorized()
		}
		if ac.IsAdmin() {
			return c.Next()
		}
		for _, role := range roles {
			if ac.Role == role {
				return c.Next()
			}
		}
		return ErrForbidden().WithDetail("role", ac.Role.String())
	}
}

// FromCtx returns the auth context injected by the middleware, or nil.
func FromCtx(c *fiber.Ctx) *kernel.AuthContext {
	ac, _ := c.Locals(kernel.AuthContextKey).(*kernel.AuthContext)
	return ac
}
