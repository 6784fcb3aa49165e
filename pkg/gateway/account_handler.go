package gateway

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tillgate/tillgate/pkg/authx"
	"github.com/tillgate/tillgate/pkg/identity/identitysrv"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/session"
	"github.com/tillgate/tillgate/pkg/session/sessionsrv"
)

// AccountHandler is the HTTP boundary for roles that sign in with a PIN
// instead of a native identity-provider login.
type AccountHandler struct {
	provisioner *identitysrv.Provisioner
	sessions    *sessionsrv.Manager
	cookies     CookieConfig
}

func NewAccountHandler(provisioner *identitysrv.Provisioner, sessions *sessionsrv.Manager, cookies CookieConfig) *AccountHandler {
	return &AccountHandler{
		provisioner: provisioner,
		sessions:    sessions,
		cookies:     cookies,
	}
}

// RegisterRoutes mounts the account endpoints. Invite provisioning requires
// an authenticated owner/admin; the credential and session endpoints are
// reached before any identity exists, so they stay public.
func (h *AccountHandler) RegisterRoutes(app fiber.Router, bearer fiber.Handler) {
	app.Post("/invite", bearer, h.Invite)
	app.Post("/check-exists", h.CheckExists)
	app.Post("/set-credential", h.SetCredential)
	app.Post("/signin", h.SignIn)
	app.Post("/reset-password", h.ResetPassword)
	app.Post("/signout", h.SignOut)
}

type inviteRequest struct {
	Role     string `json:"role"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	OrgID    string `json:"org_id,omitempty"`
	BranchID string `json:"branch_id,omitempty"`
}

// Invite provisions a deferred-credential account and triggers the setup
// email. The tenant scope defaults to the calling owner's organization.
func (h *AccountHandler) Invite(c *fiber.Ctx) error {
	var req inviteRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	if req.Email == "" {
		return ErrInvalidPayload().WithDetail("field", "email")
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	// A caller can never mint an identity with broader scope than its own:
	// only platform admins may invite another admin, and owner accounts come
	// from the identity provider, not a PIN invite.
	switch role {
	case kernel.RoleManager, kernel.RoleStaff:
	case kernel.RoleAdmin:
		if !ac.IsAdmin() {
			return authx.ErrForbidden().WithDetail("role", role.String())
		}
	case kernel.RoleCashier:
		// Cashiers always receive an inline PIN through the admin surface.
		return ErrInvalidPayload().WithDetail("role", req.Role)
	default:
		return authx.ErrForbidden().WithDetail("role", role.String())
	}

	refs := ac.Refs()
	if ac.IsAdmin() && req.OrgID != "" {
		refs = kernel.TenantRefs{
			OrgID:    kernel.NewOrgID(req.OrgID),
			BranchID: kernel.NewBranchID(req.BranchID),
		}
	}

	if _, err := h.provisioner.ProvisionDeferred(c.UserContext(), identitysrv.ProvisionParams{
		Role:        role,
		Refs:        refs,
		DisplayName: req.Name,
		Email:       req.Email,
	}); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true})
}

type checkExistsRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

// CheckExists reports whether an account exists for the role and email.
func (h *AccountHandler) CheckExists(c *fiber.Ctx) error {
	var req checkExistsRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	exists, err := h.provisioner.CheckExists(c.UserContext(), role, req.Email)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true, "exists": exists})
}

type setCredentialRequest struct {
	Role   string `json:"role"`
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// SetCredential consumes an invite token and stores the chosen PIN.
func (h *AccountHandler) SetCredential(c *fiber.Ctx) error {
	var req setCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	if req.Token == "" {
		return ErrInvalidPayload().WithDetail("field", "token")
	}
	if err := validatePIN(req.Secret); err != nil {
		return err
	}

	if _, err := h.provisioner.ActivateFromInvite(c.UserContext(), req.Token, req.Secret); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true})
}

type signInRequest struct {
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Secret     string `json:"secret"`
}

// SignIn verifies the credential and sets the role's HTTP-only session
// cookie.
func (h *AccountHandler) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Secret == "" {
		return ErrInvalidPayload().WithDetail("field", "identifier")
	}

	profile, err := h.provisioner.Authenticate(c.UserContext(), role, identifier, req.Secret)
	if err != nil {
		return err
	}

	sess, err := h.sessions.Create(c.UserContext(), profile.ID, profile.Role)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookies.Name(role),
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(session.TTL.Seconds()),
		HTTPOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(fiber.Map{"ok": true})
}

type resetPasswordRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

// ResetPassword issues a fresh short-lived invite. The response is identical
// for known and unknown accounts so callers cannot probe for existence.
func (h *AccountHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	if err := h.provisioner.RequestReset(c.UserContext(), role, req.Email); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true})
}

type signOutRequest struct {
	Role string `json:"role"`
}

// SignOut destroys the caller's session and clears the cookie. Signing out
// with no live session still succeeds.
func (h *AccountHandler) SignOut(c *fiber.Ctx) error {
	var req signOutRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	cookieName := h.cookies.Name(role)
	if id := c.Cookies(cookieName); id != "" {
		if err := h.sessions.Destroy(c.UserContext(), id); err != nil {
			return err
		}
	}
	c.ClearCookie(cookieName)

	return c.JSON(fiber.Map{"ok": true})
}
