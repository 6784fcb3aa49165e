package gateway

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tillgate/tillgate/pkg/authx"
	"github.com/tillgate/tillgate/pkg/kernel"
	"github.com/tillgate/tillgate/pkg/tenant/tenantsrv"
)

// AdminHandler is the tenant-administration surface: organizations, branches,
// branch managers and cashiers. Owners and platform admins reach it with
// bearer tokens; branch managers reach the cashier endpoints with their
// session cookie.
type AdminHandler struct {
	tenants *tenantsrv.Service
}

func NewAdminHandler(tenants *tenantsrv.Service) *AdminHandler {
	return &AdminHandler{tenants: tenants}
}

// RegisterRoutes mounts the admin endpoints under /api/v1. The cashier
// endpoints take staffAuth so a signed-in manager can administer their own
// branch; everything else is bearer-only.
func (h *AdminHandler) RegisterRoutes(app fiber.Router, bearer, staffAuth fiber.Handler) {
	v1 := app.Group("/api/v1")

	v1.Post("/orgs", bearer, h.CreateOrganization)
	v1.Get("/orgs/:orgID", bearer, h.GetOrganization)
	v1.Get("/orgs/:orgID/branches", bearer, h.ListBranches)
	v1.Post("/orgs/:orgID/branches", bearer, h.CreateBranch)
	v1.Delete("/orgs/:orgID/branches/:branchID", bearer, h.DeleteBranch)
	v1.Put("/orgs/:orgID/branches/:branchID/manager", bearer, h.UpsertManager)
	v1.Post("/orgs/:orgID/branches/:branchID/cashiers", staffAuth, h.CreateCashier)
	v1.Delete("/orgs/:orgID/branches/:branchID/cashiers/:accountID", staffAuth, h.DeleteCashier)
}

type createOrgRequest struct {
	Name string `json:"name"`
}

// CreateOrganization creates an organization owned by the calling identity.
func (h *AdminHandler) CreateOrganization(c *fiber.Ctx) error {
	var req createOrgRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}

	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	org, err := h.tenants.CreateOrganization(c.UserContext(), tenantsrv.CreateOrganizationParams{
		Name:       req.Name,
		OwnerID:    ac.AccountID,
		OwnerName:  ac.Name,
		OwnerEmail: ac.Email,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(org)
}

func (h *AdminHandler) GetOrganization(c *fiber.Ctx) error {
	org, err := h.tenants.GetOrganization(c.UserContext(), kernel.NewOrgID(c.Params("orgID")))
	if err != nil {
		return err
	}
	return c.JSON(org)
}

func (h *AdminHandler) ListBranches(c *fiber.Ctx) error {
	branches, err := h.tenants.ListBranches(c.UserContext(), kernel.NewOrgID(c.Params("orgID")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"branches": branches})
}

type createBranchRequest struct {
	Name string `json:"name"`
}

func (h *AdminHandler) CreateBranch(c *fiber.Ctx) error {
	var req createBranchRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}

	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	branch, err := h.tenants.CreateBranch(c.UserContext(), kernel.NewOrgID(c.Params("orgID")), req.Name, ac.AccountID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(branch)
}

func (h *AdminHandler) DeleteBranch(c *fiber.Ctx) error {
	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	err := h.tenants.DeleteBranch(c.UserContext(),
		kernel.NewOrgID(c.Params("orgID")),
		kernel.NewBranchID(c.Params("branchID")),
		ac.AccountID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true})
}

type upsertManagerRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	PIN         string `json:"pin,omitempty"`
}

// UpsertManager fills or replaces the branch's manager slot. With a PIN the
// account is usable immediately; with only an email the manager is invited to
// choose their own PIN.
func (h *AdminHandler) UpsertManager(c *fiber.Ctx) error {
	var req upsertManagerRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	if req.PIN != "" {
		if err := validatePIN(req.PIN); err != nil {
			return err
		}
	}

	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	profile, err := h.tenants.UpsertBranchManager(c.UserContext(),
		kernel.NewOrgID(c.Params("orgID")),
		kernel.NewBranchID(c.Params("branchID")),
		ac.AccountID, req.DisplayName, req.Email, req.PIN)
	if err != nil {
		return err
	}

	return c.JSON(profile)
}

type createCashierRequest struct {
	DisplayName string `json:"display_name"`
	PIN         string `json:"pin"`
}

func (h *AdminHandler) CreateCashier(c *fiber.Ctx) error {
	var req createCashierRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPayload().WithDetail("error", err.Error())
	}
	if err := validatePIN(req.PIN); err != nil {
		return err
	}

	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	profile, err := h.tenants.CreateCashier(c.UserContext(),
		kernel.NewOrgID(c.Params("orgID")),
		kernel.NewBranchID(c.Params("branchID")),
		ac.Role, ac.Refs(), req.DisplayName, req.PIN)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(profile)
}

func (h *AdminHandler) DeleteCashier(c *fiber.Ctx) error {
	ac := authx.FromCtx(c)
	if ac == nil {
		return authx.ErrUnauthorized()
	}

	err := h.tenants.DeleteCashier(c.UserContext(),
		kernel.NewOrgID(c.Params("orgID")),
		kernel.NewBranchID(c.Params("branchID")),
		kernel.NewAccountID(c.Params("accountID")),
		ac.Role, ac.Refs())
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"ok": true})
}
