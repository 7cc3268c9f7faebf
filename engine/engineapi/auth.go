package engineapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/velora-labs/conversa/iam/tenant/tenantsrv"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// AuthHandler intercambia credenciales de tenant por un token de acceso
type AuthHandler struct {
	tenants  *tenantsrv.Service
	auth     *TenantAuth
	tokenTTL time.Duration
}

func NewAuthHandler(tenants *tenantsrv.Service, auth *TenantAuth, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		tenants:  tenants,
		auth:     auth,
		tokenTTL: tokenTTL,
	}
}

type issueTokenRequest struct {
	TenantID string `json:"tenant_id"`
	APIKey   string `json:"api_key"`
}

// IssueToken valida la clave de API del tenant y emite un JWT
// POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req issueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.TenantID == "" || req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tenant_id and api_key are required"})
	}

	t, err := h.tenants.Authenticate(c.Context(), kernel.NewTenantID(req.TenantID), req.APIKey)
	if err != nil {
		return respondError(c, err)
	}

	token, err := h.auth.GenerateToken(t.ID, h.tokenTTL)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(h.tokenTTL.Seconds()),
	})
}

// AuthRoutes registra las rutas públicas de autenticación
type AuthRoutes struct {
	handler *AuthHandler
}

func NewAuthRoutes(handler *AuthHandler) *AuthRoutes {
	return &AuthRoutes{handler: handler}
}

func (r *AuthRoutes) RegisterRoutes(app *fiber.App) {
	auth := app.Group("/api/v1/auth")

	auth.Post("/token", r.handler.IssueToken)
}
