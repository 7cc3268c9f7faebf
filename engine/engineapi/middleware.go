package engineapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// TenantClaims claims del token de tenant que emite el panel
type TenantClaims struct {
	TenantID kernel.TenantID `json:"tenant_id"`
	jwt.RegisteredClaims
}

// TenantAuth middleware que valida el token de tenant y lo deja en Locals
type TenantAuth struct {
	secretKey []byte
	issuer    string
}

func NewTenantAuth(cfg config.AuthConfig) *TenantAuth {
	return &TenantAuth{
		secretKey: []byte(cfg.JWTSecret),
		issuer:    cfg.Issuer,
	}
}

// GenerateToken emite un token de tenant, usado por el panel y las pruebas
func (ta *TenantAuth) GenerateToken(tenantID kernel.TenantID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ta.issuer,
			Subject:   tenantID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ta.secretKey)
}

// Authenticate valida el token Bearer y agrega el tenant al contexto
func (ta *TenantAuth) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or malformed bearer token",
			})
		}

		token, err := jwt.ParseWithClaims(parts[1], &TenantClaims{}, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ta.secretKey, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		claims, ok := token.Claims.(*TenantClaims)
		if !ok || claims.TenantID.IsEmpty() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token has no tenant",
			})
		}

		c.Locals("tenant", claims.TenantID)
		// También en el context.Context: las capas de servicio y los
		// consumidores no-HTTP lo leen por kernel.TenantFromContext
		c.SetUserContext(kernel.WithTenant(c.UserContext(), claims.TenantID))
		return c.Next()
	}
}

// GetTenant extrae el tenant autenticado del contexto de Fiber
func GetTenant(c *fiber.Ctx) (kernel.TenantID, bool) {
	if tenantID, ok := c.Locals("tenant").(kernel.TenantID); ok {
		return tenantID, true
	}
	return kernel.TenantFromContext(c.UserContext())
}
