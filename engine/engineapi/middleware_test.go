package engineapi

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/kernel"
)

func newAuthApp(t *testing.T) (*fiber.App, *TenantAuth, *kernel.TenantID, *kernel.TenantID) {
	t.Helper()
	auth := NewTenantAuth(config.AuthConfig{JWTSecret: "secreto-de-prueba", Issuer: "conversa"})

	var fromLocals, fromContext kernel.TenantID
	app := fiber.New()
	app.Get("/probe", auth.Authenticate(), func(c *fiber.Ctx) error {
		fromLocals, _ = GetTenant(c)
		fromContext, _ = kernel.TenantFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})
	return app, auth, &fromLocals, &fromContext
}

// El tenant autenticado queda tanto en Locals como en el context.Context de
// la petición: las capas que no ven fiber lo leen por kernel.TenantFromContext.
func TestAuthenticate_PropagatesTenant(t *testing.T) {
	app, auth, fromLocals, fromContext := newAuthApp(t)

	token, err := auth.GenerateToken(kernel.NewTenantID("tenant-42"), time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, kernel.NewTenantID("tenant-42"), *fromLocals)
	assert.Equal(t, kernel.NewTenantID("tenant-42"), *fromContext)
}

func TestAuthenticate_RejectsBadTokens(t *testing.T) {
	app, _, _, _ := newAuthApp(t)
	other := NewTenantAuth(config.AuthConfig{JWTSecret: "otro-secreto", Issuer: "conversa"})
	foreign, err := other.GenerateToken(kernel.NewTenantID("tenant-42"), time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"sin cabecera", ""},
		{"esquema incorrecto", "Basic abc"},
		{"token basura", "Bearer no-es-un-jwt"},
		{"firmado con otro secreto", "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/probe", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
