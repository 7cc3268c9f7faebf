package tenant

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// ============================================================================
// Tenant Entity
// ============================================================================

// TenantStatus define los posibles estados de un tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
)

// Tenant representa una empresa dueña de flujos y ejecuciones. La clave de
// API se guarda hasheada; nunca sale en JSON.
type Tenant struct {
	ID         kernel.TenantID `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Status     TenantStatus    `db:"status" json:"status"`
	APIKeyHash string          `db:"api_key_hash" json:"-"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// IsActive verifica si el tenant está activo
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Suspend suspende el tenant
func (t *Tenant) Suspend() {
	t.Status = TenantStatusSuspended
	t.UpdatedAt = time.Now()
}

// Activate activa el tenant
func (t *Tenant) Activate() {
	t.Status = TenantStatusActive
	t.UpdatedAt = time.Now()
}

// ============================================================================
// Errors
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeTenantNotFound     = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Empresa no encontrada")
	CodeTenantSuspended    = ErrRegistry.Register("SUSPENDED", errx.TypeBusiness, http.StatusForbidden, "Empresa suspendida")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Credenciales inválidas")
)

func ErrTenantNotFound() *errx.Error     { return ErrRegistry.New(CodeTenantNotFound) }
func ErrTenantSuspended() *errx.Error    { return ErrRegistry.New(CodeTenantSuspended) }
func ErrInvalidCredentials() *errx.Error { return ErrRegistry.New(CodeInvalidCredentials) }
