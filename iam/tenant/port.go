package tenant

import (
	"context"

	"github.com/velora-labs/conversa/pkg/kernel"
)

// TenantRepository define el contrato para la persistencia de tenants
type TenantRepository interface {
	FindByID(ctx context.Context, id kernel.TenantID) (*Tenant, error)
	Save(ctx context.Context, t Tenant) error
}

// CredentialHasher define el contrato para hashear y verificar claves de API
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}
