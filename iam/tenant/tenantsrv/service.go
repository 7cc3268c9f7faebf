package tenantsrv

import (
	"context"
	"log"
	"time"

	"github.com/velora-labs/conversa/iam/tenant"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// Service orquesta la autenticación de tenants
type Service struct {
	tenants tenant.TenantRepository
	hasher  tenant.CredentialHasher
}

// NewService crea una nueva instancia del servicio de tenants
func NewService(tenants tenant.TenantRepository, hasher tenant.CredentialHasher) *Service {
	return &Service{
		tenants: tenants,
		hasher:  hasher,
	}
}

// Authenticate valida las credenciales y retorna el tenant si la clave de API
// coincide con el hash almacenado
func (s *Service) Authenticate(ctx context.Context, id kernel.TenantID, apiKey string) (*tenant.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(t.APIKeyHash, apiKey) {
		log.Printf("⚠️ Invalid API key for tenant %s", id.String())
		return nil, tenant.ErrInvalidCredentials().WithDetail("tenant_id", id.String())
	}

	if !t.IsActive() {
		return nil, tenant.ErrTenantSuspended().WithDetail("tenant_id", id.String())
	}

	return t, nil
}

// RotateAPIKey genera el hash de una nueva clave y la persiste
func (s *Service) RotateAPIKey(ctx context.Context, id kernel.TenantID, newKey string) error {
	t, err := s.tenants.FindByID(ctx, id)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newKey)
	if err != nil {
		return err
	}

	t.APIKeyHash = hash
	t.UpdatedAt = time.Now()
	return s.tenants.Save(ctx, *t)
}
