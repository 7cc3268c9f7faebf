package tenantinfra

import (
	"context"
	"database/sql"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"
	"github.com/velora-labs/conversa/iam/tenant"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// PostgresTenantRepository implementación de PostgreSQL para TenantRepository
type PostgresTenantRepository struct {
	db *sqlx.DB
}

// NewPostgresTenantRepository crea una nueva instancia del repositorio de tenants
func NewPostgresTenantRepository(db *sqlx.DB) tenant.TenantRepository {
	return &PostgresTenantRepository{
		db: db,
	}
}

// FindByID busca un tenant por ID
func (r *PostgresTenantRepository) FindByID(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	query := `
		SELECT id, name, status, api_key_hash, created_at, updated_at
		FROM tenants
		WHERE id = $1`

	var t tenant.Tenant
	err := r.db.GetContext(ctx, &t, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("tenant_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find tenant by id", errx.TypeInternal).
			WithDetail("tenant_id", id.String())
	}

	return &t, nil
}

// Save inserta o actualiza un tenant
func (r *PostgresTenantRepository) Save(ctx context.Context, t tenant.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, status, api_key_hash, created_at, updated_at)
		VALUES (:id, :name, :status, :api_key_hash, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			api_key_hash = EXCLUDED.api_key_hash,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, t); err != nil {
		return errx.Wrap(err, "failed to save tenant", errx.TypeInternal).
			WithDetail("tenant_id", t.ID.String())
	}

	return nil
}

var _ tenant.TenantRepository = (*PostgresTenantRepository)(nil)
