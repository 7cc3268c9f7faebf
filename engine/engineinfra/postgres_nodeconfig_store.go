package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// PostgresNodeConfigStore configuración persistida por nodo. Soft schema: la
// ausencia de registro no es un error, el runtime cae a la config inline.
type PostgresNodeConfigStore struct {
	db *sqlx.DB
}

var _ engine.NodeConfigStore = (*PostgresNodeConfigStore)(nil)

func NewPostgresNodeConfigStore(db *sqlx.DB) *PostgresNodeConfigStore {
	return &PostgresNodeConfigStore{db: db}
}

func (s *PostgresNodeConfigStore) FindNodeConfig(ctx context.Context, nodeID string, tenantID kernel.TenantID) (map[string]any, error) {
	query := `
		SELECT config
		FROM node_configs
		WHERE node_id = $1 AND tenant_id = $2`

	var raw json.RawMessage
	err := s.db.GetContext(ctx, &raw, query, nodeID, tenantID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find node config", errx.TypeInternal).
			WithDetail("node_id", nodeID).
			WithDetail("tenant_id", tenantID.String())
	}

	var config map[string]any
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal node config", errx.TypeInternal).
			WithDetail("node_id", nodeID)
	}

	return config, nil
}
