package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// PostgresFlowRepository lectura de definiciones de flujo. El runtime solo
// lee: el CRUD del editor vive en otro servicio sobre las mismas tablas.
type PostgresFlowRepository struct {
	db *sqlx.DB
}

var _ engine.FlowRepository = (*PostgresFlowRepository)(nil)

func NewPostgresFlowRepository(db *sqlx.DB) *PostgresFlowRepository {
	return &PostgresFlowRepository{db: db}
}

type dbFlow struct {
	ID        string          `db:"id"`
	TenantID  string          `db:"tenant_id"`
	Name      string          `db:"name"`
	Nodes     json.RawMessage `db:"nodes"`
	Edges     json.RawMessage `db:"edges"`
	IsActive  bool            `db:"is_active"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toDomainFlow(dbF *dbFlow) (*engine.Flow, error) {
	var nodes []engine.FlowNode
	if len(dbF.Nodes) > 0 && string(dbF.Nodes) != "null" {
		if err := json.Unmarshal(dbF.Nodes, &nodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow nodes: %w", err)
		}
	}

	var edges []engine.FlowEdge
	if len(dbF.Edges) > 0 && string(dbF.Edges) != "null" {
		if err := json.Unmarshal(dbF.Edges, &edges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow edges: %w", err)
		}
	}

	return &engine.Flow{
		ID:        kernel.FlowID(dbF.ID),
		TenantID:  kernel.TenantID(dbF.TenantID),
		Name:      dbF.Name,
		Nodes:     nodes,
		Edges:     edges,
		IsActive:  dbF.IsActive,
		CreatedAt: dbF.CreatedAt,
		UpdatedAt: dbF.UpdatedAt,
	}, nil
}

func (r *PostgresFlowRepository) FindByID(ctx context.Context, id kernel.FlowID, tenantID kernel.TenantID) (*engine.Flow, error) {
	query := `
		SELECT id, tenant_id, name, nodes, edges, is_active, created_at, updated_at
		FROM flows
		WHERE id = $1 AND tenant_id = $2`

	var dbF dbFlow
	err := r.db.GetContext(ctx, &dbF, query, id.String(), tenantID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find flow by id", errx.TypeInternal).
			WithDetail("flow_id", id.String()).
			WithDetail("tenant_id", tenantID.String())
	}

	return toDomainFlow(&dbF)
}
