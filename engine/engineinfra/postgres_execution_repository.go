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

type PostgresExecutionRepository struct {
	db *sqlx.DB
}

var _ engine.ExecutionRepository = (*PostgresExecutionRepository)(nil)

func NewPostgresExecutionRepository(db *sqlx.DB) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{db: db}
}

// dbExecution is an intermediate struct for database operations
type dbExecution struct {
	ID                string          `db:"id"`
	FlowID            string          `db:"flow_id"`
	TenantID          string          `db:"tenant_id"`
	ContactID         string          `db:"contact_id"`
	TicketID          string          `db:"ticket_id"`
	CurrentNodeID     string          `db:"current_node_id"`
	Status            string          `db:"status"`
	Variables         json.RawMessage `db:"variables"`
	Runtime           json.RawMessage `db:"runtime"`
	Inactivity        json.RawMessage `db:"inactivity"`
	LastInteractionAt time.Time       `db:"last_interaction_at"`
	Version           int64           `db:"version"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func toDBExecution(exec *engine.Execution) (*dbExecution, error) {
	variablesJSON := []byte("{}")
	if len(exec.Variables) > 0 {
		var err error
		variablesJSON, err = json.Marshal(exec.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal variables: %w", err)
		}
	}

	runtimeJSON, err := json.Marshal(exec.Runtime)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal runtime state: %w", err)
	}

	inactivityJSON, err := json.Marshal(exec.Inactivity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inactivity state: %w", err)
	}

	return &dbExecution{
		ID:                exec.ID.String(),
		FlowID:            exec.FlowID.String(),
		TenantID:          exec.TenantID.String(),
		ContactID:         exec.ContactID.String(),
		TicketID:          exec.TicketID.String(),
		CurrentNodeID:     exec.CurrentNodeID,
		Status:            string(exec.Status),
		Variables:         variablesJSON,
		Runtime:           runtimeJSON,
		Inactivity:        inactivityJSON,
		LastInteractionAt: exec.LastInteractionAt,
		Version:           exec.Version,
		CreatedAt:         exec.CreatedAt,
		UpdatedAt:         exec.UpdatedAt,
	}, nil
}

func toDomainExecution(dbExec *dbExecution) (*engine.Execution, error) {
	var variables map[string]any
	if len(dbExec.Variables) > 0 && string(dbExec.Variables) != "null" {
		if err := json.Unmarshal(dbExec.Variables, &variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	var runtime engine.RuntimeState
	if len(dbExec.Runtime) > 0 && string(dbExec.Runtime) != "null" {
		if err := json.Unmarshal(dbExec.Runtime, &runtime); err != nil {
			return nil, fmt.Errorf("failed to unmarshal runtime state: %w", err)
		}
	}

	var inactivity engine.InactivityState
	if len(dbExec.Inactivity) > 0 && string(dbExec.Inactivity) != "null" {
		if err := json.Unmarshal(dbExec.Inactivity, &inactivity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inactivity state: %w", err)
		}
	}

	return &engine.Execution{
		ID:                kernel.ExecutionID(dbExec.ID),
		FlowID:            kernel.FlowID(dbExec.FlowID),
		TenantID:          kernel.TenantID(dbExec.TenantID),
		ContactID:         kernel.ContactID(dbExec.ContactID),
		TicketID:          kernel.TicketID(dbExec.TicketID),
		CurrentNodeID:     dbExec.CurrentNodeID,
		Status:            engine.ExecutionStatus(dbExec.Status),
		Variables:         variables,
		Runtime:           runtime,
		Inactivity:        inactivity,
		LastInteractionAt: dbExec.LastInteractionAt,
		Version:           dbExec.Version,
		CreatedAt:         dbExec.CreatedAt,
		UpdatedAt:         dbExec.UpdatedAt,
	}, nil
}

func (r *PostgresExecutionRepository) Create(ctx context.Context, exec *engine.Execution) error {
	dbExec, err := toDBExecution(exec)
	if err != nil {
		return errx.Wrap(err, "failed to convert execution", errx.TypeInternal).
			WithDetail("execution_id", exec.ID.String())
	}

	query := `
		INSERT INTO executions (
			id, flow_id, tenant_id, contact_id, ticket_id, current_node_id,
			status, variables, runtime, inactivity, last_interaction_at,
			version, created_at, updated_at
		) VALUES (
			:id, :flow_id, :tenant_id, :contact_id, :ticket_id, :current_node_id,
			:status, :variables, :runtime, :inactivity, :last_interaction_at,
			:version, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbExec)
	if err != nil {
		return errx.Wrap(err, "failed to create execution", errx.TypeInternal).
			WithDetail("execution_id", exec.ID.String())
	}

	return nil
}

// Update escribe con compare-and-swap sobre la columna version: si la fila
// cambió desde la lectura no se pisa nada y el llamador re-lee.
func (r *PostgresExecutionRepository) Update(ctx context.Context, exec *engine.Execution) error {
	dbExec, err := toDBExecution(exec)
	if err != nil {
		return errx.Wrap(err, "failed to convert execution", errx.TypeInternal).
			WithDetail("execution_id", exec.ID.String())
	}

	query := `
		UPDATE executions SET
			current_node_id = :current_node_id,
			status = :status,
			variables = :variables,
			runtime = :runtime,
			inactivity = :inactivity,
			last_interaction_at = :last_interaction_at,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, dbExec)
	if err != nil {
		return errx.Wrap(err, "failed to update execution", errx.TypeInternal).
			WithDetail("execution_id", exec.ID.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		exists, eerr := r.executionExists(ctx, exec.ID.String())
		if eerr != nil {
			return eerr
		}
		if !exists {
			return engine.ErrExecutionNotFound().WithDetail("execution_id", exec.ID.String())
		}
		return engine.ErrVersionConflict().
			WithDetail("execution_id", exec.ID.String()).
			WithDetail("version", exec.Version)
	}

	exec.Version++
	return nil
}

func (r *PostgresExecutionRepository) FindByID(ctx context.Context, id kernel.ExecutionID) (*engine.Execution, error) {
	query := selectExecution + ` WHERE id = $1`

	var dbExec dbExecution
	err := r.db.GetContext(ctx, &dbExec, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find execution by id", errx.TypeInternal).
			WithDetail("execution_id", id.String())
	}

	return toDomainExecution(&dbExec)
}

func (r *PostgresExecutionRepository) FindActiveByFlowAndContact(
	ctx context.Context,
	flowID kernel.FlowID,
	contactID kernel.ContactID,
) (*engine.Execution, error) {
	query := selectExecution + `
		WHERE flow_id = $1 AND contact_id = $2 AND status = 'ACTIVE'
		LIMIT 1`

	var dbExec dbExecution
	err := r.db.GetContext(ctx, &dbExec, query, flowID.String(), contactID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find active execution", errx.TypeInternal).
			WithDetail("flow_id", flowID.String()).
			WithDetail("contact_id", contactID.String())
	}

	return toDomainExecution(&dbExec)
}

func (r *PostgresExecutionRepository) FindActiveByContact(ctx context.Context, contactID kernel.ContactID) ([]*engine.Execution, error) {
	query := selectExecution + `
		WHERE contact_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at ASC`

	var dbExecs []dbExecution
	err := r.db.SelectContext(ctx, &dbExecs, query, contactID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to find active executions by contact", errx.TypeInternal).
			WithDetail("contact_id", contactID.String())
	}

	return toDomainExecutions(dbExecs)
}

func (r *PostgresExecutionRepository) ListActive(ctx context.Context) ([]*engine.Execution, error) {
	query := selectExecution + `
		WHERE status = 'ACTIVE'
		ORDER BY last_interaction_at ASC`

	var dbExecs []dbExecution
	err := r.db.SelectContext(ctx, &dbExecs, query)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list active executions", errx.TypeInternal)
	}

	return toDomainExecutions(dbExecs)
}

const selectExecution = `
	SELECT
		id, flow_id, tenant_id, contact_id, ticket_id, current_node_id,
		status, variables, runtime, inactivity, last_interaction_at,
		version, created_at, updated_at
	FROM executions`

func toDomainExecutions(dbExecs []dbExecution) ([]*engine.Execution, error) {
	result := make([]*engine.Execution, 0, len(dbExecs))
	for i := range dbExecs {
		exec, err := toDomainExecution(&dbExecs[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert execution", errx.TypeInternal)
		}
		result = append(result, exec)
	}
	return result, nil
}

func (r *PostgresExecutionRepository) executionExists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, id)
	if err != nil {
		return false, errx.Wrap(err, "failed to check execution existence", errx.TypeInternal)
	}

	return exists, nil
}
