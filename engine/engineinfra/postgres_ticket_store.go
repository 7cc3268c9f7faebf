package engineinfra

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// PostgresTicketStore colaborador de tickets y contactos del sistema de
// atención. El runtime solo toca las columnas de automatización.
type PostgresTicketStore struct {
	db *sqlx.DB
}

var _ engine.TicketStore = (*PostgresTicketStore)(nil)

func NewPostgresTicketStore(db *sqlx.DB) *PostgresTicketStore {
	return &PostgresTicketStore{db: db}
}

// ticketColumns columnas que el runtime puede escribir vía UpdateTicket
var ticketColumns = map[string]bool{
	"status":           true,
	"queue_id":         true,
	"chatbot_active":   true,
	"appointment_mode": true,
}

func (s *PostgresTicketStore) FindTicket(ctx context.Context, id kernel.TicketID) (*engine.Ticket, error) {
	query := `
		SELECT id, tenant_id, contact_id, queue_id, status, chatbot_active, updated_at
		FROM tickets
		WHERE id = $1`

	var ticket engine.Ticket
	err := s.db.GetContext(ctx, &ticket, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find ticket", errx.TypeInternal).
			WithDetail("ticket_id", id.String())
	}

	return &ticket, nil
}

func (s *PostgresTicketStore) FindContact(ctx context.Context, id kernel.ContactID) (*engine.Contact, error) {
	query := `
		SELECT id, tenant_id, name, address
		FROM contacts
		WHERE id = $1`

	var contact engine.Contact
	err := s.db.GetContext(ctx, &contact, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find contact", errx.TypeInternal).
			WithDetail("contact_id", id.String())
	}

	return &contact, nil
}

// UpdateTicket escribe un conjunto dinámico de columnas permitidas. Campos
// fuera de la lista blanca se rechazan.
func (s *PostgresTicketStore) UpdateTicket(ctx context.Context, id kernel.TicketID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var sets []string
	var args []any
	argPos := 1

	for column, value := range fields {
		if !ticketColumns[column] {
			return engine.ErrConfiguration().
				WithDetail("ticket_id", id.String()).
				WithDetail("reason", "ticket column not writable: "+column)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	query := fmt.Sprintf(
		"UPDATE tickets SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), argPos)
	args = append(args, id.String())

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errx.Wrap(err, "failed to update ticket", errx.TypeInternal).
			WithDetail("ticket_id", id.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return engine.ErrAdapter().
			WithDetail("ticket_id", id.String()).
			WithDetail("reason", "ticket not found")
	}

	return nil
}

func (s *PostgresTicketStore) FindOrCreateTracking(ctx context.Context, ticketID kernel.TicketID) error {
	query := `
		INSERT INTO ticket_tracking (ticket_id, started_at)
		VALUES ($1, NOW())
		ON CONFLICT (ticket_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, ticketID.String())
	if err != nil {
		return errx.Wrap(err, "failed to create ticket tracking", errx.TypeInternal).
			WithDetail("ticket_id", ticketID.String())
	}
	return nil
}

func (s *PostgresTicketStore) AssignQueue(ctx context.Context, ticketID kernel.TicketID, queueID kernel.QueueID) error {
	query := `UPDATE tickets SET queue_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, ticketID.String(), queueID.String())
	if err != nil {
		return errx.Wrap(err, "failed to assign queue", errx.TypeInternal).
			WithDetail("ticket_id", ticketID.String()).
			WithDetail("queue_id", queueID.String())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return engine.ErrAdapter().
			WithDetail("ticket_id", ticketID.String()).
			WithDetail("reason", "ticket not found")
	}

	return nil
}

func (s *PostgresTicketStore) AttachTag(ctx context.Context, contactID kernel.ContactID, tag string) error {
	query := `
		INSERT INTO contact_tags (contact_id, tag, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (contact_id, tag) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, contactID.String(), tag)
	if err != nil {
		return errx.Wrap(err, "failed to attach tag", errx.TypeInternal).
			WithDetail("contact_id", contactID.String()).
			WithDetail("tag", tag)
	}
	return nil
}

func (s *PostgresTicketStore) AddNote(ctx context.Context, ticketID kernel.TicketID, body string) error {
	query := `
		INSERT INTO ticket_notes (ticket_id, body, created_at)
		VALUES ($1, $2, NOW())`

	_, err := s.db.ExecContext(ctx, query, ticketID.String(), body)
	if err != nil {
		return errx.Wrap(err, "failed to add ticket note", errx.TypeInternal).
			WithDetail("ticket_id", ticketID.String())
	}
	return nil
}
