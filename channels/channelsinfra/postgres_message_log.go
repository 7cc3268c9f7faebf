package channelsinfra

import (
	"context"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/jmoiron/sqlx"
	"github.com/velora-labs/conversa/channels"
)

// PostgresMessageLog registro de mensajes del canal
type PostgresMessageLog struct {
	db *sqlx.DB
}

var _ channels.MessageLog = (*PostgresMessageLog)(nil)

func NewPostgresMessageLog(db *sqlx.DB) *PostgresMessageLog {
	return &PostgresMessageLog{db: db}
}

func (l *PostgresMessageLog) Save(ctx context.Context, msg channels.Message) error {
	query := `
		INSERT INTO channel_messages (id, execution_id, direction, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	_, err := l.db.ExecContext(ctx, query,
		msg.ID.String(), msg.ExecutionID.String(), string(msg.Direction), msg.CreatedAt)
	if err != nil {
		return errx.Wrap(err, "failed to save channel message", errx.TypeInternal).
			WithDetail("message_id", msg.ID.String())
	}
	return nil
}
