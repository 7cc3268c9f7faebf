package channels

import (
	"context"
	"time"

	"github.com/velora-labs/conversa/pkg/kernel"
)

// Direction sentido de un mensaje registrado
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Message registro de un mensaje que pasó por el canal, enlazado a la
// ejecución que lo produjo o consumió.
type Message struct {
	ID          kernel.MessageID   `db:"id" json:"id"`
	ExecutionID kernel.ExecutionID `db:"execution_id" json:"execution_id"`
	Direction   Direction          `db:"direction" json:"direction"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// MessageLog persistencia del registro de mensajes
type MessageLog interface {
	Save(ctx context.Context, msg Message) error
}

// GatewayConfig conexión con la pasarela de mensajería saliente
type GatewayConfig struct {
	BaseURL string         `json:"base_url"`
	Token   string         `json:"token"`
	Extra   map[string]any `json:"extra,omitempty"`
}
