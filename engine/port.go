package engine

import (
	"context"

	"github.com/velora-labs/conversa/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// ExecutionRepository persistencia de ejecuciones
type ExecutionRepository interface {
	Create(ctx context.Context, exec *Execution) error

	// Update aplica compare-and-swap sobre Version; retorna VERSION_CONFLICT
	// si la fila cambió desde la lectura.
	Update(ctx context.Context, exec *Execution) error

	FindByID(ctx context.Context, id kernel.ExecutionID) (*Execution, error)

	// FindActiveByFlowAndContact soporta el invariante de una sola ejecución
	// activa por par (flow, contact).
	FindActiveByFlowAndContact(ctx context.Context, flowID kernel.FlowID, contactID kernel.ContactID) (*Execution, error)

	// FindActiveByContact lista las ejecuciones activas del contacto, para la
	// cascada de finalización.
	FindActiveByContact(ctx context.Context, contactID kernel.ContactID) ([]*Execution, error)

	// ListActive retorna el conjunto activo completo para el barrido de
	// inactividad.
	ListActive(ctx context.Context) ([]*Execution, error)
}

// FlowRepository persistencia de definiciones de flujo (solo lectura para el
// runtime; el CRUD del editor vive fuera de este núcleo).
type FlowRepository interface {
	FindByID(ctx context.Context, id kernel.FlowID, tenantID kernel.TenantID) (*Flow, error)
}

// NodeConfigStore configuración persistida por nodo. La ausencia no es un
// error: el runtime cae a la configuración inline del nodo (soft schema).
type NodeConfigStore interface {
	FindNodeConfig(ctx context.Context, nodeID string, tenantID kernel.TenantID) (map[string]any, error)
}

// ============================================================================
// Collaborator Interfaces
// ============================================================================

// TicketStore colaborador de tickets y contactos
type TicketStore interface {
	FindTicket(ctx context.Context, id kernel.TicketID) (*Ticket, error)
	FindContact(ctx context.Context, id kernel.ContactID) (*Contact, error)
	UpdateTicket(ctx context.Context, id kernel.TicketID, fields map[string]any) error
	FindOrCreateTracking(ctx context.Context, ticketID kernel.TicketID) error
	AssignQueue(ctx context.Context, ticketID kernel.TicketID, queueID kernel.QueueID) error
	AttachTag(ctx context.Context, contactID kernel.ContactID, tag string) error
	AddNote(ctx context.Context, ticketID kernel.TicketID, body string) error
}

// MessageHandle identificador del mensaje enviado por el canal
type MessageHandle struct {
	ID kernel.MessageID `json:"id"`
}

// OutboundContent contenido a despachar por el canal
type OutboundContent struct {
	Type      string  `json:"type"` // text, image, audio, video, document, location
	Text      string  `json:"text,omitempty"`
	MediaURL  string  `json:"media_url,omitempty"`
	Caption   string  `json:"caption,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// ChannelAdapter cliente del canal de mensajería
type ChannelAdapter interface {
	Send(ctx context.Context, address string, content OutboundContent) (MessageHandle, error)
	RecordOutbound(ctx context.Context, handle MessageHandle, executionID kernel.ExecutionID) error
	RecordInbound(ctx context.Context, handle MessageHandle, executionID kernel.ExecutionID) error
}

// NotificationBus bus fire-and-forget para actualizaciones en vivo de la UI.
// El runtime nunca espera su resultado.
type NotificationBus interface {
	Publish(ctx context.Context, tenantChannel string, event any) error
}
