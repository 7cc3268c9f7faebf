package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/velora-labs/conversa/pkg/kernel"
)

// ============================================================================
// Flow Entity
// ============================================================================

// Flow representa un flujo conversacional: un grafo dirigido de nodos
// tipados. Inmutable durante la ejecución.
type Flow struct {
	ID        kernel.FlowID   `db:"id" json:"id"`
	TenantID  kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Name      string          `db:"name" json:"name"`
	Nodes     []FlowNode      `db:"nodes" json:"nodes"`
	Edges     []FlowEdge      `db:"edges" json:"edges"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// FlowNode paso tipado de un flujo. Data lleva la configuración inline del
// editor; la configuración persistida por nodo tiene prioridad sobre ella.
type FlowNode struct {
	ID   string         `json:"id"`
	Type NodeType       `json:"type"`
	Data map[string]any `json:"data"`
}

// FlowEdge conexión dirigida entre nodos. SourceHandle selecciona entre las
// múltiples salidas de un nodo (option-<id>, condition-<id>, error, default...).
type FlowEdge struct {
	Source       string `json:"source"`
	SourceHandle string `json:"source_handle,omitempty"`
	Target       string `json:"target"`
}

// NodeType tipo de nodo
type NodeType string

const (
	NodeTypeStart        NodeType = "START"
	NodeTypeMessage      NodeType = "MESSAGE"
	NodeTypeQuestion     NodeType = "QUESTION"
	NodeTypeMenu         NodeType = "MENU"
	NodeTypeConditional  NodeType = "CONDITIONAL"
	NodeTypeAttendant    NodeType = "ATTENDANT"
	NodeTypeQueue        NodeType = "QUEUE"
	NodeTypeWebhook      NodeType = "WEBHOOK"
	NodeTypeAPI          NodeType = "API"
	NodeTypeDatabase     NodeType = "DATABASE"
	NodeTypeSchedule     NodeType = "SCHEDULE"
	NodeTypeTag          NodeType = "TAG"
	NodeTypeSwitchFlow   NodeType = "SWITCH_FLOW"
	NodeTypeInternalNote NodeType = "INTERNAL_NOTE"
	NodeTypeInactivity   NodeType = "INACTIVITY_CONFIG"
	NodeTypeEnd          NodeType = "END"
)

// Edge handles reservados
const (
	HandleDefault         = "default"
	HandleError           = "error"
	HandleValidationError = "validation-error"
	HandleWithinHours     = "dentro"
	HandleOutsideHours    = "fora"
)

// ============================================================================
// Execution Entity
// ============================================================================

// ExecutionStatus estado de una ejecución
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "ACTIVE"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusError     ExecutionStatus = "ERROR"
)

// InactivityStatus sub-estado de inactividad de una ejecución
type InactivityStatus string

const (
	InactivityStatusActive     InactivityStatus = "ACTIVE"
	InactivityStatusWarning    InactivityStatus = "WARNING"
	InactivityStatusReengaging InactivityStatus = "REENGAGING"
	InactivityStatusInactive   InactivityStatus = "INACTIVE"
)

// Execution una corrida de un Flow para un contacto. Entidad central del
// runtime: cada turno de conversación y cada pasada del monitor de
// inactividad la leen y reescriben contra el repositorio.
type Execution struct {
	ID            kernel.ExecutionID `json:"id"`
	FlowID        kernel.FlowID      `json:"flow_id"`
	TenantID      kernel.TenantID    `json:"tenant_id"`
	ContactID     kernel.ContactID   `json:"contact_id"`
	TicketID      kernel.TicketID    `json:"ticket_id,omitempty"`
	CurrentNodeID string             `json:"current_node_id"`
	Status        ExecutionStatus    `json:"status"`

	// Variables es la memoria de trabajo visible para los autores del flujo.
	Variables map[string]any `json:"variables"`

	// Runtime es el bookkeeping interno del motor, separado de Variables
	// para que nunca colisione con claves de autor.
	Runtime RuntimeState `json:"runtime"`

	Inactivity        InactivityState `json:"inactivity"`
	LastInteractionAt time.Time       `json:"last_interaction_at"`

	// Version habilita compare-and-swap en el repositorio: el loop y el
	// monitor no pueden pisarse escrituras en silencio.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuntimeState bookkeeping del motor por ejecución
type RuntimeState struct {
	Pending         *PendingResponse     `json:"pending,omitempty"`
	LastValidation  *ValidationFailure   `json:"last_validation,omitempty"`
	FinalStatus     string               `json:"final_status,omitempty"`
	AppointmentMode bool                 `json:"appointment_mode,omitempty"`
	Reengagement    []ReengagementResult `json:"reengagement,omitempty"`
}

// PendingResponse marca que la ejecución está suspendida esperando una
// respuesta del usuario con un tipo concreto.
type PendingResponse struct {
	NodeID    string           `json:"node_id"`
	Variable  string           `json:"variable"`
	InputType InputType        `json:"input_type"`
	Options   []ResponseOption `json:"options,omitempty"`
	Rules     ValidationRules  `json:"rules,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
	Attempts  int              `json:"attempts"`
	AskedAt   time.Time        `json:"asked_at"`
}

// InputType tipo de entrada esperada
type InputType string

const (
	InputTypeText   InputType = "text"
	InputTypeNumber InputType = "number"
	InputTypeEmail  InputType = "email"
	InputTypePhone  InputType = "phone"
	InputTypeCPF    InputType = "cpf"
	InputTypeCNPJ   InputType = "cnpj"
	InputTypeRegex  InputType = "regex"
	InputTypeOption InputType = "option"
	InputTypeMedia  InputType = "media"
)

// ResponseOption opción de un nodo de menú o pregunta con alternativas
type ResponseOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ValidationRules reglas adicionales de validación por tipo
type ValidationRules struct {
	Pattern      string   `json:"pattern,omitempty"`       // regex
	MediaKinds   []string `json:"media_kinds,omitempty"`   // image, audio, video, document
	MediaFormats []string `json:"media_formats,omitempty"` // extensiones aceptadas
	MaxSizeBytes int64    `json:"max_size_bytes,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// ValidationFailure último error de validación registrado
type ValidationFailure struct {
	Message  string    `json:"message"`
	RawInput string    `json:"raw_input"`
	At       time.Time `json:"at"`
}

// InvalidAnswer valor almacenado al forzar el avance tras agotar intentos
type InvalidAnswer struct {
	Invalid   bool   `json:"invalid"`
	Attempts  int    `json:"attempts"`
	LastInput string `json:"lastInput"`
}

// ReengagementResult métrica de una estrategia de reenganche ejecutada
type ReengagementResult struct {
	Strategy string    `json:"strategy"`
	Success  bool      `json:"success"`
	At       time.Time `json:"at"`
}

// InactivityState sub-máquina de inactividad
type InactivityState struct {
	Status        InactivityStatus  `json:"status"`
	WarningsSent  int               `json:"warnings_sent"`
	LastWarningAt *time.Time        `json:"last_warning_at,omitempty"`
	Config        *InactivityConfig `json:"config,omitempty"`
}

// InactivityAction acción al agotar las advertencias
type InactivityAction string

const (
	InactivityActionWarn     InactivityAction = "WARN"
	InactivityActionEnd      InactivityAction = "END"
	InactivityActionTransfer InactivityAction = "TRANSFER"
	InactivityActionReengage InactivityAction = "REENGAGE"
)

// InactivityConfig umbrales por flujo, fijados por el nodo de configuración
// de inactividad; los ceros caen a los defaults globales del monitor.
type InactivityConfig struct {
	IdleSeconds     int              `json:"idle_seconds,omitempty"`
	MenuIdleSeconds int              `json:"menu_idle_seconds,omitempty"`
	TextIdleSeconds int              `json:"text_idle_seconds,omitempty"`
	WarningInterval int              `json:"warning_interval_seconds,omitempty"`
	MaxWarnings     int              `json:"max_warnings,omitempty"`
	ReengageGrace   int              `json:"reengage_grace_seconds,omitempty"`
	InactiveAfter   int              `json:"inactive_after_seconds,omitempty"`
	Action          InactivityAction `json:"action,omitempty"`
	WarningMessage  string           `json:"warning_message,omitempty"`
	EndMessage      string           `json:"end_message,omitempty"`
	TransferQueueID string           `json:"transfer_queue_id,omitempty"`
}

// ============================================================================
// Collaborator Entities (interface boundary)
// ============================================================================

// Ticket conversación en el sistema de atención
type Ticket struct {
	ID            kernel.TicketID  `db:"id" json:"id"`
	TenantID      kernel.TenantID  `db:"tenant_id" json:"tenant_id"`
	ContactID     kernel.ContactID `db:"contact_id" json:"contact_id"`
	QueueID       kernel.QueueID   `db:"queue_id" json:"queue_id"`
	Status        string           `db:"status" json:"status"`
	ChatbotActive bool             `db:"chatbot_active" json:"chatbot_active"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Contact participante de la conversación
type Contact struct {
	ID       kernel.ContactID `db:"id" json:"id"`
	TenantID kernel.TenantID  `db:"tenant_id" json:"tenant_id"`
	Name     string           `db:"name" json:"name"`
	Address  string           `db:"address" json:"address"` // dirección en el canal (ej. número)
	Tags     []string         `db:"-" json:"tags,omitempty"`
}

// ============================================================================
// Domain Methods - Flow
// ============================================================================

// IsValid verifica si el flujo es válido
func (f *Flow) IsValid() bool {
	return f.Name != "" && len(f.Nodes) > 0 && !f.TenantID.IsEmpty()
}

// GetNodeByID obtiene un nodo por ID
func (f *Flow) GetNodeByID(nodeID string) *FlowNode {
	for i := range f.Nodes {
		if f.Nodes[i].ID == nodeID {
			return &f.Nodes[i]
		}
	}
	return nil
}

// StartNode retorna el nodo inicial: el de tipo START, o el primero sin
// aristas entrantes, o el primero del grafo.
func (f *Flow) StartNode() *FlowNode {
	for i := range f.Nodes {
		if f.Nodes[i].Type == NodeTypeStart {
			return &f.Nodes[i]
		}
	}

	hasIncoming := make(map[string]bool, len(f.Edges))
	for _, edge := range f.Edges {
		hasIncoming[edge.Target] = true
	}
	for i := range f.Nodes {
		if !hasIncoming[f.Nodes[i].ID] {
			return &f.Nodes[i]
		}
	}

	if len(f.Nodes) > 0 {
		return &f.Nodes[0]
	}
	return nil
}

// OutgoingEdges retorna las aristas salientes de un nodo
func (f *Flow) OutgoingEdges(nodeID string) []FlowEdge {
	var edges []FlowEdge
	for _, edge := range f.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}
	return edges
}

// EdgeByHandle busca la arista saliente con un handle exacto
func (f *Flow) EdgeByHandle(nodeID, handle string) *FlowEdge {
	for i := range f.Edges {
		if f.Edges[i].Source == nodeID && f.Edges[i].SourceHandle == handle {
			return &f.Edges[i]
		}
	}
	return nil
}

// DefaultEdge retorna la arista "default" o la única sin handle
func (f *Flow) DefaultEdge(nodeID string) *FlowEdge {
	if edge := f.EdgeByHandle(nodeID, HandleDefault); edge != nil {
		return edge
	}
	return f.EdgeByHandle(nodeID, "")
}

// NewExecution crea una ejecución activa apuntando al nodo inicial del flujo
func NewExecution(
	flow *Flow,
	contactID kernel.ContactID,
	ticketID kernel.TicketID,
	initialVars map[string]any,
) *Execution {
	now := time.Now()
	vars := make(map[string]any, len(initialVars))
	for k, v := range initialVars {
		vars[k] = v
	}

	currentNodeID := ""
	if start := flow.StartNode(); start != nil {
		currentNodeID = start.ID
	}

	return &Execution{
		ID:                kernel.NewExecutionID(uuid.NewString()),
		FlowID:            flow.ID,
		TenantID:          flow.TenantID,
		ContactID:         contactID,
		TicketID:          ticketID,
		CurrentNodeID:     currentNodeID,
		Status:            ExecutionStatusActive,
		Variables:         vars,
		Inactivity:        InactivityState{Status: InactivityStatusActive},
		LastInteractionAt: now,
		Version:           0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ============================================================================
// Domain Methods - Execution
// ============================================================================

// IsActive verifica si la ejecución sigue activa
func (e *Execution) IsActive() bool {
	return e.Status == ExecutionStatusActive
}

// IsTerminal verifica si la ejecución alcanzó un estado final
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusError
}

// AwaitingInput verifica si hay una respuesta pendiente
func (e *Execution) AwaitingInput() bool {
	return e.Runtime.Pending != nil
}

// SetVariable escribe una variable de flujo
func (e *Execution) SetVariable(key string, value any) {
	if e.Variables == nil {
		e.Variables = make(map[string]any)
	}
	e.Variables[key] = value
	e.UpdatedAt = time.Now()
}

// GetVariable lee una variable de flujo
func (e *Execution) GetVariable(key string) (any, bool) {
	if e.Variables == nil {
		return nil, false
	}
	val, ok := e.Variables[key]
	return val, ok
}

// Touch registra actividad del contacto y recupera la sub-máquina de
// inactividad si estaba en warning o reengaging.
func (e *Execution) Touch(now time.Time) {
	e.LastInteractionAt = now
	e.UpdatedAt = now
	switch e.Inactivity.Status {
	case InactivityStatusWarning, InactivityStatusReengaging:
		e.Inactivity.Status = InactivityStatusActive
		e.Inactivity.WarningsSent = 0
		e.Inactivity.LastWarningAt = nil
	case "":
		e.Inactivity.Status = InactivityStatusActive
	}
}

// MarkCompleted marca la ejecución como completada
func (e *Execution) MarkCompleted(reason string) {
	e.Status = ExecutionStatusCompleted
	e.Runtime.FinalStatus = reason
	e.Runtime.Pending = nil
	e.UpdatedAt = time.Now()
}

// MarkError marca la ejecución como fallida con el mensaje capturado
func (e *Execution) MarkError(message string) {
	e.Status = ExecutionStatusError
	e.Runtime.FinalStatus = message
	e.Runtime.Pending = nil
	e.UpdatedAt = time.Now()
}

// RecordReengagement registra la métrica de una estrategia de reenganche
func (e *Execution) RecordReengagement(strategy string, success bool, at time.Time) {
	e.Runtime.Reengagement = append(e.Runtime.Reengagement, ReengagementResult{
		Strategy: strategy,
		Success:  success,
		At:       at,
	})
}

// UserVariables retorna una copia de las variables de autor, para copiarlas
// a otra ejecución en un cambio de flujo.
func (e *Execution) UserVariables() map[string]any {
	out := make(map[string]any, len(e.Variables))
	for k, v := range e.Variables {
		out[k] = v
	}
	return out
}
