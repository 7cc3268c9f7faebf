package engine

import (
	"github.com/velora-labs/conversa/pkg/kernel"
)

// ============================================================================
// Handler Outcome
// ============================================================================

// OutcomeKind resultado cerrado de un handler de nodo
type OutcomeKind int

const (
	// OutcomeContinue el loop resuelve la siguiente arista y sigue
	OutcomeContinue OutcomeKind = iota
	// OutcomeSuspend la ejecución queda esperando entrada del usuario
	OutcomeSuspend
	// OutcomeTerminate la ejecución termina en este nodo
	OutcomeTerminate
)

// Outcome resultado de procesar un nodo. BranchKey es la pista para el
// resolutor de aristas (condition-<id>, option-<id>, error, dentro, fora...);
// vacío significa arista default.
type Outcome struct {
	Kind      OutcomeKind
	BranchKey string
	Reason    string    // motivo de terminación
	Switch    *SwitchTo // instrucción de cambio de flujo para el driver externo
}

// SwitchTo instrucción de trampolín: el driver del servicio arranca una nueva
// ejecución en vez de que el handler se re-invoque recursivamente.
type SwitchTo struct {
	FlowID         kernel.FlowID
	CarryVariables bool
}

// Continue retorna un outcome de avance por la arista default
func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

// ContinueBranch retorna un outcome de avance por una arista etiquetada
func ContinueBranch(branchKey string) Outcome {
	return Outcome{Kind: OutcomeContinue, BranchKey: branchKey}
}

// Suspend retorna un outcome de espera de entrada
func Suspend() Outcome { return Outcome{Kind: OutcomeSuspend} }

// Terminate retorna un outcome terminal
func Terminate(reason string) Outcome {
	return Outcome{Kind: OutcomeTerminate, Reason: reason}
}

// ============================================================================
// Runtime Operation DTOs
// ============================================================================

// StartRequest parámetros de arranque o reanudación de una ejecución
type StartRequest struct {
	FlowID           kernel.FlowID
	TenantID         kernel.TenantID
	ContactID        kernel.ContactID
	TicketID         kernel.TicketID
	InitialVariables map[string]any
}

// InboundMedia metadatos del adjunto de una respuesta entrante
type InboundMedia struct {
	Kind      string `json:"kind"` // image, audio, video, document
	URL       string `json:"url"`
	MimeType  string `json:"mime_type,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// InboundResult resultado de procesar una respuesta entrante
type InboundResult struct {
	Accepted     bool   `json:"accepted"`
	ForceAdvance bool   `json:"force_advance,omitempty"`
	NextNodeID   string `json:"next_node_id,omitempty"`
	Message      string `json:"message,omitempty"` // mensaje de error de validación para el usuario
}

// SweepStats métricas de una pasada del monitor de inactividad
type SweepStats struct {
	Scanned    int `json:"scanned"`
	Warned     int `json:"warned"`
	Reengaged  int `json:"reengaged"`
	Recovered  int `json:"recovered"`
	Terminated int `json:"terminated"`
	Errors     int `json:"errors"`
}

// ExecutionEvent evento publicado en el bus de notificaciones
type ExecutionEvent struct {
	Type        string             `json:"type"` // execution.started, execution.suspended, execution.finished, execution.inactivity
	ExecutionID kernel.ExecutionID `json:"execution_id"`
	FlowID      kernel.FlowID      `json:"flow_id"`
	ContactID   kernel.ContactID   `json:"contact_id"`
	NodeID      string             `json:"node_id,omitempty"`
	Status      ExecutionStatus    `json:"status,omitempty"`
	Detail      string             `json:"detail,omitempty"`
}
