package inactivity

import (
	"context"
	"log"
	"time"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// Resumer limpia una ejecución atascada y la re-corre desde su nodo actual
type Resumer interface {
	RestartExecution(ctx context.Context, executionID kernel.ExecutionID) error
}

// Strategy una estrategia de reenganche: un predicado de aplicabilidad sobre
// la marca pendiente de la ejecución y una acción. La cadena se evalúa en
// orden de prioridad y ejecuta solo la primera aplicable.
type Strategy interface {
	Name() string
	Applies(exec *engine.Execution) bool
	Execute(ctx context.Context, exec *engine.Execution, contact *engine.Contact) error
}

// DefaultStrategies arma la cadena en orden de prioridad: reenviar menú,
// reenviar pregunta, destrabar y reiniciar, ping genérico como último recurso.
func DefaultStrategies(channel engine.ChannelAdapter, resumer Resumer) []Strategy {
	return []Strategy{
		&resendMenuStrategy{channel: channel},
		&resendQuestionStrategy{channel: channel},
		&restartStrategy{resumer: resumer},
		&pingStrategy{channel: channel},
	}
}

// resendMenuStrategy reenvía el menú cuando la ejecución espera una opción
type resendMenuStrategy struct {
	channel engine.ChannelAdapter
}

func (s *resendMenuStrategy) Name() string { return "resend_menu" }

func (s *resendMenuStrategy) Applies(exec *engine.Execution) bool {
	pending := exec.Runtime.Pending
	return pending != nil && pending.InputType == engine.InputTypeOption
}

func (s *resendMenuStrategy) Execute(ctx context.Context, exec *engine.Execution, contact *engine.Contact) error {
	return resendPending(ctx, s.channel, exec, contact)
}

// resendQuestionStrategy reenvía la última pregunta pendiente
type resendQuestionStrategy struct {
	channel engine.ChannelAdapter
}

func (s *resendQuestionStrategy) Name() string { return "resend_question" }

func (s *resendQuestionStrategy) Applies(exec *engine.Execution) bool {
	return exec.Runtime.Pending != nil
}

func (s *resendQuestionStrategy) Execute(ctx context.Context, exec *engine.Execution, contact *engine.Contact) error {
	return resendPending(ctx, s.channel, exec, contact)
}

// restartStrategy destraba una ejecución sin pregunta pendiente re-corriendo
// el loop desde el nodo actual
type restartStrategy struct {
	resumer Resumer
}

func (s *restartStrategy) Name() string { return "clear_stuck_restart" }

func (s *restartStrategy) Applies(exec *engine.Execution) bool {
	return exec.Runtime.Pending == nil
}

func (s *restartStrategy) Execute(ctx context.Context, exec *engine.Execution, contact *engine.Contact) error {
	return s.resumer.RestartExecution(ctx, exec.ID)
}

// pingStrategy último recurso: un mensaje genérico de presencia
type pingStrategy struct {
	channel engine.ChannelAdapter
}

func (s *pingStrategy) Name() string { return "generic_ping" }

func (s *pingStrategy) Applies(exec *engine.Execution) bool { return true }

func (s *pingStrategy) Execute(ctx context.Context, exec *engine.Execution, contact *engine.Contact) error {
	if contact == nil {
		return engine.ErrChannel().WithDetail("reason", "no contact for execution")
	}
	handle, err := s.channel.Send(ctx, contact.Address, engine.OutboundContent{
		Type: "text",
		Text: "¿Sigues ahí? Responde para continuar la conversación.",
	})
	if err != nil {
		return err
	}
	if err := s.channel.RecordOutbound(ctx, handle, exec.ID); err != nil {
		log.Printf("⚠️  Failed to record outbound message: %v", err)
	}
	return nil
}

func resendPending(ctx context.Context, channel engine.ChannelAdapter, exec *engine.Execution, contact *engine.Contact) error {
	pending := exec.Runtime.Pending
	if pending == nil || pending.Prompt == "" {
		return engine.ErrChannel().WithDetail("reason", "no pending prompt to resend")
	}
	if contact == nil {
		return engine.ErrChannel().WithDetail("reason", "no contact for execution")
	}

	handle, err := channel.Send(ctx, contact.Address, engine.OutboundContent{Type: "text", Text: pending.Prompt})
	if err != nil {
		return err
	}
	if err := channel.RecordOutbound(ctx, handle, exec.ID); err != nil {
		log.Printf("⚠️  Failed to record outbound message: %v", err)
	}

	pending.AskedAt = time.Now()
	return nil
}
