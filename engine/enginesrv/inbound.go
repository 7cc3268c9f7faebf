package enginesrv

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/executor"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// ProcessInboundResponse procesa una respuesta del usuario sobre una
// ejecución suspendida: valida la entrada, y si fue aceptada (o se agotaron
// los intentos) avanza el loop desde el nodo que preguntó.
func (s *Service) ProcessInboundResponse(
	ctx context.Context,
	executionID kernel.ExecutionID,
	raw string,
	media *engine.InboundMedia,
) (*engine.InboundResult, error) {
	exec, err := s.executions.FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, engine.ErrExecutionNotFound().WithDetail("execution_id", executionID.String())
	}
	if !exec.IsActive() {
		return nil, engine.ErrExecutionNotActive().
			WithDetail("execution_id", executionID.String()).
			WithDetail("status", string(exec.Status))
	}

	// Toda respuesta cuenta como actividad: recupera la sub-máquina de
	// inactividad aunque la entrada resulte inválida.
	exec.Touch(time.Now())

	// La entrada llega por webhook sin id propio: se acuña un handle para que
	// el log de mensajes registre también el tránsito entrante
	inbound := engine.MessageHandle{ID: kernel.NewMessageID(uuid.NewString())}
	if err := s.channel.RecordInbound(ctx, inbound, exec.ID); err != nil {
		log.Printf("⚠️  Failed to record inbound message: %v", err)
	}

	if !exec.AwaitingInput() {
		if err := s.saveExecution(ctx, exec); err != nil {
			return nil, err
		}
		return nil, engine.ErrNotAwaitingInput().WithDetail("execution_id", executionID.String())
	}

	// Copia de la marca pendiente antes de que el validador la limpie: el
	// enrutado de aristas necesita el nodo y el tipo que preguntaron.
	pending := *exec.Runtime.Pending

	applied := s.validator.Apply(exec, raw, media)

	if !applied.Accepted && !applied.ForceAdvance {
		if err := s.saveExecution(ctx, exec); err != nil {
			return nil, err
		}
		s.resendPrompt(ctx, exec, pending, applied.Message)
		return &engine.InboundResult{Accepted: false, Message: applied.Message}, nil
	}

	flow, err := s.flows.FindByID(ctx, exec.FlowID, exec.TenantID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, engine.ErrFlowNotFound().WithDetail("flow_id", exec.FlowID.String())
	}

	branchKey := ""
	if applied.ForceAdvance {
		branchKey = engine.HandleValidationError
	} else if pending.InputType == engine.InputTypeOption {
		if optionID, ok := applied.Value.(string); ok {
			branchKey = "option-" + optionID
		}
	}

	next := executor.NextNodeID(flow, pending.NodeID, branchKey)
	if next == "" {
		if err := s.finalizeLoaded(ctx, exec, "flow_end"); err != nil {
			return nil, err
		}
		return &engine.InboundResult{
			Accepted:     applied.Accepted,
			ForceAdvance: applied.ForceAdvance,
			Message:      applied.Message,
		}, nil
	}

	exec.CurrentNodeID = next
	final, err := s.drive(ctx, flow, exec)
	if err != nil {
		return nil, err
	}

	return &engine.InboundResult{
		Accepted:     applied.Accepted,
		ForceAdvance: applied.ForceAdvance,
		NextNodeID:   final.CurrentNodeID,
		Message:      applied.Message,
	}, nil
}

// resendPrompt reenvía el mensaje de error de validación junto con la
// pregunta original, para que el usuario sepa qué se espera de él.
func (s *Service) resendPrompt(ctx context.Context, exec *engine.Execution, pending engine.PendingResponse, errMsg string) {
	contact, err := s.tickets.FindContact(ctx, exec.ContactID)
	if err != nil || contact == nil {
		log.Printf("⚠️  Cannot resend prompt, contact lookup failed for %s: %v", exec.ContactID, err)
		return
	}

	text := errMsg
	if pending.Prompt != "" {
		text = errMsg + "\n\n" + pending.Prompt
	}

	handle, err := s.channel.Send(ctx, contact.Address, engine.OutboundContent{Type: "text", Text: text})
	if err != nil {
		log.Printf("⚠️  Failed to resend prompt for execution %s: %v", exec.ID, err)
		return
	}
	if err := s.channel.RecordOutbound(ctx, handle, exec.ID); err != nil {
		log.Printf("⚠️  Failed to record outbound message: %v", err)
	}
}
