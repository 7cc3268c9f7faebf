package enginesrv

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// FinalizeExecution es el único camino de terminación del runtime: marca la
// ejecución como completada, libera el ticket, propaga la terminación a las
// demás ejecuciones activas del contacto y notifica. Idempotente: el nodo
// final y el monitor de inactividad pueden invocarla para la misma ejecución.
func (s *Service) FinalizeExecution(ctx context.Context, executionID kernel.ExecutionID, reason string) error {
	exec, err := s.executions.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if exec == nil {
		return engine.ErrExecutionNotFound().WithDetail("execution_id", executionID.String())
	}
	return s.finalizeLoaded(ctx, exec, reason)
}

func (s *Service) finalizeLoaded(ctx context.Context, exec *engine.Execution, reason string) error {
	if exec.IsTerminal() {
		log.Printf("ℹ️  Execution %s already finalized (%s)", exec.ID, exec.Runtime.FinalStatus)
		return nil
	}

	exec.MarkCompleted(reason)
	if err := s.saveExecution(ctx, exec); err != nil {
		return err
	}
	log.Printf("🏁 Finalized execution %s (%s)", exec.ID, reason)

	s.releaseTicket(ctx, exec)
	s.cascade(ctx, exec)
	s.publishFinished(ctx, exec)
	return nil
}

// releaseTicket devuelve la conversación al control humano: apaga las
// banderas de automatización y, si la ejecución falló, deja el ticket en la
// cola pendiente para que un agente lo retome.
func (s *Service) releaseTicket(ctx context.Context, exec *engine.Execution) {
	if exec.TicketID.IsEmpty() {
		return
	}

	fields := map[string]any{"chatbot_active": false}
	if exec.Runtime.AppointmentMode {
		fields["appointment_mode"] = false
	}
	if exec.Status == engine.ExecutionStatusError {
		fields["status"] = "pending"
	}

	if err := s.tickets.UpdateTicket(ctx, exec.TicketID, fields); err != nil {
		log.Printf("⚠️  Failed to release ticket %s: %v", exec.TicketID, err)
	}
}

// cascade termina las demás ejecuciones activas del mismo contacto: a lo
// sumo una ejecución activa por contacto tras una finalización.
func (s *Service) cascade(ctx context.Context, exec *engine.Execution) {
	others, err := s.executions.FindActiveByContact(ctx, exec.ContactID)
	if err != nil {
		log.Printf("⚠️  Cascade lookup failed for contact %s: %v", exec.ContactID, err)
		return
	}

	for _, other := range others {
		if other.ID == exec.ID {
			continue
		}
		other.MarkCompleted("contact_finalized")
		if err := s.saveExecution(ctx, other); err != nil {
			log.Printf("⚠️  Failed to cascade-finalize execution %s: %v", other.ID, err)
			continue
		}
		log.Printf("🧹 Cascade-finalized execution %s for contact %s", other.ID, exec.ContactID)
		s.publishFinished(ctx, other)
	}
}
