package nodeexec

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// handleAttendant entrega la conversación a un agente humano: apaga la
// automatización del ticket y termina la ejecución salvo que el nodo esté
// configurado para continuar el flujo tras la asignación.
func (r *Registry) handleAttendant(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractAttendantConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	if cfg.Message != "" {
		rendered := engine.RenderTemplate(cfg.Message, templateVars(nctx))
		if err := r.send(ctx, nctx, engine.OutboundContent{Type: "text", Text: rendered}); err != nil {
			// a diferencia del nodo mensaje, aquí el envío fallido aborta el
			// turno: el usuario quedaría esperando a un humano sin saberlo
			return engine.Outcome{}, err
		}
	}

	if err := r.releaseToHumans(ctx, nctx, cfg.QueueID); err != nil {
		return engine.Outcome{}, err
	}

	if cfg.ContinueFlow {
		return engine.Continue(), nil
	}
	return engine.Terminate("attendant_handoff"), nil
}

// handleQueue transfiere el ticket a una cola concreta
func (r *Registry) handleQueue(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractQueueConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	if cfg.Message != "" {
		rendered := engine.RenderTemplate(cfg.Message, templateVars(nctx))
		if err := r.send(ctx, nctx, engine.OutboundContent{Type: "text", Text: rendered}); err != nil {
			return engine.Outcome{}, err
		}
	}

	if err := r.releaseToHumans(ctx, nctx, cfg.QueueID); err != nil {
		return engine.Outcome{}, err
	}

	if cfg.ContinueFlow {
		return engine.Continue(), nil
	}
	return engine.Terminate("queue_handoff"), nil
}

func (r *Registry) releaseToHumans(ctx context.Context, nctx *Context, queueID string) error {
	ticketID := nctx.Exec.TicketID
	if ticketID.IsEmpty() {
		log.Printf("⚠️  Execution %s has no ticket to hand off", nctx.Exec.ID)
		return nil
	}

	fields := map[string]any{
		"chatbot_active": false,
		"status":         "pending",
	}
	if err := r.deps.Tickets.UpdateTicket(ctx, ticketID, fields); err != nil {
		return engine.ErrAdapter().
			WithDetail("node_id", nctx.Node.ID).
			WithDetail("cause", err.Error())
	}

	if queueID != "" {
		if err := r.deps.Tickets.AssignQueue(ctx, ticketID, kernel.QueueID(queueID)); err != nil {
			return engine.ErrAdapter().
				WithDetail("node_id", nctx.Node.ID).
				WithDetail("cause", err.Error())
		}
	}

	return nil
}
