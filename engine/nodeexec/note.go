package nodeexec

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
)

// handleNote registra una nota interna en el ticket, sin enviar nada por el
// canal.
func (r *Registry) handleNote(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractNoteConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	if nctx.Exec.TicketID.IsEmpty() {
		log.Printf("⚠️  Execution %s has no ticket for internal note", nctx.Exec.ID)
		return engine.Continue(), nil
	}

	body := engine.RenderTemplate(cfg.Body, templateVars(nctx))
	if err := r.deps.Tickets.AddNote(ctx, nctx.Exec.TicketID, body); err != nil {
		log.Printf("⚠️  Failed to add note to ticket %s: %v", nctx.Exec.TicketID, err)
	}

	return engine.Continue(), nil
}
