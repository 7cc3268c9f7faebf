package nodeexec

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
)

// handleTag adjunta una etiqueta al contacto. Fallos del colaborador no
// cortan el flujo: se registran y se sigue por la arista default.
func (r *Registry) handleTag(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractTagConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	tag := engine.RenderTemplate(cfg.Tag, templateVars(nctx))
	if err := r.deps.Tickets.AttachTag(ctx, nctx.Exec.ContactID, tag); err != nil {
		log.Printf("⚠️  Failed to attach tag %q to contact %s: %v", tag, nctx.Exec.ContactID, err)
	}

	return engine.Continue(), nil
}
