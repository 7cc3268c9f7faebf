package nodeexec

import (
	"context"

	"github.com/velora-labs/conversa/engine"
)

// handleMessage renderiza la plantilla contra el contexto de la conversación
// y despacha texto, media o ubicación. Sin ramificación: arista default.
func (r *Registry) handleMessage(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractMessageConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	vars := templateVars(nctx)
	rendered := engine.RenderTemplate(cfg.Text, vars)

	if err := r.send(ctx, nctx, cfg.Content(rendered)); err != nil {
		return engine.Outcome{}, err
	}

	return engine.Continue(), nil
}
