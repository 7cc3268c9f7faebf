package nodeexec

import (
	"context"

	"github.com/velora-labs/conversa/engine"
)

// handleMenu es la variante con opciones fijas del nodo pregunta: prompt más
// opciones numeradas, marca pendiente de tipo option y suspensión.
func (r *Registry) handleMenu(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractMenuConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	vars := templateVars(nctx)
	prompt := engine.RenderTemplate(cfg.Prompt, vars) + "\n" + cfg.RenderOptions()

	if err := r.send(ctx, nctx, engine.OutboundContent{Type: "text", Text: prompt}); err != nil {
		return engine.Outcome{}, err
	}

	nctx.Exec.Runtime.Pending = &engine.PendingResponse{
		NodeID:    nctx.Node.ID,
		Variable:  cfg.GetVariable(),
		InputType: engine.InputTypeOption,
		Options:   cfg.Options,
		Rules:     engine.ValidationRules{ErrorMessage: cfg.ErrorMessage},
		Prompt:    prompt,
		AskedAt:   r.now(),
	}

	return engine.Suspend(), nil
}
