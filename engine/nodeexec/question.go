package nodeexec

import (
	"context"

	"github.com/velora-labs/conversa/engine"
)

// handleQuestion renderiza el prompt, fija la marca de respuesta pendiente y
// suspende el loop. Nunca avanza en su propio turno: el avance ocurre cuando
// ProcessInboundResponse acepta (o fuerza) una respuesta.
func (r *Registry) handleQuestion(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractQuestionConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	vars := templateVars(nctx)
	prompt := engine.RenderTemplate(cfg.Prompt, vars)
	if len(cfg.Options) > 0 {
		prompt += "\n" + (engine.MenuConfig{Options: cfg.Options}).RenderOptions()
	}

	if err := r.send(ctx, nctx, engine.OutboundContent{Type: "text", Text: prompt}); err != nil {
		return engine.Outcome{}, err
	}

	rules := cfg.Rules
	if rules.ErrorMessage == "" {
		rules.ErrorMessage = cfg.ErrorMessage
	}

	nctx.Exec.Runtime.Pending = &engine.PendingResponse{
		NodeID:    nctx.Node.ID,
		Variable:  cfg.Variable,
		InputType: cfg.GetInputType(),
		Options:   cfg.Options,
		Rules:     rules,
		Prompt:    prompt,
		AskedAt:   r.now(),
	}

	return engine.Suspend(), nil
}
