package nodeexec

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
)

// handleHTTPAction sirve a los nodos webhook y api. El adaptador encapsula
// guardia SSRF, reintentos y recorte de respuesta; aquí solo se almacena el
// resultado y se elige la rama.
func (r *Registry) handleHTTPAction(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractHTTPActionConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	result := r.deps.HTTP.Execute(ctx, *cfg, templateVars(nctx))

	// siempre queda un valor de estado en la variable destino
	nctx.Exec.SetVariable(cfg.GetResponseVariable(), result.StoredValue(cfg.ResponsePath != ""))

	if !result.Success {
		log.Printf("❌ HTTP action failed on node %s: %s", nctx.Node.ID, result.ErrorMessage)
		return engine.ContinueBranch(engine.HandleError), nil
	}

	return engine.Continue(), nil
}
