package nodeexec

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
)

// handleDatabase despacha la operación al backend configurado. El fallo no
// sube como excepción: se enruta por la arista de error, y el flag
// store_error_response decide cuánto detalle queda en la variable destino.
func (r *Registry) handleDatabase(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractDatabaseConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	result := r.deps.DB.Execute(ctx, *cfg, templateVars(nctx))

	if result.Success {
		nctx.Exec.SetVariable(cfg.GetResponseVariable(), result.StoredValue())
		return engine.Continue(), nil
	}

	log.Printf("❌ Database action failed on node %s: %s", nctx.Node.ID, result.ErrorMessage)
	if cfg.StoreErrorResponse {
		nctx.Exec.SetVariable(cfg.GetResponseVariable(), result.StoredValue())
	} else {
		nctx.Exec.SetVariable(cfg.GetResponseVariable(), map[string]any{"success": false})
	}

	return engine.ContinueBranch(engine.HandleError), nil
}
