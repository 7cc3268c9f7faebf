package nodeexec

import (
	"context"

	"github.com/velora-labs/conversa/engine"
)

// handleInactivityConfig fija los umbrales de inactividad de la ejecución.
// Los campos en cero caen a los defaults globales del monitor.
func (r *Registry) handleInactivityConfig(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractInactivityConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	nctx.Exec.Inactivity.Config = cfg
	return engine.Continue(), nil
}
