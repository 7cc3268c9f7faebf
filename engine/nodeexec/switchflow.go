package nodeexec

import (
	"context"
	"log"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// handleSwitchFlow termina la ejecución actual y retorna la instrucción de
// arrancar otro flujo. El handler no re-invoca al servicio: el driver externo
// ejecuta el cambio (trampolín), lo que acota la profundidad de pila y deja
// las cadenas entre flujos trazables.
func (r *Registry) handleSwitchFlow(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractSwitchFlowConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	target := kernel.FlowID(cfg.FlowID)
	if target == nctx.Exec.FlowID {
		// la auto-redirección se tolera; el presupuesto de cambios por turno
		// del driver evita el ciclo infinito
		log.Printf("⚠️  Flow %s switches to itself on node %s", target, nctx.Node.ID)
	}

	outcome := engine.Terminate("switched_flow")
	outcome.Switch = &engine.SwitchTo{
		FlowID:         target,
		CarryVariables: cfg.CarryVariables,
	}
	return outcome, nil
}
