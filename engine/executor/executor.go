package executor

import (
	"context"
	"log"
	"time"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/nodeexec"
)

// NodeHandler procesa un nodo y retorna el outcome cerrado
type NodeHandler interface {
	Handle(ctx context.Context, nctx *nodeexec.Context) (engine.Outcome, error)
}

// RunResult resultado de una pasada del loop sobre una ejecución
type RunResult struct {
	Steps     int
	Suspended bool              // quedó esperando entrada del usuario
	Done      bool              // alcanzó fin de flujo o nodo terminal; el caller finaliza
	Failed    bool              // el loop marcó la ejecución en error
	Reason    string            // motivo de terminación (end_node, flow_end, ...)
	Switch    *engine.SwitchTo  // instrucción de cambio de flujo para el driver
}

// Executor avanza una ejecución nodo a nodo hasta un punto de suspensión o
// terminación. No persiste ni finaliza: muta la ejecución en memoria y deja
// esas decisiones al servicio.
type Executor struct {
	handler NodeHandler
}

func New(handler NodeHandler) *Executor {
	return &Executor{handler: handler}
}

// Run corre el loop desde el nodo actual de la ejecución. Iteración acotada:
// cada nodo se visita a lo sumo una vez por turno y el total de pasos no
// supera el doble del tamaño del grafo; un flujo puede re-visitar nodos entre
// turnos entrantes distintos, nunca dentro del mismo.
func (x *Executor) Run(
	ctx context.Context,
	flow *engine.Flow,
	exec *engine.Execution,
	contact *engine.Contact,
) (*RunResult, error) {
	startTime := time.Now()
	result := &RunResult{}

	if exec.CurrentNodeID == "" {
		start := flow.StartNode()
		if start == nil {
			return nil, engine.ErrConfiguration().
				WithDetail("flow_id", flow.ID.String()).
				WithDetail("reason", "flow has no start node")
		}
		exec.CurrentNodeID = start.ID
	}

	visited := make(map[string]bool)
	maxSteps := len(flow.Nodes) * 2

	for exec.CurrentNodeID != "" && result.Steps < maxSteps {
		if visited[exec.CurrentNodeID] {
			return nil, engine.ErrCyclicFlow().
				WithDetail("node_id", exec.CurrentNodeID).
				WithDetail("flow_id", flow.ID.String())
		}
		visited[exec.CurrentNodeID] = true

		node := flow.GetNodeByID(exec.CurrentNodeID)
		if node == nil {
			return nil, engine.ErrNodeNotFound().
				WithDetail("node_id", exec.CurrentNodeID).
				WithDetail("flow_id", flow.ID.String())
		}
		result.Steps++

		outcome, err := x.handler.Handle(ctx, &nodeexec.Context{
			Flow:    flow,
			Node:    node,
			Exec:    exec,
			Contact: contact,
		})
		if err != nil {
			if engine.IsStateError(err) {
				return nil, err
			}
			// Fallo del handler: si el nodo declara salida de error se
			// enruta por ahí; si no, el loop captura el error y la
			// ejecución queda marcada, nunca escapa al trigger.
			if edge := flow.EdgeByHandle(node.ID, engine.HandleError); edge != nil {
				log.Printf("⚠️  Node %s failed, routing to error edge: %v", node.ID, err)
				exec.CurrentNodeID = edge.Target
				continue
			}
			log.Printf("❌ Node %s failed with no error edge: %v", node.ID, err)
			exec.MarkError(err.Error())
			result.Done = true
			result.Failed = true
			result.Reason = "node_error"
			return result, nil
		}

		switch outcome.Kind {
		case engine.OutcomeSuspend:
			result.Suspended = true
			log.Printf("⏸️  Execution %s suspended at node %s", exec.ID, node.ID)
			return result, nil
		case engine.OutcomeTerminate:
			if outcome.Switch != nil {
				result.Switch = outcome.Switch
				result.Reason = outcome.Reason
				return result, nil
			}
			result.Done = true
			result.Reason = outcome.Reason
			log.Printf("🏁 Execution %s terminated at node %s (%s) in %v",
				exec.ID, node.ID, outcome.Reason, time.Since(startTime))
			return result, nil
		}

		next := NextNodeID(flow, node.ID, outcome.BranchKey)
		if next == "" {
			result.Done = true
			result.Reason = "flow_end"
			log.Printf("🏁 Execution %s reached end of flow at node %s", exec.ID, node.ID)
			return result, nil
		}
		exec.CurrentNodeID = next
	}

	if exec.CurrentNodeID != "" {
		return nil, engine.ErrCyclicFlow().
			WithDetail("flow_id", flow.ID.String()).
			WithDetail("steps", result.Steps)
	}
	return result, nil
}
