package executor

import (
	"strings"

	"github.com/velora-labs/conversa/engine"
)

// NextNodeID resuelve la siguiente arista desde un nodo. La BranchKey del
// outcome tiene prioridad (condition-<id>, option-<id>, error, dentro, fora);
// si el nodo no declara esa arista se cae a la default. Retorna vacío cuando
// no hay salida: el flujo terminó en ese nodo.
func NextNodeID(flow *engine.Flow, nodeID, branchKey string) string {
	if branchKey != "" {
		if edge := flow.EdgeByHandle(nodeID, branchKey); edge != nil {
			return edge.Target
		}
		// Los editores viejos etiquetan las opciones de menú como
		// menu-option-<id>; ambas formas apuntan a la misma arista.
		if strings.HasPrefix(branchKey, "option-") {
			if edge := flow.EdgeByHandle(nodeID, "menu-"+branchKey); edge != nil {
				return edge.Target
			}
		}
	}

	if edge := flow.DefaultEdge(nodeID); edge != nil {
		return edge.Target
	}
	return ""
}
