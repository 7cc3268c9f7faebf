package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/nodeexec"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// stubHandler despacha outcomes precargados por ID de nodo y registra el
// orden de visita
type stubHandler struct {
	outcomes map[string]engine.Outcome
	errs     map[string]error
	visited  []string
}

func (h *stubHandler) Handle(_ context.Context, nctx *nodeexec.Context) (engine.Outcome, error) {
	h.visited = append(h.visited, nctx.Node.ID)
	if err, ok := h.errs[nctx.Node.ID]; ok {
		return engine.Outcome{}, err
	}
	if outcome, ok := h.outcomes[nctx.Node.ID]; ok {
		return outcome, nil
	}
	return engine.Continue(), nil
}

func linearFlow(nodeIDs ...string) *engine.Flow {
	flow := &engine.Flow{
		ID:       kernel.NewFlowID("flow-test"),
		TenantID: kernel.NewTenantID("t-1"),
		Name:     "test",
		IsActive: true,
	}
	for i, id := range nodeIDs {
		flow.Nodes = append(flow.Nodes, engine.FlowNode{ID: id, Type: engine.NodeTypeMessage})
		if i > 0 {
			flow.Edges = append(flow.Edges, engine.FlowEdge{Source: nodeIDs[i-1], Target: id})
		}
	}
	return flow
}

func newExec(flow *engine.Flow) *engine.Execution {
	return engine.NewExecution(flow, kernel.NewContactID("c-1"), kernel.NewTicketID(""), nil)
}

func TestRun_LinearFlowReachesEnd(t *testing.T) {
	flow := linearFlow("a", "b", "c")
	handler := &stubHandler{}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, "flow_end", result.Reason)
	assert.Equal(t, 3, result.Steps)
	assert.Equal(t, []string{"a", "b", "c"}, handler.visited)
}

func TestRun_BranchKeySelectsEdge(t *testing.T) {
	flow := &engine.Flow{
		ID:       kernel.NewFlowID("flow-cond"),
		TenantID: kernel.NewTenantID("t-1"),
		Name:     "cond",
		Nodes: []engine.FlowNode{
			{ID: "cond", Type: engine.NodeTypeConditional},
			{ID: "mayor", Type: engine.NodeTypeMessage},
			{ID: "menor", Type: engine.NodeTypeMessage},
		},
		Edges: []engine.FlowEdge{
			{Source: "cond", SourceHandle: "condition-adulto", Target: "mayor"},
			{Source: "cond", SourceHandle: "default", Target: "menor"},
		},
	}
	handler := &stubHandler{outcomes: map[string]engine.Outcome{
		"cond": engine.ContinueBranch("condition-adulto"),
	}}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, []string{"cond", "mayor"}, handler.visited)
}

func TestRun_SuspendStopsTheLoop(t *testing.T) {
	flow := linearFlow("pregunta", "siguiente")
	handler := &stubHandler{outcomes: map[string]engine.Outcome{
		"pregunta": engine.Suspend(),
	}}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err)
	assert.True(t, result.Suspended)
	assert.False(t, result.Done)
	assert.Equal(t, "pregunta", exec.CurrentNodeID)
	assert.Equal(t, []string{"pregunta"}, handler.visited)
}

func TestRun_TerminateOutcome(t *testing.T) {
	flow := linearFlow("a", "fin", "inalcanzable")
	handler := &stubHandler{outcomes: map[string]engine.Outcome{
		"fin": engine.Terminate("end_node"),
	}}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, "end_node", result.Reason)
	assert.Equal(t, []string{"a", "fin"}, handler.visited)
}

func TestRun_SwitchIsReturnedToTheDriver(t *testing.T) {
	flow := linearFlow("a", "cambio")
	handler := &stubHandler{outcomes: map[string]engine.Outcome{
		"cambio": {
			Kind:   engine.OutcomeTerminate,
			Reason: "switch_flow",
			Switch: &engine.SwitchTo{FlowID: kernel.NewFlowID("flow-destino"), CarryVariables: true},
		},
	}}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err)
	require.NotNil(t, result.Switch)
	assert.Equal(t, kernel.NewFlowID("flow-destino"), result.Switch.FlowID)
	assert.True(t, result.Switch.CarryVariables)
	assert.False(t, result.Done, "the driver decides what happens after a switch")
}

func TestRun_HandlerErrorRoutesToErrorEdge(t *testing.T) {
	flow := &engine.Flow{
		ID:       kernel.NewFlowID("flow-err"),
		TenantID: kernel.NewTenantID("t-1"),
		Name:     "err",
		Nodes: []engine.FlowNode{
			{ID: "webhook", Type: engine.NodeTypeWebhook},
			{ID: "fallback", Type: engine.NodeTypeMessage},
		},
		Edges: []engine.FlowEdge{
			{Source: "webhook", SourceHandle: engine.HandleError, Target: "fallback"},
		},
	}
	handler := &stubHandler{errs: map[string]error{
		"webhook": errors.New("connection refused"),
	}}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.False(t, result.Failed)
	assert.Equal(t, []string{"webhook", "fallback"}, handler.visited)
	assert.True(t, exec.IsActive(), "routed errors do not mark the execution")
}

func TestRun_HandlerErrorWithoutEdgeMarksExecution(t *testing.T) {
	flow := linearFlow("webhook", "siguiente")
	handler := &stubHandler{errs: map[string]error{
		"webhook": errors.New("connection refused"),
	}}
	exec := newExec(flow)

	result, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.NoError(t, err, "handler failures never escape the loop")
	assert.True(t, result.Failed)
	assert.Equal(t, "node_error", result.Reason)
	assert.Equal(t, engine.ExecutionStatusError, exec.Status)
}

func TestRun_StateErrorPropagates(t *testing.T) {
	flow := linearFlow("a")
	stateErr := engine.ErrExecutionNotActive()
	handler := &stubHandler{errs: map[string]error{"a": stateErr}}
	exec := newExec(flow)

	_, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeBusiness))
	assert.True(t, exec.IsActive(), "state errors belong to the caller, not the execution")
}

func TestRun_CycleWithinTurnIsRejected(t *testing.T) {
	flow := &engine.Flow{
		ID:       kernel.NewFlowID("flow-ciclo"),
		TenantID: kernel.NewTenantID("t-1"),
		Name:     "ciclo",
		Nodes: []engine.FlowNode{
			{ID: "a", Type: engine.NodeTypeMessage},
			{ID: "b", Type: engine.NodeTypeMessage},
		},
		Edges: []engine.FlowEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	handler := &stubHandler{}
	exec := newExec(flow)

	_, err := New(handler).Run(context.Background(), flow, exec, nil)

	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeInternal))
}

func TestRun_MissingNodeIsAStateError(t *testing.T) {
	flow := linearFlow("a", "b")
	exec := newExec(flow)
	exec.CurrentNodeID = "fantasma"

	_, err := New(&stubHandler{}).Run(context.Background(), flow, exec, nil)

	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeNotFound))
}
