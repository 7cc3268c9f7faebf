package enginesrv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/adapters"
	"github.com/velora-labs/conversa/engine/executor"
	"github.com/velora-labs/conversa/engine/nodeexec"
	"github.com/velora-labs/conversa/engine/validator"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// ============================================================================
// In-memory fakes
// ============================================================================

type memExecutionRepo struct {
	mu    sync.Mutex
	store map[kernel.ExecutionID]*engine.Execution
}

func newMemExecutionRepo() *memExecutionRepo {
	return &memExecutionRepo{store: make(map[kernel.ExecutionID]*engine.Execution)}
}

func (r *memExecutionRepo) snapshot(exec *engine.Execution) *engine.Execution {
	copied := *exec
	return &copied
}

func (r *memExecutionRepo) Create(_ context.Context, exec *engine.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[exec.ID] = r.snapshot(exec)
	return nil
}

func (r *memExecutionRepo) Update(_ context.Context, exec *engine.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.store[exec.ID]
	if !ok {
		return engine.ErrExecutionNotFound().WithDetail("execution_id", exec.ID.String())
	}
	if current.Version != exec.Version {
		return engine.ErrVersionConflict().WithDetail("execution_id", exec.ID.String())
	}
	exec.Version++
	r.store[exec.ID] = r.snapshot(exec)
	return nil
}

func (r *memExecutionRepo) FindByID(_ context.Context, id kernel.ExecutionID) (*engine.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.store[id]
	if !ok {
		return nil, nil
	}
	return r.snapshot(exec), nil
}

func (r *memExecutionRepo) FindActiveByFlowAndContact(_ context.Context, flowID kernel.FlowID, contactID kernel.ContactID) (*engine.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exec := range r.store {
		if exec.FlowID == flowID && exec.ContactID == contactID && exec.IsActive() {
			return r.snapshot(exec), nil
		}
	}
	return nil, nil
}

func (r *memExecutionRepo) FindActiveByContact(_ context.Context, contactID kernel.ContactID) ([]*engine.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*engine.Execution
	for _, exec := range r.store {
		if exec.ContactID == contactID && exec.IsActive() {
			out = append(out, r.snapshot(exec))
		}
	}
	return out, nil
}

func (r *memExecutionRepo) ListActive(_ context.Context) ([]*engine.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*engine.Execution
	for _, exec := range r.store {
		if exec.IsActive() {
			out = append(out, r.snapshot(exec))
		}
	}
	return out, nil
}

type memFlowRepo struct {
	flows map[kernel.FlowID]*engine.Flow
}

func (r *memFlowRepo) FindByID(_ context.Context, id kernel.FlowID, tenantID kernel.TenantID) (*engine.Flow, error) {
	flow, ok := r.flows[id]
	if !ok || flow.TenantID != tenantID {
		return nil, nil
	}
	return flow, nil
}

type fakeTicketStore struct {
	updates []map[string]any
	notes   []string
	tags    []string
}

func (s *fakeTicketStore) FindTicket(_ context.Context, id kernel.TicketID) (*engine.Ticket, error) {
	return &engine.Ticket{ID: id, ChatbotActive: true}, nil
}

func (s *fakeTicketStore) FindContact(_ context.Context, id kernel.ContactID) (*engine.Contact, error) {
	return &engine.Contact{ID: id, Name: "Ana", Address: "+51987654321"}, nil
}

func (s *fakeTicketStore) UpdateTicket(_ context.Context, _ kernel.TicketID, fields map[string]any) error {
	s.updates = append(s.updates, fields)
	return nil
}

func (s *fakeTicketStore) FindOrCreateTracking(_ context.Context, _ kernel.TicketID) error { return nil }

func (s *fakeTicketStore) AssignQueue(_ context.Context, _ kernel.TicketID, _ kernel.QueueID) error {
	return nil
}

func (s *fakeTicketStore) AttachTag(_ context.Context, _ kernel.ContactID, tag string) error {
	s.tags = append(s.tags, tag)
	return nil
}

func (s *fakeTicketStore) AddNote(_ context.Context, _ kernel.TicketID, body string) error {
	s.notes = append(s.notes, body)
	return nil
}

type fakeChannel struct {
	sent    []string
	inbound int
}

func (c *fakeChannel) Send(_ context.Context, _ string, content engine.OutboundContent) (engine.MessageHandle, error) {
	c.sent = append(c.sent, content.Text)
	return engine.MessageHandle{ID: kernel.NewMessageID(uuid.NewString())}, nil
}

func (c *fakeChannel) RecordOutbound(_ context.Context, _ engine.MessageHandle, _ kernel.ExecutionID) error {
	return nil
}

func (c *fakeChannel) RecordInbound(_ context.Context, _ engine.MessageHandle, _ kernel.ExecutionID) error {
	c.inbound++
	return nil
}

type fakeConfigStore struct{}

func (fakeConfigStore) FindNodeConfig(_ context.Context, _ string, _ kernel.TenantID) (map[string]any, error) {
	return nil, nil
}

// ============================================================================
// Harness
// ============================================================================

const testTenant = "tenant-test"

type harness struct {
	service *Service
	repo    *memExecutionRepo
	tickets *fakeTicketStore
	channel *fakeChannel
}

func newHarness(flows ...*engine.Flow) *harness {
	repo := newMemExecutionRepo()
	flowRepo := &memFlowRepo{flows: make(map[kernel.FlowID]*engine.Flow)}
	for _, flow := range flows {
		flowRepo.flows[flow.ID] = flow
	}
	tickets := &fakeTicketStore{}
	channel := &fakeChannel{}

	registry := nodeexec.NewRegistry(nodeexec.Deps{
		Channel: channel,
		Tickets: tickets,
		Configs: fakeConfigStore{},
		DB:      adapters.NewDBAction(2*time.Second, nil),
	})

	cfg := &config.RuntimeConfig{MaxFlowSwitches: 2, MaxValidationTries: 3}

	service := NewService(
		repo, flowRepo, tickets, channel, nil,
		executor.New(registry),
		validator.New(3),
		cfg,
	)

	return &harness{service: service, repo: repo, tickets: tickets, channel: channel}
}

func messageFlow(id string) *engine.Flow {
	return &engine.Flow{
		ID:       kernel.NewFlowID(id),
		TenantID: kernel.NewTenantID(testTenant),
		Name:     "saludo",
		IsActive: true,
		Nodes: []engine.FlowNode{
			{ID: "start", Type: engine.NodeTypeStart},
			{ID: "msg", Type: engine.NodeTypeMessage, Data: map[string]any{"text": "Hola ${contact.name}"}},
			{ID: "end", Type: engine.NodeTypeEnd},
		},
		Edges: []engine.FlowEdge{
			{Source: "start", Target: "msg"},
			{Source: "msg", Target: "end"},
		},
	}
}

func menuFlow(id string) *engine.Flow {
	return &engine.Flow{
		ID:       kernel.NewFlowID(id),
		TenantID: kernel.NewTenantID(testTenant),
		Name:     "menu",
		IsActive: true,
		Nodes: []engine.FlowNode{
			{ID: "start", Type: engine.NodeTypeStart},
			{ID: "menu", Type: engine.NodeTypeMenu, Data: map[string]any{
				"prompt":   "¿En qué te ayudamos?",
				"variable": "eleccion",
				"options": []any{
					map[string]any{"id": "opt-ventas", "label": "Ventas"},
					map[string]any{"id": "opt-soporte", "label": "Soporte"},
				},
			}},
			{ID: "msg-ventas", Type: engine.NodeTypeMessage, Data: map[string]any{"text": "Te paso con ventas"}},
			{ID: "msg-fallback", Type: engine.NodeTypeMessage, Data: map[string]any{"text": "Sigamos sin esa respuesta"}},
			{ID: "end", Type: engine.NodeTypeEnd},
		},
		Edges: []engine.FlowEdge{
			{Source: "start", Target: "menu"},
			{Source: "menu", SourceHandle: "option-opt-ventas", Target: "msg-ventas"},
			{Source: "menu", SourceHandle: engine.HandleValidationError, Target: "msg-fallback"},
			{Source: "msg-ventas", Target: "end"},
			{Source: "msg-fallback", Target: "end"},
		},
	}
}

func startReq(flowID string) engine.StartRequest {
	return engine.StartRequest{
		FlowID:    kernel.NewFlowID(flowID),
		TenantID:  kernel.NewTenantID(testTenant),
		ContactID: kernel.NewContactID("contact-1"),
		TicketID:  kernel.NewTicketID("ticket-1"),
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestStartOrResume_RunsLinearFlowToCompletion(t *testing.T) {
	h := newHarness(messageFlow("flow-msg"))

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-msg"))

	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, "end_node", exec.Runtime.FinalStatus)
	require.Len(t, h.channel.sent, 1)
	assert.Equal(t, "Hola Ana", h.channel.sent[0])

	// la finalización libera el ticket
	require.NotEmpty(t, h.tickets.updates)
	assert.Equal(t, false, h.tickets.updates[len(h.tickets.updates)-1]["chatbot_active"])
}

func TestStartOrResume_UnknownFlow(t *testing.T) {
	h := newHarness()

	_, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-nope"))

	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeNotFound))
}

func TestStartOrResume_InactiveFlowIsRejected(t *testing.T) {
	flow := messageFlow("flow-off")
	flow.IsActive = false
	h := newHarness(flow)

	_, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-off"))

	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeBusiness))
}

func TestStartOrResume_ReusesActiveExecution(t *testing.T) {
	h := newHarness(menuFlow("flow-menu"))

	first, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-menu"))
	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusActive, first.Status)
	assert.True(t, first.AwaitingInput())

	second, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-menu"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one active execution per flow/contact pair")
	assert.Len(t, h.channel.sent, 1, "resume must not resend the menu")
}

func TestProcessInbound_AcceptedOptionAdvancesBranch(t *testing.T) {
	h := newHarness(menuFlow("flow-menu"))

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-menu"))
	require.NoError(t, err)

	result, err := h.service.ProcessInboundResponse(context.Background(), exec.ID, "1", nil)
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	final, err := h.service.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, "opt-ventas", final.Variables["eleccion"])
	assert.Contains(t, h.channel.sent, "Te paso con ventas")
}

func TestProcessInbound_RejectedResendsPrompt(t *testing.T) {
	h := newHarness(menuFlow("flow-menu"))

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-menu"))
	require.NoError(t, err)
	sentBefore := len(h.channel.sent)

	result, err := h.service.ProcessInboundResponse(context.Background(), exec.ID, "99", nil)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.NotEmpty(t, result.Message)

	// se reenvía el error junto con el menú original
	require.Len(t, h.channel.sent, sentBefore+1)
	assert.Contains(t, h.channel.sent[sentBefore], "¿En qué te ayudamos?")

	pending, err := h.service.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.True(t, pending.AwaitingInput())
	assert.Equal(t, 1, pending.Runtime.Pending.Attempts)
}

func TestProcessInbound_ThreeStrikesForceAdvance(t *testing.T) {
	h := newHarness(menuFlow("flow-menu"))

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-menu"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result, err := h.service.ProcessInboundResponse(context.Background(), exec.ID, "no sé", nil)
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.False(t, result.ForceAdvance)
	}

	result, err := h.service.ProcessInboundResponse(context.Background(), exec.ID, "no sé", nil)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.True(t, result.ForceAdvance)

	final, err := h.service.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, final.Status)
	assert.Contains(t, h.channel.sent, "Sigamos sin esa respuesta")

	invalid, ok := final.Variables["eleccion"].(engine.InvalidAnswer)
	require.True(t, ok, "forced answers persist as the invalid wrapper")
	assert.True(t, invalid.Invalid)
	assert.Equal(t, 3, invalid.Attempts)
}

func TestProcessInbound_NotAwaiting(t *testing.T) {
	h := newHarness(messageFlow("flow-msg"))

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-msg"))
	require.NoError(t, err)

	// la ejecución ya terminó: responder es un error de estado
	_, err = h.service.ProcessInboundResponse(context.Background(), exec.ID, "hola", nil)
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeBusiness))
}

func TestProcessInbound_UnknownExecution(t *testing.T) {
	h := newHarness()

	_, err := h.service.ProcessInboundResponse(context.Background(), kernel.NewExecutionID("exec-nope"), "hola", nil)
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeNotFound))
}

func TestProcessInbound_RecordsInboundMessage(t *testing.T) {
	h := newHarness(menuFlow("flow-menu"))

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-menu"))
	require.NoError(t, err)
	assert.Zero(t, h.channel.inbound)

	// tanto la respuesta inválida como la aceptada quedan en el log
	_, err = h.service.ProcessInboundResponse(context.Background(), exec.ID, "99", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, h.channel.inbound)

	_, err = h.service.ProcessInboundResponse(context.Background(), exec.ID, "1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, h.channel.inbound)
}

// Un nodo de base de datos contra un host inalcanzable no aborta la ejecución:
// el fallo se guarda en la variable y el flujo sigue por la arista de error.
func TestDatabaseNode_FailureRoutesErrorEdge(t *testing.T) {
	flow := &engine.Flow{
		ID:       kernel.NewFlowID("flow-db"),
		TenantID: kernel.NewTenantID(testTenant),
		Name:     "consulta",
		IsActive: true,
		Nodes: []engine.FlowNode{
			{ID: "start", Type: engine.NodeTypeStart},
			{ID: "db", Type: engine.NodeTypeDatabase, Data: map[string]any{
				"backend":              "postgres",
				"host":                 "127.0.0.1",
				"port":                 1,
				"database":             "clientes",
				"query":                "SELECT nombre FROM clientes WHERE id = $1",
				"params":               []any{"${contact.name}"},
				"timeout":              2,
				"store_error_response": true,
				"response_variable":    "resultado",
			}},
			{ID: "msg-ok", Type: engine.NodeTypeMessage, Data: map[string]any{"text": "Encontrado"}},
			{ID: "msg-aviso", Type: engine.NodeTypeMessage, Data: map[string]any{"text": "No pudimos consultar tus datos"}},
			{ID: "end", Type: engine.NodeTypeEnd},
		},
		Edges: []engine.FlowEdge{
			{Source: "start", Target: "db"},
			{Source: "db", Target: "msg-ok"},
			{Source: "db", SourceHandle: engine.HandleError, Target: "msg-aviso"},
			{Source: "msg-ok", Target: "end"},
			{Source: "msg-aviso", Target: "end"},
		},
	}
	h := newHarness(flow)

	exec, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-db"))

	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, "end_node", exec.Runtime.FinalStatus)
	assert.Contains(t, h.channel.sent, "No pudimos consultar tus datos")
	assert.NotContains(t, h.channel.sent, "Encontrado")

	stored, ok := exec.Variables["resultado"].(map[string]any)
	require.True(t, ok, "the failure is stored because store_error_response is on")
	assert.Equal(t, false, stored["success"])
	assert.NotEmpty(t, stored["error"])
}

func TestFinalize_IsIdempotentAndCascades(t *testing.T) {
	h := newHarness(menuFlow("flow-a"), menuFlow("flow-b"))

	first, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-a"))
	require.NoError(t, err)
	second, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-b"))
	require.NoError(t, err)

	require.NoError(t, h.service.FinalizeExecution(context.Background(), first.ID, "manual_finalize"))

	finalFirst, err := h.service.GetExecution(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, finalFirst.Status)
	assert.Equal(t, "manual_finalize", finalFirst.Runtime.FinalStatus)

	finalSecond, err := h.service.GetExecution(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, finalSecond.Status)
	assert.Equal(t, "contact_finalized", finalSecond.Runtime.FinalStatus)

	// segunda finalización: no-op, el motivo original se preserva
	require.NoError(t, h.service.FinalizeExecution(context.Background(), first.ID, "otro_motivo"))
	again, err := h.service.GetExecution(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "manual_finalize", again.Runtime.FinalStatus)
}

func TestSwitchFlow_Trampoline(t *testing.T) {
	origin := &engine.Flow{
		ID:       kernel.NewFlowID("flow-origen"),
		TenantID: kernel.NewTenantID(testTenant),
		Name:     "origen",
		IsActive: true,
		Nodes: []engine.FlowNode{
			{ID: "start", Type: engine.NodeTypeStart},
			{ID: "switch", Type: engine.NodeTypeSwitchFlow, Data: map[string]any{
				"flow_id":         "flow-destino",
				"carry_variables": true,
			}},
		},
		Edges: []engine.FlowEdge{{Source: "start", Target: "switch"}},
	}
	target := messageFlow("flow-destino")
	h := newHarness(origin, target)

	req := startReq("flow-origen")
	req.InitialVariables = map[string]any{"origen": "campania"}

	final, err := h.service.StartOrResumeExecution(context.Background(), req)
	require.NoError(t, err)

	// el resultado es la ejecución del flujo destino, ya completada
	assert.Equal(t, kernel.NewFlowID("flow-destino"), final.FlowID)
	assert.Equal(t, engine.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, "campania", final.Variables["origen"], "variables carried across the switch")
	assert.Contains(t, h.channel.sent, "Hola Ana")

	// la ejecución original quedó cerrada con el motivo de cambio
	actives, err := h.repo.FindActiveByContact(context.Background(), req.ContactID)
	require.NoError(t, err)
	assert.Empty(t, actives)
}

func TestSwitchFlow_BudgetExhausted(t *testing.T) {
	// dos flujos que se apuntan entre sí agotan el presupuesto del turno
	loopFlow := func(id, targetID string) *engine.Flow {
		return &engine.Flow{
			ID:       kernel.NewFlowID(id),
			TenantID: kernel.NewTenantID(testTenant),
			Name:     id,
			IsActive: true,
			Nodes: []engine.FlowNode{
				{ID: "start", Type: engine.NodeTypeStart},
				{ID: "switch", Type: engine.NodeTypeSwitchFlow, Data: map[string]any{"flow_id": targetID}},
			},
			Edges: []engine.FlowEdge{{Source: "start", Target: "switch"}},
		}
	}
	h := newHarness(loopFlow("flow-ping", "flow-pong"), loopFlow("flow-pong", "flow-ping"))

	final, err := h.service.StartOrResumeExecution(context.Background(), startReq("flow-ping"))
	require.NoError(t, err)
	assert.Equal(t, engine.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, "switch_budget_exhausted", final.Runtime.FinalStatus)

	actives, err := h.repo.FindActiveByContact(context.Background(), kernel.NewContactID("contact-1"))
	require.NoError(t, err)
	assert.Empty(t, actives, "no execution may be left active after the budget trips")
}
