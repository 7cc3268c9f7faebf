package inactivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// ============================================================================
// Fakes
// ============================================================================

type memRepo struct {
	mu    sync.Mutex
	store map[kernel.ExecutionID]*engine.Execution
}

func newMemRepo(execs ...*engine.Execution) *memRepo {
	r := &memRepo{store: make(map[kernel.ExecutionID]*engine.Execution)}
	for _, exec := range execs {
		copied := *exec
		r.store[exec.ID] = &copied
	}
	return r
}

func (r *memRepo) Create(_ context.Context, exec *engine.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *exec
	r.store[exec.ID] = &copied
	return nil
}

func (r *memRepo) Update(_ context.Context, exec *engine.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.store[exec.ID]
	if !ok {
		return engine.ErrExecutionNotFound()
	}
	if current.Version != exec.Version {
		return engine.ErrVersionConflict()
	}
	exec.Version++
	copied := *exec
	r.store[exec.ID] = &copied
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id kernel.ExecutionID) (*engine.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.store[id]
	if !ok {
		return nil, nil
	}
	copied := *exec
	return &copied, nil
}

func (r *memRepo) FindActiveByFlowAndContact(_ context.Context, _ kernel.FlowID, _ kernel.ContactID) (*engine.Execution, error) {
	return nil, nil
}

func (r *memRepo) FindActiveByContact(_ context.Context, _ kernel.ContactID) ([]*engine.Execution, error) {
	return nil, nil
}

func (r *memRepo) ListActive(_ context.Context) ([]*engine.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*engine.Execution
	for _, exec := range r.store {
		if exec.IsActive() {
			copied := *exec
			out = append(out, &copied)
		}
	}
	return out, nil
}

type stubTickets struct {
	assigned []kernel.QueueID
}

func (s *stubTickets) FindTicket(_ context.Context, id kernel.TicketID) (*engine.Ticket, error) {
	return &engine.Ticket{ID: id}, nil
}

func (s *stubTickets) FindContact(_ context.Context, id kernel.ContactID) (*engine.Contact, error) {
	return &engine.Contact{ID: id, Name: "Ana", Address: "+51987654321"}, nil
}

func (s *stubTickets) UpdateTicket(_ context.Context, _ kernel.TicketID, _ map[string]any) error {
	return nil
}

func (s *stubTickets) FindOrCreateTracking(_ context.Context, _ kernel.TicketID) error { return nil }

func (s *stubTickets) AssignQueue(_ context.Context, _ kernel.TicketID, queueID kernel.QueueID) error {
	s.assigned = append(s.assigned, queueID)
	return nil
}

func (s *stubTickets) AttachTag(_ context.Context, _ kernel.ContactID, _ string) error { return nil }
func (s *stubTickets) AddNote(_ context.Context, _ kernel.TicketID, _ string) error    { return nil }

type stubChannel struct {
	sent []string
}

func (c *stubChannel) Send(_ context.Context, _ string, content engine.OutboundContent) (engine.MessageHandle, error) {
	c.sent = append(c.sent, content.Text)
	return engine.MessageHandle{ID: kernel.NewMessageID(uuid.NewString())}, nil
}

func (c *stubChannel) RecordOutbound(_ context.Context, _ engine.MessageHandle, _ kernel.ExecutionID) error {
	return nil
}

func (c *stubChannel) RecordInbound(_ context.Context, _ engine.MessageHandle, _ kernel.ExecutionID) error {
	return nil
}

type stubFinalizer struct {
	repo    *memRepo
	reasons map[kernel.ExecutionID]string
}

func (f *stubFinalizer) FinalizeExecution(ctx context.Context, id kernel.ExecutionID, reason string) error {
	if f.reasons == nil {
		f.reasons = make(map[kernel.ExecutionID]string)
	}
	f.reasons[id] = reason
	exec, err := f.repo.FindByID(ctx, id)
	if err != nil || exec == nil {
		return err
	}
	exec.MarkCompleted(reason)
	return f.repo.Update(ctx, exec)
}

type stubResumer struct {
	restarted []kernel.ExecutionID
}

func (r *stubResumer) RestartExecution(_ context.Context, id kernel.ExecutionID) error {
	r.restarted = append(r.restarted, id)
	return nil
}

// ============================================================================
// Harness
// ============================================================================

func testConfig() *config.RuntimeConfig {
	return &config.RuntimeConfig{
		GeneralIdleTimeout: 30 * time.Minute,
		MenuIdleTimeout:    10 * time.Minute,
		TextIdleTimeout:    15 * time.Minute,
		WarningInterval:    5 * time.Minute,
		MaxWarnings:        2,
		ReengageGrace:      30 * time.Minute,
		InactiveAfter:      3 * time.Hour,
	}
}

func idleExecution(id string, lastInteraction time.Time) *engine.Execution {
	return &engine.Execution{
		ID:                kernel.NewExecutionID(id),
		FlowID:            kernel.NewFlowID("flow-1"),
		TenantID:          kernel.NewTenantID("tenant-1"),
		ContactID:         kernel.NewContactID("contact-1"),
		TicketID:          kernel.NewTicketID("ticket-1"),
		Status:            engine.ExecutionStatusActive,
		Inactivity:        engine.InactivityState{Status: engine.InactivityStatusActive},
		LastInteractionAt: lastInteraction,
	}
}

func awaitingMenu(exec *engine.Execution) *engine.Execution {
	exec.Runtime.Pending = &engine.PendingResponse{
		NodeID:    "menu",
		Variable:  "eleccion",
		InputType: engine.InputTypeOption,
		Prompt:    "Elige una opción:\n1. Ventas\n2. Soporte",
	}
	return exec
}

type bench struct {
	monitor   *Monitor
	repo      *memRepo
	tickets   *stubTickets
	channel   *stubChannel
	finalizer *stubFinalizer
	resumer   *stubResumer
}

func newBench(cfg *config.RuntimeConfig, execs ...*engine.Execution) *bench {
	repo := newMemRepo(execs...)
	tickets := &stubTickets{}
	channel := &stubChannel{}
	finalizer := &stubFinalizer{repo: repo}
	resumer := &stubResumer{}

	return &bench{
		monitor:   NewMonitor(repo, tickets, channel, finalizer, resumer, cfg),
		repo:      repo,
		tickets:   tickets,
		channel:   channel,
		finalizer: finalizer,
		resumer:   resumer,
	}
}

func (b *bench) get(t *testing.T, id string) *engine.Execution {
	t.Helper()
	exec, err := b.repo.FindByID(context.Background(), kernel.NewExecutionID(id))
	require.NoError(t, err)
	require.NotNil(t, exec)
	return exec
}

// ============================================================================
// Tests
// ============================================================================

func TestSweep_IdleExecutionGetsWarned(t *testing.T) {
	now := time.Now()
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-20*time.Minute)))
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Warned)
	require.Len(t, b.channel.sent, 1)

	after := b.get(t, "exec-1")
	assert.Equal(t, engine.InactivityStatusWarning, after.Inactivity.Status)
	assert.Equal(t, 1, after.Inactivity.WarningsSent)
	require.NotNil(t, after.Inactivity.LastWarningAt)
}

func TestSweep_FreshExecutionIsLeftAlone(t *testing.T) {
	now := time.Now()
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-2*time.Minute)))
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Zero(t, stats.Warned)
	assert.Empty(t, b.channel.sent)
	assert.Equal(t, engine.InactivityStatusActive, b.get(t, "exec-1").Inactivity.Status)
}

// El umbral de idle es sensible al contexto: esperar menú vence antes que el
// idle general.
func TestSweep_MenuThresholdIsShorterThanGeneral(t *testing.T) {
	now := time.Now()
	menuExec := awaitingMenu(idleExecution("exec-menu", now.Add(-12*time.Minute)))
	plainExec := idleExecution("exec-plain", now.Add(-12*time.Minute))
	b := newBench(testConfig(), menuExec, plainExec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Warned)
	assert.Equal(t, engine.InactivityStatusWarning, b.get(t, "exec-menu").Inactivity.Status)
	assert.Equal(t, engine.InactivityStatusActive, b.get(t, "exec-plain").Inactivity.Status)
}

func TestSweep_PerFlowConfigOverridesThreshold(t *testing.T) {
	now := time.Now()
	exec := idleExecution("exec-1", now.Add(-3*time.Minute))
	exec.Inactivity.Config = &engine.InactivityConfig{IdleSeconds: 60}
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Warned)
}

func TestSweep_WarningRepeatsUntilMax(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-6 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-30*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 1
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Warned)

	after := b.get(t, "exec-1")
	assert.Equal(t, engine.InactivityStatusWarning, after.Inactivity.Status)
	assert.Equal(t, 2, after.Inactivity.WarningsSent)
}

func TestSweep_WarningIntervalGatesResend(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-1 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-30*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 1
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Zero(t, stats.Warned)
	assert.Empty(t, b.channel.sent)
}

// Una interacción posterior a la advertencia recupera la ejecución y resetea
// los contadores.
func TestSweep_RecoversAfterUserActivity(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-10 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-5*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 2
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Recovered)

	after := b.get(t, "exec-1")
	assert.Equal(t, engine.InactivityStatusActive, after.Inactivity.Status)
	assert.Zero(t, after.Inactivity.WarningsSent)
	assert.Nil(t, after.Inactivity.LastWarningAt)
}

// Agotadas las advertencias con la acción por defecto, la cadena de
// estrategias corre y la primera aplicable gana: menú pendiente → resend_menu.
func TestSweep_ReengageResendsMenuFirst(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-10 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-40*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 2
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reengaged)
	require.Len(t, b.channel.sent, 1)
	assert.Contains(t, b.channel.sent[0], "Elige una opción")

	after := b.get(t, "exec-1")
	assert.Equal(t, engine.InactivityStatusReengaging, after.Inactivity.Status)
	require.Len(t, after.Runtime.Reengagement, 1)
	assert.Equal(t, "resend_menu", after.Runtime.Reengagement[0].Strategy)
	assert.True(t, after.Runtime.Reengagement[0].Success)
}

func TestSweep_ReengageRestartsWhenNothingPending(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-10 * time.Minute)
	exec := idleExecution("exec-1", now.Add(-2*time.Hour))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 2
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	_, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, []kernel.ExecutionID{exec.ID}, b.resumer.restarted)

	after := b.get(t, "exec-1")
	require.Len(t, after.Runtime.Reengagement, 1)
	assert.Equal(t, "clear_stuck_restart", after.Runtime.Reengagement[0].Strategy)
}

func TestSweep_EndActionTerminates(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-10 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-40*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 2
	exec.Inactivity.LastWarningAt = &warnedAt
	exec.Inactivity.Config = &engine.InactivityConfig{Action: engine.InactivityActionEnd}
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Terminated)
	assert.Equal(t, "inactivity_timeout", b.finalizer.reasons[exec.ID])
	require.NotEmpty(t, b.channel.sent)
}

func TestSweep_TransferActionAssignsQueue(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-10 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-40*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 2
	exec.Inactivity.LastWarningAt = &warnedAt
	exec.Inactivity.Config = &engine.InactivityConfig{
		Action:          engine.InactivityActionTransfer,
		TransferQueueID: "queue-humanos",
	}
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Terminated)
	assert.Equal(t, []kernel.QueueID{kernel.NewQueueID("queue-humanos")}, b.tickets.assigned)
	assert.Equal(t, "inactivity_transfer", b.finalizer.reasons[exec.ID])
}

func TestSweep_ReengagingGraceExpiresToTermination(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-45 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-2*time.Hour)))
	exec.Inactivity.Status = engine.InactivityStatusReengaging
	exec.Inactivity.WarningsSent = 2
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Terminated)
	assert.Equal(t, "inactivity_timeout", b.finalizer.reasons[exec.ID])
}

// El tope absoluto de inactividad cierra la ejecución aunque la gracia del
// último reenganche no haya vencido todavía.
func TestSweep_ReengagingInactiveAfterCapTerminates(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-5 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-4*time.Hour)))
	exec.Inactivity.Status = engine.InactivityStatusReengaging
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Terminated)
	assert.Equal(t, "inactivity_timeout", b.finalizer.reasons[exec.ID])
}

func TestSweep_PerFlowInactiveAfterOverride(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-2 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-20*time.Minute)))
	exec.Inactivity.Status = engine.InactivityStatusReengaging
	exec.Inactivity.LastWarningAt = &warnedAt
	exec.Inactivity.Config = &engine.InactivityConfig{InactiveAfter: 600}
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Terminated)
}

func TestSweep_ReengagingWithinGraceWaits(t *testing.T) {
	now := time.Now()
	warnedAt := now.Add(-5 * time.Minute)
	exec := awaitingMenu(idleExecution("exec-1", now.Add(-2*time.Hour)))
	exec.Inactivity.Status = engine.InactivityStatusReengaging
	exec.Inactivity.LastWarningAt = &warnedAt
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Zero(t, stats.Terminated)
	assert.Equal(t, engine.InactivityStatusReengaging, b.get(t, "exec-1").Inactivity.Status)
}

func TestSweep_TerminalExecutionsAreSkipped(t *testing.T) {
	now := time.Now()
	exec := idleExecution("exec-1", now.Add(-2*time.Hour))
	exec.Status = engine.ExecutionStatusCompleted
	b := newBench(testConfig(), exec)

	stats, err := b.monitor.Sweep(context.Background(), now)

	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)
	assert.Empty(t, b.channel.sent)
}

func TestDefaultStrategies_Order(t *testing.T) {
	strategies := DefaultStrategies(&stubChannel{}, &stubResumer{})

	var names []string
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"resend_menu", "resend_question", "clear_stuck_restart", "generic_ping"}, names)

	menuExec := awaitingMenu(idleExecution("e", time.Now()))
	assert.True(t, strategies[0].Applies(menuExec))
	assert.True(t, strategies[1].Applies(menuExec))

	stuck := idleExecution("e2", time.Now())
	assert.False(t, strategies[0].Applies(stuck))
	assert.False(t, strategies[1].Applies(stuck))
	assert.True(t, strategies[2].Applies(stuck))
	assert.True(t, strategies[3].Applies(stuck))
}
