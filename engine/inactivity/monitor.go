package inactivity

import (
	"context"
	"log"
	"time"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// Finalizer único camino de terminación de ejecuciones desde el monitor
type Finalizer interface {
	FinalizeExecution(ctx context.Context, executionID kernel.ExecutionID, reason string) error
}

const (
	defaultWarningMessage = "¿Sigues ahí? Responde para continuar la conversación."
	defaultEndMessage     = "La conversación se cerró por inactividad. Escríbenos de nuevo cuando quieras."
)

// Monitor barre el conjunto de ejecuciones activas y hace avanzar la
// sub-máquina de inactividad de cada una: active → warning → reengaging →
// {active | inactive}. Cada ejecución se re-lee fresca y se reescribe con
// compare-and-swap, tolerando el interleaving con un turno vivo.
type Monitor struct {
	executions engine.ExecutionRepository
	tickets    engine.TicketStore
	channel    engine.ChannelAdapter
	finalizer  Finalizer
	strategies []Strategy
	cfg        *config.RuntimeConfig
}

func NewMonitor(
	executions engine.ExecutionRepository,
	tickets engine.TicketStore,
	channel engine.ChannelAdapter,
	finalizer Finalizer,
	resumer Resumer,
	cfg *config.RuntimeConfig,
) *Monitor {
	return &Monitor{
		executions: executions,
		tickets:    tickets,
		channel:    channel,
		finalizer:  finalizer,
		strategies: DefaultStrategies(channel, resumer),
		cfg:        cfg,
	}
}

// Sweep corre una pasada sobre el conjunto activo. Los errores por ejecución
// se tragan y cuentan: una ejecución rota no aborta el lote.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) (engine.SweepStats, error) {
	active, err := m.executions.ListActive(ctx)
	if err != nil {
		return engine.SweepStats{}, err
	}

	stats := engine.SweepStats{}
	for _, stale := range active {
		stats.Scanned++
		if err := m.sweepOne(ctx, stale.ID, now, &stats); err != nil {
			stats.Errors++
			log.Printf("⚠️  Inactivity sweep failed for execution %s: %v", stale.ID, err)
		}
	}

	log.Printf("🕐 Inactivity sweep: scanned=%d warned=%d reengaged=%d recovered=%d terminated=%d errors=%d",
		stats.Scanned, stats.Warned, stats.Reengaged, stats.Recovered, stats.Terminated, stats.Errors)
	return stats, nil
}

// sweepOne computa la transición de una ejecución a partir de su estado
// persistido, nunca de una copia en memoria de la pasada anterior.
func (m *Monitor) sweepOne(ctx context.Context, id kernel.ExecutionID, now time.Time, stats *engine.SweepStats) error {
	exec, err := m.executions.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if exec == nil || !exec.IsActive() {
		return nil
	}

	switch exec.Inactivity.Status {
	case engine.InactivityStatusActive, "":
		return m.fromActive(ctx, exec, now, stats)
	case engine.InactivityStatusWarning:
		return m.fromWarning(ctx, exec, now, stats)
	case engine.InactivityStatusReengaging:
		return m.fromReengaging(ctx, exec, now, stats)
	default:
		return nil
	}
}

func (m *Monitor) fromActive(ctx context.Context, exec *engine.Execution, now time.Time, stats *engine.SweepStats) error {
	if now.Sub(exec.LastInteractionAt) < m.idleThreshold(exec) {
		return nil
	}

	exec.Inactivity.Status = engine.InactivityStatusWarning
	exec.Inactivity.WarningsSent = 1
	exec.Inactivity.LastWarningAt = &now
	exec.UpdatedAt = now

	m.sendText(ctx, exec, m.warningMessage(exec))
	if err := m.save(ctx, exec); err != nil {
		return err
	}
	stats.Warned++
	log.Printf("⏰ Execution %s went idle, warning sent", exec.ID)
	return nil
}

func (m *Monitor) fromWarning(ctx context.Context, exec *engine.Execution, now time.Time, stats *engine.SweepStats) error {
	// Un toque posterior a la advertencia significa que el usuario volvió
	// por un camino que no pasó por ProcessInboundResponse
	if m.recovered(exec) {
		return m.recover(ctx, exec, now, stats)
	}

	lastWarning := exec.LastInteractionAt
	if exec.Inactivity.LastWarningAt != nil {
		lastWarning = *exec.Inactivity.LastWarningAt
	}
	if now.Sub(lastWarning) < m.warningInterval(exec) {
		return nil
	}

	if exec.Inactivity.WarningsSent < m.maxWarnings(exec) {
		exec.Inactivity.WarningsSent++
		exec.Inactivity.LastWarningAt = &now
		exec.UpdatedAt = now

		m.sendText(ctx, exec, m.warningMessage(exec))
		if err := m.save(ctx, exec); err != nil {
			return err
		}
		stats.Warned++
		return nil
	}

	// Advertencias agotadas: ejecutar la acción configurada
	exec.Inactivity.Status = engine.InactivityStatusReengaging
	exec.Inactivity.LastWarningAt = &now
	exec.UpdatedAt = now

	switch m.action(exec) {
	case engine.InactivityActionEnd:
		if err := m.save(ctx, exec); err != nil {
			return err
		}
		return m.terminate(ctx, exec, now, stats)

	case engine.InactivityActionTransfer:
		if err := m.save(ctx, exec); err != nil {
			return err
		}
		return m.transfer(ctx, exec, stats)

	case engine.InactivityActionWarn:
		m.sendText(ctx, exec, m.warningMessage(exec))
		if err := m.save(ctx, exec); err != nil {
			return err
		}
		stats.Warned++
		return nil

	default: // REENGAGE
		name, ok := m.reengage(ctx, exec, now)
		if err := m.save(ctx, exec); err != nil {
			return err
		}
		stats.Reengaged++
		log.Printf("🔁 Execution %s reengaged via %s (success=%t)", exec.ID, name, ok)
		return nil
	}
}

func (m *Monitor) fromReengaging(ctx context.Context, exec *engine.Execution, now time.Time, stats *engine.SweepStats) error {
	if m.recovered(exec) {
		return m.recover(ctx, exec, now, stats)
	}

	lastWarning := exec.LastInteractionAt
	if exec.Inactivity.LastWarningAt != nil {
		lastWarning = *exec.Inactivity.LastWarningAt
	}
	if now.Sub(lastWarning) >= m.reengageGrace(exec) {
		return m.terminate(ctx, exec, now, stats)
	}

	// Tope duro sobre la inactividad total, independiente de la cadencia de
	// advertencias y reenganches
	if limit := m.inactiveAfter(exec); limit > 0 && now.Sub(exec.LastInteractionAt) >= limit {
		return m.terminate(ctx, exec, now, stats)
	}

	return nil
}

// recovered detecta una interacción posterior a la última advertencia
func (m *Monitor) recovered(exec *engine.Execution) bool {
	return exec.Inactivity.LastWarningAt != nil &&
		exec.LastInteractionAt.After(*exec.Inactivity.LastWarningAt)
}

func (m *Monitor) recover(ctx context.Context, exec *engine.Execution, now time.Time, stats *engine.SweepStats) error {
	exec.Inactivity.Status = engine.InactivityStatusActive
	exec.Inactivity.WarningsSent = 0
	exec.Inactivity.LastWarningAt = nil
	exec.UpdatedAt = now

	if err := m.save(ctx, exec); err != nil {
		return err
	}
	stats.Recovered++
	log.Printf("💚 Execution %s recovered from inactivity", exec.ID)
	return nil
}

func (m *Monitor) terminate(ctx context.Context, exec *engine.Execution, now time.Time, stats *engine.SweepStats) error {
	exec.Inactivity.Status = engine.InactivityStatusInactive
	exec.UpdatedAt = now
	if err := m.save(ctx, exec); err != nil {
		return err
	}

	m.sendText(ctx, exec, m.endMessage(exec))

	if err := m.finalizer.FinalizeExecution(ctx, exec.ID, "inactivity_timeout"); err != nil {
		return err
	}
	stats.Terminated++
	return nil
}

func (m *Monitor) transfer(ctx context.Context, exec *engine.Execution, stats *engine.SweepStats) error {
	queueID := ""
	if exec.Inactivity.Config != nil {
		queueID = exec.Inactivity.Config.TransferQueueID
	}
	if queueID != "" && !exec.TicketID.IsEmpty() {
		if err := m.tickets.AssignQueue(ctx, exec.TicketID, kernel.NewQueueID(queueID)); err != nil {
			log.Printf("⚠️  Inactivity transfer to queue %s failed: %v", queueID, err)
		}
	}

	if err := m.finalizer.FinalizeExecution(ctx, exec.ID, "inactivity_transfer"); err != nil {
		return err
	}
	stats.Terminated++
	return nil
}

// reengage corre la cadena de estrategias en orden de prioridad y ejecuta
// solo la primera aplicable, registrando el resultado como métrica.
func (m *Monitor) reengage(ctx context.Context, exec *engine.Execution, now time.Time) (string, bool) {
	contact, err := m.tickets.FindContact(ctx, exec.ContactID)
	if err != nil {
		log.Printf("⚠️  Contact lookup failed for %s: %v", exec.ContactID, err)
	}

	for _, strategy := range m.strategies {
		if !strategy.Applies(exec) {
			continue
		}
		err := strategy.Execute(ctx, exec, contact)
		if err != nil {
			log.Printf("⚠️  Reengagement strategy %s failed for %s: %v", strategy.Name(), exec.ID, err)
		}
		exec.RecordReengagement(strategy.Name(), err == nil, now)
		return strategy.Name(), err == nil
	}
	return "", false
}

// save persiste con CAS. Un conflicto significa que un turno vivo escribió
// entre la lectura y esta escritura: el monitor cede y reintenta la
// transición en la próxima pasada.
func (m *Monitor) save(ctx context.Context, exec *engine.Execution) error {
	err := m.executions.Update(ctx, exec)
	if err == nil {
		return nil
	}
	log.Printf("ℹ️  Skipping stale inactivity write for execution %s: %v", exec.ID, err)
	return nil
}

func (m *Monitor) sendText(ctx context.Context, exec *engine.Execution, text string) {
	contact, err := m.tickets.FindContact(ctx, exec.ContactID)
	if err != nil || contact == nil {
		log.Printf("⚠️  Cannot send inactivity message, contact lookup failed for %s: %v", exec.ContactID, err)
		return
	}
	handle, err := m.channel.Send(ctx, contact.Address, engine.OutboundContent{Type: "text", Text: text})
	if err != nil {
		log.Printf("⚠️  Failed to send inactivity message for %s: %v", exec.ID, err)
		return
	}
	if err := m.channel.RecordOutbound(ctx, handle, exec.ID); err != nil {
		log.Printf("⚠️  Failed to record outbound message: %v", err)
	}
}

// ============================================================================
// Thresholds — per-flow config overrides global defaults
// ============================================================================

// idleThreshold es sensible al contexto: esperar una opción de menú, esperar
// texto libre y el idle general tienen umbrales distintos.
func (m *Monitor) idleThreshold(exec *engine.Execution) time.Duration {
	cfg := exec.Inactivity.Config
	pending := exec.Runtime.Pending

	switch {
	case pending != nil && pending.InputType == engine.InputTypeOption:
		if cfg != nil && cfg.MenuIdleSeconds > 0 {
			return time.Duration(cfg.MenuIdleSeconds) * time.Second
		}
		return m.cfg.MenuIdleTimeout
	case pending != nil:
		if cfg != nil && cfg.TextIdleSeconds > 0 {
			return time.Duration(cfg.TextIdleSeconds) * time.Second
		}
		return m.cfg.TextIdleTimeout
	default:
		if cfg != nil && cfg.IdleSeconds > 0 {
			return time.Duration(cfg.IdleSeconds) * time.Second
		}
		return m.cfg.GeneralIdleTimeout
	}
}

func (m *Monitor) warningInterval(exec *engine.Execution) time.Duration {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.WarningInterval > 0 {
		return time.Duration(cfg.WarningInterval) * time.Second
	}
	return m.cfg.WarningInterval
}

func (m *Monitor) maxWarnings(exec *engine.Execution) int {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.MaxWarnings > 0 {
		return cfg.MaxWarnings
	}
	return m.cfg.MaxWarnings
}

func (m *Monitor) reengageGrace(exec *engine.Execution) time.Duration {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.ReengageGrace > 0 {
		return time.Duration(cfg.ReengageGrace) * time.Second
	}
	return m.cfg.ReengageGrace
}

// inactiveAfter tope absoluto reengaging → inactive; cero lo deshabilita
func (m *Monitor) inactiveAfter(exec *engine.Execution) time.Duration {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.InactiveAfter > 0 {
		return time.Duration(cfg.InactiveAfter) * time.Second
	}
	return m.cfg.InactiveAfter
}

func (m *Monitor) action(exec *engine.Execution) engine.InactivityAction {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.Action != "" {
		return cfg.Action
	}
	return engine.InactivityActionReengage
}

func (m *Monitor) warningMessage(exec *engine.Execution) string {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.WarningMessage != "" {
		return cfg.WarningMessage
	}
	return defaultWarningMessage
}

func (m *Monitor) endMessage(exec *engine.Execution) string {
	if cfg := exec.Inactivity.Config; cfg != nil && cfg.EndMessage != "" {
		return cfg.EndMessage
	}
	return defaultEndMessage
}
