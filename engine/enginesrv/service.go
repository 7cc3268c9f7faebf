package enginesrv

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/executor"
	"github.com/velora-labs/conversa/engine/validator"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// Sweeper corre una pasada del monitor de inactividad. Lo implementa el
// monitor y se engancha después de construir el servicio, porque el monitor
// a su vez finaliza y reanuda ejecuciones a través del servicio.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (engine.SweepStats, error)
}

// Service orquesta el ciclo de vida de las ejecuciones: arranque, turnos
// entrantes, barrido de inactividad y finalización.
type Service struct {
	executions engine.ExecutionRepository
	flows      engine.FlowRepository
	tickets    engine.TicketStore
	channel    engine.ChannelAdapter
	bus        engine.NotificationBus
	loop       *executor.Executor
	validator  *validator.Validator
	cfg        *config.RuntimeConfig
	sweeper    Sweeper
}

func NewService(
	executions engine.ExecutionRepository,
	flows engine.FlowRepository,
	tickets engine.TicketStore,
	channel engine.ChannelAdapter,
	bus engine.NotificationBus,
	loop *executor.Executor,
	v *validator.Validator,
	cfg *config.RuntimeConfig,
) *Service {
	return &Service{
		executions: executions,
		flows:      flows,
		tickets:    tickets,
		channel:    channel,
		bus:        bus,
		loop:       loop,
		validator:  v,
		cfg:        cfg,
	}
}

// AttachMonitor engancha el monitor de inactividad una vez construido
func (s *Service) AttachMonitor(m Sweeper) {
	s.sweeper = m
}

// SweepInactive delega la pasada al monitor enganchado
func (s *Service) SweepInactive(ctx context.Context, now time.Time) (engine.SweepStats, error) {
	if s.sweeper == nil {
		return engine.SweepStats{}, engine.ErrConfiguration().
			WithDetail("reason", "inactivity monitor not attached")
	}
	return s.sweeper.Sweep(ctx, now)
}

// StartOrResumeExecution arranca una ejecución del flujo para el contacto, o
// reutiliza la activa si ya existe: nunca hay dos activas para el mismo par
// (flow, contact).
func (s *Service) StartOrResumeExecution(ctx context.Context, req engine.StartRequest) (*engine.Execution, error) {
	flow, err := s.flows.FindByID(ctx, req.FlowID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, engine.ErrFlowNotFound().WithDetail("flow_id", req.FlowID.String())
	}
	if !flow.IsActive {
		return nil, engine.ErrFlowInactive().WithDetail("flow_id", req.FlowID.String())
	}

	existing, err := s.executions.FindActiveByFlowAndContact(ctx, req.FlowID, req.ContactID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("♻️  Reusing active execution %s for flow %s / contact %s",
			existing.ID, req.FlowID, req.ContactID)
		for k, v := range req.InitialVariables {
			existing.SetVariable(k, v)
		}
		if len(req.InitialVariables) > 0 {
			if err := s.saveExecution(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	exec := engine.NewExecution(flow, req.ContactID, req.TicketID, req.InitialVariables)
	if err := s.executions.Create(ctx, exec); err != nil {
		return nil, err
	}
	log.Printf("🚀 Started execution %s for flow %s / contact %s", exec.ID, flow.ID, req.ContactID)

	if !exec.TicketID.IsEmpty() {
		if err := s.tickets.FindOrCreateTracking(ctx, exec.TicketID); err != nil {
			log.Printf("⚠️  Failed to create ticket tracking for %s: %v", exec.TicketID, err)
		}
	}

	s.publish(ctx, exec, engine.ExecutionEvent{
		Type:        "execution.started",
		ExecutionID: exec.ID,
		FlowID:      exec.FlowID,
		ContactID:   exec.ContactID,
		Status:      exec.Status,
	})

	return s.drive(ctx, flow, exec)
}

// drive corre el loop hasta suspensión o terminación, atendiendo las
// instrucciones de cambio de flujo como trampolín: la ejecución vieja se
// finaliza, se crea una nueva para el flujo destino y el loop se re-entra,
// acotado por el presupuesto de cambios por turno.
func (s *Service) drive(ctx context.Context, flow *engine.Flow, exec *engine.Execution) (*engine.Execution, error) {
	contact, err := s.tickets.FindContact(ctx, exec.ContactID)
	if err != nil {
		log.Printf("⚠️  Contact lookup failed for %s: %v", exec.ContactID, err)
		contact = nil
	}

	budget := s.cfg.MaxFlowSwitches

	for {
		run, err := s.loop.Run(ctx, flow, exec, contact)
		if err != nil {
			if engine.IsStateError(err) {
				return nil, err
			}
			exec.MarkError(err.Error())
			if serr := s.saveExecution(ctx, exec); serr != nil {
				log.Printf("❌ Failed to persist errored execution %s: %v", exec.ID, serr)
			}
			s.releaseTicket(ctx, exec)
			s.publishFinished(ctx, exec)
			return exec, nil
		}

		if run.Switch != nil {
			if budget <= 0 {
				log.Printf("⚠️  Flow switch budget exhausted for execution %s", exec.ID)
				if err := s.finalizeLoaded(ctx, exec, "switch_budget_exhausted"); err != nil {
					return exec, err
				}
				return exec, nil
			}
			budget--

			nextFlow, err := s.flows.FindByID(ctx, run.Switch.FlowID, exec.TenantID)
			if err != nil || nextFlow == nil || !nextFlow.IsActive {
				log.Printf("❌ Switch target flow %s unavailable: %v", run.Switch.FlowID, err)
				if ferr := s.finalizeLoaded(ctx, exec, "switch_target_unavailable"); ferr != nil {
					return exec, ferr
				}
				return exec, nil
			}

			var carry map[string]any
			if run.Switch.CarryVariables {
				carry = exec.UserVariables()
			}

			exec.MarkCompleted("switched_flow")
			if err := s.saveExecution(ctx, exec); err != nil {
				log.Printf("⚠️  Failed to persist switched-away execution %s: %v", exec.ID, err)
			}
			s.publishFinished(ctx, exec)

			next := engine.NewExecution(nextFlow, exec.ContactID, exec.TicketID, carry)
			if err := s.executions.Create(ctx, next); err != nil {
				return exec, err
			}
			log.Printf("🔀 Execution %s switched to flow %s as %s", exec.ID, nextFlow.ID, next.ID)

			exec, flow = next, nextFlow
			continue
		}

		if run.Suspended {
			if err := s.saveExecution(ctx, exec); err != nil {
				return exec, err
			}
			s.publish(ctx, exec, engine.ExecutionEvent{
				Type:        "execution.suspended",
				ExecutionID: exec.ID,
				FlowID:      exec.FlowID,
				ContactID:   exec.ContactID,
				NodeID:      exec.CurrentNodeID,
				Status:      exec.Status,
			})
			return exec, nil
		}

		if run.Failed {
			if err := s.saveExecution(ctx, exec); err != nil {
				log.Printf("❌ Failed to persist errored execution %s: %v", exec.ID, err)
			}
			s.releaseTicket(ctx, exec)
			s.publishFinished(ctx, exec)
			return exec, nil
		}

		if err := s.finalizeLoaded(ctx, exec, run.Reason); err != nil {
			return exec, err
		}
		return exec, nil
	}
}

// GetExecution retorna una ejecución por id
func (s *Service) GetExecution(ctx context.Context, id kernel.ExecutionID) (*engine.Execution, error) {
	exec, err := s.executions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, engine.ErrExecutionNotFound().WithDetail("execution_id", id.String())
	}
	return exec, nil
}

// RestartExecution limpia una marca pendiente atascada y re-corre el loop
// desde el nodo actual. Lo usa la estrategia de reenganche de nodo atascado.
func (s *Service) RestartExecution(ctx context.Context, executionID kernel.ExecutionID) error {
	exec, err := s.executions.FindByID(ctx, executionID)
	if err != nil {
		return err
	}
	if exec == nil {
		return engine.ErrExecutionNotFound().WithDetail("execution_id", executionID.String())
	}
	if !exec.IsActive() {
		return engine.ErrExecutionNotActive().WithDetail("execution_id", executionID.String())
	}

	exec.Runtime.Pending = nil
	exec.Runtime.LastValidation = nil

	flow, err := s.flows.FindByID(ctx, exec.FlowID, exec.TenantID)
	if err != nil {
		return err
	}
	if flow == nil {
		return engine.ErrFlowNotFound().WithDetail("flow_id", exec.FlowID.String())
	}

	log.Printf("🔄 Restarting execution %s from node %s", exec.ID, exec.CurrentNodeID)
	_, err = s.drive(ctx, flow, exec)
	return err
}

// saveExecution persiste con compare-and-swap. Una escritura obsoleta re-lee
// la versión fresca y reescribe encima: el monitor y el turno vivo tocan
// campos disjuntos, así que last-writer-wins es aceptable aquí.
func (s *Service) saveExecution(ctx context.Context, exec *engine.Execution) error {
	err := s.executions.Update(ctx, exec)
	if err == nil {
		return nil
	}
	if !errx.IsType(err, errx.TypeConflict) {
		return err
	}

	fresh, ferr := s.executions.FindByID(ctx, exec.ID)
	if ferr != nil || fresh == nil {
		return err
	}
	exec.Version = fresh.Version
	return s.executions.Update(ctx, exec)
}

func (s *Service) publish(ctx context.Context, exec *engine.Execution, event engine.ExecutionEvent) {
	if s.bus == nil {
		return
	}
	channel := "tenant:" + exec.TenantID.String() + ":executions"
	if err := s.bus.Publish(ctx, channel, event); err != nil {
		log.Printf("⚠️  Failed to publish %s event: %v", event.Type, err)
	}
}

func (s *Service) publishFinished(ctx context.Context, exec *engine.Execution) {
	s.publish(ctx, exec, engine.ExecutionEvent{
		Type:        "execution.finished",
		ExecutionID: exec.ID,
		FlowID:      exec.FlowID,
		ContactID:   exec.ContactID,
		Status:      exec.Status,
		Detail:      exec.Runtime.FinalStatus,
	})
}
