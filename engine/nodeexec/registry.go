package nodeexec

import (
	"context"
	"log"
	"time"

	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/adapters"
)

// Deps colaboradores compartidos por todos los handlers
type Deps struct {
	Channel engine.ChannelAdapter
	Tickets engine.TicketStore
	Configs engine.NodeConfigStore
	HTTP    *adapters.HTTPAction
	DB      *adapters.DBAction
}

// Context contexto de una invocación de handler
type Context struct {
	Flow    *engine.Flow
	Node    *engine.FlowNode
	Exec    *engine.Execution
	Contact *engine.Contact
}

// Registry despacho cerrado por tipo de nodo. El switch es exhaustivo sobre
// todos los NodeType: un tipo sin handler es un error de configuración, no un
// lookup fallido en runtime.
type Registry struct {
	deps Deps
	now  func() time.Time
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, now: time.Now}
}

// WithClock fija el reloj, para pruebas del nodo de horario
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Handle procesa el nodo actual y retorna el outcome cerrado
func (r *Registry) Handle(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	log.Printf("⚡ Processing node: %s (type: %s)", nctx.Node.ID, nctx.Node.Type)

	switch nctx.Node.Type {
	case engine.NodeTypeStart:
		return engine.Continue(), nil
	case engine.NodeTypeEnd:
		return engine.Terminate("end_node"), nil
	case engine.NodeTypeMessage:
		return r.handleMessage(ctx, nctx)
	case engine.NodeTypeQuestion:
		return r.handleQuestion(ctx, nctx)
	case engine.NodeTypeMenu:
		return r.handleMenu(ctx, nctx)
	case engine.NodeTypeConditional:
		return r.handleConditional(ctx, nctx)
	case engine.NodeTypeAttendant:
		return r.handleAttendant(ctx, nctx)
	case engine.NodeTypeQueue:
		return r.handleQueue(ctx, nctx)
	case engine.NodeTypeWebhook, engine.NodeTypeAPI:
		return r.handleHTTPAction(ctx, nctx)
	case engine.NodeTypeDatabase:
		return r.handleDatabase(ctx, nctx)
	case engine.NodeTypeSchedule:
		return r.handleSchedule(ctx, nctx)
	case engine.NodeTypeTag:
		return r.handleTag(ctx, nctx)
	case engine.NodeTypeSwitchFlow:
		return r.handleSwitchFlow(ctx, nctx)
	case engine.NodeTypeInternalNote:
		return r.handleNote(ctx, nctx)
	case engine.NodeTypeInactivity:
		return r.handleInactivityConfig(ctx, nctx)
	default:
		return engine.Outcome{}, engine.ErrConfiguration().
			WithDetail("node_id", nctx.Node.ID).
			WithDetail("reason", "unknown node type: "+string(nctx.Node.Type))
	}
}

// resolveConfig retorna la configuración del nodo: la persistida en el store
// tiene prioridad; su ausencia no es un error y cae a la inline del editor
// (soft schema).
func (r *Registry) resolveConfig(ctx context.Context, nctx *Context) map[string]any {
	if r.deps.Configs != nil {
		stored, err := r.deps.Configs.FindNodeConfig(ctx, nctx.Node.ID, nctx.Exec.TenantID)
		if err != nil {
			log.Printf("⚠️  Node config lookup failed for %s: %v", nctx.Node.ID, err)
		} else if stored != nil {
			return stored
		}
	}
	return nctx.Node.Data
}

// templateVars construye el contexto de sustitución: variables del flujo más
// los datos del contacto de la conversación.
func templateVars(nctx *Context) map[string]any {
	vars := make(map[string]any, len(nctx.Exec.Variables)+2)
	for k, v := range nctx.Exec.Variables {
		vars[k] = v
	}
	if nctx.Contact != nil {
		vars["contact"] = map[string]any{
			"name":    nctx.Contact.Name,
			"address": nctx.Contact.Address,
		}
	}
	vars["ticket_id"] = nctx.Exec.TicketID.String()
	return vars
}

// send despacha contenido por el canal y registra el mensaje saliente
func (r *Registry) send(ctx context.Context, nctx *Context, content engine.OutboundContent) error {
	if nctx.Contact == nil {
		return engine.ErrChannel().WithDetail("reason", "no contact for execution")
	}

	handle, err := r.deps.Channel.Send(ctx, nctx.Contact.Address, content)
	if err != nil {
		return engine.ErrChannel().
			WithDetail("node_id", nctx.Node.ID).
			WithDetail("cause", err.Error())
	}

	if err := r.deps.Channel.RecordOutbound(ctx, handle, nctx.Exec.ID); err != nil {
		log.Printf("⚠️  Failed to record outbound message: %v", err)
	}
	return nil
}
