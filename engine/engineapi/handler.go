package engineapi

import (
	"log"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/gofiber/fiber/v2"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/enginesrv"
	"github.com/velora-labs/conversa/pkg/kernel"
)

// RuntimeHandler expone las operaciones del runtime de flujos
type RuntimeHandler struct {
	service *enginesrv.Service
}

func NewRuntimeHandler(service *enginesrv.Service) *RuntimeHandler {
	return &RuntimeHandler{service: service}
}

type startExecutionRequest struct {
	FlowID    string         `json:"flow_id"`
	ContactID string         `json:"contact_id"`
	TicketID  string         `json:"ticket_id,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// StartExecution arranca o reanuda una ejecución
// POST /api/v1/runtime/executions
func (h *RuntimeHandler) StartExecution(c *fiber.Ctx) error {
	tenantID, ok := GetTenant(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no tenant in context"})
	}

	var req startExecutionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.FlowID == "" || req.ContactID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "flow_id and contact_id are required"})
	}

	exec, err := h.service.StartOrResumeExecution(c.UserContext(), engine.StartRequest{
		FlowID:           kernel.NewFlowID(req.FlowID),
		TenantID:         tenantID,
		ContactID:        kernel.NewContactID(req.ContactID),
		TicketID:         kernel.NewTicketID(req.TicketID),
		InitialVariables: req.Variables,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(exec)
}

type respondRequest struct {
	Input string               `json:"input"`
	Media *engine.InboundMedia `json:"media,omitempty"`
}

// Respond procesa la respuesta del usuario sobre una ejecución suspendida
// POST /api/v1/runtime/executions/:executionId/respond
func (h *RuntimeHandler) Respond(c *fiber.Ctx) error {
	tenantID, ok := GetTenant(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no tenant in context"})
	}

	executionID := kernel.NewExecutionID(c.Params("executionId"))

	var req respondRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.checkOwnership(c, executionID, tenantID); err != nil {
		return respondError(c, err)
	}

	result, err := h.service.ProcessInboundResponse(c.UserContext(), executionID, req.Input, req.Media)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// GetExecution retorna el estado de una ejecución
// GET /api/v1/runtime/executions/:executionId
func (h *RuntimeHandler) GetExecution(c *fiber.Ctx) error {
	tenantID, ok := GetTenant(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no tenant in context"})
	}

	executionID := kernel.NewExecutionID(c.Params("executionId"))

	exec, err := h.service.GetExecution(c.UserContext(), executionID)
	if err != nil {
		return respondError(c, err)
	}
	if exec.TenantID != tenantID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "execution does not belong to tenant"})
	}

	return c.Status(fiber.StatusOK).JSON(exec)
}

type finalizeRequest struct {
	Reason string `json:"reason"`
}

// Finalize termina una ejecución manualmente
// POST /api/v1/runtime/executions/:executionId/finalize
func (h *RuntimeHandler) Finalize(c *fiber.Ctx) error {
	tenantID, ok := GetTenant(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no tenant in context"})
	}

	executionID := kernel.NewExecutionID(c.Params("executionId"))

	var req finalizeRequest
	if err := c.BodyParser(&req); err != nil {
		req.Reason = ""
	}
	if req.Reason == "" {
		req.Reason = "manual_finalize"
	}

	if err := h.checkOwnership(c, executionID, tenantID); err != nil {
		return respondError(c, err)
	}

	if err := h.service.FinalizeExecution(c.UserContext(), executionID, req.Reason); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "finalized"})
}

// Sweep dispara una pasada del monitor de inactividad
// POST /api/v1/runtime/sweep
func (h *RuntimeHandler) Sweep(c *fiber.Ctx) error {
	stats, err := h.service.SweepInactive(c.UserContext(), time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *RuntimeHandler) checkOwnership(c *fiber.Ctx, executionID kernel.ExecutionID, tenantID kernel.TenantID) error {
	exec, err := h.service.GetExecution(c.UserContext(), executionID)
	if err != nil {
		return err
	}
	if exec.TenantID != tenantID {
		return engine.ErrExecutionNotFound().WithDetail("execution_id", executionID.String())
	}
	return nil
}

// respondError traduce la taxonomía de errores del runtime a HTTP
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errx.IsType(err, errx.TypeNotFound):
		status = fiber.StatusNotFound
	case errx.IsType(err, errx.TypeValidation):
		status = fiber.StatusBadRequest
	case errx.IsType(err, errx.TypeBusiness), errx.IsType(err, errx.TypeConflict):
		status = fiber.StatusConflict
	case errx.IsType(err, errx.TypeExternal):
		status = fiber.StatusBadGateway
	case errx.IsType(err, errx.TypeAuthorization):
		status = fiber.StatusForbidden
	}

	if status == fiber.StatusInternalServerError {
		if rid, ok := kernel.RequestIDFromContext(c.UserContext()); ok {
			log.Printf("❌ Runtime API error (request %s): %v", rid, err)
		} else {
			log.Printf("❌ Runtime API error: %v", err)
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
