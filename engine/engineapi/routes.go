package engineapi

import (
	"github.com/gofiber/fiber/v2"
)

type RuntimeRoutes struct {
	handler *RuntimeHandler
	auth    *TenantAuth
}

func NewRuntimeRoutes(handler *RuntimeHandler, auth *TenantAuth) *RuntimeRoutes {
	return &RuntimeRoutes{
		handler: handler,
		auth:    auth,
	}
}

func (r *RuntimeRoutes) RegisterRoutes(app *fiber.App) {
	runtime := app.Group("/api/v1/runtime", r.auth.Authenticate())

	runtime.Post("/executions", r.handler.StartExecution)
	runtime.Get("/executions/:executionId", r.handler.GetExecution)
	runtime.Post("/executions/:executionId/respond", r.handler.Respond)
	runtime.Post("/executions/:executionId/finalize", r.handler.Finalize)
	runtime.Post("/sweep", r.handler.Sweep)
}
