package engine

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("FLOWRT")

var (
	// Flow errors
	CodeFlowNotFound  = ErrRegistry.Register("FLOW_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Flow not found")
	CodeFlowInactive  = ErrRegistry.Register("FLOW_INACTIVE", errx.TypeBusiness, http.StatusForbidden, "Flow is inactive")
	CodeNodeNotFound  = ErrRegistry.Register("NODE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Node not found")
	CodeCyclicFlow    = ErrRegistry.Register("CYCLIC_FLOW", errx.TypeInternal, http.StatusInternalServerError, "Flow execution exceeded step budget")
	CodeConfiguration = ErrRegistry.Register("CONFIGURATION_ERROR", errx.TypeValidation, http.StatusBadRequest, "Invalid node configuration")

	// Execution errors
	CodeExecutionNotFound  = ErrRegistry.Register("EXECUTION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Execution not found")
	CodeExecutionNotActive = ErrRegistry.Register("EXECUTION_NOT_ACTIVE", errx.TypeBusiness, http.StatusConflict, "Execution is not active")
	CodeNotAwaitingInput   = ErrRegistry.Register("NOT_AWAITING_INPUT", errx.TypeBusiness, http.StatusConflict, "Execution is not awaiting input")
	CodeVersionConflict    = ErrRegistry.Register("VERSION_CONFLICT", errx.TypeConflict, http.StatusConflict, "Execution was modified concurrently")

	// Turn-level errors
	CodeValidation = ErrRegistry.Register("VALIDATION_ERROR", errx.TypeValidation, http.StatusBadRequest, "Response validation failed")
	CodeChannel    = ErrRegistry.Register("CHANNEL_ERROR", errx.TypeExternal, http.StatusBadGateway, "Channel send failed")
	CodeAdapter    = ErrRegistry.Register("ADAPTER_ERROR", errx.TypeExternal, http.StatusBadGateway, "External action failed")
	CodeSSRF       = ErrRegistry.Register("SSRF_BLOCKED", errx.TypeValidation, http.StatusBadRequest, "Request target is not allowed")
)

// Error constructor functions
func ErrFlowNotFound() *errx.Error {
	return ErrRegistry.New(CodeFlowNotFound)
}

func ErrFlowInactive() *errx.Error {
	return ErrRegistry.New(CodeFlowInactive)
}

func ErrNodeNotFound() *errx.Error {
	return ErrRegistry.New(CodeNodeNotFound)
}

func ErrCyclicFlow() *errx.Error {
	return ErrRegistry.New(CodeCyclicFlow)
}

func ErrConfiguration() *errx.Error {
	return ErrRegistry.New(CodeConfiguration)
}

func ErrExecutionNotFound() *errx.Error {
	return ErrRegistry.New(CodeExecutionNotFound)
}

func ErrExecutionNotActive() *errx.Error {
	return ErrRegistry.New(CodeExecutionNotActive)
}

func ErrNotAwaitingInput() *errx.Error {
	return ErrRegistry.New(CodeNotAwaitingInput)
}

func ErrVersionConflict() *errx.Error {
	return ErrRegistry.New(CodeVersionConflict)
}

func ErrValidation() *errx.Error {
	return ErrRegistry.New(CodeValidation)
}

func ErrChannel() *errx.Error {
	return ErrRegistry.New(CodeChannel)
}

func ErrAdapter() *errx.Error {
	return ErrRegistry.New(CodeAdapter)
}

func ErrSSRFBlocked() *errx.Error {
	return ErrRegistry.New(CodeSSRF)
}

// IsStateError reporta si el error debe ser visible para el llamador del
// trigger en vez de marcar la ejecución como fallida. Los errores de estado
// (ejecución inexistente o no activa, flujo inexistente o inactivo) se
// registran como NotFound/Business; el resto de la taxonomía no.
func IsStateError(err error) bool {
	return errx.IsType(err, errx.TypeNotFound) || errx.IsType(err, errx.TypeBusiness)
}
