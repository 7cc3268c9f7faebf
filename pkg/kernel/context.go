package kernel

import "context"

// ============================================================================
// Context Keys - Claves para context.Context
// ============================================================================

type ContextKey string

const (
	// TenantContextKey es la clave para almacenar TenantID en context.Context
	TenantContextKey ContextKey = "tenant_id"

	// RequestIDKey es la clave para almacenar el ID de la petición
	RequestIDKey ContextKey = "request_id"
)

// WithTenant agrega el tenant autenticado al contexto, para que viaje hacia
// las capas que no ven la petición HTTP
func WithTenant(ctx context.Context, tenantID TenantID) context.Context {
	return context.WithValue(ctx, TenantContextKey, tenantID)
}

// TenantFromContext extrae el tenant del contexto
func TenantFromContext(ctx context.Context) (TenantID, bool) {
	tenantID, ok := ctx.Value(TenantContextKey).(TenantID)
	return tenantID, ok
}

// WithRequestID agrega el id de la petición al contexto
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext extrae el id de la petición del contexto
func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(RequestIDKey).(string)
	return requestID, ok
}
