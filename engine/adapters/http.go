package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/velora-labs/conversa/engine"
)

// DefaultMaxResponseBytes tope del cuerpo de respuesta que se almacena en la
// variable destino.
const DefaultMaxResponseBytes = 100 * 1024

// HTTPResult resultado de una invocación del adaptador HTTP. El handler
// siempre guarda algo en la variable destino, falle o no la llamada.
type HTTPResult struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	Body         any    `json:"body,omitempty"`
	Extracted    any    `json:"extracted,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
	Attempts     int    `json:"attempts"`
}

// StoredValue retorna el valor a escribir en la variable destino: el
// sub-valor extraído si hay ruta configurada, o el resultado completo.
func (r HTTPResult) StoredValue(hasPath bool) any {
	if r.Success && hasPath {
		return r.Extracted
	}
	return map[string]any{
		"success":     r.Success,
		"status_code": r.StatusCode,
		"body":        r.Body,
		"error":       r.ErrorMessage,
	}
}

// HTTPAction adaptador de nodos webhook/api
type HTTPAction struct {
	client         *http.Client
	defaultTimeout time.Duration
	maxBody        int64
	backoff        time.Duration
}

func NewHTTPAction(defaultTimeout time.Duration, maxBody int64) *HTTPAction {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}
	return &HTTPAction{
		client:         &http.Client{},
		defaultTimeout: defaultTimeout,
		maxBody:        maxBody,
		backoff:        time.Second,
	}
}

// Execute construye la petición desde la configuración templada, aplica la
// guardia SSRF y reintenta con backoff lineal hasta agotar el presupuesto.
// Nunca retorna error: el fallo queda descrito en el resultado para que el
// resolutor lo enrute por la arista de error.
func (a *HTTPAction) Execute(ctx context.Context, cfg engine.HTTPActionConfig, vars map[string]any) HTTPResult {
	result := HTTPResult{}

	targetURL := engine.RenderTemplate(cfg.URL, vars)
	if err := GuardURL(targetURL); err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = engine.RenderTemplate(value, vars)
	}

	var bodyBytes []byte
	if len(cfg.Body) > 0 {
		rendered := engine.RenderValue(cfg.Body, vars)
		data, err := json.Marshal(rendered)
		if err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to marshal body: %v", err)
			return result
		}
		bodyBytes = data
	}

	timeout := a.defaultTimeout
	if cfg.Timeout != nil && *cfg.Timeout > 0 {
		timeout = time.Duration(*cfg.Timeout) * time.Second
	}

	maxAttempts := cfg.GetMaxRetries() + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("🔄 HTTP retry %d/%d: %s", attempt-1, maxAttempts-1, targetURL)
			select {
			case <-ctx.Done():
				result.ErrorMessage = ctx.Err().Error()
				result.Attempts = attempt - 1
				return result
			case <-time.After(time.Duration(attempt-1) * a.backoff): // backoff lineal
			}
		}

		result.Attempts = attempt
		status, body, err := a.doOnce(ctx, cfg, targetURL, headers, bodyBytes, vars, timeout)
		if err != nil {
			result.ErrorMessage = err.Error()
			continue
		}

		result.StatusCode = status
		result.Body = body
		if status >= 200 && status < 300 {
			result.Success = true
			result.ErrorMessage = ""
			if cfg.ResponsePath != "" {
				result.Extracted = extractPath(body, cfg.ResponsePath)
			}
			return result
		}

		result.ErrorMessage = fmt.Sprintf("HTTP %d", status)
		if status < 500 {
			// los 4xx no son transitorios
			return result
		}
	}

	return result
}

func (a *HTTPAction) doOnce(
	ctx context.Context,
	cfg engine.HTTPActionConfig,
	targetURL string,
	headers map[string]string,
	body []byte,
	vars map[string]any,
	timeout time.Duration,
) (int, any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, cfg.GetMethod(), targetURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	applyAuth(req, cfg.Auth, vars)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	maxBody := a.maxBody
	if cfg.MaxResponseBytes != nil && *cfg.MaxResponseBytes > 0 && *cfg.MaxResponseBytes < maxBody {
		maxBody = *cfg.MaxResponseBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}
	return resp.StatusCode, parsed, nil
}

// applyAuth aplica el modo de autenticación configurado
func applyAuth(req *http.Request, auth engine.HTTPAuth, vars map[string]any) {
	switch auth.Mode {
	case "basic":
		req.SetBasicAuth(
			engine.RenderTemplate(auth.Username, vars),
			engine.RenderTemplate(auth.Password, vars),
		)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+engine.RenderTemplate(auth.Token, vars))
	case "apikey":
		name := auth.APIKeyName
		if name == "" {
			name = "X-API-Key"
		}
		key := engine.RenderTemplate(auth.APIKey, vars)
		if auth.APIKeyIn == "query" {
			q := req.URL.Query()
			q.Set(name, key)
			req.URL.RawQuery = q.Encode()
		} else {
			req.Header.Set(name, key)
		}
	}
}

// GuardURL rechaza destinos loopback, link-local o sin especificar antes de
// abrir la conexión. Invariante duro del adaptador (guardia SSRF).
func GuardURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return engine.ErrSSRFBlocked().WithDetail("reason", "invalid url")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return engine.ErrSSRFBlocked().WithDetail("reason", "unsupported scheme").WithDetail("url", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return engine.ErrSSRFBlocked().WithDetail("reason", "missing host")
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return engine.ErrSSRFBlocked().WithDetail("host", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return engine.ErrSSRFBlocked().WithDetail("host", host)
		}
	}

	return nil
}

// extractPath evalúa la ruta punteada con índices sobre el cuerpo parseado
func extractPath(body any, path string) any {
	root, ok := body.(map[string]any)
	if !ok {
		return nil
	}
	value, found := engine.LookupPath(root, path)
	if !found {
		return nil
	}
	return value
}
