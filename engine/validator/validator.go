package validator

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/velora-labs/conversa/engine"
)

// DefaultMaxAttempts intentos de validación antes de forzar el avance
const DefaultMaxAttempts = 3

// defaultMaxMediaBytes tope de adjuntos cuando la regla no fija uno
const defaultMaxMediaBytes = 16 * 1024 * 1024

// Applied resultado de aplicar una respuesta entrante sobre la marca de
// respuesta pendiente de una ejecución.
type Applied struct {
	Accepted     bool
	ForceAdvance bool
	Value        any
	Message      string // mensaje de error para reenviar al usuario
}

// Validator valida y coacciona respuestas entrantes según el tipo esperado.
type Validator struct {
	maxAttempts int
}

func New(maxAttempts int) *Validator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Validator{maxAttempts: maxAttempts}
}

// Apply valida la entrada contra la marca pendiente de la ejecución y muta
// su estado: en éxito escribe la variable, limpia la marca y resetea el
// contador; en fallo incrementa intentos y, al agotarlos, fuerza el avance
// escribiendo el valor envoltorio inválido. Invariante duro: nunca deja una
// conversación esperando un cuarto intento.
func (v *Validator) Apply(exec *engine.Execution, raw string, media *engine.InboundMedia) Applied {
	pending := exec.Runtime.Pending
	if pending == nil {
		return Applied{Accepted: false, Message: "no hay respuesta pendiente"}
	}

	value, errMsg := v.Check(pending, raw, media)
	now := time.Now()

	if errMsg == "" {
		exec.SetVariable(pending.Variable, value)
		exec.Runtime.Pending = nil
		exec.Runtime.LastValidation = nil
		return Applied{Accepted: true, Value: value}
	}

	pending.Attempts++
	exec.Runtime.LastValidation = &engine.ValidationFailure{
		Message:  errMsg,
		RawInput: raw,
		At:       now,
	}

	if pending.Attempts >= v.maxAttempts {
		normalized := normalizeForStorage(pending.InputType, raw)
		invalid := engine.InvalidAnswer{
			Invalid:   true,
			Attempts:  pending.Attempts,
			LastInput: normalized,
		}
		exec.SetVariable(pending.Variable, invalid)
		exec.Runtime.Pending = nil
		return Applied{Accepted: false, ForceAdvance: true, Value: invalid, Message: errMsg}
	}

	return Applied{Accepted: false, Message: errMsg}
}

// Check valida y coacciona sin mutar estado. Retorna el valor coaccionado y
// un mensaje de error vacío en éxito.
func (v *Validator) Check(pending *engine.PendingResponse, raw string, media *engine.InboundMedia) (any, string) {
	rules := pending.Rules
	input := strings.TrimSpace(raw)

	switch pending.InputType {
	case engine.InputTypeText, "":
		if input == "" && media == nil {
			return nil, ruleMessage(rules, "La respuesta no puede estar vacía")
		}
		return input, ""

	case engine.InputTypeNumber:
		num, err := strconv.ParseFloat(strings.ReplaceAll(input, ",", "."), 64)
		if err != nil {
			return nil, ruleMessage(rules, "Ingresa un número válido")
		}
		return num, ""

	case engine.InputTypeEmail:
		addr, err := mail.ParseAddress(input)
		if err != nil || addr.Address != input {
			return nil, ruleMessage(rules, "Ingresa un correo electrónico válido")
		}
		return input, ""

	case engine.InputTypePhone:
		digits := OnlyDigits(input)
		if len(digits) < 8 || len(digits) > 15 {
			return nil, ruleMessage(rules, "Ingresa un número de teléfono válido")
		}
		return digits, ""

	case engine.InputTypeCPF:
		if !IsValidCPF(input) {
			return nil, ruleMessage(rules, "Ingresa un CPF válido")
		}
		return OnlyDigits(input), ""

	case engine.InputTypeCNPJ:
		if !IsValidCNPJ(input) {
			return nil, ruleMessage(rules, "Ingresa un CNPJ válido")
		}
		return OnlyDigits(input), ""

	case engine.InputTypeRegex:
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			return nil, "la regla de validación es inválida"
		}
		if !re.MatchString(input) {
			return nil, ruleMessage(rules, "La respuesta no tiene el formato esperado")
		}
		return input, ""

	case engine.InputTypeOption:
		opt, ok := MatchOption(pending.Options, input)
		if !ok {
			return nil, ruleMessage(rules, "Elige una de las opciones del menú")
		}
		return opt.ID, ""

	case engine.InputTypeMedia:
		return checkMedia(rules, media)

	default:
		return nil, fmt.Sprintf("tipo de entrada no soportado: %s", pending.InputType)
	}
}

// MatchOption resuelve una opción por posición 1-based, por ID o por label
// (literal, sin distinguir mayúsculas).
func MatchOption(options []engine.ResponseOption, input string) (engine.ResponseOption, bool) {
	input = strings.TrimSpace(input)

	if pos, err := strconv.Atoi(input); err == nil {
		if pos >= 1 && pos <= len(options) {
			return options[pos-1], true
		}
		return engine.ResponseOption{}, false
	}

	for _, opt := range options {
		if strings.EqualFold(opt.ID, input) || strings.EqualFold(opt.Label, input) {
			return opt, true
		}
	}
	return engine.ResponseOption{}, false
}

func checkMedia(rules engine.ValidationRules, media *engine.InboundMedia) (any, string) {
	if media == nil {
		return nil, ruleMessage(rules, "Envía un archivo adjunto")
	}

	if len(rules.MediaKinds) > 0 && !containsFold(rules.MediaKinds, media.Kind) {
		return nil, ruleMessage(rules, "El tipo de archivo no es aceptado")
	}

	if len(rules.MediaFormats) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(media.FileName)), ".")
		if ext == "" || !containsFold(rules.MediaFormats, ext) {
			return nil, ruleMessage(rules, "El formato del archivo no es aceptado")
		}
	}

	maxSize := rules.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = defaultMaxMediaBytes
	}
	if media.SizeBytes > maxSize {
		return nil, ruleMessage(rules, "El archivo supera el tamaño máximo permitido")
	}

	return map[string]any{
		"kind":       media.Kind,
		"url":        media.URL,
		"mime_type":  media.MimeType,
		"file_name":  media.FileName,
		"size_bytes": media.SizeBytes,
	}, ""
}

// normalizeForStorage normaliza la última entrada antes de guardarla en el
// envoltorio inválido (los documentos nacionales se guardan solo con dígitos).
func normalizeForStorage(inputType engine.InputType, raw string) string {
	switch inputType {
	case engine.InputTypeCPF, engine.InputTypeCNPJ, engine.InputTypePhone:
		return OnlyDigits(raw)
	default:
		return strings.TrimSpace(raw)
	}
}

func ruleMessage(rules engine.ValidationRules, fallback string) string {
	if rules.ErrorMessage != "" {
		return rules.ErrorMessage
	}
	return fallback
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
