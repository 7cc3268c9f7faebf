package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sintaxis de sustitución de variables aceptada en prompts, URLs, headers y
// cuerpos: ${var} y {{ var }}, con rutas anidadas separadas por punto.
var (
	dollarTokenRegex = regexp.MustCompile(`\$\{([^}]+)\}`)
	braceTokenRegex  = regexp.MustCompile(`\{\{([^}]+)\}\}`)
)

// RenderTemplate reemplaza todos los tokens de un string contra las
// variables. Los tokens sin valor se dejan intactos.
func RenderTemplate(s string, vars map[string]any) string {
	render := func(match, expr string) string {
		if value, found := LookupPath(vars, strings.TrimSpace(expr)); found {
			return stringify(value)
		}
		return match
	}

	s = dollarTokenRegex.ReplaceAllStringFunc(s, func(match string) string {
		return render(match, dollarTokenRegex.FindStringSubmatch(match)[1])
	})
	s = braceTokenRegex.ReplaceAllStringFunc(s, func(match string) string {
		return render(match, braceTokenRegex.FindStringSubmatch(match)[1])
	})
	return s
}

// RenderValue aplica RenderTemplate recursivamente sobre maps, slices y
// strings. Un string que es exactamente un token se reemplaza por el valor
// tipado, no por su representación en texto.
func RenderValue(data any, vars map[string]any) any {
	switch v := data.(type) {
	case string:
		if expr, ok := wholeToken(v); ok {
			if value, found := LookupPath(vars, expr); found {
				return value
			}
			return v
		}
		return RenderTemplate(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = RenderValue(val, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = RenderValue(item, vars)
		}
		return out
	default:
		return data
	}
}

// wholeToken reporta si el string completo es un único token
func wholeToken(s string) (string, bool) {
	for _, re := range []*regexp.Regexp{dollarTokenRegex, braceTokenRegex} {
		if m := re.FindStringSubmatch(s); len(m) > 0 && m[0] == s {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// LookupPath resuelve una ruta con puntos y acceso por índice name[i] sobre
// una estructura de maps y slices.
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = data
	for _, part := range strings.Split(path, ".") {
		name, index, hasIndex, ok := splitIndex(part)
		if !ok {
			return nil, false
		}

		if name != "" {
			m, isMap := current.(map[string]any)
			if !isMap {
				return nil, false
			}
			val, exists := m[name]
			if !exists {
				return nil, false
			}
			current = val
		}

		if hasIndex {
			list, isList := current.([]any)
			if !isList || index < 0 || index >= len(list) {
				return nil, false
			}
			current = list[index]
		}
	}

	return current, true
}

// splitIndex separa "items[2]" en ("items", 2, true)
func splitIndex(part string) (name string, index int, hasIndex bool, ok bool) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, 0, false, true
	}
	if !strings.HasSuffix(part, "]") {
		return "", 0, false, false
	}
	idx, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil {
		return "", 0, false, false
	}
	return part[:open], idx, true, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// sin decimales espurios para enteros que llegan como float de JSON
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
