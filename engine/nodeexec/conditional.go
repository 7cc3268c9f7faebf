package nodeexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/velora-labs/conversa/engine"
)

// handleConditional evalúa los predicados configurados contra las variables
// en orden y retorna la rama de la primera condición que cumple
// (condition-<id>), o default si ninguna.
func (r *Registry) handleConditional(ctx context.Context, nctx *Context) (engine.Outcome, error) {
	cfg, err := engine.ExtractConditionalConfig(r.resolveConfig(ctx, nctx))
	if err != nil {
		return engine.Outcome{}, err
	}

	vars := templateVars(nctx)
	for _, cond := range cfg.Conditions {
		if evalCondition(cond, vars) {
			return engine.ContinueBranch("condition-" + cond.ID), nil
		}
	}

	return engine.Continue(), nil
}

func evalCondition(cond engine.Condition, vars map[string]any) bool {
	actual, exists := engine.LookupPath(vars, cond.Variable)

	switch cond.Operator {
	case "exists":
		return exists
	case "notExists":
		return !exists
	}

	if !exists {
		return false
	}

	switch cond.Operator {
	case "equals":
		return equalsLoose(actual, cond.Value)
	case "notEquals":
		return !equalsLoose(actual, cond.Value)
	case "contains":
		return strings.Contains(toString(actual), toString(cond.Value))
	case "startsWith":
		return strings.HasPrefix(toString(actual), toString(cond.Value))
	case "greater":
		return compareNumeric(actual, cond.Value, "gt")
	case "less":
		return compareNumeric(actual, cond.Value, "lt")
	case "greaterOrEqual":
		return compareNumeric(actual, cond.Value, "gte")
	case "lessOrEqual":
		return compareNumeric(actual, cond.Value, "lte")
	case "regex":
		re, err := regexp.Compile(toString(cond.Value))
		return err == nil && re.MatchString(toString(actual))
	default:
		return false
	}
}

// equalsLoose compara números como números y el resto como texto, porque los
// valores llegan mezclados del editor (JSON) y de las respuestas coaccionadas.
func equalsLoose(a, b any) bool {
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}
	return strings.EqualFold(toString(a), toString(b))
}

func compareNumeric(a, b any, operator string) bool {
	aFloat, aOk := toFloat64(a)
	bFloat, bOk := toFloat64(b)

	if !aOk || !bOk {
		return false
	}

	switch operator {
	case "gt":
		return aFloat > bFloat
	case "gte":
		return aFloat >= bFloat
	case "lt":
		return aFloat < bFloat
	case "lte":
		return aFloat <= bFloat
	default:
		return false
	}
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		var f float64
		_, err := fmt.Sscanf(val, "%f", &f)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
