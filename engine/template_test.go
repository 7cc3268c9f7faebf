package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]any{
		"nombre": "Maria",
		"edad":   float64(30),
		"pedido": map[string]any{
			"id":    "ORD-77",
			"items": []any{"cafe", "pan"},
		},
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"dollar token", "Hola ${nombre}", "Hola Maria"},
		{"brace token", "Hola {{ nombre }}", "Hola Maria"},
		{"nested path", "Pedido ${pedido.id}", "Pedido ORD-77"},
		{"indexed path", "Primero: ${pedido.items[0]}", "Primero: cafe"},
		{"integer float without decimals", "Edad: ${edad}", "Edad: 30"},
		{"unknown token left intact", "Hola ${desconocido}", "Hola ${desconocido}"},
		{"mixed syntaxes", "${nombre} tiene {{ edad }}", "Maria tiene 30"},
		{"no tokens", "texto plano", "texto plano"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderTemplate(tt.template, vars))
		})
	}
}

func TestRenderValue_WholeTokenKeepsType(t *testing.T) {
	vars := map[string]any{
		"monto":  float64(12.5),
		"activo": true,
		"datos":  map[string]any{"ciudad": "Lima"},
	}

	assert.Equal(t, float64(12.5), RenderValue("${monto}", vars))
	assert.Equal(t, true, RenderValue("{{ activo }}", vars))
	assert.Equal(t, map[string]any{"ciudad": "Lima"}, RenderValue("${datos}", vars))

	// token embebido dentro de texto se vuelve string
	assert.Equal(t, "total: 12.5", RenderValue("total: ${monto}", vars))

	// token sin valor se deja intacto
	assert.Equal(t, "${nada}", RenderValue("${nada}", vars))
}

func TestRenderValue_Recursive(t *testing.T) {
	vars := map[string]any{"user": "u-9", "limit": float64(3)}

	in := map[string]any{
		"filtro": map[string]any{"usuario": "${user}"},
		"lista":  []any{"${limit}", "fijo"},
	}

	out := RenderValue(in, vars).(map[string]any)
	assert.Equal(t, "u-9", out["filtro"].(map[string]any)["usuario"])
	assert.Equal(t, float64(3), out["lista"].([]any)[0])
	assert.Equal(t, "fijo", out["lista"].([]any)[1])
}

func TestLookupPath(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": "hondo"},
			},
		},
	}

	value, found := LookupPath(data, "a.b[0].c")
	assert.True(t, found)
	assert.Equal(t, "hondo", value)

	_, found = LookupPath(data, "a.b[5].c")
	assert.False(t, found)

	_, found = LookupPath(data, "a.x")
	assert.False(t, found)

	_, found = LookupPath(data, "")
	assert.False(t, found)
}
