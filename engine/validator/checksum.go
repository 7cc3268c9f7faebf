package validator

import "strings"

// OnlyDigits elimina todo lo que no sea dígito (puntuación de CPF/CNPJ,
// separadores de teléfono).
func OnlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// IsValidCPF verifica el checksum de un CPF (11 dígitos, dos dígitos
// verificadores módulo 11).
func IsValidCPF(raw string) bool {
	digits := OnlyDigits(raw)
	if len(digits) != 11 || allSameDigit(digits) {
		return false
	}

	if checkDigitMod11(digits[:9], 10) != int(digits[9]-'0') {
		return false
	}
	return checkDigitMod11(digits[:10], 11) == int(digits[10]-'0')
}

// IsValidCNPJ verifica el checksum de un CNPJ (14 dígitos, dos dígitos
// verificadores con pesos cíclicos).
func IsValidCNPJ(raw string) bool {
	digits := OnlyDigits(raw)
	if len(digits) != 14 || allSameDigit(digits) {
		return false
	}

	weights1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	weights2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

	if checkDigitWeighted(digits[:12], weights1) != int(digits[12]-'0') {
		return false
	}
	return checkDigitWeighted(digits[:13], weights2) == int(digits[13]-'0')
}

// checkDigitMod11 calcula un dígito verificador de CPF: pesos decrecientes
// desde startWeight, resto módulo 11.
func checkDigitMod11(digits string, startWeight int) int {
	sum := 0
	for i, c := range digits {
		sum += int(c-'0') * (startWeight - i)
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

func checkDigitWeighted(digits string, weights []int) int {
	sum := 0
	for i, c := range digits {
		sum += int(c-'0') * weights[i]
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
