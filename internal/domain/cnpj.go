package domain

import "strings"

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// NormalizeTaxID оставляет в номере только цифры.
func NormalizeTaxID(taxID string) string {
	var b strings.Builder
	for _, r := range taxID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCNPJ проверяет контрольные цифры CNPJ (допускается маска 00.000.000/0000-00).
func ValidCNPJ(taxID string) bool {
	digits := NormalizeTaxID(taxID)
	if len(digits) != 14 {
		return false
	}

	// 00000000000000, 11111111111111 и т.п. проходят контрольную сумму, но недействительны
	allSame := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}

	nums := make([]int, len(digits))
	for i, r := range digits {
		nums[i] = int(r - '0')
	}

	return checkDigit(nums[:12], cnpjFirstWeights) == nums[12] &&
		checkDigit(nums[:13], cnpjSecondWeights) == nums[13]
}

func checkDigit(nums, weights []int) int {
	sum := 0
	for i, n := range nums {
		sum += n * weights[i]
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}
