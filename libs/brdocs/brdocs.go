// Package brdocs validates Brazilian document numbers and postal codes.
package brdocs

import "strings"

// Digits drops every non-digit rune.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSame(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}

// checkDigit computes the mod-11 verifier of the first len(weights) digits of d.
func checkDigit(d string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(d[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}

// ValidCPF accepts formatted or bare 11-digit CPFs.
func ValidCPF(s string) bool {
	d := Digits(s)
	if len(d) != 11 || allSame(d) {
		return false
	}
	w1 := []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	return checkDigit(d, w1) == d[9] && checkDigit(d, w2) == d[10]
}

// ValidCNPJ accepts formatted or bare 14-digit CNPJs.
func ValidCNPJ(s string) bool {
	d := Digits(s)
	if len(d) != 14 || allSame(d) {
		return false
	}
	w1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	return checkDigit(d, w1) == d[12] && checkDigit(d, w2) == d[13]
}

// ValidCPFOrCNPJ picks the rule by digit count.
func ValidCPFOrCNPJ(s string) bool {
	switch len(Digits(s)) {
	case 11:
		return ValidCPF(s)
	case 14:
		return ValidCNPJ(s)
	}
	return false
}

// NormalizeCEP returns the 8 digits of a CEP, or false.
func NormalizeCEP(s string) (string, bool) {
	d := Digits(s)
	return d, len(d) == 8
}

// FormatCEP renders 01310100 as 01310-100.
func FormatCEP(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:5] + "-" + d[5:]
}

var ufs = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MT": true, "MS": true, "MG": true, "PA": true,
	"PB": true, "PR": true, "PE": true, "PI": true, "RJ": true, "RN": true, "RS": true,
	"RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
}

func ValidUF(s string) bool {
	return ufs[strings.ToUpper(strings.TrimSpace(s))]
}
