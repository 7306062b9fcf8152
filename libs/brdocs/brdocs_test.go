package brdocs

import "testing"

func TestValidCPF(t *testing.T) {
	cases := map[string]bool{
		"529.982.247-25": true,
		"52998224725":    true,
		"529.982.247-24": false,
		"111.111.111-11": false,
		"123":            false,
	}
	for in, want := range cases {
		if got := ValidCPF(in); got != want {
			t.Fatalf("%s: expected %v, got %v", in, want, got)
		}
	}
}

func TestValidCNPJ(t *testing.T) {
	cases := map[string]bool{
		"11.222.333/0001-81": true,
		"11222333000181":     true,
		"11.222.333/0001-80": false,
		"00000000000000":     false,
	}
	for in, want := range cases {
		if got := ValidCNPJ(in); got != want {
			t.Fatalf("%s: expected %v, got %v", in, want, got)
		}
	}
	if !ValidCPFOrCNPJ("52998224725") || !ValidCPFOrCNPJ("11222333000181") || ValidCPFOrCNPJ("1234567890") {
		t.Fatalf("ValidCPFOrCNPJ dispatch is wrong")
	}
}

func TestNormalizeCEP(t *testing.T) {
	if d, ok := NormalizeCEP("01310-100"); !ok || d != "01310100" {
		t.Fatalf("unexpected %q %v", d, ok)
	}
	if _, ok := NormalizeCEP("1310-100"); ok {
		t.Fatalf("7 digits must be rejected")
	}
	if FormatCEP("01310100") != "01310-100" {
		t.Fatalf("format mismatch")
	}
	if !ValidUF("sp") || ValidUF("XX") {
		t.Fatalf("uf validation is wrong")
	}
}
