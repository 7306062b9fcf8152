package password

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"Abc123!!", nil},
		{"Abcdef1!", nil},
		{"abc12345", ErrNoUppercase},
		{"Ab1!", ErrTooShort},
		{"Abcdefgh!", ErrNoDigit},
		{"Abcdefg1", ErrNoSpecial},
		{"SENHA123{", nil},
		{"Abc123!!" + strings.Repeat("a", 64), nil},
		{"Abc123!!" + strings.Repeat("a", 65), ErrTooLong},
		{"Abc123!!" + strings.Repeat("a", 70), ErrTooLong},
		{"Ação123!" + strings.Repeat("é", 33), ErrTooLong},
	}
	for _, tc := range cases {
		if got := Validate(tc.in); got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestValidatePairMismatch(t *testing.T) {
	if err := ValidatePair("Abc123!!", "Abc123!?"); err != ErrMismatch {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestHashVerify(t *testing.T) {
	hash, err := Hash("Abc123!!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := Verify(hash, "Abc123!!"); err != nil {
		t.Fatalf("verify should succeed: %v", err)
	}
	if err := Verify(hash, "wrong"); err == nil {
		t.Fatal("verify should fail for wrong password")
	}
	if err := Verify("", "anything"); err == nil {
		t.Fatal("empty hash must never verify")
	}
}

func TestHashAcceptsLongestValidPassword(t *testing.T) {
	pw := "Abc123!!" + strings.Repeat("a", MaxBytes-8)
	if err := Validate(pw); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := Hash(pw); err != nil {
		t.Fatalf("hash of %d bytes: %v", len(pw), err)
	}
}

func TestVerifyNoneAlwaysFails(t *testing.T) {
	if err := VerifyNone("Abc123!!"); err == nil {
		t.Fatal("expected mismatch")
	}
}
