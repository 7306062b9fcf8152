package auth

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
)

func testPrincipal() authz.Principal {
	var perms authz.Permissions
	perms.Set(authz.Agenda, true)
	perms.Set(authz.Pacientes, true)
	return authz.Principal{UserID: "user-1", ClinicID: "clinic-1", Role: authz.RoleUser, Permissions: perms}
}

func TestSignParseRoundTrip(t *testing.T) {
	s := NewSigner("test-secret", "dentalcare", time.Hour)
	token, exp, err := s.Sign(testPrincipal())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}
	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := claims.Principal()
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if p != testPrincipal() {
		t.Fatalf("principal mismatch: %+v", p)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewSigner("a", "dentalcare", time.Hour).Sign(testPrincipal())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewSigner("b", "dentalcare", time.Hour).Parse(token); err != ErrInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	s := NewSigner("secret", "dentalcare", time.Minute)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := s.Sign(testPrincipal())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s.now = time.Now
	if _, err := s.Parse(token); err != ErrInvalidToken {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestParseRejectsOtherIssuer(t *testing.T) {
	token, _, _ := NewSigner("secret", "someone-else", time.Hour).Sign(testPrincipal())
	if _, err := NewSigner("secret", "dentalcare", time.Hour).Parse(token); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for in, want := range cases {
		got, ok := BearerToken(in)
		if got != want || ok != (want != "") {
			t.Fatalf("%q: expected %q, got %q (%v)", in, want, got, ok)
		}
	}
}
