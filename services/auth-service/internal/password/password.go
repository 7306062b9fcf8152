// Package password holds the clinic password policy and bcrypt hashing.
package password

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 8
	// MaxBytes is the longest input bcrypt accepts.
	MaxBytes = 72
	specials = `!@#$%^&*(),.?":{}|<>`
)

var (
	ErrTooShort    = errors.New("password must have at least 8 characters")
	ErrTooLong     = errors.New("password must have at most 72 bytes")
	ErrNoUppercase = errors.New("password must contain an uppercase letter")
	ErrNoDigit     = errors.New("password must contain a digit")
	ErrNoSpecial   = errors.New("password must contain a special character")
	ErrMismatch    = errors.New("passwords do not match")
)

// Validate returns the first rule the password breaks.
func Validate(pw string) error {
	if utf8.RuneCountInString(pw) < MinLength {
		return ErrTooShort
	}
	if len(pw) > MaxBytes {
		return ErrTooLong
	}
	var upper, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(specials, r):
			special = true
		}
	}
	switch {
	case !upper:
		return ErrNoUppercase
	case !digit:
		return ErrNoDigit
	case !special:
		return ErrNoSpecial
	}
	return nil
}

// ValidatePair also checks the confirmation field.
func ValidatePair(pw, confirm string) error {
	if err := Validate(pw); err != nil {
		return err
	}
	if pw != confirm {
		return ErrMismatch
	}
	return nil
}

func Hash(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummy is compared against when no account matches, so unknown emails cost as much as
// wrong passwords.
var dummy = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("dentalcare-no-account"), bcrypt.DefaultCost)
	return h
})

// Verify fails for an empty hash, which is how invited users without a password are stored.
func Verify(hash, raw string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummy(), []byte(raw))
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}

// VerifyNone burns a comparison for a login without an account and always fails.
func VerifyNone(raw string) error {
	_ = bcrypt.CompareHashAndPassword(dummy(), []byte(raw))
	return bcrypt.ErrMismatchedHashAndPassword
}
