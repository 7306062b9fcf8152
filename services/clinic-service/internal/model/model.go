// Package model holds the clinic records exchanged over HTTP and stored by the repositories.
// Validate methods normalize a record in place and return per-field messages.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/brdocs"
)

const DateLayout = "2006-01-02"

// Fields collects validation messages keyed by JSON field path.
type Fields map[string]string

func (f Fields) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

// Err returns nil when nothing was collected.
func (f Fields) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

type ValidationError struct {
	Fields Fields
}

func (e *ValidationError) Error() string { return "validation failed" }

// Decimal accepts a JSON number, a numeric string (comma or dot decimal separator)
// or an empty string, which coerces to zero.
type Decimal float64

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
		if s == "" {
			*d = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("decimal %q is not a finite number", s)
	}
	*d = Decimal(v)
	return nil
}

type Address struct {
	CEP        string `json:"cep"`
	Street     string `json:"logradouro"`
	Number     string `json:"numero"`
	Complement string `json:"complemento"`
	District   string `json:"bairro"`
	City       string `json:"cidade"`
	UF         string `json:"uf"`
}

func (a *Address) validate(prefix string, f Fields) {
	a.CEP = strings.TrimSpace(a.CEP)
	if a.CEP != "" {
		cep, ok := brdocs.NormalizeCEP(a.CEP)
		if !ok {
			f.add(prefix+".cep", "must have 8 digits")
		} else {
			a.CEP = brdocs.FormatCEP(cep)
		}
	}
	a.UF = strings.ToUpper(strings.TrimSpace(a.UF))
	if a.UF != "" && !brdocs.ValidUF(a.UF) {
		f.add(prefix+".uf", "unknown state")
	}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func validDate(s *string) bool {
	if s == nil {
		return true
	}
	_, err := time.Parse(DateLayout, *s)
	return err == nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func validPct(v Decimal) bool { return v >= 0 && v <= 100 }
