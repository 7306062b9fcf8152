package model

import (
	"strings"
	"time"
)

// Service is an entry of the clinic's catalog of procedures.
type Service struct {
	ID                   string    `json:"id"`
	ClinicID             string    `json:"clinic_id"`
	Name                 string    `json:"nome"`
	BasePriceCents       int64     `json:"preco_base_cents"`
	DurationMinutes      int       `json:"duracao_min"`
	DefaultCommissionPct Decimal   `json:"comissao_padrao_percent"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (s *Service) Validate() error {
	f := Fields{}
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		f.add("nome", "required")
	}
	if s.BasePriceCents < 0 {
		f.add("preco_base_cents", "must not be negative")
	}
	if s.DurationMinutes < 0 {
		f.add("duracao_min", "must not be negative")
	}
	if !validPct(s.DefaultCommissionPct) {
		f.add("comissao_padrao_percent", "must be between 0 and 100")
	}
	return f.Err()
}
