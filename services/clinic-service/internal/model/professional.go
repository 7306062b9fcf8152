package model

import (
	"strings"
	"time"
)

type Professional struct {
	ID                   string    `json:"id"`
	ClinicID             string    `json:"clinic_id"`
	Name                 string    `json:"nome"`
	CouncilID            *string   `json:"conselho"`
	Specialty            *string   `json:"especialidade"`
	Email                *string   `json:"email"`
	Phone                *string   `json:"telefone"`
	DefaultCommissionPct Decimal   `json:"comissao_padrao_percent"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (p *Professional) Validate() error {
	f := Fields{}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		f.add("nome", "required")
	}
	p.CouncilID, p.Specialty, p.Phone = trimPtr(p.CouncilID), trimPtr(p.Specialty), trimPtr(p.Phone)
	p.Email = trimPtr(p.Email)
	if p.Email != nil {
		e := strings.ToLower(*p.Email)
		p.Email = &e
		if !validEmail(e) {
			f.add("email", "invalid email")
		}
	}
	if !validPct(p.DefaultCommissionPct) {
		f.add("comissao_padrao_percent", "must be between 0 and 100")
	}
	return f.Err()
}
