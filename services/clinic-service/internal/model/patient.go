package model

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/brdocs"
)

type Guardian struct {
	Name         string `json:"nome"`
	Relationship string `json:"parentesco"`
	Phone        string `json:"telefone"`
	CPF          string `json:"cpf"`
	RG           string `json:"rg"`
	Age          *int   `json:"idade"`
}

type Patient struct {
	ID                  string    `json:"id"`
	ClinicID            string    `json:"clinic_id"`
	Name                string    `json:"nome"`
	BirthDate           *string   `json:"data_nascimento"`
	Nationality         string    `json:"nacionalidade"`
	DocumentType        string    `json:"documento_tipo"`
	CPF                 *string   `json:"cpf"`
	RG                  *string   `json:"rg"`
	Passport            *string   `json:"passaporte"`
	Sex                 *string   `json:"sexo"`
	Phone               *string   `json:"telefone"`
	Mobile              *string   `json:"celular"`
	Email               *string   `json:"email"`
	Guardian            *Guardian `json:"responsavel"`
	Address             Address   `json:"endereco"`
	CareType            string    `json:"tipo_atendimento"`
	InsurerID           *string   `json:"convenio_id"`
	PlanID              *string   `json:"plano_id"`
	InsuranceCardNumber *string   `json:"numero_convenio"`
	InsuranceValidUntil *string   `json:"validade_convenio"`
	Notes               *string   `json:"observacoes"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

const (
	PatientActive   = "ativo"
	PatientInactive = "inativo"
	PatientPending  = "pendente"
)

func (p *Patient) Validate() error {
	f := Fields{}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		f.add("nome", "required")
	}

	p.BirthDate = trimPtr(p.BirthDate)
	if !validDate(p.BirthDate) {
		f.add("data_nascimento", "must be YYYY-MM-DD")
	}

	switch p.Nationality {
	case "":
		p.Nationality = "brasileira"
	case "brasileira", "estrangeira":
	default:
		f.add("nacionalidade", "must be brasileira or estrangeira")
	}

	p.CPF, p.RG, p.Passport = trimPtr(p.CPF), trimPtr(p.RG), trimPtr(p.Passport)
	switch p.DocumentType {
	case "":
		p.DocumentType = "cpf"
	case "cpf", "passaporte":
	default:
		f.add("documento_tipo", "must be cpf or passaporte")
	}
	if p.CPF != nil && !brdocs.ValidCPF(*p.CPF) {
		f.add("cpf", "invalid cpf")
	}
	if p.DocumentType == "passaporte" && p.Passport == nil {
		f.add("passaporte", "required for documento_tipo passaporte")
	}

	p.Sex, p.Phone, p.Mobile = trimPtr(p.Sex), trimPtr(p.Phone), trimPtr(p.Mobile)
	p.Email = trimPtr(p.Email)
	if p.Email != nil {
		e := strings.ToLower(*p.Email)
		p.Email = &e
		if !validEmail(e) {
			f.add("email", "invalid email")
		}
	}

	if p.Guardian != nil {
		g := p.Guardian
		g.Name = strings.TrimSpace(g.Name)
		g.CPF = strings.TrimSpace(g.CPF)
		if g.CPF != "" && !brdocs.ValidCPF(g.CPF) {
			f.add("responsavel.cpf", "invalid cpf")
		}
		if g.Age != nil && *g.Age < 0 {
			f.add("responsavel.idade", "must not be negative")
		}
		if *g == (Guardian{}) {
			p.Guardian = nil
		}
	}

	p.Address.validate("endereco", f)

	p.InsurerID, p.PlanID = trimPtr(p.InsurerID), trimPtr(p.PlanID)
	p.InsuranceCardNumber = trimPtr(p.InsuranceCardNumber)
	p.InsuranceValidUntil = trimPtr(p.InsuranceValidUntil)
	switch p.CareType {
	case "":
		p.CareType = "particular"
	case "particular":
	case "convenio":
		if p.InsurerID == nil {
			f.add("convenio_id", "required for tipo_atendimento convenio")
		}
	default:
		f.add("tipo_atendimento", "must be particular or convenio")
	}
	if !validDate(p.InsuranceValidUntil) {
		f.add("validade_convenio", "must be YYYY-MM-DD")
	}

	p.Notes = trimPtr(p.Notes)
	switch p.Status {
	case "":
		p.Status = PatientActive
	case PatientActive, PatientInactive, PatientPending:
	default:
		f.add("status", "must be ativo, inativo or pendente")
	}
	return f.Err()
}
