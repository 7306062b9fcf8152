package storage

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusActive, StatusInactive:
		return st, true
	}
	return "", false
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

type Profile struct {
	Phone      string  `json:"telefone"`
	CPFCNPJ    string  `json:"cpf_cnpj"`
	RG         string  `json:"rg"`
	CRO        string  `json:"cro"`
	PersonType string  `json:"tipo_pessoa"`
	PhotoURL   string  `json:"foto_url"`
	Address    Address `json:"endereco"`
}

type User struct {
	ID           string            `json:"id"`
	ClinicID     string            `json:"clinic_id"`
	ClinicName   string            `json:"clinic_name"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	Role         authz.Role        `json:"role"`
	Status       Status            `json:"status"`
	Permissions  authz.Permissions `json:"permissions"`
	Profile      Profile           `json:"profile"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Principal is the identity carried in tokens. Master permissions are implied by the role.
func (u User) Principal() authz.Principal {
	return authz.Principal{
		UserID:      u.ID,
		ClinicID:    u.ClinicID,
		Role:        u.Role,
		Permissions: u.Permissions.ForRole(u.Role),
	}
}

type SignupInput struct {
	ClinicName   string
	Timezone     string
	Name         string
	Email        string
	PasswordHash string
}

type InviteInput struct {
	ClinicID    string
	ActorID     string
	Name        string
	Email       string
	Role        authz.Role
	Permissions authz.Permissions
}

// DefaultInvitePermissions is what an invite grants when the request leaves flags unset.
func DefaultInvitePermissions() authz.Permissions {
	return authz.Permissions{Dashboard: true}
}

const (
	ConfirmationTTL = 48 * time.Hour
	ResetTTL        = time.Hour
	InviteTTL       = 7 * 24 * time.Hour
)
