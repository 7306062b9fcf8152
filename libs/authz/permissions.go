// Package authz holds the clinic role hierarchy, the closed set of feature permissions and
// the one function that decides whether a principal may perform an action.
package authz

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleMaster  Role = "master"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleMaster, RoleManager, RoleUser:
		return r, true
	}
	return "", false
}

// Rank orders roles master > manager > user; unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleMaster:
		return 3
	case RoleManager:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

func (r Role) Outranks(other Role) bool { return r.Rank() > other.Rank() }

// Capability names one permission flag. The string is also the JSON field name.
type Capability string

const (
	Dashboard           Capability = "dashboard"
	Pacientes           Capability = "pacientes"
	Profissionais       Capability = "profissionais"
	Agenda              Capability = "agenda"
	Financeiro          Capability = "financeiro"
	Estoque             Capability = "estoque"
	CatalogoServicos    Capability = "catalogo_servicos"
	Configuracoes       Capability = "configuracoes"
	Luzia               Capability = "luzia"
	CriarUsuarios       Capability = "criar_usuarios"
	GerenciarPermissoes Capability = "gerenciar_permissoes"
)

// AllCapabilities is the only supported way to iterate Permissions.
var AllCapabilities = [...]Capability{
	Dashboard,
	Pacientes,
	Profissionais,
	Agenda,
	Financeiro,
	Estoque,
	CatalogoServicos,
	Configuracoes,
	Luzia,
	CriarUsuarios,
	GerenciarPermissoes,
}

// adminCapabilities may only be held by managers (masters hold everything implicitly).
var adminCapabilities = [...]Capability{CriarUsuarios, GerenciarPermissoes}

func ParseCapability(s string) (Capability, bool) {
	c := Capability(strings.TrimSpace(s))
	for _, known := range AllCapabilities {
		if c == known {
			return c, true
		}
	}
	return "", false
}

type Permissions struct {
	Dashboard           bool `json:"dashboard"`
	Pacientes           bool `json:"pacientes"`
	Profissionais       bool `json:"profissionais"`
	Agenda              bool `json:"agenda"`
	Financeiro          bool `json:"financeiro"`
	Estoque             bool `json:"estoque"`
	CatalogoServicos    bool `json:"catalogo_servicos"`
	Configuracoes       bool `json:"configuracoes"`
	Luzia               bool `json:"luzia"`
	CriarUsuarios       bool `json:"criar_usuarios"`
	GerenciarPermissoes bool `json:"gerenciar_permissoes"`
}

func (p *Permissions) field(c Capability) *bool {
	switch c {
	case Dashboard:
		return &p.Dashboard
	case Pacientes:
		return &p.Pacientes
	case Profissionais:
		return &p.Profissionais
	case Agenda:
		return &p.Agenda
	case Financeiro:
		return &p.Financeiro
	case Estoque:
		return &p.Estoque
	case CatalogoServicos:
		return &p.CatalogoServicos
	case Configuracoes:
		return &p.Configuracoes
	case Luzia:
		return &p.Luzia
	case CriarUsuarios:
		return &p.CriarUsuarios
	case GerenciarPermissoes:
		return &p.GerenciarPermissoes
	}
	return nil
}

func (p Permissions) Has(c Capability) bool {
	f := p.field(c)
	return f != nil && *f
}

// Set ignores unknown capabilities.
func (p *Permissions) Set(c Capability, v bool) {
	if f := p.field(c); f != nil {
		*f = v
	}
}

// Granted lists held capabilities in AllCapabilities order.
func (p Permissions) Granted() []Capability {
	out := make([]Capability, 0, len(AllCapabilities))
	for _, c := range AllCapabilities {
		if p.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (p Permissions) Intersect(o Permissions) Permissions {
	var out Permissions
	for _, c := range AllCapabilities {
		out.Set(c, p.Has(c) && o.Has(c))
	}
	return out
}

func Full() Permissions {
	var p Permissions
	for _, c := range AllCapabilities {
		p.Set(c, true)
	}
	return p
}

// ForRole normalizes a permission set for a role: master holds everything and only
// managers may keep the user-administration flags.
func (p Permissions) ForRole(r Role) Permissions {
	switch r {
	case RoleMaster:
		return Full()
	case RoleManager:
		return p
	default:
		for _, c := range adminCapabilities {
			p.Set(c, false)
		}
		return p
	}
}

// Encode renders the granted capabilities as a comma separated list.
func (p Permissions) Encode() string {
	granted := p.Granted()
	parts := make([]string, len(granted))
	for i, c := range granted {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func ParsePermissions(s string) (Permissions, error) {
	var p Permissions
	for _, raw := range strings.Split(s, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, ok := ParseCapability(raw)
		if !ok {
			return Permissions{}, fmt.Errorf("unknown capability %q", strings.TrimSpace(raw))
		}
		p.Set(c, true)
	}
	return p, nil
}
