package authz

import "errors"

// Principal is the authenticated caller as seen by every service.
type Principal struct {
	UserID      string
	ClinicID    string
	Role        Role
	Permissions Permissions
}

// Effective returns the permissions the principal actually holds.
func (p Principal) Effective() Permissions {
	return p.Permissions.ForRole(p.Role)
}

type Action string

const (
	ViewDashboard       Action = "dashboard.view"
	ViewPatients        Action = "patients.view"
	ManagePatients      Action = "patients.manage"
	ViewProfessionals   Action = "professionals.view"
	ManageProfessionals Action = "professionals.manage"
	ViewAgenda          Action = "agenda.view"
	ManageAgenda        Action = "agenda.manage"
	ViewPayments        Action = "payments.view"
	ManagePayments      Action = "payments.manage"
	ViewInventory       Action = "inventory.view"
	ManageInventory     Action = "inventory.manage"
	ViewServices        Action = "services.view"
	ManageServices      Action = "services.manage"
	ViewSettings        Action = "settings.view"
	ManageSettings      Action = "settings.manage"
	ViewLuzia           Action = "luzia.view"
	ConfigureLuzia      Action = "luzia.configure"
	ListUsers           Action = "users.list"
	InviteUsers         Action = "users.invite"
	ManagePermissions   Action = "users.permissions"
	ChangeUserStatus    Action = "users.status"
	RemoveUsers         Action = "users.remove"
	ViewAudit           Action = "audit.view"
	Search              Action = "search.run"
	LookupAddress       Action = "address.lookup"
	ViewInsurers        Action = "insurers.view"
)

type rule struct {
	// AnyOf is satisfied by holding at least one capability; empty means none required.
	anyOf   []Capability
	minRole Role
}

var rules = map[Action]rule{
	ViewDashboard:       {anyOf: []Capability{Dashboard}},
	ViewPatients:        {anyOf: []Capability{Pacientes}},
	ManagePatients:      {anyOf: []Capability{Pacientes}},
	ViewProfessionals:   {anyOf: []Capability{Profissionais, Agenda}},
	ManageProfessionals: {anyOf: []Capability{Profissionais}},
	ViewAgenda:          {anyOf: []Capability{Agenda}},
	ManageAgenda:        {anyOf: []Capability{Agenda}},
	ViewPayments:        {anyOf: []Capability{Financeiro}},
	ManagePayments:      {anyOf: []Capability{Financeiro}},
	ViewInventory:       {anyOf: []Capability{Estoque}},
	ManageInventory:     {anyOf: []Capability{Estoque}},
	ViewServices:        {anyOf: []Capability{CatalogoServicos, Agenda, Financeiro}},
	ManageServices:      {anyOf: []Capability{CatalogoServicos}},
	ViewSettings:        {anyOf: []Capability{Configuracoes, Dashboard}},
	ManageSettings:      {anyOf: []Capability{Configuracoes}},
	ViewLuzia:           {anyOf: []Capability{Luzia}},
	ConfigureLuzia:      {minRole: RoleMaster},
	ListUsers:           {anyOf: []Capability{CriarUsuarios, GerenciarPermissoes}, minRole: RoleManager},
	InviteUsers:         {anyOf: []Capability{CriarUsuarios}, minRole: RoleManager},
	ManagePermissions:   {anyOf: []Capability{GerenciarPermissoes}, minRole: RoleManager},
	ChangeUserStatus:    {anyOf: []Capability{GerenciarPermissoes}, minRole: RoleManager},
	RemoveUsers:         {minRole: RoleMaster},
	ViewAudit:           {minRole: RoleMaster},
	Search:              {anyOf: []Capability{Pacientes, Profissionais}},
	LookupAddress:       {},
	ViewInsurers:        {anyOf: []Capability{Pacientes}},
}

// AllActions is the static list the capability map is built from.
var AllActions = [...]Action{
	ViewDashboard,
	ViewPatients, ManagePatients,
	ViewProfessionals, ManageProfessionals,
	ViewAgenda, ManageAgenda,
	ViewPayments, ManagePayments,
	ViewInventory, ManageInventory,
	ViewServices, ManageServices,
	ViewSettings, ManageSettings,
	ViewLuzia, ConfigureLuzia,
	ListUsers, InviteUsers, ManagePermissions, ChangeUserStatus, RemoveUsers,
	ViewAudit,
	Search,
	LookupAddress,
	ViewInsurers,
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type Decision struct {
	Allowed bool
	Reason  string
}

func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == "unauthenticated" {
		return ErrUnauthenticated
	}
	return ErrForbidden
}

// Decide is the single authorization decision point. UI affordances (Evaluate) and
// request enforcement (Require) both go through it.
func Decide(p Principal, a Action) Decision {
	if p.UserID == "" || p.ClinicID == "" || p.Role.Rank() == 0 {
		return Decision{Reason: "unauthenticated"}
	}
	r, ok := rules[a]
	if !ok {
		return Decision{Reason: "unknown action"}
	}
	if r.minRole != "" && p.Role.Rank() < r.minRole.Rank() {
		return Decision{Reason: "requires role " + string(r.minRole)}
	}
	if len(r.anyOf) == 0 {
		return Decision{Allowed: true}
	}
	eff := p.Effective()
	for _, c := range r.anyOf {
		if eff.Has(c) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: "missing permission " + string(r.anyOf[0])}
}

// Evaluate returns Decide for every known action.
func Evaluate(p Principal) map[Action]bool {
	out := make(map[Action]bool, len(AllActions))
	for _, a := range AllActions {
		out[a] = Decide(p, a).Allowed
	}
	return out
}

// Grantable computes the permissions actor may hand to a user of role target.
// A manager can only pass on flags they hold; admin flags survive only for managers.
func Grantable(actor Principal, target Role, requested Permissions) Permissions {
	granted := requested
	if actor.Role != RoleMaster {
		granted = granted.Intersect(actor.Effective())
	}
	return granted.ForRole(target)
}

// CanActOn reports whether actor may administer a user of role target. The target must
// rank strictly lower; a master account is never administered by anyone.
func CanActOn(actor Principal, target Role) bool {
	if target == RoleMaster {
		return false
	}
	return actor.Role.Outranks(target)
}
