package luzia

import (
	"strings"
	"time"
)

const (
	VarClinic  = "clinica"
	VarPatient = "paciente"
	VarDate    = "data"
	VarTime    = "hora"
	VarNewDate = "nova_data"
	VarNewTime = "nova_hora"
)

var knownVars = map[string]bool{
	VarClinic: true, VarPatient: true, VarDate: true, VarTime: true, VarNewDate: true, VarNewTime: true,
}

// Render substitutes {name} placeholders for the known variables present in vars.
// Unknown placeholders and unbalanced braces are kept verbatim.
func Render(tpl string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(tpl))
	for {
		open := strings.IndexByte(tpl, '{')
		if open < 0 {
			b.WriteString(tpl)
			return b.String()
		}
		end := strings.IndexByte(tpl[open:], '}')
		if end < 0 {
			b.WriteString(tpl)
			return b.String()
		}
		name := tpl[open+1 : open+end]
		b.WriteString(tpl[:open])
		if v, ok := vars[name]; ok && knownVars[name] {
			b.WriteString(v)
		} else {
			b.WriteString(tpl[open : open+end+1])
		}
		tpl = tpl[open+end+1:]
	}
}

// Vars builds the placeholder values for an appointment in the clinic's location. A zero
// newAt leaves nova_data and nova_hora unset.
func Vars(clinic, patient string, at, newAt time.Time, loc *time.Location) map[string]string {
	if loc == nil {
		loc = time.UTC
	}
	v := map[string]string{VarClinic: clinic, VarPatient: patient}
	if !at.IsZero() {
		v[VarDate] = at.In(loc).Format("02/01/2006")
		v[VarTime] = at.In(loc).Format("15:04")
	}
	if !newAt.IsZero() {
		v[VarNewDate] = newAt.In(loc).Format("02/01/2006")
		v[VarNewTime] = newAt.In(loc).Format("15:04")
	}
	return v
}

// Location resolves a clinic timezone, falling back to America/Sao_Paulo.
func Location(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		return loc
	}
	return time.UTC
}
