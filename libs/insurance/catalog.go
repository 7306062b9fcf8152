// Package insurance holds the built-in dental insurance catalog used to seed the insurer
// tables and to answer when they are empty.
package insurance

import "sort"

type Insurer struct {
	ID   string `json:"id"`
	Name string `json:"nome"`
}

type Plan struct {
	ID        string `json:"id"`
	InsurerID string `json:"convenio_id"`
	Name      string `json:"nome"`
}

var insurers = []Insurer{
	{ID: "amil", Name: "Amil Dental"},
	{ID: "bradesco", Name: "Bradesco Dental"},
	{ID: "sulamerica", Name: "SulAmérica Odonto"},
	{ID: "porto", Name: "Porto Seguro Odonto"},
	{ID: "odontoprev", Name: "OdontoPrev"},
	{ID: "unimed", Name: "Unimed Odonto"},
	{ID: "hapvida", Name: "Hapvida NotreDame Odonto"},
	{ID: "allianz", Name: "Allianz Dental"},
}

var plans = []Plan{
	{ID: "amil-essencial", InsurerID: "amil", Name: "Essencial"},
	{ID: "amil-plus", InsurerID: "amil", Name: "Plus"},
	{ID: "amil-premium", InsurerID: "amil", Name: "Premium"},
	{ID: "brad-essencial", InsurerID: "bradesco", Name: "Essencial"},
	{ID: "brad-top", InsurerID: "bradesco", Name: "Top"},
	{ID: "sula-basic", InsurerID: "sulamerica", Name: "Basic"},
	{ID: "sula-max", InsurerID: "sulamerica", Name: "Max"},
	{ID: "porto-light", InsurerID: "porto", Name: "Light"},
	{ID: "porto-total", InsurerID: "porto", Name: "Total"},
	{ID: "oprev-empresa", InsurerID: "odontoprev", Name: "Empresa"},
	{ID: "oprev-familia", InsurerID: "odontoprev", Name: "Família"},
	{ID: "uni-essencial", InsurerID: "unimed", Name: "Essencial"},
	{ID: "uni-executivo", InsurerID: "unimed", Name: "Executivo"},
	{ID: "hap-odonto", InsurerID: "hapvida", Name: "Odonto"},
	{ID: "hap-odonto-plus", InsurerID: "hapvida", Name: "Odonto Plus"},
	{ID: "all-basic", InsurerID: "allianz", Name: "Basic"},
	{ID: "all-premium", InsurerID: "allianz", Name: "Premium"},
}

// Insurers returns the built-in insurers ordered by name.
func Insurers() []Insurer {
	out := append([]Insurer(nil), insurers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Plans returns every built-in plan, grouped by insurer and ordered by name.
func Plans() []Plan {
	out := append([]Plan(nil), plans...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InsurerID != out[j].InsurerID {
			return out[i].InsurerID < out[j].InsurerID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// PlansOf returns the built-in plans of one insurer ordered by name.
func PlansOf(insurerID string) []Plan {
	var out []Plan
	for _, p := range Plans() {
		if p.InsurerID == insurerID {
			out = append(out, p)
		}
	}
	return out
}
