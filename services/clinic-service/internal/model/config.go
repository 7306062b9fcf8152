package model

// ConfigCategory names one per-clinic settings blob.
type ConfigCategory string

const (
	ConfigExibicao    ConfigCategory = "exibicao"
	ConfigAgenda      ConfigCategory = "agenda"
	ConfigPacientes   ConfigCategory = "pacientes"
	ConfigFinanceiro  ConfigCategory = "financeiro"
	ConfigInterface   ConfigCategory = "interface"
	ConfigComunicacao ConfigCategory = "comunicacao"
	ConfigDocumentos  ConfigCategory = "documentos"
	ConfigSeguranca   ConfigCategory = "seguranca"
	ConfigIntegracao  ConfigCategory = "integracao"
)

var ConfigCategories = [...]ConfigCategory{
	ConfigExibicao, ConfigAgenda, ConfigPacientes, ConfigFinanceiro, ConfigInterface,
	ConfigComunicacao, ConfigDocumentos, ConfigSeguranca, ConfigIntegracao,
}

func ParseConfigCategory(s string) (ConfigCategory, bool) {
	for _, c := range ConfigCategories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// DashboardCardsKey is the interface blob key holding the card order.
const DashboardCardsKey = "dashboard_cards"

// DefaultDashboardCards is both the fallback order and the set of valid card ids.
var DefaultDashboardCards = []string{"pacientes", "consultas", "receita", "profissionais", "atividade", "agenda"}

// NormalizeDashboardCards de-duplicates ids preserving first occurrence and reports
// ids outside DefaultDashboardCards.
func NormalizeDashboardCards(in []string) ([]string, []string) {
	known := make(map[string]bool, len(DefaultDashboardCards))
	for _, c := range DefaultDashboardCards {
		known[c] = true
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	var unknown []string
	for _, c := range in {
		if !known[c] {
			unknown = append(unknown, c)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, unknown
}
