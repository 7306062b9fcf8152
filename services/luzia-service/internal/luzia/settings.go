// Package luzia is the appointment messaging assistant: per-clinic settings, template
// rendering, event-driven dispatch and the confirmation reminder worker.
package luzia

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultConfirmTemplate    = "Olá! Este é um lembrete do seu agendamento na {clinica} para {data} às {hora}. Confirme digitando SIM ou reagende digitando REAGENDAR."
	DefaultRescheduleTemplate = "Seu agendamento foi reagendado para {nova_data} às {nova_hora}. Confirme digitando SIM."
	DefaultCancelTemplate     = "Seu agendamento foi cancelado. Entre em contato conosco para reagendar."

	DefaultConfirmLeadHours    = 24
	DefaultRescheduleLeadHours = 2
	MaxLeadHours               = 168
	MaxTemplateRunes           = 1000
)

type Settings struct {
	ClinicID            string    `json:"clinic_id"`
	Enabled             bool      `json:"ativo"`
	ConfirmAppointments bool      `json:"confirmacao_agendamento"`
	AutoReschedule      bool      `json:"reagendamento_automatico"`
	AutoCancel          bool      `json:"cancelamento_automatico"`
	ConfirmLeadHours    int       `json:"antecedencia_confirmacao_horas"`
	RescheduleLeadHours int       `json:"antecedencia_reagendamento_horas"`
	ConfirmTemplate     string    `json:"mensagem_confirmacao"`
	RescheduleTemplate  string    `json:"mensagem_reagendamento"`
	CancelTemplate      string    `json:"mensagem_cancelamento"`
	WhatsAppPhone       string    `json:"telefone_whatsapp"`
	WhatsAppAPIKey      string    `json:"api_key_whatsapp"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

// DefaultSettings is what a clinic that never saved the form gets. Every toggle starts off.
func DefaultSettings(clinicID string) Settings {
	return Settings{
		ClinicID:            clinicID,
		ConfirmLeadHours:    DefaultConfirmLeadHours,
		RescheduleLeadHours: DefaultRescheduleLeadHours,
		ConfirmTemplate:     DefaultConfirmTemplate,
		RescheduleTemplate:  DefaultRescheduleTemplate,
		CancelTemplate:      DefaultCancelTemplate,
	}
}

// Masked hides the WhatsApp API key except for its last four characters.
func (s Settings) Masked() Settings {
	s.WhatsAppAPIKey = MaskKey(s.WhatsAppAPIKey)
	return s
}

func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if utf8.RuneCountInString(key) <= 4 {
		return "****"
	}
	r := []rune(key)
	return "****" + string(r[len(r)-4:])
}

// Update is the body of a settings write. A nil APIKey, or one equal to the masked form of
// the stored key, keeps the stored key; an empty string clears it.
type Update struct {
	Enabled             bool    `json:"ativo"`
	ConfirmAppointments bool    `json:"confirmacao_agendamento"`
	AutoReschedule      bool    `json:"reagendamento_automatico"`
	AutoCancel          bool    `json:"cancelamento_automatico"`
	ConfirmLeadHours    int     `json:"antecedencia_confirmacao_horas"`
	RescheduleLeadHours int     `json:"antecedencia_reagendamento_horas"`
	ConfirmTemplate     string  `json:"mensagem_confirmacao"`
	RescheduleTemplate  string  `json:"mensagem_reagendamento"`
	CancelTemplate      string  `json:"mensagem_cancelamento"`
	WhatsAppPhone       string  `json:"telefone_whatsapp"`
	WhatsAppAPIKey      *string `json:"api_key_whatsapp"`
}

// Apply validates u and merges it over current. Zero lead hours and blank templates fall
// back to the defaults.
func (u Update) Apply(current Settings) (Settings, map[string]string) {
	errs := map[string]string{}
	next := current
	next.Enabled = u.Enabled
	next.ConfirmAppointments = u.ConfirmAppointments
	next.AutoReschedule = u.AutoReschedule
	next.AutoCancel = u.AutoCancel

	next.ConfirmLeadHours = leadHours(u.ConfirmLeadHours, DefaultConfirmLeadHours, "antecedencia_confirmacao_horas", errs)
	next.RescheduleLeadHours = leadHours(u.RescheduleLeadHours, DefaultRescheduleLeadHours, "antecedencia_reagendamento_horas", errs)

	next.ConfirmTemplate = templateOr(u.ConfirmTemplate, DefaultConfirmTemplate, "mensagem_confirmacao", errs)
	next.RescheduleTemplate = templateOr(u.RescheduleTemplate, DefaultRescheduleTemplate, "mensagem_reagendamento", errs)
	next.CancelTemplate = templateOr(u.CancelTemplate, DefaultCancelTemplate, "mensagem_cancelamento", errs)

	next.WhatsAppPhone = strings.TrimSpace(u.WhatsAppPhone)
	if next.WhatsAppPhone != "" {
		if d := digits(next.WhatsAppPhone); len(d) < 10 || len(d) > 13 {
			errs["telefone_whatsapp"] = "must have 10 to 13 digits"
		}
	}
	if u.WhatsAppAPIKey != nil {
		key := strings.TrimSpace(*u.WhatsAppAPIKey)
		if key == "" || key != MaskKey(current.WhatsAppAPIKey) {
			next.WhatsAppAPIKey = key
		}
	}
	if next.Enabled && next.WhatsAppPhone == "" {
		errs["telefone_whatsapp"] = "required when LuzIA is enabled"
	}
	if len(errs) > 0 {
		return current, errs
	}
	return next, nil
}

func leadHours(v, def int, field string, errs map[string]string) int {
	if v == 0 {
		return def
	}
	if v < 0 || v > MaxLeadHours {
		errs[field] = "must be between 1 and 168"
	}
	return v
}

func templateOr(v, def, field string, errs map[string]string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if utf8.RuneCountInString(v) > MaxTemplateRunes {
		errs[field] = "must be at most 1000 characters"
	}
	return v
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
