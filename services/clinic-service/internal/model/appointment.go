package model

import (
	"strings"
	"time"
)

type AppointmentType string

const (
	TypeConsulta     AppointmentType = "consulta"
	TypeProcedimento AppointmentType = "procedimento"
	TypeRetorno      AppointmentType = "retorno"
	TypeEmergencia   AppointmentType = "emergencia"
)

var AppointmentTypes = [...]AppointmentType{TypeConsulta, TypeProcedimento, TypeRetorno, TypeEmergencia}

type AppointmentStatus string

const (
	StatusAgendado    AppointmentStatus = "agendado"
	StatusConfirmado  AppointmentStatus = "confirmado"
	StatusEmAndamento AppointmentStatus = "em_andamento"
	StatusConcluido   AppointmentStatus = "concluido"
	StatusCancelado   AppointmentStatus = "cancelado"
)

var AppointmentStatuses = [...]AppointmentStatus{StatusAgendado, StatusConfirmado, StatusEmAndamento, StatusConcluido, StatusCancelado}

func ParseAppointmentType(s string) (AppointmentType, bool) {
	for _, t := range AppointmentTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	for _, st := range AppointmentStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type Appointment struct {
	ID             string            `json:"id"`
	ClinicID       string            `json:"clinic_id"`
	Title          string            `json:"titulo"`
	PatientID      *string           `json:"paciente_id"`
	ProfessionalID *string           `json:"profissional_id"`
	ServiceID      *string           `json:"servico_id"`
	StartsAt       time.Time         `json:"data_inicio"`
	EndsAt         time.Time         `json:"data_fim"`
	Type           AppointmentType   `json:"tipo"`
	Status         AppointmentStatus `json:"status"`
	Notes          *string           `json:"observacoes"`
	ValueCents     *int64            `json:"valor_cents"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AppointmentView is an appointment with the display names joined in.
type AppointmentView struct {
	Appointment
	PatientName      string `json:"paciente_nome"`
	PatientPhone     string `json:"paciente_telefone"`
	ProfessionalName string `json:"profissional_nome"`
}

func (a *Appointment) Validate() error {
	f := Fields{}
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		f.add("titulo", "required")
	}
	a.PatientID, a.ProfessionalID, a.ServiceID = trimPtr(a.PatientID), trimPtr(a.ProfessionalID), trimPtr(a.ServiceID)
	if a.StartsAt.IsZero() {
		f.add("data_inicio", "required")
	}
	if a.EndsAt.IsZero() {
		f.add("data_fim", "required")
	} else if !a.StartsAt.IsZero() && !a.EndsAt.After(a.StartsAt) {
		f.add("data_fim", "must be after data_inicio")
	}
	if a.Type == "" {
		a.Type = TypeConsulta
	} else if _, ok := ParseAppointmentType(string(a.Type)); !ok {
		f.add("tipo", "must be consulta, procedimento, retorno or emergencia")
	}
	if a.Status == "" {
		a.Status = StatusAgendado
	} else if _, ok := ParseAppointmentStatus(string(a.Status)); !ok {
		f.add("status", "unknown status")
	}
	a.Notes = trimPtr(a.Notes)
	if a.ValueCents != nil && *a.ValueCents < 0 {
		f.add("valor_cents", "must not be negative")
	}
	return f.Err()
}
