package store

import (
	"time"

	"gorm.io/datatypes"
)

type settingsRow struct {
	ClinicID            string `gorm:"primaryKey;size:36"`
	Enabled             bool   `gorm:"not null;default:false"`
	ConfirmAppointments bool   `gorm:"not null;default:false"`
	AutoReschedule      bool   `gorm:"not null;default:false"`
	AutoCancel          bool   `gorm:"not null;default:false"`
	ConfirmLeadHours    int    `gorm:"not null"`
	RescheduleLeadHours int    `gorm:"not null"`
	ConfirmTemplate     string `gorm:"type:text;not null"`
	RescheduleTemplate  string `gorm:"type:text;not null"`
	CancelTemplate      string `gorm:"type:text;not null"`
	WhatsAppPhone       string `gorm:"column:whatsapp_phone;size:32"`
	WhatsAppAPIKey      string `gorm:"column:whatsapp_api_key;size:512"`
	UpdatedBy           string `gorm:"size:36"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (settingsRow) TableName() string { return "luzia_settings" }

type logRow struct {
	ID            string            `gorm:"primaryKey;size:36"`
	ClinicID      string            `gorm:"size:36;not null;index:idx_luzia_logs_clinic_created,priority:1"`
	Action        string            `gorm:"size:32;not null"`
	Status        string            `gorm:"size:16;not null"`
	AppointmentID string            `gorm:"size:36"`
	Message       string            `gorm:"type:text"`
	Response      string            `gorm:"type:text"`
	Destination   string            `gorm:"size:32"`
	Error         string            `gorm:"type:text"`
	Variables     datatypes.JSONMap `gorm:"column:variables"`
	CreatedAt     time.Time         `gorm:"not null;index:idx_luzia_logs_clinic_created,priority:2,sort:desc"`
}

func (logRow) TableName() string { return "luzia_logs" }

type reminderRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	AppointmentID string    `gorm:"size:36;not null;uniqueIndex"`
	ClinicID      string    `gorm:"size:36;not null"`
	PatientName   string    `gorm:"size:255"`
	Phone         string    `gorm:"size:32"`
	Timezone      string    `gorm:"size:64"`
	StartsAt      time.Time `gorm:"not null"`
	RemindAt      time.Time `gorm:"not null"`
	Status        string    `gorm:"size:16;not null;index:idx_luzia_reminders_due,priority:1"`
	NextRunAt     time.Time `gorm:"not null;index:idx_luzia_reminders_due,priority:2"`
	Attempts      int       `gorm:"not null;default:0"`
	Version       int       `gorm:"not null;default:0"`
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (reminderRow) TableName() string { return "luzia_reminders" }

type clinicRow struct {
	ClinicID  string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:255;not null"`
	Timezone  string `gorm:"size:64"`
	UpdatedAt time.Time
}

func (clinicRow) TableName() string { return "luzia_clinics" }

type inboxRow struct {
	EventID    string `gorm:"primaryKey;size:128"`
	EventType  string `gorm:"size:128;not null"`
	ReceivedAt time.Time
}

func (inboxRow) TableName() string { return "inbox_events" }
