package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

type PatientRepository struct {
	pool *db.Pool
}

func NewPatientRepository(pool *db.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

const patientColumns = `
	id::text, clinic_id::text, name, to_char(birth_date, 'YYYY-MM-DD'), nationality, document_type,
	cpf, rg, passport, sex, phone, mobile, email, guardian, address, care_type, insurer_id, plan_id,
	insurance_card_number, to_char(insurance_valid_until, 'YYYY-MM-DD'), notes, status, created_at, updated_at`

func scanPatient(row scanner) (model.Patient, error) {
	var (
		p        model.Patient
		guardian []byte
		address  []byte
	)
	err := row.Scan(&p.ID, &p.ClinicID, &p.Name, &p.BirthDate, &p.Nationality, &p.DocumentType,
		&p.CPF, &p.RG, &p.Passport, &p.Sex, &p.Phone, &p.Mobile, &p.Email, &guardian, &address,
		&p.CareType, &p.InsurerID, &p.PlanID, &p.InsuranceCardNumber, &p.InsuranceValidUntil,
		&p.Notes, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Patient{}, err
	}
	if len(guardian) > 0 && string(guardian) != "null" {
		p.Guardian = &model.Guardian{}
		if err := json.Unmarshal(guardian, p.Guardian); err != nil {
			return model.Patient{}, fmt.Errorf("decode guardian: %w", err)
		}
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &p.Address); err != nil {
			return model.Patient{}, fmt.Errorf("decode address: %w", err)
		}
	}
	return p, nil
}

func patientArgs(p model.Patient) ([]any, error) {
	var guardian []byte
	if p.Guardian != nil {
		b, err := json.Marshal(p.Guardian)
		if err != nil {
			return nil, err
		}
		guardian = b
	}
	address, err := json.Marshal(p.Address)
	if err != nil {
		return nil, err
	}
	return []any{
		p.Name, p.BirthDate, p.Nationality, p.DocumentType, p.CPF, p.RG, p.Passport, p.Sex,
		p.Phone, p.Mobile, p.Email, guardian, address, p.CareType, p.InsurerID, p.PlanID,
		p.InsuranceCardNumber, p.InsuranceValidUntil, p.Notes, p.Status,
	}, nil
}

// List returns the clinic's patients, newest first.
func (r *PatientRepository) List(ctx context.Context, clinicID string) ([]model.Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientColumns+`
		FROM patients WHERE clinic_id = $1 ORDER BY created_at DESC, id`, clinicID)
	out, err := collect(rows, err, scanPatient)
	return out, mapErr("list patients", err)
}

func (r *PatientRepository) Get(ctx context.Context, clinicID, id string) (model.Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+`
		FROM patients WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	return p, mapErr("get patient", err)
}

func (r *PatientRepository) Create(ctx context.Context, clinicID string, in model.Patient) (model.Patient, error) {
	args, err := patientArgs(in)
	if err != nil {
		return model.Patient{}, err
	}
	p, err := scanPatient(r.pool.QueryRow(ctx, `
		INSERT INTO patients (clinic_id, name, birth_date, nationality, document_type, cpf, rg, passport, sex,
			phone, mobile, email, guardian, address, care_type, insurer_id, plan_id, insurance_card_number,
			insurance_valid_until, notes, status)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19::date, $20, $21)
		RETURNING `+patientColumns, append([]any{clinicID}, args...)...))
	return p, mapErr("create patient", err)
}

func (r *PatientRepository) Update(ctx context.Context, clinicID, id string, in model.Patient) (model.Patient, error) {
	args, err := patientArgs(in)
	if err != nil {
		return model.Patient{}, err
	}
	p, err := scanPatient(r.pool.QueryRow(ctx, `
		UPDATE patients SET name = $3, birth_date = $4::date, nationality = $5, document_type = $6, cpf = $7,
			rg = $8, passport = $9, sex = $10, phone = $11, mobile = $12, email = $13, guardian = $14,
			address = $15, care_type = $16, insurer_id = $17, plan_id = $18, insurance_card_number = $19,
			insurance_valid_until = $20::date, notes = $21, status = $22, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+patientColumns, append([]any{clinicID, id}, args...)...))
	return p, mapErr("update patient", err)
}

func (r *PatientRepository) Delete(ctx context.Context, clinicID, id string) error {
	return deleteByID(ctx, r.pool, "delete patient", "patients", clinicID, id)
}

// SearchByName returns up to limit patients whose name contains q, case-insensitively.
func (r *PatientRepository) SearchByName(ctx context.Context, clinicID, q string, limit int) ([]model.Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientColumns+`
		FROM patients
		WHERE clinic_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY name
		LIMIT $3`, clinicID, escapeLike(q), limit)
	out, err := collect(rows, err, scanPatient)
	return out, mapErr("search patients", err)
}
