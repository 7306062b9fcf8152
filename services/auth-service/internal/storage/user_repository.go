package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/outbox"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/sessions"
)

type UserRepository struct {
	pool   *db.Pool
	audit  *audit.Repository
	outbox *outbox.Repository
	now    func() time.Time
}

func NewUserRepository(pool *db.Pool, auditRepo *audit.Repository, outboxRepo *outbox.Repository) *UserRepository {
	return &UserRepository{pool: pool, audit: auditRepo, outbox: outboxRepo, now: time.Now}
}

// permissionColumns follows authz.AllCapabilities; the column names are the capability names.
var permissionColumns = func() []string {
	cols := make([]string, len(authz.AllCapabilities))
	for i, c := range authz.AllCapabilities {
		cols[i] = string(c)
	}
	return cols
}()

var userSelect = func() string {
	perms := make([]string, len(permissionColumns))
	for i, c := range permissionColumns {
		perms[i] = "COALESCE(p." + c + ", false)"
	}
	return `
		SELECT u.id::text, u.clinic_id::text, c.name, u.name, u.email, u.password_hash, u.role, u.status,
		       u.phone, u.cpf_cnpj, u.rg, u.cro, u.person_type, u.photo_url,
		       u.cep, u.street, u.number, u.complement, u.district, u.city, u.uf,
		       u.created_at, u.updated_at, ` + strings.Join(perms, ", ") + `
		FROM users u
		JOIN clinics c ON c.id = u.clinic_id
		LEFT JOIN user_permissions p ON p.user_id = u.id`
}()

func scanUser(row pgx.Row) (User, error) {
	var (
		u      User
		role   string
		status string
		flags  = make([]bool, len(authz.AllCapabilities))
	)
	dest := []any{
		&u.ID, &u.ClinicID, &u.ClinicName, &u.Name, &u.Email, &u.PasswordHash, &role, &status,
		&u.Profile.Phone, &u.Profile.CPFCNPJ, &u.Profile.RG, &u.Profile.CRO, &u.Profile.PersonType, &u.Profile.PhotoURL,
		&u.Profile.Address.CEP, &u.Profile.Address.Street, &u.Profile.Address.Number, &u.Profile.Address.Complement,
		&u.Profile.Address.District, &u.Profile.Address.City, &u.Profile.Address.UF,
		&u.CreatedAt, &u.UpdatedAt,
	}
	for i := range flags {
		dest = append(dest, &flags[i])
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Role = authz.Role(role)
	u.Status = Status(status)
	for i, c := range authz.AllCapabilities {
		u.Permissions.Set(c, flags[i])
	}
	return u, nil
}

func upsertPermissions(ctx context.Context, tx pgx.Tx, userID string, p authz.Permissions) error {
	args := []any{userID}
	placeholders := make([]string, len(permissionColumns))
	updates := make([]string, len(permissionColumns))
	for i, c := range authz.AllCapabilities {
		args = append(args, p.Has(c))
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		updates[i] = permissionColumns[i] + " = EXCLUDED." + permissionColumns[i]
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO user_permissions (user_id, `+strings.Join(permissionColumns, ", ")+`)
		VALUES ($1, `+strings.Join(placeholders, ", ")+`)
		ON CONFLICT (user_id) DO UPDATE SET `+strings.Join(updates, ", ")+`, updated_at = now()
	`, args...)
	return err
}

func (r *UserRepository) insertToken(ctx context.Context, tx pgx.Tx, userID, purpose string, ttl time.Duration) (string, time.Time, error) {
	raw, err := sessions.NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := r.now().Add(ttl)
	_, err = tx.Exec(ctx, `
		INSERT INTO user_tokens (token_hash, user_id, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sessions.HashToken(raw), userID, purpose, exp)
	return raw, exp, err
}

// consumeToken marks a one-time token used and returns its owner in a single statement.
func consumeToken(ctx context.Context, tx pgx.Tx, purpose, raw string) (string, error) {
	var userID string
	err := tx.QueryRow(ctx, `
		UPDATE user_tokens
		SET used_at = now()
		WHERE token_hash = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > now()
		RETURNING user_id::text
	`, sessions.HashToken(raw), purpose).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidToken
	}
	return userID, err
}

func (r *UserRepository) enqueue(ctx context.Context, tx pgx.Tx, eventType, clinicID, aggregate, aggregateID string, payload any) error {
	evt, err := outbox.New(eventType, clinicID, aggregate, aggregateID, payload)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

// Signup creates the clinic, its master user (pending), full permissions and the email
// confirmation token in one transaction.
func (r *UserRepository) Signup(ctx context.Context, in SignupInput) (User, error) {
	clinicID := uuid.NewString()
	userID := uuid.NewString()
	if in.Timezone == "" {
		in.Timezone = "America/Sao_Paulo"
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, timezone) VALUES ($1, $2, $3)
		`, clinicID, in.ClinicName, in.Timezone); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, clinic_id, name, email, password_hash, role, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, userID, clinicID, in.Name, in.Email, in.PasswordHash, string(authz.RoleMaster), string(StatusPending)); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}
		if err := upsertPermissions(ctx, tx, userID, authz.Full()); err != nil {
			return err
		}
		token, exp, err := r.insertToken(ctx, tx, userID, "email_confirmation", ConfirmationTTL)
		if err != nil {
			return err
		}
		if err := r.audit.RecordTx(ctx, tx, audit.Entry{
			ClinicID:  clinicID,
			EventType: audit.ClinicCreated,
			ActorID:   userID,
			TargetID:  userID,
			Metadata:  map[string]any{"clinic_name": in.ClinicName},
		}); err != nil {
			return err
		}
		if err := r.enqueue(ctx, tx, events.ClinicCreated, clinicID, "clinic", clinicID, events.ClinicCreatedPayload{
			ClinicID:   clinicID,
			ClinicName: in.ClinicName,
			OwnerID:    userID,
			OwnerEmail: in.Email,
			Timezone:   in.Timezone,
			CreatedAt:  r.now().UTC(),
		}); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, events.EmailConfirmationRequired, clinicID, "user", userID, events.EmailTokenPayload{
			ClinicID:  clinicID,
			UserID:    userID,
			Name:      in.Name,
			Email:     in.Email,
			Token:     token,
			ExpiresAt: exp.UTC(),
		})
	})
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, userID)
}

func (r *UserRepository) ConfirmEmail(ctx context.Context, token string) (User, error) {
	var userID string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		id, err := consumeToken(ctx, tx, "email_confirmation", token)
		if err != nil {
			return err
		}
		userID = id
		var clinicID string
		err = tx.QueryRow(ctx, `
			UPDATE users SET status = 'active', updated_at = now()
			WHERE id = $1 AND status = 'pending'
			RETURNING clinic_id::text
		`, id).Scan(&clinicID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{ClinicID: clinicID, EventType: audit.EmailConfirmed, ActorID: id, TargetID: id})
	})
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, userID)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE lower(u.email) = lower($1)`, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
}

func (r *UserRepository) GetInClinic(ctx context.Context, clinicID, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1 AND u.clinic_id = $2`, id, clinicID))
}

func (r *UserRepository) List(ctx context.Context, clinicID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` WHERE u.clinic_id = $1 ORDER BY u.created_at`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) UpdateProfile(ctx context.Context, clinicID, userID, name string, p Profile) (User, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET
				name = COALESCE(NULLIF($3, ''), name),
				phone = $4, cpf_cnpj = $5, rg = $6, cro = $7, person_type = $8, photo_url = $9,
				cep = $10, street = $11, number = $12, complement = $13, district = $14, city = $15, uf = $16,
				updated_at = now()
			WHERE id = $1 AND clinic_id = $2
		`, userID, clinicID, name,
			p.Phone, p.CPFCNPJ, p.RG, p.CRO, p.PersonType, p.PhotoURL,
			p.Address.CEP, p.Address.Street, p.Address.Number, p.Address.Complement, p.Address.District, p.Address.City, p.Address.UF)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{ClinicID: clinicID, EventType: audit.ProfileUpdated, ActorID: userID, TargetID: userID})
	})
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, userID)
}

// RequestPasswordReset issues a reset token for an active account. Unknown or inactive
// emails succeed silently so the endpoint does not reveal which addresses exist.
func (r *UserRepository) RequestPasswordReset(ctx context.Context, email string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var userID, clinicID, name, stored string
		err := tx.QueryRow(ctx, `
			SELECT id::text, clinic_id::text, name, email FROM users
			WHERE lower(email) = lower($1) AND status = 'active'
		`, email).Scan(&userID, &clinicID, &name, &stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		token, exp, err := r.insertToken(ctx, tx, userID, "password_reset", ResetTTL)
		if err != nil {
			return err
		}
		return r.enqueue(ctx, tx, events.PasswordResetRequested, clinicID, "user", userID, events.EmailTokenPayload{
			ClinicID:  clinicID,
			UserID:    userID,
			Name:      name,
			Email:     stored,
			Token:     token,
			ExpiresAt: exp.UTC(),
		})
	})
}

func (r *UserRepository) ResetPassword(ctx context.Context, token, hash string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		userID, err := consumeToken(ctx, tx, "password_reset", token)
		if err != nil {
			return err
		}
		var clinicID string
		if err := tx.QueryRow(ctx, `
			UPDATE users SET password_hash = $2, updated_at = now()
			WHERE id = $1
			RETURNING clinic_id::text
		`, userID, hash).Scan(&clinicID); err != nil {
			return err
		}
		if err := sessions.RevokeAllTx(ctx, tx, userID); err != nil {
			return err
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{ClinicID: clinicID, EventType: audit.PasswordReset, ActorID: userID, TargetID: userID})
	})
}

// Invite creates a pending user with its permissions and invite token in one transaction.
func (r *UserRepository) Invite(ctx context.Context, in InviteInput) (User, error) {
	userID := uuid.NewString()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, clinic_id, name, email, role, status)
			VALUES ($1, $2, $3, $4, $5, 'pending')
		`, userID, in.ClinicID, in.Name, in.Email, string(in.Role)); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}
		if err := upsertPermissions(ctx, tx, userID, in.Permissions); err != nil {
			return err
		}
		token, exp, err := r.insertToken(ctx, tx, userID, "invite", InviteTTL)
		if err != nil {
			return err
		}
		if err := r.audit.RecordTx(ctx, tx, audit.Entry{
			ClinicID:  in.ClinicID,
			EventType: audit.UserInvited,
			ActorID:   in.ActorID,
			TargetID:  userID,
			Metadata:  map[string]any{"role": in.Role, "permissions": in.Permissions.Encode()},
		}); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, events.UserInvited, in.ClinicID, "user", userID, events.UserInvitedPayload{
			ClinicID:  in.ClinicID,
			UserID:    userID,
			Name:      in.Name,
			Email:     in.Email,
			Role:      string(in.Role),
			InvitedBy: in.ActorID,
			Token:     token,
			ExpiresAt: exp.UTC(),
		})
	})
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, userID)
}

func (r *UserRepository) AcceptInvite(ctx context.Context, token, hash string) (User, error) {
	var userID string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		id, err := consumeToken(ctx, tx, "invite", token)
		if err != nil {
			return err
		}
		userID = id
		var clinicID string
		err = tx.QueryRow(ctx, `
			UPDATE users SET password_hash = $2, status = 'active', updated_at = now()
			WHERE id = $1 AND status = 'pending'
			RETURNING clinic_id::text
		`, id, hash).Scan(&clinicID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{ClinicID: clinicID, EventType: audit.InviteAccepted, ActorID: id, TargetID: id})
	})
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, userID)
}

func (r *UserRepository) UpdatePermissions(ctx context.Context, clinicID, actorID, userID string, p authz.Permissions) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND clinic_id = $2)
		`, userID, clinicID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if err := upsertPermissions(ctx, tx, userID, p); err != nil {
			return err
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{
			ClinicID:  clinicID,
			EventType: audit.PermissionsChanged,
			ActorID:   actorID,
			TargetID:  userID,
			Metadata:  map[string]any{"permissions": p.Encode()},
		})
	})
}

// SetStatus changes the account status. Deactivation ends every open session.
func (r *UserRepository) SetStatus(ctx context.Context, clinicID, actorID, userID string, status Status) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET status = $3, updated_at = now()
			WHERE id = $1 AND clinic_id = $2
		`, userID, clinicID, string(status))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if status == StatusInactive {
			if err := sessions.RevokeAllTx(ctx, tx, userID); err != nil {
				return err
			}
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{
			ClinicID:  clinicID,
			EventType: audit.StatusChanged,
			ActorID:   actorID,
			TargetID:  userID,
			Metadata:  map[string]any{"status": string(status)},
		})
	})
}

func (r *UserRepository) Remove(ctx context.Context, clinicID, actorID, userID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var email string
		err := tx.QueryRow(ctx, `
			DELETE FROM users WHERE id = $1 AND clinic_id = $2
			RETURNING email
		`, userID, clinicID).Scan(&email)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return r.audit.RecordTx(ctx, tx, audit.Entry{
			ClinicID:  clinicID,
			EventType: audit.UserRemoved,
			ActorID:   actorID,
			Metadata:  map[string]any{"user_id": userID, "email": email},
		})
	})
}
