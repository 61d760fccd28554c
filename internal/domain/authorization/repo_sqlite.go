package authorization

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type DoctorRepoSQLite struct {
	db *sql.DB
}

func NewDoctorRepoSQLite(db *sql.DB) *DoctorRepoSQLite {
	return &DoctorRepoSQLite{db: db}
}

const doctorCols = `id, name, hpcsa_number, email, phone, practice_name, specialty, access_level, is_active, created_at, updated_at`

func scanDoctor(row interface{ Scan(...any) error }) (*ReferringDoctor, error) {
	var d ReferringDoctor
	err := row.Scan(
		&d.ID, &d.Name, &d.HPCSANumber, &d.Email, &d.Phone, &d.PracticeName,
		&d.Specialty, &d.AccessLevel, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
	return &d, err
}

func (r *DoctorRepoSQLite) Insert(ctx context.Context, d *ReferringDoctor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO referring_doctors (`+doctorCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.HPCSANumber, d.Email, d.Phone, d.PracticeName,
		d.Specialty, d.AccessLevel, d.IsActive, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DoctorRepoSQLite) GetByID(ctx context.Context, id string) (*ReferringDoctor, error) {
	q := fmt.Sprintf("SELECT %s FROM referring_doctors WHERE id = ?", doctorCols)
	return scanDoctor(r.db.QueryRowContext(ctx, q, id))
}

func (r *DoctorRepoSQLite) GetByHPCSA(ctx context.Context, hpcsaNumber string) (*ReferringDoctor, error) {
	q := fmt.Sprintf("SELECT %s FROM referring_doctors WHERE hpcsa_number = ?", doctorCols)
	return scanDoctor(r.db.QueryRowContext(ctx, q, hpcsaNumber))
}

func (r *DoctorRepoSQLite) Update(ctx context.Context, d *ReferringDoctor) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE referring_doctors
		SET name = ?, hpcsa_number = ?, email = ?, phone = ?, practice_name = ?,
		    specialty = ?, access_level = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.HPCSANumber, d.Email, d.Phone, d.PracticeName,
		d.Specialty, d.AccessLevel, d.IsActive, d.UpdatedAt, d.ID,
	)
	return err
}

func (r *DoctorRepoSQLite) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ReferringDoctor, int, error) {
	where := ""
	if activeOnly {
		where = "WHERE is_active = 1"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM referring_doctors %s", where)).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM referring_doctors %s ORDER BY name LIMIT ? OFFSET ?", doctorCols, where)
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ReferringDoctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

type AuthRepoSQLite struct {
	db *sql.DB
}

func NewAuthRepoSQLite(db *sql.DB) *AuthRepoSQLite {
	return &AuthRepoSQLite{db: db}
}

const authCols = `id, doctor_id, patient_id, study_instance_uid, access_level, granted_by,
	granted_at, expires_at, is_active, access_count, last_accessed, notes, access_reason,
	created_at, updated_at, revoked_at, revoked_by, revoked_reason`

func scanAuth(row interface{ Scan(...any) error }) (*Authorization, error) {
	var a Authorization
	var studyUID sql.NullString
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &studyUID, &a.AccessLevel, &a.GrantedBy,
		&a.GrantedAt, &a.ExpiresAt, &a.IsActive, &a.AccessCount, &a.LastAccessed,
		&a.Notes, &a.AccessReason, &a.CreatedAt, &a.UpdatedAt, &a.RevokedAt,
		&a.RevokedBy, &a.RevokedReason,
	)
	if err != nil {
		return nil, err
	}
	a.StudyInstanceUID = studyUID.String
	return &a, nil
}

func (r *AuthRepoSQLite) Insert(ctx context.Context, a *Authorization) error {
	var studyUID any
	if a.StudyInstanceUID != "" {
		studyUID = a.StudyInstanceUID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patient_authorizations (`+authCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DoctorID, a.PatientID, studyUID, a.AccessLevel, a.GrantedBy,
		a.GrantedAt, a.ExpiresAt, a.IsActive, a.AccessCount, a.LastAccessed,
		a.Notes, a.AccessReason, a.CreatedAt, a.UpdatedAt, a.RevokedAt,
		a.RevokedBy, a.RevokedReason,
	)
	return err
}

func (r *AuthRepoSQLite) GetByID(ctx context.Context, id string) (*Authorization, error) {
	q := fmt.Sprintf("SELECT %s FROM patient_authorizations WHERE id = ?", authCols)
	return scanAuth(r.db.QueryRowContext(ctx, q, id))
}

func (r *AuthRepoSQLite) GetActive(ctx context.Context, doctorID, patientID, studyUID string, now time.Time) (*Authorization, error) {
	studyCond := "study_instance_uid IS NULL"
	args := []any{doctorID, patientID}
	if studyUID != "" {
		studyCond = "study_instance_uid = ?"
		args = append(args, studyUID)
	}
	args = append(args, now)

	q := fmt.Sprintf(`
		SELECT %s FROM patient_authorizations
		WHERE doctor_id = ? AND patient_id = ? AND %s
		  AND is_active = 1
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY granted_at DESC LIMIT 1`, authCols, studyCond)
	return scanAuth(r.db.QueryRowContext(ctx, q, args...))
}

func (r *AuthRepoSQLite) Update(ctx context.Context, a *Authorization) error {
	var studyUID any
	if a.StudyInstanceUID != "" {
		studyUID = a.StudyInstanceUID
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE patient_authorizations
		SET doctor_id = ?, patient_id = ?, study_instance_uid = ?, access_level = ?,
		    expires_at = ?, is_active = ?, access_count = ?, last_accessed = ?,
		    notes = ?, access_reason = ?, updated_at = ?, revoked_at = ?,
		    revoked_by = ?, revoked_reason = ?
		WHERE id = ?`,
		a.DoctorID, a.PatientID, studyUID, a.AccessLevel,
		a.ExpiresAt, a.IsActive, a.AccessCount, a.LastAccessed,
		a.Notes, a.AccessReason, a.UpdatedAt, a.RevokedAt,
		a.RevokedBy, a.RevokedReason, a.ID,
	)
	return err
}

func (r *AuthRepoSQLite) listWhere(ctx context.Context, where string, args []any, limit, offset int) ([]*Authorization, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM patient_authorizations %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM patient_authorizations %s ORDER BY granted_at DESC LIMIT ? OFFSET ?", authCols, where)
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Authorization
	for rows.Next() {
		a, err := scanAuth(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *AuthRepoSQLite) ListByDoctor(ctx context.Context, doctorID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error) {
	where := "WHERE doctor_id = ?"
	if activeOnly {
		where += " AND is_active = 1"
	}
	return r.listWhere(ctx, where, []any{doctorID}, limit, offset)
}

func (r *AuthRepoSQLite) ListByPatient(ctx context.Context, patientID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error) {
	where := "WHERE patient_id = ?"
	if activeOnly {
		where += " AND is_active = 1"
	}
	return r.listWhere(ctx, where, []any{patientID}, limit, offset)
}

func (r *AuthRepoSQLite) ListExpiring(ctx context.Context, from, until time.Time) ([]*Authorization, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM patient_authorizations
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?
		ORDER BY expires_at`, authCols)
	rows, err := r.db.QueryContext(ctx, q, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Authorization
	for rows.Next() {
		a, err := scanAuth(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *AuthRepoSQLite) ListExpired(ctx context.Context, now time.Time) ([]*Authorization, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM patient_authorizations
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`, authCols)
	rows, err := r.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Authorization
	for rows.Next() {
		a, err := scanAuth(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *AuthRepoSQLite) RecordAccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE patient_authorizations
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?`, at, id)
	return err
}

func (r *AuthRepoSQLite) Stats(ctx context.Context, now time.Time, expiringUntil time.Time) (*Stats, error) {
	s := &Stats{ByAccessLevel: make(map[string]int)}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM patient_authorizations").Scan(&s.TotalAuthorizations); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM patient_authorizations
		WHERE is_active = 1 AND (expires_at IS NULL OR expires_at > ?)`, now).Scan(&s.ActiveAuthorizations); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM patient_authorizations
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?`,
		now, expiringUntil).Scan(&s.ExpiringSoon); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT access_level, COUNT(*) FROM patient_authorizations
		WHERE is_active = 1 GROUP BY access_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		s.ByAccessLevel[level] = count
	}
	return s, rows.Err()
}
