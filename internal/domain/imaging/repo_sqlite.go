package imaging

import (
	"context"
	"database/sql"
)

const studyCols = `id, study_instance_uid, patient_id, patient_name, modality, study_date,
	description, institution_name, referring_physician, instance_count, created_at, updated_at`

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

func scanStudy(row interface{ Scan(...any) error }) (*Study, error) {
	var s Study
	err := row.Scan(&s.ID, &s.StudyInstanceUID, &s.PatientID, &s.PatientName, &s.Modality,
		&s.StudyDate, &s.Description, &s.InstitutionName, &s.ReferringPhysician,
		&s.InstanceCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RepoSQLite) Insert(ctx context.Context, s *Study) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO imaging_studies (`+studyCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StudyInstanceUID, s.PatientID, s.PatientName, s.Modality, s.StudyDate,
		s.Description, s.InstitutionName, s.ReferringPhysician, s.InstanceCount,
		s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *RepoSQLite) GetByID(ctx context.Context, id string) (*Study, error) {
	return scanStudy(r.db.QueryRowContext(ctx,
		"SELECT "+studyCols+" FROM imaging_studies WHERE id = ?", id))
}

func (r *RepoSQLite) GetByStudyUID(ctx context.Context, uid string) (*Study, error) {
	return scanStudy(r.db.QueryRowContext(ctx,
		"SELECT "+studyCols+" FROM imaging_studies WHERE study_instance_uid = ?", uid))
}

func (r *RepoSQLite) Update(ctx context.Context, s *Study) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE imaging_studies SET patient_id = ?, patient_name = ?, modality = ?,
			study_date = ?, description = ?, institution_name = ?, referring_physician = ?,
			instance_count = ?, updated_at = ?
		WHERE id = ?`,
		s.PatientID, s.PatientName, s.Modality, s.StudyDate, s.Description,
		s.InstitutionName, s.ReferringPhysician, s.InstanceCount, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *RepoSQLite) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM imaging_studies WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *RepoSQLite) Search(ctx context.Context, f SearchFilters, limit, offset int) ([]*Study, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.PatientID != "" {
		where += " AND patient_id = ?"
		args = append(args, f.PatientID)
	}
	if f.Modality != "" {
		where += " AND modality = ?"
		args = append(args, f.Modality)
	}
	if f.DateFrom != "" {
		where += " AND study_date >= ?"
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		where += " AND study_date <= ?"
		args = append(args, f.DateTo)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM imaging_studies"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+studyCols+" FROM imaging_studies"+where+
			" ORDER BY study_date DESC, created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var studies []*Study
	for rows.Next() {
		s, err := scanStudy(rows)
		if err != nil {
			return nil, 0, err
		}
		studies = append(studies, s)
	}
	return studies, total, rows.Err()
}
