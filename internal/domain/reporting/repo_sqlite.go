package reporting

import (
	"context"
	"database/sql"
)

const reportCols = `id, study_instance_uid, patient_id, radiologist_id, typist_id, status,
	findings, impression, recommendations, clinical_data, created_at, updated_at, authorized_at`

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

func scanReport(row interface{ Scan(...any) error }) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.StudyInstanceUID, &r.PatientID, &r.RadiologistID, &r.TypistID,
		&r.Status, &r.Findings, &r.Impression, &r.Recommendations, &r.ClinicalData,
		&r.CreatedAt, &r.UpdatedAt, &r.AuthorizedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (repo *RepoSQLite) Insert(ctx context.Context, r *Report) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO reports (`+reportCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StudyInstanceUID, r.PatientID, r.RadiologistID, r.TypistID, r.Status,
		r.Findings, r.Impression, r.Recommendations, r.ClinicalData,
		r.CreatedAt, r.UpdatedAt, r.AuthorizedAt)
	return err
}

func (repo *RepoSQLite) GetByID(ctx context.Context, id string) (*Report, error) {
	return scanReport(repo.db.QueryRowContext(ctx,
		"SELECT "+reportCols+" FROM reports WHERE id = ?", id))
}

func (repo *RepoSQLite) Update(ctx context.Context, r *Report) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE reports SET typist_id = ?, status = ?, findings = ?, impression = ?,
			recommendations = ?, clinical_data = ?, updated_at = ?, authorized_at = ?
		WHERE id = ?`,
		r.TypistID, r.Status, r.Findings, r.Impression, r.Recommendations,
		r.ClinicalData, r.UpdatedAt, r.AuthorizedAt, r.ID)
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

func (repo *RepoSQLite) Search(ctx context.Context, f SearchFilters, limit, offset int) ([]*Report, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.PatientID != "" {
		where += " AND patient_id = ?"
		args = append(args, f.PatientID)
	}
	if f.StudyUID != "" {
		where += " AND study_instance_uid = ?"
		args = append(args, f.StudyUID)
	}
	if f.RadiologistID != "" {
		where += " AND radiologist_id = ?"
		args = append(args, f.RadiologistID)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}

	var total int
	if err := repo.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reports"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := repo.db.QueryContext(ctx,
		"SELECT "+reportCols+" FROM reports"+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}
