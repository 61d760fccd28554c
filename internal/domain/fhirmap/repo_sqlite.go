package fhirmap

import (
	"context"
	"database/sql"
)

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

func (r *RepoSQLite) InsertMapping(ctx context.Context, m *Mapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patient_id_mappings (local_id, fhir_uuid, created_at)
		VALUES (?, ?, ?)`,
		m.LocalID, m.FHIRUUID, m.CreatedAt)
	return err
}

func scanMapping(row interface{ Scan(...any) error }) (*Mapping, error) {
	var m Mapping
	if err := row.Scan(&m.LocalID, &m.FHIRUUID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *RepoSQLite) GetByLocalID(ctx context.Context, localID string) (*Mapping, error) {
	return scanMapping(r.db.QueryRowContext(ctx,
		"SELECT local_id, fhir_uuid, created_at FROM patient_id_mappings WHERE local_id = ?", localID))
}

func (r *RepoSQLite) GetByFHIRUUID(ctx context.Context, fhirUUID string) (*Mapping, error) {
	return scanMapping(r.db.QueryRowContext(ctx,
		"SELECT local_id, fhir_uuid, created_at FROM patient_id_mappings WHERE fhir_uuid = ?", fhirUUID))
}

func (r *RepoSQLite) ListMappings(ctx context.Context, limit, offset int) ([]*Mapping, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patient_id_mappings").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, fhir_uuid, created_at FROM patient_id_mappings
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, 0, err
		}
		mappings = append(mappings, m)
	}
	return mappings, total, rows.Err()
}

func (r *RepoSQLite) DeleteMapping(ctx context.Context, localID string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM patient_id_mappings WHERE local_id = ?", localID)
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

func (r *RepoSQLite) InsertExternalID(ctx context.Context, e *ExternalID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patient_external_ids (id, fhir_uuid, id_type, id_value, id_system)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.FHIRUUID, e.IDType, e.IDValue, e.IDSystem)
	return err
}

func (r *RepoSQLite) ListExternalIDs(ctx context.Context, fhirUUID string) ([]*ExternalID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, fhir_uuid, id_type, id_value, id_system
		FROM patient_external_ids WHERE fhir_uuid = ? ORDER BY id_type`, fhirUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []*ExternalID
	for rows.Next() {
		var e ExternalID
		if err := rows.Scan(&e.ID, &e.FHIRUUID, &e.IDType, &e.IDValue, &e.IDSystem); err != nil {
			return nil, err
		}
		ids = append(ids, &e)
	}
	return ids, rows.Err()
}

func (r *RepoSQLite) DeleteExternalID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM patient_external_ids WHERE id = ?", id)
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
