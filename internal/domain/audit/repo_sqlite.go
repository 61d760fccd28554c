package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

const auditCols = `id, actor_id, actor_type, action, resource_type, resource_id,
	patient_id, study_uid, details, compliance_category, source_ip, user_agent, recorded_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.ActorID, &e.ActorType, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.PatientID, &e.StudyUID, &e.Details, &e.ComplianceCategory, &e.SourceIP,
		&e.UserAgent, &e.RecordedAt,
	)
	return &e, err
}

func (r *RepoSQLite) Insert(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorID, e.ActorType, e.Action, e.ResourceType, e.ResourceID,
		e.PatientID, e.StudyUID, e.Details, e.ComplianceCategory, e.SourceIP,
		e.UserAgent, e.RecordedAt,
	)
	return err
}

func (r *RepoSQLite) GetByID(ctx context.Context, id string) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_log WHERE id = ?", auditCols)
	return scanEntry(r.db.QueryRowContext(ctx, q, id))
}

func buildFilterClause(filters SearchFilters) (string, []any) {
	var where []string
	var args []any

	if filters.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filters.ActorID)
	}
	if filters.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filters.Action)
	}
	if filters.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, filters.ResourceType)
	}
	if filters.PatientID != "" {
		where = append(where, "patient_id = ?")
		args = append(args, filters.PatientID)
	}
	if filters.StudyUID != "" {
		where = append(where, "study_uid = ?")
		args = append(args, filters.StudyUID)
	}
	if filters.Category != "" {
		where = append(where, "compliance_category = ?")
		args = append(args, filters.Category)
	}
	if filters.From != nil {
		where = append(where, "recorded_at >= ?")
		args = append(args, *filters.From)
	}
	if filters.To != nil {
		where = append(where, "recorded_at <= ?")
		args = append(args, *filters.To)
	}

	if len(where) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(where, " AND "), args
}

func (r *RepoSQLite) Search(ctx context.Context, filters SearchFilters, limit, offset int) ([]*Entry, int, error) {
	whereClause, args := buildFilterClause(filters)

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_log %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_log %s ORDER BY recorded_at DESC LIMIT ? OFFSET ?",
		auditCols, whereClause)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *RepoSQLite) Stats(ctx context.Context, filters SearchFilters) (*Stats, error) {
	whereClause, args := buildFilterClause(filters)

	stats := &Stats{
		ByAction:   make(map[string]int),
		ByCategory: make(map[string]int),
	}

	q := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT actor_id) FROM audit_log %s`, whereClause)
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&stats.TotalEntries, &stats.DistinctActors); err != nil {
		return nil, err
	}

	q = fmt.Sprintf("SELECT action, COUNT(*) FROM audit_log %s GROUP BY action", whereClause)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.ByAction[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	q = fmt.Sprintf("SELECT compliance_category, COUNT(*) FROM audit_log %s GROUP BY compliance_category", whereClause)
	catRows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer catRows.Close()
	for catRows.Next() {
		var category string
		var count int
		if err := catRows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	return stats, catRows.Err()
}
