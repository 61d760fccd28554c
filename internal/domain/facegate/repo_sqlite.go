package facegate

import (
	"context"
	"database/sql"
	"time"
)

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

func (r *RepoSQLite) UpsertProfile(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO face_profiles (user_id, face_encoding, face_image_hash, enrolled_at, last_used, usage_count, is_active, confidence_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			face_encoding = excluded.face_encoding,
			face_image_hash = excluded.face_image_hash,
			enrolled_at = excluded.enrolled_at,
			is_active = excluded.is_active,
			confidence_threshold = excluded.confidence_threshold`,
		p.UserID, p.FaceEncoding, p.FaceImageHash, p.EnrolledAt, p.LastUsed, p.UsageCount, p.IsActive, p.ConfidenceThreshold,
	)
	return err
}

func (r *RepoSQLite) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, face_encoding, face_image_hash, enrolled_at, last_used, usage_count, is_active, confidence_threshold
		FROM face_profiles WHERE user_id = ?`, userID).Scan(
		&p.UserID, &p.FaceEncoding, &p.FaceImageHash, &p.EnrolledAt, &p.LastUsed, &p.UsageCount, &p.IsActive, &p.ConfidenceThreshold,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoSQLite) DeactivateProfile(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE face_profiles SET is_active = 0 WHERE user_id = ?", userID)
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

func (r *RepoSQLite) RecordUse(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE face_profiles SET usage_count = usage_count + 1, last_used = ? WHERE user_id = ?`, at, userID)
	return err
}

func (r *RepoSQLite) InsertAttempt(ctx context.Context, a *Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO face_auth_attempts (attempt_id, user_id, success, confidence_score, ip_address, user_agent, failure_reason, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AttemptID, a.UserID, a.Success, a.ConfidenceScore, a.IPAddress, a.UserAgent, nullable(a.FailureReason), a.AttemptedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *RepoSQLite) CountRecentAttempts(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM face_auth_attempts WHERE user_id = ? AND attempted_at >= ?",
		userID, since).Scan(&n)
	return n, err
}

func (r *RepoSQLite) ListAttempts(ctx context.Context, userID string, limit, offset int) ([]*Attempt, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM face_auth_attempts WHERE user_id = ?", userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT attempt_id, user_id, success, confidence_score, ip_address, user_agent, failure_reason, attempted_at
		FROM face_auth_attempts
		WHERE user_id = ?
		ORDER BY attempted_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Attempt
	for rows.Next() {
		var a Attempt
		var reason sql.NullString
		if err := rows.Scan(&a.AttemptID, &a.UserID, &a.Success, &a.ConfidenceScore,
			&a.IPAddress, &a.UserAgent, &reason, &a.AttemptedAt); err != nil {
			return nil, 0, err
		}
		a.FailureReason = reason.String
		items = append(items, &a)
	}
	return items, total, rows.Err()
}

func (r *RepoSQLite) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT setting_key, setting_value FROM face_auth_settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

func (r *RepoSQLite) SetSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO face_auth_settings (setting_key, setting_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value, updated_at = excluded.updated_at`,
		key, value, at)
	return err
}
