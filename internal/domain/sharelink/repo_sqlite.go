package sharelink

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

const linkCols = `link_id, resource_type, resource_id, created_by, recipient_email, recipient_name,
	access_token, encryption_key, expires_at, max_views, current_views,
	requires_password, password_hash, allowed_ips, is_active, created_at, last_accessed`

func scanLink(row interface{ Scan(...any) error }) (*Link, error) {
	var l Link
	var recipientEmail, recipientName, passwordHash, allowedIPs sql.NullString
	err := row.Scan(
		&l.LinkID, &l.ResourceType, &l.ResourceID, &l.CreatedBy, &recipientEmail, &recipientName,
		&l.AccessToken, &l.EncryptionKey, &l.ExpiresAt, &l.MaxViews, &l.CurrentViews,
		&l.RequiresPassword, &passwordHash, &allowedIPs, &l.IsActive, &l.CreatedAt, &l.LastAccessed,
	)
	if err != nil {
		return nil, err
	}
	l.RecipientEmail = recipientEmail.String
	l.RecipientName = recipientName.String
	l.PasswordHash = passwordHash.String
	l.AllowedIPs = allowedIPs.String
	return &l, nil
}

func (r *RepoSQLite) Insert(ctx context.Context, l *Link) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO secure_links (`+linkCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.LinkID, l.ResourceType, l.ResourceID, l.CreatedBy, nullable(l.RecipientEmail), nullable(l.RecipientName),
		l.AccessToken, l.EncryptionKey, l.ExpiresAt, l.MaxViews, l.CurrentViews,
		l.RequiresPassword, nullable(l.PasswordHash), nullable(l.AllowedIPs), l.IsActive, l.CreatedAt, l.LastAccessed,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *RepoSQLite) GetByID(ctx context.Context, linkID string) (*Link, error) {
	q := fmt.Sprintf("SELECT %s FROM secure_links WHERE link_id = ?", linkCols)
	return scanLink(r.db.QueryRowContext(ctx, q, linkID))
}

func (r *RepoSQLite) GetByToken(ctx context.Context, accessToken string) (*Link, error) {
	q := fmt.Sprintf("SELECT %s FROM secure_links WHERE access_token = ?", linkCols)
	return scanLink(r.db.QueryRowContext(ctx, q, accessToken))
}

func (r *RepoSQLite) ListByCreator(ctx context.Context, createdBy string, activeOnly bool, limit, offset int) ([]*Link, int, error) {
	where := "WHERE 1=1"
	var args []any
	if createdBy != "" {
		where += " AND created_by = ?"
		args = append(args, createdBy)
	}
	if activeOnly {
		where += " AND is_active = 1"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM secure_links %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM secure_links %s ORDER BY created_at DESC LIMIT ? OFFSET ?", linkCols, where)
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (r *RepoSQLite) RecordView(ctx context.Context, linkID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE secure_links
		SET current_views = current_views + 1, last_accessed = ?
		WHERE link_id = ?`, at, linkID)
	return err
}

func (r *RepoSQLite) Deactivate(ctx context.Context, linkID string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE secure_links SET is_active = 0 WHERE link_id = ?", linkID)
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

func (r *RepoSQLite) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE secure_links SET is_active = 0 WHERE is_active = 1 AND expires_at < ?", now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *RepoSQLite) InsertAttempt(ctx context.Context, a *AccessAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_access_attempts (access_id, link_id, ip_address, user_agent, success, failure_reason, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.AccessID, nullable(a.LinkID), a.IPAddress, a.UserAgent, a.Success, nullable(a.FailureReason), a.AccessedAt,
	)
	return err
}

func (r *RepoSQLite) ListAttempts(ctx context.Context, linkID string, limit, offset int) ([]*AccessAttempt, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM link_access_attempts WHERE link_id = ?", linkID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT access_id, link_id, ip_address, user_agent, success, failure_reason, accessed_at
		FROM link_access_attempts
		WHERE link_id = ?
		ORDER BY accessed_at DESC LIMIT ? OFFSET ?`, linkID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AccessAttempt
	for rows.Next() {
		var a AccessAttempt
		var lid, reason sql.NullString
		if err := rows.Scan(&a.AccessID, &lid, &a.IPAddress, &a.UserAgent, &a.Success, &reason, &a.AccessedAt); err != nil {
			return nil, 0, err
		}
		a.LinkID = lid.String
		a.FailureReason = reason.String
		items = append(items, &a)
	}
	return items, total, rows.Err()
}

func (r *RepoSQLite) Stats(ctx context.Context, createdBy string, since time.Time) (*Stats, error) {
	where := ""
	var args []any
	if createdBy != "" {
		where = "WHERE created_by = ?"
		args = append(args, createdBy)
	}
	and := func(cond string) string {
		if where == "" {
			return "WHERE " + cond
		}
		return where + " AND " + cond
	}

	var s Stats
	if err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(current_views), 0) FROM secure_links %s", where),
		args...).Scan(&s.TotalLinks, &s.TotalViews); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM secure_links %s", and("is_active = 1")),
		args...).Scan(&s.ActiveLinks); err != nil {
		return nil, err
	}
	recentArgs := append(append([]any{}, args...), since)
	if err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM secure_links %s", and("created_at > ?")),
		recentArgs...).Scan(&s.RecentLinks7d); err != nil {
		return nil, err
	}
	return &s, nil
}
