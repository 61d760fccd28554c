package user

import (
	"context"
	"database/sql"
	"fmt"
)

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

const userCols = `id, username, full_name, email, role, hpcsa_number, password_hash, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.HPCSANumber,
		&u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	return &u, err
}

func (r *RepoSQLite) Insert(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.FullName, u.Email, u.Role, u.HPCSANumber,
		u.PasswordHash, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (r *RepoSQLite) GetByID(ctx context.Context, id string) (*User, error) {
	q := fmt.Sprintf("SELECT %s FROM users WHERE id = ?", userCols)
	return scanUser(r.db.QueryRowContext(ctx, q, id))
}

func (r *RepoSQLite) GetByUsername(ctx context.Context, username string) (*User, error) {
	q := fmt.Sprintf("SELECT %s FROM users WHERE username = ?", userCols)
	return scanUser(r.db.QueryRowContext(ctx, q, username))
}

func (r *RepoSQLite) Update(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET full_name = ?, email = ?, role = ?, hpcsa_number = ?, password_hash = ?,
		    is_active = ?, updated_at = ?
		WHERE id = ?`,
		u.FullName, u.Email, u.Role, u.HPCSANumber, u.PasswordHash,
		u.IsActive, u.UpdatedAt, u.ID,
	)
	return err
}

func (r *RepoSQLite) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	where := ""
	var args []any
	if role != "" {
		where = "WHERE role = ?"
		args = append(args, role)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM users %s", where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM users %s ORDER BY username LIMIT ? OFFSET ?", userCols, where)
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}
