package nasfolders

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const deviceCols = `device_id, device_name, ip_address, manufacturer, model, default_domain,
	admin_username, admin_password_encrypted, is_active, created_at, last_discovery`

const folderCols = `folder_id, nas_device_id, procedure_type, share_name, share_path, username,
	password_encrypted, domain, protocol, mount_point, auto_mount, read_only,
	compression_type, database_format, priority, is_active, created_at, last_tested, last_successful`

type DeviceRepoSQLite struct {
	db *sql.DB
}

func NewDeviceRepoSQLite(db *sql.DB) *DeviceRepoSQLite {
	return &DeviceRepoSQLite{db: db}
}

func scanDevice(row interface{ Scan(...any) error }) (*Device, error) {
	var d Device
	err := row.Scan(&d.DeviceID, &d.DeviceName, &d.IPAddress, &d.Manufacturer, &d.Model,
		&d.DefaultDomain, &d.AdminUsername, &d.AdminPasswordEncrypted, &d.IsActive,
		&d.CreatedAt, &d.LastDiscovery)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeviceRepoSQLite) Insert(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nas_devices (`+deviceCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.DeviceName, d.IPAddress, d.Manufacturer, d.Model, d.DefaultDomain,
		d.AdminUsername, d.AdminPasswordEncrypted, d.IsActive, d.CreatedAt, d.LastDiscovery)
	return err
}

func (r *DeviceRepoSQLite) GetByID(ctx context.Context, id string) (*Device, error) {
	return scanDevice(r.db.QueryRowContext(ctx,
		"SELECT "+deviceCols+" FROM nas_devices WHERE device_id = ?", id))
}

func (r *DeviceRepoSQLite) GetByIP(ctx context.Context, ip string) (*Device, error) {
	return scanDevice(r.db.QueryRowContext(ctx,
		"SELECT "+deviceCols+" FROM nas_devices WHERE ip_address = ?", ip))
}

func (r *DeviceRepoSQLite) List(ctx context.Context, activeOnly bool) ([]*Device, error) {
	query := "SELECT " + deviceCols + " FROM nas_devices"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY device_name"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *DeviceRepoSQLite) Update(ctx context.Context, d *Device) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE nas_devices SET device_name = ?, ip_address = ?, manufacturer = ?, model = ?,
			default_domain = ?, admin_username = ?, admin_password_encrypted = ?, is_active = ?,
			last_discovery = ?
		WHERE device_id = ?`,
		d.DeviceName, d.IPAddress, d.Manufacturer, d.Model, d.DefaultDomain,
		d.AdminUsername, d.AdminPasswordEncrypted, d.IsActive, d.LastDiscovery, d.DeviceID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *DeviceRepoSQLite) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE nas_devices SET is_active = 0 WHERE device_id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type FolderRepoSQLite struct {
	db *sql.DB
}

func NewFolderRepoSQLite(db *sql.DB) *FolderRepoSQLite {
	return &FolderRepoSQLite{db: db}
}

func scanFolder(row interface{ Scan(...any) error }) (*Folder, error) {
	var f Folder
	err := row.Scan(&f.FolderID, &f.NASDeviceID, &f.ProcedureType, &f.ShareName, &f.SharePath,
		&f.Username, &f.PasswordEncrypted, &f.Domain, &f.Protocol, &f.MountPoint,
		&f.AutoMount, &f.ReadOnly, &f.CompressionType, &f.DatabaseFormat, &f.Priority,
		&f.IsActive, &f.CreatedAt, &f.LastTested, &f.LastSuccessful)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FolderRepoSQLite) Insert(ctx context.Context, f *Folder) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shared_folders (`+folderCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FolderID, f.NASDeviceID, f.ProcedureType, f.ShareName, f.SharePath, f.Username,
		f.PasswordEncrypted, f.Domain, f.Protocol, f.MountPoint, f.AutoMount, f.ReadOnly,
		f.CompressionType, f.DatabaseFormat, f.Priority, f.IsActive, f.CreatedAt,
		f.LastTested, f.LastSuccessful)
	return err
}

func (r *FolderRepoSQLite) GetByID(ctx context.Context, id string) (*Folder, error) {
	return scanFolder(r.db.QueryRowContext(ctx,
		"SELECT "+folderCols+" FROM shared_folders WHERE folder_id = ?", id))
}

func (r *FolderRepoSQLite) List(ctx context.Context, deviceID, procedureType string) ([]*Folder, error) {
	query := "SELECT " + folderCols + " FROM shared_folders WHERE 1=1"
	var args []any
	if deviceID != "" {
		query += " AND nas_device_id = ?"
		args = append(args, deviceID)
	}
	if procedureType != "" {
		query += " AND procedure_type = ?"
		args = append(args, procedureType)
	}
	query += " ORDER BY priority, share_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (r *FolderRepoSQLite) Update(ctx context.Context, f *Folder) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE shared_folders SET share_name = ?, share_path = ?, username = ?,
			password_encrypted = ?, domain = ?, protocol = ?, mount_point = ?,
			auto_mount = ?, read_only = ?, compression_type = ?, database_format = ?,
			priority = ?, is_active = ?
		WHERE folder_id = ?`,
		f.ShareName, f.SharePath, f.Username, f.PasswordEncrypted, f.Domain, f.Protocol,
		f.MountPoint, f.AutoMount, f.ReadOnly, f.CompressionType, f.DatabaseFormat,
		f.Priority, f.IsActive, f.FolderID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *FolderRepoSQLite) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE shared_folders SET is_active = 0 WHERE folder_id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *FolderRepoSQLite) RecordTest(ctx context.Context, id string, at time.Time, success bool) error {
	if success {
		_, err := r.db.ExecContext(ctx,
			"UPDATE shared_folders SET last_tested = ?, last_successful = ? WHERE folder_id = ?",
			at, at, id)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE shared_folders SET last_tested = ? WHERE folder_id = ?", at, id)
	return err
}

func (r *FolderRepoSQLite) ProcedureSummaries(ctx context.Context) ([]*ProcedureSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT procedure_type,
		       COUNT(*),
		       SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END),
		       MAX(last_successful)
		FROM shared_folders
		GROUP BY procedure_type
		ORDER BY procedure_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*ProcedureSummary
	for rows.Next() {
		var s ProcedureSummary
		// MAX() strips the column type, so the timestamp comes back as text.
		var last sql.NullString
		if err := rows.Scan(&s.ProcedureType, &s.FolderCount, &s.ActiveFolders, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			if t, err := parseStoredTime(last.String); err == nil {
				s.LastSuccessful = &t
			}
		}
		s.Ready = s.ActiveFolders > 0 && s.LastSuccessful != nil
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
