package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

func (r *RepoSQLite) InsertScan(ctx context.Context, s *Scan) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discovery_scans (scan_id, cidr, started_at, finished_at, hosts_probed, devices_found)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ScanID, s.CIDR, s.StartedAt, s.FinishedAt, s.HostsProbed, s.DevicesFound)
	return err
}

func (r *RepoSQLite) FinishScan(ctx context.Context, s *Scan) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE discovery_scans SET finished_at = ?, hosts_probed = ?, devices_found = ?
		WHERE scan_id = ?`,
		s.FinishedAt, s.HostsProbed, s.DevicesFound, s.ScanID)
	return err
}

func scanScan(row interface{ Scan(...any) error }) (*Scan, error) {
	var s Scan
	err := row.Scan(&s.ScanID, &s.CIDR, &s.StartedAt, &s.FinishedAt, &s.HostsProbed, &s.DevicesFound)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RepoSQLite) GetScan(ctx context.Context, id string) (*Scan, error) {
	return scanScan(r.db.QueryRowContext(ctx, `
		SELECT scan_id, cidr, started_at, finished_at, hosts_probed, devices_found
		FROM discovery_scans WHERE scan_id = ?`, id))
}

func (r *RepoSQLite) ListScans(ctx context.Context, limit, offset int) ([]*Scan, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM discovery_scans").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT scan_id, cidr, started_at, finished_at, hosts_probed, devices_found
		FROM discovery_scans ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, 0, err
		}
		scans = append(scans, s)
	}
	return scans, total, rows.Err()
}

func (r *RepoSQLite) InsertDiscovered(ctx context.Context, d *Discovered) error {
	ports, err := json.Marshal(d.OpenPorts)
	if err != nil {
		return fmt.Errorf("marshal open ports: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO discovered_devices (id, scan_id, ip_address, open_ports, manufacturer_hint, confidence, discovered_at, promoted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ScanID, d.IPAddress, string(ports), d.ManufacturerHint, d.Confidence, d.DiscoveredAt, d.Promoted)
	return err
}

func scanDiscovered(row interface{ Scan(...any) error }) (*Discovered, error) {
	var d Discovered
	var ports string
	err := row.Scan(&d.ID, &d.ScanID, &d.IPAddress, &ports, &d.ManufacturerHint,
		&d.Confidence, &d.DiscoveredAt, &d.Promoted)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ports), &d.OpenPorts); err != nil {
		return nil, fmt.Errorf("unmarshal open ports: %w", err)
	}
	return &d, nil
}

func (r *RepoSQLite) GetDiscovered(ctx context.Context, id string) (*Discovered, error) {
	return scanDiscovered(r.db.QueryRowContext(ctx, `
		SELECT id, scan_id, ip_address, open_ports, manufacturer_hint, confidence, discovered_at, promoted
		FROM discovered_devices WHERE id = ?`, id))
}

func (r *RepoSQLite) ListDiscovered(ctx context.Context, scanID string) ([]*Discovered, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scan_id, ip_address, open_ports, manufacturer_hint, confidence, discovered_at, promoted
		FROM discovered_devices WHERE scan_id = ? ORDER BY confidence DESC, ip_address`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Discovered
	for rows.Next() {
		d, err := scanDiscovered(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *RepoSQLite) MarkPromoted(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE discovered_devices SET promoted = 1 WHERE id = ?", id)
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
