package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
)

var (
	ErrScanNotFound    = errors.New("discovery scan not found")
	ErrDeviceNotFound  = errors.New("discovered device not found")
	ErrAlreadyPromoted = errors.New("device has already been promoted")
)

// Registrar creates a configured NAS device from a discovered one.
// Implemented by the nasfolders service, wired in main.
type Registrar interface {
	RegisterDevice(ctx context.Context, actorID, name, ip, manufacturer, adminUser, adminPassword string) (deviceID string, err error)
}

type Service struct {
	repo         Repository
	registrar    Registrar
	auditor      audit.Recorder
	logger       zerolog.Logger
	dial         Dialer
	workers      int
	probeTimeout time.Duration
	now          func() time.Time
}

func NewService(repo Repository, registrar Registrar, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		registrar:    registrar,
		auditor:      auditor,
		logger:       logger.With().Str("component", "discovery").Logger(),
		dial:         net.DialTimeout,
		workers:      defaultProbeWorkers,
		probeTimeout: defaultProbeTimeout,
		now:          time.Now,
	}
}

// SetProbeOptions overrides the scan worker count and per-port dial
// timeout. Non-positive values keep the defaults.
func (s *Service) SetProbeOptions(workers int, timeout time.Duration) {
	if workers > 0 {
		s.workers = workers
	}
	if timeout > 0 {
		s.probeTimeout = timeout
	}
}

// Scan sweeps a CIDR range for NAS-like hosts. The sweep runs
// synchronously; ranges are capped at /22 so a scan stays short.
func (s *Service) Scan(ctx context.Context, actorID string, req ScanRequest) (*Scan, []*Discovered, error) {
	hosts, err := expandCIDR(req.CIDR)
	if err != nil {
		return nil, nil, err
	}

	scan := &Scan{
		ScanID:    "scan_" + uuid.NewString(),
		CIDR:      req.CIDR,
		StartedAt: s.now().UTC(),
	}
	if err := s.repo.InsertScan(ctx, scan); err != nil {
		return nil, nil, fmt.Errorf("insert scan: %w", err)
	}

	s.logger.Info().Str("scan_id", scan.ScanID).Str("cidr", req.CIDR).
		Int("hosts", len(hosts)).Msg("starting subnet scan")

	results, err := probeSubnet(ctx, s.dial, hosts, s.workers, s.probeTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("probe subnet: %w", err)
	}

	now := s.now().UTC()
	var devices []*Discovered
	for _, r := range results {
		confidence, hint := scoreHost(r.openPorts)
		if confidence < minNASConf {
			continue
		}
		d := &Discovered{
			ID:               "disc_" + uuid.NewString(),
			ScanID:           scan.ScanID,
			IPAddress:        r.ip,
			OpenPorts:        r.openPorts,
			ManufacturerHint: hint,
			Confidence:       confidence,
			DiscoveredAt:     now,
		}
		if err := s.repo.InsertDiscovered(ctx, d); err != nil {
			return nil, nil, fmt.Errorf("insert discovered device: %w", err)
		}
		devices = append(devices, d)
	}

	scan.FinishedAt = &now
	scan.HostsProbed = len(hosts)
	scan.DevicesFound = len(devices)
	if err := s.repo.FinishScan(ctx, scan); err != nil {
		return nil, nil, fmt.Errorf("finish scan: %w", err)
	}

	s.audit(ctx, actorID, "discovery_scan", scan.ScanID, map[string]any{
		"cidr":          req.CIDR,
		"hosts_probed":  scan.HostsProbed,
		"devices_found": scan.DevicesFound,
	})
	return scan, devices, nil
}

func (s *Service) GetScan(ctx context.Context, id string) (*Scan, []*Discovered, error) {
	scan, err := s.repo.GetScan(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrScanNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	devices, err := s.repo.ListDiscovered(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return scan, devices, nil
}

func (s *Service) ListScans(ctx context.Context, limit, offset int) ([]*Scan, int, error) {
	return s.repo.ListScans(ctx, limit, offset)
}

// Promote turns a discovered host into a configured NAS device.
func (s *Service) Promote(ctx context.Context, actorID, id string, req PromoteRequest) (string, error) {
	d, err := s.repo.GetDiscovered(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDeviceNotFound
	}
	if err != nil {
		return "", err
	}
	if d.Promoted {
		return "", ErrAlreadyPromoted
	}

	name := req.DeviceName
	if name == "" {
		name = "NAS " + d.IPAddress
	}
	deviceID, err := s.registrar.RegisterDevice(ctx, actorID, name, d.IPAddress,
		d.ManufacturerHint, req.AdminUsername, req.AdminPassword)
	if err != nil {
		return "", fmt.Errorf("register nas device: %w", err)
	}
	if err := s.repo.MarkPromoted(ctx, id); err != nil {
		return "", fmt.Errorf("mark promoted: %w", err)
	}

	s.audit(ctx, actorID, "discovery_promote", id, map[string]any{
		"ip_address": d.IPAddress,
		"device_id":  deviceID,
	})
	return deviceID, nil
}

func (s *Service) audit(ctx context.Context, actorID, action, resourceID string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	raw := []byte("{}")
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	entry := audit.Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       "discovery",
		ResourceID:         resourceID,
		Details:            string(raw),
		ComplianceCategory: audit.CategoryAdmin,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
