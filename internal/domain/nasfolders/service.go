package nasfolders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
	"github.com/impilo-health/impilo/internal/platform/securestore"
)

var (
	ErrDeviceNotFound   = errors.New("nas device not found")
	ErrFolderNotFound   = errors.New("shared folder not found")
	ErrDuplicateIP      = errors.New("a nas device with this IP address already exists")
	ErrInvalidProcedure = errors.New("unknown procedure type")
	ErrInvalidProtocol  = errors.New("protocol must be SMB, NFS or FTP")
	ErrInvalidPriority  = errors.New("priority must be between 1 and 10")
)

// Dialer lets tests stub the connectivity probe.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

type Service struct {
	devices     DeviceRepository
	folders     FolderRepository
	store       *securestore.Store
	auditor     audit.Recorder
	logger      zerolog.Logger
	dial        Dialer
	dialTimeout time.Duration
	now         func() time.Time
}

func NewService(devices DeviceRepository, folders FolderRepository, store *securestore.Store, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		devices:     devices,
		folders:     folders,
		store:       store,
		auditor:     auditor,
		logger:      logger.With().Str("component", "nasfolders").Logger(),
		dial:        net.DialTimeout,
		dialTimeout: 5 * time.Second,
		now:         time.Now,
	}
}

func (s *Service) CreateDevice(ctx context.Context, actorID string, req CreateDeviceRequest) (*Device, error) {
	if req.DeviceName == "" {
		return nil, errors.New("device_name is required")
	}
	if net.ParseIP(req.IPAddress) == nil {
		return nil, fmt.Errorf("invalid IP address %q", req.IPAddress)
	}
	if existing, err := s.devices.GetByIP(ctx, req.IPAddress); err == nil && existing != nil {
		return nil, ErrDuplicateIP
	}

	d := &Device{
		DeviceID:      "nas_" + uuid.NewString(),
		DeviceName:    req.DeviceName,
		IPAddress:     req.IPAddress,
		Manufacturer:  req.Manufacturer,
		Model:         req.Model,
		DefaultDomain: req.DefaultDomain,
		AdminUsername: req.AdminUsername,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if req.AdminPassword != "" {
		enc, err := s.encrypt(req.AdminPassword)
		if err != nil {
			return nil, err
		}
		d.AdminPasswordEncrypted = enc
	}
	if err := s.devices.Insert(ctx, d); err != nil {
		return nil, fmt.Errorf("insert nas device: %w", err)
	}

	s.audit(ctx, actorID, "nas_device_created", "nas_device", d.DeviceID, map[string]any{
		"device_name": d.DeviceName,
		"ip_address":  d.IPAddress,
	})
	return d, nil
}

func (s *Service) GetDevice(ctx context.Context, id string) (*Device, error) {
	d, err := s.devices.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func (s *Service) ListDevices(ctx context.Context, activeOnly bool) ([]*Device, error) {
	return s.devices.List(ctx, activeOnly)
}

func (s *Service) DeactivateDevice(ctx context.Context, actorID, id string) error {
	if err := s.devices.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDeviceNotFound
		}
		return err
	}
	s.audit(ctx, actorID, "nas_device_deactivated", "nas_device", id, nil)
	return nil
}

func (s *Service) CreateFolder(ctx context.Context, actorID string, req CreateFolderRequest) (*Folder, error) {
	if !ValidProcedureType(req.ProcedureType) {
		return nil, ErrInvalidProcedure
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = ProtocolSMB
	}
	if !ValidProtocol(protocol) {
		return nil, ErrInvalidProtocol
	}
	if req.ShareName == "" || req.SharePath == "" {
		return nil, errors.New("share_name and share_path are required")
	}
	priority := req.Priority
	if priority == 0 {
		priority = 5
	}
	if priority < 1 || priority > 10 {
		return nil, ErrInvalidPriority
	}
	if _, err := s.GetDevice(ctx, req.NASDeviceID); err != nil {
		return nil, err
	}

	f := &Folder{
		FolderID:        "folder_" + uuid.NewString(),
		NASDeviceID:     req.NASDeviceID,
		ProcedureType:   req.ProcedureType,
		ShareName:       req.ShareName,
		SharePath:       req.SharePath,
		Username:        req.Username,
		Domain:          req.Domain,
		Protocol:        protocol,
		MountPoint:      req.MountPoint,
		AutoMount:       req.AutoMount,
		ReadOnly:        req.ReadOnly,
		CompressionType: req.CompressionType,
		DatabaseFormat:  req.DatabaseFormat,
		Priority:        priority,
		IsActive:        true,
		CreatedAt:       s.now().UTC(),
	}
	if req.Password != "" {
		enc, err := s.encrypt(req.Password)
		if err != nil {
			return nil, err
		}
		f.PasswordEncrypted = enc
	}
	if err := s.folders.Insert(ctx, f); err != nil {
		return nil, fmt.Errorf("insert shared folder: %w", err)
	}

	s.audit(ctx, actorID, "shared_folder_created", "shared_folder", f.FolderID, map[string]any{
		"procedure_type": f.ProcedureType,
		"protocol":       f.Protocol,
	})
	return f, nil
}

func (s *Service) GetFolder(ctx context.Context, id string) (*Folder, error) {
	f, err := s.folders.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFolderNotFound
	}
	return f, err
}

func (s *Service) ListFolders(ctx context.Context, deviceID, procedureType string) ([]*Folder, error) {
	if procedureType != "" && !ValidProcedureType(procedureType) {
		return nil, ErrInvalidProcedure
	}
	return s.folders.List(ctx, deviceID, procedureType)
}

func (s *Service) UpdateFolder(ctx context.Context, actorID, id string, req UpdateFolderRequest) (*Folder, error) {
	f, err := s.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ShareName != nil {
		f.ShareName = *req.ShareName
	}
	if req.SharePath != nil {
		f.SharePath = *req.SharePath
	}
	if req.Username != nil {
		f.Username = *req.Username
	}
	if req.Password != nil && *req.Password != "" {
		enc, err := s.encrypt(*req.Password)
		if err != nil {
			return nil, err
		}
		f.PasswordEncrypted = enc
	}
	if req.Domain != nil {
		f.Domain = *req.Domain
	}
	if req.Protocol != nil {
		if !ValidProtocol(*req.Protocol) {
			return nil, ErrInvalidProtocol
		}
		f.Protocol = *req.Protocol
	}
	if req.MountPoint != nil {
		f.MountPoint = *req.MountPoint
	}
	if req.AutoMount != nil {
		f.AutoMount = *req.AutoMount
	}
	if req.ReadOnly != nil {
		f.ReadOnly = *req.ReadOnly
	}
	if req.Priority != nil {
		if *req.Priority < 1 || *req.Priority > 10 {
			return nil, ErrInvalidPriority
		}
		f.Priority = *req.Priority
	}
	if req.IsActive != nil {
		f.IsActive = *req.IsActive
	}
	if err := s.folders.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("update shared folder: %w", err)
	}
	s.audit(ctx, actorID, "shared_folder_updated", "shared_folder", id, nil)
	return f, nil
}

func (s *Service) DeactivateFolder(ctx context.Context, actorID, id string) error {
	if err := s.folders.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFolderNotFound
		}
		return err
	}
	s.audit(ctx, actorID, "shared_folder_deactivated", "shared_folder", id, nil)
	return nil
}

// TestFolder probes the folder's NAS device on the protocol port and
// records the outcome.
func (s *Service) TestFolder(ctx context.Context, actorID, id string) (*TestResult, error) {
	f, err := s.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	device, err := s.GetDevice(ctx, f.NASDeviceID)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(device.IPAddress, strconv.Itoa(protocolPorts[f.Protocol]))
	now := s.now().UTC()
	result := &TestResult{FolderID: id, Address: addr, TestedAt: now}

	start := time.Now()
	conn, err := s.dial("tcp", addr, s.dialTimeout)
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
	} else {
		conn.Close()
		result.Reachable = true
	}

	if err := s.folders.RecordTest(ctx, id, now, result.Reachable); err != nil {
		s.logger.Warn().Err(err).Str("folder_id", id).Msg("record connectivity test")
	}
	s.audit(ctx, actorID, "shared_folder_tested", "shared_folder", id, map[string]any{
		"reachable": result.Reachable,
		"address":   addr,
	})
	return result, nil
}

// Summary reports per-procedure import readiness, including procedure
// types that have no folders configured at all.
func (s *Service) Summary(ctx context.Context) ([]*ProcedureSummary, error) {
	summaries, err := s.folders.ProcedureSummaries(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(summaries))
	for _, sm := range summaries {
		seen[sm.ProcedureType] = true
	}
	for _, p := range ProcedureTypes {
		if !seen[p] {
			summaries = append(summaries, &ProcedureSummary{ProcedureType: p})
		}
	}
	return summaries, nil
}

// FolderCredentials decrypts the stored share password. Admin-only at
// the handler level; used when handing credentials to a mount agent.
func (s *Service) FolderCredentials(ctx context.Context, id string) (username, password string, err error) {
	f, err := s.GetFolder(ctx, id)
	if err != nil {
		return "", "", err
	}
	if f.PasswordEncrypted == "" {
		return f.Username, "", nil
	}
	password, err = s.store.Decrypt(f.PasswordEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("decrypt folder credentials: %w", err)
	}
	return f.Username, password, nil
}

func (s *Service) encrypt(plaintext string) (string, error) {
	enc, err := s.store.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}
	return enc, nil
}

func (s *Service) audit(ctx context.Context, actorID, action, resourceType, resourceID string, details map[string]any) {
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
		ResourceType:       resourceType,
		ResourceID:         resourceID,
		Details:            string(raw),
		ComplianceCategory: audit.CategoryAdmin,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
