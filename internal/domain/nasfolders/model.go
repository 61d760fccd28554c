package nasfolders

import "time"

// Procedure types a shared folder can be dedicated to.
const (
	ProcedureCT         = "CT"
	ProcedureMRI        = "MRI"
	ProcedureXRay       = "XRAY"
	ProcedureUltrasound = "ULTRASOUND"
	ProcedureNuclear    = "NUCLEAR"
	ProcedurePathology  = "PATHOLOGY"
	ProcedureGeneral    = "GENERAL"
)

var ProcedureTypes = []string{
	ProcedureCT, ProcedureMRI, ProcedureXRay, ProcedureUltrasound,
	ProcedureNuclear, ProcedurePathology, ProcedureGeneral,
}

func ValidProcedureType(t string) bool {
	for _, p := range ProcedureTypes {
		if p == t {
			return true
		}
	}
	return false
}

const (
	ProtocolSMB = "SMB"
	ProtocolNFS = "NFS"
	ProtocolFTP = "FTP"
)

// protocolPorts maps a share protocol to the TCP port probed by the
// connectivity test.
var protocolPorts = map[string]int{
	ProtocolSMB: 445,
	ProtocolNFS: 2049,
	ProtocolFTP: 21,
}

func ValidProtocol(p string) bool {
	_, ok := protocolPorts[p]
	return ok
}

// Device is a configured NAS appliance. The admin password is stored
// encrypted and never serialised.
type Device struct {
	DeviceID               string     `json:"device_id"`
	DeviceName             string     `json:"device_name"`
	IPAddress              string     `json:"ip_address"`
	Manufacturer           string     `json:"manufacturer,omitempty"`
	Model                  string     `json:"model,omitempty"`
	DefaultDomain          string     `json:"default_domain,omitempty"`
	AdminUsername          string     `json:"admin_username,omitempty"`
	AdminPasswordEncrypted string     `json:"-"`
	IsActive               bool       `json:"is_active"`
	CreatedAt              time.Time  `json:"created_at"`
	LastDiscovery          *time.Time `json:"last_discovery,omitempty"`
}

// Folder is a network share dedicated to one procedure type.
type Folder struct {
	FolderID          string     `json:"folder_id"`
	NASDeviceID       string     `json:"nas_device_id"`
	ProcedureType     string     `json:"procedure_type"`
	ShareName         string     `json:"share_name"`
	SharePath         string     `json:"share_path"`
	Username          string     `json:"username,omitempty"`
	PasswordEncrypted string     `json:"-"`
	Domain            string     `json:"domain,omitempty"`
	Protocol          string     `json:"protocol"`
	MountPoint        string     `json:"mount_point,omitempty"`
	AutoMount         bool       `json:"auto_mount"`
	ReadOnly          bool       `json:"read_only"`
	CompressionType   string     `json:"compression_type,omitempty"`
	DatabaseFormat    string     `json:"database_format,omitempty"`
	Priority          int        `json:"priority"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	LastTested        *time.Time `json:"last_tested,omitempty"`
	LastSuccessful    *time.Time `json:"last_successful,omitempty"`
}

type CreateDeviceRequest struct {
	DeviceName    string `json:"device_name"`
	IPAddress     string `json:"ip_address"`
	Manufacturer  string `json:"manufacturer"`
	Model         string `json:"model"`
	DefaultDomain string `json:"default_domain"`
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`
}

type CreateFolderRequest struct {
	NASDeviceID     string `json:"nas_device_id"`
	ProcedureType   string `json:"procedure_type"`
	ShareName       string `json:"share_name"`
	SharePath       string `json:"share_path"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Domain          string `json:"domain"`
	Protocol        string `json:"protocol"`
	MountPoint      string `json:"mount_point"`
	AutoMount       bool   `json:"auto_mount"`
	ReadOnly        bool   `json:"read_only"`
	CompressionType string `json:"compression_type"`
	DatabaseFormat  string `json:"database_format"`
	Priority        int    `json:"priority"`
}

type UpdateFolderRequest struct {
	ShareName  *string `json:"share_name,omitempty"`
	SharePath  *string `json:"share_path,omitempty"`
	Username   *string `json:"username,omitempty"`
	Password   *string `json:"password,omitempty"`
	Domain     *string `json:"domain,omitempty"`
	Protocol   *string `json:"protocol,omitempty"`
	MountPoint *string `json:"mount_point,omitempty"`
	AutoMount  *bool   `json:"auto_mount,omitempty"`
	ReadOnly   *bool   `json:"read_only,omitempty"`
	Priority   *int    `json:"priority,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

// TestResult is the outcome of a connectivity probe against a folder's
// NAS device.
type TestResult struct {
	FolderID  string    `json:"folder_id"`
	Reachable bool      `json:"reachable"`
	Address   string    `json:"address"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	TestedAt  time.Time `json:"tested_at"`
}

// ProcedureSummary reports import readiness for one procedure type.
type ProcedureSummary struct {
	ProcedureType  string     `json:"procedure_type"`
	FolderCount    int        `json:"folder_count"`
	ActiveFolders  int        `json:"active_folders"`
	Ready          bool       `json:"ready"`
	LastSuccessful *time.Time `json:"last_successful,omitempty"`
}
