package discovery

import "time"

// ProbePorts are the TCP ports checked on each host, in priority order.
// SMB and NFS first since they identify file servers outright.
var ProbePorts = []int{445, 2049, 21, 22, 80, 443, 5000, 5001}

// Scan is one sweep of a CIDR range.
type Scan struct {
	ScanID       string     `json:"scan_id"`
	CIDR         string     `json:"cidr"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	HostsProbed  int        `json:"hosts_probed"`
	DevicesFound int        `json:"devices_found"`
}

// Discovered is a host that answered on at least one probe port.
type Discovered struct {
	ID               string    `json:"id"`
	ScanID           string    `json:"scan_id"`
	IPAddress        string    `json:"ip_address"`
	OpenPorts        []int     `json:"open_ports"`
	ManufacturerHint string    `json:"manufacturer_hint,omitempty"`
	Confidence       float64   `json:"confidence"`
	DiscoveredAt     time.Time `json:"discovered_at"`
	Promoted         bool      `json:"promoted"`
}

type ScanRequest struct {
	CIDR string `json:"cidr"`
}

type PromoteRequest struct {
	DeviceName    string `json:"device_name"`
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`
}

// scoreHost assigns a NAS-likelihood confidence from the open port mix.
// File-sharing ports dominate; the Synology management ports (5000/5001)
// are a strong manufacturer signal on their own.
func scoreHost(openPorts []int) (confidence float64, hint string) {
	has := make(map[int]bool, len(openPorts))
	for _, p := range openPorts {
		has[p] = true
	}
	if has[445] {
		confidence += 0.4
	}
	if has[2049] {
		confidence += 0.3
	}
	if has[21] {
		confidence += 0.1
	}
	if has[5000] || has[5001] {
		confidence += 0.2
		hint = "Synology"
	}
	if has[22] {
		confidence += 0.05
	}
	if has[80] || has[443] {
		confidence += 0.05
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence, hint
}
