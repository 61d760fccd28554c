package sharelink

import "time"

// Resource types that can be shared.
const (
	ResourceStudy  = "study"
	ResourceReport = "report"
	ResourceImage  = "image"
)

// Failure reasons recorded on denied access attempts.
const (
	FailInvalidToken     = "invalid_token"
	FailLinkDeactivated  = "link_deactivated"
	FailLinkExpired      = "link_expired"
	FailViewLimit        = "view_limit_exceeded"
	FailIPNotAllowed     = "ip_not_allowed"
	FailPasswordRequired = "password_required"
	FailInvalidPassword  = "invalid_password"
)

// Link is a time-limited, optionally password-protected share of a resource.
// AccessToken and EncryptionKey are sensitive: the token is only returned at
// creation time and the key never leaves the service.
type Link struct {
	LinkID           string     `json:"link_id"`
	ResourceType     string     `json:"resource_type"`
	ResourceID       string     `json:"resource_id"`
	CreatedBy        string     `json:"created_by"`
	RecipientEmail   string     `json:"recipient_email,omitempty"`
	RecipientName    string     `json:"recipient_name,omitempty"`
	AccessToken      string     `json:"-"`
	EncryptionKey    string     `json:"-"`
	ExpiresAt        time.Time  `json:"expires_at"`
	MaxViews         int        `json:"max_views"`
	CurrentViews     int        `json:"current_views"`
	RequiresPassword bool       `json:"requires_password"`
	PasswordHash     string     `json:"-"`
	AllowedIPs       string     `json:"-"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
}

// AccessAttempt is one redemption attempt against a link, successful or not.
type AccessAttempt struct {
	AccessID      string    `json:"access_id"`
	LinkID        string    `json:"link_id,omitempty"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	AccessedAt    time.Time `json:"accessed_at"`
}

// CreateRequest is the payload for issuing a new link.
type CreateRequest struct {
	ResourceType   string   `json:"resource_type"`
	ResourceID     string   `json:"resource_id"`
	RecipientEmail string   `json:"recipient_email"`
	RecipientName  string   `json:"recipient_name"`
	ExpiresHours   int      `json:"expires_hours"`
	MaxViews       int      `json:"max_views"`
	Password       string   `json:"password"`
	AllowedIPs     []string `json:"allowed_ips"`
	Message        string   `json:"message"`
}

// CreateResult returns the new link with its one-time share URL.
type CreateResult struct {
	Link     *Link  `json:"link"`
	ShareURL string `json:"share_url"`
}

// RedeemRequest carries the optional password for a redemption.
type RedeemRequest struct {
	Password string `json:"password"`
}

// RedeemResult is returned on a successful redemption. DataKey is the
// base64 per-link encryption key for decrypting the shared payload.
type RedeemResult struct {
	Link    *Link  `json:"link"`
	DataKey string `json:"data_key"`
}

// Stats summarises sharing activity, optionally scoped to one creator.
type Stats struct {
	TotalLinks    int `json:"total_links"`
	ActiveLinks   int `json:"active_links"`
	RecentLinks7d int `json:"recent_links_7d"`
	TotalViews    int `json:"total_views"`
}
