package user

import "time"

// Roles understood by the platform.
const (
	RoleAdmin        = "admin"
	RoleRadiologist  = "radiologist"
	RoleTypist       = "typist"
	RoleReferringDoc = "referring_doctor"
	RoleSpecialist   = "specialist"
)

// User is a platform account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	HPCSANumber  string    `json:"hpcsa_number,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest is the payload for registering a user.
type CreateRequest struct {
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	HPCSANumber string `json:"hpcsa_number"`
	Password    string `json:"password"`
}

// UpdateRequest carries mutable account fields. Nil fields are unchanged.
type UpdateRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// LoginRequest is the credential payload for password login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token and account summary.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func validRole(role string) bool {
	switch role {
	case RoleAdmin, RoleRadiologist, RoleTypist, RoleReferringDoc, RoleSpecialist:
		return true
	}
	return false
}
