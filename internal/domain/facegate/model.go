package facegate

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// EncodingDims is the dimensionality of a face encoding vector.
const EncodingDims = 128

// Settings keys stored in face_auth_settings.
const (
	SettingMaxAttemptsPerHour = "max_attempts_per_hour"
	SettingMaxDistance        = "max_distance"
	SettingDefaultThreshold   = "default_confidence_threshold"
	SettingEnabled            = "enabled"
)

// Profile is a user's enrolled face encoding. The encoding is stored
// base64-encoded; the raw image is never retained, only its hash.
type Profile struct {
	UserID              string     `json:"user_id"`
	FaceEncoding        string     `json:"-"`
	FaceImageHash       string     `json:"face_image_hash"`
	EnrolledAt          time.Time  `json:"enrolled_at"`
	LastUsed            *time.Time `json:"last_used,omitempty"`
	UsageCount          int        `json:"usage_count"`
	IsActive            bool       `json:"is_active"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
}

// Attempt is one verification attempt, successful or not.
type Attempt struct {
	AttemptID       string    `json:"attempt_id"`
	UserID          string    `json:"user_id"`
	Success         bool      `json:"success"`
	ConfidenceScore float64   `json:"confidence_score"`
	IPAddress       string    `json:"ip_address"`
	UserAgent       string    `json:"user_agent"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	AttemptedAt     time.Time `json:"attempted_at"`
}

// VerifyResult reports the outcome of a verification.
type VerifyResult struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// EncodeVector serialises a face encoding to its stored base64 form
// (little-endian float64s).
func EncodeVector(v []float64) string {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector parses a stored base64 face encoding.
func DecodeVector(s string) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw)%8 != 0 {
		return nil, errors.New("malformed face encoding")
	}
	v := make([]float64, len(raw)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return v, nil
}

// Distance is the Euclidean distance between two encodings.
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("encoding dimension mismatch")
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
