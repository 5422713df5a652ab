package fleetAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/fleetAuth/jwt"
	"github.com/MrEthical07/fleetAuth/kv"
	"github.com/MrEthical07/fleetAuth/otp"
	"github.com/MrEthical07/fleetAuth/revocation"
	"github.com/MrEthical07/fleetAuth/session"
)

// Config is the full Engine configuration. Start from DefaultConfig and
// override what you need; the Builder copies it.
type Config struct {
	JWT          JWTConfig
	OTP          OTPConfig
	Revocation   RevocationConfig
	Session      SessionConfig
	Registration RegistrationConfig
	RateLimit    RateLimitConfig
	Validation   ValidationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token lifetimes and key material.
//
// For "hs256" AccessKey and RefreshKey are distinct shared secrets. For
// "ed25519" they are private keys (raw 64-byte or PKCS#8 PEM).
type JWTConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SigningMethod    string // "ed25519" (default) or "hs256"
	AccessKey        []byte
	AccessPublicKey  []byte
	RefreshKey       []byte
	RefreshPublicKey []byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	KeyID            string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time code challenges.
type OTPConfig struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	KeyPrefix   string
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig controls the token blacklist.
type RevocationConfig struct {
	KeyPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig lists the key patterns removed on logout. Patterns use the
// {principal} and {identifier} placeholders.
type SessionConfig struct {
	TeardownPatterns []string
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig is the self-registration allow-list. Each allowed role
// maps to the approval state a new principal starts in. Roles not present
// cannot be self-registered.
type RegistrationConfig struct {
	SelfRegister map[Role]ApprovalState
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds fixed-window budgets. A zero Max disables the limiter.
type RateLimitConfig struct {
	ChallengeRequestMax    int
	ChallengeRequestWindow time.Duration
	RefreshMax             int
	RefreshWindow          time.Duration
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationConfig controls access-token validation. With ResolvePrincipal
// the principal is loaded on every validation so approval changes take
// effect before the token expires.
type ValidationConfig struct {
	ResolvePrincipal bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Key material is left empty.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     jwt.DefaultAccessTTL,
			RefreshTTL:    jwt.DefaultRefreshTTL,
			SigningMethod: string(jwt.MethodEd25519),
		},
		OTP: OTPConfig{
			CodeLength:  otp.DefaultCodeLength,
			TTL:         otp.DefaultTTL,
			MaxAttempts: otp.DefaultMaxAttempts,
			KeyPrefix:   otp.DefaultKeyPrefix,
		},
		Revocation: RevocationConfig{
			KeyPrefix: revocation.DefaultKeyPrefix,
		},
		Session: SessionConfig{
			TeardownPatterns: append([]string(nil), session.DefaultPatterns...),
		},
		Registration: RegistrationConfig{
			SelfRegister: map[Role]ApprovalState{
				RoleCustomer: ApprovalApproved,
				RoleDriver:   ApprovalPending,
			},
		},
		RateLimit: RateLimitConfig{
			ChallengeRequestMax:    5,
			ChallengeRequestWindow: 10 * time.Minute,
			RefreshMax:             30,
			RefreshWindow:          time.Minute,
		},
		Validation: ValidationConfig{
			ResolvePrincipal: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessKey = cloneBytes(cfg.JWT.AccessKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshKey = cloneBytes(cfg.JWT.RefreshKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	if cfg.Session.TeardownPatterns != nil {
		out.Session.TeardownPatterns = append([]string(nil), cfg.Session.TeardownPatterns...)
	}
	if cfg.Registration.SelfRegister != nil {
		out.Registration.SelfRegister = make(map[Role]ApprovalState, len(cfg.Registration.SelfRegister))
		for r, s := range cfg.Registration.SelfRegister {
			out.Registration.SelfRegister[r] = s
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
//
// Validate does not check key material beyond presence; the jwt package
// rejects malformed keys when the Engine is built.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519, jwt.MethodHS256:
	default:
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.AccessKey) == 0 && len(c.JWT.AccessPublicKey) == 0 {
		return errors.New("JWT AccessKey is required")
	}
	if len(c.JWT.RefreshKey) == 0 && len(c.JWT.RefreshPublicKey) == 0 {
		return errors.New("JWT RefreshKey is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// OTP
	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 10 {
		return errors.New("OTP CodeLength must be between 4 and 10")
	}
	if c.OTP.TTL < time.Second || c.OTP.TTL > time.Hour {
		return errors.New("OTP TTL must be between 1s and 1h")
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > 65535 {
		return errors.New("OTP MaxAttempts must be between 1 and 65535")
	}
	if c.OTP.KeyPrefix == "" {
		return errors.New("OTP KeyPrefix must not be empty")
	}
	if c.OTP.KeyPrefix != kv.EscapePattern(c.OTP.KeyPrefix) {
		return errors.New("OTP KeyPrefix must not contain glob characters")
	}

	// Revocation
	if c.Revocation.KeyPrefix == "" {
		return errors.New("Revocation KeyPrefix must not be empty")
	}
	if c.Revocation.KeyPrefix != kv.EscapePattern(c.Revocation.KeyPrefix) {
		return errors.New("Revocation KeyPrefix must not contain glob characters")
	}

	// Registration
	for role, state := range c.Registration.SelfRegister {
		if !role.Valid() {
			return fmt.Errorf("Registration: %w: %d", ErrInvalidRole, uint8(role))
		}
		switch state {
		case ApprovalPending, ApprovalProcessing, ApprovalApproved:
		default:
			return fmt.Errorf("Registration: role %s cannot start in state %s", role, state)
		}
	}

	// Rate limits
	if c.RateLimit.ChallengeRequestMax < 0 || c.RateLimit.RefreshMax < 0 {
		return errors.New("RateLimit Max values must be >= 0")
	}
	if c.RateLimit.ChallengeRequestMax > 0 && c.RateLimit.ChallengeRequestWindow <= 0 {
		return errors.New("RateLimit ChallengeRequestWindow must be > 0 when ChallengeRequestMax is set")
	}
	if c.RateLimit.RefreshMax > 0 && c.RateLimit.RefreshWindow <= 0 {
		return errors.New("RateLimit RefreshWindow must be > 0 when RefreshMax is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
