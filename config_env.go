package fleetAuth

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/fleetAuth/jwt"
)

// envConfig mirrors the FLEETAUTH_* environment. Durations are strings so
// they go through jwt.ParseTTL and accept "900", "15m" or "7d".
type envConfig struct {
	AccessTTL     string `env:"FLEETAUTH_JWT_ACCESS_TTL"     envDefault:"15m"`
	RefreshTTL    string `env:"FLEETAUTH_JWT_REFRESH_TTL"    envDefault:"7d"`
	SigningMethod string `env:"FLEETAUTH_JWT_SIGNING_METHOD" envDefault:"ed25519"`
	AccessKey     string `env:"FLEETAUTH_JWT_ACCESS_KEY"`
	AccessPublic  string `env:"FLEETAUTH_JWT_ACCESS_PUBLIC_KEY"`
	RefreshKey    string `env:"FLEETAUTH_JWT_REFRESH_KEY"`
	RefreshPublic string `env:"FLEETAUTH_JWT_REFRESH_PUBLIC_KEY"`
	Issuer        string `env:"FLEETAUTH_JWT_ISSUER"`
	Audience      string `env:"FLEETAUTH_JWT_AUDIENCE"`
	KeyID         string `env:"FLEETAUTH_JWT_KEY_ID"`

	OTPLength      int    `env:"FLEETAUTH_OTP_LENGTH"       envDefault:"6"`
	OTPTTL         string `env:"FLEETAUTH_OTP_TTL"          envDefault:"10m"`
	OTPMaxAttempts int    `env:"FLEETAUTH_OTP_MAX_ATTEMPTS" envDefault:"3"`

	ChallengeRequestMax    int    `env:"FLEETAUTH_RATE_CHALLENGE_MAX"    envDefault:"5"`
	ChallengeRequestWindow string `env:"FLEETAUTH_RATE_CHALLENGE_WINDOW" envDefault:"10m"`
	RefreshMax             int    `env:"FLEETAUTH_RATE_REFRESH_MAX"      envDefault:"30"`
	RefreshWindow          string `env:"FLEETAUTH_RATE_REFRESH_WINDOW"   envDefault:"1m"`

	SelfRegister     []string `env:"FLEETAUTH_SELF_REGISTER" envSeparator:"," envDefault:"customer=approved,driver=pending"`
	ResolvePrincipal bool     `env:"FLEETAUTH_VALIDATE_RESOLVE_PRINCIPAL" envDefault:"true"`

	AuditEnabled    bool `env:"FLEETAUTH_AUDIT_ENABLED"     envDefault:"false"`
	AuditBufferSize int  `env:"FLEETAUTH_AUDIT_BUFFER_SIZE" envDefault:"1024"`
	MetricsEnabled  bool `env:"FLEETAUTH_METRICS_ENABLED"   envDefault:"false"`
	LatencyEnabled  bool `env:"FLEETAUTH_METRICS_LATENCY"   envDefault:"false"`
}

// LoadConfigFromEnv builds a Config from FLEETAUTH_* variables on top of
// DefaultConfig. The result is not validated; Build does that.
func LoadConfigFromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return raw.apply(defaultConfig())
}

func (raw envConfig) apply(cfg Config) (Config, error) {
	cfg.JWT.AccessTTL = jwt.ParseTTL(raw.AccessTTL)
	cfg.JWT.RefreshTTL = parseTTLOr(raw.RefreshTTL, jwt.DefaultRefreshTTL)
	cfg.JWT.SigningMethod = strings.ToLower(strings.TrimSpace(raw.SigningMethod))
	cfg.JWT.AccessKey = envBytes(raw.AccessKey)
	cfg.JWT.AccessPublicKey = envBytes(raw.AccessPublic)
	cfg.JWT.RefreshKey = envBytes(raw.RefreshKey)
	cfg.JWT.RefreshPublicKey = envBytes(raw.RefreshPublic)
	cfg.JWT.Issuer = raw.Issuer
	cfg.JWT.Audience = raw.Audience
	cfg.JWT.KeyID = raw.KeyID

	cfg.OTP.CodeLength = raw.OTPLength
	cfg.OTP.TTL = parseTTLOr(raw.OTPTTL, cfg.OTP.TTL)
	cfg.OTP.MaxAttempts = raw.OTPMaxAttempts

	cfg.RateLimit.ChallengeRequestMax = raw.ChallengeRequestMax
	cfg.RateLimit.ChallengeRequestWindow = parseTTLOr(raw.ChallengeRequestWindow, cfg.RateLimit.ChallengeRequestWindow)
	cfg.RateLimit.RefreshMax = raw.RefreshMax
	cfg.RateLimit.RefreshWindow = parseTTLOr(raw.RefreshWindow, cfg.RateLimit.RefreshWindow)

	allow, err := parseSelfRegister(raw.SelfRegister)
	if err != nil {
		return Config{}, err
	}
	cfg.Registration.SelfRegister = allow
	cfg.Validation.ResolvePrincipal = raw.ResolvePrincipal

	cfg.Audit.Enabled = raw.AuditEnabled
	cfg.Audit.BufferSize = raw.AuditBufferSize
	cfg.Metrics.Enabled = raw.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = raw.LatencyEnabled
	return cfg, nil
}

// parseTTLOr uses fallback where jwt.ParseTTL would fall back to its own
// 15 minute default.
func parseTTLOr(s string, fallback time.Duration) time.Duration {
	if !jwt.ValidTTL(s) {
		return fallback
	}
	return jwt.ParseTTL(s)
}

// parseSelfRegister reads "role=state" pairs. A bare role starts approved.
func parseSelfRegister(entries []string) (map[Role]ApprovalState, error) {
	out := make(map[Role]ApprovalState, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, state, hasState := strings.Cut(entry, "=")
		role, err := ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("FLEETAUTH_SELF_REGISTER: %w", err)
		}
		initial := ApprovalApproved
		if hasState {
			initial, err = ParseApprovalState(state)
			if err != nil {
				return nil, fmt.Errorf("FLEETAUTH_SELF_REGISTER: %w", err)
			}
		}
		out[role] = initial
	}
	return out, nil
}

func envBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
