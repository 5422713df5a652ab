package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm for both token kinds.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

const (
	// TypeAccess is the type tag carried by access tokens.
	TypeAccess = "access"
	// TypeRefresh is the type tag carried by refresh tokens.
	TypeRefresh = "refresh"

	// DefaultAccessTTL is the access-token lifetime used when AccessTTL is zero.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the refresh-token lifetime used when RefreshTTL is zero.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config carries key material and lifetimes. It is copied by NewManager.
//
// For HS256, AccessKey and RefreshKey are shared secrets and must differ.
// For Ed25519 they are private keys (raw or PEM); the public halves may be
// given separately for verify-only managers.
type Config struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SigningMethod    SigningMethod
	AccessKey        []byte
	AccessPublicKey  []byte
	RefreshKey       []byte
	RefreshPublicKey []byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	KeyID            string

	// Now overrides the clock used for issuance and validation.
	Now func() time.Time
}

// Subject is the principal snapshot embedded into an access token.
type Subject struct {
	ID       string
	Email    string
	Phone    string
	Roles    []string
	Approval string
}

// AccessClaims is the signed payload of an access token. Approval and Roles
// are a cache of principal state at issuance, not a source of truth.
type AccessClaims struct {
	PrincipalID string   `json:"pid"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Approval    string   `json:"approval,omitempty"`
	Type        string   `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the signed payload of a refresh token.
type RefreshClaims struct {
	PrincipalID string `json:"pid"`
	Type        string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the result of issuance. RefreshToken is empty when not requested.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	TokenType        string
}

// AccessValidation is the structured result of ValidateAccess.
type AccessValidation struct {
	Valid   bool
	Claims  *AccessClaims
	Err     error
	Expired bool
}

// RefreshValidation is the structured result of ValidateRefresh.
type RefreshValidation struct {
	Valid       bool
	PrincipalID string
	Err         error
}

type keySet struct {
	sign   interface{}
	verify interface{}
}

// Manager signs and verifies token pairs. It is safe for concurrent use.
type Manager struct {
	config  Config
	access  keySet
	refresh keySet
	parser  *jwt.Parser
}

// NewManager validates cfg and prepares key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, fmt.Errorf("%w: ttl must be > 0", ErrInvalidConfig)
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, fmt.Errorf("%w: refresh ttl shorter than access ttl", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway must be in [0,2m]", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessKey) == 0 || len(cfg.RefreshKey) == 0 {
			return nil, fmt.Errorf("%w: hs256 requires access and refresh secrets", ErrInvalidConfig)
		}
		if string(cfg.AccessKey) == string(cfg.RefreshKey) {
			return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrInvalidConfig)
		}
		m.access = keySet{sign: cfg.AccessKey, verify: cfg.AccessKey}
		m.refresh = keySet{sign: cfg.RefreshKey, verify: cfg.RefreshKey}
	case MethodEd25519:
		var err error
		if m.access, err = edKeySet(cfg.AccessKey, cfg.AccessPublicKey); err != nil {
			return nil, fmt.Errorf("%w: access key: %v", ErrInvalidConfig, err)
		}
		if m.refresh, err = edKeySet(cfg.RefreshKey, cfg.RefreshPublicKey); err != nil {
			return nil, fmt.Errorf("%w: refresh key: %v", ErrInvalidConfig, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Issue signs an access token for subject and, when includeRefresh is set,
// a refresh token carrying only the principal id and type tag.
func (m *Manager) Issue(subject Subject, includeRefresh bool) (TokenPair, error) {
	if strings.TrimSpace(subject.ID) == "" {
		return TokenPair{}, errors.New("subject id is required")
	}

	now := m.config.Now()
	pair := TokenPair{TokenType: "Bearer"}

	access, accessExp, err := m.signAccess(subject, now)
	if err != nil {
		return TokenPair{}, err
	}
	pair.AccessToken = access
	pair.AccessExpiresAt = accessExp

	if includeRefresh {
		refresh, refreshExp, err := m.signRefresh(subject.ID, now)
		if err != nil {
			return TokenPair{}, err
		}
		pair.RefreshToken = refresh
		pair.RefreshExpiresAt = refreshExp
	}

	return pair, nil
}

func (m *Manager) signAccess(subject Subject, now time.Time) (string, time.Time, error) {
	if m.access.sign == nil {
		return "", time.Time{}, errors.New("access signing key not configured")
	}
	exp := now.Add(m.config.AccessTTL)
	claims := AccessClaims{
		PrincipalID: subject.ID,
		Email:       subject.Email,
		Phone:       subject.Phone,
		Roles:       append([]string(nil), subject.Roles...),
		Approval:    subject.Approval,
		Type:        TypeAccess,

		RegisteredClaims: m.registered(subject.ID, now, exp),
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	signed, err := token.SignedString(m.access.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (m *Manager) signRefresh(principalID string, now time.Time) (string, time.Time, error) {
	if m.refresh.sign == nil {
		return "", time.Time{}, errors.New("refresh signing key not configured")
	}
	exp := now.Add(m.config.RefreshTTL)
	claims := RefreshClaims{
		PrincipalID:      principalID,
		Type:             TypeRefresh,
		RegisteredClaims: m.registered(principalID, now, exp),
	}

	signed, err := jwt.NewWithClaims(m.method(), claims).SignedString(m.refresh.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (m *Manager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

// ParseAccess verifies signature, type tag, and registered claims of an
// access token. Errors are ErrTokenInvalid, ErrTokenExpired, or
// ErrTokenTypeMismatch.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.access, m.refresh); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrTokenTypeMismatch
	}
	if strings.TrimSpace(claims.PrincipalID) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token. Errors mirror ParseAccess.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.refresh, m.access); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrTokenTypeMismatch
	}
	if strings.TrimSpace(claims.PrincipalID) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateAccess wraps ParseAccess in a result that separates expiry from
// other failures.
func (m *Manager) ValidateAccess(tokenStr string) AccessValidation {
	claims, err := m.ParseAccess(tokenStr)
	if err != nil {
		return AccessValidation{Err: err, Expired: errors.Is(err, ErrTokenExpired)}
	}
	return AccessValidation{Valid: true, Claims: claims}
}

// ValidateRefresh wraps ParseRefresh.
func (m *Manager) ValidateRefresh(tokenStr string) RefreshValidation {
	claims, err := m.ParseRefresh(tokenStr)
	if err != nil {
		return RefreshValidation{Err: err}
	}
	return RefreshValidation{Valid: true, PrincipalID: claims.PrincipalID}
}

// Refresh validates refreshToken, checks it belongs to subject, and issues a
// new access token. The refresh token is not rotated.
func (m *Manager) Refresh(refreshToken string, subject Subject) (TokenPair, error) {
	claims, err := m.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.PrincipalID != subject.ID {
		return TokenPair{}, ErrPrincipalMismatch
	}
	return m.Issue(subject, false)
}

// DecodeUnverified decodes claims without checking the signature or expiry.
// It returns nil for anything that is not a structurally valid JWT. The result
// must never drive an authorization decision.
func (m *Manager) DecodeUnverified(tokenStr string) *AccessClaims {
	return DecodeUnverified(tokenStr)
}

// DecodeSigned returns the claims of an access or refresh token whose
// signature verifies against this manager's keys. Expiry and the other
// registered claims are not checked, so logout can still read an expired
// token. Anything else returns nil.
func (m *Manager) DecodeSigned(tokenStr string) *AccessClaims {
	if tokenStr == "" {
		return nil
	}
	for _, ks := range []keySet{m.access, m.refresh} {
		claims := &AccessClaims{}
		if m.parseSignatureOnly(tokenStr, claims, ks) == nil {
			return claims
		}
	}
	return nil
}

// DecodeUnverified is the package-level form of [Manager.DecodeUnverified].
func DecodeUnverified(tokenStr string) *AccessClaims {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}
	return claims
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, own, other keySet) error {
	if tokenStr == "" {
		return ErrTokenInvalid
	}

	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFunc(own, true))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			// A token that verifies under the other kind's key is a
			// well-formed token presented to the wrong verifier.
			if other.verify != nil && m.verifiesWith(tokenStr, other) {
				return ErrTokenTypeMismatch
			}
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (m *Manager) verifiesWith(tokenStr string, ks keySet) bool {
	return m.parseSignatureOnly(tokenStr, jwt.MapClaims{}, ks) == nil
}

func (m *Manager) parseSignatureOnly(tokenStr string, claims jwt.Claims, ks keySet) error {
	if ks.verify == nil {
		return errors.New("verify key not configured")
	}
	_, err := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithoutClaimsValidation(),
	).ParseWithClaims(tokenStr, claims, m.keyFunc(ks, false))
	return err
}

func (m *Manager) keyFunc(ks keySet, checkKID bool) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if checkKID && m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != "" && kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		if ks.verify == nil {
			return nil, errors.New("verify key not configured")
		}
		return ks.verify, nil
	}
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func edKeySet(private, public []byte) (keySet, error) {
	var ks keySet
	if len(private) > 0 {
		priv, err := parseEdPrivateKey(private)
		if err != nil {
			return keySet{}, err
		}
		ks.sign = priv
		ks.verify = priv.Public().(ed25519.PublicKey)
	}
	if len(public) > 0 {
		pub, err := parseEdPublicKey(public)
		if err != nil {
			return keySet{}, err
		}
		ks.verify = pub
	}
	if ks.verify == nil {
		return keySet{}, errors.New("ed25519 requires a private or public key")
	}
	return ks, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
