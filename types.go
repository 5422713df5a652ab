package fleetAuth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/fleetAuth/jwt"
	"github.com/MrEthical07/fleetAuth/otp"
)

// Role is the closed set of principal roles.
type Role uint8

const (
	RoleCustomer Role = iota + 1
	RoleDriver
	RoleFleetManager
	RoleSupport
	RoleAdmin
)

// Roles lists every defined role in declaration order.
var Roles = []Role{RoleCustomer, RoleDriver, RoleFleetManager, RoleSupport, RoleAdmin}

// String returns the wire name of r.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleDriver:
		return "driver"
	case RoleFleetManager:
		return "fleet_manager"
	case RoleSupport:
		return "support"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDriver, RoleFleetManager, RoleSupport, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole maps a wire name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer":
		return RoleCustomer, nil
	case "driver":
		return RoleDriver, nil
	case "fleet_manager":
		return RoleFleetManager, nil
	case "support":
		return RoleSupport, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// ApprovalState is the workflow status that gates authentication.
type ApprovalState uint8

const (
	ApprovalPending ApprovalState = iota + 1
	ApprovalProcessing
	ApprovalApproved
	ApprovalRejected
	ApprovalOnHold
	ApprovalArchived
)

// String returns the wire name of s.
func (s ApprovalState) String() string {
	switch s {
	case ApprovalPending:
		return "pending"
	case ApprovalProcessing:
		return "processing"
	case ApprovalApproved:
		return "approved"
	case ApprovalRejected:
		return "rejected"
	case ApprovalOnHold:
		return "on_hold"
	case ApprovalArchived:
		return "archived"
	default:
		return fmt.Sprintf("approval(%d)", uint8(s))
	}
}

// ParseApprovalState maps a wire name to an ApprovalState.
func ParseApprovalState(v string) (ApprovalState, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		return ApprovalPending, nil
	case "processing":
		return ApprovalProcessing, nil
	case "approved":
		return ApprovalApproved, nil
	case "rejected":
		return ApprovalRejected, nil
	case "on_hold", "on-hold":
		return ApprovalOnHold, nil
	case "archived":
		return ApprovalArchived, nil
	default:
		return 0, fmt.Errorf("unknown approval state %q", v)
	}
}

// CanAuthenticate reports whether a principal in state s may complete
// authentication or refresh tokens.
func (s ApprovalState) CanAuthenticate() bool {
	switch s {
	case ApprovalApproved:
		return true
	case ApprovalPending, ApprovalProcessing, ApprovalRejected, ApprovalOnHold, ApprovalArchived:
		return false
	default:
		return false
	}
}

// CanTransition reports whether the aggregate owner may move from s to next.
// This package only consults approval state; it never changes it.
func (s ApprovalState) CanTransition(next ApprovalState) bool {
	switch s {
	case ApprovalPending:
		return next == ApprovalProcessing || next == ApprovalRejected || next == ApprovalArchived
	case ApprovalProcessing:
		return next == ApprovalApproved || next == ApprovalRejected || next == ApprovalOnHold
	case ApprovalOnHold:
		return next == ApprovalProcessing || next == ApprovalApproved || next == ApprovalRejected || next == ApprovalArchived
	case ApprovalApproved:
		return next == ApprovalOnHold || next == ApprovalArchived
	case ApprovalRejected:
		return next == ApprovalProcessing || next == ApprovalArchived
	case ApprovalArchived:
		return false
	default:
		return false
	}
}

// Principal is the authenticating aggregate as this package sees it. It
// holds no event buffer; operations return events alongside results.
type Principal struct {
	ID        string
	Email     string
	Phone     string
	Roles     []Role
	Approval  ApprovalState
	CreatedAt time.Time
}

// HasRole reports whether p holds r.
func (p *Principal) HasRole(r Role) bool {
	if p == nil {
		return false
	}
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Identifiers returns the normalized contact identifiers of p, email first.
func (p *Principal) Identifiers() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, 2)
	if e := otp.NormalizeIdentifier(p.Email); e != "" {
		out = append(out, e)
	}
	if ph := otp.NormalizeIdentifier(p.Phone); ph != "" {
		out = append(out, ph)
	}
	return out
}

// Summary returns the caller-facing view of p.
func (p *Principal) Summary() PrincipalSummary {
	roles := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = r.String()
	}
	return PrincipalSummary{
		ID:       p.ID,
		Email:    p.Email,
		Phone:    p.Phone,
		Roles:    roles,
		Approval: p.Approval.String(),
	}
}

func (p *Principal) subject() jwt.Subject {
	s := p.Summary()
	return jwt.Subject{
		ID:       s.ID,
		Email:    s.Email,
		Phone:    s.Phone,
		Roles:    s.Roles,
		Approval: s.Approval,
	}
}

// PrincipalSummary is the serializable principal returned to callers.
type PrincipalSummary struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Roles    []string `json:"roles"`
	Approval string   `json:"approval"`
}

// PrincipalRepository is the persistence capability for principals. Find
// methods return (nil, nil) when nothing matches.
type PrincipalRepository interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	Save(ctx context.Context, p *Principal) error
}

// Delivery is a code handed to the notifier.
type Delivery struct {
	Identifier string
	Code       string
	ExpiresAt  time.Time
	Channel    string
}

// ChallengeNotifier sends an issued code to its identifier.
type ChallengeNotifier interface {
	DeliverChallenge(ctx context.Context, d Delivery) error
}

// ChallengeNotifierFunc adapts a function to ChallengeNotifier.
type ChallengeNotifierFunc func(ctx context.Context, d Delivery) error

func (f ChallengeNotifierFunc) DeliverChallenge(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// TokenPair is re-exported from the jwt package.
type TokenPair = jwt.TokenPair

// ChallengeResult is returned by RequestChallenge.
type ChallengeResult struct {
	Identifier string
	ExpiresAt  time.Time
	Channel    string
	Delivered  bool
	Events     []Event
}

// AuthResult is returned by CompleteChallenge. Events is populated even when
// the call fails with ErrPrincipalNotApproved after registering a principal.
type AuthResult struct {
	Principal  PrincipalSummary
	Tokens     TokenPair
	Registered bool
	Events     []Event
}

// ValidationResult is returned by ValidateAccessToken.
type ValidationResult struct {
	Valid       bool
	PrincipalID string
	Roles       []string
	Expired     bool
	Err         error
}

// LogoutResult is returned by Logout. Known is false for unknown ids.
type LogoutResult struct {
	Known   bool
	Revoked bool
	Events  []Event
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	Tokens TokenPair
	Events []Event
}
