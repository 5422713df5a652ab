package fleetAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrEthical07/fleetAuth/internal/flows"
	"github.com/MrEthical07/fleetAuth/internal/limiters"
	"github.com/MrEthical07/fleetAuth/otp"
)

var errDeliveryFailed = errors.New("challenge delivery failed")

// RequestChallenge issues a one-time code for identifier and delivers it
// through the configured notifier before returning.
//
// A new code replaces any outstanding one. Delivery failure is logged and
// reported through Delivered=false and a challenge.delivery_failed event; the
// code stays valid. Errors are ErrInvalidRole, ErrInvalidIdentifier,
// ErrChallengeRateLimited, and ErrStoreUnavailable.
//
//	Performance: 1 store write, 2 limiter round trips when throttled, 1 notifier call.
func (e *Engine) RequestChallenge(ctx context.Context, identifier string, role Role) (ChallengeResult, error) {
	if err := e.ready(); err != nil {
		return ChallengeResult{}, err
	}
	ctx, span := e.startSpan(ctx, "fleetAuth.RequestChallenge", attribute.String("fleetauth.role", role.String()))
	defer span.End()

	if !role.Valid() {
		recordSpanError(span, ErrInvalidRole)
		return ChallengeResult{}, ErrInvalidRole
	}

	res := flows.RunRequestChallenge(ctx, identifier, e.flowDeps.RequestChallenge)
	switch res.Failure {
	case flows.RequestChallengeFailureNone:
	case flows.RequestChallengeFailureInvalidIdentifier:
		recordSpanError(span, ErrInvalidIdentifier)
		return ChallengeResult{}, ErrInvalidIdentifier
	case flows.RequestChallengeFailureRateLimited:
		err := wrapUnavailable(res.Err)
		if errors.Is(res.Err, limiters.ErrRateLimited) {
			err = ErrChallengeRateLimited
			e.metricInc(MetricChallengeRateLimited)
			e.emitAudit(ctx, auditEventChallengeRateLimited, false, "", res.Identifier, "", err, nil)
		}
		recordSpanError(span, err)
		return ChallengeResult{}, err
	default:
		err := mapChallengeError(res.Err)
		recordSpanError(span, err)
		return ChallengeResult{}, err
	}

	e.metricInc(MetricChallengeIssued)
	out := ChallengeResult{
		Identifier: res.Identifier,
		ExpiresAt:  res.ExpiresAt,
		Channel:    res.Channel.String(),
		Delivered:  res.DeliveryErr == nil,
		Events:     []Event{e.newEvent(EventChallengeIssued, "", res.Identifier, role)},
	}
	span.SetAttributes(attribute.String("fleetauth.channel", out.Channel))

	e.emitAudit(ctx, auditEventChallengeRequested, true, "", res.Identifier, "", nil, func() map[string]string {
		return map[string]string{"channel": out.Channel, "role": role.String()}
	})
	if res.DeliveryErr != nil {
		e.metricInc(MetricChallengeDeliveryFailed)
		out.Events = append(out.Events, e.newEvent(EventChallengeDeliveryFailed, "", res.Identifier, role))
		e.emitAudit(ctx, auditEventChallengeDeliveryFailed, false, "", res.Identifier, "", errDeliveryFailed, func() map[string]string {
			return map[string]string{"channel": out.Channel}
		})
	}
	return out, nil
}

// CompleteChallenge verifies code for identifier and signs the principal in
// under role.
//
// An existing principal must already hold role. An unknown identifier is
// registered when role is on the self-registration allow-list; a new
// principal whose initial approval state is not approved is saved and the
// call fails with ErrPrincipalNotApproved, with the principal summary and
// any registration event still present in the result. A wrong code returns an *otp.MismatchError that
// matches ErrChallengeInvalid.
//
//	Performance: 1 store read + 1 write or delete, 1-2 repository calls.
func (e *Engine) CompleteChallenge(ctx context.Context, identifier, code string, role Role) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}
	ctx, span := e.startSpan(ctx, "fleetAuth.CompleteChallenge", attribute.String("fleetauth.role", role.String()))
	defer span.End()

	if !role.Valid() {
		recordSpanError(span, ErrInvalidRole)
		return AuthResult{}, ErrInvalidRole
	}

	deps := e.flowDeps.CompleteChallenge
	deps.RoleMatches = func(p *Principal) bool { return p.HasRole(role) }
	deps.CanSelfRegister = func() bool {
		_, ok := e.config.Registration.SelfRegister[role]
		return ok
	}
	deps.Register = func(ctx context.Context, id string) (*Principal, error) {
		return e.register(ctx, id, role)
	}

	res := flows.RunCompleteChallenge(ctx, identifier, code, deps)

	var out AuthResult
	if res.Registered {
		out.Registered = true
		out.Events = append(out.Events, e.newEvent(EventPrincipalRegistered, res.Principal.ID, res.Identifier, role))
	}

	if res.Failure == flows.CompleteChallengeFailureChallenge {
		err := mapChallengeError(res.Err)
		if errors.Is(err, ErrChallengeAttemptsExceeded) {
			e.metricInc(MetricChallengeAttemptsExceeded)
		} else {
			e.metricInc(MetricChallengeVerifyFailure)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", res.Identifier, "", err, func() map[string]string {
			return map[string]string{"stage": "challenge", "role": role.String()}
		})
		recordSpanError(span, err)
		return out, err
	}
	e.metricInc(MetricChallengeVerifySuccess)

	var err error
	switch res.Failure {
	case flows.CompleteChallengeFailureNone:
	case flows.CompleteChallengeFailureLookup, flows.CompleteChallengeFailureRegister:
		err = wrapUnavailable(res.Err)
	case flows.CompleteChallengeFailureRoleMismatch:
		err = ErrRoleMismatch
	case flows.CompleteChallengeFailureRestrictedRole:
		err = ErrRestrictedRoleRegistration
	case flows.CompleteChallengeFailureNotApproved:
		err = ErrPrincipalNotApproved
		out.Principal = res.Principal.Summary()
		e.metricInc(MetricLoginNotApproved)
	case flows.CompleteChallengeFailureIssue:
		err = fmt.Errorf("issue tokens: %w", res.Err)
	default:
		err = res.Err
	}
	if err != nil {
		principalID := ""
		if res.Principal != nil {
			principalID = res.Principal.ID
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principalID, res.Identifier, "", err, func() map[string]string {
			return map[string]string{"stage": "principal", "role": role.String()}
		})
		recordSpanError(span, err)
		return out, err
	}

	p := res.Principal
	out.Principal = p.Summary()
	out.Tokens = res.Tokens
	out.Events = append(out.Events, e.newEvent(EventPrincipalAuthenticated, p.ID, res.Identifier, role))

	e.metricInc(MetricLoginSuccess)
	span.SetAttributes(attribute.String("fleetauth.principal_id", p.ID), attribute.Bool("fleetauth.registered", res.Registered))
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.ID, res.Identifier, "", nil, func() map[string]string {
		return map[string]string{"role": role.String()}
	})
	return out, nil
}

func (e *Engine) register(ctx context.Context, identifier string, role Role) (*Principal, error) {
	p := &Principal{
		ID:        uuid.NewString(),
		Roles:     []Role{role},
		Approval:  e.config.Registration.SelfRegister[role],
		CreatedAt: e.now().UTC(),
	}
	if otp.ChannelFor(identifier) == otp.ChannelEmail {
		p.Email = identifier
	} else {
		p.Phone = identifier
	}
	if err := e.principals.Save(ctx, p); err != nil {
		return nil, err
	}

	e.metricInc(MetricPrincipalRegistered)
	e.logger.InfoContext(ctx, "principal self-registered",
		"principal_id", p.ID,
		"role", role.String(),
		"approval", p.Approval.String(),
	)
	e.emitAudit(ctx, auditEventPrincipalRegistered, true, p.ID, identifier, "", nil, func() map[string]string {
		return map[string]string{"role": role.String(), "approval": p.Approval.String()}
	})
	return p, nil
}
