package fleetAuth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrEthical07/fleetAuth/internal/flows"
)

// ValidateAccessToken verifies an access token and checks the revocation
// registry.
//
// When Validation.ResolvePrincipal is set (the default) the principal is
// loaded and the approval gate applied again, so claims act only as a cache.
// Expired tokens report Expired=true and ErrTokenExpired; every failure is
// returned both as the error and in the result's Err field.
//
//	Performance: 1 revocation lookup, 1 repository call when resolving.
func (e *Engine) ValidateAccessToken(ctx context.Context, token string) (ValidationResult, error) {
	if err := e.ready(); err != nil {
		return ValidationResult{Err: err}, err
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()
	ctx, span := e.startSpan(ctx, "fleetAuth.ValidateAccessToken")
	defer span.End()

	res := flows.RunValidate(ctx, token, e.flowDeps.Validate)

	var err error
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureToken:
		err = mapTokenError(res.Err)
	case flows.ValidateFailureRevocationCheck, flows.ValidateFailureLookup:
		err = wrapUnavailable(res.Err)
	case flows.ValidateFailureRevoked:
		err = ErrTokenRevoked
		e.metricInc(MetricRevokedTokenPresented)
		e.emitAudit(ctx, auditEventRevokedTokenPresented, false, res.Claims.PrincipalID, "", res.Claims.ID, err, func() map[string]string {
			return map[string]string{"kind": "access"}
		})
	case flows.ValidateFailurePrincipalNotFound:
		err = ErrTokenInvalid
	case flows.ValidateFailureNotApproved:
		err = ErrPrincipalNotApproved
	default:
		err = res.Err
	}
	if err != nil {
		e.metricInc(MetricValidateFailure)
		span.SetAttributes(attribute.Bool("fleetauth.expired", res.Expired))
		recordSpanError(span, err)
		return ValidationResult{Expired: res.Expired, Err: err}, err
	}

	out := ValidationResult{
		Valid:       true,
		PrincipalID: res.Claims.PrincipalID,
		Roles:       append([]string(nil), res.Claims.Roles...),
	}
	if res.Resolved {
		out.Roles = out.Roles[:0]
		for _, r := range res.Principal.Roles {
			out.Roles = append(out.Roles, r.String())
		}
	}
	e.metricInc(MetricValidateSuccess)
	span.SetAttributes(attribute.String("fleetauth.principal_id", out.PrincipalID))
	return out, nil
}
