package fleetAuth

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrEthical07/fleetAuth/internal/flows"
	"github.com/MrEthical07/fleetAuth/internal/limiters"
)

// Refresh exchanges a refresh token for a new access token. The refresh token
// is not rotated and is returned unchanged in the pair.
//
// The principal is loaded again and must still be approved. Revoked refresh
// tokens fail with ErrTokenRevoked; a principal that no longer exists fails
// with ErrTokenInvalid.
//
//	Performance: 1 revocation lookup, 1 repository call, limiter round trips when throttled.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if err := e.ready(); err != nil {
		return RefreshResult{}, err
	}
	ctx, span := e.startSpan(ctx, "fleetAuth.Refresh")
	defer span.End()

	res := flows.RunRefresh(ctx, refreshToken, e.flowDeps.Refresh)

	var err error
	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureRevocationCheck, flows.RefreshFailureLookup:
		err = wrapUnavailable(res.Err)
	case flows.RefreshFailureRevoked:
		err = ErrTokenRevoked
		e.metricInc(MetricRevokedTokenPresented)
		e.emitAudit(ctx, auditEventRevokedTokenPresented, false, "", "", "", err, func() map[string]string {
			return map[string]string{"kind": "refresh"}
		})
	case flows.RefreshFailureToken:
		err = mapTokenError(res.Err)
	case flows.RefreshFailureRateLimited:
		err = wrapUnavailable(res.Err)
		if errors.Is(res.Err, limiters.ErrRateLimited) {
			err = ErrRefreshRateLimited
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.PrincipalID, "", "", err, nil)
		}
	case flows.RefreshFailurePrincipalNotFound:
		err = ErrTokenInvalid
	case flows.RefreshFailureNotApproved:
		err = ErrPrincipalNotApproved
	case flows.RefreshFailureIssue:
		err = fmt.Errorf("issue access token: %w", res.Err)
	default:
		err = res.Err
	}
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, res.PrincipalID, "", "", err, nil)
		recordSpanError(span, err)
		return RefreshResult{}, err
	}

	p := res.Principal
	role := Role(0)
	if len(p.Roles) > 0 {
		role = p.Roles[0]
	}

	e.metricInc(MetricRefreshSuccess)
	span.SetAttributes(attribute.String("fleetauth.principal_id", p.ID))
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.ID, "", "", nil, nil)
	return RefreshResult{
		Tokens: res.Tokens,
		Events: []Event{e.newEvent(EventTokenRefreshed, p.ID, "", role)},
	}, nil
}
