package fleetAuth

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrEthical07/fleetAuth/internal/flows"
)

// Logout ends the principal's session state.
//
// For a known principal the presented token, when given and decodable, is
// revoked until its own expiry; every teardown pattern is swept; and the
// outstanding challenges for the principal's identifiers are cleared. Those
// steps are best effort and only logged on failure. An unknown principalID
// succeeds with Known=false and touches nothing. Only a repository failure
// is returned, as ErrStoreUnavailable.
func (e *Engine) Logout(ctx context.Context, principalID, token string) (LogoutResult, error) {
	if err := e.ready(); err != nil {
		return LogoutResult{}, err
	}
	ctx, span := e.startSpan(ctx, "fleetAuth.Logout", attribute.String("fleetauth.principal_id", principalID))
	defer span.End()

	res := flows.RunLogout(ctx, principalID, token, e.flowDeps.Logout)
	if res.Failure == flows.LogoutFailureLookup {
		err := wrapUnavailable(res.Err)
		recordSpanError(span, err)
		return LogoutResult{}, err
	}
	if !res.Known {
		e.logger.DebugContext(ctx, "logout for unknown principal", "principal_id", principalID)
		return LogoutResult{}, nil
	}

	if res.Revoked {
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEventTokenRevoked, true, principalID, "", res.TokenID, nil, nil)
	}

	p := res.Principal
	role := Role(0)
	if len(p.Roles) > 0 {
		role = p.Roles[0]
	}
	identifier := ""
	if ids := p.Identifiers(); len(ids) > 0 {
		identifier = ids[0]
	}

	e.metricInc(MetricLogout)
	span.SetAttributes(
		attribute.Bool("fleetauth.revoked", res.Revoked),
		attribute.Int("fleetauth.teardown_failures", res.TeardownFails),
	)
	e.emitAudit(ctx, auditEventLogout, true, principalID, identifier, res.TokenID, nil, func() map[string]string {
		return map[string]string{
			"revoked":           strconv.FormatBool(res.Revoked),
			"teardown_failures": strconv.Itoa(res.TeardownFails),
		}
	})
	return LogoutResult{
		Known:   true,
		Revoked: res.Revoked,
		Events:  []Event{e.newEvent(EventPrincipalLoggedOut, principalID, identifier, role)},
	}, nil
}
