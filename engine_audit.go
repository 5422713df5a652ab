package fleetAuth

import (
	"context"
	"errors"
)

const (
	auditEventChallengeRequested      = "challenge_requested"
	auditEventChallengeRateLimited    = "challenge_rate_limited"
	auditEventChallengeDeliveryFailed = "challenge_delivery_failed"
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventPrincipalRegistered     = "principal_registered"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshFailure          = "refresh_failure"
	auditEventRefreshRateLimited      = "refresh_rate_limited"
	auditEventRevokedTokenPresented   = "revoked_token_presented"
	auditEventLogout                  = "logout"
	auditEventTokenRevoked            = "token_revoked"
	auditEventRevocationSweep         = "revocation_sweep"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrChallengeNotFound AuditErrorCode = "challenge_not_found"
	auditErrChallengeExpired  AuditErrorCode = "challenge_expired"
	auditErrChallengeInvalid  AuditErrorCode = "challenge_invalid"
	auditErrAttemptsExceeded  AuditErrorCode = "attempts_exceeded"
	auditErrInvalidIdentifier AuditErrorCode = "invalid_identifier"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrTokenExpired      AuditErrorCode = "token_expired"
	auditErrTokenTypeMismatch AuditErrorCode = "token_type_mismatch"
	auditErrTokenRevoked      AuditErrorCode = "token_revoked"
	auditErrNotApproved       AuditErrorCode = "not_approved"
	auditErrRoleMismatch      AuditErrorCode = "role_mismatch"
	auditErrRestrictedRole    AuditErrorCode = "restricted_role"
	auditErrInvalidRole       AuditErrorCode = "invalid_role"
	auditErrDeliveryFailed    AuditErrorCode = "delivery_failed"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	identifier string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		metadata["ip"] = ip
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		Identifier:  identifier,
		TokenID:     tokenID,
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrChallengeNotFound):
		return auditErrChallengeNotFound
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrChallengeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrInvalidIdentifier):
		return auditErrInvalidIdentifier
	case errors.Is(err, ErrChallengeRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenTypeMismatch):
		return auditErrTokenTypeMismatch
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPrincipalNotApproved):
		return auditErrNotApproved
	case errors.Is(err, ErrRoleMismatch):
		return auditErrRoleMismatch
	case errors.Is(err, ErrRestrictedRoleRegistration):
		return auditErrRestrictedRole
	case errors.Is(err, ErrInvalidRole):
		return auditErrInvalidRole
	case errors.Is(err, errDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
