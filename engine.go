package fleetAuth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/fleetAuth/internal/audit"
	"github.com/MrEthical07/fleetAuth/internal/flows"
	"github.com/MrEthical07/fleetAuth/internal/limiters"
	"github.com/MrEthical07/fleetAuth/jwt"
	"github.com/MrEthical07/fleetAuth/kv"
	"github.com/MrEthical07/fleetAuth/otp"
	"github.com/MrEthical07/fleetAuth/revocation"
	"github.com/MrEthical07/fleetAuth/session"
)

// Engine is the authentication orchestrator. Build it with New().Build();
// it is safe for concurrent use and holds no per-request state.
type Engine struct {
	config           Config
	store            kv.Store
	challenges       *otp.Service
	tokens           *jwt.Manager
	revocations      *revocation.Registry
	teardown         *session.Teardown
	challengeLimiter *limiters.FixedWindow
	refreshLimiter   *limiters.FixedWindow
	principals       PrincipalRepository
	notifier         ChallengeNotifier
	logger           *slog.Logger
	tracer           trace.Tracer
	audit            *audit.Dispatcher
	metrics          *Metrics
	now              func() time.Time
	flowDeps         flows.Deps[*Principal]
	closed           atomic.Bool
}

// Close flushes and stops the audit dispatcher. Later calls to the
// authentication verbs return ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SweepRevocations removes revocation entries that will never expire on their
// own or whose natural expiry has passed. It is safe to run concurrently with
// traffic.
func (e *Engine) SweepRevocations(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	ctx, span := e.startSpan(ctx, "fleetAuth.SweepRevocations")
	defer span.End()

	removed, err := e.revocations.SweepStale(ctx)
	if err != nil {
		err = wrapUnavailable(err)
		recordSpanError(span, err)
		return removed, err
	}
	span.SetAttributes(attribute.Int("fleetauth.removed", removed))
	e.emitAudit(ctx, auditEventRevocationSweep, true, "", "", "", nil, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(removed)}
	})
	return removed, nil
}

// RevokedCount returns the number of live revocation entries.
func (e *Engine) RevokedCount(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.revocations.Count(ctx)
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	return n, nil
}

// ChallengeStatus reports how many wrong codes the outstanding challenge for
// identifier still tolerates, and whether it can still succeed.
func (e *Engine) ChallengeStatus(ctx context.Context, identifier string) (remaining int, valid bool, err error) {
	if err := e.ready(); err != nil {
		return 0, false, err
	}
	valid, err = e.challenges.HasValidChallenge(ctx, identifier)
	if err != nil {
		return 0, false, wrapUnavailable(err)
	}
	if !valid {
		return 0, false, nil
	}
	remaining, err = e.challenges.RemainingAttempts(ctx, identifier)
	if err != nil {
		return 0, false, mapChallengeError(err)
	}
	return remaining, true, nil
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	e.logger.WarnContext(ctx, msg, args...)
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) initFlowDeps() {
	e.flowDeps = flows.Deps[*Principal]{
		RequestChallenge: flows.RequestChallengeDeps{
			Normalize: otp.NormalizeIdentifier,
			Issue:     e.challenges.Issue,
			Deliver:   e.deliverChallenge,
			Warn:      e.warn,
		},
		CompleteChallenge: flows.CompleteChallengeDeps[*Principal]{
			Normalize:        otp.NormalizeIdentifier,
			Verify:           e.challenges.Verify,
			FindByIdentifier: e.findByIdentifier,
			Approved:         approvalGate,
			IssueTokens: func(p *Principal) (jwt.TokenPair, error) {
				return e.tokens.Issue(p.subject(), true)
			},
		},
		Refresh: flows.RefreshDeps[*Principal]{
			Revocations: e.revocations,
			Tokens:      e.tokens,
			FindByID:    e.findByID,
			Approved:    approvalGate,
			Refresh: func(refreshToken string, p *Principal) (jwt.TokenPair, error) {
				return e.tokens.Refresh(refreshToken, p.subject())
			},
		},
		Validate: flows.ValidateDeps[*Principal]{
			Tokens:      e.tokens,
			Revocations: e.revocations,
			Approved:    approvalGate,
		},
		Logout: flows.LogoutDeps[*Principal]{
			FindByID:       e.findByID,
			Identifiers:    (*Principal).Identifiers,
			Decode:         e.tokens.DecodeSigned,
			Revoker:        e.revocations,
			MaxLifetime:    e.tokens.RefreshTTL(),
			Now:            e.now,
			Teardown:       e.teardownFor,
			ClearChallenge: e.challenges.Clear,
			Warn:           e.warn,
		},
	}
	if e.challengeLimiter != nil {
		e.flowDeps.RequestChallenge.RateLimiter = e.challengeLimiter
	}
	if e.refreshLimiter != nil {
		e.flowDeps.Refresh.RateLimiter = e.refreshLimiter
	}
	if e.config.Validation.ResolvePrincipal {
		e.flowDeps.Validate.FindByID = e.findByID
	}
}

func (e *Engine) findByID(ctx context.Context, id string) (*Principal, bool, error) {
	p, err := e.principals.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, p != nil, nil
}

func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (*Principal, bool, error) {
	p, err := e.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, false, err
	}
	return p, p != nil, nil
}

func (e *Engine) deliverChallenge(ctx context.Context, identifier string, ch otp.Challenge) error {
	return e.notifier.DeliverChallenge(ctx, Delivery{
		Identifier: identifier,
		Code:       ch.Code,
		ExpiresAt:  ch.ExpiresAt,
		Channel:    ch.Channel.String(),
	})
}

func (e *Engine) teardownFor(ctx context.Context, principalID, identifier string) int {
	report := e.teardown.ClearAllFor(ctx, principalID, identifier)
	for range report.Failed {
		e.metricInc(MetricTeardownFailure)
	}
	return len(report.Failed)
}

func approvalGate(p *Principal) error {
	if p == nil || !p.Approval.CanAuthenticate() {
		return ErrPrincipalNotApproved
	}
	return nil
}

// mapChallengeError keeps challenge sentinels and the typed mismatch error
// as they are and folds everything else into ErrStoreUnavailable.
func mapChallengeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrChallengeNotFound),
		errors.Is(err, ErrChallengeExpired),
		errors.Is(err, ErrChallengeAttemptsExceeded),
		errors.Is(err, ErrChallengeInvalid),
		errors.Is(err, ErrChallengeContended),
		errors.Is(err, ErrInvalidIdentifier):
		return err
	default:
		return wrapUnavailable(err)
	}
}

// mapTokenError folds jwt failures into the public token sentinels.
func mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenTypeMismatch),
		errors.Is(err, ErrTokenInvalid):
		return err
	default:
		return ErrTokenInvalid
	}
}
