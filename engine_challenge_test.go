package fleetAuth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/fleetAuth/otp"
)

func TestEngineChallengeScenario(t *testing.T) {
	cfg := testConfig()
	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	repo := newMemRepo()
	notifier := &captureNotifier{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalRepository(repo).
		WithNotifier(notifier).
		WithClock(clock.Now).
		WithCodeGenerator(func(int) (string, error) { return "482913", nil }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	start := clock.Now()

	res, err := engine.RequestChallenge(ctx, "a@x.com", RoleCustomer)
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if !res.ExpiresAt.Equal(start.Add(10 * time.Minute)) {
		t.Fatalf("expected expiry T+10m, got %v", res.ExpiresAt.Sub(start))
	}
	if res.Channel != "email" || !res.Delivered {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := notifier.last(t); got.Code != "482913" || got.Identifier != "a@x.com" {
		t.Fatalf("unexpected delivery %+v", got)
	}
	if len(res.Events) != 1 || res.Events[0].Type != EventChallengeIssued {
		t.Fatalf("expected challenge.issued event, got %+v", res.Events)
	}
	if !mr.Exists("otp:a@x.com") {
		t.Fatalf("expected challenge record in redis")
	}

	clock.Advance(time.Minute)
	_, err = engine.CompleteChallenge(ctx, "a@x.com", "000000", RoleCustomer)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
	if err.Error() != "Invalid OTP code. 2 attempts remaining" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	var mismatch *otp.MismatchError
	if !errors.As(err, &mismatch) || mismatch.Remaining != 2 {
		t.Fatalf("expected MismatchError with 2 remaining, got %v", err)
	}

	clock.Advance(time.Minute)
	auth, err := engine.CompleteChallenge(ctx, "a@x.com", "482913", RoleCustomer)
	if err != nil {
		t.Fatalf("CompleteChallenge failed: %v", err)
	}
	if !auth.Registered || auth.Principal.Email != "a@x.com" || auth.Principal.Approval != "approved" {
		t.Fatalf("unexpected auth result %+v", auth)
	}
	if auth.Tokens.AccessToken == "" || auth.Tokens.RefreshToken == "" {
		t.Fatalf("expected a full token pair")
	}
	if len(auth.Events) != 2 ||
		auth.Events[0].Type != EventPrincipalRegistered ||
		auth.Events[1].Type != EventPrincipalAuthenticated {
		t.Fatalf("unexpected events %+v", auth.Events)
	}

	_, err = engine.CompleteChallenge(ctx, "a@x.com", "482913", RoleCustomer)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestCompleteChallengeExistingPrincipal(t *testing.T) {
	env := newTestEnv(t, testConfig(), approvedDriver())

	res := env.login(t, "Driver@Fleet.test ", RoleDriver)
	if res.Registered {
		t.Fatalf("existing principal must not be registered again")
	}
	if res.Principal.ID != "drv-1" {
		t.Fatalf("expected drv-1, got %q", res.Principal.ID)
	}
	if env.repo.saveCalls != 0 {
		t.Fatalf("expected no saves, got %d", env.repo.saveCalls)
	}
}

func TestCompleteChallengeRoleMismatch(t *testing.T) {
	env := newTestEnv(t, testConfig(), approvedDriver())
	ctx := context.Background()

	if _, err := env.engine.RequestChallenge(ctx, "driver@fleet.test", RoleFleetManager); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := env.notifier.last(t).Code
	_, err := env.engine.CompleteChallenge(ctx, "driver@fleet.test", code, RoleFleetManager)
	if !errors.Is(err, ErrRoleMismatch) {
		t.Fatalf("expected ErrRoleMismatch, got %v", err)
	}

	// The code was consumed by the successful verification.
	_, err = env.engine.CompleteChallenge(ctx, "driver@fleet.test", code, RoleDriver)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestCompleteChallengeRestrictedRole(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for _, role := range []Role{RoleFleetManager, RoleSupport, RoleAdmin} {
		if _, err := env.engine.RequestChallenge(ctx, "new@fleet.test", role); err != nil {
			t.Fatalf("RequestChallenge failed: %v", err)
		}
		code := env.notifier.last(t).Code
		_, err := env.engine.CompleteChallenge(ctx, "new@fleet.test", code, role)
		if !errors.Is(err, ErrRestrictedRoleRegistration) {
			t.Fatalf("%s: expected ErrRestrictedRoleRegistration, got %v", role, err)
		}
	}
	if env.repo.saveCalls != 0 {
		t.Fatalf("restricted roles must never be saved")
	}
}

func TestCompleteChallengeDriverRegistersPending(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestChallenge(ctx, "+15557654321", RoleDriver); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	d := env.notifier.last(t)
	if d.Channel != "sms" {
		t.Fatalf("expected sms channel, got %q", d.Channel)
	}

	res, err := env.engine.CompleteChallenge(ctx, "+15557654321", d.Code, RoleDriver)
	if !errors.Is(err, ErrPrincipalNotApproved) {
		t.Fatalf("expected ErrPrincipalNotApproved, got %v", err)
	}
	if !res.Registered || len(res.Events) != 1 || res.Events[0].Type != EventPrincipalRegistered {
		t.Fatalf("expected registration event, got %+v", res)
	}
	if res.Tokens.AccessToken != "" {
		t.Fatalf("no tokens may be issued to a pending principal")
	}

	saved, _ := env.repo.FindByIdentifier(ctx, "+15557654321")
	if saved == nil || saved.Approval != ApprovalPending || !saved.HasRole(RoleDriver) {
		t.Fatalf("expected pending driver to be saved, got %+v", saved)
	}
}

func TestCompleteChallengeNotApprovedExisting(t *testing.T) {
	p := approvedDriver()
	p.Approval = ApprovalOnHold
	env := newTestEnv(t, testConfig(), p)
	ctx := context.Background()

	if _, err := env.engine.RequestChallenge(ctx, p.Email, RoleDriver); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	_, err := env.engine.CompleteChallenge(ctx, p.Email, env.notifier.last(t).Code, RoleDriver)
	if !errors.Is(err, ErrPrincipalNotApproved) {
		t.Fatalf("expected ErrPrincipalNotApproved, got %v", err)
	}
}

func TestCompleteChallengeAttemptsExceeded(t *testing.T) {
	env := newTestEnv(t, testConfig(), approvedDriver())
	ctx := context.Background()

	if _, err := env.engine.RequestChallenge(ctx, "driver@fleet.test", RoleDriver); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := env.notifier.last(t).Code
	wrong := "0000000"[:len(code)]
	if wrong == code {
		wrong = "1111111"[:len(code)]
	}

	for i := 0; i < 2; i++ {
		if _, err := env.engine.CompleteChallenge(ctx, "driver@fleet.test", wrong, RoleDriver); !errors.Is(err, ErrChallengeInvalid) {
			t.Fatalf("attempt %d: expected ErrChallengeInvalid, got %v", i+1, err)
		}
	}
	if _, err := env.engine.CompleteChallenge(ctx, "driver@fleet.test", wrong, RoleDriver); !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected ErrChallengeAttemptsExceeded, got %v", err)
	}
	if _, err := env.engine.CompleteChallenge(ctx, "driver@fleet.test", code, RoleDriver); !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("correct code after exhaustion: expected ErrChallengeAttemptsExceeded, got %v", err)
	}

	remaining, valid, err := env.engine.ChallengeStatus(ctx, "driver@fleet.test")
	if err != nil || valid || remaining != 0 {
		t.Fatalf("expected exhausted challenge, got remaining=%d valid=%v err=%v", remaining, valid, err)
	}

	env.login(t, "driver@fleet.test", RoleDriver)
}

func TestRequestChallengeDeliveryFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.notifier.fail = true
	ctx := context.Background()

	res, err := env.engine.RequestChallenge(ctx, "c@x.com", RoleCustomer)
	if err != nil {
		t.Fatalf("delivery failure must not fail the request: %v", err)
	}
	if res.Delivered {
		t.Fatalf("expected Delivered=false")
	}
	if len(res.Events) != 2 || res.Events[1].Type != EventChallengeDeliveryFailed {
		t.Fatalf("expected delivery_failed event, got %+v", res.Events)
	}

	remaining, valid, err := env.engine.ChallengeStatus(ctx, "c@x.com")
	if err != nil || !valid || remaining != 3 {
		t.Fatalf("challenge must stay valid, got remaining=%d valid=%v err=%v", remaining, valid, err)
	}
}

func TestRequestChallengeRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.ChallengeRequestMax = 2
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.RequestChallenge(ctx, "c@x.com", RoleCustomer); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	if _, err := env.engine.RequestChallenge(ctx, "C@X.com", RoleCustomer); !errors.Is(err, ErrChallengeRateLimited) {
		t.Fatalf("expected ErrChallengeRateLimited, got %v", err)
	}
	if !env.mr.Exists("rl:otp:c@x.com") {
		t.Fatalf("expected throttle counter key")
	}

	// Other identifiers keep their own budget.
	if _, err := env.engine.RequestChallenge(ctx, "d@x.com", RoleCustomer); err != nil {
		t.Fatalf("unrelated identifier throttled: %v", err)
	}
}

func TestRequestChallengeInvalidInput(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestChallenge(ctx, "   ", RoleCustomer); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	if _, err := env.engine.RequestChallenge(ctx, "a@x.com", Role(42)); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := env.engine.CompleteChallenge(ctx, "a@x.com", "123456", Role(0)); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestCompleteChallengeRepositoryUnavailable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestChallenge(ctx, "a@x.com", RoleCustomer); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	env.repo.setFindErr(errors.New("connection reset"))
	_, err := env.engine.CompleteChallenge(ctx, "a@x.com", env.notifier.last(t).Code, RoleCustomer)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestEngineClosedNotReady(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.engine.Close()

	if _, err := env.engine.RequestChallenge(context.Background(), "a@x.com", RoleCustomer); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	var nilEngine *Engine
	if _, err := nilEngine.Logout(context.Background(), "x", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady on nil engine, got %v", err)
	}
}
