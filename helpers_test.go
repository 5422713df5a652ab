package fleetAuth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memRepo struct {
	mu        sync.Mutex
	byID      map[string]*Principal
	saveCalls int
	findErr   error
}

func newMemRepo(principals ...*Principal) *memRepo {
	r := &memRepo{byID: make(map[string]*Principal)}
	for _, p := range principals {
		r.byID[p.ID] = p
	}
	return r
}

func (r *memRepo) FindByID(_ context.Context, id string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) FindByIdentifier(_ context.Context, identifier string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, p := range r.byID {
		if p.Email == identifier || p.Phone == identifier {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) Save(_ context.Context, p *Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *memRepo) setApproval(id string, s ApprovalState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].Approval = s
}

func (r *memRepo) setFindErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findErr = err
}

type captureNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery
	fail       bool
}

func (n *captureNotifier) DeliverChallenge(_ context.Context, d Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	if n.fail {
		return errors.New("smtp: connection refused")
	}
	return nil
}

func (n *captureNotifier) last(t *testing.T) Delivery {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		t.Fatalf("expected a delivery")
	}
	return n.deliveries[len(n.deliveries)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.AccessKey = []byte("access-secret-0123456789abcdef012345")
	cfg.JWT.RefreshKey = []byte("refresh-secret-0123456789abcdef01234")
	return cfg
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	repo     *memRepo
	notifier *captureNotifier
	clock    *testClock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestEnv(t *testing.T, cfg Config, principals ...*Principal) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:       mr,
		rdb:      rdb,
		repo:     newMemRepo(principals...),
		notifier: &captureNotifier{},
		clock:    newTestClock(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalRepository(env.repo).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// login runs a full request/complete cycle and returns the tokens.
func (env *testEnv) login(t *testing.T, identifier string, role Role) AuthResult {
	t.Helper()

	ctx := context.Background()
	if _, err := env.engine.RequestChallenge(ctx, identifier, role); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := env.notifier.last(t).Code
	res, err := env.engine.CompleteChallenge(ctx, identifier, code, role)
	if err != nil {
		t.Fatalf("CompleteChallenge failed: %v", err)
	}
	return res
}

func approvedDriver() *Principal {
	return &Principal{
		ID:       "drv-1",
		Email:    "driver@fleet.test",
		Phone:    "+15550001111",
		Roles:    []Role{RoleDriver},
		Approval: ApprovalApproved,
	}
}
