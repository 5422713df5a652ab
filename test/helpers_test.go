//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	fleetAuth "github.com/MrEthical07/fleetAuth"
)

// newIntegrationRedis connects to REDIS_ADDR when set and flushes it,
// otherwise it starts a miniredis.
func newIntegrationRedis(t *testing.T) *redis.Client {
	t.Helper()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.FlushDB(context.Background()).Err(); err != nil {
			t.Fatalf("flush %s: %v", addr, err)
		}
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

type principals struct {
	mu      sync.RWMutex
	byID    map[string]fleetAuth.Principal
	byIdent map[string]string
}

func newPrincipals(seed ...fleetAuth.Principal) *principals {
	p := &principals{byID: map[string]fleetAuth.Principal{}, byIdent: map[string]string{}}
	for _, s := range seed {
		_ = p.Save(context.Background(), &s)
	}
	return p
}

func (p *principals) FindByID(_ context.Context, id string) (*fleetAuth.Principal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.byID[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (p *principals) FindByIdentifier(ctx context.Context, identifier string) (*fleetAuth.Principal, error) {
	p.mu.RLock()
	id, ok := p.byIdent[identifier]
	p.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return p.FindByID(ctx, id)
}

func (p *principals) Save(_ context.Context, v *fleetAuth.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[v.ID] = *v
	for _, ident := range v.Identifiers() {
		p.byIdent[ident] = v.ID
	}
	return nil
}

func (p *principals) approve(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.byID[id]
	v.Approval = fleetAuth.ApprovalApproved
	p.byID[id] = v
}

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *inbox) DeliverChallenge(_ context.Context, d fleetAuth.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.codes == nil {
		b.codes = map[string]string{}
	}
	b.codes[d.Identifier] = d.Code
	return nil
}

func (b *inbox) code(t *testing.T, identifier string) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.codes[identifier]
	if !ok {
		t.Fatalf("no code delivered to %s", identifier)
	}
	return c
}

func integrationConfig() fleetAuth.Config {
	cfg := fleetAuth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.AccessKey = []byte("integration-access-secret-0123456789")
	cfg.JWT.RefreshKey = []byte("integration-refresh-secret-012345678")
	cfg.Metrics.Enabled = true
	return cfg
}

func newIntegrationEngine(t *testing.T, repo *principals, box *inbox) (*fleetAuth.Engine, *redis.Client) {
	t.Helper()
	rdb := newIntegrationRedis(t)
	engine, err := fleetAuth.New().
		WithConfig(integrationConfig()).
		WithRedis(rdb).
		WithPrincipalRepository(repo).
		WithNotifier(box).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, rdb
}

func login(t *testing.T, engine *fleetAuth.Engine, box *inbox, identifier string, role fleetAuth.Role) fleetAuth.AuthResult {
	t.Helper()
	ctx := context.Background()
	if _, err := engine.RequestChallenge(ctx, identifier, role); err != nil {
		t.Fatalf("RequestChallenge(%s) failed: %v", identifier, err)
	}
	res, err := engine.CompleteChallenge(ctx, identifier, box.code(t, identifier), role)
	if err != nil {
		t.Fatalf("CompleteChallenge(%s) failed: %v", identifier, err)
	}
	return res
}
