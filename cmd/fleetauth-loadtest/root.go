package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	fleetAuth "github.com/MrEthical07/fleetAuth"
	otelexport "github.com/MrEthical07/fleetAuth/metrics/export/otel"
	promexport "github.com/MrEthical07/fleetAuth/metrics/export/prometheus"
)

type loadConfig struct {
	principals  int
	concurrency int
	ops         int
	redisAddr   string
	metricsAddr string
}

// NewRootCmd creates the load test command.
func NewRootCmd() *cobra.Command {
	cfg := &loadConfig{}

	cmd := &cobra.Command{
		Use:   "fleetauth-loadtest",
		Short: "Drive login, validate and refresh traffic through an engine",
		Long: `Seeds approved drivers, logs each in through a one-time code, then
measures access-token validation and refresh throughput against Redis
(or an embedded miniredis when no address is given).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.principals, "principals", 2000, "number of principals to seed and log in")
	cmd.Flags().IntVar(&cfg.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&cfg.ops, "ops", 100000, "operations per phase (validate, refresh)")
	cmd.Flags().StringVar(&cfg.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runLoad(cmd *cobra.Command, cfg *loadConfig) error {
	if cfg.principals <= 0 || cfg.concurrency <= 0 || cfg.ops <= 0 {
		return errors.New("principals, concurrency, and ops must be > 0")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, cleanup, err := openRedis(cmd, cfg.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	engineCfg, err := loadEngineConfig(cfg.ops)
	if err != nil {
		return err
	}

	repo := newMemoryRepository()
	codes := newCodeBox()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	engine, err := fleetAuth.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithPrincipalRepository(repo).
		WithNotifier(codes).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()
	exporter, err := otelexport.NewExporter(provider.Meter("fleetauth-loadtest"), engine)
	if err != nil {
		return fmt.Errorf("otel exporter: %w", err)
	}
	defer func() { _ = exporter.Close() }()

	if cfg.metricsAddr != "" {
		stop, err := serveMetrics(cmd, engine, cfg.metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	cmd.Printf("logging in %d principals...\n", cfg.principals)
	start := time.Now()
	pairs, err := seedAndLogin(ctx, engine, repo, codes, cfg.principals)
	if err != nil {
		return err
	}
	cmd.Printf("logged in in %s\n", time.Since(start).Round(time.Millisecond))

	validate := runPhase(cfg.ops, cfg.concurrency, func(i int) error {
		_, err := engine.ValidateAccessToken(ctx, pairs[i%len(pairs)].AccessToken)
		return err
	})
	refresh := runPhase(cfg.ops, cfg.concurrency, func(i int) error {
		_, err := engine.Refresh(ctx, pairs[i%len(pairs)].RefreshToken)
		return err
	})

	cmd.Println("---- results ----")
	printStats(cmd, "validate", validate)
	printStats(cmd, "refresh", refresh)

	totals, err := collectTotals(ctx, reader)
	if err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}
	printTotals(cmd, totals)
	return nil
}

func loadEngineConfig(ops int) (fleetAuth.Config, error) {
	cfg, err := fleetAuth.LoadConfigFromEnv()
	if err != nil {
		return fleetAuth.Config{}, err
	}
	if len(cfg.JWT.AccessKey) == 0 && len(cfg.JWT.RefreshKey) == 0 {
		cfg.JWT.SigningMethod = "ed25519"
		if cfg.JWT.AccessKey, err = newEdKey(); err != nil {
			return fleetAuth.Config{}, err
		}
		if cfg.JWT.RefreshKey, err = newEdKey(); err != nil {
			return fleetAuth.Config{}, err
		}
	}
	cfg.RateLimit.RefreshMax = ops + 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg, nil
}

func newEdKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return priv, nil
}

func openRedis(cmd *cobra.Command, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cmd.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	cmd.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func serveMetrics(cmd *cobra.Command, engine *fleetAuth.Engine, addr string) (func(), error) {
	handler, err := promexport.Handler(engine)
	if err != nil {
		return nil, fmt.Errorf("prometheus handler: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cmd.PrintErrf("metrics server: %v\n", err)
		}
	}()
	cmd.Printf("serving metrics on %s/metrics\n", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func seedAndLogin(ctx context.Context, engine *fleetAuth.Engine, repo *memoryRepository, codes *codeBox, n int) ([]fleetAuth.TokenPair, error) {
	pairs := make([]fleetAuth.TokenPair, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("driver-%d@loadtest.local", i)
		_ = repo.Save(ctx, &fleetAuth.Principal{
			ID:        fmt.Sprintf("drv-%d", i),
			Email:     email,
			Roles:     []fleetAuth.Role{fleetAuth.RoleDriver},
			Approval:  fleetAuth.ApprovalApproved,
			CreatedAt: time.Now().UTC(),
		})

		if _, err := engine.RequestChallenge(ctx, email, fleetAuth.RoleDriver); err != nil {
			return nil, fmt.Errorf("request challenge for %s: %w", email, err)
		}
		res, err := engine.CompleteChallenge(ctx, email, codes.take(email), fleetAuth.RoleDriver)
		if err != nil {
			return nil, fmt.Errorf("complete challenge for %s: %w", email, err)
		}
		pairs = append(pairs, res.Tokens)
	}
	return pairs, nil
}

// codeBox is a notifier that keeps the last code per identifier.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCodeBox() *codeBox {
	return &codeBox{codes: make(map[string]string)}
}

func (b *codeBox) DeliverChallenge(_ context.Context, d fleetAuth.Delivery) error {
	b.mu.Lock()
	b.codes[d.Identifier] = d.Code
	b.mu.Unlock()
	return nil
}

func (b *codeBox) take(identifier string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	code := b.codes[identifier]
	delete(b.codes, identifier)
	return code
}
