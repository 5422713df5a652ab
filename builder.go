package fleetAuth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/fleetAuth/internal/audit"
	"github.com/MrEthical07/fleetAuth/internal/limiters"
	"github.com/MrEthical07/fleetAuth/jwt"
	"github.com/MrEthical07/fleetAuth/kv"
	"github.com/MrEthical07/fleetAuth/otp"
	"github.com/MrEthical07/fleetAuth/revocation"
	"github.com/MrEthical07/fleetAuth/session"
)

const tracerName = "github.com/MrEthical07/fleetAuth"

// Builder assembles an Engine. Configure it once during start-up; Build may
// only be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  kv.Store

	principals PrincipalRepository
	notifier   ChallengeNotifier
	auditSink  AuditSink

	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	now            func() time.Time
	generateCode   func(digits int) (string, error)

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client. It backs the key-value store unless
// WithStore is also given, and it is required for the request throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the TTL key-value store used for challenges, revocations
// and teardown. It takes precedence over the store derived from WithRedis.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithPrincipalRepository sets the principal persistence capability.
func (b *Builder) WithPrincipalRepository(repo PrincipalRepository) *Builder {
	b.principals = repo
	return b
}

// WithNotifier sets the capability that delivers codes to identifiers.
func (b *Builder) WithNotifier(n ChallengeNotifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the sink that receives asynchronous audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The default is
// the global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock overrides the wall clock used for codes, tokens and revocations.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithCodeGenerator overrides the random numeric code source.
func (b *Builder) WithCodeGenerator(generate func(digits int) (string, error)) *Builder {
	b.generateCode = generate
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
//
// Build fails when neither a Redis client nor a store is set, when no
// principal repository or notifier is set, or when key material is unusable.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or store required")
		}
		store = kv.NewRedisStore(b.redis)
	}
	if b.principals == nil {
		return nil, errors.New("principal repository required")
	}
	if b.notifier == nil {
		return nil, errors.New("challenge notifier required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	// -------- CHALLENGES --------
	challenges, err := otp.NewService(store, otp.Config{
		CodeLength:  cfg.OTP.CodeLength,
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		KeyPrefix:   cfg.OTP.KeyPrefix,
		Now:         now,
		Generate:    b.generateCode,
	})
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		SigningMethod:    jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessKey:        cfg.JWT.AccessKey,
		AccessPublicKey:  cfg.JWT.AccessPublicKey,
		RefreshKey:       cfg.JWT.RefreshKey,
		RefreshPublicKey: cfg.JWT.RefreshPublicKey,
		Issuer:           cfg.JWT.Issuer,
		Audience:         cfg.JWT.Audience,
		Leeway:           cfg.JWT.Leeway,
		KeyID:            cfg.JWT.KeyID,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		store:       store,
		challenges:  challenges,
		tokens:      tokens,
		revocations: revocation.NewRegistry(store, cfg.Revocation.KeyPrefix, now),
		teardown:    session.NewTeardown(store, cfg.Session.TeardownPatterns, logger),
		principals:  b.principals,
		notifier:    b.notifier,
		logger:      logger,
		tracer:      tp.Tracer(tracerName),
		metrics:     NewMetrics(cfg.Metrics),
		now:         now,
	}

	// -------- THROTTLES --------
	if b.redis != nil {
		if cfg.RateLimit.ChallengeRequestMax > 0 {
			engine.challengeLimiter = limiters.NewFixedWindow(b.redis, limiters.FixedWindowConfig{
				Namespace: "otp",
				Max:       cfg.RateLimit.ChallengeRequestMax,
				Window:    cfg.RateLimit.ChallengeRequestWindow,
			})
		}
		if cfg.RateLimit.RefreshMax > 0 {
			engine.refreshLimiter = limiters.NewFixedWindow(b.redis, limiters.FixedWindowConfig{
				Namespace: "refresh",
				Max:       cfg.RateLimit.RefreshMax,
				Window:    cfg.RateLimit.RefreshWindow,
			})
		}
	} else if cfg.RateLimit.ChallengeRequestMax > 0 || cfg.RateLimit.RefreshMax > 0 {
		logger.Warn("request throttles disabled: no redis client configured")
	}

	// -------- AUDIT --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.initFlowDeps()

	b.built = true
	return engine, nil
}

func wrapUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
