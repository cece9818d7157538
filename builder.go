package ward

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wardauth/ward/internal/limiters"
	"github.com/wardauth/ward/internal/rate"
	"github.com/wardauth/ward/internal/stores"
	"github.com/wardauth/ward/jwt"
	"github.com/wardauth/ward/password"
	"github.com/wardauth/ward/refresh"
)

// Builder defines a public type used by ward APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config *Config
	redis  redis.UniversalClient

	store     AccountStore
	providers map[string]Provider

	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger

	localRateLimiting bool

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config:    defaultConfig(),
		providers: make(map[string]Provider),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg.clone()
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore describes the withaccountstore operation and its observable behavior.
//
// WithAccountStore may return an error when input validation, dependency calls, or security checks fail.
// WithAccountStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithProvider describes the withprovider operation and its observable behavior.
//
// WithProvider registers an identity provider under its own Name. Registering
// two providers with the same name keeps the later one.
//
// WithProvider may return an error when input validation, dependency calls, or security checks fail.
// WithProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithProvider(p Provider) *Builder {
	if p != nil {
		b.providers[p.Name()] = p
	}
	return b
}

// WithNotifier describes the withnotifier operation and its observable behavior.
//
// WithNotifier may return an error when input validation, dependency calls, or security checks fail.
// WithNotifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithLocalRateLimiting describes the withlocalratelimiting operation and its observable behavior.
//
// WithLocalRateLimiting keeps the second-factor attempt budget in process
// memory instead of Redis. Only for single-instance embedders: with more
// than one engine instance each holds its own budget, multiplying the
// attempts an attacker gets per window.
//
// WithLocalRateLimiting does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLocalRateLimiting() *Builder {
	b.localRateLimiting = true
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}

	cfg := b.config.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	ph, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}

	// -------- JWT MANAGER --------
	jm, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, err
	}

	// -------- REFRESH STORE --------
	tokens := refresh.NewStore(b.redis, cfg.Tokens.KeyPrefix, cfg.Tokens.Retention)

	// -------- CHALLENGE STORES --------
	resetStore := stores.NewChallengeStore(b.redis, cfg.Reset.KeyPrefix)
	verificationStore := stores.NewChallengeStore(b.redis, cfg.Verification.KeyPrefix)
	seenStore := stores.NewSeenStore(b.redis, "seen")

	// -------- SECOND-FACTOR LIMITER --------
	limiterCfg := rate.Config{
		MaxAttempts: cfg.SecondFactor.MaxAttemptsPerWindow,
		Window:      cfg.SecondFactor.AttemptWindow,
		KeyPrefix:   "2fa",
	}
	var limiter rate.Limiter
	if b.localRateLimiting {
		limiter = rate.NewLocal(limiterCfg)
	} else {
		limiter = rate.NewRedisWindow(b.redis, limiterCfg)
	}

	engine := &Engine{
		config: *cfg,
		store:  b.store,

		tokens:              tokens,
		jwtManager:          jm,
		passwordHash:        ph,
		totp:                newTOTPManager(cfg.SecondFactor),
		secondFactorLimiter: limiter,
		resetStore:          resetStore,
		verificationStore:   verificationStore,
		seenStore:           seenStore,

		registrationThrottle: b.newThrottle("reg", cfg.Registration),
		resetThrottle:        b.newThrottle("reset", cfg.Reset.Throttle),
		verificationThrottle: b.newThrottle("verify", cfg.Verification.Throttle),
	}

	engine.providers = make(map[string]Provider, len(b.providers))
	for name, p := range b.providers {
		engine.providers[name] = p
	}

	engine.notifier = b.notifier
	if engine.notifier == nil {
		engine.notifier = NoopNotifier{}
	}

	engine.logger = b.logger
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}

	engine.audit = newAuditDispatcher(b.auditSink, cfg.Audit.QueueSize, cfg.Audit.ShutdownTimeout)
	engine.metrics = &metricsBank{}

	decoy, err := decoyPassword()
	if err != nil {
		return nil, err
	}
	digest, err := ph.Hash(decoy)
	if err != nil {
		return nil, fmt.Errorf("decoy digest: %w", err)
	}
	engine.decoyDigest = digest

	b.built = true

	return engine, nil
}

// newThrottle builds the flow throttle for one policy, honoring the builder's
// rate-limiting placement. A disabled policy yields nil, which admits all.
func (b *Builder) newThrottle(flow string, tc ThrottleConfig) *limiters.Throttle {
	p := limiters.Policy{
		PerSubject:  tc.PerSubject,
		PerAddress:  tc.PerAddress,
		MaxAttempts: tc.MaxAttempts,
		Window:      tc.Window,
	}
	if b.localRateLimiting {
		return limiters.NewLocal(p)
	}
	return limiters.NewRedis(b.redis, flow, p)
}

// decoyPassword generates the random password whose digest absorbs
// verification work on paths that never reach a real account.
func decoyPassword() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("decoy password: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
