package di

import (
	"context"
	"errors"
	"fmt"

	"companion-chat/backend/internal/gateway"
	"companion-chat/backend/internal/persona"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/internal/service"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/health"
	"companion-chat/backend/pkg/jwt"
	"companion-chat/backend/pkg/lock"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/observability"
	"companion-chat/backend/pkg/resilience"
	"companion-chat/backend/pkg/secrets"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *logger.Logger
	Secrets secrets.Manager

	// Metrics is nil when metrics are disabled
	Metrics     *observability.MetricsSetup
	TurnMetrics *observability.TurnMetrics

	// Redis is nil unless the redis lock backend is selected
	Redis  *redis.Client
	Locker lock.Locker

	Users        repository.UserRepository
	Characters   repository.CharacterRepository
	Messages     repository.MessageRepository
	Favorability repository.FavorabilityRepository

	Breaker   *resilience.CircuitBreaker
	Gateway   *gateway.Client
	Generator *persona.Generator

	CharacterService    *service.CharacterService
	ConversationService *service.ConversationService

	Health *health.Checker
}

// New wires the application on top of an open, migrated database
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		DB:     db,
		Logger: log,
	}

	if err := c.initMetrics(); err != nil {
		return nil, err
	}

	secretManager, err := secrets.NewManager(cfg.Vault, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	c.Secrets = secretManager

	if err := c.initLocker(ctx); err != nil {
		return nil, err
	}

	c.Users = repository.NewGormUserRepository(db)
	c.Characters = repository.NewGormCharacterRepository(db)
	c.Messages = repository.NewGormMessageRepository(db)
	c.Favorability = repository.NewGormFavorabilityRepository(db)

	if err := c.initGateway(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.Generator = persona.NewGenerator(c.Gateway, cfg.Gateway.InternalMaxNewTokens, log)

	c.CharacterService = service.NewCharacterService(
		c.Users, c.Characters, c.Messages, c.Favorability,
		c.Generator,
		c.Locker,
		cfg.Conversation.HistoryDefaultLimit,
	)
	c.ConversationService = service.NewConversationService(
		c.Users, c.Characters, c.Messages, c.Favorability,
		c.Gateway,
		c.Locker,
		service.ConversationConfig{
			HistoryWindow:    cfg.Conversation.HistoryWindow,
			MaxMessageLength: cfg.Conversation.MaxMessageLength,
			MaxNewTokens:     cfg.Gateway.MaxNewTokens,
			Model:            cfg.Gateway.Model,
		},
		service.WithMetrics(c.TurnMetrics),
	)

	c.initHealth()
	return c, nil
}

func (c *Container) initMetrics() error {
	c.TurnMetrics = observability.NoopTurnMetrics()
	if !c.Config.Observability.MetricsEnabled {
		return nil
	}

	setup, err := observability.SetupPrometheusMetrics(c.Config.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	turnMetrics, err := observability.NewTurnMetrics(setup.Provider.Meter("companion-chat/conversation"))
	if err != nil {
		return fmt.Errorf("failed to create turn metrics: %w", err)
	}
	c.Metrics = setup
	c.TurnMetrics = turnMetrics
	return nil
}

func (c *Container) initLocker(ctx context.Context) error {
	switch c.Config.Lock.Backend {
	case "", "memory":
		c.Locker = lock.NewKeyedMutex()
		return nil
	case "redis":
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		locker := lock.NewRedisLocker(c.Redis, lock.RedisOptions{
			TTL:           c.Config.Lock.TTL,
			RetryInterval: c.Config.Lock.RetryInterval,
		}, c.Logger)
		if err := locker.Ping(ctx); err != nil {
			c.Redis.Close()
			return fmt.Errorf("failed to reach redis at %s: %w", c.Config.Redis.Addr, err)
		}
		c.Locker = locker
		return nil
	default:
		return fmt.Errorf("unknown lock backend %q", c.Config.Lock.Backend)
	}
}

func (c *Container) initGateway(ctx context.Context) error {
	gw := c.Config.Gateway

	accessKeyID := c.Secrets.GetSecretWithDefault(ctx, "gateway.access_key_id", gw.AccessKeyID)
	secretAccessKey := c.Secrets.GetSecretWithDefault(ctx, "gateway.secret_access_key", gw.SecretAccessKey)

	signer, err := jwt.NewSigner(accessKeyID, secretAccessKey, gw.TokenTTL, gw.NotBeforeSkew)
	if err != nil {
		return fmt.Errorf("gateway credentials: %w", err)
	}

	breakerConfig := resilience.DefaultConfig("gateway")
	if gw.BreakerFailures > 0 {
		breakerConfig.FailureThreshold = gw.BreakerFailures
	}
	if gw.BreakerRetry > 0 {
		breakerConfig.RetryTimeout = gw.BreakerRetry
	}
	metrics := c.TurnMetrics
	breakerConfig.OnStateChange = func(name string, from, to resilience.State) {
		metrics.RecordBreakerTransition(name, string(from), string(to))
	}
	c.Breaker = resilience.NewCircuitBreaker(breakerConfig, c.Logger)

	c.Gateway = gateway.NewClient(gateway.Config{
		BaseURL:  gw.BaseURL,
		Endpoint: gw.Endpoint,
		Model:    gw.Model,
		Timeout:  gw.Timeout,
	}, jwt.NewTokenCache(signer, gw.RefreshMargin), c.Breaker, c.Logger)
	return nil
}

func (c *Container) initHealth() {
	c.Health = health.NewChecker(c.Logger, 0)

	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	c.Health.RegisterCheck("gateway", false, func(context.Context) (health.Status, string, error) {
		if c.Breaker.State() == resilience.StateOpen {
			return health.StatusDegraded, "circuit open", resilience.ErrCircuitOpen
		}
		return health.StatusUp, "circuit " + string(c.Breaker.State()), nil
	})

	if c.Redis != nil {
		c.Health.RegisterPingCheck("redis", func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		})
	}
}

// Close releases the resources the container opened itself
func (c *Container) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Metrics != nil {
		errs = append(errs, c.Metrics.Provider.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}
