package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Lock          LockConfig          `mapstructure:"lock"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	GRPCPort        string        `mapstructure:"grpc_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	OpenAPISchema   string        `mapstructure:"openapi_schema"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver     string        `mapstructure:"driver"`
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	Name       string        `mapstructure:"name"`
	SSLMode    string        `mapstructure:"ssl_mode"`
	Path       string        `mapstructure:"path"`
	MaxConns   int           `mapstructure:"max_conns"`
	LogMode    bool          `mapstructure:"log_mode"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// GatewayConfig configures the remote character chat completion API
type GatewayConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	Endpoint             string        `mapstructure:"endpoint"`
	Model                string        `mapstructure:"model"`
	AccessKeyID          string        `mapstructure:"access_key_id"`
	SecretAccessKey      string        `mapstructure:"secret_access_key"`
	Timeout              time.Duration `mapstructure:"timeout"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	RefreshMargin        time.Duration `mapstructure:"refresh_margin"`
	NotBeforeSkew        time.Duration `mapstructure:"not_before_skew"`
	MaxNewTokens         int           `mapstructure:"max_new_tokens"`
	InternalMaxNewTokens int           `mapstructure:"internal_max_new_tokens"`
	BreakerFailures      uint          `mapstructure:"breaker_failures"`
	BreakerRetry         time.Duration `mapstructure:"breaker_retry"`
}

type ConversationConfig struct {
	HistoryWindow       int `mapstructure:"history_window"`
	HistoryDefaultLimit int `mapstructure:"history_default_limit"`
	MaxMessageLength    int `mapstructure:"max_message_length"`
}

type LockConfig struct {
	// Backend is "memory" or "redis"
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type VaultConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Token       string        `mapstructure:"token"`
	Namespace   string        `mapstructure:"namespace"`
	Mount       string        `mapstructure:"mount"`
	SecretsPath string        `mapstructure:"secrets_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type SecurityConfig struct {
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

var (
	instance *Config
	once     sync.Once
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.grpc_port", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.openapi_schema", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "companion_chat")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "data/companion.db")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.log_mode", false)
	v.SetDefault("database.retries", 5)
	v.SetDefault("database.retry_delay", 5*time.Second)

	v.SetDefault("gateway.base_url", "https://api.sensenova.cn")
	v.SetDefault("gateway.endpoint", "/v1/llm/character/chat-completions")
	v.SetDefault("gateway.model", "SenseChat-Character-Pro")
	v.SetDefault("gateway.access_key_id", "")
	v.SetDefault("gateway.secret_access_key", "")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.token_ttl", 30*time.Minute)
	v.SetDefault("gateway.refresh_margin", 5*time.Minute)
	v.SetDefault("gateway.not_before_skew", 5*time.Second)
	v.SetDefault("gateway.max_new_tokens", 1024)
	v.SetDefault("gateway.internal_max_new_tokens", 300)
	v.SetDefault("gateway.breaker_failures", 5)
	v.SetDefault("gateway.breaker_retry", 60*time.Second)

	v.SetDefault("conversation.history_window", 100)
	v.SetDefault("conversation.history_default_limit", 50)
	v.SetDefault("conversation.max_message_length", 2000)

	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", 2*time.Minute)
	v.SetDefault("lock.retry_interval", 50*time.Millisecond)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.secrets_path", "companion-chat")
	v.SetDefault("vault.timeout", 10*time.Second)
	v.SetDefault("vault.cache_ttl", 5*time.Minute)

	v.SetDefault("security.rate_limit", 5)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("observability.service_name", "companion-chat")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
}

// Load reads configuration from defaults, an optional config file and the environment.
// Environment keys are the upper-cased dotted keys, e.g. GATEWAY_ACCESS_KEY_ID.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Get returns the process-wide Config, loading it from the environment on first use
func Get() *Config {
	once.Do(func() {
		cfg, err := Load("")
		if err != nil {
			panic(err)
		}
		instance = cfg
	})
	return instance
}
