package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companion-chat/backend/pkg/cache"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// VaultManager reads secrets from one Vault KV v2 entry, falling back to the environment
type VaultManager struct {
	client   *vault.Client
	config   config.VaultConfig
	fallback EnvManager
	cache    *cache.Cache[string, string]
	log      *logger.Logger
}

// NewManager returns a VaultManager when Vault is enabled and an EnvManager otherwise
func NewManager(cfg config.VaultConfig, log *logger.Logger) (Manager, error) {
	if !cfg.Enabled {
		return EnvManager{}, nil
	}
	return NewVaultManager(cfg, log)
}

// NewVaultManager creates a Vault backed manager
func NewVaultManager(cfg config.VaultConfig, log *logger.Logger) (*VaultManager, error) {
	return newVaultManager(cfg, log, time.Now)
}

func newVaultManager(cfg config.VaultConfig, log *logger.Logger, now func() time.Time) (*VaultManager, error) {
	if cfg.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.SecretsPath == "" {
		cfg.SecretsPath = "companion-chat"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if cfg.Timeout > 0 {
		vaultConfig.Timeout = cfg.Timeout
	}
	vaultConfig.MaxRetries = 3

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultManager{
		client: client,
		config: cfg,
		cache:  cache.New[string, string](cache.Options{DefaultTTL: cfg.CacheTTL, MaxItems: 256, Now: now}),
		log:    log,
	}, nil
}

// GetSecret retrieves a secret from Vault, with fallback to the environment
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.Get(key); ok {
		return value, nil
	}

	value, err := m.getFromVault(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
		m.log.Warn("Secret not found in Vault, falling back to environment", "key", key)
		value, err = m.fallback.GetSecret(ctx, key)
		if err != nil {
			return "", err
		}
	}

	m.cache.Set(key, value)

	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		m.log.Warn("Failed to get secret, using default value",
			"key", key,
			"error", err.Error(),
		)
		return defaultValue
	}
	return value
}

func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.SecretsPath)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		m.log.Error("Failed to read secret from Vault",
			"path", m.config.SecretsPath,
			"error", err.Error(),
		)
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}
