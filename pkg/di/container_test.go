package di

import (
	"context"
	"testing"

	"companion-chat/backend/internal/repository"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/health"
	"companion-chat/backend/pkg/jwt"
	"companion-chat/backend/pkg/lock"
	"companion-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = ":memory:"
	cfg.Gateway.AccessKeyID = "ak"
	cfg.Gateway.SecretAccessKey = "sk"
	cfg.Observability.MetricsEnabled = false
	cfg.Lock.Backend = "memory"
	cfg.Vault.Enabled = false
	return cfg
}

func TestNew_WiresServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.MetricsEnabled = true

	db, err := config.NewDB(cfg.Database, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	c, err := New(context.Background(), cfg, db, logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.CharacterService)
	assert.NotNil(t, c.ConversationService)
	assert.NotNil(t, c.Metrics)
	assert.IsType(t, &lock.KeyedMutex{}, c.Locker)
	assert.Nil(t, c.Redis)

	c.Health.RunChecks(context.Background())
	status := c.Health.GetStatus()
	assert.Equal(t, health.StatusUp, status["database"].Status)
	assert.Equal(t, health.StatusUp, status["gateway"].Status)
	assert.True(t, c.Health.IsSystemHealthy())
}

func TestNew_RequiresGatewayCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.SecretAccessKey = ""
	t.Setenv("GATEWAY_SECRET_ACCESS_KEY", "")

	db, err := config.NewDB(cfg.Database, logger.Discard())
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, db, logger.Discard())
	assert.ErrorIs(t, err, jwt.ErrMissingKeyPair)
}

func TestNew_UnknownLockBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lock.Backend = "zookeeper"

	db, err := config.NewDB(cfg.Database, logger.Discard())
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, db, logger.Discard())
	assert.ErrorContains(t, err, "unknown lock backend")
}
