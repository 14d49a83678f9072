package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"companion-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_CriticalDownIsUnhealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), 0)
	dbErr := errors.New("connection refused")
	c.RegisterDatabaseCheck(func(context.Context) error { return dbErr })

	assert.False(t, c.IsSystemHealthy(), "unchecked critical components count as down")

	c.RunChecks(context.Background())
	status := c.GetStatus()
	require.Contains(t, status, "database")
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "connection refused", status["database"].Error)
	assert.False(t, c.IsSystemHealthy())
}

func TestChecker_DegradedDependencyKeepsSystemHealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), 0)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterPingCheck("redis", func(context.Context) error { return errors.New("timeout") })

	c.RunChecks(context.Background())
	status := c.GetStatus()
	assert.Equal(t, StatusUp, status["database"].Status)
	assert.Equal(t, StatusDegraded, status["redis"].Status)
	assert.Equal(t, StatusUp, status["self"].Status)
	assert.True(t, c.IsSystemHealthy())
}

func TestChecker_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewChecker(logger.Discard(), 0)
	healthy := true
	c.RegisterDatabaseCheck(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	r := gin.New()
	r.GET("/health", c.Handler())

	c.RunChecks(context.Background())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string                `json:"status"`
		Components map[string]*Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Components["database"].Critical)

	healthy = false
	c.RunChecks(context.Background())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
