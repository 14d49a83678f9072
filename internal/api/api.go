// Package api holds the gin handlers of the /api/v2 surface.
package api

import (
	"strconv"

	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("invalid " + name)
	}
	return uint(id), nil
}

// queryInt reads an optional non-negative integer query parameter
func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation("invalid " + name)
	}
	return n, nil
}
