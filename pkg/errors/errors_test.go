package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	notFound := NotFound("character not found")
	wrapped := fmt.Errorf("lookup: %w", notFound)
	assert.Same(t, notFound, FromError(wrapped))

	plain := FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, plain.StatusCode)
	assert.Equal(t, CodeInternal, plain.Code)
}

func TestHasCodeAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("turn: %w", Storage(cause))

	assert.True(t, HasCode(err, CodeStorageFailure))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusRequestTimeout, Canceled(cause).StatusCode)
	assert.Equal(t, http.StatusBadGateway, Gateway(cause).StatusCode)
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), RecoveryWithLogger())
	r.GET("/missing", func(c *gin.Context) { c.Error(NotFound("character not found")) })
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"NOT_FOUND","message":"character not found","details":null}}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SERVER_ERROR")
}
