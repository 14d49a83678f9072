package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	apperrors "companion-chat/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates requests against an OpenAPI document
type OpenAPIValidator struct {
	doc        *openapi3.T
	router     routers.Router
	schemaPath string
	mutex      sync.RWMutex
}

// NewOpenAPIValidator loads the document from schemaPath
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", schemaPath, err)
	}
	v, err := NewFromData(data)
	if err != nil {
		return nil, err
	}
	v.schemaPath = schemaPath
	return v, nil
}

// NewFromData builds a validator from an in-memory document
func NewFromData(data []byte) (*OpenAPIValidator, error) {
	doc, router, err := load(data)
	if err != nil {
		return nil, err
	}
	return &OpenAPIValidator{doc: doc, router: router}, nil
}

func load(data []byte) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OpenAPI schema: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return doc, router, nil
}

// ReloadSchema re-reads the document from disk. Validators built from data cannot reload.
func (v *OpenAPIValidator) ReloadSchema() error {
	if v.schemaPath == "" {
		return errors.New("validator was not loaded from a file")
	}
	data, err := os.ReadFile(v.schemaPath)
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI schema from %s: %w", v.schemaPath, err)
	}
	doc, router, err := load(data)
	if err != nil {
		return err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.doc = doc
	v.router = router
	return nil
}

// Validate checks one request against its route. Requests outside the document pass.
func (v *OpenAPIValidator) Validate(ctx context.Context, c *gin.Context) error {
	v.mutex.RLock()
	router := v.router
	v.mutex.RUnlock()

	route, pathParams, err := router.FindRoute(c.Request)
	if err != nil {
		return nil
	}

	return openapi3filter.ValidateRequest(ctx, &openapi3filter.RequestValidationInput{
		Request:    c.Request,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			MultiError:         false,
		},
	})
}

// Middleware rejects requests that do not match the document with a validation error
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(c.Request.Context(), c); err != nil {
			c.Error(apperrors.Validation(describe(err)).Wrap(err))
			c.Abort()
			return
		}
		c.Next()
	}
}

// describe keeps the first line of the validation error, which names the offending field
func describe(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return "invalid request: " + msg
}
