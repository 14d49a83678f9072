// Package api carries the HTTP contract of the service.
package api

import _ "embed"

// OpenAPI is the bundled OpenAPI 3 document for /api/v2
//
//go:embed openapi.yaml
var OpenAPI []byte
