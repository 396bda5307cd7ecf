// Package http holds the pieces the router and the bounded-context modules share.
package http

import (
	"account_gateway/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module mounts one bounded context's routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is handed to every Module during registration.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is mounted at /api/v1.
	V1 *gin.RouterGroup
	// AuthRateLimiter guards credential endpoints. One instance serves every module.
	AuthRateLimiter *httpkit.AuthRateLimiter
}
