// Package auth provides the account bounded context module: browser sessions
// backed by the identity provider, and the user records kept alongside them.
package auth

import (
	"account_gateway/internal/auth/gateway"
	"account_gateway/internal/auth/handler"
	apphttp "account_gateway/internal/http"
	"account_gateway/platform/logger"
	"account_gateway/platform/validator"
)

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	gateway *gateway.Gateway
}

// NewModule wires the account routes to gw. resets may be nil.
func NewModule(gw *gateway.Gateway, val *validator.Validator, resets handler.ResetConfirmer, log *logger.Logger, opts ...handler.Option) *Module {
	return &Module{
		handler: handler.New(val, resets, log, opts...),
		gateway: gw,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// RegisterRoutes mounts auth routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	sessions := m.gateway.Middleware()

	// Public auth routes with stricter rate limiting
	authGroup := ctx.V1.Group("/auth")
	authGroup.Use(ctx.AuthRateLimiter.RateLimit(), sessions)
	m.handler.RegisterAuthRoutes(authGroup)

	accountGroup := ctx.V1.Group("/account")
	accountGroup.Use(sessions)
	m.handler.RegisterAccountRoutes(accountGroup)

	usersGroup := ctx.V1.Group("/users")
	usersGroup.Use(sessions)
	m.handler.RegisterUserRoutes(usersGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
