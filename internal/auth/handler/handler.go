package handler

import (
	"context"
	"errors"
	"net/http"

	"account_gateway/internal/auth/gateway"
	"account_gateway/internal/auth/repository"
	"account_gateway/internal/auth/session"
	"account_gateway/internal/auth/transport"
	"account_gateway/internal/identity"
	"account_gateway/platform/httpkit"
	"account_gateway/platform/logger"
	"account_gateway/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgNotFound         = "not found"
	msgNoSession        = "not signed in"
	msgForbidden        = "not allowed to access this user"
	msgInvalidToken     = "invalid or expired reset token"
	msgResetSent        = "if the account exists, a reset email has been sent"
)

// ResetConfirmer completes a password reset from a mailed token.
type ResetConfirmer interface {
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

type Handler struct {
	val       *validator.Validator
	resets    ResetConfirmer
	operators map[string]struct{}
	log       *logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithOperators lets the given identity ids read and delete any user record.
func WithOperators(ids ...string) Option {
	return func(h *Handler) {
		for _, id := range ids {
			if id != "" {
				h.operators[id] = struct{}{}
			}
		}
	}
}

// New creates a handler. resets may be nil when the identity backend handles
// reset links itself.
func New(val *validator.Validator, resets ResetConfirmer, log *logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	h := &Handler{val: val, resets: resets, operators: make(map[string]struct{}), log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterAuthRoutes(rg *gin.RouterGroup) {
	rg.POST("/sign-up", h.SignUp)
	rg.POST("/sign-in", h.SignIn)
	rg.POST("/sign-out", h.SignOut)
	rg.POST("/forgot-password", h.ForgotPassword)
	if h.resets != nil {
		rg.POST("/reset-password", h.ResetPassword)
	}
}

func (h *Handler) RegisterAccountRoutes(rg *gin.RouterGroup) {
	rg.GET("/session", h.GetSession)
	rg.PATCH("/email", h.ChangeEmail)
	rg.POST("/password", h.ChangePassword)
	rg.DELETE("", h.DeleteAccount)
	rg.GET("/user", h.GetUserRecord)
	rg.GET("/profile", h.GetProfile)
}

// RegisterUserRoutes mounts the by-id record routes. Callers must be signed in
// as the record's owner or as an operator.
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.Use(h.requireOwnerOrOperator)
	rg.GET("/:id", h.GetUserRecordByID)
	rg.DELETE("/:id", h.DeleteUserRecordByID)
}

func (h *Handler) SignUp(c *gin.Context) {
	var req transport.SignUpRequest
	if !h.bind(c, &req) {
		return
	}
	ctrl, ok := controller(c)
	if !ok {
		return
	}

	res := ctrl.Register(c.Request.Context(), req.Email, req.Password)
	render(c, http.StatusCreated, res, func(id *identity.Identity) any {
		return transport.NewIdentityResponse(id)
	})
}

func (h *Handler) SignIn(c *gin.Context) {
	var req transport.SignInRequest
	if !h.bind(c, &req) {
		return
	}
	ctrl, ok := controller(c)
	if !ok {
		return
	}

	res := ctrl.Login(c.Request.Context(), req.Email, req.Password)
	render(c, http.StatusOK, res, func(id *identity.Identity) any {
		return transport.NewIdentityResponse(id)
	})
}

func (h *Handler) SignOut(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.Logout(c.Request.Context()), message("signed out"))
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req transport.ForgotPasswordRequest
	if !h.bind(c, &req) {
		return
	}
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.RequestPasswordReset(c.Request.Context(), req.Email), message(msgResetSent))
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req transport.ResetPasswordRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.resets.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword)
	switch {
	case err == nil:
		httpkit.OK(c, transport.MessageResponse{Message: "password updated"})
	case errors.Is(err, identity.ErrWeakPassword):
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"newPassword": "min"})
	case errors.Is(err, identity.ErrInvalidResetToken), errors.Is(err, identity.ErrNotFound):
		httpkit.Error(c, http.StatusBadRequest, msgInvalidToken, nil)
	default:
		h.log.WithContext(c.Request.Context()).OperationFailed("reset_password", "failed to confirm password reset", err)
		httpkit.Error(c, http.StatusInternalServerError, "internal error", nil)
	}
}

func (h *Handler) GetSession(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	who := ctrl.Current()
	httpkit.OK(c, transport.SessionResponse{SignedIn: who != nil, User: transport.NewIdentityResponse(who)})
}

func (h *Handler) ChangeEmail(c *gin.Context) {
	var req transport.ChangeEmailRequest
	if !h.bind(c, &req) {
		return
	}
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.ChangeEmail(c.Request.Context(), req.Email), message("email updated"))
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req transport.ChangePasswordRequest
	if !h.bind(c, &req) {
		return
	}
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.ChangePassword(c.Request.Context(), req.NewPassword), message("password updated"))
}

func (h *Handler) DeleteAccount(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.DeleteAccount(c.Request.Context()), message("account deleted"))
}

func (h *Handler) GetUserRecord(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.FetchUserRecord(c.Request.Context()), userRecord)
}

func (h *Handler) GetProfile(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.FetchProfileRecord(c.Request.Context()), func(p repository.Profile) any { return p })
}

func (h *Handler) GetUserRecordByID(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.FetchUserRecordByID(c.Request.Context(), c.Param("id")), userRecord)
}

func (h *Handler) DeleteUserRecordByID(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, ctrl.DeleteUserRecordByID(c.Request.Context(), c.Param("id")), message("user record deleted"))
}

func (h *Handler) requireOwnerOrOperator(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	who := ctrl.Current()
	if who == nil {
		h.deny(c, http.StatusUnauthorized, msgNoSession)
		return
	}
	if _, operator := h.operators[who.ID]; !operator && c.Param("id") != who.ID {
		h.log.WithContext(c.Request.Context()).Warn("user record access denied", "targetId", c.Param("id"))
		h.deny(c, http.StatusForbidden, msgForbidden)
		return
	}
	c.Next()
}

func (h *Handler) deny(c *gin.Context, status int, msg string) {
	if compatRequested(c) {
		c.AbortWithStatusJSON(http.StatusOK, nil)
		return
	}
	httpkit.Error(c, status, msg, nil)
	c.Abort()
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

func controller(c *gin.Context) (*session.Controller, bool) {
	ctrl, ok := gateway.FromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusInternalServerError, "internal error", nil)
		c.Abort()
	}
	return ctrl, ok
}
