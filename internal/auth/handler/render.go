package handler

import (
	"net/http"
	"strings"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/auth/session"
	"account_gateway/internal/auth/transport"
	"account_gateway/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const compatQueryParam = "compat"

// compatRequested reports whether the caller asked for compat responses,
// where every outcome other than OK is a 200 with a null body.
func compatRequested(c *gin.Context) bool {
	switch strings.ToLower(c.Query(compatQueryParam)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func render[T any](c *gin.Context, status int, res session.Result[T], body func(T) any) {
	if res.OK() {
		c.JSON(status, body(res.Value()))
		return
	}
	if compatRequested(c) {
		c.JSON(http.StatusOK, nil)
		return
	}

	switch res.Kind() {
	case session.KindEmpty:
		httpkit.Error(c, http.StatusNotFound, msgNotFound, nil)
	case session.KindNoSession:
		httpkit.Error(c, http.StatusUnauthorized, msgNoSession, nil)
	default:
		httpkit.HandleError(c, res.Err())
	}
}

func message(text string) func(struct{}) any {
	return func(struct{}) any { return transport.MessageResponse{Message: text} }
}

func userRecord(rec repository.UserRecord) any {
	return transport.NewUserRecordResponse(rec)
}
