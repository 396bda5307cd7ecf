package session

import (
	"context"
	"errors"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/docstore"
	"account_gateway/internal/identity"
	"account_gateway/platform/apperr"
)

// classify maps a provider or store error onto an apperr kind.
func classify(op string, err error) *apperr.Error {
	var known *apperr.Error
	if errors.As(err, &known) {
		return apperr.Wrap(known.Kind, known.Message, err).WithOp(op)
	}

	var e *apperr.Error
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		e = apperr.Wrap(apperr.KindUnauthorized, "invalid email or password", err)
	case errors.Is(err, identity.ErrEmailInUse):
		e = apperr.Wrap(apperr.KindConflict, "email already in use", err)
	case errors.Is(err, identity.ErrWeakPassword):
		e = apperr.Wrap(apperr.KindValidation, "password is too weak", err)
	case errors.Is(err, identity.ErrInvalidEmail):
		e = apperr.Wrap(apperr.KindValidation, "invalid email address", err)
	case errors.Is(err, docstore.ErrInvalidPath):
		e = apperr.Wrap(apperr.KindValidation, "invalid record id", err)
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		e = apperr.Wrap(apperr.KindNotFound, "account not found", err)
	case errors.Is(err, identity.ErrRequiresRecentLogin):
		e = apperr.Wrap(apperr.KindForbidden, "please sign in again", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		e = apperr.Wrap(apperr.KindUnavailable, "request timed out", err)
	default:
		e = apperr.Wrap(apperr.KindInternal, "account service failure", err)
	}
	return e.WithOp(op)
}
