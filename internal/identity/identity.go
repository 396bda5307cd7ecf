// Package identity defines the port to the external identity provider.
//
// A Provider represents one client's view of the provider: at most one
// principal is signed in at a time and the provider keeps its tokens. Auth
// state changes are announced through Subscribe.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailInUse          = errors.New("email already in use")
	ErrNotFound            = errors.New("identity not found")
	ErrRequiresRecentLogin = errors.New("operation requires a recent sign-in")
	ErrWeakPassword        = errors.New("password is too weak")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
)

// Identity is the provider's handle for an authenticated principal.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// Provider is the identity provider used by a single client session.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string) (*Identity, error)
	VerifyCredentials(ctx context.Context, email, password string) (*Identity, error)
	InvalidateSession(ctx context.Context) error
	SendResetEmail(ctx context.Context, email string) error
	UpdateEmail(ctx context.Context, who *Identity, newEmail string) error
	UpdatePassword(ctx context.Context, who *Identity, newPassword string) error
	DeleteIdentity(ctx context.Context, who *Identity) error

	// Subscribe registers fn for auth state changes. fn receives the current
	// state first; nil means signed out. The returned function unsubscribes
	// and is safe to call more than once.
	Subscribe(fn func(*Identity)) (unsubscribe func())
}

// Clone returns a copy of id, or nil.
func (id *Identity) Clone() *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
