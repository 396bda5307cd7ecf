package transport

import (
	"account_gateway/internal/auth/repository"
	"account_gateway/internal/identity"
)

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type ChangeEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type IdentityResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// SessionResponse reports the signed-in identity; User is null when signed out.
type SessionResponse struct {
	SignedIn bool              `json:"signedIn"`
	User     *IdentityResponse `json:"user"`
}

type UserRecordResponse struct {
	Email string `json:"email"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewIdentityResponse(id *identity.Identity) *IdentityResponse {
	if id == nil {
		return nil
	}
	return &IdentityResponse{ID: id.ID, Email: id.Email, EmailVerified: id.EmailVerified}
}

func NewUserRecordResponse(rec repository.UserRecord) UserRecordResponse {
	return UserRecordResponse{Email: rec.Email}
}
