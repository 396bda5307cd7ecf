package repository

import (
	"context"
	"errors"
	"fmt"

	"account_gateway/internal/docstore"
)

var ErrNotFound = errors.New("not found")

const (
	UsersCollection    = "users"
	ProfilesCollection = "userProfiles"

	fieldEmail = "email"
)

// UserRecord is the users/{id} document.
type UserRecord struct {
	Email string `json:"email"`
}

// Profile is the userProfiles/{id} document. Its shape is owned by whoever
// writes it; this module only reads it.
type Profile map[string]any

type Repository struct {
	store docstore.Store
}

func New(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) CreateUser(ctx context.Context, userID, email string) error {
	if err := r.store.Set(ctx, UsersCollection, userID, map[string]any{fieldEmail: email}, docstore.SetOptions{}); err != nil {
		return fmt.Errorf("create user record: %w", err)
	}
	return nil
}

func (r *Repository) MergeUserEmail(ctx context.Context, userID, email string) error {
	if err := r.store.Set(ctx, UsersCollection, userID, map[string]any{fieldEmail: email}, docstore.SetOptions{Merge: true}); err != nil {
		return fmt.Errorf("merge user email: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	doc, err := r.store.Get(ctx, UsersCollection, userID)
	if err != nil {
		return UserRecord{}, fmt.Errorf("get user record: %w", err)
	}
	if !doc.Exists {
		return UserRecord{}, ErrNotFound
	}

	email, _ := doc.Data[fieldEmail].(string)
	return UserRecord{Email: email}, nil
}

func (r *Repository) DeleteUser(ctx context.Context, userID string) error {
	if err := r.store.Delete(ctx, UsersCollection, userID); err != nil {
		return fmt.Errorf("delete user record: %w", err)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	doc, err := r.store.Get(ctx, ProfilesCollection, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if !doc.Exists {
		return nil, ErrNotFound
	}
	if doc.Data == nil {
		return Profile{}, nil
	}
	return Profile(doc.Data), nil
}
