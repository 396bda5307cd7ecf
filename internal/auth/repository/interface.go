package repository

import "context"

// RecordRepository defines the account record operations used by the session
// controller and the cleanup worker.
type RecordRepository interface {
	CreateUser(ctx context.Context, userID, email string) error
	MergeUserEmail(ctx context.Context, userID, email string) error
	GetUser(ctx context.Context, userID string) (UserRecord, error)
	DeleteUser(ctx context.Context, userID string) error
	GetProfile(ctx context.Context, userID string) (Profile, error)
}

// Ensure Repository implements RecordRepository
var _ RecordRepository = (*Repository)(nil)
