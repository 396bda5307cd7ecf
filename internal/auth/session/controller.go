// Package session holds the per-client session controller: the signed-in
// identity as last reported by the identity provider, and the account
// operations that act on it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/identity"
	"account_gateway/platform/events"
	"account_gateway/platform/logger"
)

// CleanupScheduler retries deletion of a users record left behind after the
// identity itself was deleted.
type CleanupScheduler interface {
	ScheduleUserRecordCleanup(ctx context.Context, userID string) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithCompatMode silences NoSession outcomes and logs failures with the
// legacy per-operation messages.
func WithCompatMode() Option {
	return func(c *Controller) { c.compat = true }
}

// WithCleanupScheduler schedules record cleanup when DeleteAccount removes
// the identity but not its users record.
func WithCleanupScheduler(s CleanupScheduler) Option {
	return func(c *Controller) { c.cleanup = s }
}

// Controller tracks one client's session. The session is replaced wholesale
// by every provider event; Register, Login, Logout and DeleteAccount also set
// it directly so callers see the new state as soon as the call returns.
type Controller struct {
	provider identity.Provider
	records  repository.RecordRepository
	cleanup  CleanupScheduler
	log      *logger.Logger
	compat   bool

	session     *events.Feed[*identity.Identity]
	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a controller and subscribes it to provider's auth state.
func New(provider identity.Provider, records repository.RecordRepository, log *logger.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	c := &Controller{
		provider: provider,
		records:  records,
		log:      log,
		session:  events.NewFeed[*identity.Identity](nil),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.unsubscribe = provider.Subscribe(func(id *identity.Identity) {
		c.session.Publish(id.Clone())
	})
	return c
}

// Current returns the signed-in identity, or nil.
func (c *Controller) Current() *identity.Identity {
	return c.session.Current().Clone()
}

// Subscribe registers fn for session changes; fn receives the current session
// first. The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(*identity.Identity)) (unsubscribe func()) {
	return c.session.Subscribe(func(id *identity.Identity) { fn(id.Clone()) })
}

// Close releases the provider subscription and drops all session subscribers.
// It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.unsubscribe()
		c.session.Close()
	})
}

func (c *Controller) setSession(id *identity.Identity) {
	c.session.Publish(id.Clone())
}

func (c *Controller) Register(ctx context.Context, email, password string) Result[*identity.Identity] {
	id, err := c.provider.CreateIdentity(ctx, email, password)
	if err != nil {
		return failure[*identity.Identity](c.logFailure(ctx, opRegister, err))
	}
	c.setSession(id)

	if err := c.records.CreateUser(ctx, id.ID, email); err != nil {
		return failure[*identity.Identity](c.logFailure(ctx, opRegister, err))
	}
	c.log.WithContext(ctx).AuthEvent(opRegister.name, id.Email, true, "")
	return ok(id.Clone())
}

func (c *Controller) Login(ctx context.Context, email, password string) Result[*identity.Identity] {
	id, err := c.provider.VerifyCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.log.WithContext(ctx).AuthEvent(opLogin.name, email, false, "invalid_credentials")
		}
		return failure[*identity.Identity](c.logFailure(ctx, opLogin, err))
	}
	c.setSession(id)

	c.log.WithContext(ctx).AuthEvent(opLogin.name, id.Email, true, "")
	return ok(id.Clone())
}

// Logout clears the session even when the provider call fails.
func (c *Controller) Logout(ctx context.Context) Result[struct{}] {
	err := c.provider.InvalidateSession(ctx)
	c.setSession(nil)
	if err != nil {
		return failure[struct{}](c.logFailure(ctx, opLogout, err))
	}
	return ok(struct{}{})
}

func (c *Controller) RequestPasswordReset(ctx context.Context, email string) Result[struct{}] {
	if err := c.provider.SendResetEmail(ctx, email); err != nil {
		return failure[struct{}](c.logFailure(ctx, opResetPassword, err))
	}
	return ok(struct{}{})
}

// ChangeEmail updates the provider email and the users record. The session
// keeps the old email until the provider reports the change.
func (c *Controller) ChangeEmail(ctx context.Context, newEmail string) Result[struct{}] {
	who := c.Current()
	if who == nil {
		c.logNoSession(ctx, opChangeEmail)
		return noSession[struct{}]()
	}

	if err := c.provider.UpdateEmail(ctx, who, newEmail); err != nil {
		return failure[struct{}](c.logFailure(ctx, opChangeEmail, err))
	}
	if err := c.records.MergeUserEmail(ctx, who.ID, newEmail); err != nil {
		return failure[struct{}](c.logFailure(ctx, opChangeEmail, err))
	}
	return ok(struct{}{})
}

func (c *Controller) ChangePassword(ctx context.Context, newPassword string) Result[struct{}] {
	who := c.Current()
	if who == nil {
		c.logNoSession(ctx, opChangePassword)
		return noSession[struct{}]()
	}

	if err := c.provider.UpdatePassword(ctx, who, newPassword); err != nil {
		return failure[struct{}](c.logFailure(ctx, opChangePassword, err))
	}
	return ok(struct{}{})
}

// DeleteAccount deletes the identity, then its users record. Once the
// identity is gone the session is cleared; a record that could not be deleted
// is handed to the cleanup scheduler and the call still fails.
func (c *Controller) DeleteAccount(ctx context.Context) Result[struct{}] {
	who := c.Current()
	if who == nil {
		c.logNoSession(ctx, opDeleteAccount)
		return noSession[struct{}]()
	}

	if err := c.provider.DeleteIdentity(ctx, who); err != nil {
		return failure[struct{}](c.logFailure(ctx, opDeleteAccount, err))
	}
	c.setSession(nil)

	if err := c.records.DeleteUser(ctx, who.ID); err != nil {
		c.scheduleCleanup(ctx, who.ID)
		return failure[struct{}](c.logFailure(ctx, opDeleteAccount, err))
	}
	c.log.WithContext(ctx).AuthEvent(opDeleteAccount.name, who.Email, true, "")
	return ok(struct{}{})
}

func (c *Controller) FetchUserRecord(ctx context.Context) Result[repository.UserRecord] {
	who := c.Current()
	if who == nil {
		c.logNoSession(ctx, opFetchUser)
		return noSession[repository.UserRecord]()
	}
	return c.fetchUser(ctx, opFetchUser, who.ID)
}

func (c *Controller) FetchProfileRecord(ctx context.Context) Result[repository.Profile] {
	who := c.Current()
	if who == nil {
		c.logNoSession(ctx, opFetchProfile)
		return noSession[repository.Profile]()
	}

	profile, err := c.records.GetProfile(ctx, who.ID)
	if errors.Is(err, repository.ErrNotFound) {
		c.logMissing(ctx, opFetchProfile, who.ID)
		return empty[repository.Profile]()
	}
	if err != nil {
		return failure[repository.Profile](c.logFailure(ctx, opFetchProfile, err))
	}
	return ok(profile)
}

// FetchUserRecordByID reads any users record; it does not need a session.
func (c *Controller) FetchUserRecordByID(ctx context.Context, id string) Result[repository.UserRecord] {
	return c.fetchUser(ctx, opFetchUserByID, id)
}

// DeleteUserRecordByID deletes any users record; it does not need a session.
func (c *Controller) DeleteUserRecordByID(ctx context.Context, id string) Result[struct{}] {
	if err := c.records.DeleteUser(ctx, id); err != nil {
		return failure[struct{}](c.logFailure(ctx, opDeleteUserByID, err))
	}
	return ok(struct{}{})
}

func (c *Controller) fetchUser(ctx context.Context, op operation, id string) Result[repository.UserRecord] {
	rec, err := c.records.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		c.logMissing(ctx, op, id)
		return empty[repository.UserRecord]()
	}
	if err != nil {
		return failure[repository.UserRecord](c.logFailure(ctx, op, err))
	}
	return ok(rec)
}

func (c *Controller) scheduleCleanup(ctx context.Context, userID string) {
	if c.cleanup == nil {
		return
	}
	// The request context may already be done; the task must still be queued.
	if err := c.cleanup.ScheduleUserRecordCleanup(context.WithoutCancel(ctx), userID); err != nil {
		c.log.WithContext(ctx).WithUserID(userID).OperationFailed(opDeleteAccount.name, "failed to schedule user record cleanup", err)
	}
}

func (c *Controller) logFailure(ctx context.Context, op operation, err error) error {
	classified := classify(op.name, err)
	log := c.log.WithContext(ctx)
	if c.compat {
		log.Error(op.failure, slog.String("error", err.Error()))
	} else {
		log.Error("account operation failed",
			slog.String("operation", op.name),
			slog.String("kind", classified.Kind.String()),
			slog.String("error", err.Error()),
		)
	}
	return classified
}

func (c *Controller) logMissing(ctx context.Context, op operation, id string) {
	log := c.log.WithContext(ctx)
	if c.compat {
		log.Error(op.empty)
		return
	}
	log.Warn("not found",
		slog.String("operation", op.name),
		slog.String("collection", op.collection),
		slog.String("id", id),
	)
}

func (c *Controller) logNoSession(ctx context.Context, op operation) {
	if !c.compat {
		c.log.WithContext(ctx).Debug("no active session", slog.String("operation", op.name))
	}
}
