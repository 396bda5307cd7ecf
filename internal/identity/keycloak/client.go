package keycloak

import (
	"context"
	"strings"
	"sync"

	"account_gateway/internal/identity"
	"account_gateway/platform/events"

	"golang.org/x/oauth2"
)

// Client is a Provider holding one client session's Keycloak tokens.
type Client struct {
	realm *Realm
	feed  *events.Feed[*identity.Identity]

	mu        sync.Mutex
	who       *identity.Identity
	token     *oauth2.Token
	stopWatch context.CancelFunc
	gen       uint64
	closed    bool
	closeOnce sync.Once
}

var _ identity.Provider = (*Client)(nil)

func newClient(realm *Realm) *Client {
	return &Client{realm: realm, feed: events.NewFeed[*identity.Identity](nil)}
}

// CreateIdentity registers the user through the admin API, then signs them in.
func (c *Client) CreateIdentity(ctx context.Context, email, password string) (*identity.Identity, error) {
	email = strings.TrimSpace(email)
	if len(password) < minPasswordLength {
		return nil, identity.ErrWeakPassword
	}
	if err := c.realm.createUser(ctx, email, password); err != nil {
		return nil, err
	}
	return c.VerifyCredentials(ctx, email, password)
}

func (c *Client) VerifyCredentials(ctx context.Context, email, password string) (*identity.Identity, error) {
	tok, err := c.realm.passwordGrant(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	id, err := c.realm.identityFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	c.signIn(tok, id)
	return id.Clone(), nil
}

// InvalidateSession drops the local tokens, then ends the remote session.
// The local sign-out stands even when the remote call fails.
func (c *Client) InvalidateSession(ctx context.Context) error {
	refreshToken := c.signOut()
	if refreshToken == "" {
		return nil
	}
	return c.realm.logout(ctx, refreshToken)
}

// SendResetEmail asks Keycloak to mail an UPDATE_PASSWORD action link.
// Unknown addresses succeed without sending anything.
func (c *Client) SendResetEmail(ctx context.Context, email string) error {
	userID, err := c.realm.findUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil || userID == "" {
		return err
	}
	return c.realm.sendUpdatePasswordEmail(ctx, userID)
}

func (c *Client) UpdateEmail(ctx context.Context, who *identity.Identity, newEmail string) error {
	if err := c.requireSignedIn(who); err != nil {
		return err
	}
	newEmail = strings.TrimSpace(newEmail)
	if err := c.realm.setEmail(ctx, who.ID, newEmail); err != nil {
		return err
	}

	c.mu.Lock()
	var updated *identity.Identity
	if c.who != nil && c.who.ID == who.ID {
		c.who.Email = newEmail
		c.who.EmailVerified = false
		updated = c.who.Clone()
	}
	c.mu.Unlock()

	if updated != nil {
		c.feed.Publish(updated)
	}
	return nil
}

func (c *Client) UpdatePassword(ctx context.Context, who *identity.Identity, newPassword string) error {
	if err := c.requireSignedIn(who); err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return identity.ErrWeakPassword
	}
	return c.realm.setPassword(ctx, who.ID, newPassword)
}

// DeleteIdentity deletes the user; Keycloak drops their sessions with them.
func (c *Client) DeleteIdentity(ctx context.Context, who *identity.Identity) error {
	if err := c.requireSignedIn(who); err != nil {
		return err
	}
	if err := c.realm.deleteUser(ctx, who.ID); err != nil {
		return err
	}
	c.signOut()
	return nil
}

func (c *Client) Subscribe(fn func(*identity.Identity)) (unsubscribe func()) {
	return c.feed.Subscribe(fn)
}

// Close stops the token watcher and drops all subscribers. The remote session
// is left to expire.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.resetLocked()
		c.mu.Unlock()
		c.feed.Close()
	})
	return nil
}

func (c *Client) requireSignedIn(who *identity.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if who == nil || c.who == nil || c.who.ID != who.ID {
		return identity.ErrRequiresRecentLogin
	}
	return nil
}

func (c *Client) signIn(tok *oauth2.Token, id *identity.Identity) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.who = id.Clone()
	c.token = tok
	ctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel
	gen := c.gen
	c.mu.Unlock()

	go c.watch(ctx, gen, tok)
	c.feed.Publish(id.Clone())
}

// signOut clears the session and returns the refresh token it held.
func (c *Client) signOut() string {
	c.mu.Lock()
	var refreshToken string
	if c.token != nil {
		refreshToken = c.token.RefreshToken
	}
	c.resetLocked()
	c.mu.Unlock()

	c.feed.Publish(nil)
	return refreshToken
}

// resetLocked stops the watcher and forgets the session. Watchers started
// before the reset see a newer generation and stand down.
func (c *Client) resetLocked() {
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.gen++
	c.who = nil
	c.token = nil
}
